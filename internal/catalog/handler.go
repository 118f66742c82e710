// internal/catalog/handler.go
package catalog

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"librarydesk/internal/httpx"
	"librarydesk/internal/scancode"
)

type Handler struct {
	service Service
	log     *slog.Logger
}

func NewHandler(service Service, log *slog.Logger) *Handler {
	return &Handler{service: service, log: log}
}

// Routes mounts the book endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.HandleList)
	r.Post("/", h.HandleAdd)
	r.Get("/search", h.HandleSearch)
	r.Get("/scan/{code}", h.HandleScan)
	r.Get("/{id}", h.HandleGet)
}

type addBookRequest struct {
	Title       string `json:"title" validate:"required"`
	Author      string `json:"author"`
	ISBN        string `json:"isbn" validate:"omitempty,max=32"`
	Description string `json:"description"`
	CoverImage  string `json:"coverImage"`
	TotalCopies int    `json:"totalCopies" validate:"required,min=1"`
}

func (h *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	var req addBookRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidation, err.Error())
		return
	}

	book, err := h.service.AddBook(r.Context(), NewBook{
		Title:       req.Title,
		Author:      req.Author,
		ISBN:        req.ISBN,
		Description: req.Description,
		CoverImage:  req.CoverImage,
		TotalCopies: req.TotalCopies,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Book created successfully",
		"book":    book,
	})
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	books, err := h.service.ListBooks(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, books)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeInvalidID, "invalid book ID")
		return
	}

	book, err := h.service.GetBook(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, book)
}

func (h *Handler) HandleScan(w http.ResponseWriter, r *http.Request) {
	book, err := h.service.Resolve(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, book)
}

func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidation, "missing search query")
		return
	}

	books, err := h.service.Search(r.Context(), query)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, books)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, httpx.CodeNotFound, err.Error())
	case errors.Is(err, scancode.ErrInvalidCode):
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeInvalidID, err.Error())
	case errors.Is(err, ErrInvalidBook):
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidation, err.Error())
	case errors.Is(err, ErrDuplicateISBN):
		httpx.WriteError(w, http.StatusBadRequest, "DuplicateISBN", err.Error())
	default:
		httpx.WriteInternal(w, r, h.log, err)
	}
}

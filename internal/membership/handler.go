// internal/membership/handler.go
package membership

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"librarydesk/internal/httpx"
)

type Handler struct {
	service Service
	log     *slog.Logger
}

func NewHandler(service Service, log *slog.Logger) *Handler {
	return &Handler{service: service, log: log}
}

// Routes mounts the student endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.HandleList)
	r.Post("/", h.HandleRegister)
	r.Get("/{id}", h.HandleGet)
}

type registerStudentRequest struct {
	Name   string `json:"name" validate:"required"`
	Email  string `json:"email" validate:"omitempty,email"`
	RollNo string `json:"rollNo" validate:"required"`
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerStudentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidation, err.Error())
		return
	}

	student, err := h.service.RegisterStudent(r.Context(), req.Name, req.Email, req.RollNo)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidStudent):
			httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidation, err.Error())
		case errors.Is(err, ErrDuplicateStudent):
			httpx.WriteError(w, http.StatusBadRequest, "DuplicateStudent", err.Error())
		case errors.Is(err, ErrRateLimited):
			httpx.WriteError(w, http.StatusTooManyRequests, "RateLimited", err.Error())
		default:
			httpx.WriteInternal(w, r, h.log, err)
		}
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, student)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	students, err := h.service.ListStudents(r.Context())
	if err != nil {
		httpx.WriteInternal(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, students)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeInvalidID, "invalid student ID")
		return
	}

	student, err := h.service.GetStudent(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, httpx.CodeNotFound, err.Error())
			return
		}
		httpx.WriteInternal(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, student)
}

// internal/circulation/handler.go
package circulation

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

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

// Routes mounts the transaction endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.HandleList)
	r.Post("/issue", h.HandleIssue)
	r.Post("/return", h.HandleReturn)
	r.Post("/pay-fine", h.HandlePayFine)
	r.Get("/overdue", h.HandleOverdue)
	r.Get("/student/{studentId}", h.HandleHistory)
	r.Get("/active/{studentId}", h.HandleActive)
	r.Get("/student/{studentId}/active", h.HandleActive)
	r.Get("/book/{bookId}/availability", h.HandleAvailability)
	r.Get("/{id}/events", h.HandleEvents)
}

// loanRequest carries the two references of an issue or return. BookID may
// be a bare id or a scanned payload.
type loanRequest struct {
	StudentID string `json:"studentId" validate:"required"`
	BookID    string `json:"bookId" validate:"required"`
}

func (req loanRequest) ids() (uuid.UUID, uuid.UUID, error) {
	studentID, err := uuid.Parse(strings.TrimSpace(req.StudentID))
	if err != nil {
		return uuid.Nil, uuid.Nil, ErrInvalidID
	}
	bookID, err := scancode.Decode(req.BookID)
	if err != nil {
		return uuid.Nil, uuid.Nil, ErrInvalidID
	}
	return studentID, bookID, nil
}

func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	var req loanRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidation, "studentId and bookId are required")
		return
	}

	studentID, bookID, err := req.ids()
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.service.Issue(r.Context(), studentID, bookID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"message":         "Book issued successfully",
		"transaction":     res.Transaction,
		"issueDate":       res.Transaction.IssueDate,
		"dueDate":         res.Transaction.DueDate,
		"availableCopies": res.AvailableCopies,
	})
}

func (h *Handler) HandleReturn(w http.ResponseWriter, r *http.Request) {
	var req loanRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidation, "studentId and bookId are required")
		return
	}

	studentID, bookID, err := req.ids()
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.service.Return(r.Context(), studentID, bookID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	body := map[string]interface{}{
		"message":         "Book returned successfully",
		"transaction":     res.Transaction,
		"returnDate":      res.Transaction.ReturnDate,
		"availableCopies": res.AvailableCopies,
	}
	if res.Fine != nil {
		body["fineInfo"] = res.Fine
	}
	httpx.WriteJSON(w, http.StatusCreated, body)
}

type payFineRequest struct {
	TransactionID string `json:"transactionId" validate:"required"`
}

func (h *Handler) HandlePayFine(w http.ResponseWriter, r *http.Request) {
	var req payFineRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidation, "transactionId is required")
		return
	}

	id, err := uuid.Parse(strings.TrimSpace(req.TransactionID))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeInvalidID, "invalid transaction ID")
		return
	}

	res, err := h.service.PayFine(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	message := "Fine of " + res.Transaction.FineAmount.StringFixed(2) + " paid successfully"
	if res.AlreadyPaid {
		message = "Fine already paid"
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message":     message,
		"transaction": res.Transaction,
	})
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := httpx.ParsePage(r)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidation, err.Error())
		return
	}

	f := Filter{
		Type:   Kind(q.Get("type")),
		Status: Status(q.Get("status")),
		Page:   page.Number,
		Limit:  page.Limit,
	}
	if v := q.Get("showReturned"); v != "" {
		show, err := strconv.ParseBool(v)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidation, "showReturned must be a boolean")
			return
		}
		f.ShowReturned = show
	}
	for key, dst := range map[string]**uuid.UUID{"studentId": &f.StudentID, "bookId": &f.BookID} {
		if v := q.Get(key); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				httpx.WriteError(w, http.StatusBadRequest, httpx.CodeInvalidID, "invalid "+key)
				return
			}
			*dst = &id
		}
	}

	result, err := h.service.List(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleActive(w http.ResponseWriter, r *http.Request) {
	studentID, ok := h.pathID(w, r, "studentId", "invalid student ID")
	if !ok {
		return
	}

	txs, err := h.service.ActiveIssues(r.Context(), studentID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"activeIssues": txs,
		"count":        len(txs),
	})
}

func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	studentID, ok := h.pathID(w, r, "studentId", "invalid student ID")
	if !ok {
		return
	}

	txs, err := h.service.History(r.Context(), studentID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"count":        len(txs),
	})
}

func (h *Handler) HandleAvailability(w http.ResponseWriter, r *http.Request) {
	bookID, err := scancode.Decode(chi.URLParam(r, "bookId"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeInvalidID, "invalid book ID")
		return
	}

	a, err := h.service.Availability(r.Context(), bookID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, a)
}

func (h *Handler) HandleOverdue(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.OverdueReport(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id", "invalid transaction ID")
	if !ok {
		return
	}

	events, err := h.service.Events(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, events)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, param, message string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeInvalidID, message)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch code := Code(err); code {
	case "":
		httpx.WriteInternal(w, r, h.log, err)
	case "NotFound":
		httpx.WriteError(w, http.StatusNotFound, code, err.Error())
	default:
		httpx.WriteError(w, http.StatusBadRequest, code, err.Error())
	}
}

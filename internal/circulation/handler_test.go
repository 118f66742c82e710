package circulation

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librarydesk/internal/httpx"
)

func newTestRouter(f *fixture) http.Handler {
	r := chi.NewRouter()
	r.Route("/api/transactions", NewHandler(f.svc, slog.New(slog.NewTextHandler(io.Discard, nil))).Routes)
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httpx.ErrorBody {
	t.Helper()
	var body httpx.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHandleIssueAndReturn(t *testing.T) {
	f := newFixture(t)
	h := newTestRouter(f)
	book := f.book(t, "Dune", 1)
	student := f.student(t, "CS-001")

	rec := doJSON(t, h, http.MethodPost, "/api/transactions/issue", map[string]string{
		"studentId": student.ID.String(),
		"bookId":    book.ScanCode,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var issued struct {
		Message         string      `json:"message"`
		Transaction     Transaction `json:"transaction"`
		DueDate         time.Time   `json:"dueDate"`
		AvailableCopies int         `json:"availableCopies"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &issued))
	assert.Equal(t, "Book issued successfully", issued.Message)
	assert.Equal(t, 0, issued.AvailableCopies)
	assert.Equal(t, book.ID, issued.Transaction.BookID)
	assert.True(t, issued.DueDate.Equal(f.clock.Now().AddDate(0, 0, 14)))

	f.clock.Advance(17 * 24 * time.Hour)

	rec = doJSON(t, h, http.MethodPost, "/api/transactions/return", map[string]string{
		"studentId": student.ID.String(),
		"bookId":    book.ID.String(),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var returned struct {
		Transaction     Transaction `json:"transaction"`
		AvailableCopies int         `json:"availableCopies"`
		FineInfo        *FineInfo   `json:"fineInfo"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &returned))
	assert.Equal(t, 1, returned.AvailableCopies)
	assert.Equal(t, StatusReturned, returned.Transaction.Status)
	require.NotNil(t, returned.FineInfo)
	assert.Equal(t, 3, returned.FineInfo.DaysOverdue)
	assert.Equal(t, "15", returned.FineInfo.FineAmount.String())

	rec = doJSON(t, h, http.MethodPost, "/api/transactions/pay-fine", map[string]string{
		"transactionId": returned.Transaction.ID.String(),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Fine of 15.00 paid successfully")

	rec = doJSON(t, h, http.MethodPost, "/api/transactions/pay-fine", map[string]string{
		"transactionId": returned.Transaction.ID.String(),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Fine already paid")
}

func TestHandleIssueErrors(t *testing.T) {
	f := newFixture(t)
	h := newTestRouter(f)
	book := f.book(t, "Dune", 1)
	student := f.student(t, "CS-001")
	other := f.student(t, "CS-002")

	tests := []struct {
		name       string
		body       interface{}
		wantStatus int
		wantCode   string
	}{
		{"missing fields", map[string]string{"studentId": student.ID.String()}, http.StatusBadRequest, "ValidationError"},
		{"bad student id", map[string]string{"studentId": "nope", "bookId": book.ID.String()}, http.StatusBadRequest, "InvalidId"},
		{"bad scan code", map[string]string{"studentId": student.ID.String(), "bookId": "LIB:garbage"}, http.StatusBadRequest, "InvalidId"},
		{"unknown student", map[string]string{"studentId": uuid.NewString(), "bookId": book.ID.String()}, http.StatusNotFound, "NotFound"},
		{"unknown book", map[string]string{"studentId": student.ID.String(), "bookId": uuid.NewString()}, http.StatusNotFound, "NotFound"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPost, "/api/transactions/issue", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Error)
		})
	}

	loan := map[string]string{"studentId": student.ID.String(), "bookId": book.ID.String()}
	require.Equal(t, http.StatusCreated, doJSON(t, h, http.MethodPost, "/api/transactions/issue", loan).Code)

	rec := doJSON(t, h, http.MethodPost, "/api/transactions/issue", loan)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "DuplicateIssue", decodeError(t, rec).Error)

	rec = doJSON(t, h, http.MethodPost, "/api/transactions/issue", map[string]string{
		"studentId": other.ID.String(),
		"bookId":    book.ID.String(),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "NoCopiesAvailable", decodeError(t, rec).Error)

	rec = doJSON(t, h, http.MethodPost, "/api/transactions/return", map[string]string{
		"studentId": other.ID.String(),
		"bookId":    book.ID.String(),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "NoActiveIssue", decodeError(t, rec).Error)
}

func TestHandleQueries(t *testing.T) {
	f := newFixture(t)
	h := newTestRouter(f)
	book := f.book(t, "Dune", 2)
	student := f.student(t, "CS-001")

	res, err := f.svc.Issue(context.Background(), student.ID, book.ID)
	require.NoError(t, err)

	rec := doJSON(t, h, http.MethodGet, "/api/transactions?limit=500", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page Page
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 1, page.CurrentPage)

	rec = doJSON(t, h, http.MethodGet, "/api/transactions?page=2&limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 2, page.CurrentPage)
	assert.Empty(t, page.Transactions)

	rec = doJSON(t, h, http.MethodGet, "/api/transactions?limit=100&page=92233720368547758", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ValidationError", decodeError(t, rec).Error)

	rec = doJSON(t, h, http.MethodGet, "/api/transactions?status=lost", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ValidationError", decodeError(t, rec).Error)

	rec = doJSON(t, h, http.MethodGet, "/api/transactions?showReturned=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/transactions?studentId=42", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "InvalidId", decodeError(t, rec).Error)

	for _, path := range []string{
		"/api/transactions/active/" + student.ID.String(),
		"/api/transactions/student/" + student.ID.String() + "/active",
	} {
		rec = doJSON(t, h, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, rec.Code, path)
		var active struct {
			ActiveIssues []Transaction `json:"activeIssues"`
			Count        int           `json:"count"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &active))
		assert.Equal(t, 1, active.Count, path)
		require.Len(t, active.ActiveIssues, 1)
		assert.Equal(t, res.Transaction.ID, active.ActiveIssues[0].ID)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/transactions/active/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "InvalidId", decodeError(t, rec).Error)

	rec = doJSON(t, h, http.MethodGet, "/api/transactions/active/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/transactions/student/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/transactions/student/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/transactions/book/"+book.ScanCode+"/availability", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var a Availability
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &a))
	assert.Equal(t, 1, a.IssuedCopies)
	require.Len(t, a.Holders, 1)
	assert.Equal(t, "CS-001", a.Holders[0].RollNo)

	rec = doJSON(t, h, http.MethodGet, "/api/transactions/overdue", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"totalOverdue":0`)

	rec = doJSON(t, h, http.MethodGet, "/api/transactions/"+res.Transaction.ID.String()+"/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "BookIssued")

	rec = doJSON(t, h, http.MethodPost, "/api/transactions/pay-fine", map[string]string{"transactionId": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "InvalidId", decodeError(t, rec).Error)
}

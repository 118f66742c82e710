// Package httpx holds the JSON plumbing shared by the HTTP handlers.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Error codes returned in the "error" field of failed responses.
const (
	CodeValidation = "ValidationError"
	CodeInvalidID  = "InvalidId"
	CodeNotFound   = "NotFound"
	CodeInternal   = "InternalError"
)

// ErrorBody is the JSON shape of every failed response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var validate = validator.New()

// WriteJSON encodes v with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "err", err)
	}
}

// WriteError writes an ErrorBody.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, ErrorBody{Error: code, Message: message})
}

// WriteInternal logs err and hides it behind a generic 500.
func WriteInternal(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	log.ErrorContext(r.Context(), "request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"err", err,
	)
	WriteError(w, http.StatusInternalServerError, CodeInternal, "internal server error")
}

// DecodeJSON reads the request body into dst and validates its struct tags.
func DecodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return Validate(dst)
}

// Validate checks the struct tags of v.
func Validate(v interface{}) error {
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("field %s failed on the '%s' rule", fe.Field(), fe.Tag())
		}
		return err
	}
	return nil
}

// Page is a parsed page/limit pair.
type Page struct {
	Number int
	Limit  int
}

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 100
	// MaxPageNumber keeps the row offset well inside the range every
	// database accepts.
	MaxPageNumber = 1_000_000
)

// ErrPageOutOfRange is returned by ParsePage for a page past MaxPageNumber.
var ErrPageOutOfRange = fmt.Errorf("page must not exceed %d", MaxPageNumber)

// NewPage applies the defaults and bounds to a page/limit pair. Non-positive
// values fall back to the defaults.
func NewPage(number, limit int) Page {
	p := Page{Number: 1, Limit: DefaultPageLimit}
	if number > 0 {
		p.Number = min(number, MaxPageNumber)
	}
	if limit > 0 {
		p.Limit = min(limit, MaxPageLimit)
	}
	return p
}

// ParsePage reads page and limit from the query string. Missing or
// malformed values fall back to the defaults; a page beyond MaxPageNumber
// is an error.
func ParsePage(r *http.Request) (Page, error) {
	q := r.URL.Query()
	number, err := strconv.Atoi(q.Get("page"))
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) && !strings.HasPrefix(q.Get("page"), "-") {
			return Page{}, ErrPageOutOfRange
		}
		number = 0
	}
	if number > MaxPageNumber {
		return Page{}, ErrPageOutOfRange
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	return NewPage(number, limit), nil
}

// Offset is the number of rows skipped before the page starts.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Limit
}

// TotalPages returns how many pages of p.Limit rows hold total rows.
func (p Page) TotalPages(total int) int {
	if total == 0 {
		return 0
	}
	return (total + p.Limit - 1) / p.Limit
}

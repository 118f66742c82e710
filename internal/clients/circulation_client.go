package clients

import (
	"context"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"librarydesk/internal/circulation"
)

// Loan is the response to an issue or return.
type Loan struct {
	Message         string                  `json:"message"`
	Transaction     circulation.Transaction `json:"transaction"`
	AvailableCopies int                     `json:"availableCopies"`
	FineInfo        *circulation.FineInfo   `json:"fineInfo,omitempty"`
}

type CirculationClient struct {
	base
}

func NewCirculationClient(baseURL string, opts ...Option) *CirculationClient {
	return &CirculationClient{base: newBase("circulation", baseURL, opts...)}
}

// Issue lends a book. bookRef is a book id or a scanned payload.
func (c *CirculationClient) Issue(ctx context.Context, studentID uuid.UUID, bookRef string) (*Loan, error) {
	return c.loan(ctx, "/api/transactions/issue", studentID, bookRef)
}

// Return closes the open loan of bookRef held by the student.
func (c *CirculationClient) Return(ctx context.Context, studentID uuid.UUID, bookRef string) (*Loan, error) {
	return c.loan(ctx, "/api/transactions/return", studentID, bookRef)
}

func (c *CirculationClient) loan(ctx context.Context, path string, studentID uuid.UUID, bookRef string) (*Loan, error) {
	req := map[string]string{"studentId": studentID.String(), "bookId": bookRef}
	var loan Loan
	if err := c.do(ctx, http.MethodPost, path, req, &loan); err != nil {
		return nil, err
	}
	return &loan, nil
}

func (c *CirculationClient) PayFine(ctx context.Context, transactionID uuid.UUID) (*circulation.Transaction, error) {
	req := map[string]string{"transactionId": transactionID.String()}
	var resp struct {
		Transaction circulation.Transaction `json:"transaction"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/transactions/pay-fine", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Transaction, nil
}

// ActiveIssues lists the loans the student has not returned yet.
func (c *CirculationClient) ActiveIssues(ctx context.Context, studentID uuid.UUID) ([]circulation.Transaction, error) {
	var resp struct {
		ActiveIssues []circulation.Transaction `json:"activeIssues"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/transactions/active/"+studentID.String(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.ActiveIssues, nil
}

func (c *CirculationClient) Availability(ctx context.Context, bookRef string) (*circulation.Availability, error) {
	var a circulation.Availability
	if err := c.do(ctx, http.MethodGet, "/api/transactions/book/"+url.PathEscape(bookRef)+"/availability", nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (c *CirculationClient) OverdueReport(ctx context.Context) (*circulation.OverdueReport, error) {
	var report circulation.OverdueReport
	if err := c.do(ctx, http.MethodGet, "/api/transactions/overdue", nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// internal/circulation/service.go
package circulation

import (
	"context"

	"github.com/google/uuid"

	"librarydesk/pkg/eventstore"
)

// Service defines the interface for the circulation service.
type Service interface {
	Issue(ctx context.Context, studentID, bookID uuid.UUID) (*IssueResult, error)
	Return(ctx context.Context, studentID, bookID uuid.UUID) (*ReturnResult, error)
	PayFine(ctx context.Context, transactionID uuid.UUID) (*PaymentResult, error)

	List(ctx context.Context, f Filter) (*Page, error)
	ActiveIssues(ctx context.Context, studentID uuid.UUID) ([]*Transaction, error)
	History(ctx context.Context, studentID uuid.UUID) ([]*Transaction, error)
	Availability(ctx context.Context, bookID uuid.UUID) (*Availability, error)
	OverdueReport(ctx context.Context) (*OverdueReport, error)
	Events(ctx context.Context, transactionID uuid.UUID) ([]eventstore.Event, error)
}

// internal/circulation/domain.go
package circulation

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidID         = errors.New("invalid studentId or bookId format")
	ErrInvalidFilter     = errors.New("invalid transaction filter")
	ErrNotFound          = errors.New("not found")
	ErrDuplicateIssue    = errors.New("this book is already issued to this student")
	ErrNoCopiesAvailable = errors.New("no copies available to issue")
	ErrNoActiveIssue     = errors.New("no active issue found for this student and book")

	errStudentNotFound     = wrapNotFound("student")
	errBookNotFound        = wrapNotFound("book")
	errTransactionNotFound = wrapNotFound("transaction")
	errCopyCount           = errors.New("available copies would exceed total copies")
)

func wrapNotFound(what string) error {
	return &notFoundError{what: what}
}

type notFoundError struct{ what string }

func (e *notFoundError) Error() string { return e.what + " not found" }
func (e *notFoundError) Unwrap() error { return ErrNotFound }

// Code returns the stable error code of a circulation error, or "" when err
// is not one of the package's business errors.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidID):
		return "InvalidId"
	case errors.Is(err, ErrInvalidFilter):
		return "ValidationError"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrDuplicateIssue):
		return "DuplicateIssue"
	case errors.Is(err, ErrNoCopiesAvailable):
		return "NoCopiesAvailable"
	case errors.Is(err, ErrNoActiveIssue):
		return "NoActiveIssue"
	default:
		return ""
	}
}

// Kind names the last lifecycle step applied to a ledger entry.
type Kind string

const (
	KindIssue  Kind = "issue"
	KindReturn Kind = "return"
)

// Status of a ledger entry. Only active and returned are persisted; overdue
// is derived from the due date whenever an entry is read.
type Status string

const (
	StatusActive   Status = "active"
	StatusOverdue  Status = "overdue"
	StatusReturned Status = "returned"
)

// Transaction is one loan of a book to a student.
type Transaction struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	StudentID   uuid.UUID       `json:"studentId" db:"student_id"`
	BookID      uuid.UUID       `json:"bookId" db:"book_id"`
	Type        Kind            `json:"type" db:"kind"`
	Status      Status          `json:"status" db:"status"`
	IssueDate   time.Time       `json:"issueDate" db:"issue_date"`
	DueDate     time.Time       `json:"dueDate" db:"due_date"`
	ReturnDate  *time.Time      `json:"returnDate,omitempty" db:"return_date"`
	DaysOverdue int             `json:"daysOverdue" db:"days_overdue"`
	FineAmount  decimal.Decimal `json:"fineAmount" db:"fine_amount"`
	FinePaid    bool            `json:"finePaid" db:"fine_paid"`
	Version     int             `json:"version" db:"version"`

	Student *StudentRef `json:"student,omitempty" db:"-"`
	Book    *BookRef    `json:"book,omitempty" db:"-"`
}

// Open reports whether the book is still out.
func (t *Transaction) Open() bool {
	return t.Status == StatusActive || t.Status == StatusOverdue
}

// derive replaces the stored status with the one observed at now.
func (t *Transaction) derive(now time.Time) {
	if t.Status == StatusActive && now.After(t.DueDate) {
		t.Status = StatusOverdue
	}
}

// StudentRef is the student summary embedded in listings.
type StudentRef struct {
	Name   string  `json:"name"`
	RollNo string  `json:"rollNo"`
	Email  *string `json:"email,omitempty"`
}

// BookRef is the book summary embedded in listings.
type BookRef struct {
	Title  string  `json:"title"`
	Author string  `json:"author"`
	ISBN   *string `json:"isbn,omitempty"`
}

// IssueResult is returned by a successful issue.
type IssueResult struct {
	Transaction     *Transaction
	AvailableCopies int
}

// FineInfo describes the fine assessed at return.
type FineInfo struct {
	DaysOverdue int             `json:"daysOverdue"`
	FineAmount  decimal.Decimal `json:"fineAmount"`
	Message     string          `json:"message"`
}

// ReturnResult is returned by a successful return. Fine is nil when the
// book came back on time.
type ReturnResult struct {
	Transaction     *Transaction
	AvailableCopies int
	Fine            *FineInfo
}

// PaymentResult is returned by PayFine.
type PaymentResult struct {
	Transaction *Transaction
	AlreadyPaid bool
}

// Filter selects ledger entries for List.
type Filter struct {
	StudentID    *uuid.UUID
	BookID       *uuid.UUID
	Type         Kind
	Status       Status
	ShowReturned bool
	Page         int
	Limit        int
}

// Page is one page of List results.
type Page struct {
	Transactions []*Transaction `json:"transactions"`
	Total        int            `json:"total"`
	TotalPages   int            `json:"totalPages"`
	CurrentPage  int            `json:"currentPage"`
}

// Holder is a student currently holding a copy of a book.
type Holder struct {
	TransactionID uuid.UUID `json:"transactionId" db:"transaction_id"`
	StudentID     uuid.UUID `json:"studentId" db:"student_id"`
	Name          string    `json:"name" db:"name"`
	RollNo        string    `json:"rollNo" db:"roll_no"`
	IssueDate     time.Time `json:"issueDate" db:"issue_date"`
	DueDate       time.Time `json:"dueDate" db:"due_date"`
	Overdue       bool      `json:"overdue" db:"-"`
}

// Availability summarizes the copies of one book.
type Availability struct {
	BookID          uuid.UUID `json:"bookId"`
	Title           string    `json:"title"`
	TotalCopies     int       `json:"totalCopies"`
	AvailableCopies int       `json:"availableCopies"`
	IssuedCopies    int       `json:"issuedCopies"`
	Holders         []Holder  `json:"holders"`
}

// OverdueEntry is an open loan past its due date with the fine it would
// carry if returned now.
type OverdueEntry struct {
	*Transaction
	CurrentDaysOverdue int             `json:"currentDaysOverdue"`
	CurrentFine        decimal.Decimal `json:"currentFine"`
}

// OverdueReport lists every overdue loan, oldest due date first.
type OverdueReport struct {
	Entries      []OverdueEntry  `json:"transactions"`
	TotalOverdue int             `json:"totalOverdue"`
	TotalFine    decimal.Decimal `json:"totalFine"`
	GeneratedAt  time.Time       `json:"generatedAt"`
}

// BookIssuedEvent is appended when a book is issued.
type BookIssuedEvent struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	StudentID     uuid.UUID `json:"student_id"`
	BookID        uuid.UUID `json:"book_id"`
	IssueDate     time.Time `json:"issue_date"`
	DueDate       time.Time `json:"due_date"`
}

// BookReturnedEvent is appended when a book comes back.
type BookReturnedEvent struct {
	TransactionID uuid.UUID       `json:"transaction_id"`
	StudentID     uuid.UUID       `json:"student_id"`
	BookID        uuid.UUID       `json:"book_id"`
	ReturnDate    time.Time       `json:"return_date"`
	DaysOverdue   int             `json:"days_overdue"`
	FineAmount    decimal.Decimal `json:"fine_amount"`
}

// FinePaidEvent is appended when an outstanding fine is settled.
type FinePaidEvent struct {
	TransactionID uuid.UUID       `json:"transaction_id"`
	FineAmount    decimal.Decimal `json:"fine_amount"`
	PaidAt        time.Time       `json:"paid_at"`
}

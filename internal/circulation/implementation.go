// internal/circulation/implementation.go
package circulation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"librarydesk/internal/database"
	"librarydesk/pkg/eventstore"
)

const aggregateType = "transaction"

const transactionColumns = `id, student_id, book_id, kind, status, issue_date, due_date, return_date, days_overdue, fine_amount, fine_paid, version`

// Option customizes the service.
type Option func(*service)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// WithLogger sets the logger used for operational messages.
func WithLogger(log *slog.Logger) Option {
	return func(s *service) { s.log = log }
}

// service implements the Service interface.
type service struct {
	eventStore *eventstore.EventStore
	db         *sqlx.DB
	policy     Policy
	now        func() time.Time
	log        *slog.Logger
	tracer     trace.Tracer
	metrics    *metrics
}

// NewService creates a new circulation service instance.
func NewService(es *eventstore.EventStore, db *sqlx.DB, policy Policy, opts ...Option) (Service, error) {
	m, err := newMetrics(otel.Meter("librarydesk/circulation"))
	if err != nil {
		return nil, err
	}

	s := &service{
		eventStore: es,
		db:         db,
		policy:     policy,
		now:        time.Now,
		log:        slog.Default(),
		tracer:     otel.Tracer("librarydesk/circulation"),
		metrics:    m,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *service) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (s *service) finish(ctx context.Context, span trace.Span, op string, err error) {
	defer span.End()
	if err == nil {
		return
	}
	s.metrics.rejected(ctx, op, err)
	if Code(err) == "" {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.log.ErrorContext(ctx, "circulation operation failed", "operation", op, "err", err)
		return
	}
	span.SetAttributes(attribute.String("rejected.reason", Code(err)))
	s.log.DebugContext(ctx, "circulation operation rejected", "operation", op, "reason", Code(err))
}

// Issue lends one copy of a book to a student.
func (s *service) Issue(ctx context.Context, studentID, bookID uuid.UUID) (result *IssueResult, err error) {
	ctx, span := s.startSpan(ctx, "circulation.issue",
		attribute.String("student.id", studentID.String()),
		attribute.String("book.id", bookID.String()),
	)
	defer func() { s.finish(ctx, span, "issue", err) }()

	if studentID == uuid.Nil || bookID == uuid.Nil {
		return nil, ErrInvalidID
	}

	now := s.clock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := ensureStudent(ctx, tx, studentID); err != nil {
		return nil, err
	}
	if _, err := availableCopies(ctx, tx, bookID); err != nil {
		return nil, err
	}

	if _, err := openTransaction(ctx, tx, studentID, bookID); err == nil {
		return nil, ErrDuplicateIssue
	} else if !errors.Is(err, ErrNoActiveIssue) {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, tx.Rebind(`
		UPDATE books
		SET available_copies = available_copies - 1, version = version + 1
		WHERE id = ? AND available_copies > 0
	`), bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to decrement available copies: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("failed to read affected rows: %w", err)
	} else if n == 0 {
		return nil, ErrNoCopiesAvailable
	}

	t := &Transaction{
		ID:        uuid.New(),
		StudentID: studentID,
		BookID:    bookID,
		Type:      KindIssue,
		Status:    StatusActive,
		IssueDate: now,
		DueDate:   s.policy.DueDate(now),
		Version:   1,
	}

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (:id, :student_id, :book_id, :kind, :status, :issue_date, :due_date, :return_date, :days_overdue, :fine_amount, :fine_paid, :version)
	`, t)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrDuplicateIssue
		}
		return nil, fmt.Errorf("failed to insert transaction: %w", err)
	}

	event, err := eventstore.NewEvent("BookIssued", BookIssuedEvent{
		TransactionID: t.ID,
		StudentID:     studentID,
		BookID:        bookID,
		IssueDate:     t.IssueDate,
		DueDate:       t.DueDate,
	})
	if err != nil {
		return nil, err
	}
	if err := s.eventStore.Append(ctx, tx, t.ID, aggregateType, 0, []eventstore.Event{event}); err != nil {
		return nil, fmt.Errorf("failed to append event: %w", err)
	}

	available, err := availableCopies(ctx, tx, bookID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit issue: %w", err)
	}

	s.metrics.issues.Add(ctx, 1)
	s.log.InfoContext(ctx, "book issued",
		"transaction_id", t.ID,
		"student_id", studentID,
		"book_id", bookID,
		"due_date", t.DueDate,
	)

	return &IssueResult{Transaction: t, AvailableCopies: available}, nil
}

// Return closes the open loan of a book and assesses the overdue fine.
func (s *service) Return(ctx context.Context, studentID, bookID uuid.UUID) (result *ReturnResult, err error) {
	ctx, span := s.startSpan(ctx, "circulation.return",
		attribute.String("student.id", studentID.String()),
		attribute.String("book.id", bookID.String()),
	)
	defer func() { s.finish(ctx, span, "return", err) }()

	if studentID == uuid.Nil || bookID == uuid.Nil {
		return nil, ErrInvalidID
	}

	now := s.clock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := ensureStudent(ctx, tx, studentID); err != nil {
		return nil, err
	}
	if _, err := availableCopies(ctx, tx, bookID); err != nil {
		return nil, err
	}

	t, err := openTransaction(ctx, tx, studentID, bookID)
	if err != nil {
		return nil, err
	}

	days, fine := s.policy.Assess(t.DueDate, now)
	t.Type = KindReturn
	t.Status = StatusReturned
	t.ReturnDate = &now
	t.DaysOverdue = days
	t.FineAmount = fine
	t.FinePaid = fine.IsZero()

	res, err := tx.ExecContext(ctx, tx.Rebind(`
		UPDATE transactions
		SET kind = ?, status = ?, return_date = ?, days_overdue = ?, fine_amount = ?, fine_paid = ?, version = version + 1
		WHERE id = ? AND status = ?
	`), t.Type, t.Status, now, t.DaysOverdue, t.FineAmount, t.FinePaid, t.ID, StatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to close transaction: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("failed to read affected rows: %w", err)
	} else if n == 0 {
		return nil, ErrNoActiveIssue
	}

	res, err = tx.ExecContext(ctx, tx.Rebind(`
		UPDATE books
		SET available_copies = available_copies + 1, version = version + 1
		WHERE id = ? AND available_copies < total_copies
	`), bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to increment available copies: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("failed to read affected rows: %w", err)
	} else if n == 0 {
		return nil, fmt.Errorf("book %s: %w", bookID, errCopyCount)
	}

	event, err := eventstore.NewEvent("BookReturned", BookReturnedEvent{
		TransactionID: t.ID,
		StudentID:     studentID,
		BookID:        bookID,
		ReturnDate:    now,
		DaysOverdue:   days,
		FineAmount:    fine,
	})
	if err != nil {
		return nil, err
	}
	if err := s.eventStore.Append(ctx, tx, t.ID, aggregateType, t.Version, []eventstore.Event{event}); err != nil {
		return nil, fmt.Errorf("failed to append event: %w", err)
	}
	t.Version++

	available, err := availableCopies(ctx, tx, bookID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit return: %w", err)
	}

	result = &ReturnResult{Transaction: t, AvailableCopies: available}
	if fine.IsPositive() {
		result.Fine = &FineInfo{
			DaysOverdue: days,
			FineAmount:  fine,
			Message:     fmt.Sprintf("Fine of %s applied for %d day(s) overdue", fine.StringFixed(2), days),
		}
		s.metrics.fined(ctx, fine)
	}

	s.metrics.returns.Add(ctx, 1)
	s.log.InfoContext(ctx, "book returned",
		"transaction_id", t.ID,
		"student_id", studentID,
		"book_id", bookID,
		"days_overdue", days,
		"fine", fine.String(),
	)

	return result, nil
}

// PayFine marks the fine of a transaction as paid. Paying twice is a no-op.
func (s *service) PayFine(ctx context.Context, transactionID uuid.UUID) (result *PaymentResult, err error) {
	ctx, span := s.startSpan(ctx, "circulation.pay_fine",
		attribute.String("transaction.id", transactionID.String()),
	)
	defer func() { s.finish(ctx, span, "pay_fine", err) }()

	if transactionID == uuid.Nil {
		return nil, ErrInvalidID
	}

	now := s.clock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	t, err := getTransaction(ctx, tx, transactionID)
	if err != nil {
		return nil, err
	}
	t.derive(now)

	if t.FinePaid {
		return &PaymentResult{Transaction: t, AlreadyPaid: true}, nil
	}

	res, err := tx.ExecContext(ctx, tx.Rebind(`
		UPDATE transactions
		SET fine_paid = ?, version = version + 1
		WHERE id = ? AND fine_paid = ?
	`), true, t.ID, false)
	if err != nil {
		return nil, fmt.Errorf("failed to mark fine paid: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("failed to read affected rows: %w", err)
	} else if n == 0 {
		t.FinePaid = true
		return &PaymentResult{Transaction: t, AlreadyPaid: true}, nil
	}

	event, err := eventstore.NewEvent("FinePaid", FinePaidEvent{
		TransactionID: t.ID,
		FineAmount:    t.FineAmount,
		PaidAt:        now,
	})
	if err != nil {
		return nil, err
	}
	if err := s.eventStore.Append(ctx, tx, t.ID, aggregateType, t.Version, []eventstore.Event{event}); err != nil {
		return nil, fmt.Errorf("failed to append event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit payment: %w", err)
	}

	t.FinePaid = true
	t.Version++

	s.log.InfoContext(ctx, "fine paid", "transaction_id", t.ID, "amount", t.FineAmount.String())
	return &PaymentResult{Transaction: t}, nil
}

func ensureStudent(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	var found int
	err := tx.GetContext(ctx, &found, tx.Rebind(`SELECT 1 FROM students WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return errStudentNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to look up student: %w", err)
	}
	return nil
}

func availableCopies(ctx context.Context, tx *sqlx.Tx, bookID uuid.UUID) (int, error) {
	var available int
	err := tx.GetContext(ctx, &available, tx.Rebind(`SELECT available_copies FROM books WHERE id = ?`), bookID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, errBookNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up book: %w", err)
	}
	return available, nil
}

func openTransaction(ctx context.Context, tx *sqlx.Tx, studentID, bookID uuid.UUID) (*Transaction, error) {
	t := &Transaction{}
	err := tx.GetContext(ctx, t, tx.Rebind(`
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE student_id = ? AND book_id = ? AND status = ?
	`), studentID, bookID, StatusActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoActiveIssue
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up open transaction: %w", err)
	}
	return t, nil
}

type queryer interface {
	sqlx.QueryerContext
	Rebind(query string) string
}

func getTransaction(ctx context.Context, q queryer, id uuid.UUID) (*Transaction, error) {
	t := &Transaction{}
	err := sqlx.GetContext(ctx, q, t, q.Rebind(`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return t, nil
}

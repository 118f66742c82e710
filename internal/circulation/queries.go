package circulation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"librarydesk/internal/httpx"
	"librarydesk/pkg/eventstore"
)

const joinedColumns = `
	t.id AS id, t.student_id AS student_id, t.book_id AS book_id, t.kind AS kind, t.status AS status,
	t.issue_date AS issue_date, t.due_date AS due_date, t.return_date AS return_date,
	t.days_overdue AS days_overdue, t.fine_amount AS fine_amount, t.fine_paid AS fine_paid, t.version AS version,
	s.name AS student_name, s.roll_no AS student_roll_no, s.email AS student_email,
	b.title AS book_title, b.author AS book_author, b.isbn AS book_isbn`

const joinedFrom = `
	FROM transactions t
	JOIN students s ON s.id = t.student_id
	JOIN books b ON b.id = t.book_id`

type transactionRow struct {
	Transaction
	StudentName   string  `db:"student_name"`
	StudentRollNo string  `db:"student_roll_no"`
	StudentEmail  *string `db:"student_email"`
	BookTitle     string  `db:"book_title"`
	BookAuthor    string  `db:"book_author"`
	BookISBN      *string `db:"book_isbn"`
}

func (r *transactionRow) toTransaction(now time.Time) *Transaction {
	t := r.Transaction
	t.Student = &StudentRef{Name: r.StudentName, RollNo: r.StudentRollNo, Email: r.StudentEmail}
	t.Book = &BookRef{Title: r.BookTitle, Author: r.BookAuthor, ISBN: r.BookISBN}
	t.derive(now)
	return &t
}

func (s *service) selectTransactions(ctx context.Context, now time.Time, where string, tail string, args ...interface{}) ([]*Transaction, error) {
	query := `SELECT ` + joinedColumns + joinedFrom
	if where != "" {
		query += ` WHERE ` + where
	}
	query += ` ` + tail

	var rows []transactionRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}

	out := make([]*Transaction, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toTransaction(now))
	}
	return out, nil
}

// filterClause turns a Filter into a WHERE clause over the aliased
// transactions table.
func filterClause(f Filter, now time.Time) (string, []interface{}, error) {
	var conds []string
	var args []interface{}

	if f.StudentID != nil {
		conds = append(conds, "t.student_id = ?")
		args = append(args, *f.StudentID)
	}
	if f.BookID != nil {
		conds = append(conds, "t.book_id = ?")
		args = append(args, *f.BookID)
	}

	switch f.Type {
	case "":
	case KindIssue, KindReturn:
		conds = append(conds, "t.kind = ?")
		args = append(args, f.Type)
	default:
		return "", nil, fmt.Errorf("%w: unknown type %q", ErrInvalidFilter, f.Type)
	}

	switch f.Status {
	case "":
		if !f.ShowReturned {
			conds = append(conds, "t.status = ?")
			args = append(args, StatusActive)
		}
	case StatusActive:
		conds = append(conds, "t.status = ? AND t.due_date >= ?")
		args = append(args, StatusActive, now)
	case StatusOverdue:
		conds = append(conds, "t.status = ? AND t.due_date < ?")
		args = append(args, StatusActive, now)
	case StatusReturned:
		conds = append(conds, "t.status = ?")
		args = append(args, StatusReturned)
	default:
		return "", nil, fmt.Errorf("%w: unknown status %q", ErrInvalidFilter, f.Status)
	}

	return strings.Join(conds, " AND "), args, nil
}

// List returns one page of ledger entries, newest issue first. Returned
// entries are hidden unless requested.
func (s *service) List(ctx context.Context, f Filter) (page *Page, err error) {
	ctx, span := s.startSpan(ctx, "circulation.list",
		attribute.Int("page", f.Page),
		attribute.Int("limit", f.Limit),
	)
	defer func() { s.finish(ctx, span, "list", err) }()

	p := httpx.NewPage(f.Page, f.Limit)

	now := s.clock()
	where, args, err := filterClause(f, now)
	if err != nil {
		return nil, err
	}

	countQuery := `SELECT COUNT(*) FROM transactions t`
	if where != "" {
		countQuery += ` WHERE ` + where
	}
	var total int
	if err := s.db.GetContext(ctx, &total, s.db.Rebind(countQuery), args...); err != nil {
		return nil, fmt.Errorf("failed to count transactions: %w", err)
	}

	pageArgs := append(append([]interface{}{}, args...), p.Limit, p.Offset())
	txs, err := s.selectTransactions(ctx, now, where, `ORDER BY t.issue_date DESC, t.id ASC LIMIT ? OFFSET ?`, pageArgs...)
	if err != nil {
		return nil, err
	}

	return &Page{
		Transactions: txs,
		Total:        total,
		TotalPages:   p.TotalPages(total),
		CurrentPage:  p.Number,
	}, nil
}

// ActiveIssues lists the books a student currently holds.
func (s *service) ActiveIssues(ctx context.Context, studentID uuid.UUID) (txs []*Transaction, err error) {
	ctx, span := s.startSpan(ctx, "circulation.active_issues", attribute.String("student.id", studentID.String()))
	defer func() { s.finish(ctx, span, "active_issues", err) }()

	if err := s.studentExists(ctx, studentID); err != nil {
		return nil, err
	}
	return s.selectTransactions(ctx, s.clock(), "t.student_id = ? AND t.status = ?",
		"ORDER BY t.issue_date DESC, t.id ASC", studentID, StatusActive)
}

// History lists every loan of a student, open or closed.
func (s *service) History(ctx context.Context, studentID uuid.UUID) (txs []*Transaction, err error) {
	ctx, span := s.startSpan(ctx, "circulation.history", attribute.String("student.id", studentID.String()))
	defer func() { s.finish(ctx, span, "history", err) }()

	if err := s.studentExists(ctx, studentID); err != nil {
		return nil, err
	}
	return s.selectTransactions(ctx, s.clock(), "t.student_id = ?",
		"ORDER BY t.issue_date DESC, t.id ASC", studentID)
}

// Availability reports the copy counts of a book and who holds the issued copies.
func (s *service) Availability(ctx context.Context, bookID uuid.UUID) (a *Availability, err error) {
	ctx, span := s.startSpan(ctx, "circulation.availability", attribute.String("book.id", bookID.String()))
	defer func() { s.finish(ctx, span, "availability", err) }()

	var book struct {
		ID              uuid.UUID `db:"id"`
		Title           string    `db:"title"`
		TotalCopies     int       `db:"total_copies"`
		AvailableCopies int       `db:"available_copies"`
	}
	err = s.db.GetContext(ctx, &book, s.db.Rebind(`
		SELECT id, title, total_copies, available_copies FROM books WHERE id = ?
	`), bookID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errBookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get book: %w", err)
	}

	holders := make([]Holder, 0)
	err = s.db.SelectContext(ctx, &holders, s.db.Rebind(`
		SELECT t.id AS transaction_id, t.student_id AS student_id, s.name AS name, s.roll_no AS roll_no,
			t.issue_date AS issue_date, t.due_date AS due_date
		FROM transactions t
		JOIN students s ON s.id = t.student_id
		WHERE t.book_id = ? AND t.status = ?
		ORDER BY t.due_date ASC
	`), bookID, StatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list holders: %w", err)
	}

	now := s.clock()
	for i := range holders {
		holders[i].Overdue = now.After(holders[i].DueDate)
	}

	return &Availability{
		BookID:          book.ID,
		Title:           book.Title,
		TotalCopies:     book.TotalCopies,
		AvailableCopies: book.AvailableCopies,
		IssuedCopies:    book.TotalCopies - book.AvailableCopies,
		Holders:         holders,
	}, nil
}

// OverdueReport lists open loans past due with their fines as of now.
func (s *service) OverdueReport(ctx context.Context) (report *OverdueReport, err error) {
	ctx, span := s.startSpan(ctx, "circulation.overdue_report")
	defer func() { s.finish(ctx, span, "overdue_report", err) }()

	now := s.clock()
	txs, err := s.selectTransactions(ctx, now, "t.status = ? AND t.due_date < ?",
		"ORDER BY t.due_date ASC, t.id ASC", StatusActive, now)
	if err != nil {
		return nil, err
	}

	report = &OverdueReport{
		Entries:     make([]OverdueEntry, 0, len(txs)),
		TotalFine:   decimal.Zero,
		GeneratedAt: now,
	}
	for _, t := range txs {
		days, fine := s.policy.Assess(t.DueDate, now)
		report.Entries = append(report.Entries, OverdueEntry{
			Transaction:        t,
			CurrentDaysOverdue: days,
			CurrentFine:        fine,
		})
		report.TotalFine = report.TotalFine.Add(fine)
	}
	report.TotalOverdue = len(report.Entries)

	span.SetAttributes(attribute.Int("overdue.count", report.TotalOverdue))
	return report, nil
}

// Events returns the audit trail of one transaction.
func (s *service) Events(ctx context.Context, transactionID uuid.UUID) (events []eventstore.Event, err error) {
	ctx, span := s.startSpan(ctx, "circulation.events", attribute.String("transaction.id", transactionID.String()))
	defer func() { s.finish(ctx, span, "events", err) }()

	if _, err := getTransaction(ctx, s.db, transactionID); err != nil {
		return nil, err
	}
	return s.eventStore.LoadEvents(ctx, transactionID, 0, 0)
}

func (s *service) studentExists(ctx context.Context, id uuid.UUID) error {
	var found int
	err := s.db.GetContext(ctx, &found, s.db.Rebind(`SELECT 1 FROM students WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return errStudentNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to look up student: %w", err)
	}
	return nil
}

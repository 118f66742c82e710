// internal/catalog/implementation.go
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"librarydesk/internal/database"
	"librarydesk/internal/scancode"
	"librarydesk/pkg/eventstore"
)

const bookColumns = `id, title, author, isbn, description, cover_image, total_copies, available_copies, scan_code, version, created_at`

// service implements the Service interface.
type service struct {
	eventStore *eventstore.EventStore
	db         *sqlx.DB
	now        func() time.Time
}

// NewService creates a new catalog service instance.
func NewService(es *eventstore.EventStore, db *sqlx.DB) Service {
	return &service{
		eventStore: es,
		db:         db,
		now:        func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// AddBook validates the input and stores a new book with all copies available.
func (s *service) AddBook(ctx context.Context, in NewBook) (*Book, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidBook)
	}
	if in.TotalCopies < 1 {
		return nil, fmt.Errorf("%w: total copies must be a positive integer", ErrInvalidBook)
	}

	id := uuid.New()
	book := &Book{
		ID:              id,
		Title:           title,
		Author:          strings.TrimSpace(in.Author),
		Description:     strings.TrimSpace(in.Description),
		CoverImage:      strings.TrimSpace(in.CoverImage),
		TotalCopies:     in.TotalCopies,
		AvailableCopies: in.TotalCopies,
		ScanCode:        scancode.Encode(id),
		Version:         1,
		CreatedAt:       s.now(),
	}
	if isbn := strings.TrimSpace(in.ISBN); isbn != "" {
		book.ISBN = &isbn
	}

	event, err := eventstore.NewEvent("BookAdded", BookAddedEvent{
		ID:          id,
		Title:       book.Title,
		Author:      book.Author,
		ISBN:        strings.TrimSpace(in.ISBN),
		TotalCopies: book.TotalCopies,
	})
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.insertBook(ctx, tx, book); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrDuplicateISBN
		}
		return nil, fmt.Errorf("failed to insert book: %w", err)
	}

	if err := s.eventStore.Append(ctx, tx, id, "book", 0, []eventstore.Event{event}); err != nil {
		return nil, fmt.Errorf("failed to append event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit book: %w", err)
	}

	return book, nil
}

func (s *service) insertBook(ctx context.Context, tx *sqlx.Tx, book *Book) error {
	query := `
		INSERT INTO books (` + bookColumns + `)
		VALUES (:id, :title, :author, :isbn, :description, :cover_image, :total_copies, :available_copies, :scan_code, :version, :created_at)
	`
	_, err := tx.NamedExecContext(ctx, query, book)
	return err
}

// GetBook retrieves a book by its ID.
func (s *service) GetBook(ctx context.Context, id uuid.UUID) (*Book, error) {
	book := &Book{}
	err := s.db.GetContext(ctx, book, s.db.Rebind(`SELECT `+bookColumns+` FROM books WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get book: %w", err)
	}
	return book, nil
}

// ListBooks returns every book, newest first.
func (s *service) ListBooks(ctx context.Context) ([]*Book, error) {
	books := make([]*Book, 0)
	err := s.db.SelectContext(ctx, &books, `SELECT `+bookColumns+` FROM books ORDER BY created_at DESC, title ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	return books, nil
}

// Search finds books whose title or author contains the query.
func (s *service) Search(ctx context.Context, query string) ([]*Book, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: search query is required", ErrInvalidBook)
	}

	pattern := "%" + strings.ToLower(query) + "%"
	books := make([]*Book, 0)
	err := s.db.SelectContext(ctx, &books, s.db.Rebind(`
		SELECT `+bookColumns+`
		FROM books
		WHERE LOWER(title) LIKE ? OR LOWER(author) LIKE ?
		ORDER BY title ASC
		LIMIT 10
	`), pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("database search failed: %w", err)
	}
	return books, nil
}

// Resolve looks a book up from a scanned payload or a typed-in id.
func (s *service) Resolve(ctx context.Context, code string) (*Book, error) {
	id, err := scancode.Decode(code)
	if err != nil {
		return nil, err
	}
	return s.GetBook(ctx, id)
}

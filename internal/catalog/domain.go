// internal/catalog/domain.go
package catalog

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("book not found")
	ErrInvalidBook   = errors.New("invalid book")
	ErrDuplicateISBN = errors.New("book with this ISBN already exists")
)

// Book is a title held by the library. AvailableCopies is owned by the
// circulation service; the catalog only sets it when the book is added.
type Book struct {
	ID              uuid.UUID `json:"id" db:"id"`
	Title           string    `json:"title" db:"title"`
	Author          string    `json:"author" db:"author"`
	ISBN            *string   `json:"isbn,omitempty" db:"isbn"`
	Description     string    `json:"description" db:"description"`
	CoverImage      string    `json:"coverImage" db:"cover_image"`
	TotalCopies     int       `json:"totalCopies" db:"total_copies"`
	AvailableCopies int       `json:"availableCopies" db:"available_copies"`
	ScanCode        string    `json:"scanCode" db:"scan_code"`
	Version         int       `json:"version" db:"version"`
	CreatedAt       time.Time `json:"createdAt" db:"created_at"`
}

// NewBook is the input for adding a book.
type NewBook struct {
	Title       string
	Author      string
	ISBN        string
	Description string
	CoverImage  string
	TotalCopies int
}

// BookAddedEvent is appended when a new book enters the catalog.
type BookAddedEvent struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	ISBN        string    `json:"isbn,omitempty"`
	TotalCopies int       `json:"total_copies"`
}

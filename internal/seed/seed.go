// Package seed loads a small sample catalog and roster for local use.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"librarydesk/internal/catalog"
	"librarydesk/internal/membership"
)

// SampleStudent is one roster entry of the sample data.
type SampleStudent struct {
	Name   string
	Email  string
	RollNo string
}

var SampleBooks = []catalog.NewBook{
	{
		Title:       "Introduction to Algorithms",
		Author:      "Thomas H. Cormen",
		ISBN:        "9780262033848",
		Description: "A comprehensive guide to algorithms and data structures.",
		TotalCopies: 3,
	},
	{
		Title:       "Clean Code",
		Author:      "Robert C. Martin",
		ISBN:        "9780132350884",
		Description: "A handbook of agile software craftsmanship.",
		TotalCopies: 2,
	},
	{
		Title:       "Design Patterns",
		Author:      "Erich Gamma et al.",
		ISBN:        "9780201633610",
		Description: "Elements of reusable object-oriented software.",
		TotalCopies: 1,
	},
	{
		Title:       "You Don't Know JS",
		Author:      "Kyle Simpson",
		ISBN:        "9781491904244",
		Description: "Deep dive into JavaScript mechanics.",
		TotalCopies: 4,
	},
}

var SampleStudents = []SampleStudent{
	{Name: "Aarav Patel", Email: "aarav@example.com", RollNo: "BTECH001"},
	{Name: "Meera Sharma", Email: "meera@example.com", RollNo: "BTECH002"},
	{Name: "Ravi Kumar", Email: "ravi@example.com", RollNo: "BTECH003"},
}

// Summary counts what a Run inserted and what was already present.
type Summary struct {
	BooksInserted    int `json:"booksInserted"`
	BooksSkipped     int `json:"booksSkipped"`
	StudentsInserted int `json:"studentsInserted"`
	StudentsSkipped  int `json:"studentsSkipped"`
}

// Run adds the sample books and students through the services. Rows that
// already exist are skipped, so running it twice is harmless.
func Run(ctx context.Context, books catalog.Service, students membership.Service, log *slog.Logger) (Summary, error) {
	var sum Summary

	for _, b := range SampleBooks {
		added, err := books.AddBook(ctx, b)
		switch {
		case errors.Is(err, catalog.ErrDuplicateISBN):
			sum.BooksSkipped++
			log.DebugContext(ctx, "book already seeded", "isbn", b.ISBN)
		case err != nil:
			return sum, fmt.Errorf("seed book %q: %w", b.Title, err)
		default:
			sum.BooksInserted++
			log.InfoContext(ctx, "seeded book", "book_id", added.ID, "title", added.Title, "scan_code", added.ScanCode)
		}
	}

	for _, s := range SampleStudents {
		added, err := students.RegisterStudent(ctx, s.Name, s.Email, s.RollNo)
		switch {
		case errors.Is(err, membership.ErrDuplicateStudent):
			sum.StudentsSkipped++
			log.DebugContext(ctx, "student already seeded", "roll_no", s.RollNo)
		case err != nil:
			return sum, fmt.Errorf("seed student %q: %w", s.RollNo, err)
		default:
			sum.StudentsInserted++
			log.InfoContext(ctx, "seeded student", "student_id", added.ID, "roll_no", added.RollNo)
		}
	}

	return sum, nil
}

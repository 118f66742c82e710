// internal/membership/implementation.go
package membership

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/time/rate"

	"librarydesk/internal/database"
	"librarydesk/pkg/eventstore"
)

const studentColumns = `id, name, email, roll_no, version, created_at`

// service implements the Service interface.
type service struct {
	eventStore  *eventstore.EventStore
	db          *sqlx.DB
	rateLimiter *rate.Limiter
	now         func() time.Time
}

// NewService creates a new student registry. registrationsPerMinute <= 0
// disables the registration limiter.
func NewService(es *eventstore.EventStore, db *sqlx.DB, registrationsPerMinute int) Service {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if registrationsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(registrationsPerMinute)), registrationsPerMinute)
	}

	return &service{
		eventStore:  es,
		db:          db,
		rateLimiter: limiter,
		now:         func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// RegisterStudent creates a new student.
func (s *service) RegisterStudent(ctx context.Context, name, email, rollNo string) (*Student, error) {
	name = strings.TrimSpace(name)
	rollNo = strings.TrimSpace(rollNo)
	email = strings.ToLower(strings.TrimSpace(email))

	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidStudent)
	}
	if rollNo == "" {
		return nil, fmt.Errorf("%w: roll number is required", ErrInvalidStudent)
	}

	if !s.rateLimiter.Allow() {
		return nil, ErrRateLimited
	}

	id := uuid.New()
	student := &Student{
		ID:        id,
		Name:      name,
		RollNo:    rollNo,
		Version:   1,
		CreatedAt: s.now(),
	}
	if email != "" {
		student.Email = &email
	}

	event, err := eventstore.NewEvent("StudentRegistered", StudentRegisteredEvent{
		ID:     id,
		Name:   name,
		Email:  email,
		RollNo: rollNo,
	})
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO students (`+studentColumns+`)
		VALUES (:id, :name, :email, :roll_no, :version, :created_at)
	`, student)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrDuplicateStudent
		}
		return nil, fmt.Errorf("failed to insert student: %w", err)
	}

	if err := s.eventStore.Append(ctx, tx, id, "student", 0, []eventstore.Event{event}); err != nil {
		return nil, fmt.Errorf("failed to append event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit student: %w", err)
	}

	return student, nil
}

// GetStudent retrieves a student by their ID.
func (s *service) GetStudent(ctx context.Context, id uuid.UUID) (*Student, error) {
	student := &Student{}
	err := s.db.GetContext(ctx, student, s.db.Rebind(`SELECT `+studentColumns+` FROM students WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get student: %w", err)
	}
	return student, nil
}

// ListStudents returns every student ordered by roll number.
func (s *service) ListStudents(ctx context.Context) ([]*Student, error) {
	students := make([]*Student, 0)
	if err := s.db.SelectContext(ctx, &students, `SELECT `+studentColumns+` FROM students ORDER BY roll_no ASC`); err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	return students, nil
}

// internal/membership/domain.go
package membership

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound         = errors.New("student not found")
	ErrInvalidStudent   = errors.New("invalid student")
	ErrDuplicateStudent = errors.New("student with this roll number or email already exists")
	ErrRateLimited      = errors.New("rate limit exceeded")
)

// Student is a library patron.
type Student struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Email     *string   `json:"email,omitempty" db:"email"`
	RollNo    string    `json:"rollNo" db:"roll_no"`
	Version   int       `json:"version" db:"version"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// StudentRegisteredEvent is appended when a student is registered.
type StudentRegisteredEvent struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Email  string    `json:"email,omitempty"`
	RollNo string    `json:"roll_no"`
}

// internal/membership/service.go
package membership

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for the student registry.
type Service interface {
	RegisterStudent(ctx context.Context, name, email, rollNo string) (*Student, error)
	GetStudent(ctx context.Context, id uuid.UUID) (*Student, error)
	ListStudents(ctx context.Context) ([]*Student, error)
}

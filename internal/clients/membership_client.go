// internal/clients/membership_client.go
package clients

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"librarydesk/internal/membership"
)

type MembershipClient struct {
	base
}

func NewMembershipClient(baseURL string, opts ...Option) *MembershipClient {
	return &MembershipClient{base: newBase("membership", baseURL, opts...)}
}

func (c *MembershipClient) RegisterStudent(ctx context.Context, name, email, rollNo string) (*membership.Student, error) {
	req := map[string]string{"name": name, "email": email, "rollNo": rollNo}
	var student membership.Student
	if err := c.do(ctx, http.MethodPost, "/api/students", req, &student); err != nil {
		return nil, err
	}
	return &student, nil
}

func (c *MembershipClient) GetStudent(ctx context.Context, id uuid.UUID) (*membership.Student, error) {
	var student membership.Student
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/students/%s", id), nil, &student); err != nil {
		return nil, err
	}
	return &student, nil
}

// internal/membership/service.go
package membership

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for the membership service.
type Service interface {
	Register(ctx context.Context, name, email string, role Role) (*Member, error)
	GetMember(ctx context.Context, id uuid.UUID) (*Member, error)
	DisplayName(ctx context.Context, id uuid.UUID) (string, error)
	ListByRole(ctx context.Context, role Role) ([]*Member, error)
	// StaffIDs lists everyone who reviews requests: staff and admins.
	StaffIDs(ctx context.Context) ([]uuid.UUID, error)
	// LoadRoster upserts the members listed in a YAML file.
	LoadRoster(ctx context.Context, path string) (int, error)
}

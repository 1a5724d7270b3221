// internal/membership/domain.go
package membership

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Collection is the document collection holding members.
const Collection = "members"

var (
	ErrMemberNotFound = errors.New("member not found")
	ErrEmailTaken     = errors.New("email already registered")
	ErrInvalidRole    = errors.New("unknown role")
)

// Role is what a member may do. Capabilities are pure functions of the role.
type Role string

const (
	RoleBorrower Role = "borrower"
	RoleStaff    Role = "staff"
	RoleAdmin    Role = "admin"
)

// ParseRole accepts the role names case-insensitively.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleBorrower:
		return RoleBorrower, nil
	case RoleStaff:
		return RoleStaff, nil
	case RoleAdmin:
		return RoleAdmin, nil
	}
	return "", ErrInvalidRole
}

func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// CanBorrow reports whether the role may open borrow requests and keep a watchlist.
func CanBorrow(r Role) bool {
	return r == RoleBorrower || r == RoleStaff || r == RoleAdmin
}

// CanReview reports whether the role may approve, reject and check in requests.
func CanReview(r Role) bool {
	return r == RoleStaff || r == RoleAdmin
}

// CanCatalogue reports whether the role may add, resize and remove items.
func CanCatalogue(r Role) bool {
	return r == RoleAdmin
}

// Member represents a library member.
type Member struct {
	ID        uuid.UUID `json:"id" yaml:"id"`
	Email     string    `json:"email" yaml:"email"`
	Name      string    `json:"name" yaml:"name"`
	Role      Role      `json:"role" yaml:"role"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
}

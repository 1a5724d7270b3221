// internal/circulation/service.go
package circulation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Service defines the interface for the circulation service.
type Service interface {
	// CreateRequest opens a pending request and tells staffIDs about it.
	CreateRequest(ctx context.Context, borrowerID, itemID uuid.UUID, staffIDs []uuid.UUID) (*Request, error)
	// Approve lends a copy. A nil dueAt means now plus the loan period.
	Approve(ctx context.Context, requestID, reviewerID uuid.UUID, dueAt *time.Time) (*Request, error)
	Reject(ctx context.Context, requestID, reviewerID uuid.UUID) (*Request, error)
	ReturnItem(ctx context.Context, requestID uuid.UUID) (*ReturnResult, error)
	GetRequest(ctx context.Context, requestID uuid.UUID) (*Request, error)
	// FindActive lists requests in status, oldest request first.
	FindActive(ctx context.Context, status Status) ([]*Request, error)
	// FindByBorrower lists a borrower's history, newest request first.
	FindByBorrower(ctx context.Context, borrowerID uuid.UUID) ([]*Request, error)
}

// RestockHandler is told when a return puts the first copy of an item back.
type RestockHandler interface {
	OnRestock(ctx context.Context, itemID uuid.UUID) error
}

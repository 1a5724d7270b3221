// internal/inventory/service.go
package inventory

import (
	"context"

	"github.com/google/uuid"
)

// Ledger is the authoritative availability counter per item.
type Ledger interface {
	// Reserve takes one copy and returns the new available count.
	Reserve(ctx context.Context, itemID uuid.UUID) (int, error)
	// Release puts one copy back.
	Release(ctx context.Context, itemID uuid.UUID) (ReleaseResult, error)
	Query(ctx context.Context, itemID uuid.UUID) (Counts, error)
}

// Service is the ledger plus catalogue maintenance.
type Service interface {
	Ledger
	AddItem(ctx context.Context, isbn, title, author string, totalCopies int) (*Item, error)
	GetItem(ctx context.Context, id uuid.UUID) (*Item, error)
	ListItems(ctx context.Context) ([]*Item, error)
	SetTotalCopies(ctx context.Context, id uuid.UUID, total int) (*Item, bool, error)
	RemoveItem(ctx context.Context, id uuid.UUID) error
}

// ReferenceChecker reports whether live borrow requests still point at an item.
type ReferenceChecker func(ctx context.Context, itemID uuid.UUID) (bool, error)

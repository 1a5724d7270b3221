// internal/watchlist/service.go
package watchlist

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for the watchlist manager.
type Service interface {
	// Watch is idempotent: watching twice returns the first entry.
	Watch(ctx context.Context, borrowerID, itemID uuid.UUID) (*Entry, error)
	Unwatch(ctx context.Context, borrowerID, itemID uuid.UUID) (bool, error)
	ListByBorrower(ctx context.Context, borrowerID uuid.UUID) ([]*Entry, error)
	Watchers(ctx context.Context, itemID uuid.UUID) ([]*Entry, error)
	// OnRestock tells every watcher the item is back and clears them.
	OnRestock(ctx context.Context, itemID uuid.UUID) error
}

// internal/watchlist/domain.go
package watchlist

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Collection is the document collection holding watchlist entries.
const Collection = "watchlist"

var ErrItemAvailable = errors.New("item has copies available")

var entryNamespace = uuid.MustParse("5e0f2a8c-7b41-4d93-8c6e-2f1d9a3b7c40")

// Entry is a borrower's standing interest in an unavailable item.
type Entry struct {
	ID         uuid.UUID `json:"id"`
	BorrowerID uuid.UUID `json:"borrower_id"`
	ItemID     uuid.UUID `json:"item_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// entryID is fixed per (borrower, item) so a second watch finds the first.
func entryID(borrowerID, itemID uuid.UUID) uuid.UUID {
	name := make([]byte, 0, 32)
	name = append(name, borrowerID[:]...)
	name = append(name, itemID[:]...)
	return uuid.NewSHA1(entryNamespace, name)
}

// internal/inventory/domain.go
package inventory

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Collection is the document collection holding items.
const Collection = "items"

var (
	ErrItemNotFound      = errors.New("item not found")
	ErrNoCopiesAvailable = errors.New("no copies available")
	ErrAtCapacity        = errors.New("all copies already on shelf")
	ErrBelowLoaned       = errors.New("total copies below copies on loan")
	ErrItemInUse         = errors.New("item has active borrow requests")
)

// Item represents a book or other lendable item with its copy counts.
type Item struct {
	ID              uuid.UUID `json:"id"`
	ISBN            string    `json:"isbn,omitempty"`
	Title           string    `json:"title"`
	Author          string    `json:"author,omitempty"`
	TotalCopies     int       `json:"total_copies"`
	AvailableCopies int       `json:"available_copies"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// OnLoan is the number of copies currently lent out.
func (i *Item) OnLoan() int {
	return i.TotalCopies - i.AvailableCopies
}

// Counts is a point-in-time view of an item's copy counters.
type Counts struct {
	ItemID          uuid.UUID `json:"item_id"`
	TotalCopies     int       `json:"total_copies"`
	AvailableCopies int       `json:"available_copies"`
}

// ReleaseResult reports the counter after a release and whether the item
// went from zero available copies to some.
type ReleaseResult struct {
	AvailableCopies int  `json:"available_copies"`
	Restocked       bool `json:"restocked"`
}

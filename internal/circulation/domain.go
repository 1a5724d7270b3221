// internal/circulation/domain.go
package circulation

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	// Collection holds borrow requests.
	Collection = "requests"
	// claimCollection holds one document per (borrower, item) pair with a
	// pending request. Its fixed id makes a second pending request collide.
	claimCollection = "pending_claims"

	DefaultLoanPeriod = 14 * 24 * time.Hour

	// staleClaimAfter is how long a claim may point at a request that was
	// never written before another request may take it over.
	staleClaimAfter = time.Minute
)

var (
	ErrRequestNotFound  = errors.New("borrow request not found")
	ErrDuplicatePending = errors.New("a pending request for this item already exists")
	ErrAlreadyProcessed = errors.New("request already processed")
	ErrNotApproved      = errors.New("request is not on loan")
)

var claimNamespace = uuid.MustParse("9b1f6c52-3d1a-4f7e-a0d4-5c2e8b7f1a90")

// Status is a borrow request state. Rejected and returned are terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusReturned Status = "returned"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusReturned:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusReturned
}

// Request is one borrower's lifecycle record for one item.
type Request struct {
	ID          uuid.UUID  `json:"id"`
	BorrowerID  uuid.UUID  `json:"borrower_id"`
	ItemID      uuid.UUID  `json:"item_id"`
	Status      Status     `json:"status"`
	RequestedAt time.Time  `json:"requested_at"`
	ReviewedBy  *uuid.UUID `json:"reviewed_by,omitempty"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	RejectedAt  *time.Time `json:"rejected_at,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	ReturnedAt  *time.Time `json:"returned_at,omitempty"`
}

// ReturnResult is what returning a loan reports back.
type ReturnResult struct {
	Request   *Request `json:"request"`
	Late      bool     `json:"late"`
	Restocked bool     `json:"restocked"`
}

// IsLate reports whether a return at returnedAt missed dueAt.
func IsLate(returnedAt time.Time, dueAt *time.Time) bool {
	return dueAt != nil && returnedAt.After(*dueAt)
}

type pendingClaim struct {
	BorrowerID uuid.UUID `json:"borrower_id"`
	ItemID     uuid.UUID `json:"item_id"`
	RequestID  uuid.UUID `json:"request_id"`
	ClaimedAt  time.Time `json:"claimed_at"`
}

func claimID(borrowerID, itemID uuid.UUID) string {
	name := make([]byte, 0, 32)
	name = append(name, borrowerID[:]...)
	name = append(name, itemID[:]...)
	return uuid.NewSHA1(claimNamespace, name).String()
}

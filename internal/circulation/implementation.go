// internal/circulation/implementation.go
package circulation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"lendhub/internal/apperr"
	"lendhub/internal/inventory"
	"lendhub/internal/notification"
	"lendhub/pkg/docstore"
	"lendhub/pkg/logger"
)

// service implements the Service interface.
//
// Every transition writes with the version it read, so two reviewers racing
// on one request cannot both win. Approve reserves before writing and gives
// the copy back if the write loses.
type service struct {
	store      docstore.Store
	inventory  inventory.Service
	notifier   notification.Emitter
	restock    RestockHandler
	log        *logger.Logger
	loanPeriod time.Duration
	now        func() time.Time
}

// Option configures the circulation service.
type Option func(*service)

// WithLoanPeriod sets the default due date offset used by Approve.
func WithLoanPeriod(d time.Duration) Option {
	return func(s *service) {
		if d > 0 {
			s.loanPeriod = d
		}
	}
}

// WithRestockHandler is notified when a return makes an item available again.
func WithRestockHandler(h RestockHandler) Option {
	return func(s *service) { s.restock = h }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// NewService creates a new circulation service instance.
func NewService(store docstore.Store, inv inventory.Service, notifier notification.Emitter, log *logger.Logger, options ...Option) Service {
	if log == nil {
		log = logger.NewDefault("circulation")
	}
	s := &service{
		store:      store,
		inventory:  inv,
		notifier:   notifier,
		log:        log,
		loanPeriod: DefaultLoanPeriod,
		now:        time.Now,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// CreateRequest opens a pending request for borrowerID on itemID.
func (s *service) CreateRequest(ctx context.Context, borrowerID, itemID uuid.UUID, staffIDs []uuid.UUID) (*Request, error) {
	const op = "circulation.create_request"

	if borrowerID == uuid.Nil {
		return nil, apperr.Validation(op, "borrower id is required")
	}
	if itemID == uuid.Nil {
		return nil, apperr.Validation(op, "item id is required")
	}

	item, err := s.inventory.GetItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req := &Request{
		ID:          uuid.New(),
		BorrowerID:  borrowerID,
		ItemID:      itemID,
		Status:      StatusPending,
		RequestedAt: s.now().UTC(),
	}

	// Step 1: Claim the (borrower, item) pair
	if err := s.claim(ctx, op, req); err != nil {
		return nil, err
	}

	// Step 2: Store the request, giving the claim back if that fails
	if _, err := s.store.Insert(ctx, Collection, req.ID.String(), req); err != nil {
		s.releaseClaim(ctx, req)
		return nil, apperr.Wrap(apperr.KindInternal, op, fmt.Errorf("failed to store request: %w", err))
	}

	// Step 3: Tell the reviewers
	if s.notifier != nil {
		s.notifier.Notify(ctx, notification.TypeNewRequest, notification.NewRequestPayload{
			RequestID:  req.ID,
			BorrowerID: borrowerID,
			ItemID:     itemID,
			ItemTitle:  item.Title,
			StaffIDs:   staffIDs,
		})
	}

	s.log.WithField("request_id", req.ID).
		WithField("borrower_id", borrowerID).
		WithField("item_id", itemID).
		Info("borrow request created")
	return req, nil
}

// claim takes the pending slot for the request's pair. A claim left behind by
// a request that is no longer pending is taken over.
func (s *service) claim(ctx context.Context, op string, req *Request) error {
	id := claimID(req.BorrowerID, req.ItemID)
	c := pendingClaim{BorrowerID: req.BorrowerID, ItemID: req.ItemID, RequestID: req.ID, ClaimedAt: req.RequestedAt}

	_, err := s.store.Insert(ctx, claimCollection, id, c)
	if err == nil {
		return nil
	}
	if !errors.Is(err, docstore.ErrAlreadyExists) {
		return apperr.Wrap(apperr.KindInternal, op, fmt.Errorf("failed to claim pending slot: %w", err))
	}

	doc, err := s.store.Get(ctx, claimCollection, id)
	if errors.Is(err, docstore.ErrNotFound) {
		// released between our insert and read; one more try
		if _, err := s.store.Insert(ctx, claimCollection, id, c); err == nil {
			return nil
		}
		return apperr.ConflictErr(op, ErrDuplicatePending)
	}
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, op, err)
	}

	var held pendingClaim
	if err := doc.Decode(&held); err != nil {
		return apperr.Wrap(apperr.KindInternal, op, err)
	}
	holder, _, err := s.load(ctx, op, held.RequestID)
	switch {
	case err == nil && holder.Status == StatusPending:
		return apperr.ConflictErr(op, ErrDuplicatePending)
	case apperr.Is(err, apperr.KindNotFound):
		// the holder may still be between claiming and writing its request
		if req.RequestedAt.Sub(held.ClaimedAt) < staleClaimAfter {
			return apperr.ConflictErr(op, ErrDuplicatePending)
		}
	case err != nil:
		return err
	}

	s.log.WithField("claim_id", id).WithField("stale_request_id", held.RequestID).Warn("taking over stale pending claim")
	if _, err := s.store.Update(ctx, claimCollection, id, docstore.Fields{"request_id": req.ID, "claimed_at": req.RequestedAt}, doc.Version); err != nil {
		if errors.Is(err, docstore.ErrConcurrencyConflict) || errors.Is(err, docstore.ErrNotFound) {
			return apperr.ConflictErr(op, ErrDuplicatePending)
		}
		return apperr.Wrap(apperr.KindInternal, op, err)
	}
	return nil
}

func (s *service) releaseClaim(ctx context.Context, req *Request) {
	ctx = context.WithoutCancel(ctx)
	if _, err := s.store.Delete(ctx, claimCollection, claimID(req.BorrowerID, req.ItemID)); err != nil {
		s.log.WithError(err).WithField("request_id", req.ID).Warn("failed to release pending claim")
	}
}

// Approve lends one copy of the requested item.
func (s *service) Approve(ctx context.Context, requestID, reviewerID uuid.UUID, dueAt *time.Time) (*Request, error) {
	const op = "circulation.approve"

	if reviewerID == uuid.Nil {
		return nil, apperr.Validation(op, "reviewer id is required")
	}
	req, version, err := s.load(ctx, op, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != StatusPending {
		return nil, apperr.ConflictErr(op, ErrAlreadyProcessed)
	}

	now := s.now().UTC()
	due := now.Add(s.loanPeriod)
	if dueAt != nil {
		if !dueAt.After(now) {
			return nil, apperr.Validation(op, "due date must be in the future")
		}
		due = dueAt.UTC()
	}

	// Step 1: Take a copy. Duplicate approvals of one request each hold a
	// copy until the losers compensate, so another request for the same
	// item can see a Conflict in that window.
	if _, err := s.inventory.Reserve(ctx, req.ItemID); err != nil {
		return nil, fmt.Errorf("approve request: %w", err)
	}

	// Compensation function for the reserved copy
	compensation := func() {
		s.log.WithField("request_id", req.ID).WithField("item_id", req.ItemID).Warn("compensating failed approval: releasing copy")
		if _, err := s.inventory.Release(context.WithoutCancel(ctx), req.ItemID); err != nil {
			s.log.WithError(err).WithField("item_id", req.ItemID).Error("failed to compensate reserved copy")
		}
	}

	// Step 2: Move the request to approved
	_, err = s.store.Update(ctx, Collection, req.ID.String(), docstore.Fields{
		"status":      StatusApproved,
		"approved_at": now,
		"due_at":      due,
		"reviewed_by": reviewerID,
	}, version)
	if err != nil {
		compensation()
		if errors.Is(err, docstore.ErrConcurrencyConflict) {
			return nil, apperr.ConflictErr(op, ErrAlreadyProcessed)
		}
		return nil, apperr.Wrap(apperr.KindInternal, op, err)
	}

	// Step 3: Free the pending slot
	s.releaseClaim(ctx, req)

	req.Status = StatusApproved
	req.ApprovedAt = &now
	req.DueAt = &due
	req.ReviewedBy = &reviewerID

	s.log.WithField("request_id", req.ID).WithField("due_at", due).Info("borrow request approved")
	return req, nil
}

// Reject closes a pending request without touching inventory.
func (s *service) Reject(ctx context.Context, requestID, reviewerID uuid.UUID) (*Request, error) {
	const op = "circulation.reject"

	if reviewerID == uuid.Nil {
		return nil, apperr.Validation(op, "reviewer id is required")
	}
	req, version, err := s.load(ctx, op, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != StatusPending {
		return nil, apperr.ConflictErr(op, ErrAlreadyProcessed)
	}

	now := s.now().UTC()
	_, err = s.store.Update(ctx, Collection, req.ID.String(), docstore.Fields{
		"status":      StatusRejected,
		"rejected_at": now,
		"reviewed_by": reviewerID,
	}, version)
	if errors.Is(err, docstore.ErrConcurrencyConflict) {
		return nil, apperr.ConflictErr(op, ErrAlreadyProcessed)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, op, err)
	}
	s.releaseClaim(ctx, req)

	req.Status = StatusRejected
	req.RejectedAt = &now
	req.ReviewedBy = &reviewerID

	s.log.WithField("request_id", req.ID).Info("borrow request rejected")
	return req, nil
}

// ReturnItem checks a loaned copy back in.
func (s *service) ReturnItem(ctx context.Context, requestID uuid.UUID) (*ReturnResult, error) {
	const op = "circulation.return_item"

	req, version, err := s.load(ctx, op, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != StatusApproved {
		return nil, apperr.ConflictErr(op, ErrNotApproved)
	}

	// Step 1: Close the loan; a concurrent return loses here
	now := s.now().UTC()
	_, err = s.store.Update(ctx, Collection, req.ID.String(), docstore.Fields{
		"status":      StatusReturned,
		"returned_at": now,
	}, version)
	if errors.Is(err, docstore.ErrConcurrencyConflict) {
		return nil, apperr.ConflictErr(op, ErrNotApproved)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, op, err)
	}
	req.Status = StatusReturned
	req.ReturnedAt = &now

	// Step 2: Put the copy back
	release, err := s.inventory.Release(ctx, req.ItemID)
	if err != nil {
		s.log.WithError(err).WithField("request_id", req.ID).WithField("item_id", req.ItemID).
			Error("request returned but copy could not be released")
		return nil, fmt.Errorf("return request: %w", err)
	}

	// Step 3: Wake the watchlist
	if release.Restocked && s.restock != nil {
		if err := s.restock.OnRestock(ctx, req.ItemID); err != nil {
			s.log.WithError(err).WithField("item_id", req.ItemID).Warn("restock handling failed")
		}
	}

	result := &ReturnResult{
		Request:   req,
		Late:      IsLate(now, req.DueAt),
		Restocked: release.Restocked,
	}
	s.log.WithField("request_id", req.ID).WithField("late", result.Late).Info("item returned")
	return result, nil
}

// GetRequest retrieves a request by its ID.
func (s *service) GetRequest(ctx context.Context, requestID uuid.UUID) (*Request, error) {
	req, _, err := s.load(ctx, "circulation.get_request", requestID)
	return req, err
}

func (s *service) load(ctx context.Context, op string, id uuid.UUID) (*Request, int, error) {
	if id == uuid.Nil {
		return nil, 0, apperr.Validation(op, "request id is required")
	}
	doc, err := s.store.Get(ctx, Collection, id.String())
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, 0, apperr.NotFoundErr(op, ErrRequestNotFound)
	}
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.KindInternal, op, err)
	}
	req := &Request{}
	if err := doc.Decode(req); err != nil {
		return nil, 0, apperr.Wrap(apperr.KindInternal, op, fmt.Errorf("failed to decode request: %w", err))
	}
	return req, doc.Version, nil
}

func (s *service) FindActive(ctx context.Context, status Status) ([]*Request, error) {
	const op = "circulation.find_active"

	if !status.Valid() {
		return nil, apperr.Validation(op, fmt.Sprintf("unknown status %q", status))
	}
	reqs, err := s.query(ctx, op, docstore.Filter{"status": status})
	if err != nil {
		return nil, err
	}
	sort.Slice(reqs, func(i, j int) bool {
		if !reqs[i].RequestedAt.Equal(reqs[j].RequestedAt) {
			return reqs[i].RequestedAt.Before(reqs[j].RequestedAt)
		}
		return reqs[i].ID.String() < reqs[j].ID.String()
	})
	return reqs, nil
}

func (s *service) FindByBorrower(ctx context.Context, borrowerID uuid.UUID) ([]*Request, error) {
	const op = "circulation.find_by_borrower"

	if borrowerID == uuid.Nil {
		return nil, apperr.Validation(op, "borrower id is required")
	}
	reqs, err := s.query(ctx, op, docstore.Filter{"borrower_id": borrowerID})
	if err != nil {
		return nil, err
	}
	sort.Slice(reqs, func(i, j int) bool {
		if !reqs[i].RequestedAt.Equal(reqs[j].RequestedAt) {
			return reqs[i].RequestedAt.After(reqs[j].RequestedAt)
		}
		return reqs[i].ID.String() < reqs[j].ID.String()
	})
	return reqs, nil
}

func (s *service) query(ctx context.Context, op string, filter docstore.Filter) ([]*Request, error) {
	docs, err := s.store.Query(ctx, Collection, filter)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, op, err)
	}
	reqs, err := docstore.DecodeAll[*Request](docs)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, op, err)
	}
	return reqs, nil
}

// HasActiveRequests reports, for inventory removal checks, whether any
// pending or approved request references an item.
func HasActiveRequests(store docstore.Store) inventory.ReferenceChecker {
	return func(ctx context.Context, itemID uuid.UUID) (bool, error) {
		for _, status := range []Status{StatusPending, StatusApproved} {
			docs, err := store.Query(ctx, Collection, docstore.Filter{"item_id": itemID, "status": status})
			if err != nil {
				return false, err
			}
			if len(docs) > 0 {
				return true, nil
			}
		}
		return false, nil
	}
}

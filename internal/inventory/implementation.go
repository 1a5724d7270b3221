// internal/inventory/implementation.go
package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"lendhub/internal/apperr"
	"lendhub/pkg/docstore"
	"lendhub/pkg/logger"
)

// service implements the Service interface.
//
// Counter writes take the per-item lock and then write with the version
// they read, so two processes sharing a database still cannot both take
// the last copy: the loser gets a version conflict and re-reads.
type service struct {
	store        docstore.Store
	log          *logger.Logger
	locks        *itemLocks
	references   ReferenceChecker
	retryOptions []docstore.RetryOption
	now          func() time.Time
}

// Option configures the inventory service.
type Option func(*service)

// WithReferenceChecker guards RemoveItem against items still on loan or requested.
func WithReferenceChecker(check ReferenceChecker) Option {
	return func(s *service) { s.references = check }
}

// WithRetryOptions tunes the optimistic retry around counter writes.
func WithRetryOptions(options ...docstore.RetryOption) Option {
	return func(s *service) { s.retryOptions = options }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// NewService creates a new inventory service instance.
func NewService(store docstore.Store, log *logger.Logger, options ...Option) Service {
	if log == nil {
		log = logger.NewDefault("inventory")
	}
	s := &service{
		store: store,
		log:   log,
		locks: newItemLocks(),
		now:   time.Now,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// AddItem catalogues a new item with every copy on the shelf.
func (s *service) AddItem(ctx context.Context, isbn, title, author string, totalCopies int) (*Item, error) {
	const op = "inventory.add_item"

	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperr.Validation(op, "title is required")
	}
	if totalCopies <= 0 {
		return nil, apperr.Validation(op, "total copies must be positive")
	}

	now := s.now().UTC()
	item := &Item{
		ID:              uuid.New(),
		ISBN:            strings.TrimSpace(isbn),
		Title:           title,
		Author:          strings.TrimSpace(author),
		TotalCopies:     totalCopies,
		AvailableCopies: totalCopies,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if _, err := s.store.Insert(ctx, Collection, item.ID.String(), item); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, op, fmt.Errorf("failed to store item: %w", err))
	}

	s.log.WithField("item_id", item.ID).WithField("copies", totalCopies).Info("item catalogued")
	return item, nil
}

// GetItem retrieves an item by its ID.
func (s *service) GetItem(ctx context.Context, id uuid.UUID) (*Item, error) {
	item, _, err := s.load(ctx, "inventory.get_item", id)
	return item, err
}

func (s *service) load(ctx context.Context, op string, id uuid.UUID) (*Item, int, error) {
	if id == uuid.Nil {
		return nil, 0, apperr.Validation(op, "item id is required")
	}
	doc, err := s.store.Get(ctx, Collection, id.String())
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, 0, apperr.NotFoundErr(op, ErrItemNotFound)
	}
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.KindInternal, op, err)
	}

	item := &Item{}
	if err := doc.Decode(item); err != nil {
		return nil, 0, apperr.Wrap(apperr.KindInternal, op, fmt.Errorf("failed to decode item: %w", err))
	}
	return item, doc.Version, nil
}

// ListItems returns the catalogue ordered by title.
func (s *service) ListItems(ctx context.Context) ([]*Item, error) {
	docs, err := s.store.Query(ctx, Collection, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "inventory.list_items", err)
	}
	items, err := docstore.DecodeAll[*Item](docs)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "inventory.list_items", err)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Title != items[j].Title {
			return items[i].Title < items[j].Title
		}
		return items[i].ID.String() < items[j].ID.String()
	})
	return items, nil
}

// Query returns the current counters without side effects.
func (s *service) Query(ctx context.Context, itemID uuid.UUID) (Counts, error) {
	item, _, err := s.load(ctx, "inventory.query", itemID)
	if err != nil {
		return Counts{}, err
	}
	return Counts{ItemID: item.ID, TotalCopies: item.TotalCopies, AvailableCopies: item.AvailableCopies}, nil
}

// mutate runs fn against the freshest copy of the item under the item lock
// and writes the returned fields with the version that was read.
func (s *service) mutate(ctx context.Context, op string, id uuid.UUID, fn func(*Item) (docstore.Fields, error)) error {
	if id == uuid.Nil {
		return apperr.Validation(op, "item id is required")
	}
	unlock := s.locks.lock(id)
	defer unlock()

	err := docstore.RetryOnConflict(ctx, func(ctx context.Context) error {
		item, version, err := s.load(ctx, op, id)
		if err != nil {
			return err
		}
		fields, err := fn(item)
		if err != nil {
			return err
		}
		fields["updated_at"] = s.now().UTC()
		_, err = s.store.Update(ctx, Collection, id.String(), fields, version)
		if errors.Is(err, docstore.ErrNotFound) {
			return apperr.NotFoundErr(op, ErrItemNotFound)
		}
		return err
	}, s.retryOptions...)

	if errors.Is(err, docstore.ErrConcurrencyConflict) {
		s.log.WithField("item_id", id).Warn("gave up on contended item counter")
		return apperr.Wrap(apperr.KindConflict, op, err)
	}
	var classified *apperr.Error
	if err != nil && !errors.As(err, &classified) {
		return apperr.Wrap(apperr.KindInternal, op, err)
	}
	return err
}

// Reserve decrements available copies, failing with a conflict at zero.
func (s *service) Reserve(ctx context.Context, itemID uuid.UUID) (int, error) {
	const op = "inventory.reserve"

	var available int
	err := s.mutate(ctx, op, itemID, func(item *Item) (docstore.Fields, error) {
		if item.AvailableCopies <= 0 {
			return nil, apperr.ConflictErr(op, ErrNoCopiesAvailable)
		}
		available = item.AvailableCopies - 1
		return docstore.Fields{"available_copies": available}, nil
	})
	if err != nil {
		return 0, err
	}

	s.log.WithField("item_id", itemID).WithField("available", available).Debug("copy reserved")
	return available, nil
}

// Release increments available copies, failing with a conflict when every
// copy is already on the shelf.
func (s *service) Release(ctx context.Context, itemID uuid.UUID) (ReleaseResult, error) {
	const op = "inventory.release"

	var result ReleaseResult
	err := s.mutate(ctx, op, itemID, func(item *Item) (docstore.Fields, error) {
		if item.AvailableCopies >= item.TotalCopies {
			return nil, apperr.ConflictErr(op, ErrAtCapacity)
		}
		result = ReleaseResult{
			AvailableCopies: item.AvailableCopies + 1,
			Restocked:       item.AvailableCopies == 0,
		}
		return docstore.Fields{"available_copies": result.AvailableCopies}, nil
	})
	if err != nil {
		return ReleaseResult{}, err
	}

	s.log.WithField("item_id", itemID).
		WithField("available", result.AvailableCopies).
		WithField("restocked", result.Restocked).
		Debug("copy released")
	return result, nil
}

// SetTotalCopies changes the number of copies owned while keeping the
// copies on loan. The bool reports a restock.
func (s *service) SetTotalCopies(ctx context.Context, id uuid.UUID, total int) (*Item, bool, error) {
	const op = "inventory.set_total_copies"

	if total <= 0 {
		return nil, false, apperr.Validation(op, "total copies must be positive")
	}

	var (
		updated   Item
		restocked bool
	)
	err := s.mutate(ctx, op, id, func(item *Item) (docstore.Fields, error) {
		onLoan := item.OnLoan()
		if total < onLoan {
			return nil, apperr.ConflictErr(op, ErrBelowLoaned)
		}
		updated = *item
		updated.TotalCopies = total
		updated.AvailableCopies = total - onLoan
		restocked = item.AvailableCopies == 0 && updated.AvailableCopies > 0
		return docstore.Fields{
			"total_copies":     updated.TotalCopies,
			"available_copies": updated.AvailableCopies,
		}, nil
	})
	if err != nil {
		return nil, false, err
	}

	updated.UpdatedAt = s.now().UTC()
	s.log.WithField("item_id", id).WithField("total", total).Info("item copies updated")
	return &updated, restocked, nil
}

// RemoveItem deletes an item that no live request references.
func (s *service) RemoveItem(ctx context.Context, id uuid.UUID) error {
	const op = "inventory.remove_item"

	if id == uuid.Nil {
		return apperr.Validation(op, "item id is required")
	}
	unlock := s.locks.lock(id)
	defer unlock()

	if s.references != nil {
		referenced, err := s.references(ctx, id)
		if err != nil {
			return apperr.Wrap(apperr.KindInternal, op, fmt.Errorf("failed to check references: %w", err))
		}
		if referenced {
			return apperr.ConflictErr(op, ErrItemInUse)
		}
	}

	removed, err := s.store.Delete(ctx, Collection, id.String())
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, op, err)
	}
	if !removed {
		return apperr.NotFoundErr(op, ErrItemNotFound)
	}

	s.log.WithField("item_id", id).Info("item removed")
	return nil
}

// internal/watchlist/implementation.go
package watchlist

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

type service struct {
	store     docstore.Store
	inventory inventory.Service
	notifier  notification.Emitter
	log       *logger.Logger
	now       func() time.Time
}

// NewService creates a new watchlist service instance.
func NewService(store docstore.Store, inv inventory.Service, notifier notification.Emitter, log *logger.Logger) Service {
	if log == nil {
		log = logger.NewDefault("watchlist")
	}
	return &service{store: store, inventory: inv, notifier: notifier, log: log, now: time.Now}
}

func (s *service) Watch(ctx context.Context, borrowerID, itemID uuid.UUID) (*Entry, error) {
	const op = "watchlist.watch"

	if borrowerID == uuid.Nil || itemID == uuid.Nil {
		return nil, apperr.Validation(op, "borrower and item ids are required")
	}

	id := entryID(borrowerID, itemID)
	if existing, err := s.get(ctx, op, id); err == nil {
		return existing, nil
	} else if !errors.Is(err, docstore.ErrNotFound) {
		return nil, err
	}

	counts, err := s.inventory.Query(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("watch item: %w", err)
	}
	if counts.AvailableCopies > 0 {
		return nil, apperr.ConflictErr(op, ErrItemAvailable)
	}

	entry := &Entry{ID: id, BorrowerID: borrowerID, ItemID: itemID, CreatedAt: s.now().UTC()}
	_, err = s.store.Insert(ctx, Collection, id.String(), entry)
	if errors.Is(err, docstore.ErrAlreadyExists) {
		return s.get(ctx, op, id)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, op, err)
	}

	s.log.WithField("borrower_id", borrowerID).WithField("item_id", itemID).Debug("item watched")
	return entry, nil
}

func (s *service) get(ctx context.Context, op string, id uuid.UUID) (*Entry, error) {
	doc, err := s.store.Get(ctx, Collection, id.String())
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, op, err)
	}
	entry := &Entry{}
	if err := doc.Decode(entry); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, op, err)
	}
	return entry, nil
}

func (s *service) Unwatch(ctx context.Context, borrowerID, itemID uuid.UUID) (bool, error) {
	const op = "watchlist.unwatch"

	if borrowerID == uuid.Nil || itemID == uuid.Nil {
		return false, apperr.Validation(op, "borrower and item ids are required")
	}
	removed, err := s.store.Delete(ctx, Collection, entryID(borrowerID, itemID).String())
	if err != nil {
		return false, apperr.Wrap(apperr.KindInternal, op, err)
	}
	return removed, nil
}

func (s *service) ListByBorrower(ctx context.Context, borrowerID uuid.UUID) ([]*Entry, error) {
	const op = "watchlist.list_by_borrower"

	if borrowerID == uuid.Nil {
		return nil, apperr.Validation(op, "borrower id is required")
	}
	entries, err := s.query(ctx, op, docstore.Filter{"borrower_id": borrowerID})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].ID.String() < entries[j].ID.String()
	})
	return entries, nil
}

func (s *service) Watchers(ctx context.Context, itemID uuid.UUID) ([]*Entry, error) {
	const op = "watchlist.watchers"

	if itemID == uuid.Nil {
		return nil, apperr.Validation(op, "item id is required")
	}
	entries, err := s.query(ctx, op, docstore.Filter{"item_id": itemID})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		}
		return entries[i].ID.String() < entries[j].ID.String()
	})
	return entries, nil
}

func (s *service) query(ctx context.Context, op string, filter docstore.Filter) ([]*Entry, error) {
	docs, err := s.store.Query(ctx, Collection, filter)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, op, err)
	}
	entries, err := docstore.DecodeAll[*Entry](docs)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, op, err)
	}
	return entries, nil
}

// OnRestock notifies every watcher of itemID with one dispatch and then
// removes all of their entries, however many copies came back.
func (s *service) OnRestock(ctx context.Context, itemID uuid.UUID) error {
	const op = "watchlist.on_restock"

	watchers, err := s.Watchers(ctx, itemID)
	if err != nil {
		return err
	}
	if len(watchers) == 0 {
		return nil
	}

	item, err := s.inventory.GetItem(ctx, itemID)
	if err != nil {
		return fmt.Errorf("restock: %w", err)
	}

	ids := make([]string, 0, len(watchers))
	recipients := make([]uuid.UUID, 0, len(watchers))
	for _, w := range watchers {
		ids = append(ids, w.ID.String())
		recipients = append(recipients, w.BorrowerID)
	}

	if s.notifier != nil {
		s.notifier.Notify(ctx, notification.TypeBookAvailable, notification.BookAvailablePayload{
			ItemID:     itemID,
			ItemTitle:  item.Title,
			WatcherIDs: recipients,
		})
	}

	removed, err := s.store.BatchDelete(ctx, Collection, ids)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, op, err)
	}

	s.log.WithField("item_id", itemID).WithField("watchers", removed).Info("watchers notified of restock")
	return nil
}

// internal/notification/implementation.go
package notification

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"lendhub/internal/apperr"
	"lendhub/pkg/docstore"
	"lendhub/pkg/logger"
)

type service struct {
	store docstore.Store
	log   *logger.Logger
}

// NewService creates a new notification service instance.
func NewService(store docstore.Store, log *logger.Logger) Service {
	if log == nil {
		log = logger.NewDefault("notification")
	}
	return &service{store: store, log: log}
}

func (s *service) List(ctx context.Context, recipientID uuid.UUID, unreadOnly bool) ([]*Notification, error) {
	const op = "notification.list"

	if recipientID == uuid.Nil {
		return nil, apperr.Validation(op, "recipient id is required")
	}
	filter := docstore.Filter{"recipient_id": recipientID}
	if unreadOnly {
		filter["read"] = false
	}
	docs, err := s.store.Query(ctx, Collection, filter)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, op, err)
	}
	out, err := docstore.DecodeAll[*Notification](docs)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, op, err)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *service) UnreadCount(ctx context.Context, recipientID uuid.UUID) (int, error) {
	unread, err := s.List(ctx, recipientID, true)
	if err != nil {
		return 0, err
	}
	return len(unread), nil
}

// owned loads a notification and hides it from anyone but its recipient.
func (s *service) owned(ctx context.Context, op string, id, recipientID uuid.UUID) (*Notification, error) {
	doc, err := s.store.Get(ctx, Collection, id.String())
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, apperr.NotFoundErr(op, ErrNotificationNotFound)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, op, err)
	}
	n := &Notification{}
	if err := doc.Decode(n); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, op, err)
	}
	if n.RecipientID != recipientID {
		return nil, apperr.NotFoundErr(op, ErrNotificationNotFound)
	}
	return n, nil
}

func (s *service) MarkRead(ctx context.Context, id, recipientID uuid.UUID) error {
	const op = "notification.mark_read"

	n, err := s.owned(ctx, op, id, recipientID)
	if err != nil {
		return err
	}
	if n.Read {
		return nil
	}
	if _, err := s.store.Update(ctx, Collection, id.String(), docstore.Fields{"read": true}, 0); err != nil {
		return apperr.Wrap(apperr.KindInternal, op, err)
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int, error) {
	const op = "notification.mark_all_read"

	unread, err := s.List(ctx, recipientID, true)
	if err != nil {
		return 0, err
	}
	marked := 0
	for _, n := range unread {
		_, err := s.store.Update(ctx, Collection, n.ID.String(), docstore.Fields{"read": true}, 0)
		if errors.Is(err, docstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return marked, apperr.Wrap(apperr.KindInternal, op, err)
		}
		marked++
	}
	return marked, nil
}

func (s *service) Delete(ctx context.Context, id, recipientID uuid.UUID) error {
	const op = "notification.delete"

	if _, err := s.owned(ctx, op, id, recipientID); err != nil {
		return err
	}
	removed, err := s.store.Delete(ctx, Collection, id.String())
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, op, err)
	}
	if !removed {
		return apperr.NotFoundErr(op, ErrNotificationNotFound)
	}
	return nil
}

func (s *service) PurgeReadBefore(ctx context.Context, cutoff time.Time) (int, error) {
	const op = "notification.purge_read"

	docs, err := s.store.Query(ctx, Collection, docstore.Filter{"read": true})
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, op, err)
	}
	read, err := docstore.DecodeAll[*Notification](docs)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, op, err)
	}

	var stale []string
	for _, n := range read {
		if n.CreatedAt.Before(cutoff) {
			stale = append(stale, n.ID.String())
		}
	}
	removed, err := s.store.BatchDelete(ctx, Collection, stale)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, op, err)
	}
	if removed > 0 {
		s.log.WithField("removed", removed).WithField("cutoff", cutoff).Info("read notifications purged")
	}
	return removed, nil
}

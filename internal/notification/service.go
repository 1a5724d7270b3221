// internal/notification/service.go
package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Service is the read and housekeeping side of stored notifications.
type Service interface {
	// List returns the recipient's notifications, newest first.
	List(ctx context.Context, recipientID uuid.UUID, unreadOnly bool) ([]*Notification, error)
	UnreadCount(ctx context.Context, recipientID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, id, recipientID uuid.UUID) error
	MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int, error)
	Delete(ctx context.Context, id, recipientID uuid.UUID) error
	// PurgeReadBefore deletes read notifications created before cutoff.
	PurgeReadBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// internal/notification/domain.go
package notification

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Collection is the document collection holding notifications.
const Collection = "notifications"

var ErrNotificationNotFound = errors.New("notification not found")

// Type names an event that produces notifications.
type Type string

const (
	TypeNewRequest      Type = "NEW_REQUEST"
	TypeDueDateReminder Type = "DUE_DATE_REMINDER"
	TypeOverdue         Type = "OVERDUE"
	TypeBookAvailable   Type = "BOOK_AVAILABLE"
)

// Notification is a user-facing message addressed to one recipient.
type Notification struct {
	ID          uuid.UUID  `json:"id"`
	Type        Type       `json:"type"`
	Message     string     `json:"message"`
	RecipientID uuid.UUID  `json:"recipient_id"`
	ItemID      *uuid.UUID `json:"item_id,omitempty"`
	RequestID   *uuid.UUID `json:"request_id,omitempty"`
	Read        bool       `json:"read"`
	CreatedAt   time.Time  `json:"created_at"`
}

// NewRequestPayload accompanies TypeNewRequest. StaffIDs are the recipients.
type NewRequestPayload struct {
	RequestID    uuid.UUID
	BorrowerID   uuid.UUID
	BorrowerName string
	ItemID       uuid.UUID
	ItemTitle    string
	StaffIDs     []uuid.UUID
}

// DueDateReminderPayload accompanies TypeDueDateReminder.
type DueDateReminderPayload struct {
	RequestID    uuid.UUID
	BorrowerID   uuid.UUID
	ItemID       uuid.UUID
	ItemTitle    string
	DueAt        time.Time
	DaysUntilDue int
}

// OverduePayload accompanies TypeOverdue.
type OverduePayload struct {
	RequestID   uuid.UUID
	BorrowerID  uuid.UUID
	ItemID      uuid.UUID
	ItemTitle   string
	DueAt       time.Time
	DaysOverdue int
}

// BookAvailablePayload accompanies TypeBookAvailable. One notification is
// created per watcher.
type BookAvailablePayload struct {
	ItemID     uuid.UUID
	ItemTitle  string
	WatcherIDs []uuid.UUID
}

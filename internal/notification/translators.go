// internal/notification/translators.go
package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"lendhub/pkg/docstore"
)

// MemberNames resolves display names for message text.
type MemberNames interface {
	DisplayName(ctx context.Context, id uuid.UUID) (string, error)
}

// Translators are the default handlers: each turns a payload into one
// stored notification per recipient.
type Translators struct {
	store   docstore.Store
	members MemberNames
	now     func() time.Time
}

// NewTranslators persists through store. members may be nil, in which case
// payload names or raw ids are used.
func NewTranslators(store docstore.Store, members MemberNames) *Translators {
	return &Translators{store: store, members: members, now: time.Now}
}

// RegisterDefaults attaches every translator to d.
func RegisterDefaults(d *Dispatcher, t *Translators) []HandlerID {
	return []HandlerID{
		d.Attach(TypeNewRequest, t.NewRequest),
		d.Attach(TypeDueDateReminder, t.DueDateReminder),
		d.Attach(TypeOverdue, t.Overdue),
		d.Attach(TypeBookAvailable, t.BookAvailable),
	}
}

func (t *Translators) NewRequest(ctx context.Context, payload any) error {
	p, ok := payload.(NewRequestPayload)
	if !ok {
		return unexpectedPayload(TypeNewRequest, payload)
	}
	name := p.BorrowerName
	if name == "" {
		name = t.displayName(ctx, p.BorrowerID)
	}
	msg := fmt.Sprintf("%s requested \"%s\"", name, p.ItemTitle)
	return t.persist(ctx, TypeNewRequest, msg, p.StaffIDs, &p.ItemID, &p.RequestID)
}

func (t *Translators) DueDateReminder(ctx context.Context, payload any) error {
	p, ok := payload.(DueDateReminderPayload)
	if !ok {
		return unexpectedPayload(TypeDueDateReminder, payload)
	}
	msg := DueMessage(p.ItemTitle, p.DaysUntilDue)
	return t.persist(ctx, TypeDueDateReminder, msg, []uuid.UUID{p.BorrowerID}, &p.ItemID, &p.RequestID)
}

func (t *Translators) Overdue(ctx context.Context, payload any) error {
	p, ok := payload.(OverduePayload)
	if !ok {
		return unexpectedPayload(TypeOverdue, payload)
	}
	msg := fmt.Sprintf("\"%s\" is overdue by %s", p.ItemTitle, days(p.DaysOverdue))
	return t.persist(ctx, TypeOverdue, msg, []uuid.UUID{p.BorrowerID}, &p.ItemID, &p.RequestID)
}

func (t *Translators) BookAvailable(ctx context.Context, payload any) error {
	p, ok := payload.(BookAvailablePayload)
	if !ok {
		return unexpectedPayload(TypeBookAvailable, payload)
	}
	msg := fmt.Sprintf("\"%s\" is available to borrow again", p.ItemTitle)
	return t.persist(ctx, TypeBookAvailable, msg, p.WatcherIDs, &p.ItemID, nil)
}

// DueMessage is the reminder text for a loan due in n days.
func DueMessage(title string, n int) string {
	if n == 0 {
		return fmt.Sprintf("\"%s\" is due today", title)
	}
	return fmt.Sprintf("\"%s\" is due in %s", title, days(n))
}

func days(n int) string {
	if n == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", n)
}

func (t *Translators) displayName(ctx context.Context, id uuid.UUID) string {
	if t.members != nil {
		if name, err := t.members.DisplayName(ctx, id); err == nil && name != "" {
			return name
		}
	}
	return id.String()
}

func (t *Translators) persist(ctx context.Context, typ Type, msg string, recipients []uuid.UUID, itemID, requestID *uuid.UUID) error {
	if len(recipients) == 0 {
		return nil
	}
	now := t.now().UTC()
	records := make([]docstore.Record, 0, len(recipients))
	for _, recipient := range recipients {
		n := Notification{
			ID:          uuid.New(),
			Type:        typ,
			Message:     msg,
			RecipientID: recipient,
			ItemID:      itemID,
			RequestID:   requestID,
			CreatedAt:   now,
		}
		records = append(records, docstore.Record{ID: n.ID.String(), Value: n})
	}
	if err := t.store.PutBatch(ctx, Collection, records); err != nil {
		return fmt.Errorf("failed to store %s notifications: %w", typ, err)
	}
	return nil
}

func unexpectedPayload(t Type, payload any) error {
	return fmt.Errorf("%s: unexpected payload %T", t, payload)
}

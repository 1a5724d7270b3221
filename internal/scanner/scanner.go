// Package scanner finds loans that are nearly due or overdue and emits the
// matching notifications.
package scanner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"lendhub/internal/circulation"
	"lendhub/internal/inventory"
	"lendhub/internal/membership"
	"lendhub/internal/notification"
	"lendhub/pkg/logger"
)

const (
	day = 24 * time.Hour

	DefaultReminderWindowDays = 2
)

// RequestSource is the read side of circulation the scanner needs.
type RequestSource interface {
	FindActive(ctx context.Context, status circulation.Status) ([]*circulation.Request, error)
}

// ItemSource resolves item titles.
type ItemSource interface {
	GetItem(ctx context.Context, id uuid.UUID) (*inventory.Item, error)
}

// MemberSource confirms borrowers still exist.
type MemberSource interface {
	GetMember(ctx context.Context, id uuid.UUID) (*membership.Member, error)
}

// Purger removes old read notifications.
type Purger interface {
	PurgeReadBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Report summarises one scan.
type Report struct {
	Scanned   int `json:"scanned"`
	Reminders int `json:"reminders"`
	Overdue   int `json:"overdue"`
	Failed    int `json:"failed"`
	Purged    int `json:"purged"`
}

// Scanner runs single scans. It keeps no state between runs, so a loan that
// stays overdue is reported again on every scan.
type Scanner struct {
	requests  RequestSource
	items     ItemSource
	members   MemberSource
	notifier  notification.Emitter
	purger    Purger
	retention time.Duration
	window    int
	log       *logger.Logger
	now       func() time.Time
	emitted   metric.Int64Counter
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithReminderWindow sets how many days before the due date reminders start.
func WithReminderWindow(days int) Option {
	return func(s *Scanner) {
		if days >= 0 {
			s.window = days
		}
	}
}

// WithMembers makes a missing borrower count as a failed request.
func WithMembers(members MemberSource) Option {
	return func(s *Scanner) { s.members = members }
}

// WithRetention purges read notifications older than retention after each scan.
func WithRetention(purger Purger, retention time.Duration) Option {
	return func(s *Scanner) {
		s.purger = purger
		s.retention = retention
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scanner) { s.now = now }
}

// New creates a Scanner.
func New(requests RequestSource, items ItemSource, notifier notification.Emitter, log *logger.Logger, options ...Option) *Scanner {
	if log == nil {
		log = logger.NewDefault("scanner")
	}
	emitted, err := otel.Meter("lendhub/scanner").Int64Counter("lendhub.scanner.events",
		metric.WithDescription("Reminder and overdue events emitted by due-date scans"))
	if err != nil {
		log.WithError(err).Warn("scanner event counter unavailable")
		emitted = noop.Int64Counter{}
	}

	s := &Scanner{
		requests: requests,
		items:    items,
		notifier: notifier,
		window:   DefaultReminderWindowDays,
		log:      log,
		now:      time.Now,
		emitted:  emitted,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// RunOnce scans every approved request. Failures on single requests are
// logged and counted; only failing to list requests aborts the scan.
func (s *Scanner) RunOnce(ctx context.Context) (Report, error) {
	var report Report

	loans, err := s.requests.FindActive(ctx, circulation.StatusApproved)
	if err != nil {
		return report, fmt.Errorf("list approved requests: %w", err)
	}

	now := s.now().UTC()
	for _, loan := range loans {
		report.Scanned++
		if err := s.check(ctx, now, loan, &report); err != nil {
			report.Failed++
			s.log.WithError(err).WithField("request_id", loan.ID).Warn("due-date check failed")
		}
	}

	if s.purger != nil && s.retention > 0 {
		purged, err := s.purger.PurgeReadBefore(ctx, now.Add(-s.retention))
		if err != nil {
			s.log.WithError(err).Warn("notification purge failed")
		}
		report.Purged = purged
	}

	s.log.WithFields(map[string]interface{}{
		"scanned":   report.Scanned,
		"reminders": report.Reminders,
		"overdue":   report.Overdue,
		"failed":    report.Failed,
	}).Info("due-date scan finished")
	return report, nil
}

func (s *Scanner) check(ctx context.Context, now time.Time, loan *circulation.Request, report *Report) error {
	if loan.DueAt == nil {
		return fmt.Errorf("approved request has no due date")
	}
	due := *loan.DueAt

	var reminder bool
	daysUntilDue := 0
	if !now.After(due) {
		daysUntilDue = int(due.Sub(now) / day)
		if daysUntilDue > s.window {
			return nil
		}
		reminder = true
	}

	item, err := s.items.GetItem(ctx, loan.ItemID)
	if err != nil {
		return fmt.Errorf("resolve item %s: %w", loan.ItemID, err)
	}
	if s.members != nil {
		if _, err := s.members.GetMember(ctx, loan.BorrowerID); err != nil {
			return fmt.Errorf("resolve borrower %s: %w", loan.BorrowerID, err)
		}
	}

	if reminder {
		s.notifier.Notify(ctx, notification.TypeDueDateReminder, notification.DueDateReminderPayload{
			RequestID:    loan.ID,
			BorrowerID:   loan.BorrowerID,
			ItemID:       loan.ItemID,
			ItemTitle:    item.Title,
			DueAt:        due,
			DaysUntilDue: daysUntilDue,
		})
		report.Reminders++
		s.emitted.Add(ctx, 1, metric.WithAttributes(attribute.String("type", string(notification.TypeDueDateReminder))))
		return nil
	}

	s.notifier.Notify(ctx, notification.TypeOverdue, notification.OverduePayload{
		RequestID:   loan.ID,
		BorrowerID:  loan.BorrowerID,
		ItemID:      loan.ItemID,
		ItemTitle:   item.Title,
		DueAt:       due,
		DaysOverdue: int(now.Sub(due) / day),
	})
	report.Overdue++
	s.emitted.Add(ctx, 1, metric.WithAttributes(attribute.String("type", string(notification.TypeOverdue))))
	return nil
}

package scanner

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lendhub/internal/circulation"
	"lendhub/internal/inventory"
	"lendhub/internal/notification"
	"lendhub/pkg/docstore"
	"lendhub/pkg/logger"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recordingEmitter struct {
	mu       sync.Mutex
	types    []notification.Type
	payloads []any
}

func (e *recordingEmitter) Notify(ctx context.Context, t notification.Type, payload any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.types = append(e.types, t)
	e.payloads = append(e.payloads, payload)
}

// Scenario C: a loan approaching its due date gets a reminder, then an
// overdue notice once the date has passed.
func TestScanRemindsThenReportsOverdue(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	clk := &clock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}

	dispatcher := notification.NewDispatcher(logger.Discard())
	notification.RegisterDefaults(dispatcher, notification.NewTranslators(store, nil))
	notifications := notification.NewService(store, logger.Discard())

	inv := inventory.NewService(store, logger.Discard())
	circ := circulation.NewService(store, inv, dispatcher, logger.Discard(), circulation.WithClock(clk.Now))

	item, err := inv.AddItem(ctx, "", "Emma", "Jane Austen", 1)
	require.NoError(t, err)
	borrower := uuid.New()
	req, err := circ.CreateRequest(ctx, borrower, item.ID, nil)
	require.NoError(t, err)
	dueAt := clk.Now().Add(7 * day)
	_, err = circ.Approve(ctx, req.ID, uuid.New(), &dueAt)
	require.NoError(t, err)

	s := New(circ, inv, dispatcher, logger.Discard(), WithClock(clk.Now))

	clk.Set(dueAt.Add(-day))
	report, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Scanned: 1, Reminders: 1}, report)

	list, err := notifications.List(ctx, borrower, false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, notification.TypeDueDateReminder, list[0].Type)
	assert.Equal(t, `"Emma" is due in 1 day`, list[0].Message)

	clk.Set(dueAt.Add(3 * day))
	report, err = s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Scanned: 1, Overdue: 1}, report)

	list, err = notifications.List(ctx, borrower, true)
	require.NoError(t, err)
	var overdue []*notification.Notification
	for _, n := range list {
		if n.Type == notification.TypeOverdue {
			overdue = append(overdue, n)
		}
	}
	require.Len(t, overdue, 1)
	assert.Equal(t, `"Emma" is overdue by 3 days`, overdue[0].Message)
	assert.Equal(t, req.ID, *overdue[0].RequestID)
}

func TestScanWindowBoundaries(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	itemID := uuid.New()

	loan := func(due time.Time) *circulation.Request {
		return &circulation.Request{
			ID: uuid.New(), BorrowerID: uuid.New(), ItemID: itemID,
			Status: circulation.StatusApproved, DueAt: &due,
		}
	}

	tests := []struct {
		name string
		due  time.Time
		want Report
	}{
		{"due now", now, Report{Scanned: 1, Reminders: 1}},
		{"due in two days", now.Add(2 * day), Report{Scanned: 1, Reminders: 1}},
		{"due in two days and a bit", now.Add(2*day + 23*time.Hour), Report{Scanned: 1, Reminders: 1}},
		{"due in three days", now.Add(3 * day), Report{Scanned: 1}},
		{"one second late", now.Add(-time.Second), Report{Scanned: 1, Overdue: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emitter := &recordingEmitter{}
			s := New(
				staticRequests{loan(tt.due)},
				staticItems{itemID: {ID: itemID, Title: "Emma"}},
				emitter, logger.Discard(),
				WithClock(func() time.Time { return now }),
			)
			report, err := s.RunOnce(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, report)
			assert.Len(t, emitter.types, tt.want.Reminders+tt.want.Overdue)
		})
	}
}

func TestScanIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	known := uuid.New()
	due := now.Add(-2 * day)

	requests := staticRequests{
		{ID: uuid.New(), BorrowerID: uuid.New(), ItemID: uuid.New(), Status: circulation.StatusApproved, DueAt: &due},
		{ID: uuid.New(), BorrowerID: uuid.New(), ItemID: known, Status: circulation.StatusApproved},
		{ID: uuid.New(), BorrowerID: uuid.New(), ItemID: known, Status: circulation.StatusApproved, DueAt: &due},
	}
	emitter := &recordingEmitter{}
	s := New(requests, staticItems{known: {ID: known, Title: "Emma"}}, emitter, logger.Discard(),
		WithClock(func() time.Time { return now }))

	report, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Scanned: 3, Overdue: 1, Failed: 2}, report)

	require.Len(t, emitter.payloads, 1)
	payload := emitter.payloads[0].(notification.OverduePayload)
	assert.Equal(t, requests[2].ID, payload.RequestID)
	assert.Equal(t, 2, payload.DaysOverdue)
}

func TestScanFailsWhenRequestsUnavailable(t *testing.T) {
	s := New(failingRequests{}, staticItems{}, &recordingEmitter{}, logger.Discard())
	_, err := s.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestScanPurgesReadNotifications(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	purger := &recordingPurger{purged: 4}

	s := New(staticRequests{}, staticItems{}, &recordingEmitter{}, logger.Discard(),
		WithClock(func() time.Time { return now }),
		WithRetention(purger, 30*day))

	report, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Purged)
	assert.Equal(t, now.Add(-30*day), purger.cutoff)
}

func TestRunnerStartStop(t *testing.T) {
	requests := &countingRequests{}
	s := New(requests, staticItems{}, &recordingEmitter{}, logger.Discard())
	r := NewRunner(s, every(5*time.Millisecond), logger.Discard())

	ctx := context.Background()
	require.NoError(t, r.Start(ctx))
	require.NoError(t, r.Start(ctx))
	assert.True(t, r.Running())

	require.Eventually(t, func() bool { return requests.calls.Load() >= 3 }, time.Second, time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, r.Stop(stopCtx))
	require.NoError(t, r.Stop(stopCtx))
	assert.False(t, r.Running())

	after := requests.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, requests.calls.Load())
}

func TestRunnerScansImmediately(t *testing.T) {
	requests := &countingRequests{}
	s := New(requests, staticItems{}, &recordingEmitter{}, logger.Discard())
	r := NewRunner(s, every(time.Hour), logger.Discard())

	require.NoError(t, r.Start(context.Background()))
	defer r.Stop(context.Background())

	require.Eventually(t, func() bool { return requests.calls.Load() == 1 }, time.Second, time.Millisecond)
}

func TestRunnerSkipsWhenLockHeld(t *testing.T) {
	requests := &countingRequests{}
	s := New(requests, staticItems{}, &recordingEmitter{}, logger.Discard())
	lock := &heldLock{}
	r := NewRunner(s, every(2*time.Millisecond), logger.Discard(), WithLock(lock, time.Second))

	require.NoError(t, r.Start(context.Background()))
	require.Eventually(t, func() bool { return lock.attempts.Load() >= 3 }, time.Second, time.Millisecond)
	require.NoError(t, r.Stop(context.Background()))

	assert.Zero(t, requests.calls.Load())
}

func TestRunnerLogsFailedLockRelease(t *testing.T) {
	requests := &countingRequests{}
	s := New(requests, staticItems{}, &recordingEmitter{}, logger.Discard())
	var out bytes.Buffer
	log := logger.New(logger.Config{Level: "warn", Output: &out})
	lock := &stuckLock{}
	r := NewRunner(s, every(time.Hour), log, WithLock(lock, time.Second))

	require.NoError(t, r.Start(context.Background()))
	require.Eventually(t, func() bool { return lock.releases.Load() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, r.Stop(context.Background()))

	assert.Equal(t, int64(1), requests.calls.Load())
	assert.Contains(t, out.String(), "failed to release scanner lock")
	assert.Contains(t, out.String(), "connection reset")
}

type every time.Duration

func (e every) Next(t time.Time) time.Time { return t.Add(time.Duration(e)) }

type staticRequests []*circulation.Request

func (s staticRequests) FindActive(ctx context.Context, status circulation.Status) ([]*circulation.Request, error) {
	return s, nil
}

type failingRequests struct{}

func (failingRequests) FindActive(ctx context.Context, status circulation.Status) ([]*circulation.Request, error) {
	return nil, errors.New("store offline")
}

type countingRequests struct {
	calls atomic.Int64
}

func (c *countingRequests) FindActive(ctx context.Context, status circulation.Status) ([]*circulation.Request, error) {
	c.calls.Add(1)
	return nil, nil
}

type staticItems map[uuid.UUID]*inventory.Item

func (s staticItems) GetItem(ctx context.Context, id uuid.UUID) (*inventory.Item, error) {
	item, ok := s[id]
	if !ok {
		return nil, inventory.ErrItemNotFound
	}
	return item, nil
}

type recordingPurger struct {
	cutoff time.Time
	purged int
}

func (p *recordingPurger) PurgeReadBefore(ctx context.Context, cutoff time.Time) (int, error) {
	p.cutoff = cutoff
	return p.purged, nil
}

type heldLock struct {
	attempts atomic.Int64
}

func (l *heldLock) Acquire(ctx context.Context, key string, ttl time.Duration) (func() error, bool, error) {
	l.attempts.Add(1)
	return nil, false, nil
}

type stuckLock struct {
	releases atomic.Int64
}

func (l *stuckLock) Acquire(ctx context.Context, key string, ttl time.Duration) (func() error, bool, error) {
	return func() error {
		l.releases.Add(1)
		return errors.New("connection reset")
	}, true, nil
}

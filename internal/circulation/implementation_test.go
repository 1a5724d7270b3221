package circulation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lendhub/internal/apperr"
	"lendhub/internal/inventory"
	"lendhub/internal/notification"
	"lendhub/pkg/docstore"
	"lendhub/pkg/logger"
)

type recordedEvent struct {
	Type    notification.Type
	Payload any
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (e *recordingEmitter) Notify(ctx context.Context, t notification.Type, payload any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, recordedEvent{Type: t, Payload: payload})
}

type restockRecorder struct {
	mu    sync.Mutex
	items []uuid.UUID
}

func (r *restockRecorder) OnRestock(ctx context.Context, itemID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, itemID)
	return nil
}

type fixture struct {
	store     docstore.Store
	inventory inventory.Service
	service   Service
	emitter   *recordingEmitter
	restock   *restockRecorder
	clock     *clock
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newFixture(t *testing.T, store docstore.Store) *fixture {
	t.Helper()
	if store == nil {
		store = docstore.NewMemory()
	}
	f := &fixture{
		store:   store,
		emitter: &recordingEmitter{},
		restock: &restockRecorder{},
		clock:   &clock{now: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)},
	}
	f.inventory = inventory.NewService(store, logger.Discard(),
		inventory.WithReferenceChecker(HasActiveRequests(store)))
	f.service = NewService(store, f.inventory, f.emitter, logger.Discard(),
		WithRestockHandler(f.restock),
		WithClock(f.clock.Now))
	return f
}

func (f *fixture) addItem(t *testing.T, copies int) *inventory.Item {
	t.Helper()
	item, err := f.inventory.AddItem(context.Background(), "", "Dune", "Frank Herbert", copies)
	require.NoError(t, err)
	return item
}

func (f *fixture) available(t *testing.T, itemID uuid.UUID) int {
	t.Helper()
	counts, err := f.inventory.Query(context.Background(), itemID)
	require.NoError(t, err)
	return counts.AvailableCopies
}

func TestCreateRequestNotifiesStaff(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	item := f.addItem(t, 1)
	borrower := uuid.New()
	staff := []uuid.UUID{uuid.New(), uuid.New()}

	req, err := f.service.CreateRequest(ctx, borrower, item.ID, staff)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, req.Status)
	assert.Equal(t, f.clock.Now(), req.RequestedAt)

	require.Len(t, f.emitter.events, 1)
	assert.Equal(t, notification.TypeNewRequest, f.emitter.events[0].Type)
	payload := f.emitter.events[0].Payload.(notification.NewRequestPayload)
	assert.Equal(t, req.ID, payload.RequestID)
	assert.Equal(t, "Dune", payload.ItemTitle)
	assert.Equal(t, staff, payload.StaffIDs)
}

func TestCreateRequestValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, err := f.service.CreateRequest(ctx, uuid.Nil, uuid.New(), nil)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.service.CreateRequest(ctx, uuid.New(), uuid.New(), nil)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Empty(t, f.emitter.events)
}

// Scenario D: a second pending request for the same pair conflicts.
func TestDuplicatePendingRequestConflicts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	item := f.addItem(t, 2)
	borrower := uuid.New()

	first, err := f.service.CreateRequest(ctx, borrower, item.ID, nil)
	require.NoError(t, err)

	_, err = f.service.CreateRequest(ctx, borrower, item.ID, nil)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.ErrorIs(t, err, ErrDuplicatePending)

	// another borrower is unaffected
	_, err = f.service.CreateRequest(ctx, uuid.New(), item.ID, nil)
	require.NoError(t, err)

	// once the first is decided the pair is free again
	_, err = f.service.Reject(ctx, first.ID, uuid.New())
	require.NoError(t, err)
	_, err = f.service.CreateRequest(ctx, borrower, item.ID, nil)
	require.NoError(t, err)
}

func TestConcurrentCreateKeepsOnePending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	item := f.addItem(t, 1)
	borrower := uuid.New()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.service.CreateRequest(ctx, borrower, item.ID, nil); err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	pending, err := f.service.FindByBorrower(ctx, borrower)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestStaleClaimIsTakenOver(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	item := f.addItem(t, 1)
	borrower := uuid.New()

	// a claim whose request never got written
	_, err := f.store.Insert(ctx, claimCollection, claimID(borrower, item.ID), pendingClaim{
		BorrowerID: borrower, ItemID: item.ID, RequestID: uuid.New(), ClaimedAt: f.clock.Now(),
	})
	require.NoError(t, err)

	// too fresh to be abandoned
	_, err = f.service.CreateRequest(ctx, borrower, item.ID, nil)
	assert.ErrorIs(t, err, ErrDuplicatePending)

	f.clock.Advance(2 * staleClaimAfter)

	_, err = f.service.CreateRequest(ctx, borrower, item.ID, nil)
	require.NoError(t, err)
}

// Scenario A: the last copy goes to the first approval only.
func TestApproveLastCopy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	item := f.addItem(t, 1)
	reviewer := uuid.New()

	a, err := f.service.CreateRequest(ctx, uuid.New(), item.ID, nil)
	require.NoError(t, err)
	b, err := f.service.CreateRequest(ctx, uuid.New(), item.ID, nil)
	require.NoError(t, err)

	approved, err := f.service.Approve(ctx, a.ID, reviewer, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, approved.Status)
	assert.Equal(t, 0, f.available(t, item.ID))
	require.NotNil(t, approved.DueAt)
	assert.Equal(t, approved.ApprovedAt.Add(14*24*time.Hour), *approved.DueAt)

	_, err = f.service.Approve(ctx, b.ID, reviewer, nil)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.ErrorIs(t, err, inventory.ErrNoCopiesAvailable)

	// b stays pending for staff to reject explicitly
	still, err := f.service.GetRequest(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, still.Status)

	stored, err := f.service.GetRequest(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, stored.Status)
	assert.Equal(t, reviewer, *stored.ReviewedBy)
}

func TestApproveTwiceConflicts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	item := f.addItem(t, 2)

	req, err := f.service.CreateRequest(ctx, uuid.New(), item.ID, nil)
	require.NoError(t, err)
	_, err = f.service.Approve(ctx, req.ID, uuid.New(), nil)
	require.NoError(t, err)

	_, err = f.service.Approve(ctx, req.ID, uuid.New(), nil)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	_, err = f.service.Reject(ctx, req.ID, uuid.New())
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	assert.Equal(t, 1, f.available(t, item.ID))
}

func TestApproveWithExplicitDueDate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	item := f.addItem(t, 1)

	req, err := f.service.CreateRequest(ctx, uuid.New(), item.ID, nil)
	require.NoError(t, err)

	past := f.clock.Now().Add(-time.Hour)
	_, err = f.service.Approve(ctx, req.ID, uuid.New(), &past)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Equal(t, 1, f.available(t, item.ID))

	due := f.clock.Now().Add(72 * time.Hour)
	approved, err := f.service.Approve(ctx, req.ID, uuid.New(), &due)
	require.NoError(t, err)
	assert.Equal(t, due, *approved.DueAt)
}

func TestConcurrentApprovalsGrantExactlyAvailableCopies(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	const copies, requests = 3, 12
	item := f.addItem(t, copies)

	ids := make([]uuid.UUID, requests)
	for i := range ids {
		req, err := f.service.CreateRequest(ctx, uuid.New(), item.ID, nil)
		require.NoError(t, err)
		ids[i] = req.ID
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		approved  int
		conflicts int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_, err := f.service.Approve(ctx, id, uuid.New(), nil)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				approved++
			} else if apperr.Is(err, apperr.KindConflict) {
				conflicts++
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, copies, approved)
	assert.Equal(t, requests-copies, conflicts)
	assert.Equal(t, 0, f.available(t, item.ID))
}

func TestApproveRacingOnOneRequestReservesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	item := f.addItem(t, 5)

	req, err := f.service.CreateRequest(ctx, uuid.New(), item.ID, nil)
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		approved int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.service.Approve(ctx, req.ID, uuid.New(), nil); err == nil {
				mu.Lock()
				approved++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, approved)
	assert.Equal(t, 4, f.available(t, item.ID))
}

func TestReturnRoundTripAndIdempotence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	item := f.addItem(t, 2)

	req, err := f.service.CreateRequest(ctx, uuid.New(), item.ID, nil)
	require.NoError(t, err)
	before := f.available(t, item.ID)

	_, err = f.service.Approve(ctx, req.ID, uuid.New(), nil)
	require.NoError(t, err)
	assert.Equal(t, before-1, f.available(t, item.ID))

	f.clock.Advance(24 * time.Hour)
	result, err := f.service.ReturnItem(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusReturned, result.Request.Status)
	assert.False(t, result.Late)
	assert.False(t, result.Restocked)
	assert.Equal(t, before, f.available(t, item.ID))

	_, err = f.service.ReturnItem(ctx, req.ID)
	assert.ErrorIs(t, err, ErrNotApproved)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Equal(t, before, f.available(t, item.ID))
}

func TestReturnPendingConflicts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	item := f.addItem(t, 1)

	req, err := f.service.CreateRequest(ctx, uuid.New(), item.ID, nil)
	require.NoError(t, err)
	_, err = f.service.ReturnItem(ctx, req.ID)
	assert.ErrorIs(t, err, ErrNotApproved)

	_, err = f.service.ReturnItem(ctx, uuid.New())
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestLateReturnRestocksAndWakesWatchlist(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	item := f.addItem(t, 1)

	req, err := f.service.CreateRequest(ctx, uuid.New(), item.ID, nil)
	require.NoError(t, err)
	_, err = f.service.Approve(ctx, req.ID, uuid.New(), nil)
	require.NoError(t, err)

	f.clock.Advance(15 * 24 * time.Hour)
	result, err := f.service.ReturnItem(ctx, req.ID)
	require.NoError(t, err)
	assert.True(t, result.Late)
	assert.True(t, result.Restocked)
	assert.Equal(t, []uuid.UUID{item.ID}, f.restock.items)
}

func TestIsLate(t *testing.T) {
	due := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	assert.False(t, IsLate(due, &due))
	assert.True(t, IsLate(due.Add(time.Second), &due))
	assert.False(t, IsLate(due.Add(time.Hour), nil))
}

func TestFindOrdering(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	borrower := uuid.New()

	var created []uuid.UUID
	for i := 0; i < 3; i++ {
		item := f.addItem(t, 1)
		req, err := f.service.CreateRequest(ctx, borrower, item.ID, nil)
		require.NoError(t, err)
		created = append(created, req.ID)
		f.clock.Advance(time.Minute)
	}

	pending, err := f.service.FindActive(ctx, StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, created, []uuid.UUID{pending[0].ID, pending[1].ID, pending[2].ID})

	history, err := f.service.FindByBorrower(ctx, borrower)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []uuid.UUID{created[2], created[1], created[0]}, []uuid.UUID{history[0].ID, history[1].ID, history[2].ID})

	_, err = f.service.FindActive(ctx, Status("lost"))
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestRemoveItemBlockedByActiveRequest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	item := f.addItem(t, 1)

	req, err := f.service.CreateRequest(ctx, uuid.New(), item.ID, nil)
	require.NoError(t, err)

	err = f.inventory.RemoveItem(ctx, item.ID)
	assert.ErrorIs(t, err, inventory.ErrItemInUse)

	_, err = f.service.Reject(ctx, req.ID, uuid.New())
	require.NoError(t, err)
	require.NoError(t, f.inventory.RemoveItem(ctx, item.ID))
}

// conflictingStore loses every versioned write to the requests collection.
type conflictingStore struct {
	docstore.Store
}

func (s conflictingStore) Update(ctx context.Context, collection, id string, fields docstore.Fields, expectedVersion int) (int, error) {
	if collection == Collection && expectedVersion > 0 {
		return 0, docstore.ErrConcurrencyConflict
	}
	return s.Store.Update(ctx, collection, id, fields, expectedVersion)
}

func TestApproveCompensatesWhenRequestWriteLoses(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, conflictingStore{Store: docstore.NewMemory()})
	item := f.addItem(t, 1)

	req, err := f.service.CreateRequest(ctx, uuid.New(), item.ID, nil)
	require.NoError(t, err)

	_, err = f.service.Approve(ctx, req.ID, uuid.New(), nil)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	assert.Equal(t, 1, f.available(t, item.ID))
}

package httpapi_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lendhub/internal/app"
	"lendhub/internal/circulation"
	"lendhub/internal/clients"
	"lendhub/internal/config"
	"lendhub/internal/httpapi"
	"lendhub/internal/membership"
	"lendhub/internal/metrics"
	"lendhub/internal/notification"
	"lendhub/pkg/docstore"
	"lendhub/pkg/logger"
)

type testEnv struct {
	server   *httptest.Server
	app      *app.App
	admin    *clients.Client
	staff    *clients.Client
	borrower *clients.Client
	staffID  uuid.UUID
}

func setupTestEnv(t *testing.T, opts httpapi.Options) *testEnv {
	t.Helper()
	ctx := context.Background()

	cfg := &config.Config{LoanPeriod: 14 * 24 * time.Hour, ReminderWindowDays: 2}
	a := app.New(docstore.NewMemory(), cfg, logger.Discard())
	if opts.Log == nil {
		opts.Log = logger.Discard()
	}
	server := httptest.NewServer(httpapi.NewRouter(a.Services(), opts))
	t.Cleanup(server.Close)

	register := func(name, email string, role membership.Role) uuid.UUID {
		m, err := a.Members.Register(ctx, name, email, role)
		require.NoError(t, err)
		return m.ID
	}
	adminID := register("Ada", "ada@lendhub.test", membership.RoleAdmin)
	staffID := register("Grace", "grace@lendhub.test", membership.RoleStaff)
	borrowerID := register("Linus", "linus@lendhub.test", membership.RoleBorrower)

	base := clients.NewClient(server.URL, adminID)
	return &testEnv{
		server:   server,
		app:      a,
		admin:    base,
		staff:    base.As(staffID),
		borrower: base.As(borrowerID),
		staffID:  staffID,
	}
}

func apiStatus(t *testing.T, err error) int {
	t.Helper()
	var apiErr *clients.APIError
	require.True(t, errors.As(err, &apiErr), "expected an API error, got %v", err)
	return apiErr.Status
}

func TestBorrowLifecycleOverHTTP(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t, httpapi.Options{})

	item, err := env.admin.AddItem(ctx, "9780441013593", "Dune", "Frank Herbert", 1)
	require.NoError(t, err)

	req, err := env.borrower.CreateRequest(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, circulation.StatusPending, req.Status)

	_, err = env.borrower.CreateRequest(ctx, item.ID)
	assert.Equal(t, http.StatusConflict, apiStatus(t, err))

	staffNotes, err := env.staff.Notifications(ctx, true)
	require.NoError(t, err)
	require.Len(t, staffNotes, 1)
	assert.Equal(t, notification.TypeNewRequest, staffNotes[0].Type)
	assert.Equal(t, `Linus requested "Dune"`, staffNotes[0].Message)

	approved, err := env.staff.Approve(ctx, req.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, circulation.StatusApproved, approved.Status)
	require.NotNil(t, approved.DueAt)
	require.NotNil(t, approved.ReviewedBy)
	assert.Equal(t, env.staffID, *approved.ReviewedBy)

	got, err := env.borrower.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AvailableCopies)

	// a second approval is rejected as already processed
	_, err = env.staff.Approve(ctx, req.ID, nil)
	assert.Equal(t, http.StatusConflict, apiStatus(t, err))

	result, err := env.staff.ReturnItem(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, circulation.StatusReturned, result.Request.Status)
	assert.False(t, result.Late)

	mine, err := env.borrower.MyRequests(ctx)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, circulation.StatusReturned, mine[0].Status)
}

func TestWatcherHearsAboutReturnedCopy(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t, httpapi.Options{})

	item, err := env.admin.AddItem(ctx, "", "Emma", "Jane Austen", 1)
	require.NoError(t, err)

	// the item is available, so watching makes no sense yet
	_, err = env.borrower.Watch(ctx, item.ID)
	assert.Equal(t, http.StatusConflict, apiStatus(t, err))

	req, err := env.borrower.CreateRequest(ctx, item.ID)
	require.NoError(t, err)
	_, err = env.staff.Approve(ctx, req.ID, nil)
	require.NoError(t, err)

	watcher := env.staff
	_, err = watcher.Watch(ctx, item.ID)
	require.NoError(t, err)

	_, err = env.staff.ReturnItem(ctx, req.ID)
	require.NoError(t, err)

	notes, err := watcher.Notifications(ctx, true)
	require.NoError(t, err)
	var available []*notification.Notification
	for _, n := range notes {
		if n.Type == notification.TypeBookAvailable {
			available = append(available, n)
		}
	}
	require.Len(t, available, 1)
	assert.Equal(t, `"Emma" is available to borrow again`, available[0].Message)

	entries, err := watcher.Watchlist(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	marked, err := watcher.MarkAllRead(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(notes), marked)
	unread, err := watcher.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, unread)
}

func TestRoleChecks(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t, httpapi.Options{})

	_, err := env.borrower.AddItem(ctx, "", "Dune", "Frank Herbert", 1)
	assert.Equal(t, http.StatusForbidden, apiStatus(t, err))

	_, err = env.staff.AddItem(ctx, "", "Dune", "Frank Herbert", 1)
	assert.Equal(t, http.StatusForbidden, apiStatus(t, err))

	item, err := env.admin.AddItem(ctx, "", "Dune", "Frank Herbert", 1)
	require.NoError(t, err)
	req, err := env.borrower.CreateRequest(ctx, item.ID)
	require.NoError(t, err)

	_, err = env.borrower.Approve(ctx, req.ID, nil)
	assert.Equal(t, http.StatusForbidden, apiStatus(t, err))

	stranger := env.admin.As(uuid.New())
	_, err = stranger.CreateRequest(ctx, item.ID)
	assert.Equal(t, http.StatusForbidden, apiStatus(t, err))

	anonymous := env.admin.As(uuid.Nil)
	_, err = anonymous.Notifications(ctx, false)
	assert.Equal(t, http.StatusBadRequest, apiStatus(t, err))

	// anyone may browse the catalogue
	items, err := anonymous.ListItems(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestErrorKindsMapToStatus(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t, httpapi.Options{})

	_, err := env.admin.GetItem(ctx, uuid.New())
	assert.Equal(t, http.StatusNotFound, apiStatus(t, err))

	_, err = env.admin.AddItem(ctx, "", "Dune", "Frank Herbert", 0)
	assert.Equal(t, http.StatusBadRequest, apiStatus(t, err))

	item, err := env.admin.AddItem(ctx, "", "Dune", "Frank Herbert", 2)
	require.NoError(t, err)
	req, err := env.borrower.CreateRequest(ctx, item.ID)
	require.NoError(t, err)
	_, err = env.staff.Approve(ctx, req.ID, nil)
	require.NoError(t, err)

	_, err = env.admin.SetTotalCopies(ctx, item.ID, 0)
	assert.Equal(t, http.StatusBadRequest, apiStatus(t, err))

	err = env.admin.RemoveItem(ctx, item.ID)
	assert.Equal(t, http.StatusConflict, apiStatus(t, err))
}

func TestCreateRequestIsRateLimited(t *testing.T) {
	ctx := context.Background()
	m := metrics.New()
	env := setupTestEnv(t, httpapi.Options{Metrics: m, RequestRate: 0.001, RequestBurst: 2})

	var statuses []int
	for i := 0; i < 3; i++ {
		item, err := env.admin.AddItem(ctx, "", "Dune", "Frank Herbert", 1)
		require.NoError(t, err)
		_, err = env.borrower.CreateRequest(ctx, item.ID)
		if err != nil {
			statuses = append(statuses, apiStatus(t, err))
			continue
		}
		statuses = append(statuses, http.StatusCreated)
	}
	assert.Equal(t, []int{http.StatusCreated, http.StatusCreated, http.StatusTooManyRequests}, statuses)

	// limits are per caller
	item, err := env.admin.AddItem(ctx, "", "Emma", "Jane Austen", 1)
	require.NoError(t, err)
	_, err = env.staff.CreateRequest(ctx, item.ID)
	require.NoError(t, err)

	resp, err := http.Get(env.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestScanEndpoint(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t, httpapi.Options{})

	item, err := env.admin.AddItem(ctx, "", "Dune", "Frank Herbert", 1)
	require.NoError(t, err)
	req, err := env.borrower.CreateRequest(ctx, item.ID)
	require.NoError(t, err)
	due := time.Now().Add(3 * time.Hour)
	_, err = env.staff.Approve(ctx, req.ID, &due)
	require.NoError(t, err)

	_, err = env.borrower.Scan(ctx)
	assert.Equal(t, http.StatusForbidden, apiStatus(t, err))

	report, err := env.staff.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 1, report.Reminders)

	notes, err := env.borrower.Notifications(ctx, true)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, `"Dune" is due today`, notes[0].Message)

	require.NoError(t, env.borrower.MarkRead(ctx, notes[0].ID))
	err = env.staff.MarkRead(ctx, notes[0].ID)
	assert.Equal(t, http.StatusNotFound, apiStatus(t, err))
	require.NoError(t, env.borrower.DeleteNotification(ctx, notes[0].ID))
}

func TestHealthz(t *testing.T) {
	env := setupTestEnv(t, httpapi.Options{})

	resp, err := http.Get(env.server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

package chaos

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"lendhub/internal/app"
	"lendhub/internal/circulation"
	"lendhub/internal/inventory"
	"lendhub/internal/membership"
	"lendhub/internal/notification"
)

// RegisterDefaults registers the built-in experiments against a.
func (e *Engine) RegisterDefaults(a *app.App) {
	e.Register(ConcurrentApprovalRace(a, 3, 25))
	e.Register(HandlerFailureIsolation(a))
}

// ledgerViolations counts items whose availability left [0, total].
func ledgerViolations(a *app.App) func(context.Context) (float64, error) {
	return func(ctx context.Context) (float64, error) {
		items, err := a.Inventory.ListItems(ctx)
		if err != nil {
			return 0, err
		}
		bad := 0
		for _, item := range items {
			if item.AvailableCopies < 0 || item.AvailableCopies > item.TotalCopies {
				bad++
			}
		}
		return float64(bad), nil
	}
}

func registerMember(ctx context.Context, a *app.App, label string, role membership.Role) (uuid.UUID, error) {
	tag := uuid.NewString()[:8]
	m, err := a.Members.Register(ctx, "chaos "+label+" "+tag, fmt.Sprintf("chaos-%s-%s@lendhub.invalid", label, tag), role)
	if err != nil {
		return uuid.Nil, err
	}
	return m.ID, nil
}

// ConcurrentApprovalRace approves more requests than there are copies, all
// at once, and checks that no more than copies were lent.
func ConcurrentApprovalRace(a *app.App, copies, requests int) Experiment {
	var (
		itemID   uuid.UUID
		approved atomic.Int64
		declined atomic.Int64
	)

	return Experiment{
		Name:       "concurrent-approval-race",
		Hypothesis: "Concurrent approvals never lend more copies than exist",
		SteadyState: []Probe{
			{
				Name:      "ledger_violations",
				Query:     ledgerViolations(a),
				Threshold: Threshold{Operator: "==", Value: 0},
			},
			{
				Name: "overlent_copies",
				Query: func(ctx context.Context) (float64, error) {
					return float64(approved.Load() - int64(copies)), nil
				},
				Threshold: Threshold{Operator: "<=", Value: 0},
			},
		},
		Method: []Action{
			{
				Type:   "concurrent-requests",
				Target: "circulation",
				Execute: func(ctx context.Context) error {
					approved.Store(0)
					declined.Store(0)

					reviewer, err := registerMember(ctx, a, "reviewer", membership.RoleStaff)
					if err != nil {
						return err
					}
					item, err := a.Inventory.AddItem(ctx, "", "Chaos Copy "+uuid.NewString()[:8], "lendhub", copies)
					if err != nil {
						return err
					}
					itemID = item.ID

					pending := make([]*circulation.Request, 0, requests)
					for i := 0; i < requests; i++ {
						borrower, err := registerMember(ctx, a, "borrower", membership.RoleBorrower)
						if err != nil {
							return err
						}
						req, err := a.Circulation.CreateRequest(ctx, borrower, item.ID, nil)
						if err != nil {
							return err
						}
						pending = append(pending, req)
					}

					var (
						wg    sync.WaitGroup
						mu    sync.Mutex
						other []error
					)
					for _, req := range pending {
						wg.Add(1)
						go func(id uuid.UUID) {
							defer wg.Done()
							_, err := a.Circulation.Approve(ctx, id, reviewer, nil)
							switch {
							case err == nil:
								approved.Add(1)
							case isNoCopies(err):
								declined.Add(1)
							default:
								mu.Lock()
								other = append(other, err)
								mu.Unlock()
							}
						}(req.ID)
					}
					wg.Wait()
					return errors.Join(other...)
				},
			},
		},
		Rollback: []Action{
			{
				Type:   "return-loans",
				Target: "circulation",
				Execute: func(ctx context.Context) error {
					loans, err := a.Circulation.FindActive(ctx, circulation.StatusApproved)
					if err != nil {
						return err
					}
					var errs []error
					for _, loan := range loans {
						if loan.ItemID != itemID {
							continue
						}
						if _, err := a.Circulation.ReturnItem(ctx, loan.ID); err != nil {
							errs = append(errs, err)
						}
					}
					return errors.Join(errs...)
				},
			},
		},
		Validation: []Assertion{
			{
				Probe:     "overlent_copies",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "Exactly as many approvals as copies should succeed",
			},
			{
				Probe:     "ledger_violations",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "Available copies must stay within [0, total]",
			},
		},
		Duration:    200 * time.Millisecond,
		SampleEvery: 50 * time.Millisecond,
	}
}

// HandlerFailureIsolation attaches a failing and a panicking handler next to
// the real ones and checks that notifications are still stored.
func HandlerFailureIsolation(a *app.App) Experiment {
	var (
		attached  []notification.HandlerID
		reviewer  uuid.UUID
		delivered atomic.Int64
	)

	return Experiment{
		Name:       "notification-handler-failure",
		Hypothesis: "A failing or panicking handler does not stop other handlers or the producer",
		SteadyState: []Probe{
			{
				Name:      "ledger_violations",
				Query:     ledgerViolations(a),
				Threshold: Threshold{Operator: "==", Value: 0},
			},
		},
		Method: []Action{
			{
				Type:   "inject-handler-faults",
				Target: "notification",
				Execute: func(ctx context.Context) error {
					delivered.Store(0)
					attached = append(attached,
						a.Dispatcher.Attach(notification.TypeNewRequest, func(ctx context.Context, payload any) error {
							return errors.New("injected handler failure")
						}),
						a.Dispatcher.Attach(notification.TypeNewRequest, func(ctx context.Context, payload any) error {
							panic("injected handler panic")
						}),
						a.Dispatcher.Attach(notification.TypeNewRequest, func(ctx context.Context, payload any) error {
							delivered.Add(1)
							return nil
						}),
					)
					return nil
				},
			},
			{
				Type:   "create-request",
				Target: "circulation",
				Execute: func(ctx context.Context) error {
					var err error
					if reviewer, err = registerMember(ctx, a, "reviewer", membership.RoleStaff); err != nil {
						return err
					}
					borrower, err := registerMember(ctx, a, "borrower", membership.RoleBorrower)
					if err != nil {
						return err
					}
					item, err := a.Inventory.AddItem(ctx, "", "Chaos Notice "+uuid.NewString()[:8], "lendhub", 1)
					if err != nil {
						return err
					}
					req, err := a.Circulation.CreateRequest(ctx, borrower, item.ID, []uuid.UUID{reviewer})
					if err != nil {
						return err
					}
					_, err = a.Circulation.Reject(ctx, req.ID, reviewer)
					return err
				},
			},
		},
		Observe: []Probe{
			{
				Name: "healthy_handler_runs",
				Query: func(ctx context.Context) (float64, error) {
					return float64(delivered.Load()), nil
				},
			},
			{
				Name: "stored_notifications",
				Query: func(ctx context.Context) (float64, error) {
					if reviewer == uuid.Nil {
						return 0, nil
					}
					notes, err := a.Notifications.List(ctx, reviewer, false)
					if err != nil {
						return 0, err
					}
					return float64(len(notes)), nil
				},
			},
		},
		Rollback: []Action{
			{
				Type:   "detach-handlers",
				Target: "notification",
				Execute: func(ctx context.Context) error {
					for _, id := range attached {
						a.Dispatcher.Detach(notification.TypeNewRequest, id)
					}
					attached = nil
					return nil
				},
			},
		},
		Validation: []Assertion{
			{
				Probe:     "healthy_handler_runs",
				Condition: func(v float64) bool { return v >= 1 },
				Message:   "The healthy extra handler should run",
			},
			{
				Probe:     "stored_notifications",
				Condition: func(v float64) bool { return v >= 1 },
				Message:   "The default handler should store the reviewer's notification",
			},
		},
		Duration:    100 * time.Millisecond,
		SampleEvery: 50 * time.Millisecond,
	}
}

func isNoCopies(err error) bool {
	return errors.Is(err, inventory.ErrNoCopiesAvailable)
}

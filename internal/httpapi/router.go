// Package httpapi mounts the context handlers on one chi router.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"lendhub/internal/circulation"
	"lendhub/internal/inventory"
	"lendhub/internal/membership"
	"lendhub/internal/metrics"
	"lendhub/internal/notification"
	"lendhub/internal/scanner"
	"lendhub/internal/watchlist"
	"lendhub/internal/web"
	"lendhub/pkg/logger"
)

// Services are the contexts served over HTTP.
type Services struct {
	Inventory     inventory.Service
	Circulation   circulation.Service
	Members       membership.Service
	Notifications notification.Service
	Watchlist     watchlist.Service
	// Scan runs one due-date scan. Nil disables POST /scan.
	Scan func(ctx context.Context) (scanner.Report, error)
	// Ready reports whether backing stores are reachable. Nil means always ready.
	Ready func(ctx context.Context) error
}

// Options tune the router. Zero values fall back to defaults.
type Options struct {
	Log          *logger.Logger
	Metrics      *metrics.Metrics
	RequestRate  float64
	RequestBurst int
}

const (
	defaultRequestRate  = 5
	defaultRequestBurst = 10
)

// NewRouter wires every route.
func NewRouter(s Services, opts Options) http.Handler {
	if opts.Log == nil {
		opts.Log = logger.NewDefault("http")
	}
	if opts.RequestRate <= 0 {
		opts.RequestRate = defaultRequestRate
	}
	if opts.RequestBurst <= 0 {
		opts.RequestBurst = defaultRequestBurst
	}

	borrower := requireRole(s.Members, membership.CanBorrow)
	reviewer := requireRole(s.Members, membership.CanReview)
	cataloguer := requireRole(s.Members, membership.CanCatalogue)
	limiter := newCallerLimiter(rate.Limit(opts.RequestRate), opts.RequestBurst)

	items := inventory.NewHandler(s.Inventory, s.Watchlist.OnRestock, opts.Log)
	members := membership.NewHandler(s.Members)
	requests := circulation.NewHandler(s.Circulation, s.Members.StaffIDs)
	notes := notification.NewHandler(s.Notifications)
	watches := watchlist.NewHandler(s.Watchlist)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Instrument)
	}
	r.Use(requestLogger(opts.Log))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if s.Ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := s.Ready(ctx); err != nil {
				web.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		web.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	r.Route("/items", func(r chi.Router) {
		r.Get("/", items.HandleListItems)
		r.Get("/{itemID}", items.HandleGetItem)
		r.With(cataloguer).Post("/", items.HandleAddItem)
		r.With(cataloguer).Put("/{itemID}/copies", items.HandleSetTotalCopies)
		r.With(cataloguer).Delete("/{itemID}", items.HandleRemoveItem)
	})

	r.Route("/members", func(r chi.Router) {
		r.With(cataloguer).Post("/", members.HandleRegister)
		r.With(reviewer).Get("/", members.HandleListMembers)
		r.With(reviewer).Get("/{memberID}", members.HandleGetMember)
	})

	r.Route("/requests", func(r chi.Router) {
		r.With(borrower, limiter.middleware("/requests", opts.Metrics)).Post("/", requests.HandleCreate)
		r.With(borrower).Get("/mine", requests.HandleMine)
		r.Group(func(r chi.Router) {
			r.Use(reviewer)
			r.Get("/", requests.HandleList)
			r.Get("/{requestID}", requests.HandleGet)
			r.Post("/{requestID}/approve", requests.HandleApprove)
			r.Post("/{requestID}/reject", requests.HandleReject)
			r.Post("/{requestID}/return", requests.HandleReturn)
		})
	})

	r.Route("/watchlist", func(r chi.Router) {
		r.Use(borrower)
		r.Get("/", watches.HandleList)
		r.Post("/", watches.HandleWatch)
		r.Delete("/{itemID}", watches.HandleUnwatch)
	})

	r.Route("/notifications", func(r chi.Router) {
		r.Use(borrower)
		r.Get("/", notes.HandleList)
		r.Get("/unread-count", notes.HandleUnreadCount)
		r.Post("/read-all", notes.HandleMarkAllRead)
		r.Post("/{notificationID}/read", notes.HandleMarkRead)
		r.Delete("/{notificationID}", notes.HandleDelete)
	})

	if s.Scan != nil {
		r.With(reviewer).Post("/scan", func(w http.ResponseWriter, r *http.Request) {
			report, err := s.Scan(r.Context())
			if err != nil {
				web.Error(w, err)
				return
			}
			web.JSON(w, http.StatusOK, report)
		})
	}

	return r
}

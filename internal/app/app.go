// Package app assembles the lendhub services from configuration.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"lendhub/internal/circulation"
	"lendhub/internal/config"
	"lendhub/internal/httpapi"
	"lendhub/internal/inventory"
	"lendhub/internal/membership"
	"lendhub/internal/notification"
	"lendhub/internal/scanner"
	"lendhub/internal/watchlist"
	"lendhub/pkg/database"
	"lendhub/pkg/docstore"
	"lendhub/pkg/logger"
)

// App holds one wired instance of every context.
type App struct {
	Config        *config.Config
	Log           *logger.Logger
	DB            *sql.DB
	Store         docstore.Store
	Dispatcher    *notification.Dispatcher
	Inventory     inventory.Service
	Circulation   circulation.Service
	Members       membership.Service
	Notifications notification.Service
	Watchlist     watchlist.Service
	Scanner       *scanner.Scanner
}

// Open connects the configured store, runs migrations when asked, wires the
// services and loads the member roster.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger, migrate bool) (*App, error) {
	if log == nil {
		log = logger.NewDefault("lendhub")
	}

	var (
		db    *sql.DB
		store docstore.Store
	)
	if cfg.StoreDriver == config.StoreMemory {
		store = docstore.NewMemory()
	} else {
		var err error
		db, store, err = openSQL(ctx, cfg, log, migrate)
		if err != nil {
			return nil, err
		}
	}

	a := New(store, cfg, log)
	a.DB = db

	if cfg.MembersFile != "" {
		n, err := a.Members.LoadRoster(ctx, cfg.MembersFile)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("load member roster: %w", err)
		}
		log.WithField("members", n).WithField("file", cfg.MembersFile).Info("member roster loaded")
	}
	return a, nil
}

func openSQL(ctx context.Context, cfg *config.Config, log *logger.Logger, migrate bool) (*sql.DB, docstore.Store, error) {
	driver := cfg.DatabaseDriver()
	db, err := database.Open(ctx, database.Config{
		Driver:       driver,
		URL:          cfg.DatabaseURL,
		SQLitePath:   cfg.SQLitePath,
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
		ConnMaxLife:  cfg.DBConnMaxLife,
	})
	if err != nil {
		return nil, nil, err
	}

	if migrate {
		version, err := database.Migrate(db, driver)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		log.WithField("version", version).Info("schema migrated")
	}

	dialect := docstore.Postgres
	if driver == database.DriverSQLite {
		dialect = docstore.SQLite
	}
	store, err := docstore.NewSQL(db, driver, dialect)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, store, nil
}

// New wires every service on top of store.
func New(store docstore.Store, cfg *config.Config, log *logger.Logger) *App {
	if log == nil {
		log = logger.NewDefault("lendhub")
	}

	members := membership.NewService(store, log.Named("membership"))

	dispatcher := notification.NewDispatcher(log.Named("notification"))
	notification.RegisterDefaults(dispatcher, notification.NewTranslators(store, members))

	inv := inventory.NewService(store, log.Named("inventory"),
		inventory.WithReferenceChecker(circulation.HasActiveRequests(store)))
	watches := watchlist.NewService(store, inv, dispatcher, log.Named("watchlist"))
	circ := circulation.NewService(store, inv, dispatcher, log.Named("circulation"),
		circulation.WithLoanPeriod(cfg.LoanPeriod),
		circulation.WithRestockHandler(watches))
	notes := notification.NewService(store, log.Named("notification"))

	scan := scanner.New(circ, inv, dispatcher, log.Named("scanner"),
		scanner.WithReminderWindow(cfg.ReminderWindowDays),
		scanner.WithMembers(members),
		scanner.WithRetention(notes, cfg.NotificationRetention))

	return &App{
		Config:        cfg,
		Log:           log,
		Store:         store,
		Dispatcher:    dispatcher,
		Inventory:     inv,
		Circulation:   circ,
		Members:       members,
		Notifications: notes,
		Watchlist:     watches,
		Scanner:       scan,
	}
}

// Services exposes the contexts for the HTTP router.
func (a *App) Services() httpapi.Services {
	s := httpapi.Services{
		Inventory:     a.Inventory,
		Circulation:   a.Circulation,
		Members:       a.Members,
		Notifications: a.Notifications,
		Watchlist:     a.Watchlist,
		Scan:          a.Scanner.RunOnce,
	}
	if a.DB != nil {
		s.Ready = a.DB.PingContext
	}
	return s
}

// Close releases the database connection, if any.
func (a *App) Close() error {
	if a.DB == nil {
		return nil
	}
	return a.DB.Close()
}

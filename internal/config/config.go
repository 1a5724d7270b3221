// Package config loads lendhub settings from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"lendhub/internal/apperr"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StorePgx      = "pgx"
	StoreSQLite   = "sqlite"
)

// Config is the process-wide configuration.
type Config struct {
	HTTPAddr string `env:"LENDHUB_HTTP_ADDR,default=:8080"`

	StoreDriver    string        `env:"LENDHUB_STORE_DRIVER,default=memory"`
	DatabaseURL    string        `env:"DATABASE_URL"`
	SQLitePath     string        `env:"LENDHUB_SQLITE_PATH,default=data/lendhub.db"`
	DBMaxOpenConns int           `env:"LENDHUB_DB_MAX_OPEN_CONNS,default=20"`
	DBMaxIdleConns int           `env:"LENDHUB_DB_MAX_IDLE_CONNS,default=5"`
	DBConnMaxLife  time.Duration `env:"LENDHUB_DB_CONN_MAX_LIFETIME,default=30m"`
	MigrateOnServe bool          `env:"LENDHUB_MIGRATE_ON_SERVE,default=true"`

	ScanSchedule       string        `env:"LENDHUB_SCAN_SCHEDULE,default=@every 24h"`
	LoanPeriod         time.Duration `env:"LENDHUB_LOAN_PERIOD,default=336h"`
	ReminderWindowDays int           `env:"LENDHUB_REMINDER_WINDOW_DAYS,default=2"`
	RedisURL           string        `env:"LENDHUB_REDIS_URL"`

	MembersFile string `env:"LENDHUB_MEMBERS_FILE"`

	LogLevel  string `env:"LENDHUB_LOG_LEVEL,default=info"`
	LogFormat string `env:"LENDHUB_LOG_FORMAT,default=text"`

	OTLPEndpoint string `env:"LENDHUB_OTLP_ENDPOINT"`

	RequestRate  float64 `env:"LENDHUB_REQUEST_RATE,default=5"`
	RequestBurst int     `env:"LENDHUB_REQUEST_BURST,default=10"`

	NotificationRetention time.Duration `env:"LENDHUB_NOTIFICATION_RETENTION,default=0s"`
}

// Load reads an optional .env file and decodes the environment.
func Load(envFiles ...string) (*Config, error) {
	// a missing .env is normal outside development
	_ = godotenv.Load(envFiles...)

	cfg := &Config{}
	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first malformed setting.
func (c *Config) Validate() error {
	const op = "config.validate"

	switch c.StoreDriver {
	case StoreMemory, StoreSQLite:
	case StorePostgres, StorePgx:
		if c.DatabaseURL == "" {
			return apperr.Validation(op, "DATABASE_URL is required for the "+c.StoreDriver+" store")
		}
	default:
		return apperr.Validation(op, fmt.Sprintf("unknown store driver %q", c.StoreDriver))
	}

	if c.StoreDriver == StoreSQLite && c.SQLitePath == "" {
		return apperr.Validation(op, "LENDHUB_SQLITE_PATH is required for the sqlite store")
	}
	if _, err := c.Schedule(); err != nil {
		return apperr.Validation(op, fmt.Sprintf("invalid scan schedule %q: %v", c.ScanSchedule, err))
	}
	if c.LoanPeriod <= 0 {
		return apperr.Validation(op, "loan period must be positive")
	}
	if c.ReminderWindowDays < 0 {
		return apperr.Validation(op, "reminder window must not be negative")
	}
	if c.RequestRate <= 0 || c.RequestBurst <= 0 {
		return apperr.Validation(op, "request rate and burst must be positive")
	}
	if c.NotificationRetention < 0 {
		return apperr.Validation(op, "notification retention must not be negative")
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return apperr.Validation(op, fmt.Sprintf("unknown log format %q", c.LogFormat))
	}
	return nil
}

// Schedule parses ScanSchedule. Standard five-field cron and descriptors such
// as "@daily" or "@every 6h" are accepted.
func (c *Config) Schedule() (cron.Schedule, error) {
	return cron.ParseStandard(c.ScanSchedule)
}

// DatabaseDriver maps the store driver to the database/sql driver name.
func (c *Config) DatabaseDriver() string {
	if c.StoreDriver == StoreSQLite {
		return "sqlite3"
	}
	return c.StoreDriver
}

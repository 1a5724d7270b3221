package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lendhub/internal/apperr"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LENDHUB_STORE_DRIVER", "memory")

	cfg, err := Load("testdata/does-not-exist.env")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 336*time.Hour, cfg.LoanPeriod)
	assert.Equal(t, 2, cfg.ReminderWindowDays)
	assert.Equal(t, "@every 24h", cfg.ScanSchedule)
	assert.Zero(t, cfg.NotificationRetention)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("LENDHUB_STORE_DRIVER", "pgx")
	t.Setenv("DATABASE_URL", "postgres://lendhub@localhost/lendhub")
	t.Setenv("LENDHUB_SCAN_SCHEDULE", "0 6 * * *")
	t.Setenv("LENDHUB_REMINDER_WINDOW_DAYS", "3")
	t.Setenv("LENDHUB_NOTIFICATION_RETENTION", "720h")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "pgx", cfg.DatabaseDriver())
	assert.Equal(t, 3, cfg.ReminderWindowDays)
	assert.Equal(t, 720*time.Hour, cfg.NotificationRetention)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			StoreDriver:        StoreMemory,
			ScanSchedule:       "@every 24h",
			LoanPeriod:         336 * time.Hour,
			ReminderWindowDays: 2,
			RequestRate:        5,
			RequestBurst:       10,
			LogFormat:          "text",
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.StoreDriver = "mongo" }},
		{"postgres without url", func(c *Config) { c.StoreDriver = StorePostgres }},
		{"bad schedule", func(c *Config) { c.ScanSchedule = "every day" }},
		{"zero loan period", func(c *Config) { c.LoanPeriod = 0 }},
		{"negative window", func(c *Config) { c.ReminderWindowDays = -1 }},
		{"zero burst", func(c *Config) { c.RequestBurst = 0 }},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }},
	}

	require.NoError(t, base().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindValidation))
		})
	}
}

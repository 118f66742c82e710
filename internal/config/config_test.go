package config

import (
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "DB_DRIVER", "DATABASE_URL", "LOAN_PERIOD_DAYS", "FINE_PER_DAY",
		"STUDENT_REGISTRATIONS_PER_MINUTE", "LOG_LEVEL", "OTEL_EXPORTER_OTLP_ENDPOINT", "SERVICE_NAME", "CHAOS_API_URL",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 14, cfg.LoanPeriodDays)
	assert.Equal(t, "5", cfg.FinePerDay.String())
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, defaultDatabaseURL, cfg.DatabaseURL)
	assert.Equal(t, "http://localhost:8080", cfg.ChaosAPIURL)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_DRIVER", "sqlite3")
	t.Setenv("DATABASE_URL", "file::memory:")
	t.Setenv("LOAN_PERIOD_DAYS", "7")
	t.Setenv("FINE_PER_DAY", "2.50")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite3", cfg.DatabaseDriver)
	assert.Equal(t, "file::memory:", cfg.DatabaseURL)
	assert.Equal(t, 7, cfg.LoanPeriodDays)
	assert.Equal(t, "2.5", cfg.FinePerDay.String())
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown driver", "DB_DRIVER", "mysql"},
		{"non-numeric loan period", "LOAN_PERIOD_DAYS", "two weeks"},
		{"zero loan period", "LOAN_PERIOD_DAYS", "0"},
		{"bad fine", "FINE_PER_DAY", "five"},
		{"negative fine", "FINE_PER_DAY", "-1"},
		{"bad log level", "LOG_LEVEL", "loud"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.val)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"DB_DRIVER", "DATABASE_PATH", "LEDGER_REFUND_WINDOW", "LEDGER_FAIL_OPEN_READS",
		"LEDGER_SWEEP_ON_CONSUME", "AUDIT_SINK", "HTTP_CORS_ORIGINS", "SWEEP_INTERVAL"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "credits.db", cfg.Database.Path)
	assert.Equal(t, 24*time.Hour, cfg.Ledger.RefundWindow)
	assert.False(t, cfg.Ledger.FailOpenReads)
	assert.True(t, cfg.Ledger.SweepOnConsume)
	assert.Equal(t, "log", cfg.Audit.Sink)
	assert.Equal(t, []string{"*"}, cfg.Server.CorsOrigins)
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.Interval)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "pgx")
	t.Setenv("DATABASE_URL", "postgres://ledger@localhost/ledger")
	t.Setenv("LEDGER_REFUND_WINDOW", "48h")
	t.Setenv("LEDGER_FAIL_OPEN_READS", "true")
	t.Setenv("AUDIT_WORKERS", "8")
	t.Setenv("HTTP_CORS_ORIGINS", "https://a.example, ,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "pgx", cfg.Database.Driver)
	assert.Equal(t, "postgres://ledger@localhost/ledger", cfg.Database.URL)
	assert.Equal(t, 48*time.Hour, cfg.Ledger.RefundWindow)
	assert.True(t, cfg.Ledger.FailOpenReads)
	assert.Equal(t, 8, cfg.Audit.Workers)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CorsOrigins)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("SWEEP_INTERVAL", "every so often")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SWEEP_INTERVAL")
}

func TestInvalidNumbersFallBack(t *testing.T) {
	t.Setenv("DB_MAX_OPEN_CONNS", "lots")
	t.Setenv("LEDGER_SWEEP_ON_CONSUME", "maybe")

	assert.Equal(t, 25, getEnvInt("DB_MAX_OPEN_CONNS", 25))
	assert.True(t, getEnvBool("LEDGER_SWEEP_ON_CONSUME", true))
}

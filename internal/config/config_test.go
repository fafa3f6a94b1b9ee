package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	assert.NoError(t, cfg.Validate())
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "serve"
log_level = "debug"

[postgres]
host = "db.internal"
database = "markets"

[sweeper]
interval = "1m"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "serve", cfg.Mode)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.Equal(t, "markets", cfg.Postgres.Database)
	assert.Equal(t, time.Minute, cfg.Sweeper.Interval.Duration)
	// Untouched sections keep their defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 8000, cfg.Server.Port)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CASEMARKET_POSTGRES_DSN", "postgres://env/dsn")
	t.Setenv("CASEMARKET_SERVER_PORT", "9999")
	t.Setenv("CASEMARKET_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("CASEMARKET_SWEEPER_INTERVAL", "45s")
	t.Setenv("CASEMARKET_LEDGER_BACKEND", "memory")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.Equal(t, "postgres://env/dsn", cfg.Postgres.DSN)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 45*time.Second, cfg.Sweeper.Interval.Duration)
	assert.Equal(t, "memory", cfg.Ledger.Backend)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "replay"
	cfg.LogLevel = "verbose"
	cfg.Postgres.PoolMinConns = 50
	cfg.Redis.Addr = ""
	cfg.Ledger.Backend = "dynamo"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "unknown log_level")
	assert.Contains(t, err.Error(), "pool_min_conns")
	assert.Contains(t, err.Error(), "redis: addr")
	assert.Contains(t, err.Error(), "ledger: unknown backend")
}

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies CASEMARKET_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CASEMARKET_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "CASEMARKET_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "CASEMARKET_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CASEMARKET_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CASEMARKET_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CASEMARKET_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CASEMARKET_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CASEMARKET_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "CASEMARKET_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CASEMARKET_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "CASEMARKET_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "CASEMARKET_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CASEMARKET_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CASEMARKET_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CASEMARKET_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CASEMARKET_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CASEMARKET_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "CASEMARKET_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CASEMARKET_S3_REGION")
	setStr(&cfg.S3.Bucket, "CASEMARKET_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CASEMARKET_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CASEMARKET_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CASEMARKET_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CASEMARKET_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "CASEMARKET_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "CASEMARKET_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "CASEMARKET_SERVER_CORS_ORIGINS")
	setStringSlice(&cfg.Server.APIKeys, "CASEMARKET_SERVER_API_KEYS")

	// ── Sweeper ──
	setBool(&cfg.Sweeper.Enabled, "CASEMARKET_SWEEPER_ENABLED")
	setDuration(&cfg.Sweeper.Interval, "CASEMARKET_SWEEPER_INTERVAL")
	setInt(&cfg.Sweeper.BatchSize, "CASEMARKET_SWEEPER_BATCH_SIZE")

	// ── Ledger ──
	setStr(&cfg.Ledger.Backend, "CASEMARKET_LEDGER_BACKEND")

	// ── Top-level ──
	setStr(&cfg.Mode, "CASEMARKET_MODE")
	setStr(&cfg.LogLevel, "CASEMARKET_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

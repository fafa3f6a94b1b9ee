package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/verdictlabs/casemarket/internal/blob/s3"
	"github.com/verdictlabs/casemarket/internal/cache/redis"
	"github.com/verdictlabs/casemarket/internal/config"
	"github.com/verdictlabs/casemarket/internal/domain"
	"github.com/verdictlabs/casemarket/internal/ledger"
	"github.com/verdictlabs/casemarket/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	MarketStore domain.MarketStore
	BetStore    domain.BetStore
	AuditStore  domain.AuditStore

	// Custody
	Ledger domain.Ledger

	// Caches
	PriceCache  domain.PriceCache
	MarketCache domain.MarketCache
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.SettlementArchiver

	// Clock
	Clock domain.Clock

	// Health probes for the /api/health endpoint, keyed by dependency name.
	Health map[string]func(context.Context) error
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Clock:  domain.SystemClock{},
		Health: make(map[string]func(context.Context) error),
	}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)
	deps.Health["postgres"] = pgClient.Health

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.MarketStore = postgres.NewMarketStore(pool)
	deps.BetStore = postgres.NewBetStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)

	// --- Custody ledger ---
	switch strings.ToLower(cfg.Ledger.Backend) {
	case "memory":
		logger.WarnContext(ctx, "wire: using in-memory ledger, balances are lost on restart")
		deps.Ledger = ledger.NewMemory()
	default:
		deps.Ledger = postgres.NewAccountStore(pool)
	}

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })
	deps.Health["redis"] = redisClient.Health

	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.MarketCache = redis.NewMarketCache(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- S3 blob storage for settlement archives ---
	s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
		Endpoint:       cfg.S3.Endpoint,
		Region:         cfg.S3.Region,
		Bucket:         cfg.S3.Bucket,
		AccessKey:      cfg.S3.AccessKey,
		SecretKey:      cfg.S3.SecretKey,
		UseSSL:         cfg.S3.UseSSL,
		ForcePathStyle: cfg.S3.ForcePathStyle,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: s3: %w", err)
	}
	closers = append(closers, func() { _ = s3Client.Close() })
	deps.Health["s3"] = s3Client.Health

	writer := s3blob.NewWriter(s3Client)
	reader := s3blob.NewReader(s3Client)
	deps.BlobWriter = writer
	deps.BlobReader = reader
	deps.Archiver = s3blob.NewArchiver(writer, reader, deps.AuditStore, deps.Clock)

	return deps, cleanup, nil
}

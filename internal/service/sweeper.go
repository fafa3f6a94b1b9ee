package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/verdictlabs/casemarket/internal/domain"
)

// Sweeper periodically moves markets whose settlement deadline has passed
// from active to closed, so they stop accepting bets even before the oracle
// shows up. Multiple replicas may sweep concurrently; the per-market lock in
// MarketService.Close makes the transition race-free and losers simply skip.
type Sweeper struct {
	markets   domain.MarketStore
	svc       *MarketService
	clock     domain.Clock
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

// NewSweeper creates a Sweeper.
func NewSweeper(
	markets domain.MarketStore,
	svc *MarketService,
	clock domain.Clock,
	interval time.Duration,
	batchSize int,
	logger *slog.Logger,
) *Sweeper {
	return &Sweeper{
		markets:   markets,
		svc:       svc,
		clock:     clock,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Run sweeps on the configured interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "sweeper: started",
		slog.Duration("interval", s.interval),
		slog.Int("batch_size", s.batchSize),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "sweeper: stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.SweepOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.ErrorContext(ctx, "sweeper: sweep failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// SweepOnce closes every expired market it can reach in one pass and returns
// the first query error. Per-market close failures are logged and skipped so
// one stuck market cannot block the rest of the batch.
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	expired, err := s.markets.ListExpired(ctx, s.clock.Now(), s.batchSize)
	if err != nil {
		return err
	}

	closed := 0
	for _, m := range expired {
		err := s.svc.Close(ctx, m.CaseID)
		switch {
		case err == nil:
			closed++
		case errors.Is(err, domain.ErrLockHeld):
			// Another replica or a live trade holds the market; next pass.
		case errors.Is(err, domain.ErrMarketNotActive):
			// Already closed or settled since the listing.
		default:
			s.logger.WarnContext(ctx, "sweeper: close failed",
				slog.String("case_id", m.CaseID),
				slog.String("error", err.Error()),
			)
		}
	}

	if closed > 0 {
		s.logger.InfoContext(ctx, "sweeper: closed expired markets",
			slog.Int("closed", closed),
			slog.Int("candidates", len(expired)),
		)
	}
	return nil
}

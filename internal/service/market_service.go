// Package service orchestrates the engine's pure state transitions against
// storage, custody, caching, and event delivery. Each mutating operation runs
// under the market's distributed lock: load current state, apply the engine
// transition on copies, move funds, persist, then fan out events.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/verdictlabs/casemarket/internal/amm"
	"github.com/verdictlabs/casemarket/internal/domain"
	"github.com/verdictlabs/casemarket/internal/engine"
	"github.com/verdictlabs/casemarket/internal/ledger"
)

// defaultLockTTL bounds how long one operation may hold a market lock.
const defaultLockTTL = 10 * time.Second

// MarketService handles market lifecycle: creation, closing, settlement, and
// reads.
type MarketService struct {
	markets  domain.MarketStore
	bets     domain.BetStore
	funds    domain.Ledger
	cache    domain.MarketCache
	prices   domain.PriceCache
	locks    domain.LockManager
	bus      domain.SignalBus
	archiver domain.SettlementArchiver
	audit    domain.AuditStore
	clock    domain.Clock
	logger   *slog.Logger
}

// NewMarketService creates a MarketService with all required dependencies.
func NewMarketService(
	markets domain.MarketStore,
	bets domain.BetStore,
	funds domain.Ledger,
	cache domain.MarketCache,
	prices domain.PriceCache,
	locks domain.LockManager,
	bus domain.SignalBus,
	archiver domain.SettlementArchiver,
	audit domain.AuditStore,
	clock domain.Clock,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		markets:  markets,
		bets:     bets,
		funds:    funds,
		cache:    cache,
		prices:   prices,
		locks:    locks,
		bus:      bus,
		archiver: archiver,
		audit:    audit,
		clock:    clock,
		logger:   logger,
	}
}

// Create validates and persists a new market. The creator's initial liquidity
// moves into the market escrow before the record is written; if the write
// fails the funds are returned.
func (s *MarketService) Create(ctx context.Context, p engine.CreateParams) (domain.Market, error) {
	now := s.clock.Now()
	market, pool, err := engine.CreateMarket(p, now)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: create %q: %w", p.CaseID, err)
	}

	escrow := ledger.EscrowAccount(p.CaseID)
	if err := s.funds.Transfer(ctx, p.Creator, escrow, p.InitialLiquidity); err != nil {
		return domain.Market{}, fmt.Errorf("market_service: escrow seed for %q: %w", p.CaseID, err)
	}

	if err := s.markets.Create(ctx, *market, *pool); err != nil {
		// Return the seed; the market does not exist.
		if refundErr := s.funds.TransferFromEscrow(ctx, ledger.AuthorityFor(p.CaseID), p.Creator, p.InitialLiquidity); refundErr != nil {
			s.logger.ErrorContext(ctx, "market_service: seed refund failed",
				slog.String("case_id", p.CaseID),
				slog.String("error", refundErr.Error()),
			)
		}
		return domain.Market{}, fmt.Errorf("market_service: persist %q: %w", p.CaseID, err)
	}

	s.cacheMarket(ctx, *market)
	s.publishPrices(ctx, *pool)
	s.publishMarketEvent(ctx, "created", *market, now)

	if err := s.audit.Log(ctx, "market.created", map[string]any{
		"case_id":           p.CaseID,
		"creator":           p.Creator,
		"oracle":            p.Oracle,
		"outcomes":          len(p.Outcomes),
		"initial_liquidity": p.InitialLiquidity,
	}); err != nil {
		s.logger.WarnContext(ctx, "market_service: audit log failed",
			slog.String("case_id", p.CaseID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "market_service: market created",
		slog.String("case_id", p.CaseID),
		slog.Int("outcomes", len(p.Outcomes)),
		slog.Uint64("initial_liquidity", p.InitialLiquidity),
	)
	return *market, nil
}

// Get retrieves a market by case id, checking the cache first and falling
// back to the persistent store on a cache miss.
func (s *MarketService) Get(ctx context.Context, caseID string) (domain.Market, error) {
	m, err := s.cache.Get(ctx, caseID)
	if err == nil {
		return m, nil
	}

	m, _, err = s.markets.GetByCaseID(ctx, caseID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("market_service: get %q: %w", caseID, err)
	}

	s.cacheMarket(ctx, m)
	return m, nil
}

// GetWithPool retrieves a market together with its pool, bypassing the cache.
func (s *MarketService) GetWithPool(ctx context.Context, caseID string) (domain.Market, domain.LiquidityPool, error) {
	m, p, err := s.markets.GetByCaseID(ctx, caseID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Market{}, domain.LiquidityPool{}, domain.ErrNotFound
		}
		return domain.Market{}, domain.LiquidityPool{}, fmt.Errorf("market_service: get with pool %q: %w", caseID, err)
	}
	return m, p, nil
}

// Prices returns the latest price vector for a market, preferring the cache
// and recomputing from reserves on a miss.
func (s *MarketService) Prices(ctx context.Context, caseID string) ([]uint64, error) {
	if prices, _, err := s.prices.GetPrices(ctx, caseID); err == nil {
		return prices, nil
	}

	_, pool, err := s.GetWithPool(ctx, caseID)
	if err != nil {
		return nil, err
	}
	prices, err := amm.Prices(pool.Reserves)
	if err != nil {
		return nil, fmt.Errorf("market_service: prices for %q: %w", caseID, err)
	}
	if err := s.prices.SetPrices(ctx, caseID, prices, s.clock.Now()); err != nil {
		s.logger.WarnContext(ctx, "market_service: price cache set failed",
			slog.String("case_id", caseID),
			slog.String("error", err.Error()),
		)
	}
	return prices, nil
}

// ListByStatus returns markets in the given status from the persistent store.
func (s *MarketService) ListByStatus(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	markets, err := s.markets.ListByStatus(ctx, status, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list by status %s: %w", status, err)
	}
	return markets, nil
}

// Count returns the total number of markets.
func (s *MarketService) Count(ctx context.Context) (int64, error) {
	return s.markets.Count(ctx)
}

// Close moves a market past its deadline from active to closed. Called by the
// deadline sweeper and available to operators.
func (s *MarketService) Close(ctx context.Context, caseID string) error {
	unlock, err := s.locks.Acquire(ctx, caseID, defaultLockTTL)
	if err != nil {
		return fmt.Errorf("market_service: close %q: %w", caseID, err)
	}
	defer unlock()

	market, pool, err := s.markets.GetByCaseID(ctx, caseID)
	if err != nil {
		return fmt.Errorf("market_service: close %q: %w", caseID, err)
	}

	now := s.clock.Now()
	next := market.Clone()
	if err := engine.Close(next, now); err != nil {
		return fmt.Errorf("market_service: close %q: %w", caseID, err)
	}

	if err := s.markets.Update(ctx, *next, pool); err != nil {
		return fmt.Errorf("market_service: persist close %q: %w", caseID, err)
	}

	s.cacheMarket(ctx, *next)
	s.publishMarketEvent(ctx, "closed", *next, now)

	s.logger.InfoContext(ctx, "market_service: market closed",
		slog.String("case_id", caseID),
	)
	return nil
}

// Settle records the oracle's outcome, archives the settlement report, and
// announces the result. Only the market's oracle may settle, and only once.
func (s *MarketService) Settle(ctx context.Context, caseID, caller string, outcomeIdx int) (domain.Market, error) {
	unlock, err := s.locks.Acquire(ctx, caseID, defaultLockTTL)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: settle %q: %w", caseID, err)
	}
	defer unlock()

	market, pool, err := s.markets.GetByCaseID(ctx, caseID)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: settle %q: %w", caseID, err)
	}

	now := s.clock.Now()
	next := market.Clone()
	if err := engine.Settle(next, caller, outcomeIdx, now); err != nil {
		return domain.Market{}, fmt.Errorf("market_service: settle %q: %w", caseID, err)
	}

	if err := s.markets.Update(ctx, *next, pool); err != nil {
		return domain.Market{}, fmt.Errorf("market_service: persist settle %q: %w", caseID, err)
	}

	s.cacheMarket(ctx, *next)

	// Archive and announce after the commit. Failures here do not undo the
	// settlement; the archive is retried on the next settle attempt by virtue
	// of being write-once keyed by case id.
	archivePath := s.archiveSettlement(ctx, *next)
	s.publishMarketEvent(ctx, "settled", *next, now)
	s.publishSettlement(ctx, *next, archivePath, now)

	if err := s.audit.Log(ctx, "market.settled", map[string]any{
		"case_id":         caseID,
		"oracle":          caller,
		"winning_outcome": outcomeIdx,
		"archive_path":    archivePath,
	}); err != nil {
		s.logger.WarnContext(ctx, "market_service: audit log failed",
			slog.String("case_id", caseID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "market_service: market settled",
		slog.String("case_id", caseID),
		slog.Int("winning_outcome", outcomeIdx),
	)
	return *next, nil
}

// archiveSettlement exports the settlement report and returns the object
// path, or "" when archiving failed.
func (s *MarketService) archiveSettlement(ctx context.Context, market domain.Market) string {
	bets, err := s.bets.ListByMarket(ctx, market.CaseID, domain.ListOpts{})
	if err != nil {
		s.logger.ErrorContext(ctx, "market_service: settlement archive bet query failed",
			slog.String("case_id", market.CaseID),
			slog.String("error", err.Error()),
		)
		return ""
	}

	path, err := s.archiver.ArchiveSettlement(ctx, market, bets)
	if err != nil {
		s.logger.ErrorContext(ctx, "market_service: settlement archive failed",
			slog.String("case_id", market.CaseID),
			slog.String("error", err.Error()),
		)
		return ""
	}
	return path
}

// ---------------------------------------------------------------------------
// shared fan-out helpers, used by the bet and liquidity services as well
// ---------------------------------------------------------------------------

func (s *MarketService) cacheMarket(ctx context.Context, m domain.Market) {
	if err := s.cache.Set(ctx, m); err != nil {
		s.logger.WarnContext(ctx, "market_service: cache set failed",
			slog.String("case_id", m.CaseID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *MarketService) publishMarketEvent(ctx context.Context, typ string, m domain.Market, now time.Time) {
	payload, err := json.Marshal(MarketEvent{
		Type:     typ,
		CaseID:   m.CaseID,
		Status:   string(m.Status),
		Occurred: now,
	})
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, ChannelMarkets, payload); err != nil {
		s.logger.WarnContext(ctx, "market_service: publish failed",
			slog.String("channel", ChannelMarkets),
			slog.String("error", err.Error()),
		)
	}
}

func (s *MarketService) publishPrices(ctx context.Context, pool domain.LiquidityPool) {
	prices, err := amm.Prices(pool.Reserves)
	if err != nil {
		return
	}
	now := s.clock.Now()

	if err := s.prices.SetPrices(ctx, pool.CaseID, prices, now); err != nil {
		s.logger.WarnContext(ctx, "market_service: price cache set failed",
			slog.String("case_id", pool.CaseID),
			slog.String("error", err.Error()),
		)
	}

	payload, err := json.Marshal(PriceEvent{
		CaseID:   pool.CaseID,
		Prices:   prices,
		Occurred: now,
	})
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, ChannelPrices, payload); err != nil {
		s.logger.WarnContext(ctx, "market_service: publish failed",
			slog.String("channel", ChannelPrices),
			slog.String("error", err.Error()),
		)
	}
}

func (s *MarketService) publishSettlement(ctx context.Context, m domain.Market, archivePath string, now time.Time) {
	if m.WinningOutcome == nil {
		return
	}
	payload, err := json.Marshal(SettlementEvent{
		CaseID:         m.CaseID,
		WinningOutcome: *m.WinningOutcome,
		ArchivePath:    archivePath,
		Occurred:       now,
	})
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, ChannelSettlements, payload); err != nil {
		s.logger.WarnContext(ctx, "market_service: publish failed",
			slog.String("channel", ChannelSettlements),
			slog.String("error", err.Error()),
		)
	}
	if err := s.bus.StreamAppend(ctx, StreamSettlements, payload); err != nil {
		s.logger.WarnContext(ctx, "market_service: stream append failed",
			slog.String("stream", StreamSettlements),
			slog.String("error", err.Error()),
		)
	}
}

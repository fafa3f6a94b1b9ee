package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/verdictlabs/casemarket/internal/domain"
	"github.com/verdictlabs/casemarket/internal/engine"
	"github.com/verdictlabs/casemarket/internal/ledger"
)

// LiquidityService handles pool deposits and withdrawals.
type LiquidityService struct {
	markets domain.MarketStore
	funds   domain.Ledger
	locks   domain.LockManager
	audit   domain.AuditStore
	clock   domain.Clock
	shared  *MarketService
	logger  *slog.Logger
}

// NewLiquidityService creates a LiquidityService.
func NewLiquidityService(
	markets domain.MarketStore,
	funds domain.Ledger,
	locks domain.LockManager,
	audit domain.AuditStore,
	clock domain.Clock,
	shared *MarketService,
	logger *slog.Logger,
) *LiquidityService {
	return &LiquidityService{
		markets: markets,
		funds:   funds,
		locks:   locks,
		audit:   audit,
		clock:   clock,
		shared:  shared,
		logger:  logger,
	}
}

// Add deposits per-outcome amounts into a market's pool and returns the LP
// tokens minted. The deposit moves into escrow before the state is written; a
// failed write refunds it.
func (s *LiquidityService) Add(ctx context.Context, caseID, provider string, amounts []uint64) (uint64, error) {
	unlock, err := s.locks.Acquire(ctx, caseID, defaultLockTTL)
	if err != nil {
		return 0, fmt.Errorf("liquidity_service: add to %q: %w", caseID, err)
	}
	defer unlock()

	market, pool, err := s.markets.GetByCaseID(ctx, caseID)
	if err != nil {
		return 0, fmt.Errorf("liquidity_service: add to %q: %w", caseID, err)
	}

	nextMarket := market.Clone()
	nextPool := pool.Clone()
	minted, err := engine.AddLiquidity(nextMarket, nextPool, amounts)
	if err != nil {
		return 0, fmt.Errorf("liquidity_service: add to %q: %w", caseID, err)
	}

	var total uint64
	for _, a := range amounts {
		total += a
	}
	if err := s.funds.Transfer(ctx, provider, ledger.EscrowAccount(caseID), total); err != nil {
		return 0, fmt.Errorf("liquidity_service: deposit transfer for %q: %w", caseID, err)
	}

	if err := s.markets.Update(ctx, *nextMarket, *nextPool); err != nil {
		if refundErr := s.funds.TransferFromEscrow(ctx, ledger.AuthorityFor(caseID), provider, total); refundErr != nil {
			s.logger.ErrorContext(ctx, "liquidity_service: deposit refund failed",
				slog.String("case_id", caseID),
				slog.String("provider", provider),
				slog.String("error", refundErr.Error()),
			)
		}
		return 0, fmt.Errorf("liquidity_service: persist add for %q: %w", caseID, err)
	}

	s.shared.cacheMarket(ctx, *nextMarket)
	s.shared.publishPrices(ctx, *nextPool)

	if err := s.audit.Log(ctx, "liquidity.added", map[string]any{
		"case_id":  caseID,
		"provider": provider,
		"total":    total,
		"minted":   minted,
	}); err != nil {
		s.logger.WarnContext(ctx, "liquidity_service: audit log failed",
			slog.String("case_id", caseID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "liquidity_service: liquidity added",
		slog.String("case_id", caseID),
		slog.Uint64("total", total),
		slog.Uint64("minted", minted),
	)
	return minted, nil
}

// Remove burns LP tokens and pays the provider their pro-rata slice of every
// reserve from escrow. The new state is committed before funds leave escrow.
func (s *LiquidityService) Remove(ctx context.Context, caseID, provider string, lpTokens uint64) ([]uint64, error) {
	unlock, err := s.locks.Acquire(ctx, caseID, defaultLockTTL)
	if err != nil {
		return nil, fmt.Errorf("liquidity_service: remove from %q: %w", caseID, err)
	}
	defer unlock()

	market, pool, err := s.markets.GetByCaseID(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("liquidity_service: remove from %q: %w", caseID, err)
	}

	nextMarket := market.Clone()
	nextPool := pool.Clone()
	withdrawn, err := engine.RemoveLiquidity(nextMarket, nextPool, lpTokens)
	if err != nil {
		return nil, fmt.Errorf("liquidity_service: remove from %q: %w", caseID, err)
	}

	if err := s.markets.Update(ctx, *nextMarket, *nextPool); err != nil {
		return nil, fmt.Errorf("liquidity_service: persist remove for %q: %w", caseID, err)
	}

	var total uint64
	for _, w := range withdrawn {
		total += w
	}
	if err := s.funds.TransferFromEscrow(ctx, ledger.AuthorityFor(caseID), provider, total); err != nil {
		return nil, fmt.Errorf("liquidity_service: withdrawal transfer for %q: %w", caseID, err)
	}

	s.shared.cacheMarket(ctx, *nextMarket)
	s.shared.publishPrices(ctx, *nextPool)

	if err := s.audit.Log(ctx, "liquidity.removed", map[string]any{
		"case_id":   caseID,
		"provider":  provider,
		"lp_tokens": lpTokens,
		"total":     total,
	}); err != nil {
		s.logger.WarnContext(ctx, "liquidity_service: audit log failed",
			slog.String("case_id", caseID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "liquidity_service: liquidity removed",
		slog.String("case_id", caseID),
		slog.Uint64("lp_tokens", lpTokens),
		slog.Uint64("total", total),
	)
	return withdrawn, nil
}

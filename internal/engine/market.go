// Package engine implements the market state machine: creation, betting,
// liquidity changes, settlement, and claims. Every operation is a pure
// state transition over Market/Pool/Bet records: it either applies fully or
// returns an error having touched nothing, so callers can run it on loaded
// copies and persist the result as one atomic step.
package engine

import (
	"time"

	"github.com/verdictlabs/casemarket/internal/amm"
	"github.com/verdictlabs/casemarket/internal/domain"
)

// CreateParams are the external entry-point parameters for a new market.
type CreateParams struct {
	CaseID           string
	Creator          string
	Oracle           string
	Outcomes         []string
	SettlementTime   time.Time
	InitialLiquidity uint64
}

// CreateMarket validates the parameters and builds a market with its pool.
// The initial liquidity is split evenly across outcomes (truncating): each
// outcome is seeded with `initialLiquidity / n` reserves and the same number
// of shares, so the winning-share denominator can never be zero at
// settlement. TotalLiquidity records the full deposit, pre-truncation.
func CreateMarket(p CreateParams, now time.Time) (*domain.Market, *domain.LiquidityPool, error) {
	if len(p.CaseID) > domain.MaxCaseIDLen {
		return nil, nil, domain.ErrCaseIDTooLong
	}
	if len(p.Outcomes) < domain.MinOutcomes || len(p.Outcomes) > domain.MaxOutcomes {
		return nil, nil, domain.ErrTooManyOutcomes
	}
	for _, name := range p.Outcomes {
		if len(name) > domain.MaxOutcomeNameLen {
			return nil, nil, domain.ErrOutcomeNameTooLong
		}
	}
	if p.InitialLiquidity < domain.MinInitialLiquidity {
		return nil, nil, domain.ErrInsufficientLiquidity
	}
	if !p.SettlementTime.After(now) {
		return nil, nil, domain.ErrSettlementTimeNotReached
	}

	n := uint64(len(p.Outcomes))
	perOutcome := p.InitialLiquidity / n

	outcomes := make([]domain.Outcome, len(p.Outcomes))
	reserves := make([]uint64, len(p.Outcomes))
	for i, name := range p.Outcomes {
		outcomes[i] = domain.Outcome{
			Name:        name,
			TotalShares: perOutcome,
			Price:       domain.PriceScale / n,
		}
		reserves[i] = perOutcome
	}

	k, err := amm.Product(reserves)
	if err != nil {
		return nil, nil, err
	}

	market := &domain.Market{
		CaseID:         p.CaseID,
		Creator:        p.Creator,
		Oracle:         p.Oracle,
		Outcomes:       outcomes,
		TotalLiquidity: p.InitialLiquidity,
		Status:         domain.MarketStatusActive,
		SettlementTime: p.SettlementTime,
		FeeBps:         domain.PlatformFeeBps,
		CreatedAt:      now,
	}
	pool := &domain.LiquidityPool{
		CaseID:        p.CaseID,
		Reserves:      reserves,
		TotalLPTokens: p.InitialLiquidity,
		KConstant:     k,
	}
	return market, pool, nil
}

// Close transitions an active market past its deadline to closed. Used by the
// deadline sweeper; closed markets reject bets but still await settlement.
func Close(m *domain.Market, now time.Time) error {
	if m.Status != domain.MarketStatusActive {
		return domain.ErrMarketNotActive
	}
	if now.Before(m.SettlementTime) {
		return domain.ErrSettlementTimeNotReached
	}
	m.Status = domain.MarketStatusClosed
	return nil
}

// Settle declares the winning outcome. The transition is terminal and
// idempotent-failing: a second settle of the same market fails with
// ErrMarketAlreadySettled, never silently succeeds. On any error the market
// is left untouched.
func Settle(m *domain.Market, caller string, winIdx int, now time.Time) error {
	if caller != m.Oracle {
		return domain.ErrOracleNotAuthorized
	}
	if now.Before(m.SettlementTime) {
		return domain.ErrSettlementTimeNotReached
	}
	if m.IsSettled() {
		return domain.ErrMarketAlreadySettled
	}
	if m.Status != domain.MarketStatusActive && m.Status != domain.MarketStatusClosed {
		return domain.ErrMarketNotActive
	}
	if winIdx < 0 || winIdx >= len(m.Outcomes) {
		return domain.ErrInvalidOutcomeIndex
	}

	w := uint8(winIdx)
	settledAt := now
	m.WinningOutcome = &w
	m.SettledAt = &settledAt
	m.Status = domain.MarketStatusSettled
	return nil
}

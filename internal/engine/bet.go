package engine

import (
	"math/bits"
	"time"

	"github.com/verdictlabs/casemarket/internal/amm"
	"github.com/verdictlabs/casemarket/internal/domain"
)

// BetParams are the caller-supplied inputs to PlaceBet.
type BetParams struct {
	User         string
	OutcomeIndex int
	Amount       uint64
	// MinSharesOut is the caller's slippage bound; 0 disables the check.
	MinSharesOut uint64
}

// PlaceBet applies a stake to the market and pool in place and returns the
// resulting bet record. Validation order is fixed: status, outcome index,
// amount bounds, deadline, then pricing. The mutation is all-or-nothing; on
// error the market and pool are unchanged.
//
// Shares are priced against the stored k snapshot, the full stake is added to
// the outcome's reserve, and prices are refreshed from the new reserves. k is
// deliberately not recomputed here; it only moves at liquidity events.
func PlaceBet(m *domain.Market, pool *domain.LiquidityPool, p BetParams, now time.Time) (*domain.Bet, error) {
	if m.Status != domain.MarketStatusActive {
		return nil, domain.ErrMarketNotActive
	}
	if p.OutcomeIndex < 0 || p.OutcomeIndex >= len(m.Outcomes) {
		return nil, domain.ErrInvalidOutcomeIndex
	}
	if p.Amount < domain.MinBetAmount {
		return nil, domain.ErrBetAmountTooSmall
	}
	if p.Amount > domain.MaxBetAmount {
		return nil, domain.ErrBetAmountTooLarge
	}
	if !now.Before(m.SettlementTime) {
		return nil, domain.ErrSettlementTimeNotReached
	}

	idx := p.OutcomeIndex
	shares, err := amm.SharesOut(p.Amount, pool.Reserves[idx], pool.KConstant)
	if err != nil {
		return nil, err
	}
	if p.MinSharesOut > 0 && shares < p.MinSharesOut {
		return nil, domain.ErrSlippageExceeded
	}

	entryPrice, err := amm.Price(pool.Reserves, idx)
	if err != nil {
		return nil, err
	}

	newReserve, carry := bits.Add64(pool.Reserves[idx], p.Amount, 0)
	if carry != 0 {
		return nil, domain.ErrArithmeticOverflow
	}
	newShares, carry := bits.Add64(m.Outcomes[idx].TotalShares, shares, 0)
	if carry != 0 {
		return nil, domain.ErrArithmeticOverflow
	}
	newLiquidity, carry := bits.Add64(m.TotalLiquidity, p.Amount, 0)
	if carry != 0 {
		return nil, domain.ErrArithmeticOverflow
	}

	newReserves := make([]uint64, len(pool.Reserves))
	copy(newReserves, pool.Reserves)
	newReserves[idx] = newReserve
	prices, err := amm.Prices(newReserves)
	if err != nil {
		return nil, err
	}

	seq := m.TotalBets
	pool.Reserves = newReserves
	m.Outcomes[idx].TotalShares = newShares
	m.Outcomes[idx].BetCount++
	m.TotalLiquidity = newLiquidity
	m.TotalBets++
	for i := range m.Outcomes {
		m.Outcomes[i].Price = prices[i]
	}

	return &domain.Bet{
		ID:           domain.BetID(m.CaseID, seq),
		CaseID:       m.CaseID,
		User:         p.User,
		OutcomeIndex: uint8(idx),
		Amount:       p.Amount,
		Shares:       shares,
		EntryPrice:   entryPrice,
		Seq:          seq,
		Timestamp:    now,
	}, nil
}

// Payout is the settlement math for one winning bet: the gross pro-rata claim
// on the pool, the platform fee, and the net amount owed.
type Payout struct {
	Gross  uint64 `json:"gross"`
	Fee    uint64 `json:"fee"`
	Net    uint64 `json:"net"`
	FeeBps uint16 `json:"fee_bps"`
}

// Claim computes the payout for a bet against a settled market. It does not
// mark the bet claimed; the caller's store performs that as a conditional
// update so double claims lose the race rather than double pay.
func Claim(m *domain.Market, bet *domain.Bet) (Payout, error) {
	if !m.IsSettled() {
		return Payout{}, domain.ErrMarketNotSettled
	}
	if bet.Claimed {
		return Payout{}, domain.ErrAlreadyClaimed
	}
	if m.WinningOutcome == nil || bet.OutcomeIndex != *m.WinningOutcome {
		return Payout{}, domain.ErrNotWinningBet
	}

	winShares := m.Outcomes[*m.WinningOutcome].TotalShares
	gross, err := amm.PotentialPayout(bet.Shares, winShares, m.TotalLiquidity)
	if err != nil {
		return Payout{}, err
	}

	fee, err := amm.MulDiv(gross, uint64(m.FeeBps), 10_000)
	if err != nil {
		return Payout{}, err
	}
	// A stored fee above 10,000 bps would push the fee past the gross amount.
	if fee > gross {
		return Payout{}, domain.ErrArithmeticUnderflow
	}
	return Payout{
		Gross:  gross,
		Fee:    fee,
		Net:    gross - fee,
		FeeBps: m.FeeBps,
	}, nil
}

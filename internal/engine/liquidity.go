package engine

import (
	"math/bits"

	"github.com/verdictlabs/casemarket/internal/amm"
	"github.com/verdictlabs/casemarket/internal/domain"
)

// AddLiquidity deposits per-outcome amounts into the pool and mints LP tokens
// pro rata against the pre-deposit reserve total. This is a liquidity event:
// the k snapshot is recomputed from the new reserves, which repins trade
// pricing to the deepened pool.
//
// LP tokens minted: totalDeposit * totalLPTokens / sum(reserves), truncating.
func AddLiquidity(m *domain.Market, pool *domain.LiquidityPool, amounts []uint64) (uint64, error) {
	if m.Status != domain.MarketStatusActive {
		return 0, domain.ErrMarketNotActive
	}
	if len(amounts) != len(pool.Reserves) {
		return 0, domain.ErrInvalidLiquidityAmounts
	}

	var totalDeposit uint64
	anyPositive := false
	for _, a := range amounts {
		if a > 0 {
			anyPositive = true
		}
		var carry uint64
		totalDeposit, carry = bits.Add64(totalDeposit, a, 0)
		if carry != 0 {
			return 0, domain.ErrArithmeticOverflow
		}
	}
	if !anyPositive {
		return 0, domain.ErrInvalidLiquidityAmounts
	}

	var reserveSum uint64
	for _, r := range pool.Reserves {
		var carry uint64
		reserveSum, carry = bits.Add64(reserveSum, r, 0)
		if carry != 0 {
			return 0, domain.ErrArithmeticOverflow
		}
	}
	if reserveSum == 0 {
		return 0, domain.ErrInsufficientLiquidity
	}

	minted, err := amm.MulDiv(totalDeposit, pool.TotalLPTokens, reserveSum)
	if err != nil {
		return 0, err
	}

	newReserves := make([]uint64, len(pool.Reserves))
	for i, r := range pool.Reserves {
		nr, carry := bits.Add64(r, amounts[i], 0)
		if carry != 0 {
			return 0, domain.ErrArithmeticOverflow
		}
		newReserves[i] = nr
	}
	k, err := amm.Product(newReserves)
	if err != nil {
		return 0, err
	}
	newLPTotal, carry := bits.Add64(pool.TotalLPTokens, minted, 0)
	if carry != 0 {
		return 0, domain.ErrArithmeticOverflow
	}
	newLiquidity, carry := bits.Add64(m.TotalLiquidity, totalDeposit, 0)
	if carry != 0 {
		return 0, domain.ErrArithmeticOverflow
	}
	prices, err := amm.Prices(newReserves)
	if err != nil {
		return 0, err
	}

	pool.Reserves = newReserves
	pool.TotalLPTokens = newLPTotal
	pool.KConstant = k
	m.TotalLiquidity = newLiquidity
	for i := range m.Outcomes {
		m.Outcomes[i].Price = prices[i]
	}
	return minted, nil
}

// RemoveLiquidity burns LP tokens and withdraws the holder's pro-rata slice of
// every reserve. Like AddLiquidity it recomputes the k snapshot.
//
// TotalLiquidity is the market's cumulative deposit counter and the payout
// denominator's numerator; it stays monotone and is not reduced here. The
// withdrawn amounts come out of the reserves only.
func RemoveLiquidity(m *domain.Market, pool *domain.LiquidityPool, lpTokens uint64) ([]uint64, error) {
	if m.Status != domain.MarketStatusActive {
		return nil, domain.ErrMarketNotActive
	}
	if lpTokens == 0 {
		return nil, domain.ErrInvalidLiquidityAmounts
	}
	if lpTokens > pool.TotalLPTokens {
		return nil, domain.ErrInsufficientLPTokens
	}
	// Draining the pool entirely would leave trades unpriceable.
	if lpTokens == pool.TotalLPTokens {
		return nil, domain.ErrInsufficientLiquidity
	}

	withdrawn := make([]uint64, len(pool.Reserves))
	newReserves := make([]uint64, len(pool.Reserves))
	for i, r := range pool.Reserves {
		w, err := amm.MulDiv(r, lpTokens, pool.TotalLPTokens)
		if err != nil {
			return nil, err
		}
		withdrawn[i] = w
		newReserves[i] = r - w
	}

	k, err := amm.Product(newReserves)
	if err != nil {
		return nil, err
	}
	prices, err := amm.Prices(newReserves)
	if err != nil {
		return nil, err
	}

	pool.Reserves = newReserves
	pool.TotalLPTokens -= lpTokens
	pool.KConstant = k
	for i := range m.Outcomes {
		m.Outcomes[i].Price = prices[i]
	}
	return withdrawn, nil
}

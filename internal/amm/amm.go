// Package amm implements the constant-product pricing math for multi-outcome
// pools. It is pure: no knowledge of markets or bets, just checked integer
// arithmetic over reserves.
//
// Wide intermediates use 256-bit integers (holiman/uint256) with explicit
// overflow checks; every truncating division rounds toward zero, which is a
// one-sided rounding in the protocol's favor.
package amm

import (
	"math/bits"

	"github.com/holiman/uint256"

	"github.com/verdictlabs/casemarket/internal/domain"
)

// SharesOut converts a stake on one outcome into issued shares using the
// constant-product formula against the pool's k snapshot:
//
//	newReserve = reserve + amountIn
//	shares     = reserve - k/newReserve
//
// k is the product of all reserves as of the last liquidity event, not the
// live product; callers must pass the stored snapshot.
func SharesOut(amountIn, reserve uint64, k *uint256.Int) (uint64, error) {
	newReserve, carry := bits.Add64(reserve, amountIn, 0)
	if carry != 0 {
		return 0, domain.ErrArithmeticOverflow
	}
	if newReserve == 0 {
		return 0, domain.ErrArithmeticOverflow
	}

	counter := new(uint256.Int).Div(k, uint256.NewInt(newReserve))
	if !counter.IsUint64() || counter.Uint64() > reserve {
		// Should not happen for a well-formed k/reserve pair, but a stale or
		// corrupted snapshot must not mint shares out of thin air.
		return 0, domain.ErrArithmeticUnderflow
	}

	return reserve - counter.Uint64(), nil
}

// Price returns the fixed-point price of outcome idx:
// reserves[idx] * PriceScale / sum(reserves). All outcome prices sum to
// PriceScale up to truncation.
func Price(reserves []uint64, idx int) (uint64, error) {
	if idx < 0 || idx >= len(reserves) {
		return 0, domain.ErrInvalidOutcomeIndex
	}

	total := new(uint256.Int)
	for _, r := range reserves {
		total.Add(total, uint256.NewInt(r))
	}
	if total.IsZero() {
		return 0, domain.ErrArithmeticOverflow
	}

	p := uint256.NewInt(reserves[idx])
	p.Mul(p, uint256.NewInt(domain.PriceScale))
	p.Div(p, total)
	return p.Uint64(), nil
}

// Prices returns the full price vector, index aligned with reserves.
func Prices(reserves []uint64) ([]uint64, error) {
	out := make([]uint64, len(reserves))
	for i := range reserves {
		p, err := Price(reserves, i)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

// Product recomputes the invariant k as the product of all reserves. Called
// only at pool creation and liquidity add/remove events, never per trade.
func Product(reserves []uint64) (*uint256.Int, error) {
	k := uint256.NewInt(1)
	for _, r := range reserves {
		if _, overflow := k.MulOverflow(k, uint256.NewInt(r)); overflow {
			return nil, domain.ErrArithmeticOverflow
		}
	}
	return k, nil
}

// PriceImpact estimates the relative price move caused by a stake, in
// PriceScale fixed-point: amountIn * PriceScale / (reserveIn + amountIn).
func PriceImpact(amountIn, reserveIn uint64) (uint64, error) {
	denom, carry := bits.Add64(reserveIn, amountIn, 0)
	if carry != 0 {
		return 0, domain.ErrArithmeticOverflow
	}
	if denom == 0 {
		return 0, domain.ErrArithmeticOverflow
	}
	return MulDiv(amountIn, domain.PriceScale, denom)
}

// PotentialPayout converts shares into their pro-rata claim on the pool:
// shares * totalLiquidity / totalOutcomeShares, truncating. Returns 0 when no
// shares were ever issued against the outcome.
func PotentialPayout(shares, totalOutcomeShares, totalLiquidity uint64) (uint64, error) {
	if totalOutcomeShares == 0 {
		return 0, nil
	}
	return MulDiv(shares, totalLiquidity, totalOutcomeShares)
}

// MulDiv computes a*b/c with a 128-bit intermediate, truncating, failing when
// the result does not fit in 64 bits.
func MulDiv(a, b, c uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi >= c {
		return 0, domain.ErrArithmeticOverflow
	}
	q, _ := bits.Div64(hi, lo, c)
	return q, nil
}

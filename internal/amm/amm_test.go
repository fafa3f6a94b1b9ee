package amm

import (
	"math"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdictlabs/casemarket/internal/domain"
)

func TestSharesOut(t *testing.T) {
	// Two-outcome pool seeded with 1e9 per side, k = 1e18.
	k, err := Product([]uint64{1_000_000_000, 1_000_000_000})
	require.NoError(t, err)

	shares, err := SharesOut(10_000_000, 1_000_000_000, k)
	require.NoError(t, err)
	assert.Equal(t, uint64(9_900_991), shares)
	assert.Less(t, shares, uint64(10_000_000), "shares must cost more than face value")
}

func TestSharesOutOverflow(t *testing.T) {
	k := uint256.NewInt(1)
	_, err := SharesOut(math.MaxUint64, 2, k)
	assert.ErrorIs(t, err, domain.ErrArithmeticOverflow)
}

func TestSharesOutStaleSnapshot(t *testing.T) {
	// A snapshot larger than the live product would imply negative shares.
	k, err := Product([]uint64{5_000_000_000, 5_000_000_000})
	require.NoError(t, err)

	_, err = SharesOut(10_000_000, 1_000_000_000, k)
	assert.ErrorIs(t, err, domain.ErrArithmeticUnderflow)
}

func TestPrice(t *testing.T) {
	tests := []struct {
		name     string
		reserves []uint64
		idx      int
		want     uint64
	}{
		{"even two-way", []uint64{1_000_000_000, 1_000_000_000}, 0, 500_000},
		{"skewed favorite", []uint64{1_010_000_000, 1_000_000_000}, 0, 502_487},
		{"skewed underdog", []uint64{1_010_000_000, 1_000_000_000}, 1, 497_512},
		{"even three-way", []uint64{100, 100, 100}, 1, 333_333},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Price(tt.reserves, tt.idx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Price([]uint64{100, 100}, 2)
	assert.ErrorIs(t, err, domain.ErrInvalidOutcomeIndex)
	_, err = Price([]uint64{100, 100}, -1)
	assert.ErrorIs(t, err, domain.ErrInvalidOutcomeIndex)
}

func TestPricesSumToScale(t *testing.T) {
	reserves := []uint64{1_010_000_000, 1_000_000_000, 730_000_001}
	prices, err := Prices(reserves)
	require.NoError(t, err)

	var sum uint64
	for _, p := range prices {
		sum += p
	}
	// Truncation loses at most one unit per outcome.
	assert.LessOrEqual(t, domain.PriceScale-sum, uint64(len(reserves)))
	assert.LessOrEqual(t, sum, domain.PriceScale)
}

func TestProduct(t *testing.T) {
	k, err := Product([]uint64{1_000_000_000, 1_000_000_000})
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(0).Mul(
		uint256.NewInt(1_000_000_000), uint256.NewInt(1_000_000_000)), k)
}

func TestPriceImpact(t *testing.T) {
	impact, err := PriceImpact(10_000_000, 1_000_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(9_900), impact)
}

func TestPotentialPayout(t *testing.T) {
	got, err := PotentialPayout(9_900_991, 1_009_900_991, 2_010_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(19_705_884), got)

	got, err = PotentialPayout(100, 0, 2_010_000_000)
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestMulDiv(t *testing.T) {
	got, err := MulDiv(math.MaxUint64, math.MaxUint64, math.MaxUint64)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), got)

	_, err = MulDiv(math.MaxUint64, 2, 1)
	assert.ErrorIs(t, err, domain.ErrArithmeticOverflow)
}

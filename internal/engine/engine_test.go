package engine

import (
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdictlabs/casemarket/internal/domain"
)

var (
	testNow      = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	testDeadline = testNow.Add(72 * time.Hour)
)

func newTestMarket(t *testing.T) (*domain.Market, *domain.LiquidityPool) {
	t.Helper()
	m, pool, err := CreateMarket(CreateParams{
		CaseID:           "case-2026-0042",
		Creator:          "alice",
		Oracle:           "oracle-1",
		Outcomes:         []string{"plaintiff", "defendant"},
		SettlementTime:   testDeadline,
		InitialLiquidity: 2_000_000_000,
	}, testNow)
	require.NoError(t, err)
	return m, pool
}

func TestCreateMarket(t *testing.T) {
	m, pool := newTestMarket(t)

	assert.Equal(t, domain.MarketStatusActive, m.Status)
	assert.Equal(t, uint64(2_000_000_000), m.TotalLiquidity)
	assert.Equal(t, domain.PlatformFeeBps, m.FeeBps)
	require.Len(t, m.Outcomes, 2)
	for _, o := range m.Outcomes {
		assert.Equal(t, uint64(1_000_000_000), o.TotalShares)
		assert.Equal(t, uint64(500_000), o.Price)
	}

	assert.Equal(t, []uint64{1_000_000_000, 1_000_000_000}, pool.Reserves)
	assert.Equal(t, uint64(2_000_000_000), pool.TotalLPTokens)
	wantK := new(uint256.Int).Mul(uint256.NewInt(1_000_000_000), uint256.NewInt(1_000_000_000))
	assert.Equal(t, wantK, pool.KConstant)
}

func TestCreateMarketValidation(t *testing.T) {
	base := CreateParams{
		CaseID:           "case-1",
		Creator:          "alice",
		Oracle:           "oracle-1",
		Outcomes:         []string{"yes", "no"},
		SettlementTime:   testDeadline,
		InitialLiquidity: 2_000_000_000,
	}

	tests := []struct {
		name    string
		mutate  func(*CreateParams)
		wantErr error
	}{
		{"one outcome", func(p *CreateParams) { p.Outcomes = []string{"yes"} }, domain.ErrTooManyOutcomes},
		{"eleven outcomes", func(p *CreateParams) {
			p.Outcomes = make([]string, 11)
			for i := range p.Outcomes {
				p.Outcomes[i] = "o"
			}
		}, domain.ErrTooManyOutcomes},
		{"liquidity below floor", func(p *CreateParams) { p.InitialLiquidity = 999_999_999 }, domain.ErrInsufficientLiquidity},
		{"deadline in the past", func(p *CreateParams) { p.SettlementTime = testNow.Add(-time.Hour) }, domain.ErrSettlementTimeNotReached},
		{"deadline exactly now", func(p *CreateParams) { p.SettlementTime = testNow }, domain.ErrSettlementTimeNotReached},
		{"case id too long", func(p *CreateParams) {
			b := make([]byte, domain.MaxCaseIDLen+1)
			for i := range b {
				b[i] = 'x'
			}
			p.CaseID = string(b)
		}, domain.ErrCaseIDTooLong},
		{"outcome name too long", func(p *CreateParams) {
			b := make([]byte, domain.MaxOutcomeNameLen+1)
			for i := range b {
				b[i] = 'x'
			}
			p.Outcomes = []string{string(b), "no"}
		}, domain.ErrOutcomeNameTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			tt.mutate(&p)
			_, _, err := CreateMarket(p, testNow)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCreateMarketTruncatesPerOutcomeSeed(t *testing.T) {
	m, pool, err := CreateMarket(CreateParams{
		CaseID:           "case-3way",
		Creator:          "alice",
		Oracle:           "oracle-1",
		Outcomes:         []string{"a", "b", "c"},
		SettlementTime:   testDeadline,
		InitialLiquidity: 1_000_000_000,
	}, testNow)
	require.NoError(t, err)

	// 1e9 / 3 truncates; TotalLiquidity keeps the full deposit.
	assert.Equal(t, uint64(333_333_333), pool.Reserves[0])
	assert.Equal(t, uint64(1_000_000_000), m.TotalLiquidity)
	assert.Equal(t, uint64(333_333), m.Outcomes[0].Price)
}

func TestPlaceBet(t *testing.T) {
	m, pool := newTestMarket(t)

	bet, err := PlaceBet(m, pool, BetParams{
		User:         "bob",
		OutcomeIndex: 0,
		Amount:       10_000_000,
	}, testNow)
	require.NoError(t, err)

	assert.Equal(t, "case-2026-0042/0", bet.ID)
	assert.Equal(t, uint64(9_900_991), bet.Shares)
	assert.Equal(t, uint64(500_000), bet.EntryPrice)
	assert.Equal(t, uint8(0), bet.OutcomeIndex)
	assert.Equal(t, uint64(0), bet.Seq)

	assert.Equal(t, uint64(1_010_000_000), pool.Reserves[0])
	assert.Equal(t, uint64(1_000_000_000), pool.Reserves[1])
	assert.Equal(t, uint64(1_009_900_991), m.Outcomes[0].TotalShares)
	assert.Equal(t, uint64(1), m.Outcomes[0].BetCount)
	assert.Equal(t, uint64(2_010_000_000), m.TotalLiquidity)
	assert.Equal(t, uint64(1), m.TotalBets)

	// The backed outcome got more expensive, the other cheaper.
	assert.Equal(t, uint64(502_487), m.Outcomes[0].Price)
	assert.Equal(t, uint64(497_512), m.Outcomes[1].Price)
}

func TestPlaceBetKeepsSnapshotAcrossTrades(t *testing.T) {
	m, pool := newTestMarket(t)
	k0 := pool.KConstant.Clone()

	_, err := PlaceBet(m, pool, BetParams{User: "bob", OutcomeIndex: 0, Amount: 10_000_000}, testNow)
	require.NoError(t, err)
	_, err = PlaceBet(m, pool, BetParams{User: "carol", OutcomeIndex: 1, Amount: 10_000_000}, testNow)
	require.NoError(t, err)

	// Trades never move k; the live reserve product drifts above it.
	assert.Equal(t, k0, pool.KConstant)
	live := new(uint256.Int).Mul(uint256.NewInt(pool.Reserves[0]), uint256.NewInt(pool.Reserves[1]))
	assert.Equal(t, 1, live.Cmp(k0))
}

func TestPlaceBetValidation(t *testing.T) {
	tests := []struct {
		name    string
		params  BetParams
		now     time.Time
		wantErr error
	}{
		{"below minimum", BetParams{User: "bob", OutcomeIndex: 0, Amount: domain.MinBetAmount - 1}, testNow, domain.ErrBetAmountTooSmall},
		{"above maximum", BetParams{User: "bob", OutcomeIndex: 0, Amount: domain.MaxBetAmount + 1}, testNow, domain.ErrBetAmountTooLarge},
		{"index out of range", BetParams{User: "bob", OutcomeIndex: 2, Amount: 10_000_000}, testNow, domain.ErrInvalidOutcomeIndex},
		{"negative index", BetParams{User: "bob", OutcomeIndex: -1, Amount: 10_000_000}, testNow, domain.ErrInvalidOutcomeIndex},
		{"at deadline", BetParams{User: "bob", OutcomeIndex: 0, Amount: 10_000_000}, testDeadline, domain.ErrSettlementTimeNotReached},
		{"past deadline", BetParams{User: "bob", OutcomeIndex: 0, Amount: 10_000_000}, testDeadline.Add(time.Hour), domain.ErrSettlementTimeNotReached},
		{"slippage bound", BetParams{User: "bob", OutcomeIndex: 0, Amount: 10_000_000, MinSharesOut: 9_900_992}, testNow, domain.ErrSlippageExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, pool := newTestMarket(t)
			before := m.Clone()
			beforePool := pool.Clone()

			_, err := PlaceBet(m, pool, tt.params, tt.now)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, before, m, "failed bet must not mutate the market")
			assert.Equal(t, beforePool, pool, "failed bet must not mutate the pool")
		})
	}
}

func TestPlaceBetRejectsInactiveMarket(t *testing.T) {
	m, pool := newTestMarket(t)
	m.Status = domain.MarketStatusClosed

	_, err := PlaceBet(m, pool, BetParams{User: "bob", OutcomeIndex: 0, Amount: 10_000_000}, testNow)
	assert.ErrorIs(t, err, domain.ErrMarketNotActive)
}

func TestClose(t *testing.T) {
	m, _ := newTestMarket(t)

	err := Close(m, testNow)
	assert.ErrorIs(t, err, domain.ErrSettlementTimeNotReached)
	assert.Equal(t, domain.MarketStatusActive, m.Status)

	require.NoError(t, Close(m, testDeadline))
	assert.Equal(t, domain.MarketStatusClosed, m.Status)

	err = Close(m, testDeadline)
	assert.ErrorIs(t, err, domain.ErrMarketNotActive)
}

func TestSettle(t *testing.T) {
	m, _ := newTestMarket(t)

	err := Settle(m, "oracle-1", 0, testNow)
	assert.ErrorIs(t, err, domain.ErrSettlementTimeNotReached)

	err = Settle(m, "mallory", 0, testDeadline)
	assert.ErrorIs(t, err, domain.ErrOracleNotAuthorized)

	err = Settle(m, "oracle-1", 2, testDeadline)
	assert.ErrorIs(t, err, domain.ErrInvalidOutcomeIndex)
	assert.Equal(t, domain.MarketStatusActive, m.Status)
	assert.Nil(t, m.WinningOutcome)

	require.NoError(t, Settle(m, "oracle-1", 1, testDeadline))
	assert.Equal(t, domain.MarketStatusSettled, m.Status)
	require.NotNil(t, m.WinningOutcome)
	assert.Equal(t, uint8(1), *m.WinningOutcome)
	require.NotNil(t, m.SettledAt)
	assert.Equal(t, testDeadline, *m.SettledAt)

	err = Settle(m, "oracle-1", 1, testDeadline)
	assert.ErrorIs(t, err, domain.ErrMarketAlreadySettled)
}

func TestSettleFromClosed(t *testing.T) {
	m, _ := newTestMarket(t)
	require.NoError(t, Close(m, testDeadline))
	require.NoError(t, Settle(m, "oracle-1", 0, testDeadline))
	assert.Equal(t, domain.MarketStatusSettled, m.Status)
}

func TestClaim(t *testing.T) {
	m, pool := newTestMarket(t)
	bet, err := PlaceBet(m, pool, BetParams{User: "bob", OutcomeIndex: 0, Amount: 10_000_000}, testNow)
	require.NoError(t, err)
	require.NoError(t, Settle(m, "oracle-1", 0, testDeadline))

	payout, err := Claim(m, bet)
	require.NoError(t, err)
	assert.Equal(t, uint64(19_705_884), payout.Gross)
	assert.Equal(t, uint64(492_647), payout.Fee)
	assert.Equal(t, uint64(19_213_237), payout.Net)
	assert.Equal(t, payout.Gross, payout.Fee+payout.Net)
	assert.LessOrEqual(t, payout.Gross, m.TotalLiquidity)
}

func TestClaimValidation(t *testing.T) {
	m, pool := newTestMarket(t)
	winBet, err := PlaceBet(m, pool, BetParams{User: "bob", OutcomeIndex: 0, Amount: 10_000_000}, testNow)
	require.NoError(t, err)
	loseBet, err := PlaceBet(m, pool, BetParams{User: "carol", OutcomeIndex: 1, Amount: 10_000_000}, testNow)
	require.NoError(t, err)

	_, err = Claim(m, winBet)
	assert.ErrorIs(t, err, domain.ErrMarketNotSettled)

	require.NoError(t, Settle(m, "oracle-1", 0, testDeadline))

	_, err = Claim(m, loseBet)
	assert.ErrorIs(t, err, domain.ErrNotWinningBet)

	winBet.Claimed = true
	_, err = Claim(m, winBet)
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)
}

func TestClaimRejectsFeeAboveGross(t *testing.T) {
	m, pool := newTestMarket(t)
	bet, err := PlaceBet(m, pool, BetParams{User: "bob", OutcomeIndex: 0, Amount: 10_000_000}, testNow)
	require.NoError(t, err)
	require.NoError(t, Settle(m, "oracle-1", 0, testDeadline))

	// A fee rate past 100% would make the net payout wrap below zero.
	m.FeeBps = 20_000
	payout, err := Claim(m, bet)
	assert.ErrorIs(t, err, domain.ErrArithmeticUnderflow)
	assert.Zero(t, payout.Net)
}

func TestClaimPoolConservation(t *testing.T) {
	// Every winning claim paid in full must fit inside the pool.
	m, pool := newTestMarket(t)

	bets := make([]*domain.Bet, 0, 6)
	stakes := []uint64{10_000_000, 50_000_000, 25_000_000}
	for _, s := range stakes {
		for idx := 0; idx < 2; idx++ {
			b, err := PlaceBet(m, pool, BetParams{User: "u", OutcomeIndex: idx, Amount: s}, testNow)
			require.NoError(t, err)
			bets = append(bets, b)
		}
	}
	require.NoError(t, Settle(m, "oracle-1", 0, testDeadline))

	var totalGross uint64
	for _, b := range bets {
		if b.OutcomeIndex != 0 {
			continue
		}
		p, err := Claim(m, b)
		require.NoError(t, err)
		totalGross += p.Gross
	}
	// The seed shares on the winning outcome are unclaimed, so the bettors'
	// grosses stay strictly below the pool even before fees.
	assert.Less(t, totalGross, m.TotalLiquidity)
}

func TestAddLiquidity(t *testing.T) {
	m, pool := newTestMarket(t)

	minted, err := AddLiquidity(m, pool, []uint64{500_000_000, 500_000_000})
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000_000), minted)

	assert.Equal(t, []uint64{1_500_000_000, 1_500_000_000}, pool.Reserves)
	assert.Equal(t, uint64(3_000_000_000), pool.TotalLPTokens)
	assert.Equal(t, uint64(3_000_000_000), m.TotalLiquidity)

	wantK := new(uint256.Int).Mul(uint256.NewInt(1_500_000_000), uint256.NewInt(1_500_000_000))
	assert.Equal(t, wantK, pool.KConstant)
	assert.Equal(t, uint64(500_000), m.Outcomes[0].Price)
}

func TestAddLiquidityValidation(t *testing.T) {
	m, pool := newTestMarket(t)

	_, err := AddLiquidity(m, pool, []uint64{500_000_000})
	assert.ErrorIs(t, err, domain.ErrInvalidLiquidityAmounts)

	_, err = AddLiquidity(m, pool, []uint64{0, 0})
	assert.ErrorIs(t, err, domain.ErrInvalidLiquidityAmounts)

	m.Status = domain.MarketStatusSettled
	_, err = AddLiquidity(m, pool, []uint64{500_000_000, 500_000_000})
	assert.ErrorIs(t, err, domain.ErrMarketNotActive)
}

func TestRemoveLiquidity(t *testing.T) {
	m, pool := newTestMarket(t)

	withdrawn, err := RemoveLiquidity(m, pool, 500_000_000)
	require.NoError(t, err)
	assert.Equal(t, []uint64{250_000_000, 250_000_000}, withdrawn)

	assert.Equal(t, []uint64{750_000_000, 750_000_000}, pool.Reserves)
	assert.Equal(t, uint64(1_500_000_000), pool.TotalLPTokens)
	// The cumulative deposit counter never goes down.
	assert.Equal(t, uint64(2_000_000_000), m.TotalLiquidity)

	wantK := new(uint256.Int).Mul(uint256.NewInt(750_000_000), uint256.NewInt(750_000_000))
	assert.Equal(t, wantK, pool.KConstant)
}

func TestRemoveLiquidityValidation(t *testing.T) {
	m, pool := newTestMarket(t)

	_, err := RemoveLiquidity(m, pool, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidLiquidityAmounts)

	_, err = RemoveLiquidity(m, pool, pool.TotalLPTokens+1)
	assert.ErrorIs(t, err, domain.ErrInsufficientLPTokens)

	_, err = RemoveLiquidity(m, pool, pool.TotalLPTokens)
	assert.ErrorIs(t, err, domain.ErrInsufficientLiquidity)

	m.Status = domain.MarketStatusClosed
	_, err = RemoveLiquidity(m, pool, 100)
	assert.ErrorIs(t, err, domain.ErrMarketNotActive)
}

package domain

import "time"

// Protocol constants. These are part of the external contract and must not be
// made configurable: clients and auditors pin exact payouts against them.
const (
	// PlatformFeeBps is the fee taken from gross winnings at claim time,
	// in basis points of 10,000 (250 = 2.5%).
	PlatformFeeBps uint16 = 250

	// MinOutcomes and MaxOutcomes bound the outcome count of a market.
	MinOutcomes = 2
	MaxOutcomes = 10

	// MinBetAmount and MaxBetAmount bound a single stake, in base units
	// (1e9 base units = 1 unit of currency).
	MinBetAmount uint64 = 10_000_000
	MaxBetAmount uint64 = 100_000_000_000

	// MinInitialLiquidity is the smallest pool seed accepted at creation.
	MinInitialLiquidity uint64 = 1_000_000_000

	// DisputePeriod is how long a settled outcome may be disputed. The
	// Disputed status is reserved; no core operation exercises it yet.
	DisputePeriod = 86_400 * time.Second

	// PriceScale is the fixed-point denominator for outcome prices.
	// A price of 500_000 means an implied probability of 0.5.
	PriceScale uint64 = 1_000_000

	// MaxCaseIDLen and MaxOutcomeNameLen bound identifier fields, in bytes.
	MaxCaseIDLen      = 64
	MaxOutcomeNameLen = 64
)

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusActive    MarketStatus = "active"
	MarketStatusClosed    MarketStatus = "closed"    // past deadline, awaiting settlement
	MarketStatusSettled   MarketStatus = "settled"   // oracle has declared the outcome
	MarketStatusDisputed  MarketStatus = "disputed"  // reserved
	MarketStatusCancelled MarketStatus = "cancelled" // reserved, refunds enabled
)

// Outcome is one mutually-exclusive resolution of the underlying event.
type Outcome struct {
	Name        string `json:"name"`
	TotalShares uint64 `json:"total_shares"` // cumulative shares issued against this outcome
	Price       uint64 `json:"price"`        // last computed AMM price, PriceScale fixed-point
	BetCount    uint64 `json:"bet_count"`
}

// Market is a prediction market over a fixed set of outcomes. The outcome
// slice is index-addressed and its length never changes after creation.
type Market struct {
	CaseID         string       `json:"case_id"`
	Creator        string       `json:"creator"`
	Oracle         string       `json:"oracle"` // only principal authorized to settle
	Outcomes       []Outcome    `json:"outcomes"`
	TotalLiquidity uint64       `json:"total_liquidity"` // sum of all value ever deposited
	TotalBets      uint64       `json:"total_bets"`
	Status         MarketStatus `json:"status"`
	SettlementTime time.Time    `json:"settlement_time"`
	WinningOutcome *uint8       `json:"winning_outcome,omitempty"` // nil until settled, then fixed
	FeeBps         uint16       `json:"fee_bps"`
	CreatedAt      time.Time    `json:"created_at"`
	SettledAt      *time.Time   `json:"settled_at,omitempty"`
}

// IsActive reports whether the market accepts bets and liquidity changes.
func (m *Market) IsActive() bool {
	return m.Status == MarketStatusActive
}

// IsSettled reports whether the oracle has declared a winning outcome.
func (m *Market) IsSettled() bool {
	return m.Status == MarketStatusSettled
}

// Clone returns a deep copy of the market, so engine operations can compute a
// candidate next state without touching the original.
func (m *Market) Clone() *Market {
	cp := *m
	cp.Outcomes = make([]Outcome, len(m.Outcomes))
	copy(cp.Outcomes, m.Outcomes)
	if m.WinningOutcome != nil {
		w := *m.WinningOutcome
		cp.WinningOutcome = &w
	}
	if m.SettledAt != nil {
		t := *m.SettledAt
		cp.SettledAt = &t
	}
	return &cp
}

// CanSettle reports whether the settlement deadline has passed for a market
// that is still awaiting an oracle outcome (active or closed).
func (m *Market) CanSettle(now time.Time) bool {
	if m.Status != MarketStatusActive && m.Status != MarketStatusClosed {
		return false
	}
	return !now.Before(m.SettlementTime)
}

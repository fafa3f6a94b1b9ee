package service

import "time"

// Pub/sub channels carrying engine events. The websocket hub mirrors these
// into client subscriptions; the bets and settlements channels are also
// appended to Redis streams for durable replay.
const (
	ChannelMarkets     = "events:markets"
	ChannelBets        = "events:bets"
	ChannelPrices      = "events:prices"
	ChannelSettlements = "events:settlements"

	StreamBets        = "stream:bets"
	StreamSettlements = "stream:settlements"
)

// MarketEvent announces a lifecycle transition.
type MarketEvent struct {
	Type     string    `json:"type"` // created, closed, settled
	CaseID   string    `json:"case_id"`
	Status   string    `json:"status"`
	Occurred time.Time `json:"occurred"`
}

// BetEvent announces an accepted bet.
type BetEvent struct {
	BetID        string    `json:"bet_id"`
	CaseID       string    `json:"case_id"`
	User         string    `json:"user"`
	OutcomeIndex uint8     `json:"outcome_index"`
	Amount       uint64    `json:"amount"`
	Shares       uint64    `json:"shares"`
	Occurred     time.Time `json:"occurred"`
}

// PriceEvent carries a market's refreshed price vector.
type PriceEvent struct {
	CaseID   string    `json:"case_id"`
	Prices   []uint64  `json:"prices"`
	Occurred time.Time `json:"occurred"`
}

// SettlementEvent announces a declared outcome.
type SettlementEvent struct {
	CaseID         string    `json:"case_id"`
	WinningOutcome uint8     `json:"winning_outcome"`
	ArchivePath    string    `json:"archive_path,omitempty"`
	Occurred       time.Time `json:"occurred"`
}

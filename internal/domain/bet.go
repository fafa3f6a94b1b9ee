package domain

import (
	"fmt"
	"time"
)

// Bet records a single stake against one outcome of a market. A bet is owned
// by its user and never mutated by any operation other than its own claim.
type Bet struct {
	ID           string    `json:"id"`
	CaseID       string    `json:"case_id"`
	User         string    `json:"user"`
	OutcomeIndex uint8     `json:"outcome_index"`
	Amount       uint64    `json:"amount"`
	Shares       uint64    `json:"shares"`      // AMM output at bet time
	EntryPrice   uint64    `json:"entry_price"` // pre-trade price snapshot, display only
	Seq          uint64    `json:"seq"`         // market-local sequence number
	Timestamp    time.Time `json:"timestamp"`
	Claimed      bool      `json:"claimed"` // write-once false→true
}

// BetID builds the deterministic identifier for the seq-th bet of a market.
// The market's bet counter at placement time is the sequence number, which
// makes identifiers unique under the serialized apply order.
func BetID(caseID string, seq uint64) string {
	return fmt.Sprintf("%s/%d", caseID, seq)
}

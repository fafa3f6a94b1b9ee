package domain

import (
	"context"
	"time"
)

// PriceCache stores the latest outcome price vector per market for cheap
// display reads. Prices are PriceScale fixed-point, index aligned with the
// market's outcomes.
type PriceCache interface {
	SetPrices(ctx context.Context, caseID string, prices []uint64, ts time.Time) error
	GetPrices(ctx context.Context, caseID string) ([]uint64, time.Time, error)
}

// MarketCache caches market records by case id.
type MarketCache interface {
	Get(ctx context.Context, caseID string) (Market, error)
	Set(ctx context.Context, market Market) error
	Invalidate(ctx context.Context, caseID string) error
}

// LockManager provides per-market mutual exclusion. Every mutating operation
// over a market runs under its lock, which gives the serialized apply order
// the accounting relies on.
type LockManager interface {
	// Acquire returns an unlock function on success, or ErrLockHeld when the
	// lock is already held by another party.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// SignalBus publishes engine events (price moves, bets, settlements) to
// interested consumers such as the websocket hub.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// StreamMessage is one durable entry read back from a bus stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SettlementArchiver exports an immutable settlement report (market snapshot
// plus all bets) to cold storage for audit.
type SettlementArchiver interface {
	ArchiveSettlement(ctx context.Context, market Market, bets []Bet) (string, error)
}

package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists markets together with their liquidity pools. A market
// and its pool are co-created and share a 1:1 lifetime, so the store treats
// them as one aggregate.
type MarketStore interface {
	Create(ctx context.Context, market Market, pool LiquidityPool) error
	Update(ctx context.Context, market Market, pool LiquidityPool) error
	GetByCaseID(ctx context.Context, caseID string) (Market, LiquidityPool, error)
	ListByStatus(ctx context.Context, status MarketStatus, opts ListOpts) ([]Market, error)
	// ListExpired returns active markets whose settlement deadline is at or
	// before the given time (candidates for the deadline sweeper).
	ListExpired(ctx context.Context, now time.Time, limit int) ([]Market, error)
	Count(ctx context.Context) (int64, error)
}

// BetStore persists bet records.
type BetStore interface {
	Create(ctx context.Context, bet Bet) error
	GetByID(ctx context.Context, id string) (Bet, error)
	ListByMarket(ctx context.Context, caseID string, opts ListOpts) ([]Bet, error)
	ListByUser(ctx context.Context, user string, opts ListOpts) ([]Bet, error)
	// MarkClaimed flips the claimed flag exactly once. It returns
	// ErrAlreadyClaimed when the bet was claimed before and ErrNotFound when
	// the bet does not exist, so concurrent claims cannot both succeed.
	MarkClaimed(ctx context.Context, id string) error
}

// AuditStore persists an append-only audit log of irreversible transitions.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/verdictlabs/casemarket/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each market's
// latest price vector is stored as a hash at key "prices:{caseID}" with fields
// "prices" (comma-joined fixed-point values, index aligned with the market's
// outcomes) and "ts" (Unix nanosecond timestamp).
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func priceKey(caseID string) string {
	return "prices:" + caseID
}

// SetPrices stores the latest price vector and timestamp for a market.
func (pc *PriceCache) SetPrices(ctx context.Context, caseID string, prices []uint64, ts time.Time) error {
	parts := make([]string, len(prices))
	for i, p := range prices {
		parts[i] = strconv.FormatUint(p, 10)
	}
	fields := map[string]interface{}{
		"prices": strings.Join(parts, ","),
		"ts":     strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := pc.rdb.HSet(ctx, priceKey(caseID), fields).Err(); err != nil {
		return fmt.Errorf("redis: set prices %s: %w", caseID, err)
	}
	return nil
}

// GetPrices retrieves the latest price vector and timestamp for a market.
// It returns domain.ErrNotFound when the key does not exist.
func (pc *PriceCache) GetPrices(ctx context.Context, caseID string) ([]uint64, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(caseID)).Result()
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: get prices %s: %w", caseID, err)
	}
	if len(vals) == 0 {
		return nil, time.Time{}, domain.ErrNotFound
	}

	joined, ok := vals["prices"]
	if !ok {
		return nil, time.Time{}, domain.ErrNotFound
	}
	parts := strings.Split(joined, ",")
	prices := make([]uint64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("redis: parse price %s: %w", caseID, err)
		}
		prices[i] = v
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return nil, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", caseID, err)
	}

	return prices, time.Unix(0, tsNano), nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)

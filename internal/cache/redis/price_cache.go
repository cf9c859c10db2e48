package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// PriceCache implements domain.PriceCache. Each market's mark price lives in
// the hash kalshibot:price:{ticker} with fields "price" and "ts" (unix nanos)
// and expires after ttl so a stale mark never outlives its market for long.
type PriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPriceCache creates a PriceCache. A zero ttl keeps entries forever.
func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	return &PriceCache{rdb: c.Underlying(), ttl: ttl}
}

func priceKey(marketID string) string {
	return keyPrefix + "price:" + marketID
}

// SetPrice stores the latest YES mark for a market.
func (pc *PriceCache) SetPrice(ctx context.Context, marketID string, price float64, ts time.Time) error {
	key := priceKey(marketID)
	pipe := pc.rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"price": strconv.FormatFloat(price, 'f', -1, 64),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	})
	if pc.ttl > 0 {
		pipe.Expire(ctx, key, pc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set price %s: %w", marketID, err)
	}
	return nil
}

// GetPrice returns the cached mark and its timestamp, or domain.ErrNotFound.
func (pc *PriceCache) GetPrice(ctx context.Context, marketID string) (float64, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(marketID)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s: %w", marketID, err)
	}
	price, ts, ok := parsePriceHash(vals)
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return price, ts, nil
}

// GetPrices fetches several marks in one pipeline. Missing or malformed
// entries are omitted from the result.
func (pc *PriceCache) GetPrices(ctx context.Context, marketIDs []string) (map[string]float64, error) {
	if len(marketIDs) == 0 {
		return map[string]float64{}, nil
	}

	pipe := pc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(marketIDs))
	for _, id := range marketIDs {
		cmds[id] = pipe.HGetAll(ctx, priceKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get prices pipeline: %w", err)
	}

	result := make(map[string]float64, len(marketIDs))
	for id, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil {
			continue
		}
		if price, _, ok := parsePriceHash(vals); ok {
			result[id] = price
		}
	}
	return result, nil
}

func parsePriceHash(vals map[string]string) (float64, time.Time, bool) {
	priceStr, ok := vals["price"]
	if !ok {
		return 0, time.Time{}, false
	}
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return 0, time.Time{}, false
	}
	var ts time.Time
	if tsStr, ok := vals["ts"]; ok {
		if n, err := strconv.ParseInt(tsStr, 10, 64); err == nil {
			ts = time.Unix(0, n)
		}
	}
	return price, ts, true
}

var _ domain.PriceCache = (*PriceCache)(nil)

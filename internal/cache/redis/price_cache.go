package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/zetatrigger/internal/domain"
)

// PriceCache implements domain.PriceCache. Each pair is a hash at
// "price:<pair>" holding integer ticks, the feed timestamp in unix
// nanoseconds and the optional confidence window in nanoseconds.
type PriceCache struct {
	c *Client
	// TTL expires a pair nobody refreshes so readers see not-found rather
	// than an arbitrarily old value.
	TTL time.Duration
}

var _ domain.PriceCache = (*PriceCache)(nil)

// NewPriceCache creates a PriceCache.
func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	return &PriceCache{c: c, TTL: ttl}
}

// SetPrice stores snap for pair.
func (pc *PriceCache) SetPrice(ctx context.Context, pair string, snap domain.PriceSnapshot) error {
	k := pc.c.key("price", pair)
	pipe := pc.c.rdb.TxPipeline()
	pipe.HSet(ctx, k, encodeSnapshot(snap))
	if pc.TTL > 0 {
		pipe.Expire(ctx, k, pc.TTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set price %s: %w", pair, err)
	}
	return nil
}

// GetPrice returns the cached snapshot or domain.ErrNotFound.
func (pc *PriceCache) GetPrice(ctx context.Context, pair string) (domain.PriceSnapshot, error) {
	vals, err := pc.c.rdb.HGetAll(ctx, pc.c.key("price", pair)).Result()
	if err != nil {
		return domain.PriceSnapshot{}, fmt.Errorf("redis: get price %s: %w", pair, err)
	}
	snap, err := decodeSnapshot(vals)
	if err != nil {
		return domain.PriceSnapshot{}, fmt.Errorf("redis: get price %s: %w", pair, err)
	}
	return snap, nil
}

func encodeSnapshot(snap domain.PriceSnapshot) map[string]any {
	return map[string]any{
		"ticks": strconv.FormatInt(snap.Price, 10),
		"ts":    strconv.FormatInt(snap.Timestamp.UnixNano(), 10),
		"conf":  strconv.FormatInt(int64(snap.Confidence), 10),
	}
}

func decodeSnapshot(vals map[string]string) (domain.PriceSnapshot, error) {
	ticksStr, ok := vals["ticks"]
	if !ok {
		return domain.PriceSnapshot{}, domain.ErrNotFound
	}
	ticks, err := strconv.ParseInt(ticksStr, 10, 64)
	if err != nil {
		return domain.PriceSnapshot{}, fmt.Errorf("parse ticks: %w", err)
	}
	ts, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.PriceSnapshot{}, fmt.Errorf("parse ts: %w", err)
	}
	snap := domain.PriceSnapshot{Price: ticks, Timestamp: time.Unix(0, ts).UTC()}
	if conf, ok := vals["conf"]; ok {
		if n, err := strconv.ParseInt(conf, 10, 64); err == nil {
			snap.Confidence = time.Duration(n)
		}
	}
	return snap, nil
}

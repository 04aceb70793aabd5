// Package oracle reads the ZETA/USDC price and guards callers against stale
// snapshots.
package oracle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/zetatrigger/internal/domain"
)

// Pair is the cache key of the traded pair.
const Pair = "ZETA-USDC"

// Source is a read-only price feed.
type Source interface {
	ReadPrice(ctx context.Context) (domain.PriceSnapshot, error)
}

// Static is a settable in-process source used in paper mode and tests.
type Static struct {
	mu   sync.RWMutex
	snap domain.PriceSnapshot
}

// NewStatic creates a Static source. A zero price reads as not found.
func NewStatic(price int64) *Static {
	s := &Static{}
	if price > 0 {
		s.Set(price, time.Now().UTC())
	}
	return s
}

// Set replaces the current snapshot.
func (s *Static) Set(price int64, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = domain.PriceSnapshot{Price: price, Timestamp: ts}
}

// ReadPrice returns the last value passed to Set.
func (s *Static) ReadPrice(context.Context) (domain.PriceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap.Price <= 0 {
		return domain.PriceSnapshot{}, fmt.Errorf("oracle: static: %w", domain.ErrNotFound)
	}
	return s.snap, nil
}

// CacheSource reads the price a feeder wrote to the shared price cache.
type CacheSource struct {
	cache domain.PriceCache
	pair  string
}

// NewCacheSource creates a CacheSource for pair.
func NewCacheSource(cache domain.PriceCache, pair string) *CacheSource {
	return &CacheSource{cache: cache, pair: pair}
}

// ReadPrice fetches the cached snapshot.
func (c *CacheSource) ReadPrice(ctx context.Context) (domain.PriceSnapshot, error) {
	snap, err := c.cache.GetPrice(ctx, c.pair)
	if err != nil {
		return domain.PriceSnapshot{}, fmt.Errorf("oracle: cache %s: %w", c.pair, err)
	}
	return snap, nil
}

// Fixed reports a constant price stamped with the read time. It backs paper
// runs against a hand-picked price.
type Fixed int64

// ReadPrice implements Source.
func (f Fixed) ReadPrice(context.Context) (domain.PriceSnapshot, error) {
	if f <= 0 {
		return domain.PriceSnapshot{}, fmt.Errorf("oracle: fixed: %w", domain.ErrNotFound)
	}
	return domain.PriceSnapshot{Price: int64(f), Timestamp: time.Now().UTC()}, nil
}

var (
	_ Source = (*Static)(nil)
	_ Source = (*CacheSource)(nil)
	_ Source = Fixed(0)
)

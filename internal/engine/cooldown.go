package engine

import (
	"sync"
	"time"
)

// Cooldown keeps an order out of evaluation for a while after a failed
// execution attempt. It is safe for concurrent use.
type Cooldown struct {
	until map[uint64]time.Time
	ttl   time.Duration
	now   func() time.Time
	mu    sync.Mutex
}

// NewCooldown creates a Cooldown. A zero ttl disables it.
func NewCooldown(ttl time.Duration) *Cooldown {
	return &Cooldown{
		until: make(map[uint64]time.Time),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Mark starts the cooldown for id.
func (c *Cooldown) Mark(id uint64) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.until[id] = c.now().Add(c.ttl)
}

// Cooling reports whether id is still cooling down.
func (c *Cooldown) Cooling(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	until, ok := c.until[id]
	return ok && c.now().Before(until)
}

// Cleanup drops expired entries.
func (c *Cooldown) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for id, until := range c.until {
		if !now.Before(until) {
			delete(c.until, id)
		}
	}
}

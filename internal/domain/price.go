package domain

import "time"

// PriceSnapshot is one read of the ZETA/USDC price.
type PriceSnapshot struct {
	Price     int64     `json:"price"` // ticks, PriceScale
	Timestamp time.Time `json:"timestamp"`
	// Confidence is the feed's own staleness bound, if it reports one.
	Confidence time.Duration `json:"confidence,omitempty"`
}

// Age returns how old the snapshot is relative to now.
func (p PriceSnapshot) Age(now time.Time) time.Duration {
	return now.Sub(p.Timestamp)
}

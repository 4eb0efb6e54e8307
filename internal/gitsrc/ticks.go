package gitsrc

import "time"

// DefaultTickSize is the default granularity of a tick (one day).
const DefaultTickSize = 24 * time.Hour

// TickResolver maps commit timestamps onto monotonically increasing tick
// indices relative to the history start.
type TickResolver struct {
	// Start is the timestamp of the oldest commit in the range.
	Start time.Time

	// TickSize is the duration of one tick.
	TickSize time.Duration
}

// NewTickResolver creates a resolver anchored at start. A non-positive
// tickSize falls back to DefaultTickSize.
func NewTickResolver(start time.Time, tickSize time.Duration) *TickResolver {
	if tickSize <= 0 {
		tickSize = DefaultTickSize
	}

	return &TickResolver{Start: start, TickSize: tickSize}
}

// Tick returns the tick index for the given timestamp. Timestamps before the
// start clamp to tick zero, so out of order clocks never produce a negative
// index.
func (r *TickResolver) Tick(when time.Time) int {
	if when.Before(r.Start) {
		return 0
	}

	return int(when.Sub(r.Start) / r.TickSize)
}

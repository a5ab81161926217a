package poller

import "time"

// DefaultInterval is one 60 Hz frame.
const DefaultInterval = time.Second / 60

// Cadence accumulates elapsed time and fires once it exceeds the interval.
// Firing resets the accumulator to zero, so a long stall produces a single
// fire rather than a burst of catch-up fires.
type Cadence struct {
	interval time.Duration
	acc      time.Duration
}

// NewCadence returns a cadence for interval, or DefaultInterval when
// interval is not positive.
func NewCadence(interval time.Duration) *Cadence {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Cadence{interval: interval}
}

// Advance adds elapsed and reports whether the cadence fired.
func (c *Cadence) Advance(elapsed time.Duration) bool {
	if elapsed > 0 {
		c.acc += elapsed
	}
	if c.acc > c.interval {
		c.acc = 0
		return true
	}
	return false
}

// Interval returns the firing interval.
func (c *Cadence) Interval() time.Duration { return c.interval }

// Pending returns the time accumulated since the last fire.
func (c *Cadence) Pending() time.Duration { return c.acc }

// Reset drops accumulated time.
func (c *Cadence) Reset() { c.acc = 0 }

package kernel

import "sync/atomic"

// Clock is the monotonic logical tick counter driving the kernel.
//
// Every event, record and transition is stamped with a tick from this
// clock. This ensures:
// - Deterministic ordering (no wall-clock race conditions)
// - Replay produces identical timing
// - Deadlines are tick arithmetic, never timer callbacks
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
// However, the kernel's single-writer design means only the Run loop
// calls Advance(); collaborators such as the out-of-band mismatch path
// only read via Now().
type Clock struct {
	tick atomic.Uint64
}

// NewClock creates a new clock starting at tick 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a new clock starting at a specific tick.
// Used for replay to resume from a persisted position.
func NewClockAt(start uint64) *Clock {
	c := &Clock{}
	c.tick.Store(start)
	return c
}

// Advance increments the clock and returns the new tick.
// Calls are linearizable - each call returns a unique, increasing value.
func (c *Clock) Advance() uint64 {
	return c.tick.Add(1)
}

// Now returns the current tick without advancing.
// Safe from any goroutine; the mismatch path uses it to stamp events.
func (c *Clock) Now() uint64 {
	return c.tick.Load()
}

package testutil

import "sync"

// TickClock provides a thread-safe monotonic logical tick counter for
// tests.
//
// Unlike kernel.Clock, TickClock can be reset for test reuse. This
// enables the same scenario to run multiple times with identical tick
// values.
//
// Thread-safety: all methods are safe for concurrent use via internal
// mutex.
type TickClock struct {
	mu   sync.Mutex
	tick uint64
}

// NewTickClock creates a clock starting at 0.
//
// The first call to Advance() returns 1.
func NewTickClock() *TickClock {
	return &TickClock{}
}

// Advance increments and returns the next tick.
//
// Monotonic: always returns tick+1, never decreases.
func (c *TickClock) Advance() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tick++
	return c.tick
}

// Now returns the current tick without advancing.
func (c *TickClock) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tick
}

// Reset resets the clock to 0.
//
// Used for test reuse. After Reset(), the next call to Advance()
// returns 1.
func (c *TickClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tick = 0
}

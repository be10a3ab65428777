package kernel

import (
	"sync"

	"github.com/google/uuid"
)

// TokenGenerator mints episode tokens. An episode spans the ticks from
// the moment the state leaves Normal until it returns to Normal (or the
// daemon is reset from a terminal state); every transition and log
// entry inside carries its token for store correlation.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type TokenGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 episode tokens.
//
// UUIDv7 embeds a timestamp in the most significant bits, making tokens
// sortable by creation time. This is helpful for browsing episodes in
// the diagnostic store.
//
// Uses github.com/google/uuid package for RFC 4122 compliant UUIDs.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Format: "550e8400-e29b-41d4-a716-446655440000" (36 characters)
//
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined episode tokens for testing.
//
// This enables deterministic test execution and golden trace comparison.
// Tests can provide a known sequence of tokens and verify exact trace output.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu     sync.Mutex
	tokens []string
	idx    int
}

// NewFixedGenerator creates a generator that returns tokens in order.
//
// Example:
//
//	gen := NewFixedGenerator("ep-1", "ep-2")
//	gen.Generate() // "ep-1"
//	gen.Generate() // "ep-2"
//	gen.Generate() // panic: all tokens exhausted
func NewFixedGenerator(tokens ...string) *FixedGenerator {
	return &FixedGenerator{
		tokens: tokens,
		idx:    0,
	}
}

// Generate returns the next predetermined token.
// Thread-safe: uses mutex to protect index access.
//
// Panics if all tokens have been consumed. This is a fail-fast approach
// to catch test misconfiguration (scenario opened more episodes than expected).
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.tokens) {
		panic("FixedGenerator: all tokens exhausted")
	}
	token := g.tokens[g.idx]
	g.idx++
	return token
}

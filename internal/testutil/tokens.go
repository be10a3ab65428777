package testutil

// FixedTokenGenerator returns the same episode token every time.
//
// This enables deterministic scenario execution and golden trace
// comparison: the same scenario with the same FixedTokenGenerator
// produces byte-identical traces.
//
// Unlike kernel.FixedGenerator, which returns tokens in sequence and
// panics when exhausted, this generator never runs out. Use it for
// scenarios where every episode should carry the same token.
//
// Thread-safety: stateless and safe for concurrent use.
type FixedTokenGenerator struct {
	token string
}

// NewFixedTokenGenerator creates a generator for one fixed token.
//
// The token is typically set in the scenario YAML:
//
//	episode_token: "test-episode-00000000-0000-0000-0000-000000000001"
//
// If token is empty, Generate() returns "test-episode-default".
func NewFixedTokenGenerator(token string) *FixedTokenGenerator {
	if token == "" {
		token = "test-episode-default"
	}
	return &FixedTokenGenerator{token: token}
}

// Generate returns the fixed token.
//
// Implements kernel.TokenGenerator.
func (g *FixedTokenGenerator) Generate() string {
	return g.token
}

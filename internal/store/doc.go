// Package store provides durable SQLite persistence for the vigil
// diagnostic stream: log entries, state transitions, and fault
// episodes.
//
// Writes are idempotent: every row carries a content-addressed ID and
// is inserted with ON CONFLICT DO NOTHING, so re-delivering a drain
// batch after a failure is always safe. Reads carry a deterministic
// ORDER BY (tick, then id COLLATE BINARY) so the same rows always come
// back in the same order, which is what makes replay byte-stable.
//
// The kernel writes through the narrow kernel.EntrySink interface; the
// CLI reads through the diagquery filters.
package store

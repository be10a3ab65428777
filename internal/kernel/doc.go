// Package kernel implements the vigil safety monitor's deterministic
// tick pipeline.
//
// The kernel consumes normalized health verdicts (lockstep comparator,
// watchdog, comms channels, sensor plausibility), classifies anomalies
// with windowed occurrence counting, drives bounded recovery, and owns
// the single safety state, translating it into idempotent actuation
// commands and an append-only diagnostic stream.
//
// ARCHITECTURE:
//
// Single-Writer Tick Loop:
// The whole pipeline runs in one goroutine per tick:
//  1. Clock advances (logical tick, never wall clock)
//  2. HealthSource polled, verdicts normalized into events
//  3. Events drained in arrival order, priority lane first
//  4. Recovery manager steps pending series (one attempt per tick)
//  5. Degraded -> Normal attempted after the hold-off
//  6. Diagnostics flushed to the store, status snapshot published
//
// The only concurrent surfaces are RaiseCoreMismatch (the out-of-band
// lockstep path, callable from any goroutine), Status (atomic snapshot)
// and Close. The mismatch path and the tick path share one mutex with
// bounded hold time; a mismatch raised mid-tick is committed before any
// normal-lane event still awaiting dispatch.
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// Every event, record and transition is stamped from Clock. Deadlines
// are tick arithmetic. NEVER wall-clock callbacks.
//
// Monotone State:
// The state machine only raises the state, with exactly one improving
// edge (Degraded -> Normal, gated on recovery success plus a quiet
// hold-off). SafeStop and EmergencyShutdown are terminal for the
// kernel; leaving them is an operator action outside this process.
//
// Fail Loud:
// An unreadable collaborator is itself a fault event. A missed reaction
// deadline forces EmergencyShutdown. No fault leaves the diagnostic
// stream silently except through the recorder's bounded-overflow
// policy, which never drops critical entries.
package kernel

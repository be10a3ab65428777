// Package harness provides fault-injection conformance testing for the
// safety kernel.
//
// The harness loads YAML scenarios, runs a real kernel against scripted
// collaborators, and validates the resulting diagnostic trace, final
// state and actuation commands as executable contract tests.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	run_until: 20
//	ticks:
//	  - tick: 5
//	    watchdog: { alive: false }
//	  - tick: 8
//	    comms:
//	      - { channel: 2, timed_out: true }
//	recovery:
//	  - kind: CommsTimeout
//	    channel: 2
//	    succeeds_after: 2
//	assertions:
//	  - type: trace_contains
//	    class: transition
//	    to: Degraded
//	  - type: final_state
//	    state: Normal
//
// Each tick script overlays a healthy baseline (watchdog alive,
// refreshed this tick, all channels and sensors clean), so scenarios
// only name what is wrong. `oob_core_mismatch: true` raises the
// out-of-band lockstep path immediately before the tick executes,
// ahead of every queued event. `source_error` makes the health source
// unreadable for that tick.
//
// # Assertion Types
//
//   - trace_contains: a fault or transition entry matching the given
//     fields appears in the trace (subset match)
//   - trace_order: transition targets appear in the given order
//   - trace_count: matching entries appear exactly N times
//   - final_state: the kernel ends in the given state
//   - last_command: the last delivered actuation command equals the
//     given envelope
//   - max_attempts_respected: no recovery series exceeded the
//     profile's attempt budget
//   - transition_by_deadline: the first transition into the given
//     state happened at or before its reaction deadline
//
// # Deterministic Testing
//
// Scenarios run with a fixed episode token, a manually driven tick loop
// and an in-memory SQLite store, so the same scenario produces a
// byte-identical trace across runs. Golden comparison uses canonical
// JSON serialization of the trace snapshot.
package harness

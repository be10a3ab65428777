// Package profile compiles and validates the CUE safety profile.
//
// The profile is the full set of deterministic kernel parameters
// (window size, per-kind thresholds and deadlines, recovery budget,
// hold-off, buffer capacities, and the actuation envelope table), fixed
// at initialization and immutable thereafter. Compilation uses the CUE
// SDK directly (cuecontext + LookupPath), not a CLI subprocess.
//
// Validation is strict: an incomplete or inconsistent profile is
// rejected at load time rather than being patched at runtime. In
// particular, CoreMismatch and WatchdogTimeout must carry an occurrence
// threshold of exactly 1 (lockstep divergence and a dead watchdog are
// never treated as transient beyond first occurrence), and the
// actuation envelope must be monotone: torque ceilings non-increasing
// along the escalation order, contactor open exactly in
// EmergencyShutdown.
package profile

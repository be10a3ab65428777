package fault

// Profile is the compiled safety profile: every tunable the kernel
// consumes, fixed at initialization and immutable thereafter. Produced
// by the profile compiler from CUE source; the kernel never reads
// configuration from anywhere else.
//
// All durations are tick counts. There are no wall-clock values here.
type Profile struct {
	// Window is the occurrence-counting window K, anchored at a
	// record's first occurrence, in ticks.
	Window uint64 `json:"window"`

	// Thresholds maps each kind to T_kind: the occurrence count at
	// which a fault within one window becomes Persistent. CoreMismatch
	// and WatchdogTimeout must be 1.
	Thresholds map[Kind]int `json:"thresholds"`

	// Recoverable marks kinds with a collaborator-side recovery action
	// (re-arm comparator, re-synchronize channel). A kind without one
	// escalates straight from Persistent to Critical: there is nothing
	// to retry.
	Recoverable map[Kind]bool `json:"recoverable"`

	// MaxRecoveryAttempts bounds every recovery series.
	MaxRecoveryAttempts int `json:"max_recovery_attempts"`

	// Deadlines maps each kind to its fault-tolerant time interval in
	// ticks: a transition caused by the kind must complete actuation no
	// later than first-seen + deadline.
	Deadlines map[Kind]uint64 `json:"deadlines"`

	// Holdoff is the quiet period H, in ticks, required after a
	// recovery success before Degraded may return to Normal.
	Holdoff uint64 `json:"holdoff"`

	// WatchdogStaleBudget is the maximum age, in ticks, of the last
	// watchdog refresh before the adapter reports a timeout even when
	// the alive flag still reads true.
	WatchdogStaleBudget uint64 `json:"watchdog_stale_budget"`

	// QueueCapacity bounds the normal event lane. The priority lane is
	// exempt; a mismatch report is never dropped.
	QueueCapacity int `json:"queue_capacity"`

	// RecorderCapacity bounds the diagnostic ring buffer.
	RecorderCapacity int `json:"recorder_capacity"`

	// Envelopes is the actuation table: the one Command emitted for
	// each state. Torque ceilings must be non-increasing along the
	// escalation order and the contactor opens exactly in
	// EmergencyShutdown.
	Envelopes map[State]Command `json:"envelopes"`
}

// ThresholdFor returns T_kind, defaulting to 1 for kinds missing from
// the table so an incomplete profile fails safe rather than masking.
func (p Profile) ThresholdFor(k Kind) int {
	if t, ok := p.Thresholds[k]; ok {
		return t
	}
	return 1
}

// DeadlineFor returns the fault-tolerant time interval for a kind.
// Kinds missing from the table get a deadline of 1 tick, the tightest
// budget, so an incomplete profile fails safe.
func (p Profile) DeadlineFor(k Kind) uint64 {
	if d, ok := p.Deadlines[k]; ok {
		return d
	}
	return 1
}

// IsRecoverable reports whether a kind has a recovery action. Kinds
// missing from the table are not recoverable.
func (p Profile) IsRecoverable(k Kind) bool {
	return p.Recoverable[k]
}

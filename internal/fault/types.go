package fault

import "fmt"

// Kind identifies a fault category detected by the health signal adapter.
type Kind string

const (
	// KindCoreMismatch indicates lockstep divergence between redundant cores.
	KindCoreMismatch Kind = "CoreMismatch"

	// KindWatchdogTimeout indicates the supervised path failed to refresh
	// the watchdog within its budget.
	KindWatchdogTimeout Kind = "WatchdogTimeout"

	// KindCommsTimeout indicates a communication channel missed its
	// expected message window.
	KindCommsTimeout Kind = "CommsTimeout"

	// KindCommsIntegrityFault indicates a channel delivered a message that
	// failed its integrity or sequence check.
	KindCommsIntegrityFault Kind = "CommsIntegrityFault"

	// KindSensorImplausible indicates a sensor reading failed plausibility
	// validation.
	KindSensorImplausible Kind = "SensorImplausible"
)

// Kinds returns all fault kinds in stable declaration order.
// Used for profile validation and deterministic iteration.
func Kinds() []Kind {
	return []Kind{
		KindCoreMismatch,
		KindWatchdogTimeout,
		KindCommsTimeout,
		KindCommsIntegrityFault,
		KindSensorImplausible,
	}
}

// Valid reports whether k is a known fault kind.
func (k Kind) Valid() bool {
	switch k {
	case KindCoreMismatch, KindWatchdogTimeout, KindCommsTimeout,
		KindCommsIntegrityFault, KindSensorImplausible:
		return true
	}
	return false
}

// ParseKind converts a string to a Kind, rejecting unknown values.
// Used at YAML/CUE/CLI boundaries.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown fault kind: %q", s)
	}
	return k, nil
}

// Severity classifies how serious a fault record is.
// The order Transient < Persistent < Critical is total; see Rank.
type Severity string

const (
	// SeverityTransient is a first or sub-threshold occurrence; recovery
	// is attempted in the background while the state stays put.
	SeverityTransient Severity = "Transient"

	// SeverityPersistent is a fault that exceeded its occurrence threshold
	// within the window, or a core/watchdog fault on first occurrence.
	SeverityPersistent Severity = "Persistent"

	// SeverityCritical is a fault whose recovery budget is exhausted, or
	// a missed reaction deadline. Forces a safe-state transition.
	SeverityCritical Severity = "Critical"
)

// Rank returns the position of s in the severity order.
// Transient=0, Persistent=1, Critical=2. Unknown severities rank -1.
func (s Severity) Rank() int {
	switch s {
	case SeverityTransient:
		return 0
	case SeverityPersistent:
		return 1
	case SeverityCritical:
		return 2
	}
	return -1
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	return s.Rank() >= 0
}

// AtLeast reports whether s is at least as severe as min.
func (s Severity) AtLeast(min Severity) bool {
	return s.Rank() >= min.Rank()
}

// ParseSeverity converts a string to a Severity, rejecting unknown values.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(s)
	if !sev.Valid() {
		return "", fmt.Errorf("unknown severity: %q", s)
	}
	return sev, nil
}

// State is the safety operating mode. Exactly one State value exists
// system-wide at any tick; it is owned and written by the safety state
// machine alone.
type State string

const (
	// StateNormal is the initial, unrestricted operating mode.
	StateNormal State = "Normal"

	// StateDegraded is the limp-home mode: reduced torque ceiling and
	// speed cap while a persistent fault is being recovered.
	StateDegraded State = "Degraded"

	// StateSafeStop commands zero torque with proportional regenerative
	// braking. Not exitable without an external reset.
	StateSafeStop State = "SafeStop"

	// StateEmergencyShutdown commands zero torque and opens the contactor.
	// Terminal: no internally generated event leaves this state.
	StateEmergencyShutdown State = "EmergencyShutdown"
)

// States returns all safety states in escalation order.
func States() []State {
	return []State{StateNormal, StateDegraded, StateSafeStop, StateEmergencyShutdown}
}

// Rank returns the position of st in the escalation order.
// Normal=0, Degraded=1, SafeStop=2, EmergencyShutdown=3. Unknown states rank -1.
func (st State) Rank() int {
	switch st {
	case StateNormal:
		return 0
	case StateDegraded:
		return 1
	case StateSafeStop:
		return 2
	case StateEmergencyShutdown:
		return 3
	}
	return -1
}

// Valid reports whether st is a known state.
func (st State) Valid() bool {
	return st.Rank() >= 0
}

// Terminal reports whether st cannot be left by the kernel itself.
// SafeStop and EmergencyShutdown require an external operator reset.
func (st State) Terminal() bool {
	return st == StateSafeStop || st == StateEmergencyShutdown
}

// ParseState converts a string to a State, rejecting unknown values.
func ParseState(s string) (State, error) {
	st := State(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown safety state: %q", s)
	}
	return st, nil
}

// Outcome is the result of a recovery attempt series.
type Outcome string

const (
	// OutcomePending means the series has attempts remaining.
	OutcomePending Outcome = "Pending"

	// OutcomeSucceeded means the collaborator confirmed recovery.
	OutcomeSucceeded Outcome = "Succeeded"

	// OutcomeExhausted means the attempt budget was spent without success.
	// The classifier escalates the fault to Critical.
	OutcomeExhausted Outcome = "Exhausted"
)

// Context is a small structured payload attached to events and log
// entries: faulting address, register id, sensor id. Values are
// constrained to strings, integers, bools, nested Contexts and arrays;
// floats and nulls are rejected at canonical-marshal time.
type Context map[string]any

// Event is one normalized health anomaly produced by the adapter for
// exactly one tick. Immutable once created.
type Event struct {
	Kind    Kind    `json:"kind"`
	Channel int     `json:"channel"`
	Tick    uint64  `json:"tick"`
	Payload Context `json:"payload,omitempty"`
}

// Record is the classifier's live view of one (kind, channel) fault:
// severity plus windowed occurrence bookkeeping. Owned and mutated only
// by the classifier; reset when the window expires or recovery succeeds.
type Record struct {
	Kind        Kind     `json:"kind"`
	Severity    Severity `json:"severity"`
	Channel     int      `json:"channel"`
	FirstSeen   uint64   `json:"first_seen"`
	LastSeen    uint64   `json:"last_seen"`
	Occurrences int      `json:"occurrences"`
}

// Transition is one safety-state change. Created by the state machine at
// every mode change; immutable; appended to the diagnostic recorder.
// Deadline is the tick by which actuation for this transition must have
// completed, derived from the profile's per-kind deadline table.
type Transition struct {
	From     State   `json:"from"`
	To       State   `json:"to"`
	Cause    *Record `json:"cause,omitempty"`
	Tick     uint64  `json:"tick"`
	Deadline uint64  `json:"deadline"`
	Episode  string  `json:"episode,omitempty"`
}

// Attempt is one step of a bounded recovery series. Owned by the
// recovery manager; destroyed when the series resolves.
type Attempt struct {
	Kind    Kind    `json:"kind"`
	Channel int     `json:"channel"`
	Number  int     `json:"number"`
	Outcome Outcome `json:"outcome"`
}

// EntryClass distinguishes diagnostic log entry payloads.
type EntryClass string

const (
	// EntryFault is a classified fault record entry.
	EntryFault EntryClass = "fault"

	// EntryTransition is a state transition entry.
	EntryTransition EntryClass = "transition"
)

// LogEntry is one immutable diagnostic record. Append-only; ownership
// passes to the persistence collaborator on drain. Repeats counts
// signature-identical entries coalesced by the recorder while the entry
// was buffered.
type LogEntry struct {
	Seq        uint64      `json:"seq"`
	Tick       uint64      `json:"tick"`
	Class      EntryClass  `json:"class"`
	Record     *Record     `json:"record,omitempty"`
	Transition *Transition `json:"transition,omitempty"`
	Context    Context     `json:"context,omitempty"`
	Critical   bool        `json:"critical"`
	Repeats    int         `json:"repeats"`
	Episode    string      `json:"episode,omitempty"`
}

// Command is the actuation output for one safety state. Pure function of
// State via the profile's actuation envelope; repeated application for
// the same state yields byte-identical commands.
//
// TorqueCeiling and BrakingRequest are per-mille of the rated maximum
// (0..1000), kept integral to avoid float nondeterminism.
type Command struct {
	TorqueCeiling   uint32 `json:"torque_ceiling"`
	ContactorEnable bool   `json:"contactor_enable"`
	BrakingRequest  uint32 `json:"braking_request"`
	DegradedFlag    bool   `json:"degraded_flag"`
}

// StatusSnapshot is the read-only view published for telemetry and
// display collaborators.
type StatusSnapshot struct {
	State              State  `json:"state"`
	Tick               uint64 `json:"tick"`
	LastTransitionTick uint64 `json:"last_transition_tick"`
	Episode            string `json:"episode,omitempty"`
}

package kernel

import (
	"github.com/seastrand/vigil/internal/fault"
)

// StateMachine owns the safety state. It is the single writer: every
// other component reads the state through the kernel's snapshot, none
// mutates it.
//
// The transition graph is monotonically non-improving with exactly one
// improving edge:
//
//	Normal -> Degraded -> SafeStop -> EmergencyShutdown
//	   ^---------|
//
// Degraded -> Normal is taken only through TryRecover, after the
// recovery manager confirmed success for the triggering fault and a
// hold-off of H ticks passed with no new events. SafeStop and
// EmergencyShutdown are never left by the kernel itself; reinstating a
// stopped system is an operator action outside this process.
//
// Thread-safety: none. Owned by the kernel loop.
type StateMachine struct {
	state              fault.State
	lastTransitionTick uint64
	deadlines          map[fault.Kind]uint64
	holdoff            uint64

	// trigger is the record that caused the current Degraded state.
	// Recovery success must match it before the hold-off arms.
	trigger       *fault.Record
	holdoffArmed  bool
	armedAt       uint64
	lastEventTick uint64
}

// NewStateMachine creates a state machine in Normal with the profile's
// deadline table and hold-off.
func NewStateMachine(p fault.Profile) *StateMachine {
	return &StateMachine{
		state:     fault.StateNormal,
		deadlines: p.Deadlines,
		holdoff:   p.Holdoff,
	}
}

// CanTransition reports whether the edge from -> to is inside the
// graph. Exported for the profile validator and tests; Apply and
// TryRecover only ever construct legal edges.
func CanTransition(from, to fault.State) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == fault.StateDegraded && to == fault.StateNormal {
		return true
	}
	return to.Rank() > from.Rank()
}

// FloorFor maps a classified record to its minimum resulting state.
//
//	Transient  -> Normal (recovery runs in the background)
//	Persistent -> Degraded
//	Critical   -> EmergencyShutdown for CoreMismatch and WatchdogTimeout,
//	              SafeStop for everything else
func FloorFor(kind fault.Kind, severity fault.Severity) fault.State {
	switch severity {
	case fault.SeverityTransient:
		return fault.StateNormal
	case fault.SeverityPersistent:
		return fault.StateDegraded
	case fault.SeverityCritical:
		switch kind {
		case fault.KindCoreMismatch, fault.KindWatchdogTimeout:
			return fault.StateEmergencyShutdown
		default:
			return fault.StateSafeStop
		}
	}
	return fault.StateNormal
}

// Apply raises the state to the record's severity floor. Returns the
// transition taken, or (nil, false) when the floor does not exceed the
// current state. The state is never lowered here.
//
// The transition deadline is first-seen + the kind's fault-tolerant
// time interval: the budget runs from fault occurrence, not from the
// moment classification escalated.
func (s *StateMachine) Apply(rec fault.Record, tick uint64) (*fault.Transition, bool) {
	floor := FloorFor(rec.Kind, rec.Severity)
	if floor.Rank() <= s.state.Rank() {
		return nil, false
	}

	cause := rec
	tr := &fault.Transition{
		From:     s.state,
		To:       floor,
		Cause:    &cause,
		Tick:     tick,
		Deadline: rec.FirstSeen + s.deadlineFor(rec.Kind),
	}

	s.commit(tr)

	if floor == fault.StateDegraded {
		s.trigger = &cause
	} else {
		s.trigger = nil
	}
	s.holdoffArmed = false

	return tr, true
}

// EscalateDeadlineMissed forces EmergencyShutdown from any state. A
// missed reaction deadline means the kernel itself can no longer be
// trusted to react in time; there is no milder response. Returns
// (nil, false) only when already in EmergencyShutdown.
func (s *StateMachine) EscalateDeadlineMissed(tick uint64) (*fault.Transition, bool) {
	if s.state == fault.StateEmergencyShutdown {
		return nil, false
	}

	tr := &fault.Transition{
		From:     s.state,
		To:       fault.StateEmergencyShutdown,
		Tick:     tick,
		Deadline: tick,
	}

	s.commit(tr)
	s.trigger = nil
	s.holdoffArmed = false

	return tr, true
}

// NoteEvent records that an event was classified at the given tick.
// Any event restarts the hold-off quiet period.
func (s *StateMachine) NoteEvent(tick uint64) {
	s.lastEventTick = tick
}

// NoteRecoverySuccess arms the hold-off if the success matches the
// fault that caused the current Degraded state. Success for an
// unrelated fault resets its window but does not arm.
func (s *StateMachine) NoteRecoverySuccess(kind fault.Kind, channel int, tick uint64) bool {
	if s.state != fault.StateDegraded || s.trigger == nil {
		return false
	}
	if s.trigger.Kind != kind || s.trigger.Channel != channel {
		return false
	}
	s.holdoffArmed = true
	s.armedAt = tick
	return true
}

// TryRecover takes the one improving edge, Degraded -> Normal, if the
// hold-off is armed and H ticks have passed with no new events. The
// caller gates this additionally on the classifier holding no live
// Persistent record.
func (s *StateMachine) TryRecover(tick uint64) (*fault.Transition, bool) {
	if s.state != fault.StateDegraded || !s.holdoffArmed {
		return nil, false
	}

	quietSince := s.armedAt
	if s.lastEventTick > quietSince {
		quietSince = s.lastEventTick
	}
	if tick < quietSince+s.holdoff {
		return nil, false
	}

	cause := s.trigger
	tr := &fault.Transition{
		From:     fault.StateDegraded,
		To:       fault.StateNormal,
		Cause:    cause,
		Tick:     tick,
		Deadline: tick,
	}

	s.commit(tr)
	s.trigger = nil
	s.holdoffArmed = false

	return tr, true
}

// State returns the current safety state.
func (s *StateMachine) State() fault.State {
	return s.state
}

// LastTransitionTick returns the tick of the most recent transition, or
// 0 if none has been taken.
func (s *StateMachine) LastTransitionTick() uint64 {
	return s.lastTransitionTick
}

// Trigger returns the record that caused the current Degraded state.
// Used for diagnostics and tests.
func (s *StateMachine) Trigger() (fault.Record, bool) {
	if s.trigger == nil {
		return fault.Record{}, false
	}
	return *s.trigger, true
}

func (s *StateMachine) commit(tr *fault.Transition) {
	s.state = tr.To
	s.lastTransitionTick = tr.Tick
}

func (s *StateMachine) deadlineFor(k fault.Kind) uint64 {
	if d, ok := s.deadlines[k]; ok {
		return d
	}
	return 1
}

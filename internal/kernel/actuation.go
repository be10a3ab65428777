package kernel

import (
	"github.com/seastrand/vigil/internal/fault"
)

// CommandSink is the actuator collaborator: torque limiter, contactor
// driver, brake controller. Deliver must return promptly; a delivery
// error is reported back into the pipeline as a comms fault and the
// command is re-issued on the next tick, which is safe because the
// mapping is idempotent.
type CommandSink interface {
	Deliver(cmd fault.Command) error
}

// Actuator translates the safety state into the one bounded command for
// that state. The mapping is a pure table lookup from the profile's
// actuation envelope: repeated Apply calls for the same state yield
// byte-identical commands, enabling safe re-issue on delivery retry.
//
// Thread-safety: none. Owned by the kernel loop.
type Actuator struct {
	envelopes map[fault.State]fault.Command
	sink      CommandSink

	lastState fault.State
	lastTick  uint64
	delivered bool
}

// NewActuator creates an actuator over the profile's envelope table.
// States missing from the table fall back to the zero command (zero
// torque, contactor open), the most restrictive output.
func NewActuator(p fault.Profile, sink CommandSink) *Actuator {
	envelopes := make(map[fault.State]fault.Command, len(p.Envelopes))
	for st, cmd := range p.Envelopes {
		envelopes[st] = cmd
	}
	return &Actuator{
		envelopes: envelopes,
		sink:      sink,
	}
}

// Apply returns the command for a state. Pure and idempotent; no
// delivery, no side effects.
func (a *Actuator) Apply(st fault.State) fault.Command {
	if cmd, ok := a.envelopes[st]; ok {
		return cmd
	}
	// Unknown state: zero torque, contactor open.
	return fault.Command{}
}

// Deliver applies the state and hands the command to the sink, noting
// the tick for deadline accounting. The command is returned even when
// delivery fails so the caller can record what was attempted.
func (a *Actuator) Deliver(st fault.State, tick uint64) (fault.Command, error) {
	cmd := a.Apply(st)
	a.lastState = st
	a.lastTick = tick

	if a.sink == nil {
		a.delivered = true
		return cmd, nil
	}
	if err := a.sink.Deliver(cmd); err != nil {
		a.delivered = false
		return cmd, err
	}
	a.delivered = true
	return cmd, nil
}

// LastDelivery reports the state and tick of the most recent Deliver
// call and whether it reached the sink.
func (a *Actuator) LastDelivery() (fault.State, uint64, bool) {
	return a.lastState, a.lastTick, a.delivered
}

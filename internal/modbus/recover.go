package modbus

import (
	"context"

	"github.com/seastrand/vigil/internal/fault"
)

// Recoverer implements kernel.Recoverer by probing the health block: a
// recovery attempt re-reads the current verdicts and confirms success
// when the faulted signal reads clean again. The bus bridge performs
// the actual re-arm on its side; the probe observes the outcome.
type Recoverer struct {
	source *Source
}

// NewRecoverer creates a probe recoverer over a connected source.
func NewRecoverer(source *Source) *Recoverer {
	return &Recoverer{source: source}
}

// TryRecover implements kernel.Recoverer. A read failure counts as an
// unconfirmed attempt, never an error: the kernel's attempt budget
// bounds the series either way.
func (r *Recoverer) TryRecover(kind fault.Kind, channel int) bool {
	snap, err := r.source.Read(context.Background())
	if err != nil {
		return false
	}
	return verdictClean(snap, kind, channel)
}

// verdictClean reports whether the snapshot shows the faulted signal
// healthy.
func verdictClean(snap fault.HealthSnapshot, kind fault.Kind, channel int) bool {
	switch kind {
	case fault.KindCoreMismatch:
		return !snap.Lockstep.Mismatch
	case fault.KindWatchdogTimeout:
		return snap.Watchdog.Alive
	case fault.KindCommsTimeout, fault.KindCommsIntegrityFault:
		for _, c := range snap.Comms {
			if c.Channel != channel {
				continue
			}
			if kind == fault.KindCommsTimeout {
				return !c.TimedOut
			}
			return c.IntegrityOK && c.SequenceOK
		}
		// Channel absent from the block: nothing to confirm against.
		return false
	case fault.KindSensorImplausible:
		for _, s := range snap.Sensors {
			if s.SensorID == channel {
				return s.Plausible
			}
		}
		return false
	}
	return false
}

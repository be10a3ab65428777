package kernel

import (
	"context"

	"github.com/seastrand/vigil/internal/fault"
)

// Reserved channel ids for faults attributed to a collaborator itself
// rather than to one of its comms channels.
const (
	// ChannelHealthSource marks faults synthesized when the health
	// source collaborator cannot be read at all.
	ChannelHealthSource = -1

	// ChannelActuator marks faults synthesized when command delivery
	// to the actuator collaborator fails.
	ChannelActuator = -2
)

// HealthSource is the capability interface over the hardware-facing
// collaborators: comparator flags, watchdog counters, bus health and
// sensor plausibility, decoded into verdicts. Real implementations poll
// registers; tests inject scripted snapshots.
//
// Read must return promptly. A Read error is itself a health signal:
// the adapter reports it as a comms timeout on ChannelHealthSource
// rather than letting the tick pass silently.
type HealthSource interface {
	Read(ctx context.Context) (fault.HealthSnapshot, error)
}

// Adapter normalizes verdict snapshots into fault events, once per
// tick. It holds no cross-tick state except the watchdog stale budget;
// never blocks; has no side effect beyond event emission.
type Adapter struct {
	staleBudget uint64
}

// NewAdapter creates an adapter. staleBudget is the maximum age in
// ticks of the last watchdog refresh before the watchdog is reported
// timed out even while its alive flag still reads true.
func NewAdapter(staleBudget uint64) *Adapter {
	return &Adapter{staleBudget: staleBudget}
}

// Normalize turns one snapshot into zero or more events, all stamped
// with the given tick. Emission order is fixed: lockstep, watchdog,
// comms channels in slice order, sensors in slice order. Determinism
// of the whole pipeline depends on this ordering.
func (a *Adapter) Normalize(snap fault.HealthSnapshot, tick uint64) []fault.Event {
	var events []fault.Event

	if snap.Lockstep.Mismatch {
		payload := fault.Context{}
		if snap.Lockstep.AddressValid {
			payload["faulting_address"] = int64(snap.Lockstep.FaultingAddress)
		}
		events = append(events, fault.Event{
			Kind:    fault.KindCoreMismatch,
			Channel: 0,
			Tick:    tick,
			Payload: payload,
		})
	}

	if !snap.Watchdog.Alive || a.watchdogStale(snap.Watchdog, tick) {
		events = append(events, fault.Event{
			Kind:    fault.KindWatchdogTimeout,
			Channel: 0,
			Tick:    tick,
			Payload: fault.Context{
				"alive":             snap.Watchdog.Alive,
				"last_refresh_tick": snap.Watchdog.LastRefreshTick,
			},
		})
	}

	for _, ch := range snap.Comms {
		if ch.TimedOut {
			events = append(events, fault.Event{
				Kind:    fault.KindCommsTimeout,
				Channel: ch.Channel,
				Tick:    tick,
			})
		}
		if !ch.IntegrityOK || !ch.SequenceOK {
			events = append(events, fault.Event{
				Kind:    fault.KindCommsIntegrityFault,
				Channel: ch.Channel,
				Tick:    tick,
				Payload: fault.Context{
					"integrity_ok": ch.IntegrityOK,
					"sequence_ok":  ch.SequenceOK,
				},
			})
		}
	}

	for _, s := range snap.Sensors {
		if !s.Plausible {
			events = append(events, fault.Event{
				Kind:    fault.KindSensorImplausible,
				Channel: s.SensorID,
				Tick:    tick,
				Payload: fault.Context{
					"sensor_id": s.SensorID,
				},
			})
		}
	}

	return events
}

// SourceFailure synthesizes the event for an unreachable health source.
// An unreadable collaborator must never yield an empty tick: silence is
// indistinguishable from health.
func (a *Adapter) SourceFailure(tick uint64, err error) fault.Event {
	return fault.Event{
		Kind:    fault.KindCommsTimeout,
		Channel: ChannelHealthSource,
		Tick:    tick,
		Payload: fault.Context{
			"collaborator": "health_source",
			"error":        err.Error(),
		},
	}
}

// DeliveryFailure synthesizes the event for a failed command delivery
// to the actuator collaborator.
func (a *Adapter) DeliveryFailure(tick uint64, err error) fault.Event {
	return fault.Event{
		Kind:    fault.KindCommsTimeout,
		Channel: ChannelActuator,
		Tick:    tick,
		Payload: fault.Context{
			"collaborator": "actuator",
			"error":        err.Error(),
		},
	}
}

func (a *Adapter) watchdogStale(w fault.WatchdogVerdict, tick uint64) bool {
	if a.staleBudget == 0 {
		return false
	}
	if tick <= w.LastRefreshTick {
		return false
	}
	return tick-w.LastRefreshTick > a.staleBudget
}

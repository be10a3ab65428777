package kernel

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seastrand/vigil/internal/fault"
)

func TestAdapter_Normalize_HealthySnapshotEmitsNothing(t *testing.T) {
	a := NewAdapter(5)
	snap := fault.HealthSnapshot{
		Watchdog: fault.WatchdogVerdict{Alive: true, LastRefreshTick: 10},
		Comms:    []fault.CommsVerdict{{Channel: 1, IntegrityOK: true, SequenceOK: true}},
		Sensors:  []fault.SensorVerdict{{SensorID: 0, Plausible: true}},
	}
	assert.Empty(t, a.Normalize(snap, 10))
}

func TestAdapter_Normalize_ZeroSnapshotIsWatchdogTimeout(t *testing.T) {
	// The zero value is not healthy: a zero watchdog verdict reads as
	// not alive.
	a := NewAdapter(5)
	events := a.Normalize(fault.HealthSnapshot{}, 7)
	require.Len(t, events, 1)
	assert.Equal(t, fault.KindWatchdogTimeout, events[0].Kind)
	assert.Equal(t, uint64(7), events[0].Tick)
	assert.Equal(t, false, events[0].Payload["alive"])
}

func TestAdapter_Normalize_MismatchCarriesAddressOnlyWhenValid(t *testing.T) {
	a := NewAdapter(0)

	withAddr := fault.HealthSnapshot{
		Lockstep: fault.LockstepVerdict{Mismatch: true, FaultingAddress: 0x8004_2000, AddressValid: true},
		Watchdog: fault.WatchdogVerdict{Alive: true},
	}
	events := a.Normalize(withAddr, 3)
	require.Len(t, events, 1)
	assert.Equal(t, fault.KindCoreMismatch, events[0].Kind)
	assert.Equal(t, 0, events[0].Channel)
	assert.Equal(t, int64(0x8004_2000), events[0].Payload["faulting_address"])

	withoutAddr := fault.HealthSnapshot{
		Lockstep: fault.LockstepVerdict{Mismatch: true, FaultingAddress: 0xffff},
		Watchdog: fault.WatchdogVerdict{Alive: true},
	}
	events = a.Normalize(withoutAddr, 3)
	require.Len(t, events, 1)
	_, present := events[0].Payload["faulting_address"]
	assert.False(t, present)
}

func TestAdapter_Normalize_StaleWatchdogReportedAsTimeout(t *testing.T) {
	a := NewAdapter(5)
	alive := func(refresh uint64) fault.HealthSnapshot {
		return fault.HealthSnapshot{
			Watchdog: fault.WatchdogVerdict{Alive: true, LastRefreshTick: refresh},
		}
	}

	// Exactly at the budget: fine. One past: timeout.
	assert.Empty(t, a.Normalize(alive(10), 15))
	events := a.Normalize(alive(10), 16)
	require.Len(t, events, 1)
	assert.Equal(t, fault.KindWatchdogTimeout, events[0].Kind)
	assert.Equal(t, true, events[0].Payload["alive"])
	assert.Equal(t, uint64(10), events[0].Payload["last_refresh_tick"])

	// A refresh tick at or ahead of the current tick is never stale.
	assert.Empty(t, a.Normalize(alive(16), 16))
	assert.Empty(t, a.Normalize(alive(20), 16))
}

func TestAdapter_Normalize_StaleCheckDisabledWithZeroBudget(t *testing.T) {
	a := NewAdapter(0)
	snap := fault.HealthSnapshot{
		Watchdog: fault.WatchdogVerdict{Alive: true, LastRefreshTick: 1},
	}
	assert.Empty(t, a.Normalize(snap, 1000))
}

func TestAdapter_Normalize_CommsFaultsPerChannel(t *testing.T) {
	a := NewAdapter(0)
	snap := fault.HealthSnapshot{
		Watchdog: fault.WatchdogVerdict{Alive: true},
		Comms: []fault.CommsVerdict{
			{Channel: 1, TimedOut: true, IntegrityOK: true, SequenceOK: true},
			{Channel: 2, IntegrityOK: false, SequenceOK: true},
			{Channel: 3, TimedOut: true, IntegrityOK: true, SequenceOK: false},
		},
	}

	events := a.Normalize(snap, 4)
	require.Len(t, events, 4)

	assert.Equal(t, fault.KindCommsTimeout, events[0].Kind)
	assert.Equal(t, 1, events[0].Channel)

	assert.Equal(t, fault.KindCommsIntegrityFault, events[1].Kind)
	assert.Equal(t, 2, events[1].Channel)
	assert.Equal(t, false, events[1].Payload["integrity_ok"])
	assert.Equal(t, true, events[1].Payload["sequence_ok"])

	// A channel can fault twice in one tick: timeout then integrity.
	assert.Equal(t, fault.KindCommsTimeout, events[2].Kind)
	assert.Equal(t, 3, events[2].Channel)
	assert.Equal(t, fault.KindCommsIntegrityFault, events[3].Kind)
	assert.Equal(t, 3, events[3].Channel)
}

func TestAdapter_Normalize_ImplausibleSensors(t *testing.T) {
	a := NewAdapter(0)
	snap := fault.HealthSnapshot{
		Watchdog: fault.WatchdogVerdict{Alive: true},
		Sensors: []fault.SensorVerdict{
			{SensorID: 0, Plausible: true},
			{SensorID: 4, Plausible: false},
		},
	}

	events := a.Normalize(snap, 9)
	require.Len(t, events, 1)
	assert.Equal(t, fault.KindSensorImplausible, events[0].Kind)
	assert.Equal(t, 4, events[0].Channel)
	assert.Equal(t, 4, events[0].Payload["sensor_id"])
}

func TestAdapter_Normalize_EmissionOrderIsFixed(t *testing.T) {
	a := NewAdapter(5)
	snap := fault.HealthSnapshot{
		Lockstep: fault.LockstepVerdict{Mismatch: true},
		Watchdog: fault.WatchdogVerdict{Alive: false},
		Comms:    []fault.CommsVerdict{{Channel: 1, TimedOut: true, IntegrityOK: true, SequenceOK: true}},
		Sensors:  []fault.SensorVerdict{{SensorID: 2, Plausible: false}},
	}

	events := a.Normalize(snap, 1)
	require.Len(t, events, 4)
	kinds := []fault.Kind{events[0].Kind, events[1].Kind, events[2].Kind, events[3].Kind}
	assert.Equal(t, []fault.Kind{
		fault.KindCoreMismatch,
		fault.KindWatchdogTimeout,
		fault.KindCommsTimeout,
		fault.KindSensorImplausible,
	}, kinds)
}

func TestAdapter_SourceFailure(t *testing.T) {
	a := NewAdapter(0)
	ev := a.SourceFailure(12, errors.New("bus stuck"))

	assert.Equal(t, fault.KindCommsTimeout, ev.Kind)
	assert.Equal(t, ChannelHealthSource, ev.Channel)
	assert.Equal(t, uint64(12), ev.Tick)
	assert.Equal(t, "health_source", ev.Payload["collaborator"])
	assert.Equal(t, "bus stuck", ev.Payload["error"])
}

func TestAdapter_DeliveryFailure(t *testing.T) {
	a := NewAdapter(0)
	ev := a.DeliveryFailure(13, errors.New("driver offline"))

	assert.Equal(t, fault.KindCommsTimeout, ev.Kind)
	assert.Equal(t, ChannelActuator, ev.Channel)
	assert.Equal(t, uint64(13), ev.Tick)
	assert.Equal(t, "actuator", ev.Payload["collaborator"])
}

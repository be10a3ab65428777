package modbus

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seastrand/vigil/internal/fault"
)

func healthySnapshot(tick uint64) fault.HealthSnapshot {
	return fault.HealthSnapshot{
		Watchdog: fault.WatchdogVerdict{Alive: true, LastRefreshTick: tick},
		Comms: []fault.CommsVerdict{
			{Channel: 0, IntegrityOK: true, SequenceOK: true},
			{Channel: 1, IntegrityOK: true, SequenceOK: true},
		},
		Sensors: []fault.SensorVerdict{
			{SensorID: 0, Plausible: true},
			{SensorID: 1, Plausible: true},
		},
	}
}

func TestRecoverer_TryRecover_ConfirmsOnCleanVerdict(t *testing.T) {
	regs := EncodeHealth(healthySnapshot(7), 2, 2)
	reader := &scriptedReader{regs: regs}
	src, err := NewSource(reader, SourceConfig{UnitID: 1, Channels: 2, Sensors: 2})
	require.NoError(t, err)

	r := NewRecoverer(src)

	assert.True(t, r.TryRecover(fault.KindCoreMismatch, 0))
	assert.True(t, r.TryRecover(fault.KindWatchdogTimeout, 0))
	assert.True(t, r.TryRecover(fault.KindCommsTimeout, 1))
	assert.True(t, r.TryRecover(fault.KindSensorImplausible, 1))
}

func TestRecoverer_TryRecover_UnconfirmedWhileFaultPresent(t *testing.T) {
	snap := healthySnapshot(9)
	snap.Lockstep.Mismatch = true
	snap.Comms[1].TimedOut = true
	snap.Comms[0].IntegrityOK = false
	snap.Sensors[0].Plausible = false

	regs := EncodeHealth(snap, 2, 2)
	reader := &scriptedReader{regs: regs}
	src, err := NewSource(reader, SourceConfig{UnitID: 1, Channels: 2, Sensors: 2})
	require.NoError(t, err)

	r := NewRecoverer(src)

	assert.False(t, r.TryRecover(fault.KindCoreMismatch, 0))
	assert.False(t, r.TryRecover(fault.KindCommsTimeout, 1))
	assert.False(t, r.TryRecover(fault.KindCommsIntegrityFault, 0))
	assert.False(t, r.TryRecover(fault.KindSensorImplausible, 0))
}

func TestRecoverer_TryRecover_ReadFailureIsUnconfirmed(t *testing.T) {
	reader := &scriptedReader{err: errors.New("link down")}
	src, err := NewSource(reader, SourceConfig{UnitID: 1, Channels: 2, Sensors: 2})
	require.NoError(t, err)

	r := NewRecoverer(src)
	assert.False(t, r.TryRecover(fault.KindCommsTimeout, 0))
}

func TestRecoverer_TryRecover_UnknownChannelIsUnconfirmed(t *testing.T) {
	regs := EncodeHealth(healthySnapshot(3), 2, 2)
	reader := &scriptedReader{regs: regs}
	src, err := NewSource(reader, SourceConfig{UnitID: 1, Channels: 2, Sensors: 2})
	require.NoError(t, err)

	r := NewRecoverer(src)
	assert.False(t, r.TryRecover(fault.KindCommsTimeout, 9))
	assert.False(t, r.TryRecover(fault.KindSensorImplausible, 9))
}

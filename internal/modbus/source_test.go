package modbus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seastrand/vigil/internal/fault"
)

type scriptedReader struct {
	regs []uint16
	err  error

	lastUnit uint8
	lastAddr uint16
	lastQty  uint16
}

func (r *scriptedReader) ReadInputRegisters(unitID uint8, addr, quantity uint16) ([]uint16, error) {
	r.lastUnit = unitID
	r.lastAddr = addr
	r.lastQty = quantity
	return r.regs, r.err
}

func TestSource_Read_DecodesHealthBlock(t *testing.T) {
	regs := make([]uint16, healthBlockLen(2, 3))
	regs[RegLockstepFlags] = lockstepMismatchBit | lockstepAddrValidBit
	regs[RegFaultAddrHi] = 0x0800
	regs[RegFaultAddrLo] = 0x1234
	regs[RegWatchdogFlags] = watchdogAliveBit
	regs[RegRefreshTick3] = 42
	regs[RegCommsBase] = commsIntegrityOKBit | commsSequenceOKBit
	regs[RegCommsBase+1] = commsTimedOutBit
	regs[RegCommsBase+2] = 0b101 // sensors 0 and 2 plausible

	reader := &scriptedReader{regs: regs}
	src, err := NewSource(reader, SourceConfig{UnitID: 7, Channels: 2, Sensors: 3})
	require.NoError(t, err)

	snap, err := src.Read(context.Background())
	require.NoError(t, err)

	assert.Equal(t, uint8(7), reader.lastUnit)
	assert.Equal(t, uint16(0), reader.lastAddr)
	assert.Equal(t, healthBlockLen(2, 3), reader.lastQty)

	assert.True(t, snap.Lockstep.Mismatch)
	assert.True(t, snap.Lockstep.AddressValid)
	assert.Equal(t, uint32(0x08001234), snap.Lockstep.FaultingAddress)
	assert.True(t, snap.Watchdog.Alive)
	assert.Equal(t, uint64(42), snap.Watchdog.LastRefreshTick)

	require.Len(t, snap.Comms, 2)
	assert.Equal(t, fault.CommsVerdict{Channel: 0, IntegrityOK: true, SequenceOK: true}, snap.Comms[0])
	assert.Equal(t, fault.CommsVerdict{Channel: 1, TimedOut: true}, snap.Comms[1])

	require.Len(t, snap.Sensors, 3)
	assert.True(t, snap.Sensors[0].Plausible)
	assert.False(t, snap.Sensors[1].Plausible)
	assert.True(t, snap.Sensors[2].Plausible)
}

func TestSource_Read_PropagatesTransportError(t *testing.T) {
	boom := errors.New("connection refused")
	src, err := NewSource(&scriptedReader{err: boom}, SourceConfig{Channels: 1})
	require.NoError(t, err)

	_, err = src.Read(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestSource_Read_RejectsShortBlock(t *testing.T) {
	src, err := NewSource(&scriptedReader{regs: make([]uint16, 3)}, SourceConfig{Channels: 1})
	require.NoError(t, err)

	_, err = src.Read(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "short health block")
}

func TestEncodeHealth_RoundTripsThroughDecode(t *testing.T) {
	snap := fault.HealthSnapshot{
		Lockstep: fault.LockstepVerdict{Mismatch: true, FaultingAddress: 0xDEADBEEF, AddressValid: true},
		Watchdog: fault.WatchdogVerdict{Alive: true, LastRefreshTick: 1<<40 + 9},
		Comms: []fault.CommsVerdict{
			{Channel: 0, IntegrityOK: true, SequenceOK: true},
			{Channel: 1, TimedOut: true, IntegrityOK: true},
		},
		Sensors: []fault.SensorVerdict{
			{SensorID: 0, Plausible: true},
			{SensorID: 16, Plausible: true}, // forces a second sensor word
			{SensorID: 17},
		},
	}

	regs := EncodeHealth(snap, 2, 18)
	require.Len(t, regs, int(healthBlockLen(2, 18)))

	got := DecodeHealth(regs, 2, 18)
	assert.Equal(t, snap.Lockstep, got.Lockstep)
	assert.Equal(t, snap.Watchdog, got.Watchdog)
	assert.Equal(t, snap.Comms, got.Comms)
	require.Len(t, got.Sensors, 18)
	assert.True(t, got.Sensors[0].Plausible)
	assert.True(t, got.Sensors[16].Plausible)
	assert.False(t, got.Sensors[17].Plausible)
}

func TestNewSource_RequiresReader(t *testing.T) {
	_, err := NewSource(nil, SourceConfig{})
	require.Error(t, err)
}

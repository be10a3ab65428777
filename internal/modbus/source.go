package modbus

import (
	"context"
	"fmt"

	"github.com/seastrand/vigil/internal/fault"
)

// RegisterReader is the narrow slice of EndpointClient the source
// needs; tests substitute a scripted reader.
type RegisterReader interface {
	ReadInputRegisters(unitID uint8, addr, quantity uint16) ([]uint16, error)
}

// SourceConfig fixes the shape of one health block.
type SourceConfig struct {
	UnitID   uint8
	Channels int
	Sensors  int
}

// Source reads the health input block and decodes it into a verdict
// snapshot. Implements kernel.HealthSource; a read error propagates to
// the adapter, which reports it as a comms fault on the source channel.
type Source struct {
	reader RegisterReader
	cfg    SourceConfig
}

// NewSource creates a source over a connected reader.
func NewSource(reader RegisterReader, cfg SourceConfig) (*Source, error) {
	if reader == nil {
		return nil, fmt.Errorf("modbus source: reader required")
	}
	if cfg.Channels < 0 || cfg.Sensors < 0 {
		return nil, fmt.Errorf("modbus source: negative channel or sensor count")
	}
	return &Source{reader: reader, cfg: cfg}, nil
}

// Read implements kernel.HealthSource.
func (s *Source) Read(_ context.Context) (fault.HealthSnapshot, error) {
	want := healthBlockLen(s.cfg.Channels, s.cfg.Sensors)
	regs, err := s.reader.ReadInputRegisters(s.cfg.UnitID, 0, want)
	if err != nil {
		return fault.HealthSnapshot{}, fmt.Errorf("read health block: %w", err)
	}
	if len(regs) < int(want) {
		return fault.HealthSnapshot{}, fmt.Errorf("short health block: got %d words, want %d", len(regs), want)
	}
	return DecodeHealth(regs, s.cfg.Channels, s.cfg.Sensors), nil
}

// DecodeHealth decodes a health block into a snapshot. Pure; exported
// for encode/decode tests and for the harness loopback.
func DecodeHealth(regs []uint16, channels, sensors int) fault.HealthSnapshot {
	var snap fault.HealthSnapshot

	flags := regs[RegLockstepFlags]
	snap.Lockstep.Mismatch = flags&lockstepMismatchBit != 0
	snap.Lockstep.AddressValid = flags&lockstepAddrValidBit != 0
	snap.Lockstep.FaultingAddress = uint32(regs[RegFaultAddrHi])<<16 | uint32(regs[RegFaultAddrLo])

	snap.Watchdog.Alive = regs[RegWatchdogFlags]&watchdogAliveBit != 0
	var tick uint64
	for i := RegRefreshTick0; i <= RegRefreshTick3; i++ {
		tick = tick<<16 | uint64(regs[i])
	}
	snap.Watchdog.LastRefreshTick = tick

	for ch := 0; ch < channels; ch++ {
		w := regs[RegCommsBase+ch]
		snap.Comms = append(snap.Comms, fault.CommsVerdict{
			Channel:     ch,
			TimedOut:    w&commsTimedOutBit != 0,
			IntegrityOK: w&commsIntegrityOKBit != 0,
			SequenceOK:  w&commsSequenceOKBit != 0,
		})
	}

	sensorBase := RegCommsBase + channels
	for id := 0; id < sensors; id++ {
		w := regs[sensorBase+id/16]
		snap.Sensors = append(snap.Sensors, fault.SensorVerdict{
			SensorID:  id,
			Plausible: w&(1<<uint(id%16)) != 0,
		})
	}

	return snap
}

// EncodeHealth is the inverse of DecodeHealth. Used by tests and the
// harness loopback; the real block is produced by the monitoring MCU.
func EncodeHealth(snap fault.HealthSnapshot, channels, sensors int) []uint16 {
	regs := make([]uint16, healthBlockLen(channels, sensors))

	if snap.Lockstep.Mismatch {
		regs[RegLockstepFlags] |= lockstepMismatchBit
	}
	if snap.Lockstep.AddressValid {
		regs[RegLockstepFlags] |= lockstepAddrValidBit
	}
	regs[RegFaultAddrHi] = uint16(snap.Lockstep.FaultingAddress >> 16)
	regs[RegFaultAddrLo] = uint16(snap.Lockstep.FaultingAddress)

	if snap.Watchdog.Alive {
		regs[RegWatchdogFlags] |= watchdogAliveBit
	}
	tick := snap.Watchdog.LastRefreshTick
	for i := RegRefreshTick3; i >= RegRefreshTick0; i-- {
		regs[i] = uint16(tick)
		tick >>= 16
	}

	for _, ch := range snap.Comms {
		if ch.Channel < 0 || ch.Channel >= channels {
			continue
		}
		var w uint16
		if ch.TimedOut {
			w |= commsTimedOutBit
		}
		if ch.IntegrityOK {
			w |= commsIntegrityOKBit
		}
		if ch.SequenceOK {
			w |= commsSequenceOKBit
		}
		regs[RegCommsBase+ch.Channel] = w
	}

	sensorBase := RegCommsBase + channels
	for _, s := range snap.Sensors {
		if s.SensorID < 0 || s.SensorID >= sensors {
			continue
		}
		if s.Plausible {
			regs[sensorBase+s.SensorID/16] |= 1 << uint(s.SensorID%16)
		}
	}

	return regs
}

package modbus

// Register layout for the health input block and the actuation holding
// block. The layout is protocol-locked; both sides of the wire compile
// against these constants.

// Health input registers (read with ReadInputRegisters).
const (
	// RegLockstepFlags: bit0 mismatch, bit1 faulting address valid.
	RegLockstepFlags = 0

	// RegFaultAddrHi/Lo: faulting address, big-endian word pair.
	RegFaultAddrHi = 1
	RegFaultAddrLo = 2

	// RegWatchdogFlags: bit0 alive.
	RegWatchdogFlags = 3

	// RegRefreshTick0..3: last watchdog refresh tick, 64-bit value as
	// four big-endian words, most significant first.
	RegRefreshTick0 = 4
	RegRefreshTick3 = 7

	// RegCommsBase: one status word per comms channel. bit0 timed out,
	// bit1 integrity ok, bit2 sequence ok.
	RegCommsBase = 8
)

const (
	lockstepMismatchBit  = 1 << 0
	lockstepAddrValidBit = 1 << 1

	watchdogAliveBit = 1 << 0

	commsTimedOutBit    = 1 << 0
	commsIntegrityOKBit = 1 << 1
	commsSequenceOKBit  = 1 << 2
)

// Actuation holding registers (written with WriteMultipleRegisters) and
// the contactor coil.
const (
	RegTorqueCeiling  = 0
	RegBrakingRequest = 1
	RegCommandFlags   = 2 // bit0 degraded flag

	ActuationBlockLen = 3

	CoilContactor = 0
)

const commandDegradedBit = 1 << 0

// healthBlockLen returns the input block length for a source with the
// given channel and sensor counts. Sensor plausibility packs 16 sensors
// per word after the comms words.
func healthBlockLen(channels, sensors int) uint16 {
	words := RegCommsBase + channels + sensorWords(sensors)
	return uint16(words)
}

func sensorWords(sensors int) int {
	return (sensors + 15) / 16
}

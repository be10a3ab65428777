package fault

// Verdict inputs consumed from collaborators once per tick. These are
// normalized judgments, not raw registers: the comparator hardware, the
// watchdog peripheral and the bus drivers live behind HealthSource
// implementations that decode their registers into these structs.

// LockstepVerdict is the redundant-execution comparator's judgment.
// FaultingAddress is only meaningful when AddressValid is set; some
// comparators latch only the mismatch flag.
type LockstepVerdict struct {
	Mismatch        bool   `json:"mismatch"`
	FaultingAddress uint32 `json:"faulting_address"`
	AddressValid    bool   `json:"address_valid"`
}

// WatchdogVerdict is the supervision timer's judgment.
type WatchdogVerdict struct {
	Alive           bool   `json:"alive"`
	LastRefreshTick uint64 `json:"last_refresh_tick"`
}

// CommsVerdict is one channel's health for the current tick.
type CommsVerdict struct {
	Channel     int  `json:"channel"`
	TimedOut    bool `json:"timed_out"`
	IntegrityOK bool `json:"integrity_ok"`
	SequenceOK  bool `json:"sequence_ok"`
}

// SensorVerdict is one sensor's plausibility judgment for the current tick.
type SensorVerdict struct {
	SensorID  int  `json:"sensor_id"`
	Plausible bool `json:"plausible"`
}

// HealthSnapshot bundles all verdicts read in one tick. Note the zero
// value is NOT healthy: a zero WatchdogVerdict reads as not alive, which
// the adapter reports as a watchdog timeout. Mock sources must set
// Watchdog.Alive explicitly.
type HealthSnapshot struct {
	Lockstep LockstepVerdict `json:"lockstep"`
	Watchdog WatchdogVerdict `json:"watchdog"`
	Comms    []CommsVerdict  `json:"comms,omitempty"`
	Sensors  []SensorVerdict `json:"sensors,omitempty"`
}

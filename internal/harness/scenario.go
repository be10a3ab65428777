package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/seastrand/vigil/internal/fault"
)

// Scenario defines one fault-injection conformance test: a scripted
// sequence of health verdicts driven through a real kernel, followed by
// assertions on the trace, the final state and the delivered commands.
type Scenario struct {
	// Name uniquely identifies this scenario. Also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Profile optionally overrides the embedded default profile.
	Profile *ProfileSpec `yaml:"profile,omitempty"`

	// Ticks scripts the health verdicts. Ticks not listed are healthy.
	// Must be sorted by tick, ascending, with no duplicates.
	Ticks []TickScript `yaml:"ticks"`

	// RunUntil is the last tick executed, inclusive.
	RunUntil uint64 `yaml:"run_until"`

	// Recovery scripts the mock recoverer per (kind, channel).
	// Unscripted faults never recover.
	Recovery []RecoveryScript `yaml:"recovery,omitempty"`

	// Assertions validate the trace, final state and commands.
	Assertions []Assertion `yaml:"assertions"`

	// EpisodeToken is the fixed episode token for deterministic golden
	// comparison. Defaults to "test-episode-default".
	EpisodeToken string `yaml:"episode_token,omitempty"`
}

// ProfileSpec selects and tunes the safety profile for a scenario.
// Pointer fields override only when present.
type ProfileSpec struct {
	// Path to a CUE profile file, relative to the scenario file.
	// Empty means the embedded default.
	Path string `yaml:"path,omitempty"`

	Window              *uint64           `yaml:"window,omitempty"`
	Holdoff             *uint64           `yaml:"holdoff,omitempty"`
	MaxRecoveryAttempts *int              `yaml:"max_recovery_attempts,omitempty"`
	Thresholds          map[string]int    `yaml:"thresholds,omitempty"`
	Deadlines           map[string]uint64 `yaml:"deadlines,omitempty"`
}

// TickScript overlays faults onto the healthy baseline for one tick.
type TickScript struct {
	Tick uint64 `yaml:"tick"`

	Lockstep *LockstepScript `yaml:"lockstep,omitempty"`
	Watchdog *WatchdogScript `yaml:"watchdog,omitempty"`
	Comms    []CommsScript   `yaml:"comms,omitempty"`
	Sensors  []SensorScript  `yaml:"sensors,omitempty"`

	// OOBCoreMismatch raises the out-of-band lockstep path immediately
	// before this tick executes.
	OOBCoreMismatch bool `yaml:"oob_core_mismatch,omitempty"`

	// SourceError makes the health source return this error for the
	// tick instead of a snapshot.
	SourceError string `yaml:"source_error,omitempty"`
}

// LockstepScript injects a comparator verdict.
type LockstepScript struct {
	Mismatch        bool   `yaml:"mismatch"`
	FaultingAddress uint32 `yaml:"faulting_address,omitempty"`
	AddressValid    bool   `yaml:"address_valid,omitempty"`
}

// WatchdogScript overrides the watchdog baseline (alive, refreshed at
// the current tick).
type WatchdogScript struct {
	Alive           *bool   `yaml:"alive,omitempty"`
	LastRefreshTick *uint64 `yaml:"last_refresh_tick,omitempty"`
}

// CommsScript injects a channel verdict. Channels not listed read
// healthy.
type CommsScript struct {
	Channel        int  `yaml:"channel"`
	TimedOut       bool `yaml:"timed_out,omitempty"`
	IntegrityFault bool `yaml:"integrity_fault,omitempty"`
	SequenceFault  bool `yaml:"sequence_fault,omitempty"`
}

// SensorScript marks one sensor implausible for the tick.
type SensorScript struct {
	SensorID    int  `yaml:"sensor_id"`
	Implausible bool `yaml:"implausible"`
}

// RecoveryScript scripts the mock recoverer for one fault series.
// SucceedsAfter is the attempt number at which recovery succeeds;
// 0 means never.
type RecoveryScript struct {
	Kind          string `yaml:"kind"`
	Channel       int    `yaml:"channel"`
	SucceedsAfter int    `yaml:"succeeds_after"`
}

// Assertion validates one aspect of a scenario result.
type Assertion struct {
	// Type selects the assertion; see the package documentation.
	Type string `yaml:"type"`

	// Class narrows trace assertions to "fault" or "transition"
	// entries. Empty matches both.
	Class string `yaml:"class,omitempty"`

	// Fault entry fields (subset match; empty fields are wildcards).
	Kind     string `yaml:"kind,omitempty"`
	Severity string `yaml:"severity,omitempty"`
	Channel  *int   `yaml:"channel,omitempty"`

	// Transition entry fields.
	From string `yaml:"from,omitempty"`
	To   string `yaml:"to,omitempty"`

	// Count is the expected match count for trace_count.
	Count int `yaml:"count,omitempty"`

	// States is the expected transition-target order for trace_order.
	States []string `yaml:"states,omitempty"`

	// State is the expected final state for final_state and the target
	// state for transition_by_deadline.
	State string `yaml:"state,omitempty"`

	// ByTick optionally tightens transition_by_deadline beyond the
	// transition's own recorded deadline.
	ByTick uint64 `yaml:"by_tick,omitempty"`

	// Command is the expected envelope for last_command.
	Command *CommandSpec `yaml:"command,omitempty"`
}

// CommandSpec mirrors fault.Command for YAML scenarios.
type CommandSpec struct {
	TorqueCeiling   uint32 `yaml:"torque_ceiling"`
	ContactorEnable bool   `yaml:"contactor_enable"`
	BrakingRequest  uint32 `yaml:"braking_request"`
	DegradedFlag    bool   `yaml:"degraded_flag"`
}

// Command converts the YAML shape to the domain type.
func (c CommandSpec) Command() fault.Command {
	return fault.Command{
		TorqueCeiling:   c.TorqueCeiling,
		ContactorEnable: c.ContactorEnable,
		BrakingRequest:  c.BrakingRequest,
		DegradedFlag:    c.DegradedFlag,
	}
}

// Assertion type constants.
const (
	AssertTraceContains        = "trace_contains"
	AssertTraceOrder           = "trace_order"
	AssertTraceCount           = "trace_count"
	AssertFinalState           = "final_state"
	AssertLastCommand          = "last_command"
	AssertMaxAttempts          = "max_attempts_respected"
	AssertTransitionByDeadline = "transition_by_deadline"
)

// LoadScenario reads and parses a scenario YAML file. Returns an error
// if the file doesn't exist, is malformed, contains unknown fields
// (typos), or fails validation.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}

	// Strict decoding catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks required fields and script consistency.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.RunUntil == 0 {
		return fmt.Errorf("run_until is required and must be positive")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	var prev uint64
	for i, ts := range s.Ticks {
		if ts.Tick == 0 {
			return fmt.Errorf("ticks[%d]: tick numbering starts at 1", i)
		}
		if i > 0 && ts.Tick <= prev {
			return fmt.Errorf("ticks[%d]: tick %d not after tick %d; scripts must be sorted and unique", i, ts.Tick, prev)
		}
		if ts.Tick > s.RunUntil {
			return fmt.Errorf("ticks[%d]: tick %d past run_until %d", i, ts.Tick, s.RunUntil)
		}
		prev = ts.Tick
	}

	for i, r := range s.Recovery {
		if _, err := fault.ParseKind(r.Kind); err != nil {
			return fmt.Errorf("recovery[%d]: %w", i, err)
		}
		if r.SucceedsAfter < 0 {
			return fmt.Errorf("recovery[%d]: succeeds_after must be non-negative", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	checkKind := func() error {
		if a.Kind == "" {
			return nil
		}
		_, err := fault.ParseKind(a.Kind)
		return err
	}
	checkState := func(name string) error {
		if name == "" {
			return nil
		}
		_, err := fault.ParseState(name)
		return err
	}

	switch a.Type {
	case AssertTraceContains, AssertTraceCount:
		if a.Class != "" && a.Class != string(fault.EntryFault) && a.Class != string(fault.EntryTransition) {
			return fmt.Errorf("assertions[%d]: unknown class %q", index, a.Class)
		}
		if err := checkKind(); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
		if a.Severity != "" {
			if _, err := fault.ParseSeverity(a.Severity); err != nil {
				return fmt.Errorf("assertions[%d]: %w", index, err)
			}
		}
		for _, st := range []string{a.From, a.To} {
			if err := checkState(st); err != nil {
				return fmt.Errorf("assertions[%d]: %w", index, err)
			}
		}
		if a.Type == AssertTraceCount && a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertTraceOrder:
		if len(a.States) < 2 {
			return fmt.Errorf("assertions[%d]: trace_order needs at least two states", index)
		}
		for _, st := range a.States {
			if _, err := fault.ParseState(st); err != nil {
				return fmt.Errorf("assertions[%d]: %w", index, err)
			}
		}
	case AssertFinalState, AssertTransitionByDeadline:
		if a.State == "" {
			return fmt.Errorf("assertions[%d]: state is required for %s", index, a.Type)
		}
		if _, err := fault.ParseState(a.State); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	case AssertLastCommand:
		if a.Command == nil {
			return fmt.Errorf("assertions[%d]: command is required for last_command", index)
		}
	case AssertMaxAttempts:
		// No fields.
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

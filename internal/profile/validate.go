package profile

import (
	"fmt"
	"strings"

	"github.com/seastrand/vigil/internal/fault"
)

// Validation error codes (P100-P199)
const (
	ErrWindowZero          = "P100" // window must be positive
	ErrThresholdMissing    = "P101" // every kind needs a threshold
	ErrThresholdRange      = "P102" // threshold must be >= 1
	ErrCoreThresholdNotOne = "P103" // CoreMismatch/WatchdogTimeout must be 1
	ErrWindowBelowMax      = "P104" // window must exceed every threshold
	ErrDeadlineMissing     = "P105" // every kind needs a deadline
	ErrDeadlineRange       = "P106" // deadline must be >= 1
	ErrAttemptsRange       = "P107" // max attempts must be >= 1
	ErrHoldoffZero         = "P108" // hold-off must be positive
	ErrCapacityRange       = "P109" // buffer capacities below minimum
	ErrEnvelopeMissing     = "P110" // every state needs an envelope
	ErrEnvelopeMonotone    = "P111" // torque must not increase with escalation
	ErrContactorPolicy     = "P112" // contactor open exactly in EmergencyShutdown
	ErrEnvelopeRange       = "P113" // per-mille values out of range
)

// Minimum buffer capacities. Below these the kernel cannot hold one
// tick's worst-case event burst.
const (
	MinQueueCapacity    = 8
	MinRecorderCapacity = 16
)

// ValidationError is one profile consistency failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled profile against the kernel's consistency
// rules. Returns all problems found, not just the first.
func Validate(p fault.Profile) error {
	errs := validate(p)
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("invalid profile:\n  %s", strings.Join(msgs, "\n  "))
}

func validate(p fault.Profile) []ValidationError {
	var errs []ValidationError

	if p.Window == 0 {
		errs = append(errs, ValidationError{
			Field: "window", Code: ErrWindowZero,
			Message: "occurrence window must be positive",
		})
	}
	if p.Holdoff == 0 {
		errs = append(errs, ValidationError{
			Field: "holdoff", Code: ErrHoldoffZero,
			Message: "recovery hold-off must be positive",
		})
	}
	if p.MaxRecoveryAttempts < 1 {
		errs = append(errs, ValidationError{
			Field: "max_recovery_attempts", Code: ErrAttemptsRange,
			Message: fmt.Sprintf("must be >= 1, got %d", p.MaxRecoveryAttempts),
		})
	}
	if p.QueueCapacity < MinQueueCapacity {
		errs = append(errs, ValidationError{
			Field: "queue_capacity", Code: ErrCapacityRange,
			Message: fmt.Sprintf("must be >= %d, got %d", MinQueueCapacity, p.QueueCapacity),
		})
	}
	if p.RecorderCapacity < MinRecorderCapacity {
		errs = append(errs, ValidationError{
			Field: "recorder_capacity", Code: ErrCapacityRange,
			Message: fmt.Sprintf("must be >= %d, got %d", MinRecorderCapacity, p.RecorderCapacity),
		})
	}

	var maxThreshold int
	for _, kind := range fault.Kinds() {
		t, ok := p.Thresholds[kind]
		if !ok {
			errs = append(errs, ValidationError{
				Field: "thresholds." + string(kind), Code: ErrThresholdMissing,
				Message: "threshold is required for every kind",
			})
			continue
		}
		if t < 1 {
			errs = append(errs, ValidationError{
				Field: "thresholds." + string(kind), Code: ErrThresholdRange,
				Message: fmt.Sprintf("must be >= 1, got %d", t),
			})
		}
		if t > maxThreshold {
			maxThreshold = t
		}

		// Lockstep divergence and a dead watchdog may indicate silent
		// corruption; a single occurrence is already persistent.
		if (kind == fault.KindCoreMismatch || kind == fault.KindWatchdogTimeout) && t != 1 {
			errs = append(errs, ValidationError{
				Field: "thresholds." + string(kind), Code: ErrCoreThresholdNotOne,
				Message: fmt.Sprintf("must be exactly 1, got %d", t),
			})
		}
	}

	if p.Window > 0 && uint64(maxThreshold) >= p.Window {
		errs = append(errs, ValidationError{
			Field: "window", Code: ErrWindowBelowMax,
			Message: fmt.Sprintf("window (%d) must exceed the largest threshold (%d)", p.Window, maxThreshold),
		})
	}

	for _, kind := range fault.Kinds() {
		d, ok := p.Deadlines[kind]
		if !ok {
			errs = append(errs, ValidationError{
				Field: "deadlines." + string(kind), Code: ErrDeadlineMissing,
				Message: "deadline is required for every kind",
			})
			continue
		}
		if d < 1 {
			errs = append(errs, ValidationError{
				Field: "deadlines." + string(kind), Code: ErrDeadlineRange,
				Message: "deadline must be >= 1 tick",
			})
		}
	}

	errs = append(errs, validateEnvelopes(p)...)
	return errs
}

// validateEnvelopes enforces the monotone actuation table: every state
// present, torque ceilings non-increasing along the escalation order,
// zero torque in both stop states, contactor open exactly in
// EmergencyShutdown.
func validateEnvelopes(p fault.Profile) []ValidationError {
	var errs []ValidationError

	prevTorque := uint32(0)
	first := true
	for _, st := range fault.States() {
		cmd, ok := p.Envelopes[st]
		if !ok {
			errs = append(errs, ValidationError{
				Field: "envelopes." + string(st), Code: ErrEnvelopeMissing,
				Message: "actuation envelope is required for every state",
			})
			continue
		}

		if cmd.TorqueCeiling > 1000 || cmd.BrakingRequest > 1000 {
			errs = append(errs, ValidationError{
				Field: "envelopes." + string(st), Code: ErrEnvelopeRange,
				Message: fmt.Sprintf("per-mille values must be <= 1000, got torque=%d braking=%d",
					cmd.TorqueCeiling, cmd.BrakingRequest),
			})
		}

		if !first && cmd.TorqueCeiling > prevTorque {
			errs = append(errs, ValidationError{
				Field: "envelopes." + string(st), Code: ErrEnvelopeMonotone,
				Message: fmt.Sprintf("torque ceiling %d exceeds the ceiling %d of the previous state",
					cmd.TorqueCeiling, prevTorque),
			})
		}
		prevTorque = cmd.TorqueCeiling
		first = false

		if st.Terminal() && cmd.TorqueCeiling != 0 {
			errs = append(errs, ValidationError{
				Field: "envelopes." + string(st), Code: ErrEnvelopeMonotone,
				Message: "stop states must command zero torque",
			})
		}

		wantContactor := st != fault.StateEmergencyShutdown
		if cmd.ContactorEnable != wantContactor {
			errs = append(errs, ValidationError{
				Field: "envelopes." + string(st), Code: ErrContactorPolicy,
				Message: "contactor must be open in EmergencyShutdown and closed elsewhere",
			})
		}
	}

	return errs
}

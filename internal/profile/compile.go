package profile

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/seastrand/vigil/internal/fault"
)

// CompileError represents a profile compilation error with source
// position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Load reads, compiles and validates a profile file.
func Load(path string) (fault.Profile, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return fault.Profile{}, fmt.Errorf("load profile: %w", err)
	}
	return Compile(src, path)
}

// Compile parses CUE source into a validated profile. filename is used
// for error positions only.
func Compile(src []byte, filename string) (fault.Profile, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return fault.Profile{}, formatCUEError(err)
	}

	root := v.LookupPath(cue.ParsePath("profile"))
	if !root.Exists() {
		return fault.Profile{}, &CompileError{
			Field:   "profile",
			Message: "top-level profile struct is required",
			Pos:     v.Pos(),
		}
	}

	p := fault.Profile{
		Thresholds:  make(map[fault.Kind]int),
		Recoverable: make(map[fault.Kind]bool),
		Deadlines:   make(map[fault.Kind]uint64),
		Envelopes:   make(map[fault.State]fault.Command),
	}

	var err error
	if p.Window, err = requiredUint(root, "window"); err != nil {
		return fault.Profile{}, err
	}
	if p.Holdoff, err = requiredUint(root, "holdoff"); err != nil {
		return fault.Profile{}, err
	}
	if p.WatchdogStaleBudget, err = requiredUint(root, "watchdog_stale_budget"); err != nil {
		return fault.Profile{}, err
	}
	if p.MaxRecoveryAttempts, err = requiredInt(root, "max_recovery_attempts"); err != nil {
		return fault.Profile{}, err
	}
	if p.QueueCapacity, err = requiredInt(root, "queue_capacity"); err != nil {
		return fault.Profile{}, err
	}
	if p.RecorderCapacity, err = requiredInt(root, "recorder_capacity"); err != nil {
		return fault.Profile{}, err
	}

	if err := parseKindTable(root, "thresholds", func(k fault.Kind, v cue.Value) error {
		n, err := v.Int64()
		if err != nil {
			return formatCUEError(err)
		}
		p.Thresholds[k] = int(n)
		return nil
	}); err != nil {
		return fault.Profile{}, err
	}

	if err := parseKindTable(root, "deadlines", func(k fault.Kind, v cue.Value) error {
		n, err := v.Int64()
		if err != nil {
			return formatCUEError(err)
		}
		p.Deadlines[k] = uint64(n)
		return nil
	}); err != nil {
		return fault.Profile{}, err
	}

	if err := parseKindTable(root, "recoverable", func(k fault.Kind, v cue.Value) error {
		b, err := v.Bool()
		if err != nil {
			return formatCUEError(err)
		}
		p.Recoverable[k] = b
		return nil
	}); err != nil {
		return fault.Profile{}, err
	}

	if err := parseEnvelopes(root, p.Envelopes); err != nil {
		return fault.Profile{}, err
	}

	if err := Validate(p); err != nil {
		return fault.Profile{}, err
	}
	return p, nil
}

// parseKindTable iterates a struct field whose labels must be fault
// kinds.
func parseKindTable(root cue.Value, field string, set func(fault.Kind, cue.Value) error) error {
	tbl := root.LookupPath(cue.ParsePath(field))
	if !tbl.Exists() {
		return &CompileError{
			Field:   field,
			Message: fmt.Sprintf("%s table is required", field),
			Pos:     root.Pos(),
		}
	}

	iter, err := tbl.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		label := iter.Selector().Unquoted()
		kind, err := fault.ParseKind(label)
		if err != nil {
			return &CompileError{
				Field:   field,
				Message: err.Error(),
				Pos:     iter.Value().Pos(),
			}
		}
		if err := set(kind, iter.Value()); err != nil {
			return err
		}
	}
	return nil
}

// parseEnvelopes reads the per-state actuation command table.
func parseEnvelopes(root cue.Value, out map[fault.State]fault.Command) error {
	tbl := root.LookupPath(cue.ParsePath("envelopes"))
	if !tbl.Exists() {
		return &CompileError{
			Field:   "envelopes",
			Message: "envelopes table is required",
			Pos:     root.Pos(),
		}
	}

	iter, err := tbl.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		label := iter.Selector().Unquoted()
		st, err := fault.ParseState(label)
		if err != nil {
			return &CompileError{
				Field:   "envelopes",
				Message: err.Error(),
				Pos:     iter.Value().Pos(),
			}
		}

		ev := iter.Value()
		var cmd fault.Command

		torque, err := requiredUint(ev, "torque_ceiling")
		if err != nil {
			return err
		}
		braking, err := requiredUint(ev, "braking_request")
		if err != nil {
			return err
		}
		cmd.TorqueCeiling = uint32(torque)
		cmd.BrakingRequest = uint32(braking)

		contactor := ev.LookupPath(cue.ParsePath("contactor_enable"))
		if !contactor.Exists() {
			return &CompileError{
				Field:   "envelopes." + label,
				Message: "contactor_enable is required",
				Pos:     ev.Pos(),
			}
		}
		if cmd.ContactorEnable, err = contactor.Bool(); err != nil {
			return formatCUEError(err)
		}

		if degraded := ev.LookupPath(cue.ParsePath("degraded_flag")); degraded.Exists() {
			if cmd.DegradedFlag, err = degraded.Bool(); err != nil {
				return formatCUEError(err)
			}
		}

		out[st] = cmd
	}
	return nil
}

func requiredUint(v cue.Value, field string) (uint64, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return 0, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("%s is required", field),
			Pos:     v.Pos(),
		}
	}
	n, err := fv.Int64()
	if err != nil {
		return 0, formatCUEError(err)
	}
	if n < 0 {
		return 0, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("%s must be non-negative, got %d", field, n),
			Pos:     fv.Pos(),
		}
	}
	return uint64(n), nil
}

func requiredInt(v cue.Value, field string) (int, error) {
	n, err := requiredUint(v, field)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}

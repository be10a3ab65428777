package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/seastrand/vigil/internal/fault"
	"github.com/seastrand/vigil/internal/profile"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <profile.cue>",
		Short: "Compile and validate a safety profile",
		Long: `Compile a CUE safety profile, run the semantic validator and print
the resolved parameters.

Example:
  vigil validate ./profiles/vehicle.cue
  vigil validate ./profiles/vehicle.cue --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateProfile(opts, args[0], cmd)
		},
	}

	return cmd
}

func validateProfile(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	p, err := profile.Load(path)
	if err != nil {
		_ = formatter.Error("P000", "profile rejected", err.Error())
		return WrapExitError(ExitFailure, "profile rejected", err)
	}

	if opts.Format == "json" {
		return formatter.Success(p)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Profile OK: %s\n\n", path)
	fmt.Fprint(cmd.OutOrStdout(), renderProfile(p))
	return nil
}

// renderProfile prints the resolved parameters in declaration order.
func renderProfile(p fault.Profile) string {
	var b strings.Builder

	fmt.Fprintf(&b, "window:                %d ticks\n", p.Window)
	fmt.Fprintf(&b, "holdoff:               %d ticks\n", p.Holdoff)
	fmt.Fprintf(&b, "watchdog stale budget: %d ticks\n", p.WatchdogStaleBudget)
	fmt.Fprintf(&b, "max recovery attempts: %d\n", p.MaxRecoveryAttempts)
	fmt.Fprintf(&b, "queue capacity:        %d\n", p.QueueCapacity)
	fmt.Fprintf(&b, "recorder capacity:     %d\n", p.RecorderCapacity)

	fmt.Fprintf(&b, "\nper-kind thresholds and deadlines:\n")
	for _, k := range fault.Kinds() {
		recoverable := ""
		if p.Recoverable[k] {
			recoverable = " recoverable"
		}
		fmt.Fprintf(&b, "  %-20s threshold=%d deadline=%d%s\n",
			k, p.Thresholds[k], p.Deadlines[k], recoverable)
	}

	fmt.Fprintf(&b, "\nactuation envelopes:\n")
	states := make([]string, 0, len(p.Envelopes))
	for st := range p.Envelopes {
		states = append(states, string(st))
	}
	sort.Strings(states)
	for _, st := range states {
		env := p.Envelopes[fault.State(st)]
		fmt.Fprintf(&b, "  %-18s torque=%d braking=%d contactor=%t degraded=%t\n",
			st, env.TorqueCeiling, env.BrakingRequest, env.ContactorEnable, env.DegradedFlag)
	}
	return b.String()
}

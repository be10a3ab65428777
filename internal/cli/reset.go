package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/seastrand/vigil/internal/store"
)

// ResetOptions holds flags for the reset command.
type ResetOptions struct {
	*RootOptions
	Database string
	Episode  string
	Confirm  bool
}

// NewResetCommand creates the reset command.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Record an operator reset acknowledgement",
		Long: `Close an open episode with an operator reset marker. The monitor
never self-reinstates from SafeStop or EmergencyShutdown; restarting it
after a reset starts from Normal with a fresh kernel.

Requires --confirm: a reset asserts that the underlying fault has been
inspected and cleared.

Example:
  vigil reset --db ./vigil.db --episode 0190f7a2-... --confirm`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return resetEpisode(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the diagnostic database (required)")
	cmd.Flags().StringVar(&opts.Episode, "episode", "", "episode token to close (required)")
	cmd.Flags().BoolVar(&opts.Confirm, "confirm", false, "acknowledge that the fault has been cleared")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("episode")

	return cmd
}

func resetEpisode(opts *ResetOptions, cmd *cobra.Command) error {
	if !opts.Confirm {
		return NewExitError(ExitCommandError, "refusing to reset without --confirm")
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open diagnostic store", err)
	}
	defer st.Close()

	ctx := cmd.Context()

	summary, err := st.GetEpisode(ctx, opts.Episode)
	if err != nil {
		return WrapExitError(ExitCommandError, "episode not found", err)
	}
	if summary.ClosedTick != nil {
		return NewExitError(ExitCommandError,
			fmt.Sprintf("episode %s already closed at tick %d", summary.Token, *summary.ClosedTick))
	}

	// The reset marker carries the episode's last recorded tick: the
	// store has no live clock to consult.
	tick := summary.OpenedTick
	items, err := st.Replay(ctx, opts.Episode)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read episode stream", err)
	}
	if len(items) > 0 {
		tick = items[len(items)-1].Tick
	}

	if err := st.MarkReset(ctx, opts.Episode, tick); err != nil {
		return WrapExitError(ExitFailure, "reset failed", err)
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	if opts.Format == "json" {
		return formatter.Success(map[string]any{
			"episode":    opts.Episode,
			"reset_tick": tick,
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "episode %s closed by operator reset at tick %d\n", opts.Episode, tick)
	return nil
}

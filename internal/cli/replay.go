package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/seastrand/vigil/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Episode  string
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-emit one episode's ordered event stream",
		Long: `Replay an episode from the diagnostic store: transitions and entries
merged by tick, in the deterministic order they were committed.

Example:
  vigil replay --db ./vigil.db --episode 0190f7a2-...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return replayEpisode(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the diagnostic database (required)")
	cmd.Flags().StringVar(&opts.Episode, "episode", "", "episode token to replay (required)")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("episode")

	return cmd
}

func replayEpisode(opts *ReplayOptions, cmd *cobra.Command) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open diagnostic store", err)
	}
	defer st.Close()

	summary, err := st.GetEpisode(cmd.Context(), opts.Episode)
	if err != nil {
		return WrapExitError(ExitCommandError, "episode not found", err)
	}

	items, err := st.Replay(cmd.Context(), opts.Episode)
	if err != nil {
		return WrapExitError(ExitFailure, "replay failed", err)
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if opts.Format == "json" {
		return formatter.Success(map[string]any{
			"episode": summary,
			"stream":  items,
		})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "episode %s opened at tick %d", summary.Token, summary.OpenedTick)
	if summary.ClosedTick != nil {
		fmt.Fprintf(out, ", closed at tick %d (%s)", *summary.ClosedTick, summary.FinalState)
	} else {
		fmt.Fprint(out, ", still open")
	}
	fmt.Fprintf(out, "\n\n")

	for _, item := range items {
		switch {
		case item.Transition != nil:
			fmt.Fprintf(out, "tick %-6d transition %s -> %s (deadline %d)\n",
				item.Tick, item.Transition.From, item.Transition.To, item.Transition.Deadline)
		case item.Entry != nil:
			fmt.Fprintln(out, formatEntry(*item.Entry))
		}
	}
	fmt.Fprintf(out, "\n%d items\n", len(items))
	return nil
}

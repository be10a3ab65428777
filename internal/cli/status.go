package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/seastrand/vigil/internal/fault"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Addr    string
	Timeout time.Duration
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Fetch the status snapshot of a running monitor",
		Long: `Query the telemetry endpoint of a running monitor and print its
current state, tick and episode.

Example:
  vigil status --addr 127.0.0.1:9410`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return fetchStatus(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "127.0.0.1:9410", "telemetry address of the running monitor")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 3*time.Second, "request timeout")

	return cmd
}

func fetchStatus(opts *StatusOptions, cmd *cobra.Command) error {
	url := fmt.Sprintf("http://%s/status", opts.Addr)

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid address", err)
	}

	client := &http.Client{Timeout: opts.Timeout}
	resp, err := client.Do(req)
	if err != nil {
		return WrapExitError(ExitFailure, "monitor unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return NewExitError(ExitFailure, fmt.Sprintf("monitor returned %s", resp.Status))
	}

	var snap fault.StatusSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return WrapExitError(ExitFailure, "malformed status response", err)
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if opts.Format == "json" {
		return formatter.Success(snap)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "state:           %s\n", snap.State)
	fmt.Fprintf(out, "tick:            %d\n", snap.Tick)
	fmt.Fprintf(out, "last transition: tick %d\n", snap.LastTransitionTick)
	if snap.Episode != "" {
		fmt.Fprintf(out, "episode:         %s\n", snap.Episode)
	}
	return nil
}

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/seastrand/vigil/internal/diagquery"
	"github.com/seastrand/vigil/internal/fault"
	"github.com/seastrand/vigil/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database     string
	Episode      string
	Kinds        []string
	Severities   []string
	MinSeverity  string
	Channel      int
	ChannelSet   bool
	CriticalOnly bool
	FromTick     uint64
	ToTick       uint64
	Limit        int
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Query the diagnostic event stream",
		Long: `Query the diagnostic store and print matching entries in recorded
order.

Example:
  vigil trace --db ./vigil.db --kind CommsTimeout --min-severity Persistent
  vigil trace --db ./vigil.db --episode 0190f7a2-... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ChannelSet = cmd.Flags().Changed("channel")
			return traceEntries(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the diagnostic database (required)")
	cmd.Flags().StringVar(&opts.Episode, "episode", "", "restrict to one episode token")
	cmd.Flags().StringSliceVar(&opts.Kinds, "kind", nil, "restrict to fault kinds (repeatable)")
	cmd.Flags().StringSliceVar(&opts.Severities, "severity", nil, "restrict to exact severities (repeatable)")
	cmd.Flags().StringVar(&opts.MinSeverity, "min-severity", "", "restrict to severities at or above the floor")
	cmd.Flags().IntVar(&opts.Channel, "channel", 0, "restrict to one source channel")
	cmd.Flags().BoolVar(&opts.CriticalOnly, "critical-only", false, "keep only critical entries")
	cmd.Flags().Uint64Var(&opts.FromTick, "from-tick", 0, "lower tick bound, inclusive")
	cmd.Flags().Uint64Var(&opts.ToTick, "to-tick", 0, "upper tick bound, inclusive (0 = unbounded)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "cap the row count (0 = no limit)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func traceEntries(opts *TraceOptions, cmd *cobra.Command) error {
	q, err := buildQuery(opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid query", err)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open diagnostic store", err)
	}
	defer st.Close()

	rows, err := st.ListEntries(cmd.Context(), q)
	if err != nil {
		return WrapExitError(ExitFailure, "query failed", err)
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if opts.Format == "json" {
		return formatter.Success(rows)
	}

	out := cmd.OutOrStdout()
	for _, row := range rows {
		fmt.Fprintln(out, formatEntry(row.Entry))
	}
	fmt.Fprintf(out, "%d entries\n", len(rows))
	return nil
}

func buildQuery(opts *TraceOptions) (diagquery.Query, error) {
	q := diagquery.Query{
		Episode:      opts.Episode,
		CriticalOnly: opts.CriticalOnly,
		FromTick:     opts.FromTick,
		ToTick:       opts.ToTick,
		Limit:        opts.Limit,
	}
	for _, k := range opts.Kinds {
		kind, err := fault.ParseKind(k)
		if err != nil {
			return diagquery.Query{}, err
		}
		q.Kinds = append(q.Kinds, kind)
	}
	for _, s := range opts.Severities {
		sev, err := fault.ParseSeverity(s)
		if err != nil {
			return diagquery.Query{}, err
		}
		q.Severities = append(q.Severities, sev)
	}
	if opts.MinSeverity != "" {
		sev, err := fault.ParseSeverity(opts.MinSeverity)
		if err != nil {
			return diagquery.Query{}, err
		}
		q.MinSeverity = sev
	}
	if opts.ChannelSet {
		ch := opts.Channel
		q.Channel = &ch
	}
	return q, q.Validate()
}

// formatEntry renders one entry as a single trace line.
func formatEntry(e fault.LogEntry) string {
	var b strings.Builder

	fmt.Fprintf(&b, "[%d] tick %-6d", e.Seq, e.Tick)
	switch {
	case e.Record != nil:
		fmt.Fprintf(&b, "fault %s/%d %s x%d",
			e.Record.Kind, e.Record.Channel, e.Record.Severity, e.Record.Occurrences)
	case e.Transition != nil:
		fmt.Fprintf(&b, "transition %s -> %s (deadline %d)",
			e.Transition.From, e.Transition.To, e.Transition.Deadline)
		if e.Transition.Cause != nil {
			fmt.Fprintf(&b, " cause=%s/%d", e.Transition.Cause.Kind, e.Transition.Cause.Channel)
		}
	default:
		fmt.Fprintf(&b, "%s", e.Class)
	}
	if e.Critical {
		fmt.Fprint(&b, " CRITICAL")
	}
	if e.Repeats > 0 {
		fmt.Fprintf(&b, " repeats=%d", e.Repeats)
	}
	if e.Episode != "" {
		fmt.Fprintf(&b, " episode=%s", e.Episode)
	}
	return b.String()
}

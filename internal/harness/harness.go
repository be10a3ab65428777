package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/seastrand/vigil/internal/diagquery"
	"github.com/seastrand/vigil/internal/fault"
	"github.com/seastrand/vigil/internal/kernel"
	"github.com/seastrand/vigil/internal/profile"
	"github.com/seastrand/vigil/internal/store"
	"github.com/seastrand/vigil/internal/testutil"
)

// TraceEvent is one diagnostic entry projected for assertions and
// golden comparison.
type TraceEvent struct {
	Seq  uint64 `json:"seq"`
	Tick uint64 `json:"tick"`

	// Type is "fault" or "transition".
	Type string `json:"type"`

	// Fault entry fields.
	Kind        string `json:"kind,omitempty"`
	Severity    string `json:"severity,omitempty"`
	Channel     int    `json:"channel"`
	Occurrences int    `json:"occurrences,omitempty"`

	// Transition entry fields.
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`
	Deadline uint64 `json:"deadline,omitempty"`

	Critical bool   `json:"critical"`
	Repeats  int    `json:"repeats,omitempty"`
	Episode  string `json:"episode,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: every assertion held.
	Pass bool `json:"pass"`

	// Trace contains all persisted diagnostic entries in sequence order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failed-assertion messages. Empty if Pass.
	Errors []string `json:"errors,omitempty"`

	// Final is the kernel's status snapshot after the last tick.
	Final fault.StatusSnapshot `json:"final"`

	// Commands are the actuation commands delivered, in order.
	Commands []fault.Command `json:"commands,omitempty"`

	// Stats are the recorder's monotone counters.
	Stats kernel.RecorderStats `json:"stats"`

	// MaxAttemptRun is the longest uninterrupted recovery attempt run
	// observed by the mock recoverer.
	MaxAttemptRun int `json:"max_attempt_run"`

	// AttemptBudget is the profile's recovery budget the run is
	// compared against.
	AttemptBudget int `json:"attempt_budget"`
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Run executes a scenario against a real kernel with scripted
// collaborators and an in-memory store, then evaluates its assertions.
//
// baseDir resolves relative profile paths; pass the scenario file's
// directory, or "" when the scenario carries no profile path.
func Run(scenario *Scenario, baseDir string) (*Result, error) {
	p, err := resolveProfile(scenario.Profile, baseDir)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("open in-memory store: %w", err)
	}
	defer st.Close()

	source := newScriptedSource(scenario.Ticks)
	sink := &recordingSink{}
	recoverer := newScriptedRecoverer(scenario.Recovery)

	k, err := kernel.New(p, kernel.Deps{
		Source:    source,
		Recoverer: recoverer,
		Sink:      sink,
		Store:     st,
		Tokens:    testutil.NewFixedTokenGenerator(scenario.EpisodeToken),
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		return nil, fmt.Errorf("build kernel: %w", err)
	}
	defer k.Close()

	ctx := context.Background()
	oob := oobTicks(scenario.Ticks)
	for tick := uint64(1); tick <= scenario.RunUntil; tick++ {
		// The out-of-band path fires ahead of the tick so its reaction
		// commits before any event the tick itself produces.
		if oob[tick] {
			k.RaiseCoreMismatch(fault.Context{"injected": true})
		}
		k.Tick(ctx)
	}

	result := &Result{
		Pass:          true,
		Final:         k.Status(),
		Commands:      sink.commands,
		Stats:         k.RecorderStats(),
		MaxAttemptRun: recoverer.maxRun,
		AttemptBudget: p.MaxRecoveryAttempts,
	}

	rows, err := st.ListEntries(ctx, diagquery.Query{})
	if err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}
	result.Trace = projectTrace(rows)

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// resolveProfile builds the scenario's profile: embedded default,
// optional CUE file, optional inline overrides, re-validated at the end.
func resolveProfile(spec *ProfileSpec, baseDir string) (fault.Profile, error) {
	if spec == nil {
		return profile.Default()
	}

	var p fault.Profile
	var err error
	if spec.Path != "" {
		path := spec.Path
		if !filepath.IsAbs(path) && baseDir != "" {
			path = filepath.Join(baseDir, path)
		}
		p, err = profile.Load(path)
	} else {
		p, err = profile.Default()
	}
	if err != nil {
		return fault.Profile{}, err
	}

	if spec.Window != nil {
		p.Window = *spec.Window
	}
	if spec.Holdoff != nil {
		p.Holdoff = *spec.Holdoff
	}
	if spec.MaxRecoveryAttempts != nil {
		p.MaxRecoveryAttempts = *spec.MaxRecoveryAttempts
	}
	for name, t := range spec.Thresholds {
		kind, err := fault.ParseKind(name)
		if err != nil {
			return fault.Profile{}, fmt.Errorf("profile thresholds: %w", err)
		}
		p.Thresholds[kind] = t
	}
	for name, d := range spec.Deadlines {
		kind, err := fault.ParseKind(name)
		if err != nil {
			return fault.Profile{}, fmt.Errorf("profile deadlines: %w", err)
		}
		p.Deadlines[kind] = d
	}

	if err := profile.Validate(p); err != nil {
		return fault.Profile{}, err
	}
	return p, nil
}

func oobTicks(ticks []TickScript) map[uint64]bool {
	out := make(map[uint64]bool)
	for _, ts := range ticks {
		if ts.OOBCoreMismatch {
			out[ts.Tick] = true
		}
	}
	return out
}

// projectTrace flattens persisted entries into assertion-friendly
// events. Entries arrive already ordered by sequence.
func projectTrace(rows []store.EntryRow) []TraceEvent {
	out := make([]TraceEvent, 0, len(rows))
	for _, row := range rows {
		e := row.Entry
		ev := TraceEvent{
			Seq:      e.Seq,
			Tick:     e.Tick,
			Type:     string(e.Class),
			Critical: e.Critical,
			Repeats:  e.Repeats,
			Episode:  e.Episode,
		}
		switch {
		case e.Record != nil:
			ev.Kind = string(e.Record.Kind)
			ev.Severity = string(e.Record.Severity)
			ev.Channel = e.Record.Channel
			ev.Occurrences = e.Record.Occurrences
		case e.Transition != nil:
			ev.From = string(e.Transition.From)
			ev.To = string(e.Transition.To)
			ev.Deadline = e.Transition.Deadline
		}
		out = append(out, ev)
	}
	return out
}

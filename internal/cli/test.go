package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/seastrand/vigil/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
}

// ScenarioResult is one scenario's outcome in the report.
type ScenarioResult struct {
	Path       string   `json:"path"`
	Name       string   `json:"name"`
	Pass       bool     `json:"pass"`
	FinalState string   `json:"final_state,omitempty"`
	Errors     []string `json:"errors,omitempty"`
}

// TestReport summarizes a test run.
type TestReport struct {
	Total     int              `json:"total"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Scenarios []ScenarioResult `json:"scenarios"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenario.yaml|dir>",
		Short: "Run fault-injection scenarios",
		Long: `Run one scenario file, or every *.yaml scenario in a directory,
against a real kernel with scripted collaborators. Exits 1 when any
assertion fails.

Example:
  vigil test ./scenarios/watchdog_escalation.yaml
  vigil test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(opts, args[0], cmd)
		},
	}

	return cmd
}

func runScenarios(opts *TestOptions, target string, cmd *cobra.Command) error {
	paths, err := collectScenarios(target)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to collect scenarios", err)
	}
	if len(paths) == 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("no scenario files found under %s", target))
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	report := TestReport{Total: len(paths)}
	for _, path := range paths {
		report.Scenarios = append(report.Scenarios, runOneScenario(formatter, path))
	}
	for _, sr := range report.Scenarios {
		if sr.Pass {
			report.Passed++
		} else {
			report.Failed++
		}
	}

	if opts.Format == "json" {
		if err := formatter.Success(report); err != nil {
			return err
		}
	} else {
		out := cmd.OutOrStdout()
		for _, sr := range report.Scenarios {
			status := "PASS"
			if !sr.Pass {
				status = "FAIL"
			}
			fmt.Fprintf(out, "%s  %s (%s)\n", status, sr.Name, sr.Path)
			for _, msg := range sr.Errors {
				fmt.Fprintf(out, "     %s\n", msg)
			}
		}
		fmt.Fprintf(out, "\n%d scenarios: %d passed, %d failed\n", report.Total, report.Passed, report.Failed)
	}

	if report.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenarios failed", report.Failed, report.Total))
	}
	return nil
}

func runOneScenario(formatter *OutputFormatter, path string) ScenarioResult {
	sr := ScenarioResult{Path: path}

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		sr.Errors = []string{err.Error()}
		return sr
	}
	sr.Name = scenario.Name

	formatter.VerboseLog("running %s (%d ticks)", scenario.Name, scenario.RunUntil)
	result, err := harness.Run(scenario, filepath.Dir(path))
	if err != nil {
		sr.Errors = []string{err.Error()}
		return sr
	}

	sr.Pass = result.Pass
	sr.FinalState = string(result.Final.State)
	sr.Errors = result.Errors
	return sr
}

// collectScenarios resolves a file or directory argument to scenario
// paths in deterministic order.
func collectScenarios(target string) ([]string, error) {
	info, err := os.Stat(target)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{target}, nil
	}

	paths, err := filepath.Glob(filepath.Join(target, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

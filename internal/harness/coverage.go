package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// SafetyGoal names one observable guarantee of the monitor and the
// scenarios that exercise it. Goals are validated by running their
// scenarios; a goal without scenarios is a coverage hole, not a pass.
type SafetyGoal struct {
	// Name identifies the goal.
	Name string `json:"name"`

	// Description states the guarantee in one sentence.
	Description string `json:"description"`

	// Scenarios lists scenario file names (relative to the scenario
	// directory) that exercise the goal.
	Scenarios []string `json:"scenarios,omitempty"`
}

// Goals returns the monitor's safety goals with their scenario mapping.
func Goals() []SafetyGoal {
	return []SafetyGoal{
		{
			Name:        "deadline-bounded-reaction",
			Description: "A critical fault completes its safe-state transition within the configured reaction deadline.",
			Scenarios:   []string{"watchdog_escalation.yaml"},
		},
		{
			Name:        "transient-tolerance",
			Description: "Sub-threshold fault occurrences within one window never leave Normal.",
			Scenarios:   []string{"transient_tolerance.yaml"},
		},
		{
			Name:        "bounded-recovery",
			Description: "No recovery series exceeds the configured attempt budget before escalation.",
			Scenarios:   []string{"watchdog_escalation.yaml", "comms_recovery.yaml"},
		},
		{
			Name:        "terminal-shutdown",
			Description: "EmergencyShutdown is never left by an internally generated event.",
			Scenarios:   []string{"terminal_shutdown.yaml"},
		},
		{
			Name:        "degraded-recovery-cycle",
			Description: "Degraded returns to Normal only after recovery success and a quiet hold-off.",
			Scenarios:   []string{"comms_recovery.yaml"},
		},
		{
			Name:        "mismatch-priority",
			Description: "An out-of-band core mismatch commits ahead of pending normal-lane events.",
			Scenarios:   []string{"mismatch_priority.yaml"},
		},
		{
			Name:        "unreadable-source-fault",
			Description: "A health source that cannot be read is reported as a fault, never a silent tick.",
			Scenarios:   []string{"source_failure.yaml"},
		},
		{
			Name:        "idempotent-actuation",
			Description: "The actuation command for a state is byte-identical on repeated application.",
			// Covered by unit tests on the actuator; no scenario needed.
		},
	}
}

// CoverageReport summarizes which goals have scenario coverage.
type CoverageReport struct {
	TotalGoals int      `json:"total_goals"`
	Covered    int      `json:"covered"`
	Uncovered  []string `json:"uncovered,omitempty"`
}

// Coverage reports scenario coverage over the given goals. Goals with
// an empty scenario list are counted as uncovered so holes surface in
// review rather than passing silently.
func Coverage(goals []SafetyGoal) CoverageReport {
	report := CoverageReport{TotalGoals: len(goals)}
	for _, g := range goals {
		if len(g.Scenarios) == 0 {
			report.Uncovered = append(report.Uncovered, g.Name)
			continue
		}
		report.Covered++
	}
	sort.Strings(report.Uncovered)
	return report
}

// GoalFailure describes one failed goal validation.
type GoalFailure struct {
	Goal         string `json:"goal"`
	ScenarioPath string `json:"scenario_path"`
	Error        string `json:"error"`
}

// ValidationResult summarizes a full goal validation run.
type ValidationResult struct {
	TotalGoals     int           `json:"total_goals"`
	TotalScenarios int           `json:"total_scenarios"`
	Passed         int           `json:"passed"`
	Failed         int           `json:"failed"`
	Skipped        int           `json:"skipped"`
	Failures       []GoalFailure `json:"failures,omitempty"`
}

// ValidateGoals runs every goal's scenarios from scenarioDir and
// reports pass/fail per scenario. Goals without scenarios are skipped
// (and visible in Coverage).
func ValidateGoals(goals []SafetyGoal, scenarioDir string) (*ValidationResult, error) {
	result := &ValidationResult{TotalGoals: len(goals)}

	for _, goal := range goals {
		if len(goal.Scenarios) == 0 {
			result.Skipped++
			continue
		}

		for _, name := range goal.Scenarios {
			result.TotalScenarios++
			path := filepath.Join(scenarioDir, name)

			if _, err := os.Stat(path); err != nil {
				result.Failed++
				result.Failures = append(result.Failures, GoalFailure{
					Goal:         goal.Name,
					ScenarioPath: path,
					Error:        fmt.Sprintf("scenario file missing: %v", err),
				})
				continue
			}

			scenario, err := LoadScenario(path)
			if err != nil {
				result.Failed++
				result.Failures = append(result.Failures, GoalFailure{
					Goal:         goal.Name,
					ScenarioPath: path,
					Error:        fmt.Sprintf("load failed: %v", err),
				})
				continue
			}

			runResult, err := Run(scenario, filepath.Dir(path))
			if err != nil {
				result.Failed++
				result.Failures = append(result.Failures, GoalFailure{
					Goal:         goal.Name,
					ScenarioPath: path,
					Error:        fmt.Sprintf("execution failed: %v", err),
				})
				continue
			}
			if !runResult.Pass {
				result.Failed++
				result.Failures = append(result.Failures, GoalFailure{
					Goal:         goal.Name,
					ScenarioPath: path,
					Error:        fmt.Sprintf("assertions failed: %v", runResult.Errors),
				})
				continue
			}
			result.Passed++
		}
	}
	return result, nil
}

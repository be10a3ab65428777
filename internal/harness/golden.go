package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/seastrand/vigil/internal/fault"
)

// TraceSnapshot captures one scenario execution for golden comparison.
// Serialized with canonical JSON so byte-identical traces compare equal
// across runs and platforms.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	FinalState   string       `json:"final_state"`
	Trace        []TraceEvent `json:"trace"`
}

// toCanonicalMap converts the snapshot for fault.MarshalCanonical,
// which accepts only maps, slices and scalar values. Zero-valued
// optional fields are omitted to keep goldens small.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		m := map[string]any{
			"seq":      ev.Seq,
			"tick":     ev.Tick,
			"type":     ev.Type,
			"critical": ev.Critical,
		}
		switch ev.Type {
		case "fault":
			m["kind"] = ev.Kind
			m["severity"] = ev.Severity
			m["channel"] = ev.Channel
			m["occurrences"] = ev.Occurrences
		case "transition":
			m["from"] = ev.From
			m["to"] = ev.To
			m["deadline"] = ev.Deadline
		}
		if ev.Repeats > 0 {
			m["repeats"] = ev.Repeats
		}
		if ev.Episode != "" {
			m["episode"] = ev.Episode
		}
		traceList[i] = m
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"final_state":   s.FinalState,
		"trace":         traceList,
	}
}

// RunWithGolden executes a scenario and compares its trace against the
// golden file testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario, baseDir string) (*Result, error) {
	t.Helper()

	result, err := Run(scenario, baseDir)
	if err != nil {
		return nil, err
	}

	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an already-obtained result's trace against the
// scenario's golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		FinalState:   string(result.Final.State),
		Trace:        result.Trace,
	}

	traceJSON, err := fault.MarshalCanonical(snapshot.toCanonicalMap())
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}

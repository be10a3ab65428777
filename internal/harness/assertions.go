package harness

import (
	"fmt"
	"strings"
)

// AssertionError is returned when an assertion fails. It includes the
// trace so the failure report is self-contained.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, ev := range e.Trace {
		switch ev.Type {
		case "fault":
			fmt.Fprintf(&buf, "  [%d] tick %d fault %s/%d %s x%d\n",
				ev.Seq, ev.Tick, ev.Kind, ev.Channel, ev.Severity, ev.Occurrences)
		case "transition":
			fmt.Fprintf(&buf, "  [%d] tick %d transition %s -> %s (deadline %d)\n",
				ev.Seq, ev.Tick, ev.From, ev.To, ev.Deadline)
		}
	}
	return buf.String()
}

// matches reports whether a trace event satisfies an assertion's entry
// fields (subset semantics: empty fields are wildcards).
func matches(ev TraceEvent, a Assertion) bool {
	if a.Class != "" && ev.Type != a.Class {
		return false
	}
	if a.Kind != "" && ev.Kind != a.Kind {
		return false
	}
	if a.Severity != "" && ev.Severity != a.Severity {
		return false
	}
	if a.Channel != nil && ev.Channel != *a.Channel {
		return false
	}
	if a.From != "" && ev.From != a.From {
		return false
	}
	if a.To != "" && ev.To != a.To {
		return false
	}
	return true
}

func describeMatch(a Assertion) string {
	parts := []string{}
	if a.Class != "" {
		parts = append(parts, "class="+a.Class)
	}
	if a.Kind != "" {
		parts = append(parts, "kind="+a.Kind)
	}
	if a.Severity != "" {
		parts = append(parts, "severity="+a.Severity)
	}
	if a.Channel != nil {
		parts = append(parts, fmt.Sprintf("channel=%d", *a.Channel))
	}
	if a.From != "" {
		parts = append(parts, "from="+a.From)
	}
	if a.To != "" {
		parts = append(parts, "to="+a.To)
	}
	if len(parts) == 0 {
		return "(any entry)"
	}
	return strings.Join(parts, " ")
}

// assertTraceContains checks that at least one trace entry matches.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if matches(ev, a) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: "entry matching " + describeMatch(a),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceCount checks that exactly Count trace entries match.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if matches(ev, a) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d entries matching %s", a.Count, describeMatch(a)),
			Actual:   fmt.Sprintf("%d entries", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertTraceOrder checks that transitions into the listed states
// appear in order. Intervening transitions are allowed.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	next := 0
	for _, ev := range trace {
		if next >= len(a.States) {
			break
		}
		if ev.Type == "transition" && ev.To == a.States[next] {
			next++
		}
	}
	if next < len(a.States) {
		return &AssertionError{
			Type:     AssertTraceOrder,
			Expected: fmt.Sprintf("transitions in order %v", a.States),
			Actual:   fmt.Sprintf("no transition to %s after position %d", a.States[next], next),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState checks the kernel's terminal snapshot.
func assertFinalState(result *Result, a Assertion) error {
	if string(result.Final.State) != a.State {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: "final state " + a.State,
			Actual:   "final state " + string(result.Final.State),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertLastCommand checks the last delivered actuation envelope.
func assertLastCommand(result *Result, a Assertion) error {
	want := a.Command.Command()
	if len(result.Commands) == 0 {
		return &AssertionError{
			Type:     AssertLastCommand,
			Expected: fmt.Sprintf("last command %+v", want),
			Actual:   "no command delivered",
			Trace:    result.Trace,
		}
	}
	got := result.Commands[len(result.Commands)-1]
	if got != want {
		return &AssertionError{
			Type:     AssertLastCommand,
			Expected: fmt.Sprintf("last command %+v", want),
			Actual:   fmt.Sprintf("last command %+v", got),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertMaxAttempts checks that no recovery attempt run exceeded the
// profile's budget.
func assertMaxAttempts(result *Result) error {
	if result.MaxAttemptRun > result.AttemptBudget {
		return &AssertionError{
			Type:     AssertMaxAttempts,
			Expected: fmt.Sprintf("at most %d attempts per series", result.AttemptBudget),
			Actual:   fmt.Sprintf("%d attempts observed", result.MaxAttemptRun),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertTransitionByDeadline checks that the first transition into the
// given state completed by its recorded reaction deadline, or by
// a.ByTick when set.
func assertTransitionByDeadline(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if ev.Type != "transition" || ev.To != a.State {
			continue
		}
		limit := ev.Deadline
		if a.ByTick > 0 {
			limit = a.ByTick
		}
		if ev.Tick > limit {
			return &AssertionError{
				Type:     AssertTransitionByDeadline,
				Expected: fmt.Sprintf("transition to %s at or before tick %d", a.State, limit),
				Actual:   fmt.Sprintf("transition at tick %d", ev.Tick),
				Trace:    trace,
			}
		}
		return nil
	}
	return &AssertionError{
		Type:     AssertTransitionByDeadline,
		Expected: "transition to " + a.State,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// EvaluateAssertions evaluates all assertions against the result and
// returns a message per failed assertion.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertFinalState:
			err = assertFinalState(result, a)
		case AssertLastCommand:
			err = assertLastCommand(result, a)
		case AssertMaxAttempts:
			err = assertMaxAttempts(result)
		case AssertTransitionByDeadline:
			err = assertTransitionByDeadline(result.Trace, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}
		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}

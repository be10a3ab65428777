package diagquery

import (
	"fmt"
	"strings"

	"github.com/seastrand/vigil/internal/fault"
)

// Query filters the diagnostic entry stream. The zero value matches
// everything. Fields compose with AND semantics.
type Query struct {
	// Kinds restricts to the given fault kinds. Empty means all.
	Kinds []fault.Kind

	// Severities restricts to exact severities. Empty means all.
	Severities []fault.Severity

	// MinSeverity restricts to severities at or above the floor.
	// Mutually exclusive with Severities.
	MinSeverity fault.Severity

	// Channel restricts to one source channel. Nil means all.
	Channel *int

	// Episode restricts to one episode token.
	Episode string

	// Class restricts to "fault" or "transition" entries.
	Class fault.EntryClass

	// CriticalOnly keeps only critical entries.
	CriticalOnly bool

	// FromTick and ToTick bound the tick range, inclusive. Zero ToTick
	// means unbounded.
	FromTick uint64
	ToTick   uint64

	// Limit caps the row count. Zero means no limit.
	Limit int
}

// Validate checks the query against the fault vocabulary. Returns all
// problems found, not just the first.
func (q Query) Validate() error {
	var problems []string

	for _, k := range q.Kinds {
		if !k.Valid() {
			problems = append(problems, fmt.Sprintf("unknown kind %q", k))
		}
	}
	for _, s := range q.Severities {
		if !s.Valid() {
			problems = append(problems, fmt.Sprintf("unknown severity %q", s))
		}
	}
	if q.MinSeverity != "" {
		if !q.MinSeverity.Valid() {
			problems = append(problems, fmt.Sprintf("unknown min severity %q", q.MinSeverity))
		}
		if len(q.Severities) > 0 {
			problems = append(problems, "severities and min_severity are mutually exclusive")
		}
	}
	if q.Class != "" && q.Class != fault.EntryFault && q.Class != fault.EntryTransition {
		problems = append(problems, fmt.Sprintf("unknown entry class %q", q.Class))
	}
	if q.ToTick != 0 && q.FromTick > q.ToTick {
		problems = append(problems, fmt.Sprintf("inverted tick range [%d, %d]", q.FromTick, q.ToTick))
	}
	if q.Limit < 0 {
		problems = append(problems, fmt.Sprintf("negative limit %d", q.Limit))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid query: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Compile produces the parameterized where-clause and its arguments for
// the entries table. The clause is empty when the query matches
// everything. Argument order matches placeholder order; both are
// deterministic for a given query.
func (q Query) Compile() (string, []any) {
	var clauses []string
	var args []any

	if len(q.Kinds) > 0 {
		clauses = append(clauses, "kind IN ("+placeholders(len(q.Kinds))+")")
		for _, k := range q.Kinds {
			args = append(args, string(k))
		}
	}

	if len(q.Severities) > 0 {
		clauses = append(clauses, "severity IN ("+placeholders(len(q.Severities))+")")
		for _, s := range q.Severities {
			args = append(args, string(s))
		}
	} else if q.MinSeverity != "" {
		// Severity ranks are not lexicographic; expand the floor into
		// the explicit set.
		var atLeast []fault.Severity
		for _, s := range []fault.Severity{fault.SeverityTransient, fault.SeverityPersistent, fault.SeverityCritical} {
			if s.AtLeast(q.MinSeverity) {
				atLeast = append(atLeast, s)
			}
		}
		clauses = append(clauses, "severity IN ("+placeholders(len(atLeast))+")")
		for _, s := range atLeast {
			args = append(args, string(s))
		}
	}

	if q.Channel != nil {
		clauses = append(clauses, "channel = ?")
		args = append(args, *q.Channel)
	}

	if q.Episode != "" {
		clauses = append(clauses, "episode = ?")
		args = append(args, q.Episode)
	}

	if q.Class != "" {
		clauses = append(clauses, "class = ?")
		args = append(args, string(q.Class))
	}

	if q.CriticalOnly {
		clauses = append(clauses, "critical = 1")
	}

	if q.FromTick > 0 {
		clauses = append(clauses, "tick >= ?")
		args = append(args, q.FromTick)
	}
	if q.ToTick > 0 {
		clauses = append(clauses, "tick <= ?")
		args = append(args, q.ToTick)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return strings.Join(clauses, " AND "), args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

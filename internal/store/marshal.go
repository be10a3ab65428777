package store

import (
	"fmt"

	"github.com/seastrand/vigil/internal/fault"
)

// marshalEntry converts a LogEntry to canonical JSON TEXT for the
// payload column. RFC 8785 canonical form so rows are byte-comparable.
func marshalEntry(e fault.LogEntry) (string, error) {
	obj := map[string]any{
		"seq":      e.Seq,
		"tick":     e.Tick,
		"class":    e.Class,
		"critical": e.Critical,
		"repeats":  e.Repeats,
	}
	if e.Episode != "" {
		obj["episode"] = e.Episode
	}
	if e.Record != nil {
		obj["record"] = recordToMap(*e.Record)
	}
	if e.Transition != nil {
		obj["transition"] = transitionToMap(*e.Transition)
	}
	if e.Context != nil {
		obj["context"] = e.Context
	}

	data, err := fault.MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("marshal entry: %w", err)
	}
	return string(data), nil
}

// marshalTransition converts a Transition to canonical JSON TEXT.
func marshalTransition(tr fault.Transition) (string, error) {
	data, err := fault.MarshalCanonical(transitionToMap(tr))
	if err != nil {
		return "", fmt.Errorf("marshal transition: %w", err)
	}
	return string(data), nil
}

func recordToMap(r fault.Record) map[string]any {
	return map[string]any{
		"kind":        r.Kind,
		"severity":    r.Severity,
		"channel":     r.Channel,
		"first_seen":  r.FirstSeen,
		"last_seen":   r.LastSeen,
		"occurrences": r.Occurrences,
	}
}

func transitionToMap(tr fault.Transition) map[string]any {
	obj := map[string]any{
		"from":     tr.From,
		"to":       tr.To,
		"tick":     tr.Tick,
		"deadline": tr.Deadline,
	}
	if tr.Episode != "" {
		obj["episode"] = tr.Episode
	}
	if tr.Cause != nil {
		obj["cause"] = recordToMap(*tr.Cause)
	}
	return obj
}

package fault

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainEvent      = "vigil/event/v1"
	DomainTransition = "vigil/transition/v1"
	DomainEntry      = "vigil/entry/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EventID computes the content-addressed ID for an event.
// The ID is stable across restarts and replays given the same inputs:
// same (kind, channel, tick, payload) always hashes to the same ID,
// which is what makes store writes idempotent.
func EventID(ev Event) (string, error) {
	obj := map[string]any{
		"kind":    ev.Kind,
		"channel": ev.Channel,
		"tick":    ev.Tick,
	}
	if ev.Payload != nil {
		obj["payload"] = ev.Payload
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("EventID: failed to marshal: %w", err)
	}

	return hashWithDomain(DomainEvent, canonical), nil
}

// TransitionID computes the content-addressed ID for a transition.
func TransitionID(tr Transition) (string, error) {
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
		obj["cause"] = map[string]any{
			"kind":        tr.Cause.Kind,
			"severity":    tr.Cause.Severity,
			"channel":     tr.Cause.Channel,
			"first_seen":  tr.Cause.FirstSeen,
			"last_seen":   tr.Cause.LastSeen,
			"occurrences": tr.Cause.Occurrences,
		}
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("TransitionID: failed to marshal: %w", err)
	}

	return hashWithDomain(DomainTransition, canonical), nil
}

// EntryID computes the content-addressed ID for a diagnostic log entry.
// The recorder's Seq participates so that distinct entries with identical
// content (two drains of the same fault signature) remain distinct rows.
func EntryID(e LogEntry) (string, error) {
	obj := map[string]any{
		"seq":   e.Seq,
		"tick":  e.Tick,
		"class": e.Class,
	}
	if e.Episode != "" {
		obj["episode"] = e.Episode
	}
	if e.Record != nil {
		obj["kind"] = e.Record.Kind
		obj["channel"] = e.Record.Channel
	}
	if e.Transition != nil {
		obj["from"] = e.Transition.From
		obj["to"] = e.Transition.To
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("EntryID: failed to marshal: %w", err)
	}

	return hashWithDomain(DomainEntry, canonical), nil
}

// MustEventID is like EventID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustEventID(ev Event) string {
	id, err := EventID(ev)
	if err != nil {
		panic(err)
	}
	return id
}

// MustTransitionID is like TransitionID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustTransitionID(tr Transition) string {
	id, err := TransitionID(tr)
	if err != nil {
		panic(err)
	}
	return id
}

// MustEntryID is like EntryID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustEntryID(e LogEntry) string {
	id, err := EntryID(e)
	if err != nil {
		panic(err)
	}
	return id
}

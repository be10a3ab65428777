package kernel

import (
	"slices"

	"github.com/seastrand/vigil/internal/fault"
)

// recordKey identifies one live fault record. History is tracked per
// (kind, channel) so a flaky channel cannot mask an independent fault
// on another.
type recordKey struct {
	Kind    fault.Kind
	Channel int
}

// Classifier turns events into severity-classified records using
// windowed occurrence counting.
//
// Policy, per (kind, channel):
//   - A window opens at the first occurrence and spans the profile's
//     K ticks. An event past the window end resets the record and
//     opens a fresh window.
//   - Occurrence count below T_kind keeps severity Transient.
//   - Reaching T_kind within the window escalates to Persistent.
//   - CoreMismatch and WatchdogTimeout carry T_kind = 1: they are never
//     Transient. The profile validator enforces the thresholds.
//   - A Persistent record whose kind has no recovery action escalates
//     straight to Critical; there is nothing to retry.
//   - Recovery exhaustion escalates the record to Critical via Escalate.
//
// Severity never decreases within a live record. Output is a pure
// function of the event history; no randomness, no masking.
//
// Thread-safety: none. The classifier is owned by the kernel loop and
// every call happens inside the kernel's critical section.
type Classifier struct {
	window      uint64
	thresholds  map[fault.Kind]int
	recoverable map[fault.Kind]bool
	records     map[recordKey]*fault.Record
}

// NewClassifier creates a classifier from compiled profile tables.
func NewClassifier(p fault.Profile) *Classifier {
	return &Classifier{
		window:      p.Window,
		thresholds:  p.Thresholds,
		recoverable: p.Recoverable,
		records:     make(map[recordKey]*fault.Record),
	}
}

// Classify folds one event into the record history and returns a
// snapshot of the resulting record.
func (c *Classifier) Classify(ev fault.Event) fault.Record {
	key := recordKey{Kind: ev.Kind, Channel: ev.Channel}

	rec, live := c.records[key]
	if live && c.expired(rec, ev.Tick) {
		delete(c.records, key)
		live = false
	}

	if !live {
		rec = &fault.Record{
			Kind:      ev.Kind,
			Channel:   ev.Channel,
			FirstSeen: ev.Tick,
		}
		c.records[key] = rec
	}

	rec.Occurrences++
	rec.LastSeen = ev.Tick
	rec.Severity = c.severityFor(rec)

	return *rec
}

// severityFor computes the monotone severity of a live record.
func (c *Classifier) severityFor(rec *fault.Record) fault.Severity {
	// Never downgrade: Critical stays Critical for the record's lifetime.
	if rec.Severity == fault.SeverityCritical {
		return fault.SeverityCritical
	}

	threshold := c.thresholdFor(rec.Kind)
	if rec.Occurrences < threshold {
		return fault.SeverityTransient
	}

	if !c.recoverable[rec.Kind] {
		return fault.SeverityCritical
	}
	return fault.SeverityPersistent
}

func (c *Classifier) thresholdFor(k fault.Kind) int {
	if t, ok := c.thresholds[k]; ok {
		return t
	}
	return 1
}

// expired reports whether an event at the given tick falls outside the
// record's window. Windows are anchored at first occurrence so the
// check is pure tick arithmetic.
func (c *Classifier) expired(rec *fault.Record, tick uint64) bool {
	if c.window == 0 {
		return false
	}
	return tick >= rec.FirstSeen+c.window
}

// Escalate raises a live record to Critical after its recovery budget
// is exhausted. Returns (snapshot, true) if the record exists, or
// (zero, false) if the window already reset it.
func (c *Classifier) Escalate(kind fault.Kind, channel int) (fault.Record, bool) {
	rec, ok := c.records[recordKey{Kind: kind, Channel: channel}]
	if !ok {
		return fault.Record{}, false
	}
	rec.Severity = fault.SeverityCritical
	return *rec, true
}

// Reset forgets a live record. Called when the recovery manager reports
// success for the (kind, channel); the next occurrence opens a fresh
// window at Transient.
func (c *Classifier) Reset(kind fault.Kind, channel int) {
	delete(c.records, recordKey{Kind: kind, Channel: channel})
}

// AnyAtLeast reports whether any live record has a severity at or above
// min. The state machine's Degraded -> Normal edge is gated on no
// remaining Persistent record.
func (c *Classifier) AnyAtLeast(min fault.Severity) bool {
	for _, rec := range c.records {
		if rec.Severity.AtLeast(min) {
			return true
		}
	}
	return false
}

// Live returns snapshots of all live records in deterministic order
// (kind declaration order, then channel). Used for diagnostics.
func (c *Classifier) Live() []fault.Record {
	keys := make([]recordKey, 0, len(c.records))
	for k := range c.records {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b recordKey) int {
		if a.Kind != b.Kind {
			return kindOrder(a.Kind) - kindOrder(b.Kind)
		}
		return a.Channel - b.Channel
	})

	out := make([]fault.Record, 0, len(keys))
	for _, k := range keys {
		out = append(out, *c.records[k])
	}
	return out
}

func kindOrder(k fault.Kind) int {
	for i, known := range fault.Kinds() {
		if known == k {
			return i
		}
	}
	return len(fault.Kinds())
}

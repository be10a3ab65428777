package kernel

import (
	"fmt"

	"github.com/seastrand/vigil/internal/fault"
)

// MaxCriticalCallbacks bounds the callback registry. Registration past
// the bound is rejected, never silently ignored.
const MaxCriticalCallbacks = 8

// RecorderStats are monotone counters over the recorder's lifetime.
// Drains and clears never reset them.
type RecorderStats struct {
	// Recorded counts entries accepted into the buffer as new rows.
	Recorded uint64 `json:"recorded"`

	// Coalesced counts signature repeats folded into a buffered row.
	Coalesced uint64 `json:"coalesced"`

	// Dropped counts entries discarded by the overflow policy.
	Dropped uint64 `json:"dropped"`

	// Filtered counts entries suppressed below a severity floor.
	Filtered uint64 `json:"filtered"`

	// Overflows counts the times an insert found the buffer full.
	Overflows uint64 `json:"overflows"`

	// Critical counts critical entries accepted.
	Critical uint64 `json:"critical"`
}

type namedCallback struct {
	name string
	fn   func(fault.LogEntry)
}

// Recorder is the bounded diagnostic buffer. Record never fails the
// calling path: every outcome (buffered, coalesced, filtered, dropped)
// is a counter, not an error.
//
// Overflow policy: the oldest non-critical entry is evicted first.
// Critical entries are only evicted when the whole buffer is critical
// and the incoming entry is itself critical; an incoming non-critical
// entry never displaces a critical one (it is dropped instead).
//
// Repeated faults with the same signature (class, kind, channel,
// severity) are coalesced into the buffered row's Repeats counter
// instead of consuming capacity. Transitions are never coalesced.
//
// Thread-safety: none. Owned by the kernel loop.
type Recorder struct {
	capacity int
	entries  []fault.LogEntry
	nextSeq  uint64
	stats    RecorderStats
	last     *fault.LogEntry

	channelFilters map[int]fault.Severity
	globalFilter   fault.Severity

	callbacks []namedCallback
}

// NewRecorder creates a recorder holding at most capacity entries.
// capacity <= 0 falls back to 64.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = 64
	}
	return &Recorder{
		capacity:       capacity,
		entries:        make([]fault.LogEntry, 0, capacity),
		channelFilters: make(map[int]fault.Severity),
		globalFilter:   fault.SeverityTransient,
	}
}

// Record appends an entry, assigning its sequence number. Must not fail
// the calling path; all outcomes are counted in Stats.
func (r *Recorder) Record(entry fault.LogEntry) {
	if entry.Class == fault.EntryFault && r.filtered(entry) {
		r.stats.Filtered++
		return
	}

	if entry.Class == fault.EntryFault {
		if i := r.findSignature(entry); i >= 0 {
			r.entries[i].Repeats++
			r.stats.Coalesced++
			return
		}
	}

	if len(r.entries) >= r.capacity {
		r.stats.Overflows++
		idx := r.oldestNonCritical()
		if idx < 0 {
			// Whole buffer is critical.
			if !entry.Critical {
				r.stats.Dropped++
				return
			}
			// Keep the newest critical context; the oldest has had the
			// most drain opportunities.
			idx = 0
		}
		r.entries = append(r.entries[:idx], r.entries[idx+1:]...)
		r.stats.Dropped++
	}

	r.nextSeq++
	entry.Seq = r.nextSeq
	r.entries = append(r.entries, entry)
	r.stats.Recorded++

	last := entry
	r.last = &last

	if entry.Critical {
		r.stats.Critical++
		for _, cb := range r.callbacks {
			cb.fn(entry)
		}
	}
}

// Drain hands the buffered entries to the persistence collaborator and
// empties the buffer. The returned slice is owned by the caller.
func (r *Recorder) Drain() []fault.LogEntry {
	if len(r.entries) == 0 {
		return nil
	}
	out := r.entries
	r.entries = make([]fault.LogEntry, 0, r.capacity)
	return out
}

// Peek returns the buffered entries without draining them. The slice
// aliases the buffer and is valid only until the next Record or Drain.
func (r *Recorder) Peek() []fault.LogEntry {
	return r.entries
}

// Last returns the most recently recorded entry. It survives Drain so
// inspection tooling can always see the latest fault context.
func (r *Recorder) Last() (fault.LogEntry, bool) {
	if r.last == nil {
		return fault.LogEntry{}, false
	}
	return *r.last, true
}

// Clear discards buffered entries. With keepCritical, critical entries
// stay buffered. Explicit clears are not counted as drops.
func (r *Recorder) Clear(keepCritical bool) {
	if !keepCritical {
		r.entries = r.entries[:0]
		r.last = nil
		return
	}
	kept := r.entries[:0]
	for _, e := range r.entries {
		if e.Critical {
			kept = append(kept, e)
		}
	}
	r.entries = kept
}

// SetFilter sets the minimum severity buffered for one channel.
func (r *Recorder) SetFilter(channel int, min fault.Severity) {
	r.channelFilters[channel] = min
}

// SetGlobalFilter sets the fallback minimum severity for channels
// without their own filter. The default, Transient, buffers everything.
func (r *Recorder) SetGlobalFilter(min fault.Severity) {
	r.globalFilter = min
}

// OnCritical registers a callback invoked synchronously for every
// critical entry accepted into the buffer. Callbacks must do bounded
// work; they run inside the kernel's tick. At most MaxCriticalCallbacks
// may register, each under a unique name.
func (r *Recorder) OnCritical(name string, fn func(fault.LogEntry)) error {
	if fn == nil {
		return fmt.Errorf("callback %q is nil", name)
	}
	if len(r.callbacks) >= MaxCriticalCallbacks {
		return fmt.Errorf("callback registry full (%d)", MaxCriticalCallbacks)
	}
	for _, cb := range r.callbacks {
		if cb.name == name {
			return fmt.Errorf("callback %q already registered", name)
		}
	}
	r.callbacks = append(r.callbacks, namedCallback{name: name, fn: fn})
	return nil
}

// Stats returns the monotone counters.
func (r *Recorder) Stats() RecorderStats {
	return r.stats
}

// Len returns the number of buffered entries.
func (r *Recorder) Len() int {
	return len(r.entries)
}

// filtered reports whether a fault entry falls below its channel's
// severity floor.
func (r *Recorder) filtered(entry fault.LogEntry) bool {
	if entry.Record == nil {
		return false
	}
	floor, ok := r.channelFilters[entry.Record.Channel]
	if !ok {
		floor = r.globalFilter
	}
	return !entry.Record.Severity.AtLeast(floor)
}

// findSignature returns the index of a buffered fault entry with the
// same (kind, channel, severity), or -1. The scan is bounded by the
// buffer capacity.
func (r *Recorder) findSignature(entry fault.LogEntry) int {
	if entry.Record == nil {
		return -1
	}
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := &r.entries[i]
		if e.Class != fault.EntryFault || e.Record == nil {
			continue
		}
		if e.Record.Kind == entry.Record.Kind &&
			e.Record.Channel == entry.Record.Channel &&
			e.Record.Severity == entry.Record.Severity {
			return i
		}
	}
	return -1
}

// oldestNonCritical returns the index of the oldest non-critical
// buffered entry, or -1 when every entry is critical.
func (r *Recorder) oldestNonCritical() int {
	for i, e := range r.entries {
		if !e.Critical {
			return i
		}
	}
	return -1
}

package kernel

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seastrand/vigil/internal/fault"
)

func faultEntry(kind fault.Kind, channel int, sev fault.Severity, tick uint64) fault.LogEntry {
	return fault.LogEntry{
		Tick:  tick,
		Class: fault.EntryFault,
		Record: &fault.Record{
			Kind:     kind,
			Channel:  channel,
			Severity: sev,
		},
		Critical: sev == fault.SeverityCritical,
	}
}

func transitionEntry(to fault.State, tick uint64) fault.LogEntry {
	return fault.LogEntry{
		Tick:  tick,
		Class: fault.EntryTransition,
		Transition: &fault.Transition{
			From: fault.StateNormal,
			To:   to,
			Tick: tick,
		},
		Critical: to.Terminal(),
	}
}

func TestRecorder_Record_AssignsSequence(t *testing.T) {
	r := NewRecorder(8)

	r.Record(faultEntry(fault.KindCommsTimeout, 1, fault.SeverityTransient, 1))
	r.Record(faultEntry(fault.KindSensorImplausible, 2, fault.SeverityTransient, 2))

	entries := r.Drain()
	require.Len(t, entries, 2)
	assert.Equal(t, uint64(1), entries[0].Seq)
	assert.Equal(t, uint64(2), entries[1].Seq)

	// Sequence numbers keep counting across drains.
	r.Record(faultEntry(fault.KindCommsTimeout, 3, fault.SeverityTransient, 3))
	entries = r.Drain()
	require.Len(t, entries, 1)
	assert.Equal(t, uint64(3), entries[0].Seq)
}

func TestRecorder_Record_CoalescesSameSignature(t *testing.T) {
	r := NewRecorder(8)

	r.Record(faultEntry(fault.KindCommsTimeout, 1, fault.SeverityTransient, 1))
	r.Record(faultEntry(fault.KindCommsTimeout, 1, fault.SeverityTransient, 2))
	r.Record(faultEntry(fault.KindCommsTimeout, 1, fault.SeverityTransient, 3))

	entries := r.Drain()
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].Repeats)

	stats := r.Stats()
	assert.Equal(t, uint64(1), stats.Recorded)
	assert.Equal(t, uint64(2), stats.Coalesced)
}

func TestRecorder_Record_SeverityChangeBreaksSignature(t *testing.T) {
	r := NewRecorder(8)

	r.Record(faultEntry(fault.KindCommsTimeout, 1, fault.SeverityTransient, 1))
	r.Record(faultEntry(fault.KindCommsTimeout, 1, fault.SeverityPersistent, 2))

	entries := r.Drain()
	require.Len(t, entries, 2)
	assert.Equal(t, 0, entries[0].Repeats)
	assert.Equal(t, 0, entries[1].Repeats)
}

func TestRecorder_Record_TransitionsNeverCoalesce(t *testing.T) {
	r := NewRecorder(8)

	r.Record(transitionEntry(fault.StateDegraded, 1))
	r.Record(transitionEntry(fault.StateDegraded, 2))

	entries := r.Drain()
	assert.Len(t, entries, 2)
}

func TestRecorder_Record_GlobalFilterSuppresses(t *testing.T) {
	r := NewRecorder(8)
	r.SetGlobalFilter(fault.SeverityPersistent)

	r.Record(faultEntry(fault.KindCommsTimeout, 1, fault.SeverityTransient, 1))
	r.Record(faultEntry(fault.KindCommsTimeout, 1, fault.SeverityPersistent, 2))

	entries := r.Drain()
	require.Len(t, entries, 1)
	assert.Equal(t, fault.SeverityPersistent, entries[0].Record.Severity)
	assert.Equal(t, uint64(1), r.Stats().Filtered)
}

func TestRecorder_Record_ChannelFilterOverridesGlobal(t *testing.T) {
	r := NewRecorder(8)
	r.SetGlobalFilter(fault.SeverityPersistent)
	r.SetFilter(7, fault.SeverityTransient)

	r.Record(faultEntry(fault.KindCommsTimeout, 7, fault.SeverityTransient, 1))
	r.Record(faultEntry(fault.KindCommsTimeout, 8, fault.SeverityTransient, 1))

	entries := r.Drain()
	require.Len(t, entries, 1)
	assert.Equal(t, 7, entries[0].Record.Channel)
}

func TestRecorder_Record_TransitionsBypassFilter(t *testing.T) {
	r := NewRecorder(8)
	r.SetGlobalFilter(fault.SeverityCritical)

	r.Record(transitionEntry(fault.StateDegraded, 1))
	assert.Equal(t, 1, r.Len())
}

func TestRecorder_Overflow_EvictsOldestNonCritical(t *testing.T) {
	r := NewRecorder(3)

	r.Record(faultEntry(fault.KindCommsTimeout, 1, fault.SeverityTransient, 1))
	r.Record(faultEntry(fault.KindCoreMismatch, 0, fault.SeverityCritical, 2))
	r.Record(faultEntry(fault.KindSensorImplausible, 2, fault.SeverityTransient, 3))

	// Full. The next insert evicts the channel-1 entry, the oldest
	// non-critical one.
	r.Record(faultEntry(fault.KindCommsIntegrityFault, 3, fault.SeverityTransient, 4))

	entries := r.Drain()
	require.Len(t, entries, 3)
	assert.Equal(t, fault.KindCoreMismatch, entries[0].Record.Kind)
	assert.Equal(t, fault.KindSensorImplausible, entries[1].Record.Kind)
	assert.Equal(t, fault.KindCommsIntegrityFault, entries[2].Record.Kind)

	stats := r.Stats()
	assert.Equal(t, uint64(1), stats.Overflows)
	assert.Equal(t, uint64(1), stats.Dropped)
}

func TestRecorder_Overflow_NonCriticalNeverDisplacesCritical(t *testing.T) {
	r := NewRecorder(2)

	r.Record(faultEntry(fault.KindCoreMismatch, 0, fault.SeverityCritical, 1))
	r.Record(faultEntry(fault.KindWatchdogTimeout, 0, fault.SeverityCritical, 2))

	r.Record(faultEntry(fault.KindCommsTimeout, 1, fault.SeverityTransient, 3))

	entries := r.Drain()
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Critical)
	assert.True(t, entries[1].Critical)
	assert.Equal(t, uint64(1), r.Stats().Dropped)
}

func TestRecorder_Overflow_CriticalEvictsOldestCritical(t *testing.T) {
	r := NewRecorder(2)

	r.Record(faultEntry(fault.KindCoreMismatch, 0, fault.SeverityCritical, 1))
	r.Record(faultEntry(fault.KindWatchdogTimeout, 0, fault.SeverityCritical, 2))

	// Whole buffer critical and the incoming entry critical: the oldest
	// goes, the newest context is kept.
	r.Record(faultEntry(fault.KindCommsTimeout, 1, fault.SeverityCritical, 3))

	entries := r.Drain()
	require.Len(t, entries, 2)
	assert.Equal(t, fault.KindWatchdogTimeout, entries[0].Record.Kind)
	assert.Equal(t, fault.KindCommsTimeout, entries[1].Record.Kind)
}

func TestRecorder_Peek_DoesNotDrain(t *testing.T) {
	r := NewRecorder(8)

	assert.Empty(t, r.Peek())

	r.Record(faultEntry(fault.KindCommsTimeout, 1, fault.SeverityTransient, 1))
	r.Record(transitionEntry(fault.StateDegraded, 1))

	require.Len(t, r.Peek(), 2)
	assert.Equal(t, 2, r.Len(), "peeking leaves the buffer intact")

	drained := r.Drain()
	assert.Len(t, drained, 2)
	assert.Empty(t, r.Peek())
}

func TestRecorder_Last_SurvivesDrain(t *testing.T) {
	r := NewRecorder(8)

	_, ok := r.Last()
	assert.False(t, ok)

	r.Record(faultEntry(fault.KindCommsTimeout, 1, fault.SeverityTransient, 1))
	r.Drain()

	last, ok := r.Last()
	require.True(t, ok)
	assert.Equal(t, fault.KindCommsTimeout, last.Record.Kind)
}

func TestRecorder_Clear_KeepCritical(t *testing.T) {
	r := NewRecorder(8)

	r.Record(faultEntry(fault.KindCommsTimeout, 1, fault.SeverityTransient, 1))
	r.Record(faultEntry(fault.KindCoreMismatch, 0, fault.SeverityCritical, 2))
	r.Record(faultEntry(fault.KindSensorImplausible, 2, fault.SeverityTransient, 3))

	r.Clear(true)
	entries := r.Drain()
	require.Len(t, entries, 1)
	assert.Equal(t, fault.KindCoreMismatch, entries[0].Record.Kind)

	r.Record(faultEntry(fault.KindCommsTimeout, 1, fault.SeverityTransient, 4))
	r.Clear(false)
	assert.Equal(t, 0, r.Len())
}

func TestRecorder_OnCritical_CallbackRules(t *testing.T) {
	r := NewRecorder(8)

	var fired int
	require.NoError(t, r.OnCritical("uplink", func(fault.LogEntry) { fired++ }))

	assert.Error(t, r.OnCritical("uplink", func(fault.LogEntry) {}))
	assert.Error(t, r.OnCritical("nil", nil))

	for i := 0; i < MaxCriticalCallbacks-1; i++ {
		require.NoError(t, r.OnCritical(fmt.Sprintf("cb-%d", i), func(fault.LogEntry) {}))
	}
	assert.Error(t, r.OnCritical("overflow", func(fault.LogEntry) {}))

	r.Record(faultEntry(fault.KindCommsTimeout, 1, fault.SeverityTransient, 1))
	assert.Equal(t, 0, fired)

	r.Record(faultEntry(fault.KindCoreMismatch, 0, fault.SeverityCritical, 2))
	assert.Equal(t, 1, fired)
}

func TestRecorder_Stats_Monotone(t *testing.T) {
	r := NewRecorder(2)

	r.Record(faultEntry(fault.KindCommsTimeout, 1, fault.SeverityTransient, 1))
	r.Record(faultEntry(fault.KindCommsTimeout, 1, fault.SeverityTransient, 2))
	r.Record(faultEntry(fault.KindCoreMismatch, 0, fault.SeverityCritical, 3))
	r.Drain()
	r.Clear(false)

	stats := r.Stats()
	assert.Equal(t, uint64(2), stats.Recorded)
	assert.Equal(t, uint64(1), stats.Coalesced)
	assert.Equal(t, uint64(1), stats.Critical)
}

func TestNewRecorder_DefaultCapacity(t *testing.T) {
	r := NewRecorder(0)
	for i := 0; i < 100; i++ {
		r.Record(transitionEntry(fault.StateDegraded, uint64(i)))
	}
	assert.Equal(t, 64, r.Len())
}

package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seastrand/vigil/internal/fault"
)

func TestNewMetrics_RegistersFamilies(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.FaultClassified(fault.KindCommsTimeout, fault.SeverityTransient)
	m.TransitionTaken(fault.StateNormal, fault.StateDegraded)
	m.RecoveryAttempt(fault.KindCommsTimeout, fault.OutcomePending)
	m.TickCompleted(12, fault.StateDegraded)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["vigil_faults_total"])
	assert.True(t, names["vigil_transitions_total"])
	assert.True(t, names["vigil_recovery_attempts_total"])
	assert.True(t, names["vigil_safety_state"])
	assert.True(t, names["vigil_current_tick"])
}

func TestMetrics_FaultClassified_LabelsByKindAndSeverity(t *testing.T) {
	m := NewMetrics(nil)

	m.FaultClassified(fault.KindCommsTimeout, fault.SeverityTransient)
	m.FaultClassified(fault.KindCommsTimeout, fault.SeverityTransient)
	m.FaultClassified(fault.KindCommsTimeout, fault.SeverityPersistent)

	assert.Equal(t, 2.0, testutil.ToFloat64(
		m.FaultsTotal.WithLabelValues("CommsTimeout", "Transient")))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		m.FaultsTotal.WithLabelValues("CommsTimeout", "Persistent")))
}

func TestMetrics_TickCompleted_StateRank(t *testing.T) {
	m := NewMetrics(nil)

	m.TickCompleted(7, fault.StateNormal)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.SafetyState))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.CurrentTick))

	m.TickCompleted(8, fault.StateEmergencyShutdown)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SafetyState))
}

func TestMetrics_DroppedTotalsAreLifetimeValues(t *testing.T) {
	m := NewMetrics(nil)

	m.QueueDropped(4)
	m.QueueDropped(4) // same lifetime total, not a delta
	m.EntriesDropped(9)

	assert.Equal(t, 4.0, testutil.ToFloat64(m.QueueDroppedTotal))
	assert.Equal(t, 9.0, testutil.ToFloat64(m.EntriesDroppedTotal))
}

func TestNewMetrics_NilRegisterer(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics(nil)
		NewMetrics(nil) // private registries, no duplicate registration
	})
}

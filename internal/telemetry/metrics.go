package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/seastrand/vigil/internal/fault"
)

// Metrics is the prometheus implementation of kernel.Metrics. The
// kernel reports through the narrow interface and never touches
// prometheus types directly.
type Metrics struct {
	// Faults classified, by kind and resulting severity.
	FaultsTotal *prometheus.CounterVec

	// State transitions taken, by edge.
	TransitionsTotal *prometheus.CounterVec

	// Recovery attempts, by kind and outcome.
	RecoveryAttemptsTotal *prometheus.CounterVec

	// Events discarded by the bounded queue (lifetime total).
	QueueDroppedTotal prometheus.Gauge

	// Diagnostic entries discarded by the overflow policy (lifetime
	// total).
	EntriesDroppedTotal prometheus.Gauge

	// Current safety state as its escalation rank:
	// 0=Normal 1=Degraded 2=SafeStop 3=EmergencyShutdown.
	SafetyState prometheus.Gauge

	// Current logical tick.
	CurrentTick prometheus.Gauge
}

// NewMetrics registers the vigil metric family. A nil registerer gets a
// private registry, which keeps tests isolated from the default
// registry's duplicate-registration panic.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		FaultsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "vigil_faults_total",
			Help: "Faults classified, by kind and severity.",
		}, []string{"kind", "severity"}),

		TransitionsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "vigil_transitions_total",
			Help: "Safety state transitions taken, by edge.",
		}, []string{"from", "to"}),

		RecoveryAttemptsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "vigil_recovery_attempts_total",
			Help: "Recovery attempts, by kind and outcome.",
		}, []string{"kind", "outcome"}),

		QueueDroppedTotal: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "vigil_queue_dropped_total",
			Help: "Events discarded by the bounded queue since start.",
		}),

		EntriesDroppedTotal: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "vigil_entries_dropped_total",
			Help: "Diagnostic entries discarded by the overflow policy since start.",
		}),

		SafetyState: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "vigil_safety_state",
			Help: "Current safety state rank (0=Normal .. 3=EmergencyShutdown).",
		}),

		CurrentTick: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "vigil_current_tick",
			Help: "Current logical tick of the kernel.",
		}),
	}
}

// FaultClassified implements kernel.Metrics.
func (m *Metrics) FaultClassified(kind fault.Kind, severity fault.Severity) {
	m.FaultsTotal.WithLabelValues(string(kind), string(severity)).Inc()
}

// TransitionTaken implements kernel.Metrics.
func (m *Metrics) TransitionTaken(from, to fault.State) {
	m.TransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
}

// RecoveryAttempt implements kernel.Metrics.
func (m *Metrics) RecoveryAttempt(kind fault.Kind, outcome fault.Outcome) {
	m.RecoveryAttemptsTotal.WithLabelValues(string(kind), string(outcome)).Inc()
}

// QueueDropped implements kernel.Metrics. total is the lifetime drop
// counter, not a delta.
func (m *Metrics) QueueDropped(total uint64) {
	m.QueueDroppedTotal.Set(float64(total))
}

// EntriesDropped implements kernel.Metrics.
func (m *Metrics) EntriesDropped(total uint64) {
	m.EntriesDroppedTotal.Set(float64(total))
}

// TickCompleted implements kernel.Metrics.
func (m *Metrics) TickCompleted(tick uint64, state fault.State) {
	m.CurrentTick.Set(float64(tick))
	m.SafetyState.Set(float64(state.Rank()))
}

package kernel

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/seastrand/vigil/internal/fault"
)

// Pacer paces the kernel's Run loop. Wait blocks until the next tick is
// due. The real implementation wraps a time.Ticker in the daemon; tests
// and the scenario harness drive Tick directly and never pace.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Metrics is the narrow observability surface the kernel reports
// through. The prometheus implementation lives in internal/telemetry;
// NopMetrics is the default.
type Metrics interface {
	FaultClassified(kind fault.Kind, severity fault.Severity)
	TransitionTaken(from, to fault.State)
	RecoveryAttempt(kind fault.Kind, outcome fault.Outcome)
	QueueDropped(total uint64)
	EntriesDropped(total uint64)
	TickCompleted(tick uint64, state fault.State)
}

// NopMetrics discards every report.
type NopMetrics struct{}

func (NopMetrics) FaultClassified(fault.Kind, fault.Severity) {}
func (NopMetrics) TransitionTaken(fault.State, fault.State)   {}
func (NopMetrics) RecoveryAttempt(fault.Kind, fault.Outcome)  {}
func (NopMetrics) QueueDropped(uint64)                        {}
func (NopMetrics) EntriesDropped(uint64)                      {}
func (NopMetrics) TickCompleted(uint64, fault.State)          {}

// EntrySink is the persistence collaborator. Implemented by the SQLite
// store; nil disables persistence (harness and unit tests inspect the
// recorder directly). Writes are idempotent on content-addressed IDs,
// so re-delivering a batch after a failure is safe.
type EntrySink interface {
	AppendEntries(ctx context.Context, entries []fault.LogEntry) error
	AppendTransitions(ctx context.Context, transitions []fault.Transition) error
	OpenEpisode(ctx context.Context, token string, tick uint64) error
	CloseEpisode(ctx context.Context, token string, tick uint64, final fault.State) error
}

// Deps are the kernel's collaborators. Source is required; everything
// else has a safe default.
type Deps struct {
	Source    HealthSource
	Recoverer Recoverer
	Sink      CommandSink
	Store     EntrySink
	Tokens    TokenGenerator
	Metrics   Metrics
	Logger    *slog.Logger
}

// Kernel is the safety monitor's deterministic tick pipeline:
//
//	poll health -> normalize -> classify -> recover/escalate ->
//	state machine -> actuate -> record -> persist
//
// All pipeline state is owned by the goroutine driving Tick. The only
// concurrent surfaces are RaiseCoreMismatch (interrupt-style, any
// goroutine), Status (atomic snapshot) and Close. Both the tick path
// and the mismatch path run under one mutex with bounded hold time.
type Kernel struct {
	mu sync.Mutex

	clock      *Clock
	queue      *eventQueue
	adapter    *Adapter
	classifier *Classifier
	recovery   *RecoveryManager
	sm         *StateMachine
	actuator   *Actuator
	recorder   *Recorder

	source  HealthSource
	store   EntrySink
	tokens  TokenGenerator
	metrics Metrics
	logger  *slog.Logger

	// episode is the token of the open fault episode, empty in quiet
	// Normal operation.
	episode string

	// transitions taken since the last store flush.
	pendingTransitions []fault.Transition

	status atomic.Pointer[fault.StatusSnapshot]
	closed atomic.Bool
}

// New builds a kernel from a validated profile and its collaborators.
func New(p fault.Profile, deps Deps) (*Kernel, error) {
	if deps.Source == nil {
		return nil, NewInvalidProfileError("health source is required")
	}
	if deps.Tokens == nil {
		deps.Tokens = UUIDv7Generator{}
	}
	if deps.Metrics == nil {
		deps.Metrics = NopMetrics{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	k := &Kernel{
		clock:      NewClock(),
		queue:      newEventQueue(p.QueueCapacity),
		adapter:    NewAdapter(p.WatchdogStaleBudget),
		classifier: NewClassifier(p),
		recovery:   NewRecoveryManager(deps.Recoverer, p.MaxRecoveryAttempts),
		sm:         NewStateMachine(p),
		actuator:   NewActuator(p, deps.Sink),
		recorder:   NewRecorder(p.RecorderCapacity),
		source:     deps.Source,
		store:      deps.Store,
		tokens:     deps.Tokens,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
	}
	k.publishStatus()
	return k, nil
}

// NewAt builds a kernel whose clock resumes at a persisted tick.
// Used by replay tooling.
func NewAt(p fault.Profile, deps Deps, startTick uint64) (*Kernel, error) {
	k, err := New(p, deps)
	if err != nil {
		return nil, err
	}
	k.clock = NewClockAt(startTick)
	k.publishStatus()
	return k, nil
}

// Run drives the pipeline until the context is cancelled. pacer fixes
// the tick period; the kernel itself never touches the wall clock.
//
// Must be called from exactly one goroutine.
func (k *Kernel) Run(ctx context.Context, pacer Pacer) error {
	k.logger.Info("kernel starting", "state", k.sm.State())

	for {
		if err := pacer.Wait(ctx); err != nil {
			k.logger.Info("kernel stopping", "reason", err)
			k.Close()
			return err
		}
		k.Tick(ctx)
	}
}

// Tick executes one full pipeline pass and returns the tick it ran as.
// The harness and tests call this directly for deterministic pacing.
func (k *Kernel) Tick(ctx context.Context) uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()

	tick := k.clock.Advance()

	// 1. Poll health and enqueue. An unreadable source is itself a
	// fault, never a silent tick.
	snap, err := k.source.Read(ctx)
	if err != nil {
		k.queue.Enqueue(k.adapter.SourceFailure(tick, err))
	} else {
		for _, ev := range k.adapter.Normalize(snap, tick) {
			k.queue.Enqueue(ev)
		}
	}

	// 2. Drain in arrival order, priority lane first.
	for {
		ev, ok := k.queue.TryDequeue()
		if !ok {
			break
		}
		k.handleEvent(ev, tick)
	}

	// 3. Advance recovery, one attempt per series per tick.
	for _, att := range k.recovery.Step() {
		k.metrics.RecoveryAttempt(att.Kind, att.Outcome)
		switch att.Outcome {
		case fault.OutcomeSucceeded:
			k.classifier.Reset(att.Kind, att.Channel)
			armed := k.sm.NoteRecoverySuccess(att.Kind, att.Channel, tick)
			k.logger.Info("recovery succeeded",
				"kind", att.Kind, "channel", att.Channel,
				"attempt", att.Number, "holdoff_armed", armed)
		case fault.OutcomeExhausted:
			k.logger.Warn("recovery exhausted",
				"kind", att.Kind, "channel", att.Channel,
				"attempts", att.Number)
			if rec, ok := k.classifier.Escalate(att.Kind, att.Channel); ok {
				k.recordFault(rec, tick)
				k.applyRecord(rec, tick)
			}
		}
	}

	// 4. The one improving edge: Degraded -> Normal after the hold-off,
	// gated on no live persistent record remaining.
	if !k.classifier.AnyAtLeast(fault.SeverityPersistent) {
		if tr, ok := k.sm.TryRecover(tick); ok {
			k.commitTransition(tr, tick)
		}
	}

	// 5. Persist and publish.
	k.flush(ctx, tick)
	k.publishStatus()
	k.metrics.QueueDropped(k.queue.Dropped())
	k.metrics.EntriesDropped(k.recorder.Stats().Dropped)
	k.metrics.TickCompleted(tick, k.sm.State())

	return tick
}

// RaiseCoreMismatch is the out-of-band lockstep path. Safe from any
// goroutine at any time; the reaction is committed under the kernel
// mutex immediately, ahead of all pending normal-lane work. Returns
// false after Close.
func (k *Kernel) RaiseCoreMismatch(payload fault.Context) bool {
	if k.closed.Load() {
		return false
	}

	ev := fault.Event{
		Kind:    fault.KindCoreMismatch,
		Channel: 0,
		Tick:    k.clock.Now(),
		Payload: payload,
	}
	if !k.queue.EnqueuePriority(ev) {
		return false
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	tick := k.clock.Now()
	for {
		pev, ok := k.queue.TryDequeuePriority()
		if !ok {
			break
		}
		k.handleEvent(pev, tick)
	}
	k.publishStatus()
	return true
}

// Status returns the latest published snapshot. Safe for concurrent
// readers; the pipeline is the single writer.
func (k *Kernel) Status() fault.StatusSnapshot {
	return *k.status.Load()
}

// DrainDiagnostics hands over buffered entries when no store is wired.
// Used by the harness and inspection tooling.
func (k *Kernel) DrainDiagnostics() []fault.LogEntry {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.recorder.Drain()
}

// RecorderStats exposes the recorder counters for telemetry.
func (k *Kernel) RecorderStats() RecorderStats {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.recorder.Stats()
}

// OnCritical registers a bounded callback for critical diagnostics.
// Must be called before Run.
func (k *Kernel) OnCritical(name string, fn func(fault.LogEntry)) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.recorder.OnCritical(name, fn)
}

// Close stops accepting events. Idempotent.
func (k *Kernel) Close() {
	if k.closed.CompareAndSwap(false, true) {
		k.queue.Close()
	}
}

// handleEvent runs classification and the resulting state-machine and
// recovery actions for one event. Caller holds k.mu.
func (k *Kernel) handleEvent(ev fault.Event, tick uint64) {
	rec := k.classifier.Classify(ev)
	k.sm.NoteEvent(tick)
	k.metrics.FaultClassified(rec.Kind, rec.Severity)

	k.logger.Debug("fault classified",
		"kind", rec.Kind, "channel", rec.Channel,
		"severity", rec.Severity, "occurrences", rec.Occurrences,
		"tick", tick)

	k.recordFault(rec, tick)

	switch rec.Severity {
	case fault.SeverityTransient, fault.SeverityPersistent:
		k.recovery.Begin(rec.Kind, rec.Channel)
	case fault.SeverityCritical:
		// The classification is final; a late success must not
		// disturb it.
		k.recovery.Cancel(rec.Kind, rec.Channel)
	}

	k.applyRecord(rec, tick)
}

// applyRecord raises the state to the record's severity floor and
// commits the transition. Caller holds k.mu.
func (k *Kernel) applyRecord(rec fault.Record, tick uint64) {
	tr, ok := k.sm.Apply(rec, tick)
	if !ok {
		return
	}
	k.commitTransition(tr, tick)
}

// commitTransition finishes a state change: episode bookkeeping,
// diagnostic entry, actuation, deadline check. A missed deadline is
// itself a critical fault and escalates to EmergencyShutdown; the
// fallback transition's deadline equals its own tick, so the recursion
// terminates after one step.
func (k *Kernel) commitTransition(tr *fault.Transition, tick uint64) {
	if k.episode == "" && tr.From == fault.StateNormal {
		k.episode = k.tokens.Generate()
		if k.store != nil {
			if err := k.store.OpenEpisode(context.Background(), k.episode, tick); err != nil {
				k.logger.Error("open episode failed", "episode", k.episode, "error", err)
			}
		}
	}
	tr.Episode = k.episode

	k.metrics.TransitionTaken(tr.From, tr.To)
	k.logger.Info("state transition",
		"from", tr.From, "to", tr.To, "tick", tr.Tick,
		"deadline", tr.Deadline, "episode", tr.Episode)

	k.pendingTransitions = append(k.pendingTransitions, *tr)
	k.recorder.Record(fault.LogEntry{
		Tick:       tick,
		Class:      fault.EntryTransition,
		Transition: tr,
		Critical:   tr.To.Terminal(),
		Episode:    k.episode,
	})

	cmd, err := k.actuator.Deliver(tr.To, tick)
	if err != nil {
		k.logger.Error("command delivery failed",
			"state", tr.To, "tick", tick, "error", err)
		// Re-classified next tick; the idempotent command is re-issued
		// with the state unchanged.
		k.queue.Enqueue(k.adapter.DeliveryFailure(tick, err))
	}
	k.logger.Debug("actuation applied",
		"state", tr.To, "torque_ceiling", cmd.TorqueCeiling,
		"contactor", cmd.ContactorEnable)

	if tr.To == fault.StateNormal {
		k.closeEpisode(tick, fault.StateNormal)
	}

	if tick > tr.Deadline && tr.To != fault.StateEmergencyShutdown {
		k.logger.Error("reaction deadline missed",
			"deadline", tr.Deadline, "tick", tick, "to", tr.To)
		if fb, ok := k.sm.EscalateDeadlineMissed(tick); ok {
			k.commitTransition(fb, tick)
		}
	}
}

func (k *Kernel) closeEpisode(tick uint64, final fault.State) {
	if k.episode == "" {
		return
	}
	if k.store != nil {
		if err := k.store.CloseEpisode(context.Background(), k.episode, tick, final); err != nil {
			k.logger.Error("close episode failed", "episode", k.episode, "error", err)
		}
	}
	k.episode = ""
}

func (k *Kernel) recordFault(rec fault.Record, tick uint64) {
	r := rec
	k.recorder.Record(fault.LogEntry{
		Tick:     tick,
		Class:    fault.EntryFault,
		Record:   &r,
		Critical: rec.Severity == fault.SeverityCritical,
		Episode:  k.episode,
	})
}

// flush hands buffered diagnostics to the store. Store failures degrade
// to log lines; the entries stay buffered for the next flush because
// writes are idempotent.
func (k *Kernel) flush(ctx context.Context, tick uint64) {
	if k.store == nil {
		return
	}

	if len(k.pendingTransitions) > 0 {
		if err := k.store.AppendTransitions(ctx, k.pendingTransitions); err != nil {
			k.logger.Error("persist transitions failed", "tick", tick, "error", err)
		} else {
			k.pendingTransitions = k.pendingTransitions[:0]
		}
	}

	entries := k.recorder.Peek()
	if len(entries) == 0 {
		return
	}
	if err := k.store.AppendEntries(ctx, entries); err != nil {
		// Entries stay buffered; entry IDs are content-addressed, so the
		// next flush redelivers the batch without duplicates.
		k.logger.Error("persist entries failed",
			"tick", tick, "entries", len(entries), "error", err)
		return
	}
	k.recorder.Drain()
}

func (k *Kernel) publishStatus() {
	s := fault.StatusSnapshot{
		State:              k.sm.State(),
		Tick:               k.clock.Now(),
		LastTransitionTick: k.sm.LastTransitionTick(),
		Episode:            k.episode,
	}
	k.status.Store(&s)
}

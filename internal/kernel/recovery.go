package kernel

import (
	"errors"
	"fmt"

	"github.com/seastrand/vigil/internal/fault"
)

// DefaultMaxAttempts is the recovery budget used when the profile does
// not set one.
const DefaultMaxAttempts = 3

// Recoverer is the collaborator-side recovery action: re-arm the
// comparator, re-synchronize a channel, re-request a sensor baseline.
// TryRecover reports whether the collaborator confirmed recovery.
// Implementations must return promptly; each attempt consumes exactly
// one tick of budget in the kernel pipeline.
type Recoverer interface {
	TryRecover(kind fault.Kind, channel int) bool
}

// series tracks one in-flight recovery for a (kind, channel).
type series struct {
	key      recordKey
	attempts int
}

// RecoveryManager drives bounded recovery for non-critical faults.
//
// One series exists per (kind, channel); Step advances every pending
// series by at most one attempt per tick, in registration order, so the
// schedule is deterministic. Exceeding the budget resolves the series
// as Exhausted, which the kernel feeds back to the classifier as a
// Critical escalation. The manager never touches a Critical record's
// series except to cancel it: recovery never downgrades Critical.
//
// Thread-safety: none. Owned by the kernel loop.
type RecoveryManager struct {
	recoverer Recoverer
	max       int
	pending   map[recordKey]*series
	order     []recordKey
}

// NewRecoveryManager creates a manager with the given attempt budget.
// max <= 0 falls back to DefaultMaxAttempts.
func NewRecoveryManager(recoverer Recoverer, max int) *RecoveryManager {
	if max <= 0 {
		max = DefaultMaxAttempts
	}
	return &RecoveryManager{
		recoverer: recoverer,
		max:       max,
		pending:   make(map[recordKey]*series),
	}
}

// Begin registers a recovery series for a fault if none is in flight.
// Returns true if a new series was registered.
func (m *RecoveryManager) Begin(kind fault.Kind, channel int) bool {
	key := recordKey{Kind: kind, Channel: channel}
	if _, ok := m.pending[key]; ok {
		return false
	}
	m.pending[key] = &series{key: key}
	m.order = append(m.order, key)
	return true
}

// Cancel drops a pending series. Called when the fault escalates to
// Critical: the classification is final and must not be disturbed by a
// late success.
func (m *RecoveryManager) Cancel(kind fault.Kind, channel int) {
	key := recordKey{Kind: kind, Channel: channel}
	if _, ok := m.pending[key]; !ok {
		return
	}
	delete(m.pending, key)
	m.removeFromOrder(key)
}

// Step advances every pending series by one attempt and returns the
// attempts taken this tick, in registration order. Resolved series
// (Succeeded or Exhausted) are removed; Pending ones stay for the next
// tick.
func (m *RecoveryManager) Step() []fault.Attempt {
	if len(m.order) == 0 {
		return nil
	}

	attempts := make([]fault.Attempt, 0, len(m.order))
	var resolved []recordKey

	for _, key := range m.order {
		s, ok := m.pending[key]
		if !ok {
			continue
		}

		s.attempts++
		att := fault.Attempt{
			Kind:    key.Kind,
			Channel: key.Channel,
			Number:  s.attempts,
			Outcome: fault.OutcomePending,
		}

		if m.recoverer != nil && m.recoverer.TryRecover(key.Kind, key.Channel) {
			att.Outcome = fault.OutcomeSucceeded
			resolved = append(resolved, key)
		} else if s.attempts >= m.max {
			att.Outcome = fault.OutcomeExhausted
			resolved = append(resolved, key)
		}

		attempts = append(attempts, att)
	}

	for _, key := range resolved {
		delete(m.pending, key)
		m.removeFromOrder(key)
	}

	return attempts
}

// Pending returns the number of in-flight series.
func (m *RecoveryManager) Pending() int {
	return len(m.pending)
}

// MaxAttempts returns the configured budget.
// Used for logging and diagnostics.
func (m *RecoveryManager) MaxAttempts() int {
	return m.max
}

func (m *RecoveryManager) removeFromOrder(key recordKey) {
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			return
		}
	}
}

// ExhaustedError is returned when a recovery series spends its budget.
//
// The kernel does not propagate this as a failure: it converts the
// exhaustion into a Critical classification. The typed error exists for
// collaborator implementations and tests that surface the condition.
type ExhaustedError struct {
	Kind     fault.Kind // The fault kind whose series exhausted
	Channel  int        // The source channel
	Attempts int        // Attempts taken
	Limit    int        // Configured budget
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("recovery for %s on channel %d exhausted: %d attempts >= %d limit",
		e.Kind, e.Channel, e.Attempts, e.Limit)
}

// IsExhaustedError returns true if the error is an ExhaustedError.
// Uses errors.As to handle wrapped errors.
func IsExhaustedError(err error) bool {
	var ee *ExhaustedError
	return errors.As(err, &ee)
}

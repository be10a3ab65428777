package kernel

import (
	"errors"
	"fmt"

	"github.com/seastrand/vigil/internal/fault"
)

// KernelError represents an operational error inside the kernel.
//
// Operational errors are distinct from the fault taxonomy: faults are
// handled by classification and state transition and never surface as
// Go errors. KernelError covers the machinery around them:
//   - Illegal transition: a caller asked for an edge outside the graph
//   - Queue closed: an event arrived after shutdown
//   - Attempts exhausted: a recovery series spent its budget
//   - Invalid profile: the kernel was constructed with unusable config
//
// KernelError includes structured fields for diagnostics.
type KernelError struct {
	// Code identifies the error category.
	Code KernelErrorCode

	// Message is a human-readable description.
	Message string

	// Kind identifies the fault kind involved, when there is one.
	Kind fault.Kind

	// State identifies the safety state involved, when relevant.
	State fault.State

	// Tick is the logical tick at which the error was detected.
	Tick uint64

	// Details contains additional context.
	Details map[string]string
}

// KernelErrorCode categorizes kernel errors.
type KernelErrorCode string

const (
	// ErrCodeIllegalTransition indicates a requested edge outside the
	// state graph.
	ErrCodeIllegalTransition KernelErrorCode = "ILLEGAL_TRANSITION"

	// ErrCodeQueueClosed indicates an enqueue after shutdown.
	ErrCodeQueueClosed KernelErrorCode = "QUEUE_CLOSED"

	// ErrCodeAttemptsExhausted indicates a recovery series spent its budget.
	ErrCodeAttemptsExhausted KernelErrorCode = "ATTEMPTS_EXHAUSTED"

	// ErrCodeInvalidProfile indicates unusable kernel configuration.
	ErrCodeInvalidProfile KernelErrorCode = "INVALID_PROFILE"
)

// Error implements the error interface.
func (e *KernelError) Error() string {
	if e.Kind != "" && e.State != "" {
		return fmt.Sprintf("%s: %s (kind=%s, state=%s, tick=%d)", e.Code, e.Message, e.Kind, e.State, e.Tick)
	}
	if e.Kind != "" {
		return fmt.Sprintf("%s: %s (kind=%s, tick=%d)", e.Code, e.Message, e.Kind, e.Tick)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsIllegalTransition returns true if the error is an illegal transition error.
// Uses errors.As to handle wrapped errors.
func IsIllegalTransition(err error) bool {
	var ke *KernelError
	if errors.As(err, &ke) {
		return ke.Code == ErrCodeIllegalTransition
	}
	return false
}

// IsQueueClosed returns true if the error is a queue closed error.
// Uses errors.As to handle wrapped errors.
func IsQueueClosed(err error) bool {
	var ke *KernelError
	if errors.As(err, &ke) {
		return ke.Code == ErrCodeQueueClosed
	}
	return false
}

// IsExhausted returns true if the error reports a spent recovery budget.
// Matches both KernelError with ErrCodeAttemptsExhausted and the typed
// ExhaustedError from the recovery manager.
// Uses errors.As to handle wrapped errors.
func IsExhausted(err error) bool {
	var ke *KernelError
	if errors.As(err, &ke) {
		return ke.Code == ErrCodeAttemptsExhausted
	}
	var ee *ExhaustedError
	return errors.As(err, &ee)
}

// IsInvalidProfile returns true if the error reports unusable configuration.
// Uses errors.As to handle wrapped errors.
func IsInvalidProfile(err error) bool {
	var ke *KernelError
	if errors.As(err, &ke) {
		return ke.Code == ErrCodeInvalidProfile
	}
	return false
}

// NewIllegalTransitionError creates a KernelError for a forbidden edge.
func NewIllegalTransitionError(from, to fault.State, tick uint64) *KernelError {
	return &KernelError{
		Code:    ErrCodeIllegalTransition,
		Message: fmt.Sprintf("transition %s -> %s is outside the state graph", from, to),
		State:   from,
		Tick:    tick,
		Details: map[string]string{
			"to": string(to),
		},
	}
}

// NewQueueClosedError creates a KernelError for an enqueue after shutdown.
func NewQueueClosedError(kind fault.Kind, tick uint64) *KernelError {
	return &KernelError{
		Code:    ErrCodeQueueClosed,
		Message: "event queue is closed",
		Kind:    kind,
		Tick:    tick,
	}
}

// NewInvalidProfileError creates a KernelError for unusable configuration.
func NewInvalidProfileError(msg string) *KernelError {
	return &KernelError{
		Code:    ErrCodeInvalidProfile,
		Message: msg,
	}
}

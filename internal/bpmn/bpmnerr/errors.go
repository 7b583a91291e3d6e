// Package bpmnerr defines the engine's error taxonomy. Errors follow a
// cause-chain pattern (message + wrapped cause) so callers can use
// errors.Is/errors.As across retries and boundary-event handling while still
// carrying enough structure to report {message, type, retryable} to
// observers.
package bpmnerr

import (
	"errors"
	"fmt"
)

// Kind classifies an engine error into one of the taxonomy entries.
type Kind string

const (
	// KindMalformedDefinition is raised by the loader on dangling references,
	// unknown element kinds, or structural invariant violations.
	KindMalformedDefinition Kind = "MalformedDefinition"
	// KindNoMatchingPath is raised by the gateway evaluator when no outgoing
	// flow (and no default) matches.
	KindNoMatchingPath Kind = "NoMatchingPath"
	// KindConditionEvaluation is raised by the expression evaluator; the
	// gateway evaluator always re-raises this as NoMatchingPath.
	KindConditionEvaluation Kind = "ConditionEvaluationError"
	// KindReceiveTimeout is raised when a receive task or user task waiter
	// exceeds its deadline.
	KindReceiveTimeout Kind = "ReceiveTimeout"
	// KindLowConfidence is raised by the agentic task executor after
	// maxRetries without an accepted confidence score.
	KindLowConfidence Kind = "LowConfidence"
	// KindDuplicateWaiter is raised by the correlation bus when a second
	// waiter registers for the same (messageRef, correlationKey) pair.
	KindDuplicateWaiter Kind = "DuplicateWaiter"
	// KindExecutorException wraps any error surfaced by an executor that does
	// not already carry a more specific kind.
	KindExecutorException Kind = "ExecutorException"
	// KindCancelled marks cooperative cancellation; it is not a failure.
	KindCancelled Kind = "Cancelled"
	// KindDeadlock is raised by the scheduler's deadlock monitor.
	KindDeadlock Kind = "Deadlock"
)

// Error is the engine's structured error type. It implements error, Unwrap,
// and carries the retryable flag surfaced on task.error events.
type Error struct {
	Kind      Kind
	Message   string
	Retryable bool
	Cause     error
}

// New constructs an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error of the given kind that wraps cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap supports errors.Is/errors.As across the cause chain.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is reports whether target is an *Error with the same Kind, enabling
// errors.Is(err, bpmnerr.New(bpmnerr.KindNoMatchingPath, "")) style checks
// when callers only care about the kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind == "" {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error, otherwise
// returns KindExecutorException as the catch-all per the §7 error handling
// policy table.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindExecutorException
}

// Retryable reports whether err is marked retryable.
func Retryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// IsCancelled reports whether err represents cooperative cancellation.
func IsCancelled(err error) bool {
	return KindOf(err) == KindCancelled
}

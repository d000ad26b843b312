package banyantask

import (
	"errors"
	"fmt"
)

// Store errors. Stores wrap the underlying driver error so both the sentinel
// and the cause are visible through errors.Is / errors.As.
var (
	// ErrConnectionFailure is returned when the backing database cannot be reached or a query fails.
	ErrConnectionFailure = errors.New("banyantask: store connection failure")
	// ErrEncodeFailed is returned when a task value cannot be serialized.
	ErrEncodeFailed = errors.New("banyantask: encode failed")
	// ErrDeserializationFailed is returned when a stored record or payload cannot be decoded.
	ErrDeserializationFailed = errors.New("banyantask: deserialization failed")
	// ErrInvalidStateTransition is returned for a transition the state machine does not allow.
	ErrInvalidStateTransition = errors.New("banyantask: invalid state transition")
	// ErrNotRetryable is returned by Retry when the source record's state does not permit a retry.
	ErrNotRetryable = errors.New("banyantask: task is not retryable")
	// ErrUnknownTask is returned when an operation names an id that does not exist.
	ErrUnknownTask = errors.New("banyantask: unknown task")
	// ErrUnknownState is returned when parsing an invalid state.
	ErrUnknownState = errors.New("banyantask: unknown state")
)

// Pool errors.
var (
	// ErrNoHandler indicates there is no registered type for a record's task name;
	// the record is moved to dead without retry.
	ErrNoHandler = errors.New("banyantask: no handler registered for task name")
	// ErrShutdownTimeout is returned by Pool.Stop when some worker did not quiesce within the grace period.
	ErrShutdownTimeout = errors.New("banyantask: shutdown grace period elapsed")
	// ErrNoQueues is returned by Pool.Start when no queue has been configured.
	ErrNoQueues = errors.New("banyantask: no queues configured")
)

// Wrap joins a store sentinel with its cause.
func Wrap(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, cause)
}

// InvalidTransition builds an ErrInvalidStateTransition describing the rejected edge.
func InvalidTransition(from, to State) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, from, to)
}

// ExecErrorKind classifies why an execution did not complete.
type ExecErrorKind int

const (
	// ExecDeserialization: the payload could not be decoded or no type is registered for it.
	ExecDeserialization ExecErrorKind = iota + 1
	// ExecFailed: Run returned an error.
	ExecFailed
	// ExecScheduling: the recurrence hook failed to compute the next occurrence.
	ExecScheduling
	// ExecPanicked: Run faulted; see Fault.
	ExecPanicked
	// ExecTimedOut: Run exceeded its execution timeout.
	ExecTimedOut
)

func (k ExecErrorKind) String() string {
	switch k {
	case ExecDeserialization:
		return "deserialization"
	case ExecFailed:
		return "failed"
	case ExecScheduling:
		return "scheduling"
	case ExecPanicked:
		return "panicked"
	case ExecTimedOut:
		return "timed_out"
	}
	return "unknown"
}

// ExecError is the outcome of an execution that did not succeed. It is what a
// worker hands to Store.Errored.
type ExecError struct {
	Kind ExecErrorKind
	Err  error
}

func (e *ExecError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *ExecError) Unwrap() error { return e.Err }

// FailedState is the state the source record moves to when this error is reported.
func (e *ExecError) FailedState() State {
	switch e.Kind {
	case ExecDeserialization, ExecPanicked:
		return StatePanicked
	case ExecTimedOut:
		return StateTimedOut
	}
	return StateError
}

// Retryable reports whether the failure may spawn another attempt. Faults and
// decode failures are programming defects and never are; neither are errors
// a task marked Permanent.
func (e *ExecError) Retryable() bool {
	switch e.Kind {
	case ExecDeserialization, ExecPanicked:
		return false
	}
	return !IsPermanent(e.Err)
}

// PermanentError marks a task error that should NOT be retried.
type PermanentError struct{ Err error }

func (e PermanentError) Error() string { return e.Err.Error() }
func (e PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the record goes dead without spending its remaining attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return PermanentError{Err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var pe PermanentError
	return errors.As(err, &pe)
}

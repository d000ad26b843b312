package banyantask

// State is the lifecycle value of a task record.
// Use the exported constants (StateNew, StateInProgress, etc.) instead of
// raw strings to avoid typos; the raw value is what the stores persist.
type State string

const (
	// StateNew is the initial state of an enqueued record.
	StateNew State = "new"
	// StateInProgress is set exclusively by a store claim (Store.Next).
	StateInProgress State = "in_progress"
	// StatePanicked marks an execution that faulted or could not be decoded.
	StatePanicked State = "panicked"
	// StateRetry is the initial state of every follow-up attempt record.
	StateRetry State = "retry"
	// StateCancelled is terminal; set by an explicit cancellation.
	StateCancelled State = "cancelled"
	// StateError marks an execution that returned an application error.
	StateError State = "error"
	// StateComplete is terminal; set after a successful execution.
	StateComplete State = "complete"
	// StateTimedOut marks an execution that exceeded its execution timeout.
	StateTimedOut State = "timed_out"
	// StateDead is terminal; the task will never run again.
	StateDead State = "dead"
)

// AllStates lists every valid state in a stable order.
var AllStates = []State{
	StateNew, StateInProgress, StatePanicked, StateRetry, StateCancelled,
	StateError, StateComplete, StateTimedOut, StateDead,
}

// String returns the raw string value of the state.
func (s State) String() string { return string(s) }

// IsTerminal reports whether no further transition is possible from s.
func (s State) IsTerminal() bool {
	return s == StateComplete || s == StateCancelled || s == StateDead
}

// IsActive reports whether a record in s holds its unique key: it is
// waiting to be claimed or currently executing.
func (s State) IsActive() bool {
	return s == StateNew || s == StateRetry || s == StateInProgress
}

// IsReady reports whether a record in s may be claimed.
func (s State) IsReady() bool {
	return s == StateNew || s == StateRetry
}

// Finishes reports whether entering s stamps finished_at.
func (s State) Finishes() bool {
	return s.IsTerminal() || s == StateTimedOut
}

// CanTransition reports whether the state machine has an edge from -> to.
func CanTransition(from, to State) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StateCancelled {
		return true
	}
	switch from {
	case StateNew, StateRetry:
		return to == StateInProgress
	case StateInProgress:
		return to == StateComplete || to == StateError || to == StatePanicked || to == StateTimedOut
	case StatePanicked, StateError, StateTimedOut:
		return to == StateDead
	}
	return false
}

// ParseState converts a string into a State, returning an error for unknown values.
func ParseState(s string) (State, error) {
	for _, st := range AllStates {
		if string(st) == s {
			return st, nil
		}
	}
	return "", ErrUnknownState
}

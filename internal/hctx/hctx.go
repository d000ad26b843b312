package hctx

import "context"

// State holds per-execution metadata about the claimed record so code deep
// inside a task can tag logs and spans without threading it through.
type State struct {
	TaskID    string
	TaskName  string
	QueueName string
	Attempt   int
	WorkerID  string
}

type ctxKey struct{}

// WithState returns a child context carrying the given execution state.
func WithState(parent context.Context, s *State) context.Context {
	return context.WithValue(parent, ctxKey{}, s)
}

// From extracts the execution state from context if present.
func From(ctx context.Context) (*State, bool) {
	v := ctx.Value(ctxKey{})
	if v == nil {
		return nil, false
	}
	st, ok := v.(*State)
	return st, ok
}

package banyantask

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the durable queue. It is the only component allowed to mutate
// record state and every method validates the requested edge against
// CanTransition.
type Store interface {
	// Enqueue inserts a New record. When t carries a unique key already held
	// by an active record of the same TaskName it returns ("", false, nil)
	// without side effects.
	Enqueue(ctx context.Context, t NewTask) (id string, created bool, err error)
	// Next atomically claims the oldest due New/Retry record of queue whose
	// TaskName is in taskNames and moves it to InProgress. It returns
	// (nil, nil) when nothing is ready.
	Next(ctx context.Context, queue string, taskNames []string) (*Record, error)
	// Completed moves an InProgress record to Complete.
	Completed(ctx context.Context, id string) error
	// Reschedule completes id and inserts the recurring follow-up in the same
	// atomic unit. created is false when the follow-up lost a unique-key race.
	Reschedule(ctx context.Context, id string, next NewTask) (nextID string, created bool, err error)
	// Errored records a failed execution and applies the retry policy. It
	// returns the id of the spawned retry record, or "" when the record went
	// dead.
	Errored(ctx context.Context, id string, execErr *ExecError) (retryID string, err error)
	// Retry inserts the successor of an Error or TimedOut record. It returns
	// "" when attempts are exhausted and ErrNotRetryable for any other state.
	Retry(ctx context.Context, id string) (string, error)
	// Cancel moves a non-terminal record to Cancelled.
	Cancel(ctx context.Context, id string) error
	// UpdateState applies a single validated transition.
	UpdateState(ctx context.Context, id string, to State) error
	// Get loads one record.
	Get(ctx context.Context, id string) (*Record, error)
	// List returns records matching f, newest first.
	List(ctx context.Context, f Filter) ([]*Record, error)
	// HasPending reports whether any record of taskName is active.
	HasPending(ctx context.Context, taskName string) (bool, error)
	// Metrics aggregates record counts per state.
	Metrics(ctx context.Context) (Metrics, error)
	Close() error
}

// StoreSettings is the resolved configuration shared by the Store
// implementations.
type StoreSettings struct {
	Backoff Backoff
	Now     func() time.Time
	NewID   func() string
	Logger  Logger
}

// StoreOption configures a Store implementation.
type StoreOption func(*StoreSettings)

// WithBackoff sets the delay policy for retry records.
func WithBackoff(b Backoff) StoreOption {
	return func(s *StoreSettings) { s.Backoff = b }
}

// WithClock replaces time.Now. Tests use it to control due times.
func WithClock(now func() time.Time) StoreOption {
	return func(s *StoreSettings) {
		if now != nil {
			s.Now = now
		}
	}
}

// WithIDGenerator replaces the uuid v4 generator.
func WithIDGenerator(fn func() string) StoreOption {
	return func(s *StoreSettings) {
		if fn != nil {
			s.NewID = fn
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(l Logger) StoreOption {
	return func(s *StoreSettings) {
		if l != nil {
			s.Logger = l
		}
	}
}

// ResolveStoreOptions applies opts over the defaults.
func ResolveStoreOptions(opts ...StoreOption) StoreSettings {
	s := StoreSettings{
		Backoff: DefaultBackoff(),
		Now:     time.Now,
		NewID:   uuid.NewString,
		Logger:  noopLogger{},
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// NowMs returns the current time truncated to the millisecond precision the
// stores persist.
func (s StoreSettings) NowMs() time.Time {
	return s.Now().UTC().Truncate(time.Millisecond)
}

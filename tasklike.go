package banyantask

import (
	"context"
	"time"
)

const (
	// DefaultQueueName is used when a task does not implement QueueNamer.
	DefaultQueueName = "default"
	// DefaultMaxAttempts is used when a task does not implement AttemptLimiter.
	DefaultMaxAttempts = 3
)

// Task is a background job value. TaskName must be stable: it is persisted
// and used both for dispatch and for unique-key scoping.
type Task interface {
	TaskName() string
}

// Runner is a Task that can execute with a dependency bundle C built by the
// pool's ContextFactory.
type Runner[C any] interface {
	Task
	Run(ctx context.Context, current CurrentTask, deps C) error
}

// QueueNamer overrides DefaultQueueName.
type QueueNamer interface {
	QueueName() string
}

// AttemptLimiter overrides DefaultMaxAttempts.
type AttemptLimiter interface {
	MaxAttempts() int
}

// UniqueKeyer deduplicates active records of the same TaskName. An empty key
// means no deduplication.
type UniqueKeyer interface {
	UniqueKey() string
}

// Scheduler makes a task recurring. After a successful run the worker
// enqueues a fresh occurrence at the returned time; a zero time means no
// follow-up.
type Scheduler interface {
	NextSchedule(now time.Time) (time.Time, error)
}

// TimeoutOverrider replaces the pool's execution timeout for one task type.
type TimeoutOverrider interface {
	ExecutionTimeout() time.Duration
}

// Describe builds the insert description for t, applying opts on top of the
// values t declares.
func Describe(t Task, enc Encoder, opts ...Option) (NewTask, error) {
	cfg := &options{}
	for _, opt := range opts {
		opt(cfg)
	}

	payload, err := enc.Encode(t)
	if err != nil {
		return NewTask{}, Wrap(ErrEncodeFailed, err)
	}

	nt := NewTask{
		TaskName:        t.TaskName(),
		QueueName:       DefaultQueueName,
		MaximumAttempts: DefaultMaxAttempts,
		Payload:         payload,
	}
	if q, ok := t.(QueueNamer); ok && q.QueueName() != "" {
		nt.QueueName = q.QueueName()
	}
	if l, ok := t.(AttemptLimiter); ok && l.MaxAttempts() > 0 {
		nt.MaximumAttempts = l.MaxAttempts()
	}
	if u, ok := t.(UniqueKeyer); ok {
		if k := u.UniqueKey(); k != "" {
			nt.UniqueKey = &k
		}
	}

	if cfg.queue != "" {
		nt.QueueName = cfg.queue
	}
	if cfg.maxAttempts > 0 {
		nt.MaximumAttempts = cfg.maxAttempts
	}
	if cfg.uniqueKeySet {
		if cfg.uniqueKey == "" {
			nt.UniqueKey = nil
		} else {
			k := cfg.uniqueKey
			nt.UniqueKey = &k
		}
	}
	switch {
	case !cfg.runAt.IsZero():
		nt.ScheduledToRunAt = cfg.runAt
	case cfg.delay > 0:
		nt.ScheduledToRunAt = time.Now().Add(cfg.delay)
	}
	return nt, nil
}

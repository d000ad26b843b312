package banyantask

import "time"

type options struct {
	delay        time.Duration
	runAt        time.Time
	queue        string
	maxAttempts  int
	uniqueKey    string
	uniqueKeySet bool
}

// Option adjusts how a task is enqueued.
type Option func(*options)

// Delay schedules the task to become claimable after the specified duration.
func Delay(d time.Duration) Option {
	return func(o *options) {
		o.delay = d
	}
}

// RunAt schedules the task to become claimable at an absolute time.
// It takes precedence over Delay.
func RunAt(t time.Time) Option {
	return func(o *options) {
		if !t.IsZero() {
			o.runAt = t
		}
	}
}

// Queue overrides the queue the task declares.
func Queue(name string) Option {
	return func(o *options) {
		o.queue = name
	}
}

// MaxAttempts overrides the attempt ceiling the task declares.
func MaxAttempts(n int) Option {
	return func(o *options) {
		o.maxAttempts = n
	}
}

// UniqueKey overrides the task's unique key. An empty key disables
// deduplication for this enqueue.
func UniqueKey(k string) Option {
	return func(o *options) {
		o.uniqueKey = k
		o.uniqueKeySet = true
	}
}

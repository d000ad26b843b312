package banyantask

import "time"

// Record is one persisted attempt of a task. Every retry is a new Record
// linked to the first attempt through OriginalTaskID.
type Record struct {
	// ID is the unique identifier of this attempt.
	ID string `json:"id"`
	// OriginalTaskID points at the first record of the retry chain; nil on the first attempt.
	OriginalTaskID *string `json:"original_task_id,omitempty"`
	// TaskName is the type tag used to route the payload to a registered type.
	TaskName string `json:"task_name"`
	// QueueName is the lane this record competes in.
	QueueName string `json:"queue_name"`
	// UniqueKey deduplicates active records per TaskName; nil when unset.
	UniqueKey *string `json:"unique_key,omitempty"`
	// State is the current state machine value.
	State State `json:"state"`
	// CurrentAttempt is zero-based.
	CurrentAttempt int `json:"current_attempt"`
	// MaximumAttempts is fixed at enqueue time.
	MaximumAttempts int `json:"maximum_attempts"`
	// Payload is the encoded task value.
	Payload []byte `json:"payload"`
	// Error is the last failure description, cleared on success.
	Error *string `json:"error,omitempty"`
	// ScheduledAt is when this attempt record was created.
	ScheduledAt time.Time `json:"scheduled_at"`
	// ScheduledToRunAt is the earliest instant this record may be claimed.
	ScheduledToRunAt time.Time `json:"scheduled_to_run_at"`
	// StartedAt is stamped by the claim.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// FinishedAt is stamped on terminal states and on time-out.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// ChainHead returns the id of the first record in this record's retry chain.
func (r *Record) ChainHead() string {
	if r.OriginalTaskID != nil {
		return *r.OriginalTaskID
	}
	return r.ID
}

// NextAttempt builds the successor record for a retry, or returns false when
// the attempts are exhausted. The caller assigns ID and persists it.
func (r *Record) NextAttempt(now, runAt time.Time) (*Record, bool) {
	if r.CurrentAttempt+1 >= r.MaximumAttempts {
		return nil, false
	}
	head := r.ChainHead()
	return &Record{
		OriginalTaskID:   &head,
		TaskName:         r.TaskName,
		QueueName:        r.QueueName,
		UniqueKey:        r.UniqueKey,
		State:            StateRetry,
		CurrentAttempt:   r.CurrentAttempt + 1,
		MaximumAttempts:  r.MaximumAttempts,
		Payload:          r.Payload,
		ScheduledAt:      now,
		ScheduledToRunAt: runAt,
	}, true
}

// NewTask describes a record to insert. Build one with Describe or let
// Client.Enqueue do it.
type NewTask struct {
	TaskName         string
	QueueName        string
	UniqueKey        *string
	MaximumAttempts  int
	Payload          []byte
	ScheduledToRunAt time.Time
}

// Record materializes the insert description as a New record. A zero run
// time means now and fewer than one attempt means one.
func (n NewTask) Record(id string, now time.Time) *Record {
	runAt := n.ScheduledToRunAt
	if runAt.IsZero() {
		runAt = now
	}
	if n.MaximumAttempts < 1 {
		n.MaximumAttempts = 1
	}
	return &Record{
		ID:               id,
		TaskName:         n.TaskName,
		QueueName:        n.QueueName,
		UniqueKey:        n.UniqueKey,
		State:            StateNew,
		MaximumAttempts:  n.MaximumAttempts,
		Payload:          n.Payload,
		ScheduledAt:      now,
		ScheduledToRunAt: runAt,
	}
}

// CurrentTask is the read-only view of the claimed record handed to Run.
type CurrentTask struct {
	rec Record
}

// NewCurrentTask snapshots a claimed record.
func NewCurrentTask(r *Record) CurrentTask { return CurrentTask{rec: *r} }

func (c CurrentTask) ID() string             { return c.rec.ID }
func (c CurrentTask) TaskName() string       { return c.rec.TaskName }
func (c CurrentTask) QueueName() string      { return c.rec.QueueName }
func (c CurrentTask) Attempt() int           { return c.rec.CurrentAttempt }
func (c CurrentTask) MaxAttempts() int       { return c.rec.MaximumAttempts }
func (c CurrentTask) ScheduledAt() time.Time { return c.rec.ScheduledAt }

// ScheduledToRunAt is the earliest instant the record was eligible to run.
func (c CurrentTask) ScheduledToRunAt() time.Time { return c.rec.ScheduledToRunAt }

// StartedAt is the claim time; zero if the record was never claimed.
func (c CurrentTask) StartedAt() time.Time {
	if c.rec.StartedAt == nil {
		return time.Time{}
	}
	return *c.rec.StartedAt
}

// OriginalTaskID returns the chain head id, which equals ID on the first attempt.
func (c CurrentTask) OriginalTaskID() string { return c.rec.ChainHead() }

// IsFinalAttempt reports whether a failure of this attempt will not be retried.
func (c CurrentTask) IsFinalAttempt() bool {
	return c.rec.CurrentAttempt+1 >= c.rec.MaximumAttempts
}

// Filter narrows Store.List. Zero fields match everything.
type Filter struct {
	State     State
	QueueName string
	TaskName  string
	// ChainHead selects every attempt of one retry chain.
	ChainHead string
	// Limit caps the result; values <= 0 or > 1000 fall back to 100.
	Limit int
}

// EffectiveLimit applies the List defaults.
func (f Filter) EffectiveLimit() int {
	if f.Limit <= 0 || f.Limit > 1000 {
		return 100
	}
	return f.Limit
}

// Metrics holds aggregate record counts per state for health reporting.
type Metrics struct {
	New             int64 `json:"new"`
	InProgress      int64 `json:"in_progress"`
	Panicked        int64 `json:"panicked"`
	Retried         int64 `json:"retried"`
	Cancelled       int64 `json:"cancelled"`
	Errored         int64 `json:"errored"`
	Completed       int64 `json:"completed"`
	TimedOut        int64 `json:"timed_out"`
	Dead            int64 `json:"dead"`
	Scheduled       int64 `json:"scheduled"`
	ScheduledFuture int64 `json:"scheduled_future"`
}

// Add accumulates n records in state s.
func (m *Metrics) Add(s State, n int64) {
	switch s {
	case StateNew:
		m.New += n
	case StateInProgress:
		m.InProgress += n
	case StatePanicked:
		m.Panicked += n
	case StateRetry:
		m.Retried += n
	case StateCancelled:
		m.Cancelled += n
	case StateError:
		m.Errored += n
	case StateComplete:
		m.Completed += n
	case StateTimedOut:
		m.TimedOut += n
	case StateDead:
		m.Dead += n
	}
}

// ByLabel flattens the counts for exposition.
func (m Metrics) ByLabel() map[string]int64 {
	return map[string]int64{
		"new":              m.New,
		"in_progress":      m.InProgress,
		"panicked":         m.Panicked,
		"retried":          m.Retried,
		"cancelled":        m.Cancelled,
		"errored":          m.Errored,
		"completed":        m.Completed,
		"timed_out":        m.TimedOut,
		"dead":             m.Dead,
		"scheduled":        m.Scheduled,
		"scheduled_future": m.ScheduledFuture,
	}
}

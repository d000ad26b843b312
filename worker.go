package banyantask

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/banyancomputer/banyan-task/internal/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const minIdleWait = 50 * time.Millisecond

// worker is one polling loop bound to a queue.
type worker[C any] struct {
	id      string
	queue   string
	names   []string
	store   Store
	reg     *Registry[C]
	deps    C
	cfg     PoolConfig
	log     Logger
	metrics *observability.Metrics
	tracer  trace.Tracer
}

// loop claims and executes records until ctx is cancelled. A claimed record
// always runs to completion (or timeout) and is reported, even if ctx is
// cancelled meanwhile.
func (w *worker[C]) loop(ctx context.Context) {
	w.log.Debugf("worker %s started: queue=%s tasks=%v", w.id, w.queue, w.names)
	defer w.log.Debugf("worker %s stopped", w.id)

	idle := minIdleWait
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		rec, err := w.store.Next(ctx, w.queue, w.names)
		if err != nil && ctx.Err() == nil {
			w.log.Errorf("claim failed: worker=%s queue=%s err=%v", w.id, w.queue, err)
		}
		if rec == nil {
			if !sleepCtx(ctx, idle) {
				return
			}
			idle = nextIdle(idle, w.cfg.PollInterval)
			continue
		}
		idle = minIdleWait
		w.process(context.WithoutCancel(ctx), rec)
	}
}

func nextIdle(cur, max time.Duration) time.Duration {
	cur *= 2
	if cur > max {
		return max
	}
	return cur
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// process executes one claimed record and reports the outcome to the store.
func (w *worker[C]) process(ctx context.Context, rec *Record) {
	ctx, span := w.tracer.Start(ctx, "banyan.execute",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("banyan.task_id", rec.ID),
			attribute.String("banyan.task_name", rec.TaskName),
			attribute.String("banyan.queue", rec.QueueName),
			attribute.Int("banyan.attempt", rec.CurrentAttempt),
			attribute.String("banyan.worker", w.id),
		),
	)
	defer span.End()

	start := time.Now()
	w.metrics.Started(rec.TaskName, rec.QueueName)

	execErr := w.execute(ctx, rec)
	if execErr == nil {
		w.metrics.Finished(rec.TaskName, rec.QueueName, "", time.Since(start))
		span.SetStatus(codes.Ok, "")
		return
	}

	w.metrics.Finished(rec.TaskName, rec.QueueName, execErr.Kind.String(), time.Since(start))
	span.RecordError(execErr)
	span.SetStatus(codes.Error, execErr.Kind.String())

	retryID, err := w.store.Errored(ctx, rec.ID, execErr)
	switch {
	case err != nil:
		w.log.Errorf("report failure failed: id=%s task=%s queue=%s err=%v", rec.ID, rec.TaskName, rec.QueueName, err)
	case retryID != "":
		span.SetAttributes(attribute.String("banyan.retry_id", retryID))
		w.log.Warnf("task failed, retry scheduled: id=%s task=%s attempt=%d retry=%s err=%v",
			rec.ID, rec.TaskName, rec.CurrentAttempt, retryID, execErr)
	default:
		w.log.Errorf("task dead: id=%s task=%s attempt=%d err=%v", rec.ID, rec.TaskName, rec.CurrentAttempt, execErr)
	}
}

// execute decodes and runs rec, reporting success itself. The returned
// error is the failure still to be reported. Every call into task code is
// fault-isolated.
func (w *worker[C]) execute(ctx context.Context, rec *Record) *ExecError {
	var task Runner[C]
	if err := catch(func() (err error) {
		task, err = w.reg.Decode(rec)
		return err
	}); err != nil {
		return &ExecError{Kind: ExecDeserialization, Err: err}
	}

	timeout, execErr := w.timeout(task)
	if execErr != nil {
		return execErr
	}

	current := NewCurrentTask(rec)
	h := w.reg.wrapHandler(func(ctx context.Context, current CurrentTask) error {
		return task.Run(ctx, current, w.deps)
	})
	execCtx := withExecution(ctx, rec, w.id)
	if execErr := Execute(execCtx, timeout, func(ctx context.Context) error {
		return h(ctx, current)
	}); execErr != nil {
		return execErr
	}

	if s, ok := task.(Scheduler); ok {
		var next time.Time
		err := catch(func() (err error) {
			next, err = s.NextSchedule(time.Now())
			return err
		})
		if execErr := faultOr(err, ExecScheduling); execErr != nil {
			return execErr
		}
		if !next.IsZero() {
			return w.reschedule(ctx, rec, task, next)
		}
	}

	if err := w.store.Completed(ctx, rec.ID); err != nil {
		w.log.Errorf("report completion failed: id=%s task=%s err=%v", rec.ID, rec.TaskName, err)
		return nil
	}
	w.log.Debugf("processed: id=%s task=%s queue=%s", rec.ID, rec.TaskName, rec.QueueName)
	return nil
}

// timeout resolves the execution timeout of task, honoring its override.
func (w *worker[C]) timeout(task Task) (time.Duration, *ExecError) {
	o, ok := task.(TimeoutOverrider)
	if !ok {
		return w.cfg.ExecutionTimeout, nil
	}
	var d time.Duration
	if err := catch(func() error {
		d = o.ExecutionTimeout()
		return nil
	}); err != nil {
		return 0, &ExecError{Kind: ExecPanicked, Err: err}
	}
	if d <= 0 {
		return w.cfg.ExecutionTimeout, nil
	}
	return d, nil
}

// faultOr classifies err from a guarded hook: a fault is ExecPanicked, any
// other error is kind.
func faultOr(err error, kind ExecErrorKind) *ExecError {
	if err == nil {
		return nil
	}
	var f *Fault
	if errors.As(err, &f) {
		return &ExecError{Kind: ExecPanicked, Err: f}
	}
	return &ExecError{Kind: kind, Err: err}
}

func (w *worker[C]) reschedule(ctx context.Context, rec *Record, task Task, next time.Time) *ExecError {
	var payload []byte
	err := catch(func() (err error) {
		payload, err = w.reg.encoder.Encode(task)
		if err != nil {
			return Wrap(ErrEncodeFailed, err)
		}
		return nil
	})
	if execErr := faultOr(err, ExecScheduling); execErr != nil {
		return execErr
	}
	nextID, created, err := w.store.Reschedule(ctx, rec.ID, NewTask{
		TaskName:         rec.TaskName,
		QueueName:        rec.QueueName,
		UniqueKey:        rec.UniqueKey,
		MaximumAttempts:  rec.MaximumAttempts,
		Payload:          payload,
		ScheduledToRunAt: next,
	})
	switch {
	case errors.Is(err, ErrInvalidStateTransition):
		// cancelled while running; nothing left to report
		w.log.Warnf("reschedule skipped: id=%s task=%s err=%v", rec.ID, rec.TaskName, err)
	case err != nil:
		w.log.Errorf("reschedule failed: id=%s task=%s err=%v", rec.ID, rec.TaskName, err)
	case !created:
		w.log.Infof("next occurrence already pending: id=%s task=%s", rec.ID, rec.TaskName)
	default:
		w.log.Debugf("rescheduled: id=%s task=%s next=%s at=%s", rec.ID, rec.TaskName, nextID, next.Format(time.RFC3339))
	}
	return nil
}

func workerName(queue string, i int) string { return queue + "-" + strconv.Itoa(i) }

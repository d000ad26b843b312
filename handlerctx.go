package banyantask

import (
	"context"

	"github.com/banyancomputer/banyan-task/internal/hctx"
)

// TaskID returns the id of the record being executed. It is empty if the
// context was not provided by a Worker.
func TaskID(ctx context.Context) string {
	st, ok := hctx.From(ctx)
	if !ok || st == nil {
		return ""
	}
	return st.TaskID
}

// WorkerID returns the "<queue>-<index>" name of the executing worker.
func WorkerID(ctx context.Context) string {
	st, ok := hctx.From(ctx)
	if !ok || st == nil {
		return ""
	}
	return st.WorkerID
}

// ExecutionInfo returns the task name, queue and zero-based attempt of the
// record being executed. ok is false outside a Worker.
func ExecutionInfo(ctx context.Context) (taskName, queue string, attempt int, ok bool) {
	st, found := hctx.From(ctx)
	if !found || st == nil {
		return "", "", 0, false
	}
	return st.TaskName, st.QueueName, st.Attempt, true
}

func withExecution(ctx context.Context, rec *Record, workerID string) context.Context {
	return hctx.WithState(ctx, &hctx.State{
		TaskID:    rec.ID,
		TaskName:  rec.TaskName,
		QueueName: rec.QueueName,
		Attempt:   rec.CurrentAttempt,
		WorkerID:  workerID,
	})
}

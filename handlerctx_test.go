package banyantask

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandlerCtx_NoState(t *testing.T) {
	ctx := context.Background()
	require.Empty(t, TaskID(ctx))
	require.Empty(t, WorkerID(ctx))
	_, _, _, ok := ExecutionInfo(ctx)
	require.False(t, ok)
}

func TestHandlerCtx_WithExecution(t *testing.T) {
	rec := &Record{ID: "r1", TaskName: "prune_blocks", QueueName: "maintenance", CurrentAttempt: 1}
	ctx := withExecution(context.Background(), rec, "maintenance-3")

	require.Equal(t, "r1", TaskID(ctx))
	require.Equal(t, "maintenance-3", WorkerID(ctx))
	name, queue, attempt, ok := ExecutionInfo(ctx)
	require.True(t, ok)
	require.Equal(t, "prune_blocks", name)
	require.Equal(t, "maintenance", queue)
	require.Equal(t, 1, attempt)
}

package banyantask_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	banyantask "github.com/banyancomputer/banyan-task"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestClient_EnqueueAndGet(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	at := time.Now().Add(time.Hour).UTC().Truncate(time.Millisecond)
	id, created, err := h.client.Enqueue(ctx, pinCID{CID: "bafy"}, banyantask.Queue("pins"), banyantask.RunAt(at))
	require.NoError(t, err)
	require.True(t, created)

	rec, err := h.client.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "pin_cid", rec.TaskName)
	require.Equal(t, "pins", rec.QueueName)
	require.Equal(t, banyantask.StateNew, rec.State)
	require.Equal(t, banyantask.DefaultMaxAttempts, rec.MaximumAttempts)
	require.True(t, at.Equal(rec.ScheduledToRunAt))
	require.JSONEq(t, `{"cid":"bafy"}`, string(rec.Payload))

	_, err = h.client.Get(ctx, "missing")
	require.ErrorIs(t, err, banyantask.ErrUnknownTask)
}

func TestClient_ListWithPredicates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, cid := range []string{"bafy-a", "bafy-b", "qm-c"} {
		_, _, err := h.client.Enqueue(ctx, pinCID{CID: cid})
		require.NoError(t, err)
	}
	_, _, err := h.client.Enqueue(ctx, flaky{Key: "x"})
	require.NoError(t, err)

	recs, err := h.client.List(ctx, banyantask.Filter{TaskName: "pin_cid"})
	require.NoError(t, err)
	require.Len(t, recs, 3)

	recs, err = h.client.List(ctx, banyantask.Filter{TaskName: "pin_cid"}, func(r *banyantask.Record) bool {
		return strings.Contains(string(r.Payload), "bafy")
	})
	require.NoError(t, err)
	require.Len(t, recs, 2)

	recs, err = h.client.List(ctx, banyantask.Filter{State: banyantask.StateNew, Limit: 1})
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestClient_CancelAndRetry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id, _, err := h.client.Enqueue(ctx, flaky{Key: "manual"})
	require.NoError(t, err)
	_, err = h.client.Retry(ctx, id)
	require.ErrorIs(t, err, banyantask.ErrNotRetryable, "new records are not retryable")

	rec, err := h.store.Next(ctx, banyantask.DefaultQueueName, []string{"flaky"})
	require.NoError(t, err)
	require.Equal(t, id, rec.ID)
	execErr := &banyantask.ExecError{Kind: banyantask.ExecFailed, Err: errors.New("boom")}
	auto, err := h.store.Errored(ctx, id, execErr)
	require.NoError(t, err)
	require.NotEmpty(t, auto)

	// the automatic successor already exists
	_, err = h.client.Retry(ctx, id)
	require.ErrorIs(t, err, banyantask.ErrNotRetryable)

	require.NoError(t, h.client.Cancel(ctx, auto))
	require.ErrorIs(t, h.client.Cancel(ctx, auto), banyantask.ErrInvalidStateTransition)

	chain, err := h.client.Chain(ctx, auto)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	require.Equal(t, id, chain[0].ID)
	require.Equal(t, banyantask.StateCancelled, chain[1].State)
}

func TestClient_Metrics(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, _, err := h.client.Enqueue(ctx, pinCID{CID: "now"})
	require.NoError(t, err)
	_, _, err = h.client.Enqueue(ctx, pinCID{CID: "later"}, banyantask.Delay(time.Hour))
	require.NoError(t, err)
	cancelled, _, err := h.client.Enqueue(ctx, pinCID{CID: "never"})
	require.NoError(t, err)
	require.NoError(t, h.client.Cancel(ctx, cancelled))

	m, err := h.client.Metrics(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, m.New)
	require.EqualValues(t, 1, m.Cancelled)
	require.EqualValues(t, 1, m.ScheduledFuture)

	reg := prometheus.NewRegistry()
	reg.MustRegister(banyantask.NewStateCollector(h.store))
	n, err := testutil.GatherAndCount(reg, "banyan_tasks")
	require.NoError(t, err)
	require.Equal(t, len(m.ByLabel()), n)
}

package banyantask

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExecute_Success(t *testing.T) {
	calls := 0
	err := Execute(context.Background(), time.Second, func(context.Context) error {
		calls++
		return nil
	})
	require.Nil(t, err)
	require.Equal(t, 1, calls)
}

func TestExecute_Error(t *testing.T) {
	base := errors.New("boom")
	err := Execute(context.Background(), time.Second, func(context.Context) error { return base })
	require.NotNil(t, err)
	require.Equal(t, ExecFailed, err.Kind)
	require.ErrorIs(t, err, base)
}

func TestExecute_Panic(t *testing.T) {
	err := Execute(context.Background(), time.Second, func(context.Context) error {
		var m map[string]int
		m["x"] = 1
		return nil
	})
	require.NotNil(t, err)
	require.Equal(t, ExecPanicked, err.Kind)
	var f *Fault
	require.ErrorAs(t, err, &f)
	require.NotEmpty(t, f.Stack)
	require.Contains(t, f.Error(), "panic:")
}

func TestExecute_PanicWithError(t *testing.T) {
	err := Execute(context.Background(), 0, func(context.Context) error {
		panic(fmt.Errorf("wrapped"))
	})
	require.NotNil(t, err)
	require.Equal(t, ExecPanicked, err.Kind)
}

func TestExecute_TimeoutDoesNotWait(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	err := Execute(context.Background(), 30*time.Millisecond, func(context.Context) error {
		<-release
		return nil
	})
	require.NotNil(t, err)
	require.Equal(t, ExecTimedOut, err.Kind)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), time.Second)
}

func TestExecute_TimeoutObservedByTask(t *testing.T) {
	err := Execute(context.Background(), 20*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NotNil(t, err)
	require.Equal(t, ExecTimedOut, err.Kind)
}

func TestCatch(t *testing.T) {
	base := errors.New("bad cron expression")
	require.NoError(t, catch(func() error { return nil }))
	require.ErrorIs(t, catch(func() error { return base }), base)

	err := catch(func() error {
		var slots []time.Time
		_ = slots[len(slots)+1]
		return nil
	})
	var f *Fault
	require.ErrorAs(t, err, &f)
	require.NotEmpty(t, f.Stack)
	require.Contains(t, f.Error(), "index out of range")
}

func TestFaultOr(t *testing.T) {
	require.Nil(t, faultOr(nil, ExecScheduling))

	execErr := faultOr(errors.New("bad cron expression"), ExecScheduling)
	require.Equal(t, ExecScheduling, execErr.Kind)
	require.True(t, execErr.Retryable())

	execErr = faultOr(&Fault{Value: "boom"}, ExecScheduling)
	require.Equal(t, ExecPanicked, execErr.Kind)
	require.False(t, execErr.Retryable())
	require.Equal(t, StatePanicked, execErr.FailedState())
}

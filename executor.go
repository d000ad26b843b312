package banyantask

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"
)

// Fault is the recovered value of a panicking task together with the
// goroutine stack at the point of the panic.
type Fault struct {
	Value any
	Stack []byte
}

func (f *Fault) Error() string { return fmt.Sprintf("panic: %v", f.Value) }

// Execute runs fn exactly once on its own goroutine. A panic is converted to
// an ExecPanicked error, exceeding timeout to ExecTimedOut and any other
// returned error to ExecFailed. When the timeout fires Execute returns
// without waiting for fn; fn's context is cancelled and it is expected to
// observe that. A timeout <= 0 disables the deadline.
func Execute(ctx context.Context, timeout time.Duration, fn func(context.Context) error) *ExecError {
	execCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- &Fault{Value: r, Stack: debug.Stack()}
			}
		}()
		done <- fn(execCtx)
	}()

	select {
	case err := <-done:
		return classify(execCtx, err)
	case <-execCtx.Done():
		// the handler may have finished in the same instant
		select {
		case err := <-done:
			return classify(execCtx, err)
		default:
		}
		return &ExecError{Kind: ExecTimedOut, Err: fmt.Errorf("execution exceeded %s: %w", timeout, execCtx.Err())}
	}
}

// catch runs fn on the calling goroutine and converts a panic into a
// *Fault. It guards task code that runs outside Execute: payload decoding,
// declaration hooks and the recurrence hook.
func catch(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &Fault{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}

func classify(execCtx context.Context, err error) *ExecError {
	if err == nil {
		return nil
	}
	var f *Fault
	if errors.As(err, &f) {
		return &ExecError{Kind: ExecPanicked, Err: f}
	}
	if errors.Is(execCtx.Err(), context.DeadlineExceeded) && errors.Is(err, context.DeadlineExceeded) {
		return &ExecError{Kind: ExecTimedOut, Err: err}
	}
	return &ExecError{Kind: ExecFailed, Err: err}
}

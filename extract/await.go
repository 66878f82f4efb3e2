package extract

import (
	"context"
	"errors"
	"time"
)

var (
	// errWaitTimeout is returned by await when the timer wins.
	errWaitTimeout = errors.New("timed out")

	// errCallAbandoned is joined to the cause when the call kept running
	// after cancellation. The decoder must not be used again.
	errCallAbandoned = errors.New("decoder call did not return after cancellation")
)

type result[T any] struct {
	v   T
	err error
}

// await runs fn and returns the first of: its result, the timeout, or ctx
// done. When the timer or ctx wins, fn's context is cancelled and await
// waits up to another timeout for fn to return, so calls against the same
// decoder never overlap. If fn is still running after that, the returned
// error also matches errCallAbandoned.
func await[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan result[T], 1)
	go func() {
		v, err := fn(callCtx)
		done <- result[T]{v: v, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var zero T
	var cause error
	select {
	case r := <-done:
		return r.v, r.err
	case <-timer.C:
		cause = errWaitTimeout
	case <-ctx.Done():
		cause = ctx.Err()
	}

	cancel()
	drain := time.NewTimer(timeout)
	defer drain.Stop()

	select {
	case <-done:
		return zero, cause
	case <-drain.C:
		return zero, errors.Join(cause, errCallAbandoned)
	}
}

// pause sleeps for d or until ctx is done.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

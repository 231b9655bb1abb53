package service

import (
	"context"
	"fmt"
	"time"

	"estate-assistant/internal/metrics"
)

// callGuard bounds every collaborator call with a timeout and records its
// duration, so a hung dependency cannot hold a user's lock indefinitely.
type callGuard struct {
	timeout time.Duration
	metrics *metrics.Metrics
}

type callResult[T any] struct {
	value T
	err   error
}

// guarded runs fn on its own goroutine and waits for it or for ctx to end,
// whichever comes first. A call still running at the deadline is abandoned:
// its context is cancelled and its eventual result is dropped.
func guarded[T any](ctx context.Context, g callGuard, collaborator string, fn func(ctx context.Context) (T, error)) (T, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	done := make(chan callResult[T], 1)
	go func() {
		v, err := fn(ctx)
		done <- callResult[T]{value: v, err: err}
	}()

	var res callResult[T]
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = fmt.Errorf("%s call abandoned: %w", collaborator, ctx.Err())
	}
	g.metrics.ObserveCall(collaborator, time.Since(start), res.err)
	return res.value, res.err
}

func (g callGuard) do(ctx context.Context, collaborator string, fn func(ctx context.Context) error) error {
	_, err := guarded(ctx, g, collaborator, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

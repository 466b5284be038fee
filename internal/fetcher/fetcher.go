package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"go-upstream-guard/internal/metrics"
)

var (
	ErrTimeout = errors.New("fetch timed out")
	ErrPanic   = errors.New("fetch panicked")
)

// ComputeFunc performs the expensive retrieval for one key
type ComputeFunc[T any] func(ctx context.Context) (T, error)

// Result is what a caller of FetchOrCompute receives
type Result[T any] struct {
	Value T
	// Shared is set when the value came from a computation started by another caller
	Shared bool
	// Fallback is set when Value is the caller's fallback
	Fallback bool
	// Err is the reason for the fallback, for logging only
	Err error
}

// Fetcher coalesces concurrent computations of the same key within the process.
// At most one computation per key is in flight; its entry is removed as soon
// as it settles, whatever the outcome.
type Fetcher[T any] struct {
	group    singleflight.Group
	resource string
	timeout  time.Duration
	logger   *zap.Logger
}

// New creates a fetcher. resource labels metrics and logs, timeout bounds every computation.
func New[T any](resource string, timeout time.Duration, logger *zap.Logger) *Fetcher[T] {
	return &Fetcher[T]{
		resource: resource,
		timeout:  timeout,
		logger:   logger,
	}
}

// FetchOrCompute returns the result of compute for key, joining a computation
// already in flight for the same key. The computation runs detached from ctx's
// cancellation and is bounded by the fetcher timeout. Errors, timeouts and
// panics resolve to fallback for every waiter; a waiter whose ctx ends first
// gets fallback without disturbing the computation.
func (f *Fetcher[T]) FetchOrCompute(ctx context.Context, key string, compute ComputeFunc[T], fallback T) Result[T] {
	executed := false

	ch := f.group.DoChan(key, func() (interface{}, error) {
		executed = true
		done := metrics.RecordFetchExecution(f.resource)
		defer done()

		computeCtx := context.WithoutCancel(ctx)
		if f.timeout > 0 {
			var cancel context.CancelFunc
			computeCtx, cancel = context.WithTimeout(computeCtx, f.timeout)
			defer cancel()
		}
		return f.run(computeCtx, key, compute)
	})

	select {
	case res := <-ch:
		if !executed {
			metrics.RecordFetchCoalesced(f.resource)
		}
		if res.Err != nil {
			return f.fallback(key, fallback, res.Err, !executed)
		}
		value, _ := res.Val.(T)
		return Result[T]{Value: value, Shared: !executed}
	case <-ctx.Done():
		return f.fallback(key, fallback, ctx.Err(), false)
	}
}

// run executes compute in its own goroutine so that a computation ignoring
// ctx still releases the key when the timeout fires
func (f *Fetcher[T]) run(ctx context.Context, key string, compute ComputeFunc[T]) (interface{}, error) {
	type outcome struct {
		value T
		err   error
	}
	out := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				f.logger.Error("Fetch computation panicked",
					zap.String("resource", f.resource),
					zap.String("key", key),
					zap.Any("panic", r))
				out <- outcome{err: fmt.Errorf("%w: %v", ErrPanic, r)}
			}
		}()
		value, err := compute(ctx)
		out <- outcome{value: value, err: err}
	}()

	select {
	case o := <-out:
		if o.err != nil {
			return nil, o.err
		}
		return o.value, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, f.timeout)
		}
		return nil, ctx.Err()
	}
}

func (f *Fetcher[T]) fallback(key string, fallback T, err error, shared bool) Result[T] {
	reason := "error"
	switch {
	case errors.Is(err, ErrTimeout):
		reason = "timeout"
	case errors.Is(err, ErrPanic):
		reason = "panic"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		reason = "canceled"
	}
	metrics.RecordFetchFallback(f.resource, reason)

	f.logger.Warn("Serving fallback",
		zap.String("resource", f.resource),
		zap.String("key", key),
		zap.String("reason", reason),
		zap.Error(err))

	return Result[T]{Value: fallback, Shared: shared, Fallback: true, Err: err}
}

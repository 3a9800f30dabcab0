// Package goroutine provides a bounded runner for background work.
package goroutine

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/cashkite/cashkite/internal/pkg/stacktrace"
)

const defaultSlotsPerCPU = 100

// Runner executes functions on background goroutines with a bounded level of
// parallelism. Task errors are collected and surfaced by Wait.
type Runner struct {
	slots chan struct{}
	wg    sync.WaitGroup

	mu       sync.Mutex
	errs     []error
	draining bool
}

// NewRunner returns a Runner that executes at most limit tasks at once. A
// non-positive limit falls back to 100 slots per CPU.
func NewRunner(limit int) *Runner {
	if limit < 1 {
		limit = runtime.NumCPU() * defaultSlotsPerCPU
	}

	return &Runner{slots: make(chan struct{}, limit)}
}

// Run schedules fn on a new goroutine when a slot is free. Tasks submitted
// after Wait has started, or past the parallelism bound, are dropped with a
// warning rather than queued.
func (r *Runner) Run(ctx context.Context, fn func(ctx context.Context) error) {
	if r == nil {
		return
	}

	r.mu.Lock()
	if r.draining {
		r.mu.Unlock()
		slog.WarnContext(ctx, "background runner is draining, task dropped")
		return
	}

	select {
	case r.slots <- struct{}{}:
	default:
		r.mu.Unlock()
		slog.WarnContext(ctx, "background runner at capacity, task dropped")
		return
	}

	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer r.finish(ctx)

		if ctx.Err() != nil {
			slog.WarnContext(ctx, "background task canceled", "because", ctx.Err())
			return
		}

		if err := fn(ctx); err != nil {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
		}
	}()
}

// finish releases the task's slot and converts a panic into an error log.
func (r *Runner) finish(ctx context.Context) {
	<-r.slots

	if rvr := recover(); rvr != nil {
		stack := debug.Stack()
		if paths := stacktrace.InternalPaths(stack); len(paths) > 0 {
			slog.ErrorContext(ctx, "panic in background task", "panic", rvr, "stack", paths)
			return
		}

		slog.ErrorContext(ctx, "panic in background task", "panic", rvr, "stack", string(stack))
	}
}

// Wait stops intake, blocks until running tasks finish, and returns their
// errors joined together.
func (r *Runner) Wait() error {
	if r == nil {
		return nil
	}

	r.mu.Lock()
	r.draining = true
	r.mu.Unlock()

	r.wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()

	return errors.Join(r.errs...)
}

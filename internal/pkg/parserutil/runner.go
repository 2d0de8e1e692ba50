package parserutil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// TaskFunc runs the work for one named task (usually a platform).
type TaskFunc func(ctx context.Context, name string) error

// RunOptions configures how tasks should be run
type RunOptions struct {
	// LogStart logs when each task starts
	LogStart bool
	// OnError is called when a task returns an error or panics. If nil, errors are logged.
	OnError func(name string, err error)
	// WaitForCompletion when true blocks until all tasks finish (so the passed context stays valid for the full run).
	// When false, RunTasks returns immediately and the caller must not cancel the context until tasks are done.
	WaitForCompletion bool
}

// ErrPanic wraps a recovered task panic.
var ErrPanic = errors.New("task panicked")

// RunTasks runs fn for every name in parallel. A panic in one task is recovered and
// reported through OnError without affecting the others.
func RunTasks(ctx context.Context, names []string, fn TaskFunc, opts RunOptions) {
	if len(names) == 0 {
		return
	}

	var wg sync.WaitGroup

	// Default error handler logs errors
	onError := opts.OnError
	if onError == nil {
		onError = func(name string, err error) {
			slog.Error("Task failed", "task", name, "error", err)
		}
	}

	for _, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					slog.Error("Task panicked", "task", name, "panic", r, "stack", string(debug.Stack()))
					onError(name, fmt.Errorf("%w: %v", ErrPanic, r))
				}
			}()

			if opts.LogStart {
				slog.Info("Starting task", "task", name)
			}

			if err := fn(ctx, name); err != nil {
				onError(name, err)
			}
		}()
	}

	if opts.WaitForCompletion {
		wg.Wait()
	}
}

// CreateCycleContext creates a context for a cycle with optional timeout
func CreateCycleContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return ctx, func() {} // No-op cancel function
}

// Sleep waits for d or until ctx is done. It reports whether the full delay elapsed.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

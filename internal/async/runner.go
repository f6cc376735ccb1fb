// Package async runs fire-and-forget work under supervision. Handlers hand
// schedule/cancel/send calls here so the HTTP response never waits on them,
// while failures still land in the log instead of vanishing.
package async

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Runner supervises background tasks spawned from the request path.
type Runner struct {
	logger  *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewRunner creates a runner. Each task gets its own context with the given
// timeout, detached from the triggering request.
func NewRunner(logger *slog.Logger, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Runner{logger: logger, timeout: timeout}
}

// Go runs fn in a goroutine. Panics are recovered and errors are logged with
// the task name; neither reaches the caller.
func (r *Runner) Go(name string, fn func(ctx context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("Background task panicked",
					slog.String("task", name),
					slog.Any("panic", rec),
				)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			r.logger.Error("Background task failed",
				slog.String("task", name),
				slog.Any("error", err),
			)
		}
	}()
}

// Shutdown waits for in-flight tasks to finish or the context to expire.
func (r *Runner) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("background tasks still running: %w", ctx.Err())
	}
}

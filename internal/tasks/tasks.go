// Package tasks runs fire-and-forget work decoupled from the request that
// spawned it. Each unit gets its own detached context with a bounded
// deadline; failures are logged, never returned to the caller.
package tasks

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultTaskTimeout = 15 * time.Second

// Runner executes named background units of work.
type Runner struct {
	logger  *zap.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewRunner creates a Runner. timeout bounds each task; zero or negative
// falls back to the default.
func NewRunner(logger *zap.Logger, timeout time.Duration) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = defaultTaskTimeout
	}
	return &Runner{logger: logger, timeout: timeout}
}

// Go schedules fn on its own goroutine with a detached, deadline-bounded
// context. The request that scheduled it never waits on the result.
func (r *Runner) Go(name string, fn func(context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			r.logger.Error("background task failed", zap.String("task", name), zap.Error(err))
		}
	}()
}

// Drain waits for in-flight tasks to finish, or gives up when ctx expires.
// Used during shutdown so best-effort writes get a chance to land.
func (r *Runner) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

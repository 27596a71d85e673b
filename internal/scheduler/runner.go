package scheduler

import (
	"context"
	"sync"
	"time"
)

// Runner invokes an action at a fixed interval until stopped. It is the
// cancelable replacement for ad-hoc polling loops.
type Runner struct {
	interval time.Duration
	action   func(context.Context)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRunner creates a runner for the given action.
func NewRunner(interval time.Duration, action func(context.Context)) *Runner {
	return &Runner{interval: interval, action: action}
}

// Start begins ticking. Starting a running runner is a no-op.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}

	rctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-rctx.Done():
				return
			case <-ticker.C:
				r.action(rctx)
			}
		}
	}(r.done)
}

// Stop cancels the runner and waits for the loop to exit. Safe to call
// repeatedly or before Start.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	done := r.done
	r.cancel = nil
	r.done = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

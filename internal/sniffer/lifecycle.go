package sniffer

import (
	"context"
	"sync"
)

// lifecycle is the shared start/stop state for backends that run a
// background goroutine. Start and Stop are idempotent: a second Start while
// running is a no-op that spawns nothing, and Stop on a stopped backend
// returns immediately.
type lifecycle struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// begin claims the running state and returns the context for the backend
// goroutine, or false when the backend is already running. The run context
// is detached from the caller's: Stop, not the Start context, ends the run.
func (l *lifecycle) begin(ctx context.Context) (context.Context, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return nil, false
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l.cancel = cancel
	return runCtx, true
}

// end cancels the run context and waits for the goroutine to drain. It
// returns false when the backend was not running.
func (l *lifecycle) end() bool {
	l.mu.Lock()
	cancel := l.cancel
	l.cancel = nil
	l.mu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	l.wg.Wait()
	return true
}

package host

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/parallel/internal/queue"
)

// DefaultInterval is the default delay between a Schedule call and the
// callback it arms (roughly one display frame).
const DefaultInterval = 16 * time.Millisecond

// Loop is a single-goroutine host event loop.
//
// Every posted task, ready callback and scheduled callback runs on the
// goroutine that called Run, one at a time. This is the one cooperative
// thread of control the engine assumes: callers on other goroutines hand
// work to the loop with Post instead of touching engine state directly.
//
// Loop implements Scheduler.
type Loop struct {
	interval time.Duration
	tasks    *queue.FIFO[func()]

	mu      sync.Mutex
	running bool
	ready   []func()
	timers  map[*time.Timer]struct{}
}

// NewLoop creates a loop whose Schedule calls fire after interval.
// A non-positive interval selects DefaultInterval.
func NewLoop(interval time.Duration) *Loop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Loop{
		interval: interval,
		tasks:    queue.New[func()](),
		timers:   make(map[*time.Timer]struct{}),
	}
}

// Post hands fn to the loop goroutine.
// Returns false if the loop has stopped.
func (l *Loop) Post(fn func()) bool {
	return l.tasks.Enqueue(fn)
}

// Schedule implements Scheduler: fn is posted to the loop after the
// configured interval.
func (l *Loop) Schedule(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var t *time.Timer
	t = time.AfterFunc(l.interval, func() {
		l.mu.Lock()
		delete(l.timers, t)
		l.mu.Unlock()
		l.Post(fn)
	})
	l.timers[t] = struct{}{}
}

// OnReady implements Scheduler. Before Run starts, callbacks are held and
// run in registration order as the loop starts.
func (l *Loop) OnReady(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		l.tasks.Enqueue(fn)
		return
	}
	l.ready = append(l.ready, fn)
}

// Run executes tasks until ctx is cancelled or Stop is called.
// Must be called from exactly one goroutine.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	l.running = true
	ready := l.ready
	l.ready = nil
	l.mu.Unlock()

	slog.Debug("host loop starting", "interval", l.interval, "ready_callbacks", len(ready))

	// Ready callbacks run before any task posted ahead of Run.
	for _, fn := range ready {
		fn()
	}

	for {
		if fn, ok := l.tasks.TryDequeue(); ok {
			fn()
			continue
		}

		select {
		case <-ctx.Done():
			l.Stop()
			slog.Debug("host loop stopping: context cancelled")
			return ctx.Err()

		case <-l.tasks.Wait():
			if l.tasks.Closed() && l.tasks.Len() == 0 {
				slog.Debug("host loop stopping: closed")
				return nil
			}
		}
	}
}

// Stop closes the task queue and cancels pending scheduled callbacks.
func (l *Loop) Stop() {
	l.mu.Lock()
	for t := range l.timers {
		t.Stop()
	}
	l.timers = make(map[*time.Timer]struct{})
	l.mu.Unlock()

	l.tasks.Close()
}

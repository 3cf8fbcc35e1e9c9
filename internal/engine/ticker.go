package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/roach88/parallel/internal/host"
)

// ErrTickerStopped is returned by WaitTick once the ticker has stopped.
var ErrTickerStopped = errors.New("ticker stopped")

// Ticker drives the engine from the host's synchronization primitive.
//
// Once the host signals ready, every tick flushes the engine and re-arms
// itself with Scheduler.Schedule, so exactly one flush runs per host tick
// until Stop is called or the start context is cancelled.
//
// Thread-safety: Stop, Ticks and WaitTick are safe from any goroutine.
// The tick callback itself runs wherever the scheduler runs it.
type Ticker struct {
	engine *Engine
	sched  host.Scheduler

	mu      sync.Mutex
	ctx     context.Context
	ticks   int64
	stopped bool
	started bool
	done    chan struct{} // closed and replaced after every tick
}

// NewTicker creates a ticker for e on sched. Call Start to begin ticking.
func NewTicker(e *Engine, sched host.Scheduler) *Ticker {
	return &Ticker{
		engine: e,
		sched:  sched,
		done:   make(chan struct{}),
	}
}

// Start registers the ticker on the host ready signal. ctx bounds every
// flush; cancelling it stops the ticker at the next tick. Calling Start
// more than once has no effect.
func (t *Ticker) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return
	}
	t.started = true
	t.ctx = ctx

	t.sched.OnReady(func() {
		slog.Debug("host ready, ticking")
		t.sched.Schedule(t.tick)
	})
}

func (t *Ticker) tick() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	ctx := t.ctx
	t.mu.Unlock()

	if ctx.Err() != nil {
		t.Stop()
		return
	}

	if _, err := t.engine.Flush(ctx); err != nil {
		slog.Warn("tick flush interrupted", "tick", t.engine.Tick(), "error", err)
	}

	t.mu.Lock()
	t.ticks++
	close(t.done)
	t.done = make(chan struct{})
	stopped := t.stopped
	t.mu.Unlock()

	if !stopped {
		t.sched.Schedule(t.tick)
	}
}

// Stop ends the tick cycle. A tick already scheduled becomes a no-op.
func (t *Ticker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}
	t.stopped = true
	close(t.done)
	t.done = make(chan struct{})
}

// Ticks returns the number of completed ticks.
func (t *Ticker) Ticks() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ticks
}

// WaitTick blocks until more than after ticks have completed and returns
// the tick count. Returns ErrTickerStopped if the ticker stops first.
func (t *Ticker) WaitTick(ctx context.Context, after int64) (int64, error) {
	for {
		t.mu.Lock()
		if t.ticks > after {
			n := t.ticks
			t.mu.Unlock()
			return n, nil
		}
		if t.stopped {
			t.mu.Unlock()
			return 0, ErrTickerStopped
		}
		done := t.done
		t.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

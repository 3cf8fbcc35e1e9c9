package engine

import "sync/atomic"

// Clock counts flushes.
//
// Every flush takes the next tick number; patches applied during that flush
// are stamped with it. Tick numbers are logical: they order flushes and
// never carry wall-clock time.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	tick atomic.Int64
}

// NewClock creates a clock at tick 0 (no flush yet).
func NewClock() *Clock {
	return &Clock{}
}

// Next advances to and returns the next tick.
func (c *Clock) Next() int64 {
	return c.tick.Add(1)
}

// Current returns the tick in progress, or the last completed one.
func (c *Clock) Current() int64 {
	return c.tick.Load()
}

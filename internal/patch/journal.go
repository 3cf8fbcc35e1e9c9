package patch

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/roach88/parallel/internal/host"
)

// Identifier maps an external object back to its identity.
type Identifier interface {
	Lookup(obj host.Object) (int, bool)
}

// TickSource reports the flush currently in progress.
type TickSource interface {
	Tick() int64
}

// Journal is a host decorator that records every successful mutation.
//
// Reads (queries, parsing, inspection, listener registration) pass through
// unrecorded. A mutation is recorded only after the wrapped host accepted
// it; a failing sink fails the mutation call so the engine logs it.
type Journal struct {
	host.Host

	sink    Sink
	ids     Identifier
	ticks   TickSource
	session string
	seq     atomic.Int64
}

// NewJournal wraps h. ids and ticks are usually the engine's registry and
// the engine itself.
func NewJournal(h host.Host, sink Sink, ids Identifier, ticks TickSource, session string) *Journal {
	return &Journal{
		Host:    h,
		sink:    sink,
		ids:     ids,
		ticks:   ticks,
		session: session,
	}
}

// Session returns the session token stamped on every patch.
func (j *Journal) Session() string { return j.session }

// SetAttribute implements host.Mutator.
func (j *Journal) SetAttribute(ctx context.Context, obj host.Object, key, value string) error {
	if err := j.Host.SetAttribute(ctx, obj, key, value); err != nil {
		return err
	}
	return j.record(ctx, obj, OpSetAttr, key, value)
}

// RemoveAttribute implements host.Mutator.
func (j *Journal) RemoveAttribute(ctx context.Context, obj host.Object, key string) error {
	if err := j.Host.RemoveAttribute(ctx, obj, key); err != nil {
		return err
	}
	return j.record(ctx, obj, OpRemoveAttr, key, "")
}

// SetText implements host.Mutator.
func (j *Journal) SetText(ctx context.Context, obj host.Object, text string) error {
	if err := j.Host.SetText(ctx, obj, text); err != nil {
		return err
	}
	return j.record(ctx, obj, OpSetText, "", text)
}

// AppendChild implements host.Mutator. The child's identity is recorded as
// the value.
func (j *Journal) AppendChild(ctx context.Context, parent, child host.Object) error {
	if err := j.Host.AppendChild(ctx, parent, child); err != nil {
		return err
	}
	return j.record(ctx, parent, OpAppend, "", strconv.Itoa(j.identity(child)))
}

// Dispatch implements host.Events. Listeners run inside the wrapped
// Dispatch, so any patch they cause is sequenced before the dispatch itself.
func (j *Journal) Dispatch(ctx context.Context, obj host.Object, name, class string, bubbles, cancelable bool) error {
	if err := j.Host.Dispatch(ctx, obj, name, class, bubbles, cancelable); err != nil {
		return err
	}
	return j.record(ctx, obj, OpDispatch, name, class)
}

func (j *Journal) record(ctx context.Context, obj host.Object, op Op, key, value string) error {
	p := Patch{
		Session:  j.session,
		Seq:      j.seq.Add(1),
		Tick:     j.ticks.Tick(),
		Identity: j.identity(obj),
		Op:       op,
		Key:      key,
		Value:    value,
	}
	if err := j.sink.WritePatch(ctx, p); err != nil {
		return fmt.Errorf("journal %s: %w", op, err)
	}
	return nil
}

func (j *Journal) identity(obj host.Object) int {
	if idx, ok := j.ids.Lookup(obj); ok {
		return idx
	}
	return -1
}

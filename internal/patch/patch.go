// Package patch records the external mutations the engine applies.
//
// Every mutation a notification hook performs on the external tree is one
// Patch. Patches are stamped with the session, a per-session sequence
// number and the tick (flush number) during which they were applied, so a
// journal can be read back tick by tick.
//
// # Ops
//
//   - set_attr:    Key set to Value
//   - remove_attr: Key removed
//   - set_text:    text content replaced with Value
//   - append:      child with identity Value appended under Identity
//   - dispatch:    synthetic event Key of class Value dispatched
package patch

import (
	"context"
	"sync"
)

// Op names a kind of external mutation.
type Op string

const (
	OpSetAttr    Op = "set_attr"
	OpRemoveAttr Op = "remove_attr"
	OpSetText    Op = "set_text"
	OpAppend     Op = "append"
	OpDispatch   Op = "dispatch"
)

// Ops lists every op in declaration order.
var Ops = []Op{OpSetAttr, OpRemoveAttr, OpSetText, OpAppend, OpDispatch}

// Valid reports whether op is a known op.
func (op Op) Valid() bool {
	for _, o := range Ops {
		if o == op {
			return true
		}
	}
	return false
}

// Patch is one applied external mutation.
type Patch struct {
	Session  string
	Seq      int64
	Tick     int64
	Identity int
	Op       Op
	Key      string
	Value    string
}

// CanonicalMap converts p to a map for MarshalCanonical.
// Empty keys and values are omitted, as is the session.
func (p Patch) CanonicalMap() map[string]any {
	m := map[string]any{
		"seq":      p.Seq,
		"tick":     p.Tick,
		"identity": p.Identity,
		"op":       string(p.Op),
	}
	if p.Key != "" {
		m["key"] = p.Key
	}
	if p.Value != "" {
		m["value"] = p.Value
	}
	return m
}

// Sink receives patches as they are applied.
type Sink interface {
	WritePatch(ctx context.Context, p Patch) error
}

// Log is an in-memory Sink.
//
// Thread-safety: all methods are safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	patches []Patch
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{}
}

// WritePatch implements Sink.
func (l *Log) WritePatch(_ context.Context, p Patch) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.patches = append(l.patches, p)
	return nil
}

// Patches returns a copy of every recorded patch, in write order.
func (l *Log) Patches() []Patch {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Patch, len(l.patches))
	copy(out, l.patches)
	return out
}

// Count returns how many patches have op.
func (l *Log) Count(op Op) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, p := range l.patches {
		if p.Op == op {
			n++
		}
	}
	return n
}

// Filter returns the patches with op, in write order.
func (l *Log) Filter(op Op) []Patch {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Patch
	for _, p := range l.patches {
		if p.Op == op {
			out = append(out, p)
		}
	}
	return out
}

// Reset discards every recorded patch.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.patches = nil
}

// Multi returns a Sink that writes every patch to each sink in order.
// The first failure stops the write and is returned.
func Multi(sinks ...Sink) Sink {
	return multiSink(sinks)
}

type multiSink []Sink

func (m multiSink) WritePatch(ctx context.Context, p Patch) error {
	for _, s := range m {
		if err := s.WritePatch(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

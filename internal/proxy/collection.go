package proxy

import (
	"fmt"
	"log/slog"
)

// Event is delivered to bound handlers.
type Event struct {
	Name  string
	Class string

	// Target is a fresh collection over the live external target.
	Target *Collection
}

// Handler is a bound event handler.
type Handler func(ev Event)

// Plugin extends Collection through the runtime's capability table.
type Plugin func(c *Collection, args ...any) *Collection

// Runtime is the engine handle collections enqueue through.
type Runtime interface {
	Enqueue(n *Node)
	Plugin(name string) (Plugin, bool)
	KnownEvent(name string) bool
}

// Collection is an ordered, chainable set of nodes.
//
// Every chainable operation is a no-op on an empty collection and returns
// the receiver, so invalid arguments never break a chain.
type Collection struct {
	rt       Runtime
	nodes    []*Node
	fragment bool
}

// NewCollection creates a collection over nodes.
func NewCollection(rt Runtime, fragment bool, nodes ...*Node) *Collection {
	return &Collection{rt: rt, nodes: nodes, fragment: fragment}
}

// Len returns the number of nodes.
func (c *Collection) Len() int { return len(c.nodes) }

// At returns the i-th node, or nil if i is out of range.
func (c *Collection) At(i int) *Node {
	if i < 0 || i >= len(c.nodes) {
		return nil
	}
	return c.nodes[i]
}

// First returns the first node, or nil for an empty collection.
func (c *Collection) First() *Node { return c.At(0) }

// Nodes returns a copy of the node slice.
func (c *Collection) Nodes() []*Node {
	out := make([]*Node, len(c.nodes))
	copy(out, c.nodes)
	return out
}

// IsFragment reports whether the collection holds detached nodes.
func (c *Collection) IsFragment() bool { return c.fragment }

// Attr reads key from the first node's desired state.
func (c *Collection) Attr(key string) (string, bool) {
	if len(c.nodes) == 0 {
		return "", false
	}
	return c.nodes[0].Desired.Get(key)
}

// SetAttr sets key on every node's desired state and enqueues the nodes.
// The value is stringified with fmt.Sprint.
func (c *Collection) SetAttr(key string, value any) *Collection {
	v := Value{S: fmt.Sprint(value)}
	for _, n := range c.nodes {
		n.Desired.Attrs[key] = v
		n.Enqueue()
	}
	return c
}

// RemoveAttr records a removal intent for key on every node.
func (c *Collection) RemoveAttr(key string) *Collection {
	for _, n := range c.nodes {
		n.Desired.Attrs[key] = Tombstone
		n.Enqueue()
	}
	return c
}

// Text reads the first node's desired text.
func (c *Collection) Text() (string, bool) {
	if len(c.nodes) == 0 {
		return "", false
	}
	return c.nodes[0].Desired.Text, true
}

// SetText sets the desired text of every node and enqueues the nodes.
func (c *Collection) SetText(value any) *Collection {
	s := fmt.Sprint(value)
	for _, n := range c.nodes {
		n.Desired.Text = s
		n.Enqueue()
	}
	return c
}

// Append queues the nodes of a fragment collection for insertion under the
// first node. Non-fragment arguments are ignored.
func (c *Collection) Append(child *Collection) *Collection {
	if len(c.nodes) == 0 || child == nil {
		return c
	}
	if !child.fragment {
		slog.Debug("append ignored: argument is not a fragment", "len", child.Len())
		return c
	}
	n := c.nodes[0]
	n.pendingAppends = append(n.pendingAppends, child.nodes...)
	n.Enqueue()
	return c
}

// On queues a handler binding for name on every node.
func (c *Collection) On(name string, h Handler) *Collection {
	if len(c.nodes) == 0 || h == nil || !c.known(name) {
		return c
	}
	for _, n := range c.nodes {
		n.pendingBindings = append(n.pendingBindings, Binding{Name: name, Handler: h})
		n.Enqueue()
	}
	return c
}

// Off queues removal of every handler these nodes bound for name.
func (c *Collection) Off(name string) *Collection {
	if len(c.nodes) == 0 || !c.known(name) {
		return c
	}
	for _, n := range c.nodes {
		n.pendingUnbinds = append(n.pendingUnbinds, name)
		n.Enqueue()
	}
	return c
}

// Trigger queues a synthetic event for name on every node.
func (c *Collection) Trigger(name string) *Collection {
	if len(c.nodes) == 0 || !c.known(name) {
		return c
	}
	for _, n := range c.nodes {
		n.pendingTriggers = append(n.pendingTriggers, Binding{Name: name})
		n.Enqueue()
	}
	return c
}

// Ready arms fn on every document node. Element and fragment nodes are
// skipped.
func (c *Collection) Ready(fn func(*Collection)) *Collection {
	if fn == nil {
		return c
	}
	for _, n := range c.nodes {
		if n.kind != KindDocument {
			slog.Debug("ready ignored: not a document node", "identity", n.identity, "kind", n.kind)
			continue
		}
		n.ready = fn
		n.armed = true
		n.Enqueue()
	}
	return c
}

// Each calls fn for every node in order. It never enqueues.
func (c *Collection) Each(fn func(n *Node, i int, c *Collection)) *Collection {
	for i, n := range c.nodes {
		fn(n, i, c)
	}
	return c
}

// Call dispatches to a plugin registered with the runtime.
// Unknown plugins are a no-op.
func (c *Collection) Call(name string, args ...any) *Collection {
	if c.rt == nil {
		return c
	}
	p, ok := c.rt.Plugin(name)
	if !ok {
		slog.Debug("plugin not registered", "plugin", name)
		return c
	}
	if out := p(c, args...); out != nil {
		return out
	}
	return c
}

// known reports whether the runtime recognises the event name.
func (c *Collection) known(name string) bool {
	if c.rt != nil && c.rt.KnownEvent(name) {
		return true
	}
	slog.Warn("event rejected", "code", "UNMAPPED_EVENT", "event", name)
	return false
}

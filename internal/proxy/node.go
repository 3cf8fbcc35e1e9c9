// Package proxy holds the caller-side views of external objects.
//
// A Node pairs one external identity with two snapshots: Observed (what the
// engine believes is applied externally) and Desired (what the caller asked
// for). Chainable operations on a Collection only ever write Desired or the
// pending intent queues, then enqueue the node with the Runtime. External
// mutation happens later, when the engine flushes.
package proxy

import "github.com/roach88/parallel/internal/host"

// NoIdentity is the identity of a node that has not been attached yet.
const NoIdentity = -1

// Kind is the tagged variant carried by every Node.
type Kind int

const (
	// KindElement is an attached, addressable external object.
	KindElement Kind = iota + 1
	// KindFragment is a detached object that has no identity yet.
	KindFragment
	// KindDocument is the virtual document handle (readiness only).
	KindDocument
)

func (k Kind) String() string {
	switch k {
	case KindElement:
		return "element"
	case KindFragment:
		return "fragment"
	case KindDocument:
		return "document"
	default:
		return "unknown"
	}
}

// Value is a desired field value. Unset marks an explicit removal intent.
type Value struct {
	S     string
	Unset bool
}

// Tombstone is the removal intent for a field.
var Tombstone = Value{Unset: true}

// Snapshot is one view of a node's reconcilable fields.
type Snapshot struct {
	Attrs map[string]Value
	Text  string
}

func newSnapshot() Snapshot {
	return Snapshot{Attrs: make(map[string]Value)}
}

// Get returns the value of key, treating tombstones as absent.
func (s Snapshot) Get(key string) (string, bool) {
	v, ok := s.Attrs[key]
	if !ok || v.Unset {
		return "", false
	}
	return v.S, true
}

// Binding is a bind or trigger intent for a named event.
type Binding struct {
	Name    string
	Handler Handler // nil for triggers
}

// Node is one logical view onto one external object.
//
// Several nodes may share an identity; all of them mutate the same external
// object when flushed. Node state is not locked: it must only be touched
// from the goroutine that runs the engine's flushes.
type Node struct {
	rt       Runtime
	identity int
	kind     Kind
	tag      string
	detached host.Object

	Observed Snapshot
	Desired  Snapshot

	pendingAppends  []*Node
	pendingBindings []Binding
	pendingTriggers []Binding
	pendingUnbinds  []string

	filter string
	ready  func(*Collection)
	armed  bool
}

// NewElement creates an attached node for identity.
func NewElement(rt Runtime, identity int, tag string) *Node {
	return &Node{
		rt:       rt,
		identity: identity,
		kind:     KindElement,
		tag:      tag,
		Observed: newSnapshot(),
		Desired:  newSnapshot(),
	}
}

// NewFragment creates a detached node backed by obj. It has no identity
// until Attach is called.
func NewFragment(rt Runtime, obj host.Object, tag string) *Node {
	n := NewElement(rt, NoIdentity, tag)
	n.kind = KindFragment
	n.detached = obj
	return n
}

// NewDocument creates a document node for the root identity.
func NewDocument(rt Runtime, identity int, filter string) *Node {
	n := NewElement(rt, identity, "#document")
	n.kind = KindDocument
	n.filter = filter
	return n
}

// Identity returns the registry index, or NoIdentity for fragments.
func (n *Node) Identity() int { return n.identity }

// Kind returns the node's variant.
func (n *Node) Kind() Kind { return n.kind }

// Tag returns the kind label captured at creation.
func (n *Node) Tag() string { return n.tag }

// Detached returns the backing object of a fragment node.
func (n *Node) Detached() host.Object { return n.detached }

// Filter returns the readiness filter of a document node.
func (n *Node) Filter() string { return n.filter }

// Enqueue hands the node to the runtime for the next flush.
func (n *Node) Enqueue() {
	if n.rt != nil {
		n.rt.Enqueue(n)
	}
}

// Attach turns a fragment node into an element node with identity.
// Calling Attach on an element node is a no-op.
func (n *Node) Attach(identity int) {
	if n.kind != KindFragment {
		return
	}
	n.identity = identity
	n.kind = KindElement
	n.detached = nil
}

// Seed copies the given external state into both snapshots.
// Initialization hooks use it so that a freshly selected node starts with
// observed == desired.
func (n *Node) Seed(attrs []host.Attr, text string) {
	for _, a := range attrs {
		n.Observed.Attrs[a.Name] = Value{S: a.Value}
		n.Desired.Attrs[a.Name] = Value{S: a.Value}
	}
	n.Observed.Text = text
	n.Desired.Text = text
}

// Rebase moves Observed to obs, the state another node with the same
// identity has just applied. Desired fields follow only where they held no
// pending intent, that is where they still matched the old Observed.
func (n *Node) Rebase(obs Snapshot) {
	if n.Desired.Text == n.Observed.Text {
		n.Desired.Text = obs.Text
	}
	for key, was := range n.Observed.Attrs {
		if _, ok := obs.Attrs[key]; ok {
			continue
		}
		if n.Desired.Attrs[key] == was {
			delete(n.Desired.Attrs, key)
		}
	}
	for key, v := range obs.Attrs {
		want, ok := n.Desired.Attrs[key]
		if !ok || want == n.Observed.Attrs[key] {
			n.Desired.Attrs[key] = v
		}
	}

	attrs := make(map[string]Value, len(obs.Attrs))
	for key, v := range obs.Attrs {
		attrs[key] = v
	}
	n.Observed = Snapshot{Attrs: attrs, Text: obs.Text}
}

// TakeAppends drains the pending appends in arrival order.
func (n *Node) TakeAppends() []*Node {
	out := n.pendingAppends
	n.pendingAppends = nil
	return out
}

// TakeBindings drains the pending bind intents.
func (n *Node) TakeBindings() []Binding {
	out := n.pendingBindings
	n.pendingBindings = nil
	return out
}

// TakeTriggers drains the pending trigger intents.
func (n *Node) TakeTriggers() []Binding {
	out := n.pendingTriggers
	n.pendingTriggers = nil
	return out
}

// TakeUnbinds drains the pending unbind intents.
func (n *Node) TakeUnbinds() []string {
	out := n.pendingUnbinds
	n.pendingUnbinds = nil
	return out
}

// Armed reports whether a ready callback is waiting to fire.
func (n *Node) Armed() bool { return n.armed }

// FireReady disarms the node and returns the callback to invoke.
// Returns nil if the node is not armed.
func (n *Node) FireReady() func(*Collection) {
	if !n.armed {
		return nil
	}
	n.armed = false
	return n.ready
}

// Package host defines the contracts the reconciliation engine consumes from
// the environment that owns the external object tree.
//
// The engine never touches external objects directly. Queries, fragment
// parsing, mutation primitives, native event listening and the per-tick
// scheduling primitive are all supplied through these interfaces, so the
// same engine can drive an in-memory tree (package memdom), a bridged
// browser, or any other addressable store.
package host

import "context"

// Object is an opaque external object.
//
// Objects are used as map keys by the identity registry and must therefore
// be comparable (pointers are the usual choice).
type Object any

// Attr is a single named property of an external object.
type Attr struct {
	Name  string
	Value string
}

// Querier resolves a pattern to an ordered set of external objects.
type Querier interface {
	Query(pattern string) ([]Object, error)
}

// Parser turns markup into detached external objects, in document order.
type Parser interface {
	Parse(markup string) ([]Object, error)
}

// Inspector reads the current state of an external object.
// Used by initialization hooks to seed a node's snapshots.
type Inspector interface {
	Kind(obj Object) string
	Attributes(obj Object) []Attr
	Text(obj Object) string
}

// Mutator applies mutations to external objects.
type Mutator interface {
	SetAttribute(ctx context.Context, obj Object, key, value string) error
	RemoveAttribute(ctx context.Context, obj Object, key string) error
	SetText(ctx context.Context, obj Object, text string) error
	AppendChild(ctx context.Context, parent, child Object) error
}

// Listener receives a native event for the live target object.
type Listener func(target Object)

// Events is the native event mechanism of the external tree.
type Events interface {
	// Root returns the object at which delegated listeners are installed.
	Root() Object
	AddListener(root Object, name string, fn Listener) error
	Dispatch(ctx context.Context, obj Object, name, class string, bubbles, cancelable bool) error
}

// Host is the full set of external collaborators the engine needs,
// apart from scheduling.
type Host interface {
	Querier
	Parser
	Inspector
	Mutator
	Events
}

// Scheduler is the host's synchronization primitive.
type Scheduler interface {
	// Schedule arranges for fn to run once, after the current unit of work
	// settles. Every call must eventually produce exactly one invocation.
	Schedule(fn func())

	// OnReady registers fn to run once when the host is ready. If the host
	// is already ready, fn runs on the next opportunity.
	OnReady(fn func())
}

// Package events bridges proxy event intents to the host's native events.
//
// Handlers are never attached to individual objects. The bridge installs one
// delegated listener per known event name at the host root and keeps a
// shared name → handlers table; every bound handler for a name runs once
// per dispatch of that name, receiving a fresh node for the live target.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/roach88/parallel/internal/engine"
	"github.com/roach88/parallel/internal/host"
	"github.com/roach88/parallel/internal/proxy"
	"github.com/roach88/parallel/internal/registry"
)

// Event classes of the default partition.
const (
	ClassMouse = "MouseEvents"
	ClassHTML  = "HTMLEvents"
)

// DefaultClasses returns the default event partition.
func DefaultClasses() map[string][]string {
	return map[string][]string{
		ClassMouse: {"click", "dblclick", "mousedown", "mouseup", "mouseover", "mousemove", "mouseout"},
		ClassHTML:  {"load", "unload", "abort", "error", "select", "change", "submit", "reset", "focus", "blur", "resize", "scroll", "input"},
	}
}

// ErrOverlappingClasses is returned when an event name appears in two classes.
var ErrOverlappingClasses = errors.New("event classes must not overlap")

type binding struct {
	identity int
	handler  proxy.Handler
}

// Bridge is the event bridge.
//
// Thread-safety: the handler table is guarded by a mutex, so listeners may
// fire from any goroutine the host dispatches on.
type Bridge struct {
	classes map[string]string // event name → class
	engine  *engine.Engine

	mu      sync.Mutex
	handles map[string][]binding
}

var _ engine.EventClassifier = (*Bridge)(nil)
var _ engine.NotifyHook = (*Bridge)(nil)

// NewBridge creates a bridge over classes (class → event names). A nil map
// selects DefaultClasses. Returns ErrOverlappingClasses if any name belongs
// to more than one class.
func NewBridge(classes map[string][]string) (*Bridge, error) {
	if classes == nil {
		classes = DefaultClasses()
	}

	byName := make(map[string]string)
	for class, names := range classes {
		for _, name := range names {
			if prev, ok := byName[name]; ok && prev != class {
				return nil, fmt.Errorf("%w: %q is in %s and %s", ErrOverlappingClasses, name, prev, class)
			}
			byName[name] = class
		}
	}

	return &Bridge{
		classes: byName,
		handles: make(map[string][]binding),
	}, nil
}

// Classify returns the class of name.
func (b *Bridge) Classify(name string) (string, bool) {
	class, ok := b.classes[name]
	return class, ok
}

// Names returns every known event name, sorted.
func (b *Bridge) Names() []string {
	names := make([]string, 0, len(b.classes))
	for name := range b.classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Install wires the bridge into e: it becomes e's event classifier, one
// root listener is added per known name and its notify hook is appended to
// the hook pipeline.
func (b *Bridge) Install(e *engine.Engine) error {
	if err := e.SetEventClassifier(b); err != nil {
		return err
	}
	b.engine = e

	h := e.Host()
	root := h.Root()
	for _, name := range b.Names() {
		if err := h.AddListener(root, name, b.listener(name)); err != nil {
			return fmt.Errorf("listen %s: %w", name, err)
		}
	}

	if err := e.AddNotifyHook(b); err != nil {
		return err
	}

	slog.Debug("event bridge installed", "events", len(b.classes))
	return nil
}

// listener returns the delegated root listener for name.
func (b *Bridge) listener(name string) host.Listener {
	class := b.classes[name]
	return func(target host.Object) {
		b.mu.Lock()
		bound := make([]binding, len(b.handles[name]))
		copy(bound, b.handles[name])
		b.mu.Unlock()

		for _, bd := range bound {
			n := b.engine.Adopt(target)
			bd.handler(proxy.Event{
				Name:   name,
				Class:  class,
				Target: b.engine.Wrap(n),
			})
		}
	}
}

// Notify implements engine.NotifyHook. Bindings are recorded first, then
// unbinds, then triggers are dispatched.
func (b *Bridge) Notify(ctx context.Context, n *proxy.Node, reg *registry.Registry) error {
	if n.Kind() == proxy.KindFragment {
		return nil
	}

	id := n.Identity()

	for _, bd := range n.TakeBindings() {
		b.mu.Lock()
		b.handles[bd.Name] = append(b.handles[bd.Name], binding{identity: id, handler: bd.Handler})
		b.mu.Unlock()
		slog.Debug("handler bound", "identity", id, "event", bd.Name)
	}

	for _, name := range n.TakeUnbinds() {
		removed := b.unbind(name, id)
		slog.Debug("handlers unbound", "identity", id, "event", name, "removed", removed)
	}

	triggers := n.TakeTriggers()
	if len(triggers) == 0 {
		return nil
	}

	obj := reg.Resolve(id)
	var errs []error
	for _, tr := range triggers {
		class, ok := b.Classify(tr.Name)
		if !ok {
			errs = append(errs, engine.NewUnmappedEventError(tr.Name, id))
			continue
		}
		if err := b.engine.Host().Dispatch(ctx, obj, tr.Name, class, true, true); err != nil {
			errs = append(errs, engine.NewHostError("dispatch "+tr.Name, id, err))
		}
	}
	return errors.Join(errs...)
}

// unbind removes every handler identity bound for name.
func (b *Bridge) unbind(name string, identity int) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.handles[name][:0]
	removed := 0
	for _, bd := range b.handles[name] {
		if bd.identity == identity {
			removed++
			continue
		}
		kept = append(kept, bd)
	}
	b.handles[name] = kept
	return removed
}

// HandlerCount returns the number of handlers bound for name.
func (b *Bridge) HandlerCount(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handles[name])
}

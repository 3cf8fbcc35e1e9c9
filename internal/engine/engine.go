package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/parallel/internal/host"
	"github.com/roach88/parallel/internal/patch"
	"github.com/roach88/parallel/internal/proxy"
	"github.com/roach88/parallel/internal/queue"
	"github.com/roach88/parallel/internal/registry"
)

// InitHook populates a freshly constructed node from its external object.
type InitHook func(n *proxy.Node, obj host.Object)

// NotifyHook reconciles one dequeued node during a flush.
//
// Hooks must be idempotent: a node may be dequeued several times in one
// flush. reg is the engine's registry.
type NotifyHook interface {
	Notify(ctx context.Context, n *proxy.Node, reg *registry.Registry) error
}

// NotifyFunc adapts a function to NotifyHook.
type NotifyFunc func(ctx context.Context, n *proxy.Node, reg *registry.Registry) error

// Notify implements NotifyHook.
func (f NotifyFunc) Notify(ctx context.Context, n *proxy.Node, reg *registry.Registry) error {
	return f(ctx, n, reg)
}

// EventClassifier maps event names to event classes.
type EventClassifier interface {
	Classify(name string) (class string, ok bool)
}

// Extension installs hooks, plugins or a classifier during setup.
type Extension interface {
	Install(e *Engine) error
}

// Engine is the reconciliation engine.
//
// Callers express intent through collections; the engine queues the
// touched nodes and, on every flush, runs each notification hook over each
// dequeued node in registration order.
//
// Thread-safety model:
//   - Enqueue(): safe from any goroutine
//   - Flush(): serialized; run it from the host loop goroutine
//   - Node state: owned by the host loop goroutine
//
// INVARIANTS:
//   - hook and plugin registration closes at the first flush
//   - hook order NEVER changes after registration
//   - the registry only grows
type Engine struct {
	host  host.Host
	reg   *registry.Registry
	queue *queue.FIFO[*proxy.Node]
	clock *Clock

	journal *patch.Journal

	mu       sync.Mutex
	views    map[int]*proxy.Node // canonical node per identity
	deferred []*proxy.Node       // requeued after the current flush

	initHooks   []InitHook
	notifyHooks []NotifyHook
	plugins     map[string]proxy.Plugin
	events      EventClassifier
	sealed      atomic.Bool

	flushMu sync.Mutex
}

var _ proxy.Runtime = (*Engine)(nil)

// Option allows configuration of the engine.
type Option func(*engineConfig)

type engineConfig struct {
	sink    patch.Sink
	session string
}

// WithJournal records every external mutation to sink under session.
func WithJournal(sink patch.Sink, session string) Option {
	return func(c *engineConfig) {
		c.sink = sink
		c.session = session
	}
}

// New creates an engine over h.
//
// The attribute snapshot init hook and the attribute/text/append notify
// hook are registered first, so extensions installed later run after them.
func New(h host.Host, opts ...Option) *Engine {
	cfg := &engineConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	e := &Engine{
		host:    h,
		reg:     registry.New(),
		queue:   queue.New[*proxy.Node](),
		clock:   NewClock(),
		views:   make(map[int]*proxy.Node),
		plugins: make(map[string]proxy.Plugin),
	}

	if cfg.sink != nil {
		e.journal = patch.NewJournal(h, cfg.sink, e.reg, e, cfg.session)
		e.host = e.journal
	}

	e.initHooks = append(e.initHooks, SnapshotHook(e.host))
	e.notifyHooks = append(e.notifyHooks, &AttributeHook{host: e.host, engine: e})

	return e
}

// Host returns the host the engine mutates (journaled when configured).
func (e *Engine) Host() host.Host { return e.host }

// Registry returns the identity registry.
func (e *Engine) Registry() *registry.Registry { return e.reg }

// Session returns the journal session, or "" when not journaling.
func (e *Engine) Session() string {
	if e.journal == nil {
		return ""
	}
	return e.journal.Session()
}

// Tick returns the flush in progress, or the last completed flush.
func (e *Engine) Tick() int64 { return e.clock.Current() }

// QueueLen returns the current number of queued nodes.
func (e *Engine) QueueLen() int { return e.queue.Len() }

// Select resolves pattern through the host and returns one node per match.
//
// Objects that already have a canonical node are returned as that node,
// without re-running initialization hooks. Query errors are logged and
// yield an empty collection.
func (e *Engine) Select(pattern string) *proxy.Collection {
	objs, err := e.host.Query(pattern)
	if err != nil {
		slog.Warn("query failed", "pattern", pattern, "error", err)
		return proxy.NewCollection(e, false)
	}

	nodes := make([]*proxy.Node, 0, len(objs))
	for _, obj := range objs {
		nodes = append(nodes, e.view(obj))
	}

	slog.Debug("selected", "pattern", pattern, "matches", len(nodes))
	return proxy.NewCollection(e, false, nodes...)
}

// Fragment parses markup into detached nodes. The returned collection is
// flagged as a fragment; its nodes get identities when appended.
func (e *Engine) Fragment(markup string) *proxy.Collection {
	objs, err := e.host.Parse(markup)
	if err != nil {
		slog.Warn("fragment parse failed", "error", err)
		return proxy.NewCollection(e, false)
	}

	nodes := make([]*proxy.Node, 0, len(objs))
	for _, obj := range objs {
		n := proxy.NewFragment(e, obj, e.host.Kind(obj))
		e.runInit(n, obj)
		nodes = append(nodes, n)
	}
	return proxy.NewCollection(e, true, nodes...)
}

// Wrap echoes existing nodes as a collection. No hooks run.
func (e *Engine) Wrap(nodes ...*proxy.Node) *proxy.Collection {
	return proxy.NewCollection(e, false, nodes...)
}

// Document returns a document handle whose ready callback waits for filter
// to match. An empty filter is ready on the next flush.
func (e *Engine) Document(filter string) *proxy.Collection {
	id := e.reg.Identify(e.host.Root())
	return proxy.NewCollection(e, false, proxy.NewDocument(e, id, filter))
}

// Adopt builds a fresh node for a live object, identifying it on first
// sight. Initialization hooks always run, so the node reflects the object's
// current external state.
func (e *Engine) Adopt(obj host.Object) *proxy.Node {
	id := e.reg.Identify(obj)
	n := proxy.NewElement(e, id, e.host.Kind(obj))
	e.runInit(n, obj)

	e.mu.Lock()
	if _, ok := e.views[id]; !ok {
		e.views[id] = n
	}
	e.mu.Unlock()
	return n
}

// view returns the canonical node for obj, creating it on first selection.
func (e *Engine) view(obj host.Object) *proxy.Node {
	id := e.reg.Identify(obj)

	e.mu.Lock()
	defer e.mu.Unlock()

	if n, ok := e.views[id]; ok {
		return n
	}
	n := proxy.NewElement(e, id, e.host.Kind(obj))
	e.runInit(n, obj)
	e.views[id] = n
	return n
}

// attached records n as the canonical node of its new identity, unless
// another node already holds that role.
func (e *Engine) attached(n *proxy.Node) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.views[n.Identity()]; !ok {
		e.views[n.Identity()] = n
	}
}

// share rebases the canonical node of n's identity onto what n just
// applied, so handler writes through adopted nodes show up in later
// selections.
func (e *Engine) share(n *proxy.Node) {
	e.mu.Lock()
	c, ok := e.views[n.Identity()]
	e.mu.Unlock()
	if ok && c != n {
		c.Rebase(n.Observed)
	}
}

func (e *Engine) runInit(n *proxy.Node, obj host.Object) {
	for _, h := range e.initHooks {
		h(n, obj)
	}
}

// Enqueue implements proxy.Runtime. O(1), safe from any goroutine.
func (e *Engine) Enqueue(n *proxy.Node) {
	if n == nil {
		return
	}
	e.queue.Enqueue(n)
}

// Defer queues n for the next flush rather than the current one.
func (e *Engine) Defer(n *proxy.Node) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deferred = append(e.deferred, n)
}

// Flush drains the queue, running every notification hook over every
// dequeued node in registration order. Nodes enqueued during the flush are
// processed by the same flush.
//
// ERROR HANDLING: hook errors are logged with node context and processing
// continues. Identity violations panic and are not recovered. If ctx is
// cancelled, draining stops between nodes and the remaining nodes stay
// queued for the next flush.
//
// Returns the number of nodes processed.
func (e *Engine) Flush(ctx context.Context) (int, error) {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	e.sealed.Store(true)
	tick := e.clock.Next()
	processed := 0

	for {
		if err := ctx.Err(); err != nil {
			e.requeueDeferred()
			slog.Warn("flush interrupted", "tick", tick, "processed", processed, "remaining", e.queue.Len())
			return processed, err
		}

		n, ok := e.queue.TryDequeue()
		if !ok {
			break
		}
		processed++

		for i, h := range e.notifyHooks {
			if err := h.Notify(ctx, n, e.reg); err != nil {
				logHookError(tick, i, n, err)
			}
		}
	}

	deferred := e.requeueDeferred()

	if processed > 0 {
		slog.Debug("flush complete",
			"tick", tick,
			"processed", processed,
			"deferred", deferred,
			"identities", e.reg.Len(),
		)
	}
	return processed, nil
}

func (e *Engine) requeueDeferred() int {
	e.mu.Lock()
	deferred := e.deferred
	e.deferred = nil
	e.mu.Unlock()

	for _, n := range deferred {
		e.queue.Enqueue(n)
	}
	return len(deferred)
}

// AddInitHook appends an initialization hook. Fails once sealed.
func (e *Engine) AddInitHook(h InitHook) error {
	if e.sealed.Load() {
		return NewSealedError("init hook")
	}
	e.initHooks = append(e.initHooks, h)
	return nil
}

// AddNotifyHook appends a notification hook. Fails once sealed.
func (e *Engine) AddNotifyHook(h NotifyHook) error {
	if e.sealed.Load() {
		return NewSealedError("notify hook")
	}
	e.notifyHooks = append(e.notifyHooks, h)
	return nil
}

// RegisterPlugin adds name to the collection capability table.
func (e *Engine) RegisterPlugin(name string, p proxy.Plugin) error {
	if e.sealed.Load() {
		return NewSealedError("plugin " + name)
	}
	if _, exists := e.plugins[name]; exists {
		return fmt.Errorf("duplicate plugin: %s", name)
	}
	e.plugins[name] = p
	return nil
}

// SetEventClassifier installs the classifier used to accept event names.
func (e *Engine) SetEventClassifier(c EventClassifier) error {
	if e.sealed.Load() {
		return NewSealedError("event classifier")
	}
	e.events = c
	return nil
}

// Use installs an extension.
func (e *Engine) Use(ext Extension) error {
	if e.sealed.Load() {
		return NewSealedError(fmt.Sprintf("extension %T", ext))
	}
	return ext.Install(e)
}

// Seal closes setup. Flush seals implicitly.
func (e *Engine) Seal() { e.sealed.Store(true) }

// Sealed reports whether setup has closed.
func (e *Engine) Sealed() bool { return e.sealed.Load() }

// Plugin implements proxy.Runtime.
func (e *Engine) Plugin(name string) (proxy.Plugin, bool) {
	p, ok := e.plugins[name]
	return p, ok
}

// KnownEvent implements proxy.Runtime.
func (e *Engine) KnownEvent(name string) bool {
	if e.events == nil {
		return false
	}
	_, ok := e.events.Classify(name)
	return ok
}

// NotifyHookCount returns the number of registered notification hooks.
func (e *Engine) NotifyHookCount() int { return len(e.notifyHooks) }

// logHookError logs a hook failure with full node context.
func logHookError(tick int64, hook int, n *proxy.Node, err error) {
	slog.Error("notify hook failed",
		"error", err,
		"tick", tick,
		"hook", hook,
		"identity", n.Identity(),
		"kind", n.Kind().String(),
		"tag", n.Tag(),
	)
}

package harness

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/roach88/parallel/internal/config"
	"github.com/roach88/parallel/internal/engine"
	"github.com/roach88/parallel/internal/events"
	"github.com/roach88/parallel/internal/host"
	"github.com/roach88/parallel/internal/host/memdom"
	"github.com/roach88/parallel/internal/patch"
	"github.com/roach88/parallel/internal/proxy"
	"github.com/roach88/parallel/internal/testutil"
)

// Option configures a scenario run.
type Option func(*options)

type options struct {
	session string
	sink    patch.Sink
	cfg     *config.Config
}

// WithSession records the run under session instead of the scenario's
// fixed token.
func WithSession(session string) Option {
	return func(o *options) { o.session = session }
}

// WithSink also journals every patch to sink (usually the SQLite store).
func WithSink(sink patch.Sink) Option {
	return func(o *options) { o.sink = sink }
}

// WithConfig supplies the engine configuration. Scenario event classes are
// merged on top of cfg.Events.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// Harness is the scenario execution context: one document, one engine and
// one patch log per run.
type Harness struct {
	doc    *memdom.Document
	engine *engine.Engine
	log    *patch.Log
	result *Result
}

// Run executes a scenario against a manually stepped scheduler.
//
// Every tick step advances the host exactly one tick; one final tick
// settles writes made after the last tick step. Runs are fully
// deterministic: the same scenario always yields the same trace.
//
// Execution flow:
// 1. Parse the document into a fresh in-memory tree
// 2. Build the engine with journal, standard plugins and event bridge
// 3. Apply steps in order, ticking on tick steps
// 4. Settle, then evaluate assertions
func Run(ctx context.Context, s *Scenario, opts ...Option) (*Result, error) {
	h, err := newHarness(s, opts...)
	if err != nil {
		return nil, err
	}

	sched := testutil.NewManualScheduler()
	ticker := engine.NewTicker(h.engine, sched)
	ticker.Start(ctx)
	sched.Ready()

	for i, st := range s.Steps {
		if st.Op == OpTick {
			for n := 0; n < tickCount(st); n++ {
				sched.Step()
			}
			continue
		}
		if err := h.apply(st); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	sched.Step()
	ticker.Stop()

	return h.finish(s, ticker.Ticks()), nil
}

// RunLive executes a scenario on a real host loop ticking every interval.
//
// Steps are posted to the loop goroutine; tick steps wait for the loop's
// next completed tick. The result matches Run for the same scenario.
func RunLive(ctx context.Context, s *Scenario, interval time.Duration, opts ...Option) (*Result, error) {
	h, err := newHarness(s, opts...)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	loop := host.NewLoop(interval)
	ticker := engine.NewTicker(h.engine, loop)
	ticker.Start(runCtx)

	loopErr := make(chan error, 1)
	go func() { loopErr <- loop.Run(runCtx) }()

	stop := func() {
		ticker.Stop()
		loop.Stop()
		<-loopErr
	}

	waitTick := func() error {
		_, err := ticker.WaitTick(ctx, ticker.Ticks())
		return err
	}

	for i, st := range s.Steps {
		if st.Op == OpTick {
			for n := 0; n < tickCount(st); n++ {
				if err := waitTick(); err != nil {
					stop()
					return nil, fmt.Errorf("step %d: %w", i, err)
				}
			}
			continue
		}

		done := make(chan error, 1)
		st := st
		if !loop.Post(func() { done <- h.apply(st) }) {
			stop()
			return nil, fmt.Errorf("step %d: host loop stopped", i)
		}
		select {
		case err := <-done:
			if err != nil {
				stop()
				return nil, fmt.Errorf("step %d: %w", i, err)
			}
		case <-ctx.Done():
			stop()
			return nil, ctx.Err()
		}
	}

	if err := waitTick(); err != nil {
		stop()
		return nil, fmt.Errorf("settle: %w", err)
	}
	stop()

	return h.finish(s, ticker.Ticks()), nil
}

func newHarness(s *Scenario, opts ...Option) (*Harness, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	doc, err := memdom.Parse(s.Document)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	cfg := config.Default()
	if o.cfg != nil {
		cfg = &config.Config{Tick: o.cfg.Tick, Database: o.cfg.Database, Events: cloneClasses(o.cfg.Events)}
	}
	if err := cfg.MergeEvents(s.Events); err != nil {
		return nil, fmt.Errorf("scenario events: %w", err)
	}

	session := o.session
	if session == "" {
		session = testutil.NewFixedSessionGenerator(s.Session).Generate()
	}

	log := patch.NewLog()
	var sink patch.Sink = log
	if o.sink != nil {
		sink = patch.Multi(log, o.sink)
	}

	e := engine.New(doc, engine.WithJournal(sink, session))
	if err := engine.RegisterStandardPlugins(e); err != nil {
		return nil, err
	}

	bridge, err := events.NewBridge(cfg.Events)
	if err != nil {
		return nil, err
	}
	if err := e.Use(bridge); err != nil {
		return nil, fmt.Errorf("install event bridge: %w", err)
	}

	result := NewResult()
	result.Session = session

	return &Harness{doc: doc, engine: e, log: log, result: result}, nil
}

// apply expresses one step as intent on the engine.
// Must run on the goroutine that flushes.
func (h *Harness) apply(st Step) error {
	e := h.engine

	switch st.Op {
	case OpAttr:
		e.Select(st.Select).SetAttr(st.Key, st.Value)
	case OpRemoveAttr:
		e.Select(st.Select).RemoveAttr(st.Key)
	case OpText:
		e.Select(st.Select).SetText(st.Value)
	case OpAppend:
		e.Select(st.Select).Append(e.Fragment(st.Markup))
	case OpOn:
		e.Select(st.Select).On(st.Event, h.handler(st))
	case OpOff:
		e.Select(st.Select).Off(st.Event)
	case OpTrigger:
		e.Select(st.Select).Trigger(st.Event)
	case OpReady:
		e.Document(st.Filter).Ready(func(*proxy.Collection) {
			h.result.Calls[st.Handler]++
			if st.Select != "" {
				setAll(e.Select(st.Select), st.Set)
			}
		})
	case OpCall:
		args := make([]any, len(st.Args))
		for i, a := range st.Args {
			args[i] = a
		}
		e.Select(st.Select).Call(st.Plugin, args...)
	default:
		return fmt.Errorf("unknown op %q", st.Op)
	}
	return nil
}

// handler returns a counting event handler that writes st.Set to the
// event target.
func (h *Harness) handler(st Step) proxy.Handler {
	return func(ev proxy.Event) {
		h.result.Calls[st.Handler]++
		setAll(ev.Target, st.Set)
	}
}

func (h *Harness) finish(s *Scenario, ticks int64) *Result {
	h.result.Trace = h.log.Patches()
	h.result.Ticks = ticks

	digest, err := patch.TraceDigest(h.result.Trace)
	if err != nil {
		h.result.AddError(err.Error())
	}
	h.result.Digest = digest

	for _, msg := range EvaluateAssertions(h, s.Assertions) {
		h.result.AddError(msg)
	}
	return h.result
}

func setAll(c *proxy.Collection, attrs map[string]string) {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		c.SetAttr(k, attrs[k])
	}
}

func tickCount(st Step) int {
	if st.Count == 0 {
		return 1
	}
	return st.Count
}

func cloneClasses(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for class, names := range in {
		out[class] = append([]string(nil), names...)
	}
	return out
}

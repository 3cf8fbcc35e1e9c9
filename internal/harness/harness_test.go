package harness

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/parallel/internal/config"
	"github.com/roach88/parallel/internal/patch"
)

func loadScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func requirePass(t *testing.T, result *Result) {
	t.Helper()
	require.True(t, result.Pass, "scenario failed:\n%s", strings.Join(result.Errors, "\n"))
}

func TestRun_Scenarios(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			s, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(context.Background(), s)
			require.NoError(t, err)
			requirePass(t, result)
		})
	}
}

func TestRunWithGolden(t *testing.T) {
	for _, name := range []string{"toggle_class", "append_items", "class_plugins"} {
		t.Run(name, func(t *testing.T) {
			result, err := RunWithGolden(t, loadScenario(t, name))
			require.NoError(t, err)
			requirePass(t, result)
		})
	}
}

func TestAssertGolden_ExistingResult(t *testing.T) {
	s := loadScenario(t, "append_items")

	result, err := Run(context.Background(), s, WithSink(patch.NewLog()))
	require.NoError(t, err)

	require.NoError(t, AssertGolden(t, s.Name, result))
}

func TestRun_Deterministic(t *testing.T) {
	s := loadScenario(t, "toggle_class")

	first, err := Run(context.Background(), s)
	require.NoError(t, err)
	second, err := Run(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, first.Trace, second.Trace)
	assert.Equal(t, first.Ticks, second.Ticks)
	assert.Equal(t, patch.MustTraceDigest(first.Trace), first.Digest)
	assert.Equal(t, first.Digest, second.Digest)
}

func TestRun_TickCounting(t *testing.T) {
	result, err := Run(context.Background(), loadScenario(t, "ready_after_append"))
	require.NoError(t, err)
	requirePass(t, result)

	// One tick, then two, then the settling tick.
	assert.Equal(t, int64(4), result.Ticks)
}

func TestRun_SessionDefaults(t *testing.T) {
	s := loadScenario(t, "append_items")

	result, err := Run(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, "test-session-default", result.Session)
	for _, p := range result.Trace {
		assert.Equal(t, "test-session-default", p.Session)
	}
}

func TestRun_WithSessionAndSink(t *testing.T) {
	s := loadScenario(t, "toggle_class")
	sink := patch.NewLog()

	result, err := Run(context.Background(), s, WithSession("run-7"), WithSink(sink))
	require.NoError(t, err)
	requirePass(t, result)

	assert.Equal(t, "run-7", result.Session)
	assert.Equal(t, result.Trace, sink.Patches())
	for _, p := range sink.Patches() {
		assert.Equal(t, "run-7", p.Session)
	}
}

func TestRun_ScenarioEvents(t *testing.T) {
	s := &Scenario{
		Name:        "touch",
		Description: "custom event class",
		Document:    `<div id="pad"></div>`,
		Events:      map[string][]string{"TouchEvents": {"touchstart"}},
		Steps: []Step{
			{Op: OpOn, Select: "#pad", Event: "touchstart", Handler: "touched", Set: map[string]string{"data-touched": "1"}},
			{Op: OpTick},
			{Op: OpTrigger, Select: "#pad", Event: "touchstart"},
		},
		Assertions: []Assertion{
			{Type: AssertHandlerCalls, Handler: "touched", Count: 1},
			{Type: AssertAttr, Select: "#pad", Key: "data-touched", Expect: "1"},
		},
	}

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	requirePass(t, result)

	dispatches := 0
	for _, p := range result.Trace {
		if p.Op == patch.OpDispatch {
			dispatches++
			assert.Equal(t, "TouchEvents", p.Value)
		}
	}
	assert.Equal(t, 1, dispatches)
}

func TestRun_OverlappingScenarioEvents(t *testing.T) {
	s := &Scenario{
		Name:        "overlap",
		Description: "click cannot be in two classes",
		Document:    `<div></div>`,
		Events:      map[string][]string{"TouchEvents": {"click"}},
		Steps:       []Step{{Op: OpTick}},
		Assertions:  []Assertion{{Type: AssertPatchCount}},
	}

	_, err := Run(context.Background(), s)

	assert.ErrorContains(t, err, "scenario events")
}

func TestRun_WithConfigEvents(t *testing.T) {
	cfg := config.Default()
	cfg.Events["TouchEvents"] = []string{"touchend"}

	s := &Scenario{
		Name:        "config_events",
		Description: "classes from config",
		Document:    `<div id="pad"></div>`,
		Steps: []Step{
			{Op: OpOn, Select: "#pad", Event: "touchend", Handler: "h"},
			{Op: OpTick},
			{Op: OpTrigger, Select: "#pad", Event: "touchend"},
		},
		Assertions: []Assertion{{Type: AssertHandlerCalls, Handler: "h", Count: 1}},
	}

	result, err := Run(context.Background(), s, WithConfig(cfg))
	require.NoError(t, err)
	requirePass(t, result)

	// The caller's config is not modified by the run.
	assert.Equal(t, []string{"touchend"}, cfg.Events["TouchEvents"])
}

func TestRun_UnmappedEventDoesNotFire(t *testing.T) {
	s := &Scenario{
		Name:        "unmapped",
		Description: "unknown event names fail closed",
		Document:    `<div id="a"></div>`,
		Steps: []Step{
			{Op: OpOn, Select: "#a", Event: "tap", Handler: "tap"},
			{Op: OpTick},
			{Op: OpTrigger, Select: "#a", Event: "tap"},
		},
		Assertions: []Assertion{
			{Type: AssertHandlerCalls, Handler: "tap", Count: 0},
			{Type: AssertPatchCount, Count: 0},
		},
	}

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	requirePass(t, result)
}

func TestRun_OffStopsHandler(t *testing.T) {
	s := &Scenario{
		Name:        "off",
		Description: "unbound handlers stay silent",
		Document:    `<button id="b"></button>`,
		Steps: []Step{
			{Op: OpOn, Select: "#b", Event: "click", Handler: "h"},
			{Op: OpTick},
			{Op: OpTrigger, Select: "#b", Event: "click"},
			{Op: OpTick},
			{Op: OpOff, Select: "#b", Event: "click"},
			{Op: OpTick},
			{Op: OpTrigger, Select: "#b", Event: "click"},
		},
		Assertions: []Assertion{
			{Type: AssertHandlerCalls, Handler: "h", Count: 1},
			{Type: AssertPatchCount, Op: "dispatch", Count: 2},
		},
	}

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	requirePass(t, result)
}

func TestRun_TextAndRemove(t *testing.T) {
	s := &Scenario{
		Name:        "text_remove",
		Description: "text writes and attribute removal",
		Document:    `<p id="p" title="old">before</p>`,
		Steps: []Step{
			{Op: OpText, Select: "#p", Value: "after"},
			{Op: OpRemoveAttr, Select: "#p", Key: "title"},
		},
		Assertions: []Assertion{
			{Type: AssertText, Select: "#p", Expect: "after"},
			{Type: AssertAttr, Select: "#p", Key: "title", Absent: true},
			{Type: AssertHTML, Select: "#p", Expect: `<p id="p">after</p>`},
		},
	}

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	requirePass(t, result)
}

func TestRun_FailingAssertionReported(t *testing.T) {
	s := &Scenario{
		Name:        "failing",
		Description: "expects the wrong value",
		Document:    `<div id="a"></div>`,
		Steps:       []Step{{Op: OpAttr, Select: "#a", Key: "class", Value: "x"}},
		Assertions: []Assertion{
			{Type: AssertAttr, Select: "#a", Key: "class", Expect: "y"},
		},
	}

	result, err := Run(context.Background(), s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Assertion failed: attr")
	assert.Contains(t, result.Errors[0], `class="x"`)
	assert.Contains(t, result.Errors[0], "[1] tick=1 #0 set_attr class=\"x\"")
}

func TestRunLive_MatchesManualRun(t *testing.T) {
	s := loadScenario(t, "toggle_class")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	live, err := RunLive(ctx, s, time.Millisecond)
	require.NoError(t, err)
	requirePass(t, live)

	manual, err := Run(context.Background(), s)
	require.NoError(t, err)

	// Tick numbers depend on timing; the sequence of mutations does not.
	require.Len(t, live.Trace, len(manual.Trace))
	for i := range manual.Trace {
		assert.Equal(t, manual.Trace[i].Op, live.Trace[i].Op)
		assert.Equal(t, manual.Trace[i].Key, live.Trace[i].Key)
		assert.Equal(t, manual.Trace[i].Value, live.Trace[i].Value)
	}
	assert.Equal(t, manual.Calls, live.Calls)
}

func TestRunLive_ContextCancelled(t *testing.T) {
	s := loadScenario(t, "ready_after_append")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RunLive(ctx, s, time.Millisecond)

	assert.Error(t, err)
}

package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/parallel/internal/host"
)

// fakeRuntime records enqueues and serves a fixed plugin table.
type fakeRuntime struct {
	enqueued []*Node
	plugins  map[string]Plugin
	events   map[string]bool
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		plugins: make(map[string]Plugin),
		events:  map[string]bool{"click": true},
	}
}

func (r *fakeRuntime) Enqueue(n *Node) { r.enqueued = append(r.enqueued, n) }

func (r *fakeRuntime) Plugin(name string) (Plugin, bool) {
	p, ok := r.plugins[name]
	return p, ok
}

func (r *fakeRuntime) KnownEvent(name string) bool { return r.events[name] }

func seeded(rt Runtime, id int, attrs ...host.Attr) *Node {
	n := NewElement(rt, id, "div")
	n.Seed(attrs, "")
	return n
}

func TestCollection_EmptyIsNoop(t *testing.T) {
	rt := newFakeRuntime()
	c := NewCollection(rt, false)

	assert.Same(t, c, c.SetAttr("a", "b"))
	assert.Same(t, c, c.RemoveAttr("a"))
	assert.Same(t, c, c.SetText("x"))
	assert.Same(t, c, c.Append(NewCollection(rt, true, NewFragment(rt, "obj", "li"))))
	assert.Same(t, c, c.On("click", func(Event) {}))
	assert.Same(t, c, c.Trigger("click"))

	_, ok := c.Attr("a")
	assert.False(t, ok)
	_, ok = c.Text()
	assert.False(t, ok)
	assert.Empty(t, rt.enqueued)
}

func TestCollection_AttrReadsFirstDesired(t *testing.T) {
	rt := newFakeRuntime()
	a := seeded(rt, 0, host.Attr{Name: "id", Value: "a"})
	b := seeded(rt, 1, host.Attr{Name: "id", Value: "b"})
	c := NewCollection(rt, false, a, b)

	v, ok := c.Attr("id")
	require.True(t, ok)
	assert.Equal(t, "a", v)
}

func TestCollection_SetAttrWritesDesiredOnly(t *testing.T) {
	rt := newFakeRuntime()
	a := seeded(rt, 0)
	b := seeded(rt, 1)
	c := NewCollection(rt, false, a, b)

	c.SetAttr("width", 42)

	for _, n := range []*Node{a, b} {
		v, ok := n.Desired.Get("width")
		assert.True(t, ok)
		assert.Equal(t, "42", v, "values are stringified")
		_, ok = n.Observed.Get("width")
		assert.False(t, ok, "observed is untouched until flush")
	}
	assert.Equal(t, []*Node{a, b}, rt.enqueued)
}

func TestCollection_LastWriteWinsInDesired(t *testing.T) {
	rt := newFakeRuntime()
	c := NewCollection(rt, false, seeded(rt, 0))

	c.SetAttr("class", "v1").SetAttr("class", "v2")

	v, _ := c.Attr("class")
	assert.Equal(t, "v2", v)
	assert.Len(t, rt.enqueued, 2, "each write enqueues; duplicates are allowed")
}

func TestCollection_RemoveAttrTombstones(t *testing.T) {
	rt := newFakeRuntime()
	n := seeded(rt, 0, host.Attr{Name: "hidden", Value: ""})
	c := NewCollection(rt, false, n)

	c.RemoveAttr("hidden")

	_, ok := c.Attr("hidden")
	assert.False(t, ok, "tombstone reads as absent")
	assert.True(t, n.Desired.Attrs["hidden"].Unset)
}

func TestCollection_Text(t *testing.T) {
	rt := newFakeRuntime()
	c := NewCollection(rt, false, seeded(rt, 0))

	c.SetText(3.5)

	v, ok := c.Text()
	require.True(t, ok)
	assert.Equal(t, "3.5", v)
}

func TestCollection_AppendRequiresFragment(t *testing.T) {
	rt := newFakeRuntime()
	parent := seeded(rt, 0)
	c := NewCollection(rt, false, parent)

	c.Append(NewCollection(rt, false, seeded(rt, 1)))

	assert.Empty(t, parent.pendingAppends)
	assert.Empty(t, rt.enqueued)
}

func TestCollection_AppendAccumulatesOnFirstNode(t *testing.T) {
	rt := newFakeRuntime()
	first := seeded(rt, 0)
	second := seeded(rt, 1)
	c := NewCollection(rt, false, first, second)

	a := NewFragment(rt, "a", "li")
	b := NewFragment(rt, "b", "li")
	cc := NewFragment(rt, "c", "li")

	c.Append(NewCollection(rt, true, a, b))
	c.Append(NewCollection(rt, true, cc))

	assert.Equal(t, []*Node{a, b, cc}, first.TakeAppends())
	assert.Empty(t, second.pendingAppends)
	assert.Empty(t, first.TakeAppends(), "take drains")
}

func TestCollection_OnTriggerOff(t *testing.T) {
	rt := newFakeRuntime()
	n := seeded(rt, 0)
	c := NewCollection(rt, false, n)

	c.On("click", func(Event) {}).Trigger("click").Off("click")

	bindings := n.TakeBindings()
	require.Len(t, bindings, 1)
	assert.Equal(t, "click", bindings[0].Name)
	assert.NotNil(t, bindings[0].Handler)

	triggers := n.TakeTriggers()
	require.Len(t, triggers, 1)
	assert.Nil(t, triggers[0].Handler)

	assert.Equal(t, []string{"click"}, n.TakeUnbinds())
}

func TestCollection_UnmappedEventRejected(t *testing.T) {
	rt := newFakeRuntime()
	n := seeded(rt, 0)
	c := NewCollection(rt, false, n)

	got := c.On("nonsense", func(Event) {}).Trigger("nonsense")

	assert.Same(t, c, got)
	assert.Empty(t, n.TakeBindings())
	assert.Empty(t, n.TakeTriggers())
	assert.Empty(t, rt.enqueued)
}

func TestCollection_ReadyOnlyOnDocument(t *testing.T) {
	rt := newFakeRuntime()
	el := seeded(rt, 0)
	doc := NewDocument(rt, 1, "")
	c := NewCollection(rt, false, el, doc)

	c.Ready(func(*Collection) {})

	assert.False(t, el.Armed())
	assert.True(t, doc.Armed())
	assert.Equal(t, []*Node{doc}, rt.enqueued)

	assert.NotNil(t, doc.FireReady())
	assert.Nil(t, doc.FireReady(), "fires once per arming")
}

func TestCollection_EachIsPureTraversal(t *testing.T) {
	rt := newFakeRuntime()
	a, b := seeded(rt, 0), seeded(rt, 1)
	c := NewCollection(rt, false, a, b)

	var seen []int
	c.Each(func(n *Node, i int, whole *Collection) {
		assert.Same(t, c, whole)
		assert.Same(t, c.At(i), n)
		seen = append(seen, n.Identity())
	})

	assert.Equal(t, []int{0, 1}, seen)
	assert.Empty(t, rt.enqueued)
}

func TestCollection_CallPlugin(t *testing.T) {
	rt := newFakeRuntime()
	rt.plugins["mark"] = func(c *Collection, args ...any) *Collection {
		return c.SetAttr("data-mark", args[0])
	}
	c := NewCollection(rt, false, seeded(rt, 0))

	c.Call("mark", "yes").Call("missing")

	v, ok := c.Attr("data-mark")
	assert.True(t, ok)
	assert.Equal(t, "yes", v)
}

func TestNode_Attach(t *testing.T) {
	rt := newFakeRuntime()
	n := NewFragment(rt, "obj", "li")

	assert.Equal(t, NoIdentity, n.Identity())
	assert.Equal(t, KindFragment, n.Kind())
	assert.Equal(t, "obj", n.Detached())

	n.Attach(7)

	assert.Equal(t, 7, n.Identity())
	assert.Equal(t, KindElement, n.Kind())
	assert.Nil(t, n.Detached())

	n.Attach(9)
	assert.Equal(t, 7, n.Identity(), "attach is a no-op on elements")
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "element", KindElement.String())
	assert.Equal(t, "fragment", KindFragment.String())
	assert.Equal(t, "document", KindDocument.String())
	assert.Equal(t, "unknown", Kind(0).String())
}

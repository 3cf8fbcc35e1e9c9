// Package memdom is an in-memory external object tree.
//
// It implements host.Host over golang.org/x/net/html nodes: documents and
// fragments are parsed with the HTML5 parser, patterns are CSS selectors
// compiled by cascadia, and events are delivered synchronously to listeners
// installed on the document root. External objects are *html.Node values.
package memdom

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/roach88/parallel/internal/host"
)

// ErrNotNode is returned when an object is not a *html.Node from this package.
var ErrNotNode = errors.New("memdom: object is not an *html.Node")

// Dispatched records one synthetic event dispatch.
type Dispatched struct {
	Target     *html.Node
	Name       string
	Class      string
	Bubbles    bool
	Cancelable bool
}

// Document is an in-memory tree implementing host.Host.
//
// Thread-safety: listener bookkeeping is locked; tree mutation is not and
// must happen on the engine's loop goroutine, like any external tree.
type Document struct {
	root *html.Node

	mu         sync.Mutex
	listeners  map[string][]host.Listener
	dispatched []Dispatched
}

var _ host.Host = (*Document)(nil)

// Parse builds a document from markup.
func Parse(markup string) (*Document, error) {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return &Document{
		root:      root,
		listeners: make(map[string][]host.Listener),
	}, nil
}

// MustParse is Parse that panics on error. Intended for tests.
func MustParse(markup string) *Document {
	d, err := Parse(markup)
	if err != nil {
		panic(err)
	}
	return d
}

// Query implements host.Querier: every element matching the selector group,
// in document order.
func (d *Document) Query(pattern string) ([]host.Object, error) {
	sel, err := cascadia.ParseGroup(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile selector %q: %w", pattern, err)
	}
	matches := cascadia.QueryAll(d.root, sel)
	out := make([]host.Object, len(matches))
	for i, n := range matches {
		out[i] = n
	}
	return out, nil
}

// Parse implements host.Parser. The returned nodes are detached and parsed
// in a body context.
func (d *Document) Parse(markup string) ([]host.Object, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(markup), body)
	if err != nil {
		return nil, fmt.Errorf("parse fragment: %w", err)
	}
	out := make([]host.Object, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n)
	}
	return out, nil
}

// Kind implements host.Inspector: the lower-case tag name for elements,
// "#document" for the root and "#text" for text nodes.
func (d *Document) Kind(obj host.Object) string {
	n, ok := obj.(*html.Node)
	if !ok {
		return ""
	}
	switch n.Type {
	case html.ElementNode:
		return strings.ToLower(n.Data)
	case html.DocumentNode:
		return "#document"
	case html.TextNode:
		return "#text"
	default:
		return "#other"
	}
}

// Attributes implements host.Inspector.
func (d *Document) Attributes(obj host.Object) []host.Attr {
	n, ok := obj.(*html.Node)
	if !ok {
		return nil
	}
	out := make([]host.Attr, len(n.Attr))
	for i, a := range n.Attr {
		out[i] = host.Attr{Name: a.Key, Value: a.Val}
	}
	return out
}

// Text implements host.Inspector: the concatenated text content.
func (d *Document) Text(obj host.Object) string {
	n, ok := obj.(*html.Node)
	if !ok {
		return ""
	}
	var b strings.Builder
	collectText(&b, n)
	return b.String()
}

func collectText(b *strings.Builder, n *html.Node) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(b, c)
	}
}

// SetAttribute implements host.Mutator.
func (d *Document) SetAttribute(_ context.Context, obj host.Object, key, value string) error {
	n, err := element(obj)
	if err != nil {
		return err
	}
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = value
			return nil
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: value})
	return nil
}

// RemoveAttribute implements host.Mutator. Removing an absent attribute is
// not an error.
func (d *Document) RemoveAttribute(_ context.Context, obj host.Object, key string) error {
	n, err := element(obj)
	if err != nil {
		return err
	}
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Key != key {
			kept = append(kept, a)
		}
	}
	n.Attr = kept
	return nil
}

// SetText implements host.Mutator: all children are replaced by one text
// node (none for empty text).
func (d *Document) SetText(_ context.Context, obj host.Object, text string) error {
	n, err := element(obj)
	if err != nil {
		return err
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	if text != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
	return nil
}

// AppendChild implements host.Mutator. An attached child is moved.
func (d *Document) AppendChild(_ context.Context, parent, child host.Object) error {
	p, err := element(parent)
	if err != nil {
		return err
	}
	c, ok := child.(*html.Node)
	if !ok {
		return ErrNotNode
	}
	for a := p; a != nil; a = a.Parent {
		if a == c {
			return fmt.Errorf("append %s under its own descendant", d.Kind(c))
		}
	}
	if c.Parent != nil {
		c.Parent.RemoveChild(c)
	}
	p.AppendChild(c)
	return nil
}

// Root implements host.Events.
func (d *Document) Root() host.Object { return d.root }

// AddListener implements host.Events. Only root (delegated) listeners are
// supported.
func (d *Document) AddListener(root host.Object, name string, fn host.Listener) error {
	if root != host.Object(d.root) {
		return fmt.Errorf("listener for %q: only the document root accepts listeners", name)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[name] = append(d.listeners[name], fn)
	return nil
}

// Dispatch implements host.Events. Root listeners see the event if it
// bubbles or if it was dispatched on the root itself. Listeners run
// synchronously, before Dispatch returns.
func (d *Document) Dispatch(_ context.Context, obj host.Object, name, class string, bubbles, cancelable bool) error {
	n, ok := obj.(*html.Node)
	if !ok {
		return ErrNotNode
	}

	d.mu.Lock()
	d.dispatched = append(d.dispatched, Dispatched{
		Target: n, Name: name, Class: class, Bubbles: bubbles, Cancelable: cancelable,
	})
	listeners := append([]host.Listener(nil), d.listeners[name]...)
	d.mu.Unlock()

	if !bubbles && n != d.root {
		return nil
	}
	if n != d.root && !attached(n, d.root) {
		return nil
	}
	for _, fn := range listeners {
		fn(n)
	}
	return nil
}

// Dispatched returns every dispatch seen so far.
func (d *Document) Dispatched() []Dispatched {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Dispatched(nil), d.dispatched...)
}

// ListenerCount returns the number of root listeners for name.
func (d *Document) ListenerCount(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.listeners[name])
}

// Render serialises the first element matching pattern.
func (d *Document) Render(pattern string) (string, error) {
	objs, err := d.Query(pattern)
	if err != nil {
		return "", err
	}
	if len(objs) == 0 {
		return "", fmt.Errorf("render: no match for %q", pattern)
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, objs[0].(*html.Node)); err != nil {
		return "", fmt.Errorf("render: %w", err)
	}
	return buf.String(), nil
}

func element(obj host.Object) (*html.Node, error) {
	n, ok := obj.(*html.Node)
	if !ok {
		return nil, ErrNotNode
	}
	if n.Type != html.ElementNode {
		return nil, fmt.Errorf("memdom: cannot mutate non-element node %q", n.Data)
	}
	return n, nil
}

// attached reports whether n is a descendant of root.
func attached(n, root *html.Node) bool {
	for a := n.Parent; a != nil; a = a.Parent {
		if a == root {
			return true
		}
	}
	return false
}

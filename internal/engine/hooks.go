package engine

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/roach88/parallel/internal/host"
	"github.com/roach88/parallel/internal/proxy"
	"github.com/roach88/parallel/internal/registry"
)

// SnapshotHook returns the default init hook: it seeds both snapshots of a
// new node from the object's current attributes and text, so a fresh node
// starts with nothing to reconcile.
func SnapshotHook(in host.Inspector) InitHook {
	return func(n *proxy.Node, obj host.Object) {
		if n.Kind() == proxy.KindDocument {
			return
		}
		n.Seed(in.Attributes(obj), in.Text(obj))
	}
}

// AttributeHook reconciles element nodes: pending appends first, then text,
// then changed or added attributes, then removals. Observed state is
// rebased only after the host accepted each mutation, so a failed mutation
// is retried the next time the node is flushed.
//
// Fragment nodes are skipped until attached. Document nodes go through the
// readiness check instead.
type AttributeHook struct {
	host   host.Host
	engine *Engine
}

// Notify implements NotifyHook.
func (h *AttributeHook) Notify(ctx context.Context, n *proxy.Node, reg *registry.Registry) error {
	switch n.Kind() {
	case proxy.KindFragment:
		slog.Debug("fragment skipped", "tag", n.Tag())
		return nil
	case proxy.KindDocument:
		return h.ready(n)
	}

	obj := reg.Resolve(n.Identity())
	var errs []error

	appended := false
	for _, child := range n.TakeAppends() {
		if err := h.appendChild(ctx, n, obj, child, reg); err != nil {
			errs = append(errs, err)
			continue
		}
		appended = true
	}

	// Appends change the object's text content.
	if appended {
		live := h.host.Text(obj)
		if n.Desired.Text == n.Observed.Text {
			n.Desired.Text = live
		}
		n.Observed.Text = live
	}

	if n.Desired.Text != n.Observed.Text {
		if err := h.host.SetText(ctx, obj, n.Desired.Text); err != nil {
			errs = append(errs, NewHostError("set text", n.Identity(), err))
		} else {
			n.Observed.Text = n.Desired.Text
		}
	}

	keys := make([]string, 0, len(n.Desired.Attrs))
	for k := range n.Desired.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var removals []string
	for _, k := range keys {
		want := n.Desired.Attrs[k]
		if want.Unset {
			removals = append(removals, k)
			continue
		}
		if have, ok := n.Observed.Attrs[k]; ok && have == want {
			continue
		}
		if err := h.host.SetAttribute(ctx, obj, k, want.S); err != nil {
			errs = append(errs, NewHostError("set attribute "+k, n.Identity(), err))
			continue
		}
		n.Observed.Attrs[k] = want
	}

	for _, k := range removals {
		if _, ok := n.Observed.Attrs[k]; !ok {
			delete(n.Desired.Attrs, k)
			continue
		}
		if err := h.host.RemoveAttribute(ctx, obj, k); err != nil {
			errs = append(errs, NewHostError("remove attribute "+k, n.Identity(), err))
			continue
		}
		delete(n.Observed.Attrs, k)
		delete(n.Desired.Attrs, k)
	}

	h.engine.share(n)
	return errors.Join(errs...)
}

// appendChild inserts one pending child under obj. Fragment children are
// identified, attached and queued so their own desired state is reconciled
// in the same flush.
func (h *AttributeHook) appendChild(ctx context.Context, parent *proxy.Node, obj host.Object, child *proxy.Node, reg *registry.Registry) error {
	var childObj host.Object
	switch child.Kind() {
	case proxy.KindFragment:
		childObj = child.Detached()
	case proxy.KindElement:
		childObj = reg.Resolve(child.Identity())
	default:
		err := NewInvalidOperationError("cannot append a "+child.Kind().String()+" node", parent.Identity())
		slog.Debug("append skipped", "error", err)
		return nil
	}

	id := reg.Identify(childObj)
	if err := h.host.AppendChild(ctx, obj, childObj); err != nil {
		return NewHostError("append child", parent.Identity(), err)
	}

	if child.Kind() == proxy.KindFragment {
		child.Attach(id)
		h.engine.attached(child)
	}
	h.engine.Enqueue(child)

	slog.Debug("child appended", "parent", parent.Identity(), "child", id, "tag", child.Tag())
	return nil
}

// ready fires an armed document node once its filter matches. Until then
// the node is deferred to the next tick.
func (h *AttributeHook) ready(n *proxy.Node) error {
	if !n.Armed() {
		return nil
	}

	if filter := n.Filter(); filter != "" {
		objs, err := h.host.Query(filter)
		if err != nil || len(objs) == 0 {
			h.engine.Defer(n)
			if err != nil {
				return NewHostError("query ready filter "+filter, n.Identity(), err)
			}
			slog.Debug("document not ready", "filter", filter)
			return nil
		}
	}

	if fn := n.FireReady(); fn != nil {
		slog.Debug("document ready", "filter", n.Filter())
		fn(h.engine.Wrap(n))
	}
	return nil
}

package engine

import (
	"fmt"
	"strings"

	"github.com/roach88/parallel/internal/proxy"
)

// Standard plugin names.
const (
	PluginAddClass    = "addClass"
	PluginRemoveClass = "removeClass"
)

// RegisterStandardPlugins installs addClass and removeClass.
func RegisterStandardPlugins(e *Engine) error {
	if err := e.RegisterPlugin(PluginAddClass, AddClass); err != nil {
		return err
	}
	return e.RegisterPlugin(PluginRemoveClass, RemoveClass)
}

// AddClass adds every class name in args to each node's class attribute.
// Names already present are kept in place.
func AddClass(c *proxy.Collection, args ...any) *proxy.Collection {
	names := classArgs(args)
	if len(names) == 0 {
		return c
	}
	return c.Each(func(n *proxy.Node, _ int, _ *proxy.Collection) {
		current, _ := n.Desired.Get("class")
		classes := strings.Fields(current)
		changed := false
		for _, name := range names {
			if !containsClass(classes, name) {
				classes = append(classes, name)
				changed = true
			}
		}
		if changed {
			proxy.NewCollection(nil, false, n).SetAttr("class", strings.Join(classes, " "))
		}
	})
}

// RemoveClass removes every class name in args from each node's class
// attribute. An emptied attribute is removed.
func RemoveClass(c *proxy.Collection, args ...any) *proxy.Collection {
	names := classArgs(args)
	if len(names) == 0 {
		return c
	}
	return c.Each(func(n *proxy.Node, _ int, _ *proxy.Collection) {
		current, ok := n.Desired.Get("class")
		if !ok {
			return
		}
		var kept []string
		for _, cls := range strings.Fields(current) {
			if !containsClass(names, cls) {
				kept = append(kept, cls)
			}
		}
		one := proxy.NewCollection(nil, false, n)
		if len(kept) == 0 {
			one.RemoveAttr("class")
		} else {
			one.SetAttr("class", strings.Join(kept, " "))
		}
	})
}

func classArgs(args []any) []string {
	var out []string
	for _, a := range args {
		out = append(out, strings.Fields(fmt.Sprint(a))...)
	}
	return out
}

func containsClass(classes []string, name string) bool {
	for _, c := range classes {
		if c == name {
			return true
		}
	}
	return false
}

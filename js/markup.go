package js

import (
	"github.com/dop251/goja"

	"github.com/chrisuehlinger/hostbridge/dom"
	"github.com/chrisuehlinger/hostbridge/html"
)

// LoadMarkup builds markup into detached nodes and returns the script
// objects of the top-level elements. An element's id attribute becomes its
// id property.
func (r *Runtime) LoadMarkup(markup string) ([]*goja.Object, error) {
	proto := r.prototypeOf("Node")
	wrappers := make(map[*dom.Node]*targetObject)
	tree, err := html.Build(markup, func(name string, opts ...dom.Option) (*dom.Node, error) {
		n, err := dom.NewNode(r.bctx, name, opts...)
		if err != nil {
			return nil, err
		}
		obj := r.wrapTarget(n.EventTarget, n, proto)
		wrappers[n] = r.targetOf(obj)
		return n, nil
	})
	if err != nil {
		return nil, err
	}

	for _, e := range tree.Elements {
		if id, ok := e.Attrs["id"]; ok {
			wrappers[e.Node].props["id"] = r.vm.ToValue(id)
		}
	}
	roots := make([]*goja.Object, len(tree.Roots))
	for i, n := range tree.Roots {
		roots[i] = wrappers[n].self
	}
	return roots, nil
}

func (r *Runtime) parseMarkup(call goja.FunctionCall) goja.Value {
	if len(call.Arguments) < 1 {
		r.typeError("Failed to execute 'parseMarkup': 1 argument required, but only 0 present.")
	}
	roots, err := r.LoadMarkup(call.Arguments[0].String())
	if err != nil {
		r.throw(err)
	}
	items := make([]any, len(roots))
	for i, obj := range roots {
		items[i] = obj
	}
	return r.vm.NewArray(items...)
}

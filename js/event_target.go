package js

import (
	"errors"
	"runtime"
	"slices"
	"strings"
	"weak"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/chrisuehlinger/hostbridge/bridge"
	"github.com/chrisuehlinger/hostbridge/dom"
)

// reserved names are answered by the wrapper itself and cannot be assigned.
var reserved = map[string]bool{
	"addEventListener":    true,
	"removeEventListener": true,
	"dispatchEvent":       true,
	"__clearListeners__":  true,
	"targetId":            true,
}

var nodeReserved = map[string]bool{
	"appendChild": true,
	"removeChild": true,
	"parentNode":  true,
	"firstChild":  true,
	"nextSibling": true,
	"childNodes":  true,
	"nodeName":    true,
}

// targetObject is the script face of an event target. Unknown properties
// fall through to the host when it has installed an invoker, and to plain
// expando storage otherwise.
type targetObject struct {
	r    *Runtime
	t    *dom.EventTarget
	node *dom.Node
	self *goja.Object

	methods map[string]goja.Value
	props   map[string]goja.Value
	handles map[*goja.Object]*dom.Handle

	cleanup runtime.Cleanup
}

// collectRef identifies a target whose script object was collected without
// an explicit dispose.
type collectRef struct {
	pool *bridge.Pool
	ctx  bridge.ContextID
	id   int64
}

func collectTarget(ref collectRef) {
	bridge.ScheduleDisposal(ref.pool, ref.ctx, ref.id)
}

// jsListener runs a script function with the owning target as this.
type jsListener struct {
	to *targetObject
	fn goja.Callable
	fo *goja.Object
}

func (l *jsListener) HandleEvent(ev *dom.Event) error {
	_, err := l.fn(l.to.self, l.to.r.eventObject(ev))
	return err
}

// NewTarget creates an EventTarget and returns its script object.
func (r *Runtime) NewTarget(opts ...dom.Option) (*goja.Object, error) {
	t, err := dom.NewEventTarget(r.bctx, opts...)
	if err != nil {
		return nil, err
	}
	return r.wrapTarget(t, nil, r.prototypeOf("EventTarget")), nil
}

// NewNode creates a detached Node and returns its script object.
func (r *Runtime) NewNode(name string, opts ...dom.Option) (*goja.Object, error) {
	n, err := dom.NewNode(r.bctx, name, opts...)
	if err != nil {
		return nil, err
	}
	return r.wrapTarget(n.EventTarget, n, r.prototypeOf("Node")), nil
}

// DisposeTarget destroys the target behind obj.
func (r *Runtime) DisposeTarget(obj *goja.Object) error {
	to := r.targetOf(obj)
	if to == nil {
		return errors.New("not an event target")
	}
	to.dispose()
	return nil
}

// Target returns the event target behind obj, or nil.
func (r *Runtime) Target(obj *goja.Object) *dom.EventTarget {
	if to := r.targetOf(obj); to != nil {
		return to.t
	}
	return nil
}

func (r *Runtime) wrapTarget(t *dom.EventTarget, n *dom.Node, proto *goja.Object) *goja.Object {
	to := &targetObject{
		r:       r,
		t:       t,
		node:    n,
		methods: make(map[string]goja.Value),
		props:   make(map[string]goja.Value),
		handles: make(map[*goja.Object]*dom.Handle),
	}
	obj := r.vm.NewDynamicObject(to)
	if proto != nil {
		_ = obj.SetPrototype(proto)
	}
	to.self = obj
	r.targets[t.ID()] = weak.Make(to)

	t.AddReleaseHook(to.release)
	t.SetHostDispatcher(to.dispatchFromHost)
	to.cleanup = runtime.AddCleanup(to, collectTarget, collectRef{
		pool: r.bctx.Pool(),
		ctx:  r.bctx.ID(),
		id:   t.ID(),
	})
	return obj
}

// targetOf returns the wrapper behind obj, or nil if obj is not a live
// target object of this runtime.
func (r *Runtime) targetOf(obj *goja.Object) *targetObject {
	if obj == nil {
		return nil
	}
	if to, ok := obj.Export().(*targetObject); ok && to.r == r && to.self == obj {
		return to
	}
	id := obj.Get("targetId")
	if id == nil {
		return nil
	}
	if to := r.lookup(id.ToInteger()); to != nil && to.self == obj {
		return to
	}
	return nil
}

func (r *Runtime) lookup(id int64) *targetObject {
	wp, ok := r.targets[id]
	if !ok {
		return nil
	}
	to := wp.Value()
	if to == nil {
		delete(r.targets, id)
	}
	return to
}

// targetValue returns the script object of t, or null if it has none.
func (r *Runtime) targetValue(t *dom.EventTarget) goja.Value {
	if t == nil {
		return goja.Null()
	}
	if to := r.lookup(t.ID()); to != nil && to.t == t {
		return to.self
	}
	return goja.Null()
}

func (r *Runtime) nodeValue(n *dom.Node) goja.Value {
	if n == nil {
		return goja.Null()
	}
	return r.targetValue(n.EventTarget)
}

// setupTargetConstructors installs EventTarget and Node.
func (r *Runtime) setupTargetConstructors() {
	r.vm.Set("EventTarget", func(call goja.ConstructorCall) *goja.Object {
		t, err := dom.NewEventTarget(r.bctx)
		if err != nil {
			r.throw(err)
		}
		return r.wrapTarget(t, nil, call.This.Prototype())
	})
	r.vm.Set("Node", func(call goja.ConstructorCall) *goja.Object {
		name := "NODE"
		if len(call.Arguments) > 0 && !goja.IsUndefined(call.Arguments[0]) {
			name = call.Arguments[0].String()
		}
		n, err := dom.NewNode(r.bctx, name)
		if err != nil {
			r.throw(err)
		}
		return r.wrapTarget(n.EventTarget, n, call.This.Prototype())
	})

	if nodeProto, targetProto := r.prototypeOf("Node"), r.prototypeOf("EventTarget"); nodeProto != nil && targetProto != nil {
		_ = nodeProto.SetPrototype(targetProto)
	}
}

// handleFor returns the handle wrapping fo, creating it on first use. The
// cache entry is dropped when the registry releases its last reference.
func (to *targetObject) handleFor(fo *goja.Object, fn goja.Callable) *dom.Handle {
	if h, ok := to.handles[fo]; ok {
		return h
	}
	h := dom.NewHandle(&jsListener{to: to, fn: fn, fo: fo})
	h.OnRelease(func() {
		if to.handles[fo] == h {
			delete(to.handles, fo)
		}
	})
	to.handles[fo] = h
	return h
}

// release runs on every dispose path, so it disarms the collection cleanup.
func (to *targetObject) release() {
	to.cleanup.Stop()
	to.methods = make(map[string]goja.Value)
	to.props = make(map[string]goja.Value)
	to.handles = make(map[*goja.Object]*dom.Handle)
	if wp, ok := to.r.targets[to.t.ID()]; ok && wp.Value() == to {
		delete(to.r.targets, to.t.ID())
	}
}

func (to *targetObject) dispose() {
	to.t.Dispose()
}

// dispatchFromHost routes a host event through the object's dispatchEvent
// so script code observes it like any other dispatch.
func (to *targetObject) dispatchFromHost(ev *dom.Event) {
	fn, ok := goja.AssertFunction(to.self.Get("dispatchEvent"))
	if !ok {
		to.r.logger.Warn("target has no dispatchEvent", zap.Int64("target", to.t.ID()))
		return
	}
	to.r.call(fn, to.self, to.r.eventObject(ev))
}

func (to *targetObject) method(name string) goja.Value {
	if m, ok := to.methods[name]; ok {
		return m
	}
	var fn func(goja.FunctionCall) goja.Value
	switch name {
	case "addEventListener":
		fn = to.addEventListener
	case "removeEventListener":
		fn = to.removeEventListener
	case "dispatchEvent":
		fn = to.dispatchEvent
	case "__clearListeners__":
		fn = func(goja.FunctionCall) goja.Value {
			to.t.ClearEventListeners()
			return goja.Undefined()
		}
	case "appendChild":
		fn = to.appendChild
	case "removeChild":
		fn = to.removeChild
	default:
		return nil
	}
	m := to.r.vm.ToValue(fn)
	to.methods[name] = m
	return m
}

// listenerArgs validates the (kind, callback) pair of add and remove.
func (to *targetObject) listenerArgs(op string, call goja.FunctionCall) (string, *goja.Object, goja.Callable) {
	if len(call.Arguments) != 2 {
		to.r.typeError("Failed to %s: eventName and function parameter are required.", op)
	}
	kind, ok := call.Arguments[0].Export().(string)
	if !ok {
		to.r.typeError("Failed to %s: eventName should be an string.", op)
	}
	fo, isObj := call.Arguments[1].(*goja.Object)
	fn, isFn := goja.AssertFunction(call.Arguments[1])
	if !isObj || !isFn {
		to.r.typeError("Failed to %s: callback should be an function.", op)
	}
	return kind, fo, fn
}

func (to *targetObject) addEventListener(call goja.FunctionCall) goja.Value {
	kind, fo, fn := to.listenerArgs("addEventListener", call)
	if err := to.t.AddEventListener(kind, to.handleFor(fo, fn)); err != nil {
		to.r.throw(err)
	}
	return goja.Undefined()
}

func (to *targetObject) removeEventListener(call goja.FunctionCall) goja.Value {
	kind, fo, _ := to.listenerArgs("removeEventListener", call)
	h, ok := to.handles[fo]
	if !ok {
		return goja.Undefined()
	}
	if err := to.t.RemoveEventListener(kind, h); err != nil {
		to.r.throw(err)
	}
	return goja.Undefined()
}

func (to *targetObject) dispatchEvent(call goja.FunctionCall) goja.Value {
	var ev *dom.Event
	if len(call.Arguments) == 1 {
		ev = to.r.eventOf(call.Arguments[0])
	}
	if ev == nil {
		to.r.typeError("Failed to dispatchEvent: first arguments should be an event object")
	}
	ok, err := to.t.DispatchEvent(ev)
	if err != nil {
		to.r.throw(err)
	}
	return to.r.vm.ToValue(ok)
}

func (to *targetObject) childArg(op string, call goja.FunctionCall) *dom.Node {
	obj, _ := call.Argument(0).(*goja.Object)
	child := to.r.targetOf(obj)
	if child == nil || child.node == nil {
		to.r.typeError("Failed to execute '%s' on 'Node': parameter 1 is not of type 'Node'.", op)
	}
	return child.node
}

func (to *targetObject) appendChild(call goja.FunctionCall) goja.Value {
	child := to.childArg("appendChild", call)
	if _, err := to.node.AppendChild(child); err != nil {
		to.r.throw(err)
	}
	return call.Argument(0)
}

func (to *targetObject) removeChild(call goja.FunctionCall) goja.Value {
	child := to.childArg("removeChild", call)
	if _, err := to.node.RemoveChild(child); err != nil {
		to.r.throw(err)
	}
	return call.Argument(0)
}

func handlerKind(key string) (string, bool) {
	if len(key) > 2 && strings.HasPrefix(key, "on") {
		return key[2:], true
	}
	return "", false
}

// hostBacked reports whether a host invoker serves the object's properties.
// Pending commands are flushed first so a just-announced target is adopted.
// Every host property access flushes, reads and key listings included; it is
// the same flush that precedes any synchronous host call.
func (to *targetObject) hostBacked() bool {
	if to.t.Disposed() {
		return false
	}
	shadow := to.t.Binding().Native()
	if shadow.Invoker() == nil && to.t.Context().Commands().Len() > 0 {
		to.t.Context().FlushCommands()
	}
	return shadow.Invoker() != nil
}

// Get implements goja.DynamicObject. Returning nil defers to the prototype.
func (to *targetObject) Get(key string) goja.Value {
	if reserved[key] {
		if key == "targetId" {
			return to.r.vm.ToValue(to.t.ID())
		}
		return to.method(key)
	}
	if to.node != nil && nodeReserved[key] {
		switch key {
		case "parentNode":
			return to.r.nodeValue(to.node.ParentNode())
		case "firstChild":
			return to.r.nodeValue(to.node.FirstChild())
		case "nextSibling":
			return to.r.nodeValue(to.node.NextSibling())
		case "nodeName":
			return to.r.vm.ToValue(to.node.NodeName())
		case "childNodes":
			children := to.node.ChildNodes()
			items := make([]any, len(children))
			for i, c := range children {
				items[i] = to.r.nodeValue(c)
			}
			return to.r.vm.NewArray(items...)
		}
		return to.method(key)
	}
	if kind, ok := handlerKind(key); ok {
		h := to.t.EventHandler(kind)
		if h == nil {
			return goja.Null()
		}
		if l, ok := h.Listener().(*jsListener); ok {
			return l.fo
		}
		return goja.Null()
	}
	if v, ok := to.props[key]; ok {
		return v
	}
	if to.hostBacked() {
		v, err := to.t.Binding().GetBindingProperty(key)
		if err != nil {
			to.r.logger.Debug("host property read failed",
				zap.Int64("target", to.t.ID()), zap.String("property", key), zap.Error(err))
			return nil
		}
		if v.IsNull() {
			return nil
		}
		return to.r.toValue(v, to)
	}
	return nil
}

// Set implements goja.DynamicObject.
func (to *targetObject) Set(key string, val goja.Value) bool {
	if reserved[key] || (to.node != nil && nodeReserved[key]) {
		return false
	}
	if kind, ok := handlerKind(key); ok {
		var h *dom.Handle
		if fo, isObj := val.(*goja.Object); isObj {
			if fn, isFn := goja.AssertFunction(fo); isFn {
				h = to.handleFor(fo, fn)
			}
		}
		if err := to.t.SetEventHandler(kind, h); err != nil {
			to.r.throw(err)
		}
		return true
	}
	if to.hostBacked() {
		v, err := to.r.toNative(val)
		if err != nil {
			to.r.typeError("Failed to set property '%s': %s", key, err)
		}
		if err := to.t.Binding().SetBindingProperty(key, v); err != nil {
			to.r.throw(err)
		}
		return true
	}
	to.props[key] = val
	return true
}

// Has implements goja.DynamicObject.
func (to *targetObject) Has(key string) bool {
	if reserved[key] || (to.node != nil && nodeReserved[key]) {
		return true
	}
	if kind, ok := handlerKind(key); ok && to.t.EventHandler(kind) != nil {
		return true
	}
	if _, ok := to.props[key]; ok {
		return true
	}
	return slices.Contains(to.hostKeys(), key)
}

// Delete implements goja.DynamicObject.
func (to *targetObject) Delete(key string) bool {
	if reserved[key] || (to.node != nil && nodeReserved[key]) {
		return false
	}
	if kind, ok := handlerKind(key); ok {
		_ = to.t.SetEventHandler(kind, nil)
		return true
	}
	delete(to.props, key)
	return true
}

// Keys implements goja.DynamicObject.
func (to *targetObject) Keys() []string {
	keys := make([]string, 0, len(to.props))
	for k := range to.props {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range to.hostKeys() {
		if _, ok := to.props[k]; !ok {
			keys = append(keys, k)
		}
	}
	return keys
}

func (to *targetObject) hostKeys() []string {
	if !to.hostBacked() {
		return nil
	}
	names, err := to.t.Binding().GetAllBindingPropertyNames()
	if err != nil {
		to.r.logger.Debug("host property names failed", zap.Int64("target", to.t.ID()), zap.Error(err))
		return nil
	}
	return names
}

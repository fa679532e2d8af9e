package bridge

import (
	"sync"
	"sync/atomic"
	"weak"

	"github.com/chrisuehlinger/hostbridge/command"
	"github.com/chrisuehlinger/hostbridge/native"
)

// Announced returns the shadow carried by a create command, or nil once it
// has been collected. Queued commands hold shadows weakly so an unflushed
// create never keeps a target alive.
func Announced(cmd command.Command) *NativeObject {
	switch p := cmd.Native.(type) {
	case weak.Pointer[NativeObject]:
		return p.Value()
	case *NativeObject:
		return p
	}
	return nil
}

// HostInvoker is the host call sink installed on a native shadow. The bridge
// calls it synchronously; the host returns a single value.
type HostInvoker interface {
	InvokeFromNative(obj *NativeObject, method native.Value, args []native.Value) (native.Value, error)
}

// HostInvokerFunc adapts a function to HostInvoker.
type HostInvokerFunc func(obj *NativeObject, method native.Value, args []native.Value) (native.Value, error)

// InvokeFromNative calls f.
func (f HostInvokerFunc) InvokeFromNative(obj *NativeObject, method native.Value, args []native.Value) (native.Value, error) {
	return f(obj, method, args)
}

// BindingTarget is the script-side owner of a native shadow.
type BindingTarget interface {
	// HandleCallFromHost answers a generic call issued by the host. It runs
	// on the script goroutine.
	HandleCallFromHost(method native.Value, args []native.Value) (native.Value, error)
}

// HostEventReceiver is implemented by targets that accept host-originated
// occurrences.
type HostEventReceiver interface {
	DispatchFromHost(ev NativeEvent)
}

// NativeObject is the native shadow of a script-visible binding target. The
// host addresses it by id and installs its invoker on it.
type NativeObject struct {
	ctx    *Context
	id     int64
	target BindingTarget

	mu       sync.RWMutex
	invoker  HostInvoker
	disposed atomic.Bool
}

// ID returns the id of the owning target.
func (o *NativeObject) ID() int64 { return o.id }

// Context returns the owning context.
func (o *NativeObject) Context() *Context { return o.ctx }

// Target returns the owning binding target, or nil once destroyed.
func (o *NativeObject) Target() BindingTarget {
	if o.disposed.Load() {
		return nil
	}
	return o.target
}

// Install sets the host invoker. It may be called from the host goroutine.
func (o *NativeObject) Install(inv HostInvoker) {
	if o.disposed.Load() {
		return
	}
	o.mu.Lock()
	o.invoker = inv
	o.mu.Unlock()
}

// Invoker returns the installed host invoker, or nil.
func (o *NativeObject) Invoker() HostInvoker {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.invoker
}

// Disposed reports whether the shadow has been destroyed.
func (o *NativeObject) Disposed() bool { return o.disposed.Load() }

// HandleCallFromHost forwards a host call to the owning target. It must run
// on the script goroutine; hosts on other goroutines go through Context.Post.
func (o *NativeObject) HandleCallFromHost(method native.Value, args []native.Value) (native.Value, error) {
	target := o.Target()
	if target == nil {
		return native.Null(), ErrTargetDisposed
	}
	return target.HandleCallFromHost(method, args)
}

// DispatchEvent queues a host-originated occurrence for this shadow's target.
// It is safe to call from any goroutine.
func (o *NativeObject) DispatchEvent(ev NativeEvent) bool {
	if o.disposed.Load() {
		return false
	}
	return o.ctx.Post(func() { o.dispatchNow(ev) })
}

func (o *NativeObject) dispatchNow(ev NativeEvent) {
	if recv, ok := o.Target().(HostEventReceiver); ok {
		recv.DispatchFromHost(ev)
	}
}

func (o *NativeObject) destroy() {
	if !o.disposed.CompareAndSwap(false, true) {
		return
	}
	o.mu.Lock()
	o.invoker = nil
	o.mu.Unlock()
	o.ctx.unregisterObject(o)
	o.target = nil
}

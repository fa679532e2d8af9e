package bridge

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/chrisuehlinger/hostbridge/native"
)

// BindingObject is the script-side half of a bound pair. It owns the native
// shadow and issues every synchronous and asynchronous call into the host on
// the shadow's behalf.
type BindingObject struct {
	ctx *Context
	obj *NativeObject
}

// NewBindingObject creates the shadow for target and registers it in the
// context's address table under id.
func NewBindingObject(ctx *Context, id int64, target BindingTarget) (*BindingObject, error) {
	if ctx == nil || !ctx.IsValid() {
		return nil, ErrContextDisposed
	}
	obj := &NativeObject{ctx: ctx, id: id, target: target}
	ctx.registerObject(obj)
	return &BindingObject{ctx: ctx, obj: obj}, nil
}

// Context returns the owning context.
func (b *BindingObject) Context() *Context { return b.ctx }

// Native returns the shadow.
func (b *BindingObject) Native() *NativeObject { return b.obj }

// ReleaseNative destroys the shadow: its invoker is cleared and it leaves the
// address table. Later invocations fail with ErrTargetDisposed.
func (b *BindingObject) ReleaseNative() {
	b.obj.destroy()
}

// InvokeBindingMethod calls a named host method synchronously.
func (b *BindingObject) InvokeBindingMethod(method string, args []native.Value) (native.Value, error) {
	return b.invoke(native.String(method), args)
}

// InvokeBindingOp calls a well-known host operation synchronously.
func (b *BindingObject) InvokeBindingOp(op native.CallOp, args []native.Value) (native.Value, error) {
	return b.invoke(op.Value(), args)
}

func (b *BindingObject) invoke(method native.Value, args []native.Value) (native.Value, error) {
	op := native.ParseMethod(method).String()
	if !b.ctx.IsValid() {
		return native.Null(), ErrContextDisposed
	}
	if b.obj.Disposed() {
		return native.Null(), ErrTargetDisposed
	}

	// The host must observe every queued structural command before the call.
	b.ctx.FlushCommands()

	inv := b.obj.Invoker()
	if inv == nil {
		return native.Null(), ErrInternal(op, "Failed to call host method: invokeBindingMethod not initialized.")
	}
	res, err := inv.InvokeFromNative(b.obj, method, args)
	if err != nil {
		var be *Error
		if errors.As(err, &be) {
			return native.Null(), err
		}
		return native.Null(), &Error{Type: HostError, Op: op, Err: err}
	}
	return res, nil
}

// GetBindingProperty reads a host-owned property.
func (b *BindingObject) GetBindingProperty(name string) (native.Value, error) {
	return b.InvokeBindingOp(native.OpGetProperty, []native.Value{native.String(name)})
}

// SetBindingProperty writes a host-owned property.
func (b *BindingObject) SetBindingProperty(name string, v native.Value) error {
	_, err := b.InvokeBindingOp(native.OpSetProperty, []native.Value{native.String(name), v})
	return err
}

// GetAllBindingPropertyNames lists the host-owned property names.
func (b *BindingObject) GetAllBindingPropertyNames() ([]string, error) {
	res, err := b.InvokeBindingOp(native.OpGetAllPropertyNames, nil)
	if err != nil {
		return nil, err
	}
	switch res.Tag {
	case native.TagNull:
		return nil, nil
	case native.TagList:
		names := make([]string, 0, len(res.Items()))
		for _, item := range res.Items() {
			names = append(names, item.Text())
		}
		return names, nil
	}
	return nil, fmt.Errorf("%s: host returned %s, want list", native.OpGetAllPropertyNames, res.Tag)
}

// AnonymousFunctionCall calls the host function registered under id.
func (b *BindingObject) AnonymousFunctionCall(id int64, args []native.Value) (native.Value, error) {
	full := make([]native.Value, 0, len(args)+1)
	full = append(full, native.Int64(id))
	full = append(full, args...)
	return b.InvokeBindingOp(native.OpAnonymousFunctionCall, full)
}

// InvokeAsync starts the host async function registered under id. The host
// receives the function id, the context id, an opaque completion handle and
// the completer to call with it, followed by args. The returned Future
// settles on the script goroutine.
func (b *BindingObject) InvokeAsync(id int64, args []native.Value) (*Future, error) {
	if !b.ctx.IsValid() {
		return nil, ErrContextDisposed
	}
	ac := &asyncContext{ctx: b.ctx, future: newFuture()}
	b.ctx.trackAsync(ac)

	full := make([]native.Value, 0, len(args)+4)
	full = append(full,
		native.Int64(id),
		native.Int64(int64(b.ctx.ID())),
		native.Pointer(ac),
		native.Pointer(AsyncCompleter(CompleteAsync)),
	)
	full = append(full, args...)

	if _, err := b.InvokeBindingOp(native.OpAsyncAnonymousFunction, full); err != nil {
		if ac.claim() {
			b.ctx.untrackAsync(ac)
		}
		b.ctx.logger.Debug("async call not started",
			zap.Int64("target", b.obj.id), zap.Int64("function", id), zap.Error(err))
		return nil, err
	}
	return ac.future, nil
}

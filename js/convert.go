package js

import (
	"fmt"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/chrisuehlinger/hostbridge/bridge"
	"github.com/chrisuehlinger/hostbridge/native"
)

// toNative converts a script value into the bridge's tagged form. Script
// targets cross as their id; functions cannot cross.
func (r *Runtime) toNative(v goja.Value) (native.Value, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return native.Null(), nil
	}
	if obj, ok := v.(*goja.Object); ok {
		if _, isFn := goja.AssertFunction(obj); isFn {
			return native.Value{}, fmt.Errorf("functions cannot be passed to the host")
		}
		if to := r.targetOf(obj); to != nil {
			return native.Int64(to.t.ID()), nil
		}
		if ab, ok := obj.Export().(goja.ArrayBuffer); ok {
			return native.Bytes(ab.Bytes()), nil
		}
		if obj.ClassName() == "Array" {
			length := obj.Get("length").ToInteger()
			items := make([]native.Value, 0, length)
			for i := int64(0); i < length; i++ {
				item, err := r.toNative(obj.Get(fmt.Sprint(i)))
				if err != nil {
					return native.Value{}, fmt.Errorf("index %d: %w", i, err)
				}
				items = append(items, item)
			}
			return native.List(items...), nil
		}
	}
	return native.FromAny(v.Export())
}

func (r *Runtime) toNativeArgs(args []goja.Value) ([]native.Value, error) {
	out := make([]native.Value, len(args))
	for i, a := range args {
		v, err := r.toNative(a)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		out[i] = v
	}
	return out, nil
}

// toValue converts a host value into a script value. Host functions become
// callables bound to owner, which issues their calls.
func (r *Runtime) toValue(v native.Value, owner *targetObject) goja.Value {
	switch v.Tag {
	case native.TagNull:
		return goja.Null()
	case native.TagString:
		return r.vm.ToValue(v.Text())
	case native.TagInt64:
		return r.vm.ToValue(v.Int())
	case native.TagFloat64:
		return r.vm.ToValue(v.Float())
	case native.TagBool:
		return r.vm.ToValue(v.Truthy())
	case native.TagJSON:
		parsed, err := r.jsonParse(goja.Undefined(), r.vm.ToValue(v.Text()))
		if err != nil {
			r.logger.Debug("host returned malformed JSON", zap.Error(err))
			return r.vm.ToValue(v.Text())
		}
		return parsed
	case native.TagList:
		items := make([]any, len(v.Items()))
		for i, item := range v.Items() {
			items[i] = r.toValue(item, owner)
		}
		return r.vm.NewArray(items...)
	case native.TagBytes:
		return r.vm.ToValue(r.vm.NewArrayBuffer(append([]byte(nil), v.RawBytes()...)))
	case native.TagFunction:
		if owner != nil {
			return r.hostFunction(owner, v.FunctionID())
		}
	case native.TagAsyncFunction:
		if owner != nil {
			return r.hostAsyncFunction(owner, v.FunctionID())
		}
	}
	return goja.Undefined()
}

// hostFunction returns a callable that forwards to the host function id.
func (r *Runtime) hostFunction(owner *targetObject, id int64) goja.Value {
	return r.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		args, err := r.toNativeArgs(call.Arguments)
		if err != nil {
			r.typeError("Failed to call host function: %s", err)
		}
		res, err := owner.t.Binding().AnonymousFunctionCall(id, args)
		if err != nil {
			r.throw(err)
		}
		return r.toValue(res, owner)
	})
}

// hostAsyncFunction returns a callable that starts the host async function
// id and returns a promise settled when the host completes it.
func (r *Runtime) hostAsyncFunction(owner *targetObject, id int64) goja.Value {
	return r.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		args, err := r.toNativeArgs(call.Arguments)
		if err != nil {
			r.typeError("Failed to call host function: %s", err)
		}
		future, err := owner.t.Binding().InvokeAsync(id, args)
		if err != nil {
			r.throw(err)
		}
		return r.vm.ToValue(r.promiseFor(future, owner))
	})
}

// promiseFor adapts a bridge future to a script promise. Settlement runs on
// the script goroutine, where the future's callbacks fire.
func (r *Runtime) promiseFor(f *bridge.Future, owner *targetObject) *goja.Promise {
	promise, resolve, reject := r.vm.NewPromise()
	f.Then(func(v native.Value, err error) {
		var settleErr error
		if err != nil {
			settleErr = reject(r.errorValue(err))
		} else {
			settleErr = resolve(r.toValue(v, owner))
		}
		if settleErr != nil {
			r.reportError(settleErr)
		}
	})
	return promise
}

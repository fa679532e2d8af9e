package js

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"

	"github.com/chrisuehlinger/hostbridge/bridge"
	"github.com/chrisuehlinger/hostbridge/dom"
)

// call invokes fn and reports a thrown exception or a Go panic instead of
// propagating it.
func (r *Runtime) call(fn goja.Callable, this goja.Value, args ...goja.Value) goja.Value {
	defer func() {
		if p := recover(); p != nil {
			r.reportError(fmt.Errorf("callback panicked: %v", p))
		}
	}()
	v, err := fn(this, args...)
	if err != nil {
		r.reportError(err)
		return goja.Undefined()
	}
	return v
}

// errorValue converts a Go error into the script error it surfaces as.
// Argument and host type errors become TypeError; other bridge and DOM
// failures become an Error whose name is the failure type.
func (r *Runtime) errorValue(err error) goja.Value {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return ex.Value()
	}

	var be *bridge.Error
	if errors.As(err, &be) {
		msg := be.Message
		if msg == "" && be.Err != nil {
			msg = be.Err.Error()
		}
		switch be.Type {
		case bridge.InvalidArgument:
			if be.Op != "" {
				msg = fmt.Sprintf("Failed to %s: %s", be.Op, msg)
			}
			return r.vm.NewTypeError("%s", msg)
		case bridge.TypeError:
			return r.vm.NewTypeError("%s", msg)
		}
		return r.namedError(be.Type.String(), msg)
	}

	var de *dom.DOMError
	if errors.As(err, &de) {
		return r.namedError(de.Name, de.Message)
	}
	if errors.Is(err, bridge.ErrTargetDisposed) || errors.Is(err, bridge.ErrContextDisposed) {
		return r.namedError("InvalidStateError", err.Error())
	}
	return r.vm.NewGoError(err)
}

func (r *Runtime) namedError(name, msg string) goja.Value {
	obj, err := r.vm.New(r.vm.Get("Error"), r.vm.ToValue(msg))
	if err != nil {
		return r.vm.NewGoError(errors.New(msg))
	}
	_ = obj.Set("name", name)
	return obj
}

// throw raises err in the calling script. It never returns.
func (r *Runtime) throw(err error) {
	panic(r.errorValue(err))
}

func (r *Runtime) typeError(format string, args ...any) {
	panic(r.vm.NewTypeError("%s", fmt.Sprintf(format, args...)))
}

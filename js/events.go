package js

import (
	"github.com/dop251/goja"

	"github.com/chrisuehlinger/hostbridge/dom"
)

// setupEventConstructors installs Event and CustomEvent.
func (r *Runtime) setupEventConstructors() {
	vm := r.vm

	vm.Set("Event", func(call goja.ConstructorCall) *goja.Object {
		if len(call.Arguments) < 1 {
			r.typeError("Failed to construct 'Event': 1 argument required, but only 0 present.")
		}
		init, _ := r.eventInit(call.Argument(1))
		return r.wrapEvent(dom.NewEvent(call.Arguments[0].String(), init), call.This, nil)
	})

	vm.Set("CustomEvent", func(call goja.ConstructorCall) *goja.Object {
		if len(call.Arguments) < 1 {
			r.typeError("Failed to construct 'CustomEvent': 1 argument required, but only 0 present.")
		}
		init, detail := r.eventInit(call.Argument(1))
		if detail == nil {
			detail = goja.Null()
		}
		return r.wrapEvent(dom.NewEvent(call.Arguments[0].String(), init), call.This, detail)
	})

	eventProto := r.prototypeOf("Event")
	if customProto := r.prototypeOf("CustomEvent"); customProto != nil && eventProto != nil {
		_ = customProto.SetPrototype(eventProto)
	}
}

func (r *Runtime) prototypeOf(ctor string) *goja.Object {
	c := r.vm.Get(ctor)
	if c == nil {
		return nil
	}
	p := c.ToObject(r.vm).Get("prototype")
	if p == nil {
		return nil
	}
	return p.ToObject(r.vm)
}

// eventInit reads an EventInit dictionary. The detail member is returned
// separately as a script value.
func (r *Runtime) eventInit(v goja.Value) (dom.EventInit, goja.Value) {
	var init dom.EventInit
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return init, nil
	}
	obj := v.ToObject(r.vm)
	if b := obj.Get("bubbles"); b != nil {
		init.Bubbles = b.ToBoolean()
	}
	if c := obj.Get("cancelable"); c != nil {
		init.Cancelable = c.ToBoolean()
	}
	detail := obj.Get("detail")
	if detail != nil && goja.IsUndefined(detail) {
		detail = nil
	}
	return init, detail
}

// eventOf returns the record behind a script event object, or nil.
func (r *Runtime) eventOf(v goja.Value) *dom.Event {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil
	}
	tag := obj.GetSymbol(r.eventSym)
	if tag == nil {
		return nil
	}
	ev, _ := tag.Export().(*dom.Event)
	return ev
}

// eventObject returns the script object for ev, creating one for records
// built on the Go side such as host events.
func (r *Runtime) eventObject(ev *dom.Event) *goja.Object {
	if obj, ok := ev.Binding().(*goja.Object); ok {
		return obj
	}
	obj := r.vm.NewObject()
	proto := r.prototypeOf("Event")
	var detail goja.Value
	if !ev.Detail.IsNull() {
		detail = r.toValue(ev.Detail, nil)
		proto = r.prototypeOf("CustomEvent")
	}
	if proto != nil {
		_ = obj.SetPrototype(proto)
	}
	return r.wrapEvent(ev, obj, detail)
}

// wrapEvent exposes ev through obj.
func (r *Runtime) wrapEvent(ev *dom.Event, obj *goja.Object, detail goja.Value) *goja.Object {
	vm := r.vm
	_ = obj.DefineDataPropertySymbol(r.eventSym, vm.ToValue(ev), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE)
	ev.Bind(obj)

	getter := func(name string, get func() goja.Value) {
		_ = obj.DefineAccessorProperty(name, vm.ToValue(func(goja.FunctionCall) goja.Value {
			return get()
		}), nil, goja.FLAG_TRUE, goja.FLAG_TRUE)
	}

	getter("type", func() goja.Value { return vm.ToValue(ev.Type) })
	getter("bubbles", func() goja.Value { return vm.ToValue(ev.Bubbles) })
	getter("cancelable", func() goja.Value { return vm.ToValue(ev.Cancelable) })
	getter("defaultPrevented", func() goja.Value { return vm.ToValue(ev.DefaultPrevented()) })
	getter("isTrusted", func() goja.Value { return vm.ToValue(ev.IsTrusted) })
	getter("timeStamp", func() goja.Value { return vm.ToValue(ev.TimeStamp) })
	getter("target", func() goja.Value { return r.targetValue(ev.Target()) })
	getter("srcElement", func() goja.Value { return r.targetValue(ev.Target()) })
	getter("currentTarget", func() goja.Value { return r.targetValue(ev.CurrentTarget()) })

	_ = obj.DefineAccessorProperty("cancelBubble",
		vm.ToValue(func(goja.FunctionCall) goja.Value {
			return vm.ToValue(ev.PropagationStopped())
		}),
		vm.ToValue(func(call goja.FunctionCall) goja.Value {
			ev.SetCancelBubble(call.Argument(0).ToBoolean())
			return goja.Undefined()
		}),
		goja.FLAG_TRUE, goja.FLAG_TRUE)

	if detail != nil {
		_ = obj.DefineDataProperty("detail", detail, goja.FLAG_FALSE, goja.FLAG_TRUE, goja.FLAG_TRUE)
	}

	obj.Set("preventDefault", func(goja.FunctionCall) goja.Value {
		ev.PreventDefault()
		return goja.Undefined()
	})
	obj.Set("stopPropagation", func(goja.FunctionCall) goja.Value {
		ev.StopPropagation()
		return goja.Undefined()
	})
	obj.Set("stopImmediatePropagation", func(goja.FunctionCall) goja.Value {
		ev.StopImmediatePropagation()
		return goja.Undefined()
	})
	obj.Set("initEvent", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			r.typeError("Failed to execute 'initEvent' on 'Event': 1 argument required, but only 0 present.")
		}
		ev.InitEvent(call.Arguments[0].String(), call.Argument(1).ToBoolean(), call.Argument(2).ToBoolean())
		return goja.Undefined()
	})

	return obj
}

package dom

import (
	"time"

	"github.com/chrisuehlinger/hostbridge/bridge"
	"github.com/chrisuehlinger/hostbridge/native"
)

// EventInit carries the optional flags of a new event.
type EventInit struct {
	Bubbles    bool
	Cancelable bool
	Detail     native.Value
}

// Event is one occurrence in flight. It is created by script code or built
// from a host description, consumed by a dispatch, and may be dispatched
// again afterwards.
type Event struct {
	Type       string
	Bubbles    bool
	Cancelable bool
	IsTrusted  bool
	TimeStamp  float64
	Detail     native.Value

	canceled      bool
	dispatching   bool
	stopped       bool
	stopImmediate bool

	target        *EventTarget
	currentTarget *EventTarget

	binding any
}

// NewEvent creates an untrusted event of the given kind.
func NewEvent(kind string, init EventInit) *Event {
	return &Event{
		Type:       kind,
		Bubbles:    init.Bubbles,
		Cancelable: init.Cancelable,
		Detail:     init.Detail,
		TimeStamp:  now(),
	}
}

// EventFromNative builds a trusted event from a host description.
func EventFromNative(ne bridge.NativeEvent) *Event {
	ts := ne.TimeStamp
	if ts == 0 {
		ts = now()
	}
	return &Event{
		Type:       ne.Type,
		Bubbles:    ne.Bubbles,
		Cancelable: ne.Cancelable,
		Detail:     ne.Detail,
		IsTrusted:  true,
		TimeStamp:  ts,
	}
}

func now() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Millisecond)
}

// Bind attaches a script-side wrapper to the record.
func (e *Event) Bind(v any) { e.binding = v }

// Binding returns the value attached with Bind.
func (e *Event) Binding() any { return e.binding }

// Target returns the target the event was first dispatched to.
func (e *Event) Target() *EventTarget { return e.target }

// CurrentTarget returns the target whose listeners are running.
func (e *Event) CurrentTarget() *EventTarget { return e.currentTarget }

// Dispatching reports whether a dispatch of this record is running.
func (e *Event) Dispatching() bool { return e.dispatching }

// DefaultPrevented reports whether the event was canceled.
func (e *Event) DefaultPrevented() bool { return e.canceled }

// PreventDefault cancels the event if it is cancelable.
func (e *Event) PreventDefault() {
	if e.Cancelable {
		e.canceled = true
	}
}

// StopPropagation keeps the event from reaching further targets. Listeners
// on the current target still run.
func (e *Event) StopPropagation() { e.stopped = true }

// StopImmediatePropagation additionally skips the remaining listeners on the
// current target.
func (e *Event) StopImmediatePropagation() {
	e.stopped = true
	e.stopImmediate = true
}

// PropagationStopped reports whether StopPropagation was called during the
// running dispatch.
func (e *Event) PropagationStopped() bool { return e.stopped }

// SetCancelBubble is the legacy property form of StopPropagation. Setting it
// to false has no effect.
func (e *Event) SetCancelBubble(v bool) {
	if v {
		e.stopped = true
	}
}

// InitEvent reinitializes the record. It is ignored while dispatching.
func (e *Event) InitEvent(kind string, bubbles, cancelable bool) {
	if e.dispatching {
		return
	}
	e.Type = kind
	e.Bubbles = bubbles
	e.Cancelable = cancelable
	e.canceled = false
	e.stopped = false
	e.stopImmediate = false
	e.target = nil
	e.currentTarget = nil
}

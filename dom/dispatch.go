package dom

import (
	"github.com/chrisuehlinger/hostbridge/bridge"
)

// DispatchEvent runs ev through this target and, unless propagation ends
// early, its structural ancestors. It returns false if a listener canceled
// the event.
//
// Listeners are looked up by insertion order as the round runs, so an entry
// added by a listener is still reached in the same round and an entry removed
// before it is reached is skipped. Propagation ends after a round when the
// event bubbles or has been canceled or stopped; otherwise it moves on to the
// parent.
func (t *EventTarget) DispatchEvent(ev *Event) (bool, error) {
	if ev == nil {
		return false, bridge.ErrInvalidArgument("dispatchEvent", "1 argument required, but only 0 present.")
	}
	if t.disposed {
		return false, bridge.ErrTargetDisposed
	}
	if !t.reg.has(ev.Type) {
		return true, nil
	}

	ev.target = t
	ev.currentTarget = t
	ev.dispatching = true
	defer func() {
		ev.dispatching = false
		ev.stopped = false
		ev.stopImmediate = false
	}()

	for ev.currentTarget != nil {
		cur := ev.currentTarget
		cur.invokeListeners(ev)
		if ev.Bubbles || ev.canceled || ev.stopped {
			break
		}
		ev.currentTarget = cur.Parent()
	}
	return !ev.canceled, nil
}

func (t *EventTarget) invokeListeners(ev *Event) {
	var last uint64
	for !t.disposed {
		entry, ok := t.reg.next(ev.Type, last)
		if !ok {
			return
		}
		last = entry.seq
		t.invoke(entry.handle, ev)
		if ev.stopImmediate {
			return
		}
	}
}

func (t *EventTarget) invoke(h *Handle, ev *Event) {
	defer func() {
		if p := recover(); p != nil {
			t.ctx.ReportError(&bridge.ListenerError{TargetID: t.id, Kind: ev.Type, Panic: p})
		}
	}()
	if err := h.listener.HandleEvent(ev); err != nil {
		t.ctx.ReportError(&bridge.ListenerError{TargetID: t.id, Kind: ev.Type, Err: err})
	}
}

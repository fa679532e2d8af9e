package js

import (
	"sync"

	"github.com/dop251/goja"
)

// task represents a queued callback in the event loop.
type task struct {
	callback goja.Callable
	args     []goja.Value
}

// eventLoop holds script-queued microtasks. Host work arrives separately
// through the bridge context and runs first.
type eventLoop struct {
	mu         sync.Mutex
	microtasks []task
}

func newEventLoop() *eventLoop {
	return &eventLoop{}
}

// queueMicrotask adds a microtask. Microtasks run before due timers.
func (el *eventLoop) queueMicrotask(callback goja.Callable, args []goja.Value) {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.microtasks = append(el.microtasks, task{callback: callback, args: args})
}

func (el *eventLoop) pop() (task, bool) {
	el.mu.Lock()
	defer el.mu.Unlock()
	if len(el.microtasks) == 0 {
		return task{}, false
	}
	t := el.microtasks[0]
	el.microtasks = el.microtasks[1:]
	return t, true
}

// runOnce drains the microtasks, including ones queued while draining, then
// runs due timers. Callback failures are reported, never returned. It returns
// true if more work is pending.
func (el *eventLoop) runOnce(r *Runtime) bool {
	for {
		t, ok := el.pop()
		if !ok {
			break
		}
		r.call(t.callback, goja.Undefined(), t.args...)
	}

	r.timers.process(r)

	return el.hasPending() || r.timers.hasPending()
}

func (el *eventLoop) hasPending() bool {
	el.mu.Lock()
	defer el.mu.Unlock()
	return len(el.microtasks) > 0
}

func (el *eventLoop) clear() {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.microtasks = nil
}

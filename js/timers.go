package js

import (
	"sort"
	"sync"
	"time"

	"github.com/dop251/goja"
)

// timer represents a scheduled setTimeout or setInterval callback.
type timer struct {
	id       int
	callback goja.Callable
	args     []goja.Value
	due      time.Time
	interval time.Duration // 0 for setTimeout
}

// timerManager tracks the timers of one runtime.
type timerManager struct {
	mu     sync.Mutex
	timers map[int]*timer
	nextID int
}

func newTimerManager() *timerManager {
	return &timerManager{
		timers: make(map[int]*timer),
		nextID: 1,
	}
}

func (tm *timerManager) schedule(callback goja.Callable, delay, interval time.Duration, args []goja.Value) int {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	id := tm.nextID
	tm.nextID++
	tm.timers[id] = &timer{
		id:       id,
		callback: callback,
		args:     args,
		due:      time.Now().Add(delay),
		interval: interval,
	}
	return id
}

func (tm *timerManager) clearTimer(id int) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	delete(tm.timers, id)
}

// due returns the timers whose time has come, oldest first.
func (tm *timerManager) due(now time.Time) []*timer {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	var out []*timer
	for _, t := range tm.timers {
		if !t.due.After(now) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].due.Equal(out[j].due) {
			return out[i].id < out[j].id
		}
		return out[i].due.Before(out[j].due)
	})
	return out
}

// process runs every due timer. Intervals are rescheduled, timeouts removed.
func (tm *timerManager) process(r *Runtime) {
	for _, t := range tm.due(time.Now()) {
		tm.mu.Lock()
		_, live := tm.timers[t.id]
		if live && t.interval == 0 {
			delete(tm.timers, t.id)
		}
		tm.mu.Unlock()
		if !live {
			continue
		}

		r.call(t.callback, goja.Undefined(), t.args...)

		if t.interval > 0 {
			tm.mu.Lock()
			t.due = time.Now().Add(t.interval)
			tm.mu.Unlock()
		}
	}
}

func (tm *timerManager) hasPending() bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return len(tm.timers) > 0
}

// nextDueTime returns the time until the next timer is due, or 0 if one is
// already due or none is pending.
func (tm *timerManager) nextDueTime() time.Duration {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	var next time.Duration = -1
	now := time.Now()
	for _, t := range tm.timers {
		d := t.due.Sub(now)
		if d <= 0 {
			return 0
		}
		if next < 0 || d < next {
			next = d
		}
	}
	if next < 0 {
		return 0
	}
	return next
}

func (tm *timerManager) clear() {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.timers = make(map[int]*timer)
}

// setupTimers installs setTimeout, setInterval and their clear functions.
func (r *Runtime) setupTimers() {
	schedule := func(repeat bool) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			if len(call.Arguments) < 1 {
				return goja.Undefined()
			}
			callback, ok := goja.AssertFunction(call.Arguments[0])
			if !ok {
				return goja.Undefined()
			}
			delay := time.Duration(0)
			if len(call.Arguments) > 1 {
				if ms := call.Arguments[1].ToInteger(); ms > 0 {
					delay = time.Duration(ms) * time.Millisecond
				}
			}
			var args []goja.Value
			if len(call.Arguments) > 2 {
				args = call.Arguments[2:]
			}
			var interval time.Duration
			if repeat {
				interval = max(delay, 4*time.Millisecond)
				delay = interval
			}
			return r.vm.ToValue(r.timers.schedule(callback, delay, interval, args))
		}
	}
	cancel := func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) > 0 {
			r.timers.clearTimer(int(call.Arguments[0].ToInteger()))
		}
		return goja.Undefined()
	}

	r.vm.Set("setTimeout", schedule(false))
	r.vm.Set("setInterval", schedule(true))
	r.vm.Set("clearTimeout", cancel)
	r.vm.Set("clearInterval", cancel)
}

package js

import (
	"runtime"
	"testing"
	"time"

	"github.com/chrisuehlinger/hostbridge/host"
)

// collectUntil runs the collector and drains the disposal path until cond
// holds or two seconds have passed.
func collectUntil(t *testing.T, r *Runtime, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		runtime.GC()
		r.Context().Pool().Worker().Sync()
		r.Context().FlushCommands()
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func disposedCount(h *host.Loopback, id int64) int {
	n := 0
	for _, got := range h.Disposed() {
		if got == id {
			n++
		}
	}
	return n
}

// settle gives collection a few extra cycles to produce late disposals.
func settle(r *Runtime) {
	for range 5 {
		runtime.GC()
		r.Context().Pool().Worker().Sync()
		r.Context().FlushCommands()
		time.Sleep(5 * time.Millisecond)
	}
}

func TestExplicitDisposeIsNotRepeatedByCollection(t *testing.T) {
	r, h := newTestRuntime(t)

	id := func() int64 {
		obj, err := r.NewTarget()
		if err != nil {
			t.Fatal(err)
		}
		r.Context().FlushCommands()
		target := r.Target(obj)
		target.Dispose()
		return target.ID()
	}()

	collectUntil(t, r, func() bool { return disposedCount(h, id) >= 1 })
	settle(r)
	if got := disposedCount(h, id); got != 1 {
		t.Errorf("target %d disposed %d times, want 1 (%v)", id, got, h.Disposed())
	}
}

func TestUnreachableTargetIsCollected(t *testing.T) {
	for _, flushFirst := range []bool{true, false} {
		name := "unflushed"
		if flushFirst {
			name = "flushed"
		}
		t.Run(name, func(t *testing.T) {
			r, h := newTestRuntime(t)

			v, err := r.Execute(`(function() { return new EventTarget().targetId; })()`)
			if err != nil {
				t.Fatal(err)
			}
			id := v.ToInteger()
			if flushFirst {
				r.Context().FlushCommands()
			}
			mustExecute(t, r, `0`)

			collectUntil(t, r, func() bool { return disposedCount(h, id) >= 1 })
			settle(r)
			if got := disposedCount(h, id); got != 1 {
				t.Errorf("target %d disposed %d times, want 1 (%v)", id, got, h.Disposed())
			}
		})
	}
}

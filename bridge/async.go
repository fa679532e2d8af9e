package bridge

import (
	"sync"
	"sync/atomic"

	"github.com/chrisuehlinger/hostbridge/native"
)

// FutureState is the settlement state of a Future.
type FutureState int

const (
	FuturePending FutureState = iota
	FutureFulfilled
	FutureRejected
)

func (s FutureState) String() string {
	switch s {
	case FuturePending:
		return "pending"
	case FutureFulfilled:
		return "fulfilled"
	case FutureRejected:
		return "rejected"
	}
	return "unknown"
}

// Future is the script-side result of an asynchronous host call. It is
// settled at most once, always on the script goroutine.
type Future struct {
	mu        sync.Mutex
	state     FutureState
	value     native.Value
	err       error
	callbacks []func(native.Value, error)
	done      chan struct{}
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// State returns the current settlement state.
func (f *Future) State() FutureState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Value returns the fulfilled value.
func (f *Future) Value() native.Value {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

// Err returns the rejection reason.
func (f *Future) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Done is closed once the future settles.
func (f *Future) Done() <-chan struct{} { return f.done }

// Then registers fn to run when the future settles. If it already has, fn
// runs immediately.
func (f *Future) Then(fn func(native.Value, error)) {
	f.mu.Lock()
	if f.state == FuturePending {
		f.callbacks = append(f.callbacks, fn)
		f.mu.Unlock()
		return
	}
	v, err := f.value, f.err
	f.mu.Unlock()
	fn(v, err)
}

func (f *Future) settle(state FutureState, v native.Value, err error) bool {
	f.mu.Lock()
	if f.state != FuturePending {
		f.mu.Unlock()
		return false
	}
	f.state, f.value, f.err = state, v, err
	callbacks := f.callbacks
	f.callbacks = nil
	f.mu.Unlock()

	close(f.done)
	for _, cb := range callbacks {
		cb(v, err)
	}
	return true
}

func (f *Future) resolve(v native.Value) bool { return f.settle(FutureFulfilled, v, nil) }

func (f *Future) reject(err error) bool { return f.settle(FutureRejected, native.Null(), err) }

// asyncContext pairs a pending Future with the context that issued it. The
// host holds it as an opaque pointer until it calls the completer.
type asyncContext struct {
	ctx     *Context
	future  *Future
	claimed atomic.Bool
}

// claim marks the pair consumed. Only the first caller wins.
func (ac *asyncContext) claim() bool {
	return ac.claimed.CompareAndSwap(false, true)
}

// AsyncCompleter is the completion entry point handed to the host alongside
// every asynchronous call.
type AsyncCompleter func(handle any, value *native.Value, contextID int64, errMsg string)

// CompleteAsync settles the call identified by handle. It may be called from
// any goroutine. A completion for a disposed context, or one whose contextID
// no longer matches, is dropped silently, as is a second completion of the
// same handle. A non-nil value resolves the future; otherwise a non-empty
// errMsg rejects it with a TypeError.
func CompleteAsync(handle any, value *native.Value, contextID int64, errMsg string) {
	ac, ok := handle.(*asyncContext)
	if !ok || ac == nil || ac.ctx == nil {
		return
	}
	ctx := ac.ctx
	if !ctx.IsValid() || int64(ctx.ID()) != contextID {
		return
	}
	if !ac.claim() {
		return
	}
	ctx.untrackAsync(ac)

	var (
		v   native.Value
		has = value != nil
	)
	if has {
		v = *value
	}
	ctx.Post(func() {
		if !ctx.IsValid() {
			return
		}
		switch {
		case has:
			ac.future.resolve(v)
		case errMsg != "":
			ac.future.reject(NewError(TypeError, native.OpAsyncAnonymousFunction.String(), errMsg))
		}
	})
}

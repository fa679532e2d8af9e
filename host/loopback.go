// Package host implements an in-process host: it consumes the command
// stream, installs itself as the invoker of every announced target, stores
// host-owned properties and runs registered host functions.
package host

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"weak"

	"go.uber.org/zap"

	"github.com/chrisuehlinger/hostbridge/bridge"
	"github.com/chrisuehlinger/hostbridge/command"
	"github.com/chrisuehlinger/hostbridge/native"
)

// Func is a synchronous host function.
type Func func(args []native.Value) (native.Value, error)

// AsyncFunc is an asynchronous host function. It runs on its own goroutine.
type AsyncFunc func(ctx context.Context, args []native.Value) (native.Value, error)

// MethodFunc answers a named method call on target id.
type MethodFunc func(id int64, args []native.Value) (native.Value, error)

// Option configures a Loopback.
type Option func(*Loopback)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(h *Loopback) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithObserver registers fn to receive every delivered command after the
// host has applied it.
func WithObserver(fn func(command.Command)) Option {
	return func(h *Loopback) { h.observers = append(h.observers, fn) }
}

type targetState struct {
	obj      weak.Pointer[bridge.NativeObject]
	typeName string
	props    map[string]native.Value
	interest []string
}

// Loopback is a host living in the same process as the scripting contexts.
// It is safe for concurrent use.
type Loopback struct {
	logger    *zap.Logger
	observers []func(command.Command)

	mu       sync.Mutex
	targets  map[int64]*targetState
	disposed []int64
	methods  map[string]MethodFunc
	funcs    map[int64]Func
	async    map[int64]AsyncFunc
	nextFn   int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewLoopback creates an empty host.
func NewLoopback(opts ...Option) *Loopback {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Loopback{
		logger:  zap.NewNop(),
		targets: make(map[int64]*targetState),
		methods: make(map[string]MethodFunc),
		funcs:   make(map[int64]Func),
		async:   make(map[int64]AsyncFunc),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.Named("host")
	return h
}

// Close cancels running async functions and waits for them to complete.
func (h *Loopback) Close() {
	h.cancel()
	h.wg.Wait()
}

// Deliver implements command.Sink.
func (h *Loopback) Deliver(batch []command.Command) error {
	for _, cmd := range batch {
		h.apply(cmd)
		for _, fn := range h.observers {
			fn(cmd)
		}
	}
	return nil
}

func (h *Loopback) apply(cmd command.Command) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch cmd.Op {
	case command.OpCreateEventTarget:
		st := h.state(cmd.TargetID)
		if len(cmd.Args) > 0 {
			st.typeName = cmd.Args[0]
		}
		if obj := bridge.Announced(cmd); obj != nil {
			st.obj = weak.Make(obj)
			obj.Install(h)
		}
	case command.OpAddEvent:
		if len(cmd.Args) == 0 {
			return
		}
		st := h.state(cmd.TargetID)
		st.interest = append(st.interest, cmd.Args[0])
	case command.OpDisposeEventTarget:
		delete(h.targets, cmd.TargetID)
		h.disposed = append(h.disposed, cmd.TargetID)
	default:
		h.logger.Warn("unknown command", zap.Stringer("op", cmd.Op), zap.Int64("target", cmd.TargetID))
	}
}

// state returns the record for id, creating it. h.mu must be held.
func (h *Loopback) state(id int64) *targetState {
	st, ok := h.targets[id]
	if !ok {
		st = &targetState{props: make(map[string]native.Value)}
		h.targets[id] = st
	}
	return st
}

// Adopt installs the host on a target that was not announced through the
// command stream, such as the body.
func (h *Loopback) Adopt(obj *bridge.NativeObject, typeName string) {
	h.mu.Lock()
	st := h.state(obj.ID())
	st.obj = weak.Make(obj)
	st.typeName = typeName
	h.mu.Unlock()
	obj.Install(h)
}

// Object returns the live shadow of id, or nil.
func (h *Loopback) Object(id int64) *bridge.NativeObject {
	h.mu.Lock()
	defer h.mu.Unlock()
	if st, ok := h.targets[id]; ok {
		return st.obj.Value()
	}
	return nil
}

// TypeName returns the type announced for id.
func (h *Loopback) TypeName(id int64) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if st, ok := h.targets[id]; ok {
		return st.typeName
	}
	return ""
}

// Interest returns the kinds announced for id, in arrival order.
func (h *Loopback) Interest(id int64) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if st, ok := h.targets[id]; ok {
		return slices.Clone(st.interest)
	}
	return nil
}

// Interested returns the ids of live targets with at least one announced
// kind, sorted.
func (h *Loopback) Interested(kind string) []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	var ids []int64
	for id, st := range h.targets {
		if slices.Contains(st.interest, kind) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Disposed returns the ids of disposed targets, in arrival order.
func (h *Loopback) Disposed() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.disposed)
}

// SetProperty stores a host-owned property of target id.
func (h *Loopback) SetProperty(id int64, name string, v native.Value) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state(id).props[name] = v
}

// Property returns a host-owned property of target id.
func (h *Loopback) Property(id int64, name string) (native.Value, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	st, ok := h.targets[id]
	if !ok {
		return native.Null(), false
	}
	v, ok := st.props[name]
	return v, ok
}

// HandleMethod registers fn for the named method on every target.
func (h *Loopback) HandleMethod(name string, fn MethodFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.methods[name] = fn
}

// RegisterFunc registers a synchronous host function and returns the value
// that surfaces it in script.
func (h *Loopback) RegisterFunc(fn Func) native.Value {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextFn++
	h.funcs[h.nextFn] = fn
	return native.Function(h.nextFn)
}

// RegisterAsync registers an asynchronous host function and returns the
// value that surfaces it in script.
func (h *Loopback) RegisterAsync(fn AsyncFunc) native.Value {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextFn++
	h.async[h.nextFn] = fn
	return native.AsyncFunction(h.nextFn)
}

// InvokeFromNative implements bridge.HostInvoker.
func (h *Loopback) InvokeFromNative(obj *bridge.NativeObject, method native.Value, args []native.Value) (native.Value, error) {
	return h.Invoke(obj.ID(), method, args)
}

// Invoke answers a call addressed to target id. Asynchronous calls expect
// the completion handle and a bridge.AsyncCompleter as Pointer values in
// arguments 3 and 4.
func (h *Loopback) Invoke(id int64, method native.Value, args []native.Value) (native.Value, error) {
	m := native.ParseMethod(method)
	if !m.IsOp {
		h.mu.Lock()
		fn, ok := h.methods[m.Name]
		h.mu.Unlock()
		if !ok {
			return native.Null(), fmt.Errorf("host: unknown method %q", m.Name)
		}
		return fn(id, args)
	}

	switch m.Op {
	case native.OpGetProperty:
		if len(args) != 1 {
			return native.Null(), fmt.Errorf("host: %s takes 1 argument, got %d", m.Op, len(args))
		}
		v, _ := h.Property(id, args[0].Text())
		return v, nil
	case native.OpSetProperty:
		if len(args) != 2 {
			return native.Null(), fmt.Errorf("host: %s takes 2 arguments, got %d", m.Op, len(args))
		}
		h.SetProperty(id, args[0].Text(), args[1])
		return native.Null(), nil
	case native.OpGetAllPropertyNames:
		h.mu.Lock()
		var names []string
		if st, ok := h.targets[id]; ok {
			for name := range st.props {
				names = append(names, name)
			}
		}
		h.mu.Unlock()
		slices.Sort(names)
		return native.FromAny(names)
	case native.OpAnonymousFunctionCall:
		return h.callFunc(args)
	case native.OpAsyncAnonymousFunction:
		return native.Null(), h.startAsync(args)
	}
	return native.Null(), fmt.Errorf("host: unsupported op %s", m.Op)
}

func (h *Loopback) callFunc(args []native.Value) (native.Value, error) {
	if len(args) < 1 {
		return native.Null(), fmt.Errorf("host: %s needs a function id", native.OpAnonymousFunctionCall)
	}
	id := args[0].Int()
	h.mu.Lock()
	fn, ok := h.funcs[id]
	h.mu.Unlock()
	if !ok {
		return native.Null(), fmt.Errorf("host: unknown function %d", id)
	}
	return fn(args[1:])
}

func (h *Loopback) startAsync(args []native.Value) error {
	if len(args) < 4 {
		return fmt.Errorf("host: %s needs 4 leading arguments, got %d", native.OpAsyncAnonymousFunction, len(args))
	}
	id := args[0].Int()
	contextID := args[1].Int()
	handle := args[2].Ptr()
	complete, ok := args[3].Ptr().(bridge.AsyncCompleter)
	if !ok {
		return fmt.Errorf("host: argument 4 is %T, want a completer", args[3].Ptr())
	}

	h.mu.Lock()
	fn, ok := h.async[id]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("host: unknown async function %d", id)
	}

	rest := slices.Clone(args[4:])
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		v, err := fn(h.ctx, rest)
		if err != nil {
			complete(handle, nil, contextID, err.Error())
			return
		}
		complete(handle, &v, contextID, "")
	}()
	return nil
}

// Dispatch sends a host-originated occurrence to target id. It returns false
// when the target or its context is gone.
func (h *Loopback) Dispatch(id int64, ev bridge.NativeEvent) bool {
	obj := h.Object(id)
	if obj == nil {
		return false
	}
	return obj.DispatchEvent(ev)
}

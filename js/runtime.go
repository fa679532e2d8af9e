// Package js exposes event targets, events and host-backed objects to scripts
// running in the goja JavaScript engine.
package js

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"weak"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/chrisuehlinger/hostbridge/bridge"
	"github.com/chrisuehlinger/hostbridge/dom"
)

// Runtime wraps a goja runtime bound to one bridge context. Every method
// except Wake must be called on the context's script goroutine.
type Runtime struct {
	vm        *goja.Runtime
	bctx      *bridge.Context
	logger    *zap.Logger
	timers    *timerManager
	eventLoop *eventLoop

	mu      sync.Mutex
	errMu   sync.Mutex
	errors  []error
	onError func(error)

	eventSym  *goja.Symbol
	jsonParse goja.Callable
	targets   map[int64]weak.Pointer[targetObject]
	body      *goja.Object
}

// NewRuntime creates a runtime for ctx.
func NewRuntime(ctx *bridge.Context) *Runtime {
	vm := goja.New()

	r := &Runtime{
		vm:        vm,
		bctx:      ctx,
		logger:    ctx.Logger().Named("js"),
		timers:    newTimerManager(),
		eventLoop: newEventLoop(),
		eventSym:  goja.NewSymbol("event"),
		targets:   make(map[int64]weak.Pointer[targetObject]),
	}
	r.jsonParse, _ = goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("parse"))

	r.setupConsole()
	r.setupTimers()
	r.setupEventConstructors()
	r.setupTargetConstructors()
	r.setupWindow()

	return r
}

// VM returns the underlying goja runtime.
func (r *Runtime) VM() *goja.Runtime {
	return r.vm
}

// Context returns the bridge context the runtime is bound to.
func (r *Runtime) Context() *bridge.Context {
	return r.bctx
}

// SetOnError sets a callback for JavaScript errors.
func (r *Runtime) SetOnError(handler func(error)) {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	r.onError = handler
}

func (r *Runtime) recordError(err error) {
	r.errMu.Lock()
	r.errors = append(r.errors, err)
	onError := r.onError
	r.errMu.Unlock()
	if onError != nil {
		onError(err)
	}
}

// reportError records a failure raised outside a top-level Execute, such as
// a timer callback, and forwards it to the bridge context.
func (r *Runtime) reportError(err error) {
	if err == nil {
		return
	}
	r.recordError(err)
	r.bctx.ReportError(err)
}

// Execute runs JavaScript code and returns the result.
func (r *Runtime) Execute(code string) (result goja.Value, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("script execution panic: %v", p)
			r.recordError(err)
		}
	}()

	result, err = r.vm.RunString(code)
	if err != nil {
		r.recordError(err)
	}
	return result, err
}

// ExecuteScript compiles and runs code under the given source name.
func (r *Runtime) ExecuteScript(code, src string) (err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("script compilation panic in %s: %v", src, p)
			r.recordError(err)
		}
	}()

	program, err := goja.Compile(src, code, false)
	if err != nil {
		r.recordError(err)
		return err
	}

	if _, err = r.vm.RunProgram(program); err != nil {
		r.recordError(err)
	}
	return err
}

// Errors returns all errors that occurred during execution.
func (r *Runtime) Errors() []error {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	return append([]error{}, r.errors...)
}

// ClearErrors clears the error list.
func (r *Runtime) ClearErrors() {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	r.errors = r.errors[:0]
}

// RunEventLoop runs tasks posted to the bridge context (host events,
// completed host calls), then microtasks, due timers and one macrotask.
// It returns true if more work is pending.
func (r *Runtime) RunEventLoop() bool {
	r.bctx.RunPending()
	return r.eventLoop.runOnce(r) || r.bctx.HasPending()
}

// ProcessTimers checks and executes any due timers.
func (r *Runtime) ProcessTimers() {
	r.timers.process(r)
}

// HasPendingWork returns true if there are timers or callbacks waiting.
func (r *Runtime) HasPendingWork() bool {
	return r.timers.hasPending() || r.eventLoop.hasPending() || r.bctx.HasPending()
}

// Run drives the event loop until ctx is done or the bridge context is
// disposed.
func (r *Runtime) Run(ctx context.Context) error {
	for r.bctx.IsValid() {
		r.RunEventLoop()
		if r.eventLoop.hasPending() || r.bctx.HasPending() {
			continue
		}

		var (
			due   <-chan time.Time
			timer *time.Timer
		)
		if r.timers.hasPending() {
			wait := r.timers.nextDueTime()
			if wait <= 0 {
				wait = time.Millisecond
			}
			timer = time.NewTimer(wait)
			due = timer.C
		}
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()
		case <-r.bctx.Wake():
		case <-due:
		}
		if timer != nil {
			timer.Stop()
		}
	}
	return bridge.ErrContextDisposed
}

// Close disposes every live target created by this runtime.
func (r *Runtime) Close() {
	for id, wp := range r.targets {
		if to := wp.Value(); to != nil {
			to.dispose()
		}
		delete(r.targets, id)
	}
	r.eventLoop.clear()
	r.timers.clear()
}

// setupConsole routes console output to the runtime logger.
func (r *Runtime) setupConsole() {
	console := r.vm.NewObject()
	logger := r.logger.Named("console")

	level := func(log func(string, ...zap.Field)) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			log(formatArgs(call.Arguments))
			return goja.Undefined()
		}
	}
	console.Set("log", level(logger.Info))
	console.Set("info", level(logger.Info))
	console.Set("warn", level(logger.Warn))
	console.Set("error", level(logger.Error))
	console.Set("debug", level(logger.Debug))
	console.Set("trace", level(logger.Debug))

	console.Set("assert", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 || !call.Arguments[0].ToBoolean() {
			msg := "Assertion failed"
			if len(call.Arguments) > 1 {
				msg = formatArgs(call.Arguments[1:])
			}
			logger.Error(msg, zap.Bool("assert", true))
		}
		return goja.Undefined()
	})

	counts := make(map[string]int)
	console.Set("count", func(call goja.FunctionCall) goja.Value {
		label := labelArg(call)
		counts[label]++
		logger.Info(label, zap.Int("count", counts[label]))
		return goja.Undefined()
	})
	console.Set("countReset", func(call goja.FunctionCall) goja.Value {
		delete(counts, labelArg(call))
		return goja.Undefined()
	})

	r.vm.Set("console", console)
}

func labelArg(call goja.FunctionCall) string {
	if len(call.Arguments) > 0 {
		return call.Arguments[0].String()
	}
	return "default"
}

// setupWindow exposes the global object as window and adds the document
// with its host-owned body target.
func (r *Runtime) setupWindow() {
	window := r.vm.GlobalObject()
	r.vm.Set("window", window)
	r.vm.Set("self", window)
	r.vm.Set("globalThis", window)

	performance := r.vm.NewObject()
	startTime := time.Now()
	performance.Set("now", func(call goja.FunctionCall) goja.Value {
		return r.vm.ToValue(float64(time.Since(startTime).Nanoseconds()) / 1e6)
	})
	performance.Set("timeOrigin", float64(startTime.UnixNano())/1e6)
	r.vm.Set("performance", performance)

	r.vm.Set("queueMicrotask", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			panic(r.vm.NewTypeError("Failed to execute 'queueMicrotask': 1 argument required."))
		}
		callback, ok := goja.AssertFunction(call.Arguments[0])
		if !ok {
			panic(r.vm.NewTypeError("Failed to execute 'queueMicrotask': parameter 1 is not a function."))
		}
		r.eventLoop.queueMicrotask(callback, nil)
		return goja.Undefined()
	})

	document := r.vm.NewObject()
	document.Set("parseMarkup", r.parseMarkup)
	body, err := r.NewNode("BODY", dom.WithID(bridge.BodyTargetID))
	if err != nil {
		r.logger.Warn("body target unavailable", zap.Error(err))
		document.Set("body", goja.Null())
	} else {
		r.body = body
		document.Set("body", body)
	}
	r.vm.Set("document", document)
}

// Body returns the script object of the body target.
func (r *Runtime) Body() *goja.Object {
	return r.body
}

// formatArgs formats function call arguments for console output.
func formatArgs(args []goja.Value) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = formatValue(arg)
	}
	return strings.Join(parts, " ")
}

// formatValue formats a single value for output.
func formatValue(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}
	return v.String()
}

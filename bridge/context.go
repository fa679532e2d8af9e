// Package bridge implements the execution context, the native shadow paired
// with every script-visible binding object, and the synchronous and
// asynchronous invocation protocol into the host.
package bridge

import (
	"fmt"
	"sync"
	"sync/atomic"
	"weak"

	"go.uber.org/zap"

	"github.com/chrisuehlinger/hostbridge/command"
)

// Reserved ids for well-known targets. The default allocator never yields them.
const (
	WindowTargetID int64 = -2
	BodyTargetID   int64 = -1
)

// IDAllocator hands out target ids for one context.
type IDAllocator interface {
	Next() int64
}

// CounterAllocator is an atomic counter that skips the reserved id range.
type CounterAllocator struct {
	next atomic.Int64
}

// NewCounterAllocator returns an allocator whose first id is start.
func NewCounterAllocator(start int64) *CounterAllocator {
	a := &CounterAllocator{}
	a.next.Store(start)
	return a
}

// Next returns the next id.
func (a *CounterAllocator) Next() int64 {
	for {
		id := a.next.Add(1) - 1
		if id < WindowTargetID || id > BodyTargetID {
			return id
		}
	}
}

// Option configures a Context.
type Option func(*Context)

// WithLogger sets the context logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Context) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithIDAllocator replaces the default target id allocator.
func WithIDAllocator(a IDAllocator) Option {
	return func(c *Context) {
		if a != nil {
			c.ids = a
		}
	}
}

// WithCommandSink sets where flushed commands are delivered.
func WithCommandSink(s command.Sink) Option {
	return func(c *Context) { c.sink = s }
}

// WithAutoFlush flushes the command queue once n commands are pending.
func WithAutoFlush(n int) Option {
	return func(c *Context) { c.autoFlush = n }
}

// WithErrorHandler observes every error reported through ReportError.
func WithErrorHandler(fn func(error)) Option {
	return func(c *Context) { c.onError = fn }
}

// Context is one isolated scripting context. Script-side work (registry
// mutation, dispatch, synchronous invocation) runs on a single goroutine, the
// one that calls RunPending. Post, CompleteAsync and the command queue are the
// only entry points safe to use from other goroutines.
type Context struct {
	id     ContextID
	pool   *Pool
	valid  atomic.Bool
	ids    IDAllocator
	logger *zap.Logger

	sink      command.Sink
	autoFlush int
	commands  *command.Queue

	onError func(error)

	inboxMu sync.Mutex
	inbox   []func()
	wake    chan struct{}

	// objects is touched only from the script goroutine.
	objects map[int64]weak.Pointer[NativeObject]

	asyncMu sync.Mutex
	async   map[*asyncContext]struct{}
}

func newContext(p *Pool, id ContextID, opts []Option) *Context {
	c := &Context{
		id:      id,
		pool:    p,
		ids:     NewCounterAllocator(1),
		logger:  p.logger,
		wake:    make(chan struct{}, 1),
		objects: make(map[int64]weak.Pointer[NativeObject]),
		async:   make(map[*asyncContext]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("bridge").With(zap.Stringer("context", id))
	c.commands = command.NewQueue(c.sink,
		command.WithAutoFlush(c.autoFlush),
		command.WithLogger(c.logger))
	c.valid.Store(true)
	return c
}

// ID returns the generation-stamped context id.
func (c *Context) ID() ContextID { return c.id }

// IsValid reports whether the context has not been disposed.
func (c *Context) IsValid() bool { return c.valid.Load() }

// Logger returns the context logger.
func (c *Context) Logger() *zap.Logger { return c.logger }

// Pool returns the owning pool.
func (c *Context) Pool() *Pool { return c.pool }

// Commands returns the context's command queue.
func (c *Context) Commands() *command.Queue { return c.commands }

// NextTargetID allocates a target id.
func (c *Context) NextTargetID() int64 { return c.ids.Next() }

// SetCommandSink replaces the sink flushed commands are delivered to.
func (c *Context) SetCommandSink(s command.Sink) {
	c.sink = s
	c.commands.SetSink(s)
}

// FlushCommands delivers every queued command. Delivery failures are logged
// and not returned: commands are fire-and-forget.
func (c *Context) FlushCommands() {
	_ = c.commands.Flush()
}

// ReportError is the context's error-reporting path for failures that must
// not propagate, such as a listener raising during dispatch.
func (c *Context) ReportError(err error) {
	if err == nil {
		return
	}
	c.logger.Warn("script error", zap.Error(err))
	if c.onError != nil {
		c.onError(err)
	}
}

// Post queues fn to run on the script goroutine during the next RunPending.
// It returns false when the context has been disposed.
func (c *Context) Post(fn func()) bool {
	if fn == nil || !c.IsValid() {
		return false
	}
	c.inboxMu.Lock()
	c.inbox = append(c.inbox, fn)
	c.inboxMu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return true
}

// Wake is signaled whenever a task is posted.
func (c *Context) Wake() <-chan struct{} { return c.wake }

// HasPending reports whether posted tasks are waiting.
func (c *Context) HasPending() bool {
	c.inboxMu.Lock()
	defer c.inboxMu.Unlock()
	return len(c.inbox) > 0
}

// RunPending runs posted tasks, including tasks posted while draining, and
// returns how many ran. It must be called on the script goroutine.
func (c *Context) RunPending() int {
	ran := 0
	for c.IsValid() {
		c.inboxMu.Lock()
		batch := c.inbox
		c.inbox = nil
		c.inboxMu.Unlock()
		if len(batch) == 0 {
			break
		}
		for _, fn := range batch {
			if !c.IsValid() {
				break
			}
			c.runTask(fn)
			ran++
		}
	}
	return ran
}

func (c *Context) runTask(fn func()) {
	defer func() {
		if p := recover(); p != nil {
			c.ReportError(fmt.Errorf("posted task panicked: %v", p))
		}
	}()
	fn()
}

func (c *Context) registerObject(obj *NativeObject) {
	if old, ok := c.objects[obj.id]; ok && old.Value() != nil {
		c.logger.Warn("target id reused", zap.Int64("target", obj.id))
	}
	c.objects[obj.id] = weak.Make(obj)
}

func (c *Context) unregisterObject(obj *NativeObject) {
	if cur, ok := c.objects[obj.id]; ok && (cur.Value() == obj || cur.Value() == nil) {
		delete(c.objects, obj.id)
	}
}

// Object returns the live native shadow addressed by id, or nil.
func (c *Context) Object(id int64) *NativeObject {
	wp, ok := c.objects[id]
	if !ok {
		return nil
	}
	obj := wp.Value()
	if obj == nil {
		delete(c.objects, id)
	}
	return obj
}

// DispatchFromHost delivers a host-originated occurrence to the target with
// the given id. It is safe to call from any goroutine; the dispatch itself
// runs during the next RunPending.
func (c *Context) DispatchFromHost(id int64, ev NativeEvent) bool {
	return c.Post(func() {
		obj := c.Object(id)
		if obj == nil {
			c.logger.Debug("host event for unknown target", zap.Int64("target", id), zap.String("kind", ev.Type))
			return
		}
		obj.dispatchNow(ev)
	})
}

// ScheduleDisposal queues the host notification for a destroyed target on
// the host-communication worker. The task carries only the two ids and looks
// the context up again when it runs, so it is dropped if the context is gone.
func ScheduleDisposal(p *Pool, ctxID ContextID, targetID int64) {
	if p == nil {
		return
	}
	p.worker.Submit(func() {
		ctx := p.Lookup(ctxID)
		if ctx == nil {
			return
		}
		ctx.commands.Register(command.Command{TargetID: targetID, Op: command.OpDisposeEventTarget})
	})
}

func (c *Context) trackAsync(ac *asyncContext) {
	c.asyncMu.Lock()
	c.async[ac] = struct{}{}
	c.asyncMu.Unlock()
}

func (c *Context) untrackAsync(ac *asyncContext) {
	c.asyncMu.Lock()
	delete(c.async, ac)
	c.asyncMu.Unlock()
}

// PendingAsync returns the number of asynchronous calls awaiting completion.
func (c *Context) PendingAsync() int {
	c.asyncMu.Lock()
	defer c.asyncMu.Unlock()
	return len(c.async)
}

// Dispose tears the context down. Queued commands are flushed first; posted
// tasks and pending asynchronous calls are dropped.
func (c *Context) Dispose() {
	if !c.valid.Load() {
		return
	}
	c.FlushCommands()
	if !c.valid.CompareAndSwap(true, false) {
		return
	}
	c.pool.release(c)

	c.inboxMu.Lock()
	c.inbox = nil
	c.inboxMu.Unlock()

	c.asyncMu.Lock()
	dropped := len(c.async)
	for ac := range c.async {
		ac.claim()
	}
	c.async = make(map[*asyncContext]struct{})
	c.asyncMu.Unlock()

	c.logger.Debug("context disposed", zap.Int("dropped_async", dropped))
}

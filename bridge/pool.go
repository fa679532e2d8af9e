package bridge

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/chrisuehlinger/hostbridge/command"
)

// ContextID identifies an execution context. It carries the context's slot
// in its pool and a generation that changes every time the slot is reused,
// so an id captured before teardown never matches a later context.
type ContextID int64

// MakeContextID packs a slot and generation.
func MakeContextID(slot int32, generation uint32) ContextID {
	return ContextID(int64(slot)<<32 | int64(generation))
}

// Slot returns the pool slot.
func (id ContextID) Slot() int32 { return int32(int64(id) >> 32) }

// Generation returns the slot generation.
func (id ContextID) Generation() uint32 { return uint32(int64(id) & 0xffffffff) }

func (id ContextID) String() string {
	return fmt.Sprintf("ctx(%d/%d)", id.Slot(), id.Generation())
}

type poolSlot struct {
	generation uint32
	ctx        *Context
}

// Pool owns the execution contexts of one process and the worker that stands
// in for the host-communication goroutine.
type Pool struct {
	mu     sync.Mutex
	slots  []poolSlot
	free   []int32
	worker *command.Worker
	logger *zap.Logger
}

// PoolOption configures a Pool.
type PoolOption func(*poolConfig)

type poolConfig struct {
	workerQueue int
	logger      *zap.Logger
}

// WithPoolLogger sets the pool's logger. Contexts inherit it unless they set their own.
func WithPoolLogger(l *zap.Logger) PoolOption {
	return func(c *poolConfig) { c.logger = l }
}

// WithWorkerQueue sets the capacity of the host-communication task queue.
func WithWorkerQueue(n int) PoolOption {
	return func(c *poolConfig) { c.workerQueue = n }
}

// NewPool creates an empty pool and starts its worker.
func NewPool(opts ...PoolOption) *Pool {
	cfg := poolConfig{workerQueue: 256, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	return &Pool{
		worker: command.NewWorker(cfg.workerQueue, cfg.logger.Named("worker")),
		logger: cfg.logger,
	}
}

// Worker returns the host-communication worker.
func (p *Pool) Worker() *command.Worker { return p.worker }

// NewContext allocates a context in a free slot.
func (p *Pool) NewContext(opts ...Option) *Context {
	p.mu.Lock()
	var slot int32
	if n := len(p.free); n > 0 {
		slot = p.free[n-1]
		p.free = p.free[:n-1]
	} else {
		slot = int32(len(p.slots))
		p.slots = append(p.slots, poolSlot{})
	}
	s := &p.slots[slot]
	s.generation++
	id := MakeContextID(slot, s.generation)
	ctx := newContext(p, id, opts)
	s.ctx = ctx
	p.mu.Unlock()

	ctx.logger.Debug("context created", zap.Stringer("context", id))
	return ctx
}

// Lookup returns the live context with exactly this id, or nil.
func (p *Pool) Lookup(id ContextID) *Context {
	p.mu.Lock()
	defer p.mu.Unlock()
	slot := id.Slot()
	if slot < 0 || int(slot) >= len(p.slots) {
		return nil
	}
	s := p.slots[slot]
	if s.ctx == nil || s.generation != id.Generation() || !s.ctx.IsValid() {
		return nil
	}
	return s.ctx
}

// Len returns the number of live contexts.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots) - len(p.free)
}

func (p *Pool) release(ctx *Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	slot := ctx.id.Slot()
	if int(slot) >= len(p.slots) || p.slots[slot].ctx != ctx {
		return
	}
	p.slots[slot].ctx = nil
	p.free = append(p.free, slot)
}

// Close disposes every live context and stops the worker after it has drained.
func (p *Pool) Close() {
	p.mu.Lock()
	live := make([]*Context, 0, len(p.slots))
	for _, s := range p.slots {
		if s.ctx != nil {
			live = append(live, s.ctx)
		}
	}
	p.mu.Unlock()

	for _, ctx := range live {
		ctx.Dispose()
	}
	p.worker.Close()
}

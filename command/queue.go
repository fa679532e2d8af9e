package command

import (
	"sync"

	"go.uber.org/zap"
)

// Queue buffers commands registered by one context until they are flushed to
// its Sink. Register may be called from any goroutine; batches reach the sink
// in registration order.
type Queue struct {
	mu      sync.Mutex
	pending []Command
	sink    Sink

	// flushMu serializes deliveries so concurrent flushes cannot reorder batches.
	flushMu sync.Mutex

	autoFlush int
	logger    *zap.Logger
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithAutoFlush flushes automatically once n commands are pending.
func WithAutoFlush(n int) QueueOption {
	return func(q *Queue) { q.autoFlush = n }
}

// WithLogger sets the logger used for delivery failures.
func WithLogger(l *zap.Logger) QueueOption {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// NewQueue creates a queue delivering to sink. A nil sink discards batches.
func NewQueue(sink Sink, opts ...QueueOption) *Queue {
	q := &Queue{
		sink:   sink,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// SetSink replaces the delivery target. Pending commands are kept.
func (q *Queue) SetSink(sink Sink) {
	q.mu.Lock()
	q.sink = sink
	q.mu.Unlock()
}

// Register appends a command.
func (q *Queue) Register(cmd Command) {
	q.mu.Lock()
	q.pending = append(q.pending, cmd)
	full := q.autoFlush > 0 && len(q.pending) >= q.autoFlush
	q.mu.Unlock()

	if full {
		if err := q.Flush(); err != nil {
			q.logger.Warn("auto flush failed", zap.Error(err))
		}
	}
}

// Len returns the number of pending commands.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Flush hands every pending command to the sink as one batch.
func (q *Queue) Flush() error {
	q.flushMu.Lock()
	defer q.flushMu.Unlock()

	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	sink := q.sink
	q.mu.Unlock()

	if len(batch) == 0 || sink == nil {
		return nil
	}
	if err := sink.Deliver(batch); err != nil {
		q.logger.Warn("command delivery failed", zap.Int("commands", len(batch)), zap.Error(err))
		return err
	}
	return nil
}

// Discard drops every pending command.
func (q *Queue) Discard() {
	q.mu.Lock()
	q.pending = nil
	q.mu.Unlock()
}

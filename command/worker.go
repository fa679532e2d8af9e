package command

import (
	"sync"

	"go.uber.org/zap"
)

// Task is a unit of work drained on the worker goroutine.
type Task func()

// Worker runs tasks one at a time, in submission order, on its own goroutine.
// It stands in for the host-communication thread.
type Worker struct {
	tasks  chan Task
	done   chan struct{}
	once   sync.Once
	mu     sync.RWMutex
	closed bool
	logger *zap.Logger
}

// NewWorker starts a worker with the given queue capacity.
func NewWorker(capacity int, logger *zap.Logger) *Worker {
	if capacity <= 0 {
		capacity = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Worker{
		tasks:  make(chan Task, capacity),
		done:   make(chan struct{}),
		logger: logger,
	}
	go w.run()
	return w
}

func (w *Worker) run() {
	defer close(w.done)
	for task := range w.tasks {
		w.exec(task)
	}
}

func (w *Worker) exec(task Task) {
	defer func() {
		if p := recover(); p != nil {
			w.logger.Error("worker task panicked", zap.Any("panic", p))
		}
	}()
	task()
}

// Submit queues a task. It returns false once the worker is closed.
func (w *Worker) Submit(task Task) bool {
	if task == nil {
		return false
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return false
	}
	w.tasks <- task
	return true
}

// Sync blocks until every task submitted before the call has run.
func (w *Worker) Sync() {
	ch := make(chan struct{})
	if !w.Submit(func() { close(ch) }) {
		return
	}
	<-ch
}

// Close stops accepting tasks and waits for queued ones to finish.
func (w *Worker) Close() {
	w.once.Do(func() {
		w.mu.Lock()
		w.closed = true
		close(w.tasks)
		w.mu.Unlock()
	})
	<-w.done
}

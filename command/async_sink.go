package command

import (
	"go.uber.org/zap"
)

// AsyncSink decouples flushing from delivery: batches are copied onto a
// buffered channel and delivered to the wrapped sink on a separate goroutine,
// preserving order.
type AsyncSink struct {
	next    Sink
	batches chan []Command
	done    chan struct{}
	logger  *zap.Logger
}

// NewAsyncSink starts delivering to next with room for buffer batches.
func NewAsyncSink(next Sink, buffer int, logger *zap.Logger) *AsyncSink {
	if buffer <= 0 {
		buffer = 16
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &AsyncSink{
		next:    next,
		batches: make(chan []Command, buffer),
		done:    make(chan struct{}),
		logger:  logger,
	}
	go s.run()
	return s
}

func (s *AsyncSink) run() {
	defer close(s.done)
	for batch := range s.batches {
		if err := s.next.Deliver(batch); err != nil {
			s.logger.Warn("async delivery failed", zap.Int("commands", len(batch)), zap.Error(err))
		}
	}
}

// Deliver enqueues a copy of batch. Failures surface only in the log.
func (s *AsyncSink) Deliver(batch []Command) error {
	cp := make([]Command, len(batch))
	copy(cp, batch)
	s.batches <- cp
	return nil
}

// Close delivers whatever is buffered and stops the goroutine. Deliver must
// not be called afterwards.
func (s *AsyncSink) Close() {
	close(s.batches)
	<-s.done
}

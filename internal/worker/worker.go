// Package worker implements per-item crawl processing and the worker loop
// that drains the run queue.
package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/addrcrawl/internal/stats"
)

// Queue is the consumer side of the run's bounded work channel.
type Queue interface {
	Dequeue(ctx context.Context) (string, bool)
}

// Worker consumes queue items and hands each to the Processor.
type Worker struct {
	queue     Queue
	processor *Processor
	counters  *stats.Counters
	logger    *zap.Logger
}

// New constructs a Worker.
func New(queue Queue, processor *Processor, counters *stats.Counters, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:     queue,
		processor: processor,
		counters:  counters,
		logger:    logger,
	}
}

// Run blocks until the queue reports no more work: closed and drained, or ctx
// done. An item already dequeued is always taken to a terminal outcome.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, ok := w.queue.Dequeue(ctx)
		if !ok {
			w.logger.Debug("worker exiting")
			return
		}
		w.counters.Popped.Inc()
		w.counters.InFlight.Inc()
		outcome := w.processor.Process(ctx, item)
		w.counters.InFlight.Dec()
		w.logger.Debug("item done", zap.String("item", item), zap.String("outcome", string(outcome)))
	}
}

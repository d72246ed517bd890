// Package worker runs file jobs from the queue on a bounded set of goroutines.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/gradeetl/internal/adapters/mq/queue"
	"github.com/okian/gradeetl/pkg/logger"
	"github.com/okian/gradeetl/pkg/metrics"
)

// Processor handles one job. A returned error stops the whole pool.
type Processor interface {
	Process(ctx context.Context, job queue.Job) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, job queue.Job) error

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, job queue.Job) error { return f(ctx, job) }

// Worker drains jobs from a queue until it is closed.
type Worker interface {
	// Run processes jobs until the queue is drained, ctx is canceled or the
	// processor fails.
	Run(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue     queue.Queue
	processor Processor
	name      string
	logger    logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q queue.Queue, p Processor, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     q,
		processor: p,
		name:      "worker",
		logger:    logger.Get().Named("worker"),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) error {
	jobs := w.queue.Dequeue()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case job, ok := <-jobs:
			if !ok {
				return nil
			}
			metrics.UpdateQueueSize(w.queue.Len())
			if err := w.process(ctx, job); err != nil {
				return err
			}
		}
	}
}

func (w *InMemoryWorker) process(ctx context.Context, job queue.Job) error {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	if err := w.processor.Process(ctx, job); err != nil {
		metrics.RecordWorkerError()
		w.logger.Error(ctx, "job failed",
			logger.String("file", job.Name),
			logger.Int("index", job.Index),
			logger.Error(err),
		)
		return fmt.Errorf("process %s: %w", job.Name, err)
	}
	return nil
}

// Pool feeds jobs through a queue to a fixed set of workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   queue.Queue
	logger  logger.Logger
}

// NewPool creates a pool of workerCount workers reading from q. A
// non-positive count uses runtime.NumCPU.
func NewPool(workerCount int, q queue.Queue, p Processor) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewInMemoryWorker(q, p, WithName("worker-"+strconv.Itoa(i)))
	}
	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Run enqueues jobs, closes the queue and waits for every worker. The first
// failure cancels the rest and is returned.
func (p *Pool) Run(ctx context.Context, jobs []queue.Job) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer func() {
			if err := p.queue.Close(); err != nil {
				p.logger.Error(gctx, "error closing queue", logger.Error(err))
			}
		}()
		for _, j := range jobs {
			if err := p.queue.Enqueue(gctx, j); err != nil {
				return fmt.Errorf("enqueue %s: %w", j.Name, err)
			}
		}
		return nil
	})

	metrics.UpdateWorkerActiveCount(len(p.workers))
	defer metrics.UpdateWorkerActiveCount(0)

	for _, w := range p.workers {
		g.Go(func() error { return w.Run(gctx) })
	}
	return g.Wait()
}

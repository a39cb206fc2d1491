package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"parallax/internal/domain"
	"parallax/internal/infra"
)

// Task is one unit of pipeline work: run the orchestrator for a job.
type Task struct {
	JobID    string
	Filename string
	Hint     domain.InputType
}

// ErrDispatcherClosed is returned by Enqueue after Close.
var ErrDispatcherClosed = errors.New("pipeline: dispatcher closed")

// Dispatcher is the explicit queue between job submission and execution. A
// fixed pool of workers drains the queue; each task runs one orchestrator
// invocation. Run errors are logged here; they were already made durable on
// the job record by the orchestrator.
type Dispatcher struct {
	orchestrator *Orchestrator
	logger       infra.Logger
	tasks        chan Task
	group        *errgroup.Group

	mu     sync.RWMutex // guards sends against Close
	closed chan struct{}
}

// NewDispatcher creates a dispatcher with the given worker count and queue
// depth and starts the workers immediately.
func NewDispatcher(ctx context.Context, orchestrator *Orchestrator, workers, depth int, logger infra.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if depth <= 0 {
		depth = 16
	}
	d := &Dispatcher{
		orchestrator: orchestrator,
		logger:       logger,
		tasks:        make(chan Task, depth),
		closed:       make(chan struct{}),
	}
	group := new(errgroup.Group)
	d.group = group
	for i := 0; i < workers; i++ {
		group.Go(func() error {
			d.work(ctx)
			return nil
		})
	}
	return d
}

// Enqueue submits a task. It blocks while the queue is full and fails once
// the dispatcher is closed or the context is done.
func (d *Dispatcher) Enqueue(ctx context.Context, task Task) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	select {
	case <-d.closed:
		return ErrDispatcherClosed
	default:
	}
	select {
	case d.tasks <- task:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pipeline: enqueue: %w", ctx.Err())
	}
}

// Close stops accepting tasks. Queued tasks still run.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	select {
	case <-d.closed:
		return
	default:
	}
	close(d.closed)
	close(d.tasks)
}

// Wait blocks until all workers have drained the queue. Call after Close.
func (d *Dispatcher) Wait() error {
	return d.group.Wait()
}

// work drains the queue until Close. Run errors are already durable on the
// job record, so they are surfaced to the log only; one bad job never stops
// the workers.
func (d *Dispatcher) work(ctx context.Context) {
	for task := range d.tasks {
		if err := d.orchestrator.Run(ctx, task.JobID, task.Filename, task.Hint); err != nil {
			d.logger.Error().Err(err).Str("job_id", task.JobID).Msg("dispatcher: job run failed")
		}
	}
}

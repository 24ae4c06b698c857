package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"custsync/pkg/logger"
)

var (
	ErrPoolClosed = errors.New("runner: pool is shutting down")
	ErrQueueFull  = errors.New("runner: queue is full")
	ErrDuplicate  = errors.New("runner: task id already live")
)

// Task is a unit of background work. It must return promptly once ctx is done.
type Task func(ctx context.Context) error

// Handle is the caller's view of a submitted task
type Handle struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func (h *Handle) ID() string { return h.id }

// Done is closed once the task has returned
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the task returns or ctx is done
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the task's result, or nil while it is still running
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Cancel asks the task to stop; it still runs its cleanup
func (h *Handle) Cancel() { h.cancel() }

// Pool runs tasks on a fixed number of workers
type Pool struct {
	numWorkers int
	queue      chan *Handle
	tasks      map[*Handle]Task
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	logger     logger.Logger

	mu     sync.Mutex
	closed bool
	live   map[string]*Handle
}

// NewPool creates a pool; queueSize bounds tasks waiting for a worker
func NewPool(numWorkers, queueSize int, log logger.Logger) *Pool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		numWorkers: numWorkers,
		queue:      make(chan *Handle, queueSize),
		tasks:      make(map[*Handle]Task),
		ctx:        ctx,
		cancel:     cancel,
		logger:     log.WithField("component", "runner"),
		live:       make(map[string]*Handle),
	}
}

// Start launches the workers
func (p *Pool) Start() {
	p.logger.InfoWithFields("Starting worker pool", map[string]interface{}{
		"num_workers": p.numWorkers,
		"queue_size":  cap(p.queue),
	})

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Submit queues a task without blocking. The id must not belong to a live task.
func (p *Pool) Submit(id string, task Task) (*Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}
	if _, ok := p.live[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, id)
	}

	ctx, cancel := context.WithCancel(p.ctx)
	h := &Handle{id: id, ctx: ctx, cancel: cancel, done: make(chan struct{})}

	select {
	case p.queue <- h:
	default:
		cancel()
		return nil, ErrQueueFull
	}

	p.tasks[h] = task
	p.live[id] = h

	p.logger.DebugWithFields("Task submitted", map[string]interface{}{
		"task_id":    id,
		"queue_size": len(p.queue),
	})
	return h, nil
}

// Cancel cancels a live task by id
func (p *Pool) Cancel(id string) bool {
	p.mu.Lock()
	h, ok := p.live[id]
	p.mu.Unlock()

	if ok {
		h.Cancel()
	}
	return ok
}

// Lookup returns the handle of a live task
func (p *Pool) Lookup(id string) (*Handle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.live[id]
	return h, ok
}

// Live returns the number of queued or running tasks
func (p *Pool) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.live)
}

// Stop refuses new tasks, cancels the rest and waits for workers to drain.
// Queued tasks still run with a cancelled context so they can record their state.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.logger.Info("Stopping worker pool")
	p.cancel()

	drained := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		p.logger.Info("Worker pool stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("runner: stop: %w", ctx.Err())
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for h := range p.queue {
		p.mu.Lock()
		task := p.tasks[h]
		delete(p.tasks, h)
		p.mu.Unlock()

		p.run(id, h, task)
	}
}

func (p *Pool) run(workerID int, h *Handle, task Task) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			h.err = fmt.Errorf("runner: task %s panicked: %v", h.id, r)
		}
		h.cancel()

		p.mu.Lock()
		if p.live[h.id] == h {
			delete(p.live, h.id)
		}
		p.mu.Unlock()
		close(h.done)

		p.logger.DebugWithFields("Task finished", map[string]interface{}{
			"worker_id": workerID,
			"task_id":   h.id,
			"duration":  time.Since(start),
			"failed":    h.err != nil,
		})
	}()

	h.err = task(h.ctx)
}

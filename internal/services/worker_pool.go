package services

import (
	"context"
	"log"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Task is a unit of background work
type Task func(ctx context.Context)

type namedTask struct {
	name string
	run  Task
}

// WorkerPool runs background extraction and journaling off the request path.
// Submit never blocks: when the queue is full the task is rejected.
type WorkerPool struct {
	tasks  chan namedTask
	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

// NewWorkerPool starts workers goroutines draining a queue of queueDepth tasks
func NewWorkerPool(workers, queueDepth int) *WorkerPool {
	if workers <= 0 {
		workers = 4
	}
	if queueDepth < 0 {
		queueDepth = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)

	p := &WorkerPool{
		tasks:  make(chan namedTask, queueDepth),
		group:  group,
		ctx:    gctx,
		cancel: cancel,
	}

	for i := 0; i < workers; i++ {
		group.Go(p.worker)
	}

	log.Printf("✅ [WORKER-POOL] Started %d workers (queue depth %d)", workers, queueDepth)
	return p
}

func (p *WorkerPool) worker() error {
	for task := range p.tasks {
		p.execute(task)
	}
	return nil
}

func (p *WorkerPool) execute(task namedTask) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ [WORKER-POOL] Task %s panicked: %v\n%s", task.name, r, debug.Stack())
			poolTasks.WithLabelValues("panic").Inc()
		}
	}()
	poolQueued.Dec()
	task.run(p.ctx)
	poolTasks.WithLabelValues("completed").Inc()
}

// Submit enqueues a task, returning false if the pool is stopped or saturated
func (p *WorkerPool) Submit(name string, task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return false
	}

	select {
	case p.tasks <- namedTask{name: name, run: task}:
		poolQueued.Inc()
		return true
	default:
		log.Printf("⚠️  [WORKER-POOL] Queue full, rejected task %s", name)
		poolTasks.WithLabelValues("rejected").Inc()
		return false
	}
}

// Stop rejects new tasks, lets queued ones finish and waits for the workers.
// The context passed to tasks is cancelled once ctx expires.
func (p *WorkerPool) Stop(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.group.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		log.Println("⚠️  [WORKER-POOL] Shutdown deadline reached, cancelling running tasks")
		p.cancel()
		<-done
	}
	p.cancel()
}

package server

import (
	"context"
	"sync"

	"github.com/marmos91/driftfs/internal/logger"
)

// workerPool runs background tasks on a fixed set of goroutines. Mount
// teardowns run here so a slow filesystem shutdown never stalls the
// main loop or other teardowns.
type workerPool struct {
	tasks chan func()
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func newWorkerPool(size int) *workerPool {
	if size < 1 {
		size = 1
	}

	p := &workerPool{
		tasks: make(chan func(), size*4),
	}

	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}

	return p
}

func (p *workerPool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		task()
	}
}

// Submit queues a task. If the pool is already closed the task runs
// inline on the caller's goroutine so it is never silently dropped.
func (p *workerPool) Submit(task func()) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		logger.Debug("worker pool closed, running task inline")
		task()
		return
	}
	defer p.mu.Unlock()

	p.tasks <- task
}

// Close stops accepting tasks and waits for in-flight ones to finish or
// the context to expire, whichever comes first. On expiry the remaining
// tasks keep running on their worker goroutines but the caller is no
// longer blocked on them.
func (p *workerPool) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

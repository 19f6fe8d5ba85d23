package internal

import "sync"

// Executor is the task-scheduling seam asynchronous requests run on.
type Executor interface {
	// TryAdd schedules task, returning false if the executor cannot
	// accept more work. TryAdd never blocks.
	TryAdd(task func()) bool
}

// InlineExecutor runs tasks synchronously on the calling goroutine. Useful
// in tests and when deterministic ordering matters more than concurrency.
type InlineExecutor struct{}

func (InlineExecutor) TryAdd(task func()) bool {
	task()
	return true
}

// PoolExecutor runs tasks on a fixed set of worker goroutines fed from a
// bounded queue. TryAdd fails when the queue is full or the pool has been
// shut down.
type PoolExecutor struct {
	mu     sync.Mutex
	tasks  chan func()
	wg     sync.WaitGroup
	closed bool
}

// NewPoolExecutor starts workers goroutines behind a queue of queueDepth
// pending tasks.
func NewPoolExecutor(workers, queueDepth int) *PoolExecutor {
	if workers < 1 {
		workers = 1
	}
	p := &PoolExecutor{tasks: make(chan func(), queueDepth)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer p.wg.Done()
			for task := range p.tasks {
				task()
			}
		}()
	}
	return p
}

func (p *PoolExecutor) TryAdd(task func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.tasks <- task:
		return true
	default:
		return false
	}
}

// Shutdown stops accepting tasks and waits for queued work to drain.
func (p *PoolExecutor) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}

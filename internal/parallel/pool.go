package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/gogpu/framegraph/rhi"
)

// WorkerPool is a pool of goroutines that runs submitted jobs.
//
// Every worker owns a queue. Submit places a job on the shortest queue and
// idle workers steal from their neighbours, which keeps long recording ranges
// from starving the rest of the batch.
//
// WorkerPool implements [rhi.JobSystem] and is safe for concurrent use.
type WorkerPool struct {
	workers    int
	workQueues []chan func()
	done       chan struct{}
	wg         sync.WaitGroup
	running    atomic.Bool

	// closeMu orders Submit against Close so no job is queued after the
	// workers have drained and exited.
	closeMu sync.RWMutex
}

var _ rhi.JobSystem = (*WorkerPool)(nil)

// NewWorkerPool creates a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	queueSize := max(workers*4, 8)

	p := &WorkerPool{
		workers:    workers,
		workQueues: make([]chan func(), workers),
		done:       make(chan struct{}),
	}
	for i := range workers {
		p.workQueues[i] = make(chan func(), queueSize)
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	own := p.workQueues[id]
	for {
		select {
		case <-p.done:
			p.drainQueue(own)
			return
		case job := <-own:
			job()
		default:
			if stolen := p.steal(id); stolen != nil {
				stolen()
				continue
			}
			select {
			case <-p.done:
				p.drainQueue(own)
				return
			case job := <-own:
				job()
			}
		}
	}
}

func (p *WorkerPool) drainQueue(queue chan func()) {
	for {
		select {
		case job := <-queue:
			job()
		default:
			return
		}
	}
}

// steal takes one job from another worker's queue, or returns nil.
func (p *WorkerPool) steal(self int) func() {
	for i := range p.workers {
		if i == self {
			continue
		}
		select {
		case job := <-p.workQueues[i]:
			return job
		default:
		}
	}
	return nil
}

// future is closed when its job has returned.
type future struct {
	done chan struct{}
}

// Wait blocks until the job has run.
func (f *future) Wait() { <-f.done }

// Submit queues task on the least loaded worker and returns a future for it.
// After Close the task runs synchronously on the caller's goroutine so the
// returned future never blocks forever.
func (p *WorkerPool) Submit(task func()) rhi.Future {
	f := &future{done: make(chan struct{})}
	job := func() {
		defer close(f.done)
		task()
	}

	p.closeMu.RLock()
	defer p.closeMu.RUnlock()

	if !p.running.Load() {
		job()
		return f
	}

	minIdx := 0
	minLen := len(p.workQueues[0])
	for i := 1; i < p.workers; i++ {
		if l := len(p.workQueues[i]); l < minLen {
			minLen, minIdx = l, i
		}
	}
	p.workQueues[minIdx] <- job
	return f
}

// ExecuteAll runs every job and waits for all of them.
func (p *WorkerPool) ExecuteAll(jobs []func()) {
	futures := make([]rhi.Future, 0, len(jobs))
	for _, job := range jobs {
		futures = append(futures, p.Submit(job))
	}
	for _, f := range futures {
		f.Wait()
	}
}

// Close stops accepting work, runs what is still queued and stops the
// workers. Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	p.closeMu.Lock()
	if !p.running.CompareAndSwap(true, false) {
		p.closeMu.Unlock()
		return
	}
	close(p.done)
	p.closeMu.Unlock()

	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning reports whether the pool still accepts work.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}

// QueuedWork returns an approximate count of queued jobs.
func (p *WorkerPool) QueuedWork() int {
	total := 0
	for _, q := range p.workQueues {
		total += len(q)
	}
	return total
}

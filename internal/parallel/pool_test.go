package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// =============================================================================
// WorkerPool Creation Tests
// =============================================================================

func TestWorkerPool_Create(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	if pool.Workers() != 4 {
		t.Errorf("Workers() = %d, want 4", pool.Workers())
	}
	if !pool.IsRunning() {
		t.Error("Pool should be running after creation")
	}
}

func TestWorkerPool_CreateZeroWorkers(t *testing.T) {
	pool := NewWorkerPool(0)
	defer pool.Close()

	if want := runtime.GOMAXPROCS(0); pool.Workers() != want {
		t.Errorf("Workers() = %d, want %d (GOMAXPROCS)", pool.Workers(), want)
	}
}

// =============================================================================
// Submit Tests
// =============================================================================

func TestWorkerPool_SubmitFuture(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Close()

	var ran atomic.Bool
	f := pool.Submit(func() {
		time.Sleep(5 * time.Millisecond)
		ran.Store(true)
	})
	f.Wait()

	if !ran.Load() {
		t.Error("Wait returned before the job ran")
	}
}

func TestWorkerPool_SubmitMany(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var counter atomic.Int64
	const n = 200

	var futures []interface{ Wait() }
	for range n {
		futures = append(futures, pool.Submit(func() { counter.Add(1) }))
	}
	for _, f := range futures {
		f.Wait()
	}

	if counter.Load() != n {
		t.Errorf("counter = %d, want %d", counter.Load(), n)
	}
}

func TestWorkerPool_SubmitAfterClose(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Close()

	var ran bool
	pool.Submit(func() { ran = true }).Wait()

	if !ran {
		t.Error("job submitted after Close should run inline")
	}
}

// =============================================================================
// ExecuteAll Tests
// =============================================================================

func TestWorkerPool_ExecuteAll(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var mu sync.Mutex
	seen := make(map[int]bool)

	jobs := make([]func(), 50)
	for i := range jobs {
		jobs[i] = func() {
			mu.Lock()
			seen[i] = true
			mu.Unlock()
		}
	}
	pool.ExecuteAll(jobs)

	if len(seen) != len(jobs) {
		t.Errorf("ran %d jobs, want %d", len(seen), len(jobs))
	}
}

// =============================================================================
// Close Tests
// =============================================================================

func TestWorkerPool_CloseDrainsQueue(t *testing.T) {
	pool := NewWorkerPool(1)

	var counter atomic.Int64
	for range 10 {
		pool.Submit(func() {
			time.Sleep(time.Millisecond)
			counter.Add(1)
		})
	}
	pool.Close()

	if counter.Load() != 10 {
		t.Errorf("counter = %d after Close, want 10", counter.Load())
	}
	if pool.IsRunning() {
		t.Error("pool should not be running after Close")
	}
	pool.Close()
}

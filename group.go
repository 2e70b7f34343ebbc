package framegraph

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/gogpu/framegraph/rhi"
)

// taskGroup runs tasks and joins them all before Wait returns. It uses the
// injected job system when there is one and bounded goroutines otherwise.
// Wait reports the first error.
type taskGroup struct {
	ctx  context.Context
	jobs rhi.JobSystem
	eg   *errgroup.Group

	futures []rhi.Future
	errOnce sync.Once
	err     error
}

func newTaskGroup(ctx context.Context, jobs rhi.JobSystem) *taskGroup {
	if jobs != nil {
		return &taskGroup{ctx: ctx, jobs: jobs}
	}
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.GOMAXPROCS(0))
	return &taskGroup{ctx: egCtx, eg: eg}
}

// Go starts task. Tasks must not call Go themselves.
func (t *taskGroup) Go(task func(ctx context.Context) error) {
	if t.eg != nil {
		t.eg.Go(func() error { return task(t.ctx) })
		return
	}
	t.futures = append(t.futures, t.jobs.Submit(func() {
		if err := task(t.ctx); err != nil {
			t.errOnce.Do(func() { t.err = err })
		}
	}))
}

// Wait blocks until every task has finished.
func (t *taskGroup) Wait() error {
	if t.eg != nil {
		return t.eg.Wait()
	}
	for _, f := range t.futures {
		f.Wait()
	}
	return t.err
}

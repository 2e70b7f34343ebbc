package halrhi

import (
	"context"
	"sync/atomic"

	"github.com/gogpu/framegraph/rhi"
)

// Fence is an rhi.Fence bound to a queue submission index. It is unsignalled
// until a command buffer it was flushed into is submitted and the queue
// reports that submission as completed.
type Fence struct {
	dev   *Device
	index atomic.Uint64
}

var _ rhi.Fence = (*Fence)(nil)

// Index returns the submission index the fence waits for, zero before its
// command buffer was submitted.
func (f *Fence) Index() uint64 { return f.index.Load() }

func (f *Fence) Signalled() bool {
	idx := f.index.Load()
	return idx != 0 && f.dev.completed(idx)
}

func (f *Fence) Wait(ctx context.Context) error {
	return f.dev.poll(ctx, f.Signalled)
}

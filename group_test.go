package framegraph

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gogpu/framegraph/rhi"
	"github.com/gogpu/framegraph/rhi/rhitest"
)

func TestTaskGroup(t *testing.T) {
	errBoom := errors.New("boom")

	for _, jobs := range []rhi.JobSystem{nil, &rhitest.Jobs{}} {
		name := "errgroup"
		if jobs != nil {
			name = "jobs"
		}
		t.Run(name, func(t *testing.T) {
			var ran atomic.Int32
			g := newTaskGroup(context.Background(), jobs)
			for i := range 8 {
				g.Go(func(context.Context) error {
					ran.Add(1)
					if i == 3 {
						return errBoom
					}
					return nil
				})
			}
			err := g.Wait()
			assert.ErrorIs(t, err, errBoom)
			assert.Equal(t, int32(8), ran.Load(), "every task joins before Wait returns")
		})
	}
}

package backend

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/framegraph/rhi"
)

func TestRecorderBackendName(t *testing.T) {
	b := NewRecorderBackend()
	assert.Equal(t, BackendRecorder, b.Name())
}

func TestRecorderBackendBeforeInit(t *testing.T) {
	b := NewRecorderBackend()
	assert.Nil(t, b.Device())
	assert.Nil(t, b.StateTracker())
	assert.Nil(t, b.Bindless())
	_, err := b.NewCommandBuffer("frame")
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestRecorderBackendRecords(t *testing.T) {
	b := NewRecorderBackend()
	require.NoError(t, b.Init())
	defer b.Close()

	fence, err := b.Device().CreateFence()
	require.NoError(t, err)
	cmd, err := b.NewCommandBuffer("frame")
	require.NoError(t, err)

	require.NoError(t, cmd.Begin())
	cmd.Flush(fence)
	require.NoError(t, cmd.End())
	require.NoError(t, cmd.Submit(context.Background(), false))

	assert.True(t, fence.Signalled())
	require.Len(t, b.CommandBuffers(), 1)
	assert.Equal(t, 1, b.CommandBuffers()[0].Submits())
}

// failing is a backend whose Init always fails.
type failing struct{ name string }

var errNoDriver = errors.New("no driver")

func (failing) Close() {}

func (f failing) Name() string                                     { return f.name }
func (failing) Init() error                                        { return errNoDriver }
func (failing) Device() rhi.Device                                 { return nil }
func (failing) NewCommandBuffer(string) (rhi.CommandBuffer, error) { return nil, ErrNotInitialized }
func (failing) StateTracker() rhi.StateTracker                     { return nil }
func (failing) Bindless() rhi.BindlessRegistry                     { return nil }

func withRegistered(t *testing.T, name string, factory BackendFactory) {
	t.Helper()
	Register(name, factory)
	t.Cleanup(func() { Unregister(name) })
}

func TestRegistry(t *testing.T) {
	withRegistered(t, "zz-test", func() Backend { return failing{name: "zz-test"} })

	assert.True(t, IsRegistered("zz-test"))
	assert.Contains(t, Available(), "zz-test")
	assert.True(t, slices.IsSorted(Available()))
	assert.Equal(t, "zz-test", Get("zz-test").Name())
	assert.Nil(t, Get("missing"))

	Unregister("zz-test")
	assert.False(t, IsRegistered("zz-test"))
}

func TestDefaultFollowsPriority(t *testing.T) {
	withRegistered(t, BackendVulkan, func() Backend { return failing{name: BackendVulkan} })
	assert.Equal(t, BackendVulkan, MustDefault().Name())
}

func TestInitDefaultSkipsFailingBackends(t *testing.T) {
	withRegistered(t, BackendVulkan, func() Backend { return failing{name: BackendVulkan} })

	b, err := InitDefault()
	require.NoError(t, err)
	defer b.Close()
	assert.NotEqual(t, BackendVulkan, b.Name())
}

func TestOpen(t *testing.T) {
	b, err := Open(BackendRecorder)
	require.NoError(t, err)
	b.Close()

	_, err = Open("missing")
	assert.ErrorIs(t, err, ErrBackendNotAvailable)

	withRegistered(t, "broken", func() Backend { return failing{name: "broken"} })
	_, err = Open("broken")
	assert.ErrorIs(t, err, errNoDriver)
}

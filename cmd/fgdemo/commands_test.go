package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/framegraph"
	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/rhi"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRunOnBackends(t *testing.T) {
	for _, name := range []string{backend.BackendRecorder, backend.BackendNoop} {
		t.Run(name, func(t *testing.T) {
			out, err := execute(t, "run", "--backend", name, "--frames", "2", "--width", "32", "--height", "16")
			require.NoError(t, err)
			assert.Contains(t, out, "backend "+name+", 32x16")
			assert.Contains(t, out, "frame 0:")
			assert.Contains(t, out, "frame 1:")
			assert.Contains(t, out, "1 culled")
			assert.Contains(t, out, "framegraph_passes_executed_total")
		})
	}
}

func TestRunSingleThreaded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("multithreaded: false\nmax_passes_per_range: 1\n"), 0o600))

	out, err := execute(t, "run", "-b", backend.BackendRecorder, "-n", "1", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "frame 0:")
}

func TestInspect(t *testing.T) {
	out, err := execute(t, "inspect", "-b", backend.BackendRecorder)
	require.NoError(t, err)
	for _, want := range []string{"GBuffer", "Lighting", "DebugOverlay", "Present", "Readback luminance", "culled", "compute", "side-effect", "albedo", "luminance"} {
		assert.Contains(t, out, want)
	}
}

func TestBackendsLists(t *testing.T) {
	out, err := execute(t, "backends")
	require.NoError(t, err)
	assert.Contains(t, out, backend.BackendRecorder+"\n")
	assert.Contains(t, out, backend.BackendNoop+"\n")
}

func TestUnknownBackend(t *testing.T) {
	_, err := execute(t, "run", "-b", "voodoo")
	require.ErrorIs(t, err, backend.ErrBackendNotAvailable)
}

func TestInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: -1\n"), 0o600))

	_, err := execute(t, "run", "-b", backend.BackendRecorder, "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestSummarize(t *testing.T) {
	barrier := framegraph.BarrierInfo{Type: rhi.BarrierImage}
	culled, barriers := summarize([]framegraph.PassInfo{
		{Name: "a", PreBarriers: []framegraph.BarrierInfo{barrier, barrier}},
		{Name: "b", Culled: true, PreBarriers: []framegraph.BarrierInfo{barrier}},
		{Name: "c", PostBarriers: []framegraph.BarrierInfo{barrier}},
	})
	assert.Equal(t, 1, culled)
	assert.Equal(t, 3, barriers)
}

func TestPassFlags(t *testing.T) {
	assert.Equal(t, "-", passFlags(framegraph.PassInfo{}))
	assert.Equal(t, "culled,compute", passFlags(framegraph.PassInfo{Culled: true, Compute: true}))
	assert.Equal(t, "side-effect", passFlags(framegraph.PassInfo{SideEffect: true}))
}

package framegraph

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
max_passes_per_range: 8
multithreaded: false
workers: 4
heap_budget: 1048576
log_level: debug
`))
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.MaxPassesPerRange)
	assert.False(t, cfg.Multithreaded)
	assert.True(t, cfg.MemoryAliasing, "unset fields keep their defaults")
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, uint64(1<<20), cfg.HeapBudget)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
}

func TestParseConfigInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"negative range", "max_passes_per_range: -1"},
		{"bad level", "log_level: loud"},
		{"too many workers", "workers: 5000"},
		{"malformed", "workers: [1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("missing file uses defaults", func(t *testing.T) {
		cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("env overrides file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "fg.yaml")
		require.NoError(t, os.WriteFile(path, []byte("workers: 2\nmemory_aliasing: true\n"), 0o600))
		t.Setenv("FRAMEGRAPH_WORKERS", "6")
		t.Setenv("FRAMEGRAPH_MEMORY_ALIASING", "false")

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, 6, cfg.Workers)
		assert.False(t, cfg.MemoryAliasing)
	})
}

func TestConfigOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPassesPerRange = 5
	cfg.Multithreaded = false
	cfg.MemoryAliasing = false

	o := defaultOptions()
	for _, opt := range cfg.Options() {
		opt(&o)
	}
	assert.Equal(t, 5, o.maxPassesPerRange)
	assert.False(t, o.multithreaded)
	assert.False(t, o.aliasing)
}

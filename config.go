package framegraph

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the file form of the graph options plus the settings a host
// needs to build the collaborators (worker count, heap budget, log level).
type Config struct {
	MaxPassesPerRange int    `yaml:"max_passes_per_range" validate:"gte=0"`
	Multithreaded     bool   `yaml:"multithreaded"`
	Workers           int    `yaml:"workers" validate:"gte=0,lte=1024"`
	MemoryAliasing    bool   `yaml:"memory_aliasing"`
	HeapBudget        uint64 `yaml:"heap_budget"`
	LogLevel          string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// DefaultConfig returns the configuration matching New's defaults.
func DefaultConfig() Config {
	return Config{
		MaxPassesPerRange: DefaultMaxPassesPerRange,
		Multithreaded:     true,
		MemoryAliasing:    true,
		LogLevel:          "info",
	}
}

// LoadConfig loads configuration with priority: env > file > defaults.
// An empty or missing path yields the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return cfg, fmt.Errorf("framegraph: read config: %w", err)
		default:
			if cfg, err = ParseConfig(data); err != nil {
				return cfg, err
			}
		}
	}
	cfg.loadEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ParseConfig decodes YAML over the defaults and validates the result.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("framegraph: parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) loadEnv() {
	if v := os.Getenv("FRAMEGRAPH_MAX_PASSES_PER_RANGE"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			c.MaxPassesPerRange = i
		}
	}
	if v := os.Getenv("FRAMEGRAPH_WORKERS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			c.Workers = i
		}
	}
	if v := os.Getenv("FRAMEGRAPH_MEMORY_ALIASING"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.MemoryAliasing = b
		}
	}
	if v := os.Getenv("FRAMEGRAPH_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// Validate checks the struct constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("framegraph: invalid config: %w", err)
	}
	return nil
}

// Options converts the graph-level settings to options. Workers and
// HeapBudget are consumed by the host when it builds the job system and
// heap.
func (c Config) Options() []Option {
	return []Option{
		WithMaxPassesPerRange(c.MaxPassesPerRange),
		WithMultithreadedRecording(c.Multithreaded),
		WithMemoryAliasing(c.MemoryAliasing),
	}
}

// Level returns LogLevel as a slog level, defaulting to info.
func (c Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

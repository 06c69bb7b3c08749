package stress

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Workload bounds. Values outside these ranges are rejected, never clamped.
const (
	MaxThreads            = 64
	MaxPagesPerThread     = 100000
	MaxIterationsPerCycle = 10000
)

// Config describes one stress workload. Immutable once validated; shared
// read-only across all workers.
type Config struct {
	Threads            int `yaml:"threads"`
	PagesPerThread     int `yaml:"pages_per_thread"`
	DurationSeconds    int `yaml:"duration_seconds"`
	IterationsPerCycle int `yaml:"iterations_per_cycle"`
}

func DefaultConfig() Config {
	return Config{
		Threads:            4,
		PagesPerThread:     1024,
		DurationSeconds:    60,
		IterationsPerCycle: 100,
	}
}

func (c Config) Duration() time.Duration {
	return time.Duration(c.DurationSeconds) * time.Second
}

func (c Config) Validate() error {
	if c.Threads < 1 || c.Threads > MaxThreads {
		return fmt.Errorf("invalid thread count: %d (1-%d)", c.Threads, MaxThreads)
	}
	if c.PagesPerThread < 1 || c.PagesPerThread > MaxPagesPerThread {
		return fmt.Errorf("invalid pages per thread: %d (1-%d)", c.PagesPerThread, MaxPagesPerThread)
	}
	if c.DurationSeconds < 1 {
		return fmt.Errorf("invalid duration: %d (must be > 0)", c.DurationSeconds)
	}
	if c.IterationsPerCycle < 1 || c.IterationsPerCycle > MaxIterationsPerCycle {
		return fmt.Errorf("invalid iterations per cycle: %d (1-%d)", c.IterationsPerCycle, MaxIterationsPerCycle)
	}
	return nil
}

// LoadProfile reads a YAML workload profile. Fields absent from the file keep
// their default values. The result is not validated; callers validate after
// applying any flag overrides.
func LoadProfile(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read profile: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse profile %s: %w", path, err)
	}

	return cfg, nil
}

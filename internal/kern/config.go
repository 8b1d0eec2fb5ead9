package kern

import (
	"os"
	"time"

	yaml "github.com/goccy/go-yaml"
)

// Config mirrors config.yml.
type Config struct {
	MaxTasks    int    `yaml:"max_tasks"`    // application task capacity, idle excluded
	TickMS      int    `yaml:"tick_ms"`      // timer period for the demo board
	TraceDepth  int    `yaml:"trace_depth"`  // bounded event-trace size
	StackWords  int    `yaml:"stack_words"`  // stack size for demo and idle stacks
	MetricsAddr string `yaml:"metrics_addr"` // empty disables the /metrics endpoint
}

func defaultConfig() Config {
	return Config{
		MaxTasks:   8,
		TickMS:     5,
		TraceDepth: 256,
		StackWords: 64,
	}
}

// Load reads YAML and overrides defaults; empty or unreadable path
// yields defaults only.
func Load(path string) Config {
	cfg := defaultConfig()

	if path == "" {
		return cfg
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}

	_ = yaml.Unmarshal(data, &cfg)

	// sanity clamps
	if cfg.MaxTasks <= 0 {
		cfg.MaxTasks = 8
	}
	if cfg.TickMS <= 0 {
		cfg.TickMS = 5
	}
	if cfg.TraceDepth <= 0 {
		cfg.TraceDepth = 256
	}
	if cfg.StackWords < FrameWords {
		cfg.StackWords = 64
	}

	return cfg
}

// TickInterval is the demo timer period as a duration.
func (c Config) TickInterval() time.Duration {
	return time.Duration(c.TickMS) * time.Millisecond
}

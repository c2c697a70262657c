// Package config loads the kernel configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultFrames          = 1024
	DefaultHeapLimit       = 64 * 1024
	DefaultStackPages      = 2
	DefaultBigStride       = 1_000_000
	DefaultPriority        = 16
	DefaultReportInterval  = time.Second
	DefaultLogLevel        = "info"
	minSchedulablePriority = 2
)

type Config struct {
	Log       LogConfig       `yaml:"log"`
	Memory    MemoryConfig    `yaml:"memory"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Report    ReportConfig    `yaml:"report"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Console *bool  `yaml:"console"`
}

type MemoryConfig struct {
	// Frames is the number of physical frames available to all tasks.
	Frames int `yaml:"frames"`
	// HeapLimit is the maximum distance in bytes between heap bottom and program break.
	HeapLimit uint64 `yaml:"heap_limit"`
	// StackPages is the size of each task's user stack.
	StackPages int `yaml:"stack_pages"`
}

type SchedulerConfig struct {
	BigStride       uint64 `yaml:"big_stride"`
	DefaultPriority uint64 `yaml:"default_priority"`
}

type ReportConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// Default returns a config with every field set.
func Default() Config {
	var c Config
	c.applyDefaults()
	return c
}

// Load reads and validates a YAML config file. An empty path yields Default().
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %q: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config %q: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML strictly (unknown keys are rejected), applies defaults
// and validates the result.
func Parse(data []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("yaml decode: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Console == nil {
		on := true
		c.Log.Console = &on
	}
	if c.Memory.Frames == 0 {
		c.Memory.Frames = DefaultFrames
	}
	if c.Memory.HeapLimit == 0 {
		c.Memory.HeapLimit = DefaultHeapLimit
	}
	if c.Memory.StackPages == 0 {
		c.Memory.StackPages = DefaultStackPages
	}
	if c.Scheduler.BigStride == 0 {
		c.Scheduler.BigStride = DefaultBigStride
	}
	if c.Scheduler.DefaultPriority == 0 {
		c.Scheduler.DefaultPriority = DefaultPriority
	}
	if c.Report.Interval == 0 {
		c.Report.Interval = DefaultReportInterval
	}
}

// Validate checks value ranges after defaults have been applied.
func (c Config) Validate() error {
	var errs []error
	if c.Memory.Frames < 0 {
		errs = append(errs, fmt.Errorf("memory.frames must be positive, got %d", c.Memory.Frames))
	}
	if c.Memory.StackPages < 0 {
		errs = append(errs, fmt.Errorf("memory.stack_pages must be positive, got %d", c.Memory.StackPages))
	}
	if c.Scheduler.DefaultPriority < minSchedulablePriority {
		errs = append(errs, fmt.Errorf("scheduler.default_priority must be >= %d, got %d",
			minSchedulablePriority, c.Scheduler.DefaultPriority))
	}
	if c.Scheduler.BigStride < c.Scheduler.DefaultPriority {
		errs = append(errs, fmt.Errorf("scheduler.big_stride %d is smaller than default_priority %d",
			c.Scheduler.BigStride, c.Scheduler.DefaultPriority))
	}
	if c.Report.Interval < 0 {
		errs = append(errs, fmt.Errorf("report.interval must not be negative"))
	}
	return errors.Join(errs...)
}

// ConsoleLog reports whether logs should be rendered for humans.
func (c Config) ConsoleLog() bool {
	return c.Log.Console == nil || *c.Log.Console
}

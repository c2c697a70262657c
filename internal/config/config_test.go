package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("memory:\n  frames: 64\n"))
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Memory.Frames)
	assert.Equal(t, uint64(DefaultHeapLimit), cfg.Memory.HeapLimit)
	assert.Equal(t, uint64(DefaultBigStride), cfg.Scheduler.BigStride)
	assert.Equal(t, uint64(DefaultPriority), cfg.Scheduler.DefaultPriority)
	assert.Equal(t, DefaultReportInterval, cfg.Report.Interval)
	assert.True(t, cfg.ConsoleLog())
}

func TestParseEmptyDocument(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("scheduler:\n  bigstride: 10\n"))
	require.Error(t, err)
}

func TestParseRejectsLowPriority(t *testing.T) {
	_, err := Parse([]byte("scheduler:\n  default_priority: 1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default_priority")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kernel.yaml")
	body := "log:\n  level: debug\n  console: false\nreport:\n  interval: 250ms\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.ConsoleLog())
	assert.Equal(t, 250*time.Millisecond, cfg.Report.Interval)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

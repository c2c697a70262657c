package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesFieldsInOrder(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "debug", false).With(String("task", "a"), Int("pid", 1))
	l.Debug("kernel: sys_mmap", Hex("start", 0x1000), Err(errors.New("overlap")), String("task", "b"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "kernel: sys_mmap", line["message"])
	assert.Equal(t, "b", line["task"])
	assert.Equal(t, float64(1), line["pid"])
	assert.Equal(t, "0x1000", line["start"])
	assert.Equal(t, "overlap", line["err"])
	assert.Contains(t, line["caller"], "logx_test.go")
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "info", false)
	l.Trace("dropped")
	l.Debug("dropped")
	assert.Zero(t, buf.Len())
	assert.False(t, l.Enabled(LevelDebug))
	assert.True(t, l.Enabled(LevelWarn))
}

func TestZeroAndNopLoggersAreSilent(t *testing.T) {
	var zero Logger
	zero.Error("nothing")
	Nop().Error("nothing")
	assert.False(t, Nop().Enabled(LevelError))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelTrace, ParseLevel("TRACE", LevelInfo))
	assert.Equal(t, LevelInfo, ParseLevel("bogus", LevelInfo))
	assert.Equal(t, LevelWarn, ParseLevel("", LevelWarn))
}

package kernel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strideos/hal"
)

func newTestKernel(opts Options) *Kernel {
	return New(hal.NewWithClock(hal.NewManualClock(0)), opts)
}

func TestRunEmpty(t *testing.T) {
	k := newTestKernel(Options{})
	require.NoError(t, k.Run(context.Background()))
}

func TestRunStrideOrder(t *testing.T) {
	k := newTestKernel(Options{})
	var order []string
	worker := func(name string, rounds int) func() {
		return func() {
			for i := 0; i < rounds; i++ {
				order = append(order, name)
				k.Yield()
			}
		}
	}
	_, err := k.Spawn("a", 2, worker("a", 4))
	require.NoError(t, err)
	_, err = k.Spawn("b", 4, worker("b", 8))
	require.NoError(t, err)

	require.NoError(t, k.Run(context.Background()))

	// b has twice a's priority and so runs twice as often while both are ready.
	require.GreaterOrEqual(t, len(order), 6)
	assert.Equal(t, []string{"a", "b", "b", "a", "b", "b"}, order[:6])
	assert.Len(t, order, 12)

	for _, task := range k.Tasks() {
		assert.Equal(t, TaskZombie, task.Status())
	}
	assert.Zero(t, k.Memory().FramesInUse())
	assert.Equal(t, uint64(2), k.Stats().Snapshot().Exits)
}

func TestRunExitCodeAndNoReturn(t *testing.T) {
	k := newTestKernel(Options{})
	reached := false
	task, err := k.Spawn("quitter", 0, func() {
		k.Exit(3)
		reached = true
	})
	require.NoError(t, err)

	require.NoError(t, k.Run(context.Background()))
	assert.False(t, reached, "Exit must not return")
	task.With(func(in *TaskInner) {
		assert.Equal(t, int32(3), in.ExitCode)
		assert.Equal(t, uint64(DefaultPriority), in.Priority)
	})
}

func TestRunImplicitExitAfterEntryReturns(t *testing.T) {
	k := newTestKernel(Options{})
	task, err := k.Spawn("short", 0, func() {})
	require.NoError(t, err)
	require.NoError(t, k.Run(context.Background()))
	assert.Equal(t, TaskZombie, task.Status())
}

func TestRunTaskPanicKillsOnlyThatTask(t *testing.T) {
	k := newTestKernel(Options{})
	bad, err := k.Spawn("bad", 0, func() { panic("boom") })
	require.NoError(t, err)
	ran := false
	_, err = k.Spawn("good", 0, func() { ran = true })
	require.NoError(t, err)

	require.NoError(t, k.Run(context.Background()))
	assert.True(t, ran)
	bad.With(func(in *TaskInner) { assert.Equal(t, int32(-1), in.ExitCode) })
}

func TestRunFatalStopsKernel(t *testing.T) {
	var info PanicInfo
	k := newTestKernel(Options{OnFatal: func(pi PanicInfo) { info = pi }})
	var self *TaskControlBlock
	self, err := k.Spawn("reentrant", 0, func() {
		self.With(func(*TaskInner) { self.Status() })
	})
	require.NoError(t, err)
	_, err = k.Spawn("never", 0, func() { t.Error("dispatched after fatal") })
	require.NoError(t, err)

	err = k.Run(context.Background())
	var fe *FatalError
	require.True(t, errors.As(err, &fe))
	assert.Contains(t, fe.Reason, "already borrowed")
	assert.Equal(t, "reentrant", info.Task)
}

func TestRunHonoursContext(t *testing.T) {
	k := newTestKernel(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	n := 0
	_, err := k.Spawn("spinner", 0, func() {
		for {
			n++
			if n == 5 {
				cancel()
			}
			k.Yield()
		}
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- k.Run(ctx) }()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSpawnFailsWhenOutOfFrames(t *testing.T) {
	k := newTestKernel(Options{Frames: 2, StackPages: 2})
	_, err := k.Spawn("big", 0, nil)
	require.Error(t, err)
	assert.Zero(t, k.Memory().FramesInUse())
	assert.Zero(t, k.Scheduler().Len())
}

func TestRunReportsFatalRaisedAfterCancel(t *testing.T) {
	var infos []PanicInfo
	k := newTestKernel(Options{OnFatal: func(pi PanicInfo) { infos = append(infos, pi) }})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := k.Spawn("late", 0, func() {
		cancel()
		Fatal("broken after cancel")
	})
	require.NoError(t, err)

	err = k.Run(ctx)
	var fe *FatalError
	require.True(t, errors.As(err, &fe), "got %v", err)
	assert.Equal(t, "broken after cancel", fe.Reason)
	require.Len(t, infos, 1)
	assert.Equal(t, "late", infos[0].Task)
}

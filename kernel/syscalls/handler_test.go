package syscalls

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strideos/abi"
	"strideos/hal"
	"strideos/internal/logx"
	"strideos/kernel"
	"strideos/kernel/mm"
)

const base = 0x1000_0000

type fixture struct {
	k     *kernel.Kernel
	h     *Handler
	clock *hal.ManualClock
	task  *kernel.TaskControlBlock
}

// newFixture returns a kernel with one task made current without starting
// the dispatch loop, so handlers that do not switch can be called directly.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := hal.NewManualClock(0)
	k := kernel.New(hal.NewWithClock(clock), kernel.Options{Frames: 64, HeapLimit: 4 * mm.PageSize})
	task, err := k.Spawn("t", 0, nil)
	require.NoError(t, err)
	require.Same(t, task, k.Processor().RunNext())
	return &fixture{k: k, h: NewHandler(k, logx.Nop()), clock: clock, task: task}
}

func (f *fixture) regions() []mm.Region {
	var out []mm.Region
	f.task.With(func(in *kernel.TaskInner) {
		for _, r := range in.MemorySet.Regions() {
			if r.Kind == mm.AreaMmap {
				out = append(out, r)
			}
		}
	})
	return out
}

func (f *fixture) translate(vpn mm.VirtPageNum) (mm.PageTableEntry, bool) {
	var (
		e  mm.PageTableEntry
		ok bool
	)
	f.task.With(func(in *kernel.TaskInner) { e, ok = in.MemorySet.PageTable().Translate(vpn) })
	return e, ok
}

func TestMmapRejectsUnaligned(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, abi.Fail, f.h.Mmap(base+1, mm.PageSize, 1))
	assert.Empty(t, f.regions())
}

func TestMmapRejectsBadPort(t *testing.T) {
	f := newFixture(t)
	for _, port := range []uint64{0, 0b1000, 0b1111} {
		assert.Equal(t, abi.Fail, f.h.Mmap(base, mm.PageSize, port), "port %#b", port)
	}
	assert.Empty(t, f.regions())
}

func TestMmapZeroLengthIsNoop(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, int64(0), f.h.Mmap(base, 0, 1))
	assert.Empty(t, f.regions())

	// validation still runs before the zero-length shortcut
	assert.Equal(t, abi.Fail, f.h.Mmap(base+1, 0, 1))
	assert.Equal(t, abi.Fail, f.h.Mmap(base, 0, 0))
}

func TestMmapOverlapKeepsFirstPermissions(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, int64(0), f.h.Mmap(base, mm.PageSize, 1))
	assert.Equal(t, abi.Fail, f.h.Mmap(base, mm.PageSize, 2))

	e, ok := f.translate(mm.VirtAddr(base).Floor())
	require.True(t, ok)
	assert.Equal(t, mm.PermR|mm.PermU, e.Flags)
}

func TestMmapRoundsLengthUp(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, int64(0), f.h.Mmap(base, mm.PageSize+1, abi.PortRead|abi.PortWrite))
	regions := f.regions()
	require.Len(t, regions, 1)
	assert.Equal(t, uint64(2), regions[0].Range.Len())
}

func TestMmapWrappingRangeFails(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, abi.Fail, f.h.Mmap(base, ^uint64(0), 1))
}

func TestMunmapNeverMapped(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, abi.Fail, f.h.Munmap(base, mm.PageSize))
	assert.Equal(t, abi.Fail, f.h.Munmap(base+8, mm.PageSize))
	assert.Equal(t, int64(0), f.h.Munmap(base, 0))
}

func TestMmapMunmapRemap(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, int64(0), f.h.Mmap(base, mm.PageSize, 1))
	require.Equal(t, int64(0), f.h.Munmap(base, mm.PageSize))
	assert.Empty(t, f.regions())

	require.Equal(t, int64(0), f.h.Mmap(base, mm.PageSize, 2))
	e, ok := f.translate(mm.VirtAddr(base).Floor())
	require.True(t, ok)
	assert.Equal(t, mm.PermW|mm.PermU, e.Flags)
}

func TestMunmapPartlyMappedRemovesNothing(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, int64(0), f.h.Mmap(base, mm.PageSize, 1))
	assert.Equal(t, abi.Fail, f.h.Munmap(base, 2*mm.PageSize))
	_, ok := f.translate(mm.VirtAddr(base).Floor())
	assert.True(t, ok)
}

func TestGetTimeAcrossPageBoundary(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, int64(0), f.h.Mmap(base, 2*mm.PageSize, abi.PortRead|abi.PortWrite))
	ptr := mm.VirtAddr(base + mm.PageSize - 8)

	f.clock.Advance(2*time.Second + 345*time.Microsecond)
	require.Equal(t, int64(0), f.h.GetTime(ptr, 0))
	first := f.readTimeVal(t, ptr)
	assert.Equal(t, abi.TimeVal{Sec: 2, Usec: 345}, first)

	f.clock.Advance(time.Millisecond)
	require.Equal(t, int64(0), f.h.GetTime(ptr, 0))
	second := f.readTimeVal(t, ptr)
	assert.GreaterOrEqual(t, second.Micros(), first.Micros())
}

func TestGetTimeHostClockNonDecreasing(t *testing.T) {
	k := kernel.New(hal.New(), kernel.Options{Frames: 64})
	task, err := k.Spawn("t", 0, nil)
	require.NoError(t, err)
	k.Processor().RunNext()
	h := NewHandler(k, logx.Nop())
	require.Equal(t, int64(0), h.Mmap(base, mm.PageSize, abi.PortRead|abi.PortWrite))

	read := func() abi.TimeVal {
		require.Equal(t, int64(0), h.GetTime(base, 0))
		b, err := k.Memory().ReadUser(task.Token(), base, abi.TimeValSize)
		require.NoError(t, err)
		tv, ok := abi.DecodeTimeVal(b)
		require.True(t, ok)
		return tv
	}
	first := read()
	time.Sleep(2 * time.Millisecond)
	second := read()
	assert.Less(t, second.Usec, uint64(1_000_000))
	assert.Greater(t, second.Micros(), first.Micros())
}

func TestGetTimeBadPointer(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, abi.Fail, f.h.GetTime(base, 0))

	require.Equal(t, int64(0), f.h.Mmap(base, mm.PageSize, abi.PortRead))
	assert.Equal(t, abi.Fail, f.h.GetTime(base, 0), "read-only page")
	assert.Equal(t, uint64(2), f.k.Stats().Snapshot().Rejected)
}

func TestTaskInfoThroughDispatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.Equal(t, int64(0), f.h.Dispatch(ctx, abi.SysMmap, [3]uint64{base, 2 * mm.PageSize, 3}))
	ptr := uint64(base + mm.PageSize - 100)
	require.Equal(t, int64(0), f.h.Dispatch(ctx, abi.SysGetTime, [3]uint64{ptr, 0}))
	require.Equal(t, int64(0), f.h.Dispatch(ctx, abi.SysGetTime, [3]uint64{ptr, 0}))

	f.clock.Advance(1500 * time.Millisecond)
	require.Equal(t, int64(0), f.h.Dispatch(ctx, abi.SysTaskInfo, [3]uint64{ptr}))

	b, err := f.k.Memory().ReadUser(f.task.Token(), mm.VirtAddr(ptr), abi.TaskInfoSize)
	require.NoError(t, err)
	ti, ok := abi.DecodeTaskInfo(b)
	require.True(t, ok)
	assert.Equal(t, abi.StatusRunning, ti.Status)
	assert.Equal(t, uint32(1), ti.SyscallTimes[abi.SysMmap])
	assert.Equal(t, uint32(2), ti.SyscallTimes[abi.SysGetTime])
	assert.Equal(t, uint32(1), ti.SyscallTimes[abi.SysTaskInfo])
	assert.Equal(t, uint64(1500), ti.Time)
	assert.Equal(t, uint64(4), f.k.Stats().Snapshot().Syscalls)
}

func TestTaskInfoBadPointer(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, abi.Fail, f.h.TaskInfo(0))
}

func TestSbrk(t *testing.T) {
	f := newFixture(t)
	var bottom mm.VirtAddr
	f.task.With(func(in *kernel.TaskInner) { bottom = in.HeapBottom })

	assert.Equal(t, int64(bottom), f.h.Sbrk(64))
	assert.Equal(t, int64(bottom+64), f.h.Sbrk(-64))
	assert.Equal(t, abi.Fail, f.h.Sbrk(-1))
	assert.Equal(t, abi.Fail, f.h.Sbrk(4*mm.PageSize+1))
	assert.Equal(t, int64(bottom), f.h.Sbrk(0))
}

func TestSetPriority(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, abi.Fail, f.h.SetPriority(1))
	assert.Equal(t, abi.Fail, f.h.SetPriority(-5))
	assert.Equal(t, int64(8), f.h.SetPriority(8))
	f.task.With(func(in *kernel.TaskInner) {
		assert.Equal(t, uint64(kernel.BigStride/8), in.Pass)
	})
}

func TestDispatchUnknown(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, abi.Fail, f.h.Dispatch(context.Background(), 7, [3]uint64{}))
	assert.Equal(t, abi.Fail, f.h.Dispatch(context.Background(), 9999, [3]uint64{}))
	f.task.With(func(in *kernel.TaskInner) { assert.Equal(t, uint32(1), in.SyscallTimes[7]) })
}

func TestDispatchYieldAndExitUnderRun(t *testing.T) {
	clock := hal.NewManualClock(0)
	k := kernel.New(hal.NewWithClock(clock), kernel.Options{Frames: 64})
	h := NewHandler(k, logx.Nop())
	ctx := context.Background()

	var yields []int64
	afterExit := false
	code := int32(-4)
	task, err := k.Spawn("worker", 0, func() {
		yields = append(yields, h.Dispatch(ctx, abi.SysYield, [3]uint64{}))
		yields = append(yields, h.Dispatch(ctx, abi.SysYield, [3]uint64{}))
		h.Dispatch(ctx, abi.SysExit, [3]uint64{uint64(uint32(code))})
		afterExit = true
	})
	require.NoError(t, err)

	require.NoError(t, k.Run(ctx))
	assert.Equal(t, []int64{0, 0}, yields)
	assert.False(t, afterExit)
	task.With(func(in *kernel.TaskInner) {
		assert.Equal(t, int32(-4), in.ExitCode)
		assert.Equal(t, kernel.TaskZombie, in.Status)
		assert.Equal(t, uint32(2), in.SyscallTimes[abi.SysYield])
		assert.Equal(t, uint32(1), in.SyscallTimes[abi.SysExit])
	})
}

func TestDispatchWithoutCurrentTaskIsFatal(t *testing.T) {
	k := kernel.New(hal.New(), kernel.Options{})
	h := NewHandler(k, logx.Nop())
	assert.PanicsWithError(t, "kernel fatal: syscall with no current task", func() {
		h.Dispatch(context.Background(), abi.SysYield, [3]uint64{})
	})
}

func (f *fixture) readTimeVal(t *testing.T, ptr mm.VirtAddr) abi.TimeVal {
	t.Helper()
	b, err := f.k.Memory().ReadUser(f.task.Token(), ptr, abi.TimeValSize)
	require.NoError(t, err)
	tv, ok := abi.DecodeTimeVal(b)
	require.True(t, ok)
	return tv
}

func TestMmapHugeLengthReturnsFail(t *testing.T) {
	f := newFixture(t)
	done := make(chan int64, 1)
	go func() { done <- f.h.Mmap(base, 1<<62, 1) }()
	select {
	case ret := <-done:
		assert.Equal(t, abi.Fail, ret)
	case <-time.After(5 * time.Second):
		t.Fatal("mmap of a huge length did not return")
	}
	assert.Empty(t, f.regions())
}

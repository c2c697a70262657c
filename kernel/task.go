package kernel

import (
	"errors"
	"fmt"

	"strideos/abi"
	"strideos/kernel/mm"
)

// MaxSyscallNum bounds syscall ids counted in TaskInner.SyscallTimes.
const MaxSyscallNum = abi.MaxSyscallNum

const (
	// BigStride is the default numerator of pass = BigStride / priority.
	BigStride = 1_000_000
	// DefaultPriority is given to tasks spawned without one.
	DefaultPriority = 16
	// MinPriority is the smallest priority a task may set.
	MinPriority = 2
)

// User address space layout. Page 0 up to UserStackBottom stays unmapped so
// small pointers fault; one guard page separates stack and heap.
const (
	UserStackBottom mm.VirtAddr = 0x10000
	DefaultStackPages           = 2
)

var ErrInvalidPriority = errors.New("priority below minimum")

// PID identifies a task.
type PID uint32

// TaskStatus is a task's place in its life cycle.
type TaskStatus uint8

const (
	TaskReady TaskStatus = iota
	TaskRunning
	TaskZombie
)

func (s TaskStatus) String() string {
	switch s {
	case TaskReady:
		return "ready"
	case TaskRunning:
		return "running"
	case TaskZombie:
		return "zombie"
	default:
		return "unknown"
	}
}

// TaskInner is the mutable part of a task, reachable only through the task's cell.
type TaskInner struct {
	Status TaskStatus

	Priority  uint64
	Pass      uint64
	Stride    uint64
	bigStride uint64

	SyscallTimes [MaxSyscallNum]uint32
	// Time is cumulative scheduled time in microseconds.
	Time       uint64
	Dispatches uint64
	switchedIn uint64

	MemorySet  *mm.MemorySet
	HeapBottom mm.VirtAddr
	ProgramBrk mm.VirtAddr
	HeapLimit  uint64

	ExitCode int32
}

// SetPriority updates priority and the derived pass.
func (in *TaskInner) SetPriority(prio uint64) error {
	if prio < MinPriority {
		return fmt.Errorf("priority %d: %w", prio, ErrInvalidPriority)
	}
	in.Priority = prio
	in.Pass = in.bigStride / prio
	return nil
}

// RunTime is the cumulative scheduled time in microseconds, counting the
// current slice when the task is running.
func (in *TaskInner) RunTime(now uint64) uint64 {
	if in.Status == TaskRunning && now >= in.switchedIn {
		return in.Time + now - in.switchedIn
	}
	return in.Time
}

// ChangeProgramBrk moves the program break by delta and returns the old break.
// On failure the break is unchanged and the error wraps mm.ErrBreakLimit.
func (in *TaskInner) ChangeProgramBrk(delta int32) (mm.VirtAddr, error) {
	old := in.ProgramBrk
	next := int64(old) + int64(delta)
	if next < int64(in.HeapBottom) || uint64(next) > uint64(in.HeapBottom)+in.HeapLimit {
		return 0, fmt.Errorf("sbrk %+d from %s: %w", delta, old, mm.ErrBreakLimit)
	}
	if err := in.MemorySet.SetHeapEnd(mm.VirtAddr(next)); err != nil {
		return 0, fmt.Errorf("sbrk %+d from %s: %w: %w", delta, old, mm.ErrBreakLimit, err)
	}
	in.ProgramBrk = mm.VirtAddr(next)
	return old, nil
}

// TaskControlBlock is a shared handle to a task. The ready queue and the
// processor's current slot hold the same pointer; identity is pointer identity.
type TaskControlBlock struct {
	pid   PID
	name  string
	token mm.Token
	inner *Cell[TaskInner]

	entry   func()
	started bool
	resume  chan struct{}
}

// TaskLayout sizes a new task's address space.
type TaskLayout struct {
	StackPages int
	HeapLimit  uint64
}

// NewTaskControlBlock builds a Ready task with a mapped user stack and an empty heap.
func NewTaskControlBlock(pid PID, name string, mem *mm.Memory, layout TaskLayout, bigStride, priority uint64, entry func()) (*TaskControlBlock, error) {
	ms, err := mm.NewMemorySet(mem)
	if err != nil {
		return nil, fmt.Errorf("task %d address space: %w", pid, err)
	}
	pages := layout.StackPages
	if pages <= 0 {
		pages = DefaultStackPages
	}
	stackTop := UserStackBottom + mm.VirtAddr(pages*mm.PageSize)
	if err := ms.InsertFramedArea(UserStackBottom, stackTop, mm.PermR|mm.PermW|mm.PermU, mm.AreaStack); err != nil {
		ms.Recycle()
		return nil, fmt.Errorf("task %d stack: %w", pid, err)
	}
	heapBottom := stackTop + mm.PageSize
	ms.InsertHeap(heapBottom)

	inner := TaskInner{
		Status:     TaskReady,
		bigStride:  bigStride,
		MemorySet:  ms,
		HeapBottom: heapBottom,
		ProgramBrk: heapBottom,
		HeapLimit:  layout.HeapLimit,
	}
	if err := inner.SetPriority(priority); err != nil {
		ms.Recycle()
		return nil, err
	}

	return &TaskControlBlock{
		pid:    pid,
		name:   name,
		token:  ms.Token(),
		inner:  NewCell(fmt.Sprintf("task %d", pid), inner),
		entry:  entry,
		resume: make(chan struct{}, 1),
	}, nil
}

func (t *TaskControlBlock) PID() PID        { return t.pid }
func (t *TaskControlBlock) Name() string    { return t.name }
func (t *TaskControlBlock) Token() mm.Token { return t.token }

// Exclusive borrows the task's inner state.
func (t *TaskControlBlock) Exclusive() *Guard[TaskInner] { return t.inner.Exclusive() }

// With runs fn with the task's inner state borrowed.
func (t *TaskControlBlock) With(fn func(*TaskInner)) { t.inner.With(fn) }

// Stride reads the current stride.
func (t *TaskControlBlock) Stride() uint64 {
	g := t.Exclusive()
	defer g.Release()
	return g.Get().Stride
}

// Status reads the current status.
func (t *TaskControlBlock) Status() TaskStatus {
	g := t.Exclusive()
	defer g.Release()
	return g.Get().Status
}

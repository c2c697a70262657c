// Package syscalls turns raw syscall words into checked operations on the
// current task, the scheduler and the task's address space.
package syscalls

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"strideos/abi"
	"strideos/internal/logx"
	"strideos/kernel"
	"strideos/kernel/mm"
)

const tracerName = "strideos/kernel/syscalls"

// Handler is the syscall adapter for one kernel.
type Handler struct {
	k      *kernel.Kernel
	log    logx.Logger
	tracer trace.Tracer
}

// NewHandler uses the global OpenTelemetry tracer provider, which is a no-op
// unless one has been installed.
func NewHandler(k *kernel.Kernel, log logx.Logger) *Handler {
	return &Handler{k: k, log: log, tracer: otel.Tracer(tracerName)}
}

// Dispatch runs syscall id for the current task and returns its result word.
// Unknown ids return -1.
func (h *Handler) Dispatch(ctx context.Context, id uint64, args [3]uint64) int64 {
	cur := h.current()
	h.k.Stats().Syscalls.Add(1)
	if id < abi.MaxSyscallNum {
		cur.With(func(in *kernel.TaskInner) { in.SyscallTimes[id]++ })
	}

	_, span := h.tracer.Start(ctx, "syscall "+abi.SyscallName(id), trace.WithAttributes(
		attribute.Int64("syscall.id", int64(id)),
		attribute.Int64("task.pid", int64(cur.PID())),
		attribute.String("task.name", cur.Name()),
	))

	var ret int64
	switch id {
	case abi.SysExit:
		span.End()
		h.Exit(int32(args[0]))
	case abi.SysYield:
		ret = h.Yield()
	case abi.SysSetPriority:
		ret = h.SetPriority(int64(args[0]))
	case abi.SysGetTime:
		ret = h.GetTime(mm.VirtAddr(args[0]), args[1])
	case abi.SysTaskInfo:
		ret = h.TaskInfo(mm.VirtAddr(args[0]))
	case abi.SysMmap:
		ret = h.Mmap(args[0], args[1], args[2])
	case abi.SysMunmap:
		ret = h.Munmap(args[0], args[1])
	case abi.SysSbrk:
		ret = h.Sbrk(int32(args[0]))
	default:
		h.log.Warn("kernel: unsupported syscall", logx.Uint64("id", id), logx.Int("pid", int(cur.PID())))
		ret = abi.Fail
	}

	span.SetAttributes(attribute.Int64("syscall.ret", ret))
	if ret == abi.Fail {
		span.SetStatus(codes.Error, "rejected")
	}
	span.End()
	return ret
}

func (h *Handler) current() *kernel.TaskControlBlock {
	cur := h.k.Processor().Current()
	if cur == nil {
		kernel.Fatal("syscall with no current task")
	}
	return cur
}

// fail logs why a request was rejected and returns the failure word.
func (h *Handler) fail(op string, err error) int64 {
	h.k.Stats().Rejected.Add(1)
	h.log.Debug("kernel: "+op+" rejected", logx.Err(err))
	return abi.Fail
}

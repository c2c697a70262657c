package syscalls

import (
	"strideos/abi"
	"strideos/internal/logx"
	"strideos/kernel"
	"strideos/kernel/mm"
)

// Exit retires the current task and never returns.
func (h *Handler) Exit(code int32) {
	h.log.Trace("kernel: sys_exit", logx.Int("code", int(code)))
	h.k.Exit(code)
	kernel.Fatal("unreachable in sys_exit")
}

// Yield hands the processor to the next task. It returns 0 once this task
// is dispatched again.
func (h *Handler) Yield() int64 {
	h.log.Trace("kernel: sys_yield")
	h.k.Yield()
	return 0
}

// GetTime writes the current time as a TimeVal at ts. The TimeVal may span two
// pages. A pointer that is not user writable gets -1.
func (h *Handler) GetTime(ts mm.VirtAddr, _ uint64) int64 {
	h.log.Trace("kernel: sys_get_time", logx.Hex("ts", uint64(ts)))
	tv := abi.TimeValFromMicros(h.k.Clock().Micros())
	token := h.k.Processor().CurrentUserToken()
	if err := h.k.Memory().WriteUser(token, ts, abi.TimeValPayload(tv)); err != nil {
		return h.fail("sys_get_time", err)
	}
	return 0
}

// TaskInfo writes the current task's status, syscall counts and run time in
// milliseconds at ti.
func (h *Handler) TaskInfo(ti mm.VirtAddr) int64 {
	h.log.Trace("kernel: sys_task_info", logx.Hex("ti", uint64(ti)))
	now := h.k.Clock().Micros()
	cur := h.current()

	info := new(abi.TaskInfo)
	cur.With(func(in *kernel.TaskInner) {
		info.Status = uint32(in.Status)
		info.SyscallTimes = in.SyscallTimes
		info.Time = in.RunTime(now) / 1000
	})
	if err := h.k.Memory().WriteUser(cur.Token(), ti, abi.TaskInfoPayload(info)); err != nil {
		return h.fail("sys_task_info", err)
	}
	return 0
}

// Sbrk moves the program break by delta and returns the old break, or -1
// with the break unchanged.
func (h *Handler) Sbrk(delta int32) int64 {
	h.log.Trace("kernel: sys_sbrk", logx.Int("delta", int(delta)))
	var (
		old mm.VirtAddr
		err error
	)
	h.current().With(func(in *kernel.TaskInner) { old, err = in.ChangeProgramBrk(delta) })
	if err != nil {
		return h.fail("sys_sbrk", err)
	}
	return int64(old)
}

// SetPriority sets the current task's priority and returns it. Priorities
// below 2 get -1.
func (h *Handler) SetPriority(prio int64) int64 {
	h.log.Trace("kernel: sys_set_priority", logx.Int64("prio", prio))
	if prio < kernel.MinPriority {
		return h.fail("sys_set_priority", kernel.ErrInvalidPriority)
	}
	var err error
	h.current().With(func(in *kernel.TaskInner) { err = in.SetPriority(uint64(prio)) })
	if err != nil {
		return h.fail("sys_set_priority", err)
	}
	return prio
}

package syscalls

import (
	"fmt"

	"strideos/internal/logx"
	"strideos/kernel"
	"strideos/kernel/mm"
)

// Mmap maps [start, start+length) rounded out to whole pages with the r/w/x
// bits in port. start must be page aligned; port must set at least one of
// the three bits and nothing else; length 0 succeeds without mapping
// anything. Returns 0 or -1, and on -1 nothing was mapped.
func (h *Handler) Mmap(start, length, port uint64) int64 {
	h.log.Trace("kernel: sys_mmap",
		logx.Hex("start", start),
		logx.Uint64("len", length),
		logx.Hex("port", port),
	)
	if err := h.mmap(start, length, port); err != nil {
		return h.fail("sys_mmap", err)
	}
	return 0
}

// Munmap unmaps [start, start+length) rounded out to whole pages. Every page
// must be mapped, otherwise nothing is unmapped and -1 is returned.
func (h *Handler) Munmap(start, length uint64) int64 {
	h.log.Trace("kernel: sys_munmap", logx.Hex("start", start), logx.Uint64("len", length))
	if err := h.munmap(start, length); err != nil {
		return h.fail("sys_munmap", err)
	}
	return 0
}

func (h *Handler) mmap(start, length, port uint64) error {
	va := mm.VirtAddr(start)
	if !va.Aligned() {
		return fmt.Errorf("start %s: %w", va, mm.ErrUnaligned)
	}
	if !mm.ValidPort(port) {
		return fmt.Errorf("port %#x: %w", port, mm.ErrBadPermission)
	}
	if length == 0 {
		return nil
	}
	r, err := pageRange(start, length)
	if err != nil {
		return err
	}
	perm := mm.PermissionFromPort(port)
	h.current().With(func(in *kernel.TaskInner) { err = in.MemorySet.Mmap(r, perm) })
	return err
}

func (h *Handler) munmap(start, length uint64) error {
	va := mm.VirtAddr(start)
	if !va.Aligned() {
		return fmt.Errorf("start %s: %w", va, mm.ErrUnaligned)
	}
	if length == 0 {
		return nil
	}
	r, err := pageRange(start, length)
	if err != nil {
		return err
	}
	h.current().With(func(in *kernel.TaskInner) { err = in.MemorySet.Munmap(r) })
	return err
}

func pageRange(start, length uint64) (mm.VPNRange, error) {
	end := start + length
	if end < start {
		return mm.VPNRange{}, fmt.Errorf("%#x+%#x wraps: %w", start, length, mm.ErrBadAddress)
	}
	return mm.RangeOf(mm.VirtAddr(start), mm.VirtAddr(end)), nil
}

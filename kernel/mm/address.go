// Package mm models a task's virtual address space: page-granular addresses,
// a flat page table over a shared frame pool, and the framed areas a task owns.
package mm

import "fmt"

const (
	PageSizeBits = 12
	PageSize     = 1 << PageSizeBits
)

// VirtAddr is a task-space virtual address.
type VirtAddr uint64

// VirtPageNum is a virtual address divided by PageSize.
type VirtPageNum uint64

// PhysPageNum identifies a physical frame.
type PhysPageNum uint64

func (va VirtAddr) PageOffset() uint64 { return uint64(va) & (PageSize - 1) }

// Aligned reports whether va is a multiple of PageSize.
func (va VirtAddr) Aligned() bool { return va.PageOffset() == 0 }

// Floor is the page containing va.
func (va VirtAddr) Floor() VirtPageNum { return VirtPageNum(uint64(va) / PageSize) }

// Ceil is the first page boundary at or above va.
func (va VirtAddr) Ceil() VirtPageNum {
	if va == 0 {
		return 0
	}
	return VirtPageNum((uint64(va)-1)/PageSize + 1)
}

func (va VirtAddr) String() string { return fmt.Sprintf("%#x", uint64(va)) }

// Addr is the first address of the page.
func (vpn VirtPageNum) Addr() VirtAddr { return VirtAddr(uint64(vpn) * PageSize) }

// VPNRange is the half-open page interval [Start, End).
type VPNRange struct {
	Start VirtPageNum
	End   VirtPageNum
}

// RangeOf returns the pages covering [start, end).
func RangeOf(start, end VirtAddr) VPNRange {
	return VPNRange{Start: start.Floor(), End: end.Ceil()}
}

func (r VPNRange) Len() uint64 {
	if r.End <= r.Start {
		return 0
	}
	return uint64(r.End - r.Start)
}

func (r VPNRange) Empty() bool { return r.Len() == 0 }

func (r VPNRange) Contains(vpn VirtPageNum) bool { return vpn >= r.Start && vpn < r.End }

// Overlaps reports a nonzero intersection.
func (r VPNRange) Overlaps(o VPNRange) bool { return !r.Intersect(o).Empty() }

func (r VPNRange) Intersect(o VPNRange) VPNRange {
	s := max(r.Start, o.Start)
	e := min(r.End, o.End)
	if e <= s {
		return VPNRange{Start: s, End: s}
	}
	return VPNRange{Start: s, End: e}
}

// Pages calls fn for each page in order until fn returns false.
func (r VPNRange) Pages(fn func(VirtPageNum) bool) {
	for vpn := r.Start; vpn < r.End; vpn++ {
		if !fn(vpn) {
			return
		}
	}
}

func (r VPNRange) String() string {
	return fmt.Sprintf("[%s, %s)", r.Start.Addr(), r.End.Addr())
}

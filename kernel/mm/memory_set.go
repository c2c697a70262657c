package mm

import (
	"fmt"
	"slices"
)

// AreaKind says which path created an area.
type AreaKind uint8

const (
	AreaStack AreaKind = iota + 1
	AreaHeap
	AreaMmap
)

func (k AreaKind) String() string {
	switch k {
	case AreaStack:
		return "stack"
	case AreaHeap:
		return "heap"
	case AreaMmap:
		return "mmap"
	default:
		return "unknown"
	}
}

// MapArea is a contiguous, framed run of pages with one permission set.
type MapArea struct {
	Range  VPNRange
	Perm   MapPermission
	Kind   AreaKind
	frames map[VirtPageNum]PhysPageNum
}

// Region is a read-only snapshot of a MapArea.
type Region struct {
	Range VPNRange
	Perm  MapPermission
	Kind  AreaKind
}

// MemorySet is one task's address space. No two of its areas overlap.
type MemorySet struct {
	mem   *Memory
	pt    *PageTable
	areas []*MapArea
	heap  *MapArea
}

// NewMemorySet creates an empty address space backed by mem.
func NewMemorySet(mem *Memory) (*MemorySet, error) {
	pt, err := mem.NewPageTable()
	if err != nil {
		return nil, err
	}
	return &MemorySet{mem: mem, pt: pt}, nil
}

func (ms *MemorySet) Token() Token { return ms.pt.Token() }

func (ms *MemorySet) PageTable() *PageTable { return ms.pt }

// InsertFramedArea maps [start, end) with fresh zeroed frames.
func (ms *MemorySet) InsertFramedArea(start, end VirtAddr, perm MapPermission, kind AreaKind) error {
	r := RangeOf(start, end)
	if r.Empty() {
		return nil
	}
	area, err := ms.mapArea(r, perm, kind)
	if err != nil {
		return err
	}
	ms.areas = append(ms.areas, area)
	return nil
}

// InsertHeap registers the (initially empty) heap area starting at bottom.
func (ms *MemorySet) InsertHeap(bottom VirtAddr) {
	start := bottom.Floor()
	ms.heap = &MapArea{
		Range:  VPNRange{Start: start, End: bottom.Ceil()},
		Perm:   PermR | PermW | PermU,
		Kind:   AreaHeap,
		frames: make(map[VirtPageNum]PhysPageNum),
	}
	ms.areas = append(ms.areas, ms.heap)
}

// Mmap maps every page of r with perm. If any page of r is already mapped,
// nothing changes and ErrOverlap is returned.
func (ms *MemorySet) Mmap(r VPNRange, perm MapPermission) error {
	if r.Empty() {
		return nil
	}
	area, err := ms.mapArea(r, perm, AreaMmap)
	if err != nil {
		return fmt.Errorf("mmap %s: %w", r, err)
	}
	ms.areas = append(ms.areas, area)
	return nil
}

// Munmap unmaps every page of r. If any page of r is unmapped, or belongs to
// the heap (which only the program break may move), nothing changes and
// ErrUnmapped is returned. Areas partly covered by r are split.
func (ms *MemorySet) Munmap(r VPNRange) error {
	if r.Empty() {
		return nil
	}
	if !ms.pt.Mapped(r) {
		return fmt.Errorf("munmap %s: %w", r, ErrUnmapped)
	}
	if ms.heap != nil && ms.heap.Range.Overlaps(r) {
		return fmt.Errorf("munmap %s: heap pages: %w", r, ErrUnmapped)
	}

	kept := ms.areas[:0:0]
	for _, a := range ms.areas {
		cut := a.Range.Intersect(r)
		if cut.Empty() {
			kept = append(kept, a)
			continue
		}
		ms.unmapPages(a, cut)
		if left := (VPNRange{Start: a.Range.Start, End: cut.Start}); !left.Empty() {
			kept = append(kept, a.split(left))
		}
		if right := (VPNRange{Start: cut.End, End: a.Range.End}); !right.Empty() {
			kept = append(kept, a.split(right))
		}
	}
	ms.areas = kept
	return nil
}

// SetHeapEnd grows or shrinks the heap area so it ends at the page boundary
// at or above end. Growing into a mapped page fails with ErrOverlap.
func (ms *MemorySet) SetHeapEnd(end VirtAddr) error {
	h := ms.heap
	if h == nil {
		return fmt.Errorf("no heap area: %w", ErrBreakLimit)
	}
	newEnd := end.Ceil()
	if newEnd < h.Range.Start {
		return ErrBreakLimit
	}
	switch {
	case newEnd > h.Range.End:
		grow := VPNRange{Start: h.Range.End, End: newEnd}
		if ms.overlaps(grow) {
			return fmt.Errorf("heap grow %s: %w", grow, ErrOverlap)
		}
		if err := ms.reserve(grow); err != nil {
			return fmt.Errorf("heap grow %s: %w", grow, err)
		}
		if err := ms.fill(h, grow); err != nil {
			return err
		}
		h.Range.End = newEnd
	case newEnd < h.Range.End:
		ms.unmapPages(h, VPNRange{Start: newEnd, End: h.Range.End})
		h.Range.End = newEnd
	}
	return nil
}

// Regions returns the current areas ordered by start page.
func (ms *MemorySet) Regions() []Region {
	out := make([]Region, 0, len(ms.areas))
	for _, a := range ms.areas {
		out = append(out, Region{Range: a.Range, Perm: a.Perm, Kind: a.Kind})
	}
	slices.SortFunc(out, func(a, b Region) int {
		switch {
		case a.Range.Start < b.Range.Start:
			return -1
		case a.Range.Start > b.Range.Start:
			return 1
		}
		return 0
	})
	return out
}

// MappedPages returns the number of valid pages in the address space.
func (ms *MemorySet) MappedPages() int { return ms.pt.Len() }

// Recycle frees every frame including the page table root. The set is empty afterwards.
func (ms *MemorySet) Recycle() {
	for _, a := range ms.areas {
		ms.unmapPages(a, a.Range)
	}
	ms.areas = nil
	ms.heap = nil
	ms.mem.releasePageTable(ms.pt)
}

// overlaps reports whether r intersects any area. Every mapped page belongs
// to an area, so this never walks r page by page.
func (ms *MemorySet) overlaps(r VPNRange) bool {
	for _, a := range ms.areas {
		if a.Range.Overlaps(r) {
			return true
		}
	}
	return false
}

// reserve fails with ErrOutOfMemory when r needs more frames than are free.
func (ms *MemorySet) reserve(r VPNRange) error {
	if free := ms.mem.FreeFrames(); free < 0 || r.Len() > uint64(free) {
		return fmt.Errorf("%d pages, %d frames free: %w", r.Len(), max(free, 0), ErrOutOfMemory)
	}
	return nil
}

func (ms *MemorySet) mapArea(r VPNRange, perm MapPermission, kind AreaKind) (*MapArea, error) {
	if ms.overlaps(r) {
		return nil, ErrOverlap
	}
	if err := ms.reserve(r); err != nil {
		return nil, err
	}
	area := &MapArea{
		Range:  r,
		Perm:   perm,
		Kind:   kind,
		frames: make(map[VirtPageNum]PhysPageNum, r.Len()),
	}
	if err := ms.fill(area, r); err != nil {
		return nil, err
	}
	return area, nil
}

// fill maps r into area. On failure the pages it mapped are released again.
func (ms *MemorySet) fill(area *MapArea, r VPNRange) error {
	var err error
	done := r.Start
	r.Pages(func(vpn VirtPageNum) bool {
		var ppn PhysPageNum
		if ppn, err = ms.mem.allocFrame(); err != nil {
			return false
		}
		if err = ms.pt.Map(vpn, ppn, area.Perm); err != nil {
			ms.mem.freeFrame(ppn)
			return false
		}
		area.frames[vpn] = ppn
		done = vpn + 1
		return true
	})
	if err != nil {
		ms.unmapPages(area, VPNRange{Start: r.Start, End: done})
		return err
	}
	return nil
}

func (ms *MemorySet) unmapPages(area *MapArea, r VPNRange) {
	r.Pages(func(vpn VirtPageNum) bool {
		ppn, ok := area.frames[vpn]
		if !ok {
			return true
		}
		if _, err := ms.pt.Unmap(vpn); err == nil {
			ms.mem.freeFrame(ppn)
		}
		delete(area.frames, vpn)
		return true
	})
}

func (a *MapArea) split(r VPNRange) *MapArea {
	part := &MapArea{
		Range:  r,
		Perm:   a.Perm,
		Kind:   a.Kind,
		frames: make(map[VirtPageNum]PhysPageNum, r.Len()),
	}
	r.Pages(func(vpn VirtPageNum) bool {
		if ppn, ok := a.frames[vpn]; ok {
			part.frames[vpn] = ppn
		}
		return true
	})
	return part
}

package mm

// PageTableEntry maps one virtual page to a frame.
type PageTableEntry struct {
	PPN   PhysPageNum
	Flags MapPermission
}

func (e PageTableEntry) Readable() bool   { return e.Flags.Has(PermR) }
func (e PageTableEntry) Writable() bool   { return e.Flags.Has(PermW) }
func (e PageTableEntry) Executable() bool { return e.Flags.Has(PermX) }
func (e PageTableEntry) User() bool       { return e.Flags.Has(PermU) }

// PageTable is a single-level vpn to frame map. Entries only exist for valid pages.
type PageTable struct {
	mem     *Memory
	root    PhysPageNum
	entries map[VirtPageNum]PageTableEntry
}

func (pt *PageTable) Token() Token { return tokenMode | Token(pt.root) }

// Map installs vpn -> ppn. Mapping a page twice returns ErrOverlap.
func (pt *PageTable) Map(vpn VirtPageNum, ppn PhysPageNum, flags MapPermission) error {
	if _, ok := pt.entries[vpn]; ok {
		return ErrOverlap
	}
	pt.entries[vpn] = PageTableEntry{PPN: ppn, Flags: flags}
	return nil
}

// Unmap removes vpn and returns its entry.
func (pt *PageTable) Unmap(vpn VirtPageNum) (PageTableEntry, error) {
	e, ok := pt.entries[vpn]
	if !ok {
		return PageTableEntry{}, ErrUnmapped
	}
	delete(pt.entries, vpn)
	return e, nil
}

func (pt *PageTable) Translate(vpn VirtPageNum) (PageTableEntry, bool) {
	e, ok := pt.entries[vpn]
	return e, ok
}

// Mapped reports whether every page of r is valid.
func (pt *PageTable) Mapped(r VPNRange) bool {
	all := true
	r.Pages(func(vpn VirtPageNum) bool {
		_, all = pt.entries[vpn]
		return all
	})
	return all
}

func (pt *PageTable) Len() int { return len(pt.entries) }

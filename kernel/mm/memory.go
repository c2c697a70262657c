package mm

import (
	"fmt"
	"sync/atomic"
)

// Token identifies a page table. It is the handle a task hands to the translator.
type Token uint64

// tokenMode marks a token as a paged address space, in the style of a satp value.
const tokenMode = Token(8) << 60

// Memory is the physical frame pool shared by all address spaces. It also
// resolves translation tokens back to their page tables.
//
// Memory is not safe for concurrent mutation; only the usage counters may be
// read from other goroutines.
type Memory struct {
	limit  int
	frames map[PhysPageNum]*[PageSize]byte
	free   []PhysPageNum
	next   PhysPageNum
	tables map[Token]*PageTable

	used atomic.Int64
	peak atomic.Int64
}

// NewMemory creates a pool of the given number of frames.
func NewMemory(frames int) *Memory {
	return &Memory{
		limit:  frames,
		frames: make(map[PhysPageNum]*[PageSize]byte),
		next:   1,
		tables: make(map[Token]*PageTable),
	}
}

// FramesInUse returns the number of allocated frames.
func (m *Memory) FramesInUse() int { return int(m.used.Load()) }

// PeakFrames returns the highest FramesInUse seen.
func (m *Memory) PeakFrames() int { return int(m.peak.Load()) }

func (m *Memory) FrameLimit() int { return m.limit }

// FreeFrames returns how many more frames can be allocated.
func (m *Memory) FreeFrames() int { return m.limit - len(m.frames) }

func (m *Memory) allocFrame() (PhysPageNum, error) {
	if len(m.frames) >= m.limit {
		return 0, ErrOutOfMemory
	}
	var ppn PhysPageNum
	if n := len(m.free); n > 0 {
		ppn = m.free[n-1]
		m.free = m.free[:n-1]
	} else {
		ppn = m.next
		m.next++
	}
	m.frames[ppn] = new([PageSize]byte)

	used := m.used.Add(1)
	for {
		p := m.peak.Load()
		if used <= p || m.peak.CompareAndSwap(p, used) {
			break
		}
	}
	return ppn, nil
}

func (m *Memory) freeFrame(ppn PhysPageNum) {
	if _, ok := m.frames[ppn]; !ok {
		panic(fmt.Sprintf("mm: frame %#x freed twice", uint64(ppn)))
	}
	delete(m.frames, ppn)
	m.free = append(m.free, ppn)
	m.used.Add(-1)
}

func (m *Memory) frame(ppn PhysPageNum) []byte {
	f, ok := m.frames[ppn]
	if !ok {
		return nil
	}
	return f[:]
}

// NewPageTable allocates a root frame and registers a fresh page table.
func (m *Memory) NewPageTable() (*PageTable, error) {
	root, err := m.allocFrame()
	if err != nil {
		return nil, fmt.Errorf("page table root: %w", err)
	}
	pt := &PageTable{
		mem:     m,
		root:    root,
		entries: make(map[VirtPageNum]PageTableEntry),
	}
	m.tables[pt.Token()] = pt
	return pt, nil
}

// PageTable resolves a token.
func (m *Memory) PageTable(token Token) (*PageTable, error) {
	pt, ok := m.tables[token]
	if !ok {
		return nil, fmt.Errorf("token %#x: %w", uint64(token), ErrBadToken)
	}
	return pt, nil
}

func (m *Memory) releasePageTable(pt *PageTable) {
	if _, ok := m.tables[pt.Token()]; !ok {
		return
	}
	delete(m.tables, pt.Token())
	m.freeFrame(pt.root)
}

package mm

import "fmt"

// TranslatedByteBuffer resolves n bytes at ptr in the address space named by
// token into kernel-accessible spans, one per touched page. A structure that
// straddles a page boundary comes back as two spans.
func (m *Memory) TranslatedByteBuffer(token Token, ptr VirtAddr, n int) ([][]byte, error) {
	return m.spans(token, ptr, n, PermU)
}

// ReadUser copies n bytes out of user memory. Every page must be user readable.
func (m *Memory) ReadUser(token Token, ptr VirtAddr, n int) ([]byte, error) {
	spans, err := m.spans(token, ptr, n, PermU|PermR)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, n)
	for _, s := range spans {
		out = append(out, s...)
	}
	return out, nil
}

// WriteUser copies data into user memory. Every page must be user writable;
// nothing is written unless all of them are.
func (m *Memory) WriteUser(token Token, ptr VirtAddr, data []byte) error {
	spans, err := m.spans(token, ptr, len(data), PermU|PermW)
	if err != nil {
		return err
	}
	for _, s := range spans {
		data = data[copy(s, data):]
	}
	return nil
}

func (m *Memory) spans(token Token, ptr VirtAddr, n int, need MapPermission) ([][]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative length %d: %w", n, ErrBadAddress)
	}
	pt, err := m.PageTable(token)
	if err != nil {
		return nil, err
	}
	end := uint64(ptr) + uint64(n)
	if end < uint64(ptr) {
		return nil, fmt.Errorf("%s+%d wraps: %w", ptr, n, ErrBadAddress)
	}

	var out [][]byte
	for cur := uint64(ptr); cur < end; {
		va := VirtAddr(cur)
		e, ok := pt.Translate(va.Floor())
		if !ok || !e.Flags.Has(need) {
			return nil, fmt.Errorf("%s: %w", va, ErrBadAddress)
		}
		frame := m.frame(e.PPN)
		off := va.PageOffset()
		take := min(uint64(PageSize)-off, end-cur)
		out = append(out, frame[off:off+take])
		cur += take
	}
	return out, nil
}

package mm

import "strings"

// MapPermission holds page-table permission bits.
type MapPermission uint8

const (
	PermR MapPermission = 1 << (iota + 1)
	PermW
	PermX
	PermU
)

// PortMask selects the read/write/execute bits of an mmap port argument.
const PortMask = 0x7

// PermissionFromPort converts an mmap port (bit0=r, bit1=w, bit2=x) into user page
// permissions. The caller validates port first.
func PermissionFromPort(port uint64) MapPermission {
	return MapPermission((port&PortMask)<<1) | PermU
}

// ValidPort reports whether port sets at least one of r/w/x and nothing else.
func ValidPort(port uint64) bool {
	return port&^PortMask == 0 && port&PortMask != 0
}

func (p MapPermission) Has(bits MapPermission) bool { return p&bits == bits }

func (p MapPermission) String() string {
	var b strings.Builder
	for _, f := range []struct {
		bit MapPermission
		c   byte
	}{{PermR, 'r'}, {PermW, 'w'}, {PermX, 'x'}, {PermU, 'u'}} {
		if p&f.bit != 0 {
			b.WriteByte(f.c)
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

package mm

import "errors"

var (
	// ErrUnaligned reports a start address that is not page aligned.
	ErrUnaligned = errors.New("address not page aligned")
	// ErrBadPermission reports an mmap port with no r/w/x bits or with bits outside them.
	ErrBadPermission = errors.New("invalid permission bits")
	ErrOverlap       = errors.New("range overlaps an existing mapping")
	ErrUnmapped      = errors.New("range includes unmapped pages")
	ErrBreakLimit    = errors.New("program break out of bounds")
	ErrOutOfMemory   = errors.New("out of physical frames")
	ErrBadAddress    = errors.New("bad user address")
	ErrBadToken      = errors.New("unknown translation token")
)

package hal

type hostHAL struct {
	clock Clock
}

// New returns a host HAL implementation.
func New() HAL {
	return &hostHAL{clock: NewHostClock()}
}

// NewWithClock returns a host HAL using the given clock.
func NewWithClock(c Clock) HAL {
	if c == nil {
		c = NewHostClock()
	}
	return &hostHAL{clock: c}
}

func (h *hostHAL) Clock() Clock { return h.clock }

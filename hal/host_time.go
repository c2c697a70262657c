package hal

import (
	"sync/atomic"
	"time"
)

type hostClock struct {
	boot time.Time
	last atomic.Uint64
}

// NewHostClock returns a clock backed by the host's monotonic time.
func NewHostClock() Clock {
	return &hostClock{boot: time.Now()}
}

func (c *hostClock) Micros() uint64 {
	us := uint64(time.Since(c.boot) / time.Microsecond)
	// time.Since uses the monotonic reading; clamp anyway so readers never see a step back.
	for {
		prev := c.last.Load()
		if us <= prev {
			return prev
		}
		if c.last.CompareAndSwap(prev, us) {
			return us
		}
	}
}

// ManualClock is a clock that only moves when told to. Safe for concurrent use.
type ManualClock struct {
	us atomic.Uint64
}

func NewManualClock(startUs uint64) *ManualClock {
	c := &ManualClock{}
	c.us.Store(startUs)
	return c
}

func (c *ManualClock) Micros() uint64 { return c.us.Load() }

// Advance moves the clock forward by d, truncated to whole microseconds.
func (c *ManualClock) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	c.us.Add(uint64(d / time.Microsecond))
}

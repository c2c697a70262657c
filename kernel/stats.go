package kernel

import "sync/atomic"

// Stats are kernel-wide counters. They may be read from any goroutine.
type Stats struct {
	Dispatches atomic.Uint64
	Yields     atomic.Uint64
	Exits      atomic.Uint64
	Syscalls   atomic.Uint64
	Rejected   atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Dispatches uint64
	Yields     uint64
	Exits      uint64
	Syscalls   uint64
	Rejected   uint64
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Dispatches: s.Dispatches.Load(),
		Yields:     s.Yields.Load(),
		Exits:      s.Exits.Load(),
		Syscalls:   s.Syscalls.Load(),
		Rejected:   s.Rejected.Load(),
	}
}

package hal

// Clock is the kernel timebase: a monotonic microsecond counter.
//
// The counter starts near zero at boot and never goes backwards.
type Clock interface {
	Micros() uint64
}

// HAL provides the only contact point between the kernel core and the outside world.
type HAL interface {
	Clock() Clock
}

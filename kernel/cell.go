package kernel

import (
	"fmt"
	"sync/atomic"
)

// Cell gives dynamically checked exclusive access to a value.
//
// The kernel core runs one task at a time, so a Cell never waits: acquiring a
// cell that is already held is a kernel bug and goes through Fatal.
type Cell[T any] struct {
	_    [0]func() // not comparable
	name string
	held atomic.Bool
	v    T
}

// NewCell wraps v. name only shows up in fatal reports.
func NewCell[T any](name string, v T) *Cell[T] {
	return &Cell[T]{name: name, v: v}
}

// Guard is a held Cell. Release it exactly once; extra releases are ignored.
type Guard[T any] struct {
	c    *Cell[T]
	done bool
}

// Exclusive acquires the cell.
func (c *Cell[T]) Exclusive() *Guard[T] {
	if !c.held.CompareAndSwap(false, true) {
		Fatal(fmt.Sprintf("%s: already borrowed", c.name))
	}
	return &Guard[T]{c: c}
}

// With runs fn with the cell held and releases it on every exit path.
func (c *Cell[T]) With(fn func(*T)) {
	g := c.Exclusive()
	defer g.Release()
	fn(g.Get())
}

// Held reports whether the cell is currently borrowed.
func (c *Cell[T]) Held() bool { return c.held.Load() }

// Get returns the guarded value. Using a released guard is fatal.
func (g *Guard[T]) Get() *T {
	if g.done {
		Fatal(fmt.Sprintf("%s: used after release", g.c.name))
	}
	return &g.c.v
}

// Release gives the cell back.
func (g *Guard[T]) Release() {
	if g.done {
		return
	}
	g.done = true
	g.c.held.Store(false)
}

package kernel

import (
	"fmt"
	"runtime/debug"
)

// FatalError is a kernel consistency violation such as nested exclusive
// access. It is raised with panic and turned into an error by Kernel.Run.
type FatalError struct {
	Reason string
	Stack  []byte
}

func (e *FatalError) Error() string { return "kernel fatal: " + e.Reason }

// Fatal raises a FatalError. It never returns.
func Fatal(reason string) {
	panic(&FatalError{Reason: reason, Stack: debug.Stack()})
}

// Fatalf is Fatal with formatting.
func Fatalf(format string, args ...any) {
	Fatal(fmt.Sprintf(format, args...))
}

// PanicInfo describes a fatal error raised while a task was current.
type PanicInfo struct {
	PID   PID
	Task  string
	Fatal *FatalError
}

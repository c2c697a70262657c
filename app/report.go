package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"strideos/kernel"
	"strideos/kernel/mm"
)

// TaskReport is the final state of one task.
type TaskReport struct {
	PID        kernel.PID
	Name       string
	Priority   uint64
	Status     kernel.TaskStatus
	Dispatches uint64
	Syscalls   uint64
	Time       time.Duration
	ExitCode   int32
	// Err is set when the task's script failed.
	Err error
}

// Report summarizes a run.
type Report struct {
	Tasks      []TaskReport
	Stats      kernel.StatsSnapshot
	PeakMemory uint64
	Fatal      []kernel.PanicInfo
}

// Report collects the current state of every task. It must not be called
// while the kernel loop is running.
func (a *App) Report() Report {
	r := Report{
		Stats:      a.k.Stats().Snapshot(),
		PeakMemory: uint64(a.k.Memory().PeakFrames()) * mm.PageSize,
	}
	for _, t := range a.k.Tasks() {
		tr := TaskReport{PID: t.PID(), Name: t.Name(), Err: a.taskErr(t.PID())}
		t.With(func(in *kernel.TaskInner) {
			tr.Priority = in.Priority
			tr.Status = in.Status
			tr.Dispatches = in.Dispatches
			tr.Time = time.Duration(in.Time) * time.Microsecond
			tr.ExitCode = in.ExitCode
			for _, n := range in.SyscallTimes {
				tr.Syscalls += uint64(n)
			}
		})
		r.Tasks = append(r.Tasks, tr)
	}
	a.mu.Lock()
	r.Fatal = append(r.Fatal, a.panics...)
	a.mu.Unlock()
	return r
}

// Failed reports whether the kernel stopped on a fatal error or any task
// failed its script or never finished. Exit codes are not checked.
func (r Report) Failed() bool {
	if len(r.Fatal) > 0 {
		return true
	}
	for _, t := range r.Tasks {
		if t.Err != nil || t.Status != kernel.TaskZombie {
			return true
		}
	}
	return false
}

// Task returns the report for the task called name.
func (r Report) Task(name string) (TaskReport, bool) {
	for _, t := range r.Tasks {
		if t.Name == name {
			return t, true
		}
	}
	return TaskReport{}, false
}

// Summary renders the report as a small table.
func (r Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d dispatches, %s syscalls (%s rejected), peak memory %s\n",
		r.Stats.Dispatches,
		humanize.Comma(int64(r.Stats.Syscalls)),
		humanize.Comma(int64(r.Stats.Rejected)),
		humanize.IBytes(r.PeakMemory),
	)
	fmt.Fprintf(&b, "%-4s %-12s %5s %8s %6s %10s %6s %s\n", "PID", "TASK", "PRIO", "STATUS", "RUNS", "TIME", "EXIT", "ERROR")
	for _, t := range r.Tasks {
		errText := "-"
		if t.Err != nil {
			errText = t.Err.Error()
		}
		fmt.Fprintf(&b, "%-4d %-12s %5d %8s %6d %10s %6d %s\n",
			t.PID, t.Name, t.Priority, t.Status, t.Dispatches, t.Time, t.ExitCode, errText)
	}
	for _, f := range r.Fatal {
		fmt.Fprintf(&b, "fatal in %s (pid %d): %s\n", f.Task, f.PID, f.Fatal.Reason)
	}
	return b.String()
}

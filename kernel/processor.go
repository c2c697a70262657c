package kernel

import (
	"strideos/hal"
	"strideos/kernel/mm"
)

// Processor holds the currently running task and moves tasks between the
// current slot and the ready queue. It does not switch stacks; Kernel does.
type Processor struct {
	sched   *Scheduler
	clock   hal.Clock
	stats   *Stats
	current *TaskControlBlock
}

func NewProcessor(sched *Scheduler, clock hal.Clock, stats *Stats) *Processor {
	if stats == nil {
		stats = &Stats{}
	}
	return &Processor{sched: sched, clock: clock, stats: stats}
}

// Current returns the running task, or nil.
func (p *Processor) Current() *TaskControlBlock { return p.current }

// CurrentUserToken returns the running task's translation token.
func (p *Processor) CurrentUserToken() mm.Token {
	if p.current == nil {
		Fatal("no current task")
	}
	return p.current.Token()
}

// RunNext fetches the next task, charges it one pass and makes it current.
// It returns nil when the ready queue is empty.
func (p *Processor) RunNext() *TaskControlBlock {
	if p.current != nil {
		Fatalf("dispatch while task %d is current", p.current.PID())
	}
	t := p.sched.FetchTask()
	if t == nil {
		return nil
	}
	now := p.clock.Micros()
	t.With(func(in *TaskInner) {
		in.Status = TaskRunning
		in.Stride += in.Pass
		in.switchedIn = now
		in.Dispatches++
	})
	p.current = t
	p.stats.Dispatches.Add(1)
	return t
}

// SuspendCurrent returns the running task to the ready queue.
func (p *Processor) SuspendCurrent() *TaskControlBlock {
	t := p.take()
	now := p.clock.Micros()
	t.With(func(in *TaskInner) {
		in.Time += now - in.switchedIn
		in.Status = TaskReady
	})
	p.sched.AddTask(t)
	p.stats.Yields.Add(1)
	return t
}

// ExitCurrent retires the running task. Its address space is released and it
// is never queued again.
func (p *Processor) ExitCurrent(code int32) *TaskControlBlock {
	t := p.take()
	now := p.clock.Micros()
	t.With(func(in *TaskInner) {
		in.Time += now - in.switchedIn
		in.Status = TaskZombie
		in.ExitCode = code
		in.MemorySet.Recycle()
	})
	p.stats.Exits.Add(1)
	return t
}

func (p *Processor) take() *TaskControlBlock {
	t := p.current
	if t == nil {
		Fatal("no current task")
	}
	p.current = nil
	return t
}

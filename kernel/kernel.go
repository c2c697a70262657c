package kernel

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"strideos/hal"
	"strideos/internal/logx"
	"strideos/kernel/mm"
)

// Options size the kernel. Zero values take the package defaults.
type Options struct {
	Frames          int
	StackPages      int
	HeapLimit       uint64
	BigStride       uint64
	DefaultPriority uint64

	Logger logx.Logger
	// OnFatal is called once from Run when a task raises a FatalError.
	OnFatal func(PanicInfo)
}

type trapEvent struct {
	fatal *PanicInfo
}

// Kernel is the dispatch loop and the state it threads through trap handling:
// one frame pool, one ready queue, one processor.
//
// Each task body runs on its own goroutine, but control is handed over
// explicitly so exactly one of Run and the task goroutines executes at a time.
type Kernel struct {
	opts  Options
	log   logx.Logger
	clock hal.Clock
	mem   *mm.Memory
	sched *Scheduler
	proc  *Processor
	stats Stats

	nextPID PID
	tasks   []*TaskControlBlock

	trap     chan trapEvent
	halt     chan struct{}
	haltOnce sync.Once
}

// New builds a kernel on h.
func New(h hal.HAL, opts Options) *Kernel {
	if opts.Frames <= 0 {
		opts.Frames = 1024
	}
	if opts.StackPages <= 0 {
		opts.StackPages = DefaultStackPages
	}
	if opts.HeapLimit == 0 {
		opts.HeapLimit = 64 * 1024
	}
	if opts.BigStride == 0 {
		opts.BigStride = BigStride
	}
	if opts.DefaultPriority == 0 {
		opts.DefaultPriority = DefaultPriority
	}

	k := &Kernel{
		opts:  opts,
		log:   opts.Logger,
		clock: h.Clock(),
		mem:   mm.NewMemory(opts.Frames),
		sched: NewScheduler(),
		trap:  make(chan trapEvent, 1),
		halt:  make(chan struct{}),
	}
	k.proc = NewProcessor(k.sched, k.clock, &k.stats)
	return k
}

func (k *Kernel) Memory() *mm.Memory         { return k.mem }
func (k *Kernel) Scheduler() *Scheduler      { return k.sched }
func (k *Kernel) Processor() *Processor      { return k.proc }
func (k *Kernel) Clock() hal.Clock           { return k.clock }
func (k *Kernel) Stats() *Stats              { return &k.stats }
func (k *Kernel) Logger() logx.Logger        { return k.log }
func (k *Kernel) Tasks() []*TaskControlBlock { return k.tasks }

// Spawn creates a Ready task running entry and queues it. A zero priority
// takes the configured default.
func (k *Kernel) Spawn(name string, priority uint64, entry func()) (*TaskControlBlock, error) {
	if priority == 0 {
		priority = k.opts.DefaultPriority
	}
	pid := k.nextPID
	layout := TaskLayout{StackPages: k.opts.StackPages, HeapLimit: k.opts.HeapLimit}
	t, err := NewTaskControlBlock(pid, name, k.mem, layout, k.opts.BigStride, priority, entry)
	if err != nil {
		return nil, fmt.Errorf("spawn %q: %w", name, err)
	}
	k.nextPID++
	k.tasks = append(k.tasks, t)
	k.sched.AddTask(t)
	k.log.Debug("kernel: spawn",
		logx.Int("pid", int(pid)),
		logx.String("task", name),
		logx.Uint64("priority", priority),
	)
	return t, nil
}

// Run dispatches tasks until none is runnable or ctx is done. It returns a
// *FatalError if a task hit a kernel consistency violation. After ctx is
// done Run still waits for the running task to trap. Run may be called once.
func (k *Kernel) Run(ctx context.Context) error {
	defer k.shutdown()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		t := k.proc.RunNext()
		if t == nil {
			k.log.Debug("kernel: ready queue empty")
			return nil
		}
		k.log.Trace("kernel: dispatch", logx.Int("pid", int(t.PID())), logx.String("task", t.Name()))
		if !t.started {
			t.started = true
			go k.taskMain(t)
		}
		t.resume <- struct{}{}

		select {
		case ev := <-k.trap:
			if ev.fatal != nil {
				return k.fatal(ev.fatal)
			}
		case <-ctx.Done():
			// There is no preemption: the running task owns its cell until it traps.
			if ev := <-k.trap; ev.fatal != nil {
				return k.fatal(ev.fatal)
			}
			return ctx.Err()
		}
	}
}

func (k *Kernel) fatal(info *PanicInfo) error {
	k.log.Error("kernel: fatal",
		logx.Int("pid", int(info.PID)),
		logx.String("task", info.Task),
		logx.String("reason", info.Fatal.Reason),
	)
	if k.opts.OnFatal != nil {
		k.opts.OnFatal(*info)
	}
	return info.Fatal
}

// Yield gives up the processor. It is called on the current task's
// goroutine and returns once the task is dispatched again.
func (k *Kernel) Yield() {
	t := k.proc.SuspendCurrent()
	k.trap <- trapEvent{}
	k.park(t)
}

// Exit retires the current task. It is called on the task's goroutine and
// never returns.
func (k *Kernel) Exit(code int32) {
	t := k.proc.ExitCurrent(code)
	k.log.Info("kernel: task exited",
		logx.Int("pid", int(t.PID())),
		logx.String("task", t.Name()),
		logx.Int("code", int(code)),
	)
	k.trap <- trapEvent{}
	runtime.Goexit()
}

func (k *Kernel) park(t *TaskControlBlock) {
	select {
	case <-t.resume:
	case <-k.halt:
		runtime.Goexit()
	}
}

func (k *Kernel) taskMain(t *TaskControlBlock) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if fe, ok := r.(*FatalError); ok {
			k.trap <- trapEvent{fatal: &PanicInfo{PID: t.PID(), Task: t.Name(), Fatal: fe}}
			return
		}
		k.log.Warn("kernel: task panicked, killing it",
			logx.Int("pid", int(t.PID())),
			logx.String("task", t.Name()),
			logx.Any("panic", r),
		)
		k.proc.ExitCurrent(-1)
		k.trap <- trapEvent{}
	}()

	k.park(t)
	if t.entry != nil {
		t.entry()
	}
	k.Exit(0)
}

func (k *Kernel) shutdown() {
	k.haltOnce.Do(func() { close(k.halt) })
}

// Package app boots a kernel, spawns a workload of scripted tasks and runs
// them to completion.
package app

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"strideos/hal"
	"strideos/internal/config"
	"strideos/internal/logx"
	"strideos/kernel"
	"strideos/kernel/mm"
	"strideos/kernel/syscalls"
	"strideos/ulib"
)

// App owns one kernel and the workload it runs.
type App struct {
	cfg     config.Config
	log     logx.Logger
	k       *kernel.Kernel
	handler *syscalls.Handler

	// ctx is the parent of syscall spans. It is set before the kernel loop starts.
	ctx context.Context

	mu     sync.Mutex
	errs   map[kernel.PID]error
	panics []kernel.PanicInfo
}

// New builds the kernel described by cfg on h and spawns every task of wl.
func New(h hal.HAL, cfg config.Config, wl Workload, log logx.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := wl.Validate(); err != nil {
		return nil, err
	}

	a := &App{
		cfg:  cfg,
		log:  log,
		ctx:  context.Background(),
		errs: make(map[kernel.PID]error),
	}
	a.k = kernel.New(h, kernel.Options{
		Frames:          cfg.Memory.Frames,
		StackPages:      cfg.Memory.StackPages,
		HeapLimit:       cfg.Memory.HeapLimit,
		BigStride:       cfg.Scheduler.BigStride,
		DefaultPriority: cfg.Scheduler.DefaultPriority,
		Logger:          log,
		OnFatal:         a.onFatal,
	})
	a.handler = syscalls.NewHandler(a.k, log)

	for _, spec := range wl.Tasks {
		if err := a.spawn(spec); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *App) Kernel() *kernel.Kernel { return a.k }

func (a *App) spawn(spec TaskSpec) error {
	var t *kernel.TaskControlBlock
	t, err := a.k.Spawn(spec.Name, spec.Priority, func() {
		u := ulib.New(a.trap(), taskMemory{mem: a.k.Memory(), token: t.Token()})
		if err := spec.run(u); err != nil {
			a.recordErr(t.PID(), err)
			a.log.Warn("app: task script failed",
				logx.Int("pid", int(t.PID())),
				logx.String("task", t.Name()),
				logx.Err(err),
			)
			u.Exit(1)
		}
	})
	return err
}

func (a *App) trap() ulib.Trap {
	return ulib.TrapFunc(func(id uint64, args [3]uint64) int64 {
		return a.handler.Dispatch(a.ctx, id, args)
	})
}

// Run drives the kernel until every task has exited or ctx is done, logging
// kernel counters every report interval.
func (a *App) Run(ctx context.Context) (Report, error) {
	a.ctx = ctx
	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})

	g.Go(func() error {
		defer close(done)
		start := time.Now()
		err := a.k.Run(gctx)
		a.log.Info("app: kernel stopped", logx.Duration("elapsed", time.Since(start)), logx.Err(err))
		return err
	})
	g.Go(func() error {
		a.reportLoop(gctx, done)
		return nil
	})

	err := g.Wait()
	return a.Report(), err
}

func (a *App) reportLoop(ctx context.Context, done <-chan struct{}) {
	if a.cfg.Report.Interval <= 0 {
		return
	}
	ticker := time.NewTicker(a.cfg.Report.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := a.k.Stats().Snapshot()
			a.log.Info("app: stats",
				logx.Uint64("dispatches", s.Dispatches),
				logx.Uint64("syscalls", s.Syscalls),
				logx.Uint64("rejected", s.Rejected),
				logx.Uint64("exits", s.Exits),
				logx.Int("ready", a.k.Scheduler().Len()),
				logx.Int("frames", a.k.Memory().FramesInUse()),
			)
		}
	}
}

func (a *App) onFatal(info kernel.PanicInfo) {
	a.mu.Lock()
	a.panics = append(a.panics, info)
	a.mu.Unlock()
}

func (a *App) recordErr(pid kernel.PID, err error) {
	a.mu.Lock()
	a.errs[pid] = err
	a.mu.Unlock()
}

func (a *App) taskErr(pid kernel.PID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.errs[pid]
}

// taskMemory is a task's view of its own address space.
type taskMemory struct {
	mem   *mm.Memory
	token mm.Token
}

func (m taskMemory) ReadUser(ptr mm.VirtAddr, n int) ([]byte, error) {
	return m.mem.ReadUser(m.token, ptr, n)
}

func (m taskMemory) WriteUser(ptr mm.VirtAddr, data []byte) error {
	return m.mem.WriteUser(m.token, ptr, data)
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"strideos/app"
	"strideos/hal"
	"strideos/internal/buildinfo"
	"strideos/internal/config"
	"strideos/internal/logx"
	"strideos/internal/tracing"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath   string
		workloadPath string
		logLevel     string
		traceSpans   bool
	)
	flag.StringVar(&configPath, "config", "", "Kernel config file (YAML). Defaults apply when empty.")
	flag.StringVar(&workloadPath, "workload", "", "Workload file (YAML). Runs the built-in demo when empty.")
	flag.StringVar(&logLevel, "log-level", "", "Override log.level (trace, debug, info, warn, error, off).")
	flag.BoolVar(&traceSpans, "trace", false, "Export one span per syscall to stdout.")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	log := logx.New(os.Stderr, cfg.Log.Level, cfg.ConsoleLog())

	wl, err := app.LoadWorkload(workloadPath)
	if err != nil {
		log.Error("strideos: workload", logx.Err(err))
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if traceSpans {
		shutdown, err := tracing.Init(os.Stdout, "strideos", buildinfo.Short())
		if err != nil {
			log.Error("strideos: tracing", logx.Err(err))
			return 1
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				log.Warn("strideos: tracing shutdown", logx.Err(err))
			}
		}()
	}

	a, err := app.New(hal.New(), cfg, wl, log)
	if err != nil {
		log.Error("strideos: boot", logx.Err(err))
		return 1
	}
	log.Info("strideos: boot",
		logx.String("version", buildinfo.Get().String()),
		logx.Int("tasks", len(wl.Tasks)),
		logx.Int("frames", cfg.Memory.Frames),
		logx.Uint64("big_stride", cfg.Scheduler.BigStride),
	)

	rep, err := a.Run(ctx)
	fmt.Fprint(os.Stderr, rep.Summary())
	switch {
	case errors.Is(err, context.Canceled):
		return 130
	case err != nil:
		log.Error("strideos: kernel stopped", logx.Err(err))
		return 1
	case rep.Failed():
		return 1
	}
	return 0
}

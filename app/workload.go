package app

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"strideos/kernel"
)

// Op names understood by a task script.
const (
	OpYield       = "yield"
	OpExit        = "exit"
	OpGetTime     = "get_time"
	OpTaskInfo    = "task_info"
	OpMmap        = "mmap"
	OpMunmap      = "munmap"
	OpSbrk        = "sbrk"
	OpSetPriority = "set_priority"
	OpStore       = "store"
	OpLoad        = "load"
)

//go:embed demo.yaml
var demoWorkload []byte

// Workload is the set of tasks booted by an App.
type Workload struct {
	Tasks []TaskSpec `yaml:"tasks"`
}

// TaskSpec describes one task: its scheduling priority and a script of ops
// run Repeat times. A zero priority takes the kernel default.
type TaskSpec struct {
	Name     string `yaml:"name"`
	Priority uint64 `yaml:"priority"`
	Repeat   int    `yaml:"repeat"`
	Ops      []Op   `yaml:"ops"`
}

// Op is one step of a task script. Only the fields the op reads are used.
// When Expect is set the op's return word must equal it.
type Op struct {
	Op       string `yaml:"op"`
	Start    uint64 `yaml:"start"`
	Len      uint64 `yaml:"len"`
	Port     uint64 `yaml:"port"`
	Addr     uint64 `yaml:"addr"`
	Delta    int32  `yaml:"delta"`
	Priority int64  `yaml:"priority"`
	Code     int32  `yaml:"code"`
	Data     string `yaml:"data"`
	Expect   *int64 `yaml:"expect"`
}

func (o Op) String() string {
	switch o.Op {
	case OpMmap:
		return fmt.Sprintf("mmap(%#x, %#x, %d)", o.Start, o.Len, o.Port)
	case OpMunmap:
		return fmt.Sprintf("munmap(%#x, %#x)", o.Start, o.Len)
	case OpSbrk:
		return fmt.Sprintf("sbrk(%d)", o.Delta)
	case OpSetPriority:
		return fmt.Sprintf("set_priority(%d)", o.Priority)
	case OpExit:
		return fmt.Sprintf("exit(%d)", o.Code)
	case OpGetTime, OpTaskInfo, OpStore, OpLoad:
		return fmt.Sprintf("%s(%#x)", o.Op, o.Addr)
	default:
		return o.Op
	}
}

// DemoWorkload is the workload booted when none is given.
func DemoWorkload() Workload {
	wl, err := ParseWorkload(demoWorkload)
	if err != nil {
		panic("app: embedded demo workload: " + err.Error())
	}
	return wl
}

// LoadWorkload reads a workload file. An empty path yields the demo workload.
func LoadWorkload(path string) (Workload, error) {
	if path == "" {
		return DemoWorkload(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Workload{}, err
	}
	wl, err := ParseWorkload(b)
	if err != nil {
		return Workload{}, fmt.Errorf("workload %s: %w", path, err)
	}
	return wl, nil
}

// ParseWorkload decodes and validates a YAML workload. Unknown fields are errors.
func ParseWorkload(data []byte) (Workload, error) {
	var wl Workload
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&wl); err != nil && !errors.Is(err, io.EOF) {
		return Workload{}, err
	}
	if err := wl.Validate(); err != nil {
		return Workload{}, err
	}
	return wl, nil
}

func (wl Workload) Validate() error {
	if len(wl.Tasks) == 0 {
		return errors.New("workload has no tasks")
	}
	var errs []error
	for i, t := range wl.Tasks {
		if t.Name == "" {
			errs = append(errs, fmt.Errorf("tasks[%d]: name is required", i))
		}
		if t.Priority != 0 && t.Priority < kernel.MinPriority {
			errs = append(errs, fmt.Errorf("tasks[%d] %q: priority must be 0 or >= %d", i, t.Name, kernel.MinPriority))
		}
		if t.Repeat < 0 {
			errs = append(errs, fmt.Errorf("tasks[%d] %q: repeat must be >= 0", i, t.Name))
		}
		for j, op := range t.Ops {
			if !knownOp(op.Op) {
				errs = append(errs, fmt.Errorf("tasks[%d] %q ops[%d]: unknown op %q", i, t.Name, j, op.Op))
			}
		}
	}
	return errors.Join(errs...)
}

func knownOp(name string) bool {
	switch name {
	case OpYield, OpExit, OpGetTime, OpTaskInfo, OpMmap, OpMunmap, OpSbrk, OpSetPriority, OpStore, OpLoad:
		return true
	}
	return false
}

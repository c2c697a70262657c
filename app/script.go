package app

import (
	"bytes"
	"fmt"

	"strideos/abi"
	"strideos/kernel/mm"
	"strideos/ulib"
)

// run executes the task script through u. It returns at the first op whose
// result differs from its expectation. An exit op does not return.
func (s TaskSpec) run(u *ulib.User) error {
	rounds := s.Repeat
	if rounds == 0 {
		rounds = 1
	}
	for r := 0; r < rounds; r++ {
		for i, op := range s.Ops {
			if err := op.apply(u); err != nil {
				return fmt.Errorf("round %d op %d %s: %w", r, i, op, err)
			}
		}
	}
	return nil
}

func (o Op) apply(u *ulib.User) error {
	var ret int64
	switch o.Op {
	case OpYield:
		ret = u.Yield()
	case OpExit:
		u.Exit(o.Code)
	case OpGetTime:
		ret = u.GetTime(mm.VirtAddr(o.Addr))
	case OpTaskInfo:
		ret = u.TaskInfo(mm.VirtAddr(o.Addr))
	case OpMmap:
		ret = u.Mmap(o.Start, o.Len, o.Port)
	case OpMunmap:
		ret = u.Munmap(o.Start, o.Len)
	case OpSbrk:
		ret = u.Sbrk(o.Delta)
	case OpSetPriority:
		ret = u.SetPriority(o.Priority)
	case OpStore:
		return o.check(u.Store(mm.VirtAddr(o.Addr), []byte(o.Data)))
	case OpLoad:
		return o.check(o.load(u))
	default:
		return fmt.Errorf("unknown op %q", o.Op)
	}
	if o.Expect != nil && ret != *o.Expect {
		return fmt.Errorf("returned %d, want %d", ret, *o.Expect)
	}
	return nil
}

func (o Op) load(u *ulib.User) error {
	n := int(o.Len)
	if o.Data != "" {
		n = len(o.Data)
	}
	got, err := u.Load(mm.VirtAddr(o.Addr), n)
	if err != nil {
		return err
	}
	if o.Data != "" && !bytes.Equal(got, []byte(o.Data)) {
		return fmt.Errorf("read %q, want %q", got, o.Data)
	}
	return nil
}

// check maps a memory access error to the 0/-1 convention so scripts can
// expect a fault.
func (o Op) check(err error) error {
	ret := int64(0)
	if err != nil {
		ret = abi.Fail
	}
	want := int64(0)
	if o.Expect != nil {
		want = *o.Expect
	}
	if ret == want {
		return nil
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("access succeeded, want %d", want)
}

// Package ulib is the user-side view of the kernel: typed syscall wrappers
// plus loads and stores through the task's own address space.
package ulib

import (
	"fmt"

	"strideos/abi"
	"strideos/kernel/mm"
)

// Trap enters the kernel with a syscall number and three argument words.
type Trap interface {
	Syscall(id uint64, args [3]uint64) int64
}

// TrapFunc adapts a function to Trap.
type TrapFunc func(id uint64, args [3]uint64) int64

func (f TrapFunc) Syscall(id uint64, args [3]uint64) int64 { return f(id, args) }

// Memory is the task's view of its own address space.
type Memory interface {
	ReadUser(ptr mm.VirtAddr, n int) ([]byte, error)
	WriteUser(ptr mm.VirtAddr, data []byte) error
}

// User is handed to a task body.
type User struct {
	trap Trap
	mem  Memory
}

func New(trap Trap, mem Memory) *User {
	return &User{trap: trap, mem: mem}
}

// Exit does not return.
func (u *User) Exit(code int32) {
	u.trap.Syscall(abi.SysExit, [3]uint64{uint64(uint32(code))})
	panic("ulib: exit returned")
}

func (u *User) Yield() int64 {
	return u.trap.Syscall(abi.SysYield, [3]uint64{})
}

func (u *User) SetPriority(prio int64) int64 {
	return u.trap.Syscall(abi.SysSetPriority, [3]uint64{uint64(prio)})
}

func (u *User) GetTime(ts mm.VirtAddr) int64 {
	return u.trap.Syscall(abi.SysGetTime, [3]uint64{uint64(ts), 0})
}

func (u *User) TaskInfo(ti mm.VirtAddr) int64 {
	return u.trap.Syscall(abi.SysTaskInfo, [3]uint64{uint64(ti)})
}

func (u *User) Mmap(start, length, port uint64) int64 {
	return u.trap.Syscall(abi.SysMmap, [3]uint64{start, length, port})
}

func (u *User) Munmap(start, length uint64) int64 {
	return u.trap.Syscall(abi.SysMunmap, [3]uint64{start, length})
}

// Sbrk returns the old program break, or -1.
func (u *User) Sbrk(delta int32) int64 {
	return u.trap.Syscall(abi.SysSbrk, [3]uint64{uint64(uint32(delta))})
}

// Now calls get_time with scratch as the buffer and decodes the result.
func (u *User) Now(scratch mm.VirtAddr) (abi.TimeVal, error) {
	if ret := u.GetTime(scratch); ret != 0 {
		return abi.TimeVal{}, fmt.Errorf("get_time(%s) = %d", scratch, ret)
	}
	b, err := u.Load(scratch, abi.TimeValSize)
	if err != nil {
		return abi.TimeVal{}, err
	}
	tv, _ := abi.DecodeTimeVal(b)
	return tv, nil
}

// Info calls task_info with scratch as the buffer and decodes the result.
func (u *User) Info(scratch mm.VirtAddr) (abi.TaskInfo, error) {
	if ret := u.TaskInfo(scratch); ret != 0 {
		return abi.TaskInfo{}, fmt.Errorf("task_info(%s) = %d", scratch, ret)
	}
	b, err := u.Load(scratch, abi.TaskInfoSize)
	if err != nil {
		return abi.TaskInfo{}, err
	}
	ti, _ := abi.DecodeTaskInfo(b)
	return ti, nil
}

// Load reads n bytes of user memory.
func (u *User) Load(ptr mm.VirtAddr, n int) ([]byte, error) {
	return u.mem.ReadUser(ptr, n)
}

// Store writes data to user memory.
func (u *User) Store(ptr mm.VirtAddr, data []byte) error {
	return u.mem.WriteUser(ptr, data)
}

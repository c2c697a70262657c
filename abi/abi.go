// Package abi defines the syscall numbers and the layouts of structures the
// kernel writes into task memory. All multi-byte fields are little-endian.
package abi

import "encoding/binary"

// Syscall numbers.
const (
	SysExit        uint64 = 93
	SysYield       uint64 = 124
	SysSetPriority uint64 = 140
	SysGetTime     uint64 = 169
	SysSbrk        uint64 = 214
	SysMunmap      uint64 = 215
	SysMmap        uint64 = 222
	SysTaskInfo    uint64 = 410
)

// MaxSyscallNum is the length of TaskInfo.SyscallTimes.
const MaxSyscallNum = 500

// Fail is the return value of a rejected syscall.
const Fail int64 = -1

// SyscallName returns a short name for logs and traces.
func SyscallName(id uint64) string {
	switch id {
	case SysExit:
		return "exit"
	case SysYield:
		return "yield"
	case SysSetPriority:
		return "set_priority"
	case SysGetTime:
		return "get_time"
	case SysSbrk:
		return "sbrk"
	case SysMunmap:
		return "munmap"
	case SysMmap:
		return "mmap"
	case SysTaskInfo:
		return "task_info"
	default:
		return "unknown"
	}
}

// Mmap port bits.
const (
	PortRead  uint64 = 1 << 0
	PortWrite uint64 = 1 << 1
	PortExec  uint64 = 1 << 2
)

// Task status tags as stored in TaskInfo.Status.
const (
	StatusReady uint32 = iota
	StatusRunning
	StatusZombie
)

// TimeVal is a microsecond counter split into seconds and microseconds.
//
// Layout:
//   - u64 @0: sec
//   - u64 @8: usec
type TimeVal struct {
	Sec  uint64
	Usec uint64
}

const TimeValSize = 16

// TimeValFromMicros decomposes a microsecond count.
func TimeValFromMicros(us uint64) TimeVal {
	return TimeVal{Sec: us / 1_000_000, Usec: us % 1_000_000}
}

// Micros recombines the value.
func (tv TimeVal) Micros() uint64 { return tv.Sec*1_000_000 + tv.Usec }

// TimeValPayload encodes tv.
func TimeValPayload(tv TimeVal) []byte {
	buf := make([]byte, TimeValSize)
	binary.LittleEndian.PutUint64(buf[0:8], tv.Sec)
	binary.LittleEndian.PutUint64(buf[8:16], tv.Usec)
	return buf
}

// DecodeTimeVal decodes a TimeValPayload.
func DecodeTimeVal(b []byte) (TimeVal, bool) {
	if len(b) < TimeValSize {
		return TimeVal{}, false
	}
	return TimeVal{
		Sec:  binary.LittleEndian.Uint64(b[0:8]),
		Usec: binary.LittleEndian.Uint64(b[8:16]),
	}, true
}

// TaskInfo is what task_info reports about the calling task.
//
// Layout:
//   - u32 @0: status
//   - [500]u32 @4: syscall_times
//   - 4 bytes padding
//   - u64 @2008: time in milliseconds
type TaskInfo struct {
	Status       uint32
	SyscallTimes [MaxSyscallNum]uint32
	Time         uint64
}

const (
	taskInfoTimesOff = 4
	taskInfoTimeOff  = 2008
	TaskInfoSize     = 2016
)

// TaskInfoPayload encodes ti.
func TaskInfoPayload(ti *TaskInfo) []byte {
	buf := make([]byte, TaskInfoSize)
	binary.LittleEndian.PutUint32(buf[0:4], ti.Status)
	for i, n := range ti.SyscallTimes {
		off := taskInfoTimesOff + 4*i
		binary.LittleEndian.PutUint32(buf[off:off+4], n)
	}
	binary.LittleEndian.PutUint64(buf[taskInfoTimeOff:taskInfoTimeOff+8], ti.Time)
	return buf
}

// DecodeTaskInfo decodes a TaskInfoPayload.
func DecodeTaskInfo(b []byte) (TaskInfo, bool) {
	var ti TaskInfo
	if len(b) < TaskInfoSize {
		return ti, false
	}
	ti.Status = binary.LittleEndian.Uint32(b[0:4])
	for i := range ti.SyscallTimes {
		off := taskInfoTimesOff + 4*i
		ti.SyscallTimes[i] = binary.LittleEndian.Uint32(b[off : off+4])
	}
	ti.Time = binary.LittleEndian.Uint64(b[taskInfoTimeOff : taskInfoTimeOff+8])
	return ti, true
}

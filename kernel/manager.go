package kernel

import (
	"slices"
	"sync/atomic"
)

// TaskManager is the ready queue under the stride policy.
//
// Fetch compares raw stride values. A stride that has wrapped past zero looks
// small and is picked first until the others wrap too; that is the stride
// algorithm's known edge and is left as is.
type TaskManager struct {
	ready []*TaskControlBlock
}

func NewTaskManager() *TaskManager {
	return &TaskManager{}
}

// Add appends t to the tail. t must be Ready and not already queued.
func (m *TaskManager) Add(t *TaskControlBlock) {
	m.ready = append(m.ready, t)
}

// Fetch removes and returns the task with the smallest stride, or nil if the
// queue is empty. Ties go to the task queued first. The others keep their order.
func (m *TaskManager) Fetch() *TaskControlBlock {
	var (
		best       *TaskControlBlock
		bestStride uint64
	)
	for _, t := range m.ready {
		stride := t.Stride()
		if best == nil || stride < bestStride {
			best, bestStride = t, stride
		}
	}
	if best == nil {
		return nil
	}
	i := slices.Index(m.ready, best)
	m.ready = slices.Delete(m.ready, i, i+1)
	return best
}

func (m *TaskManager) Len() int { return len(m.ready) }

// Tasks returns the queued tasks in queue order.
func (m *TaskManager) Tasks() []*TaskControlBlock {
	return slices.Clone(m.ready)
}

// Scheduler owns the ready queue behind an exclusive-access cell. Only the
// queue length is published outside the cell.
type Scheduler struct {
	cell  *Cell[TaskManager]
	ready atomic.Int64
}

func NewScheduler() *Scheduler {
	return &Scheduler{cell: NewCell("task manager", *NewTaskManager())}
}

// AddTask puts t back on the ready queue.
func (s *Scheduler) AddTask(t *TaskControlBlock) {
	s.cell.With(func(m *TaskManager) {
		m.Add(t)
		s.ready.Store(int64(m.Len()))
	})
}

// FetchTask takes the next task to run, or nil when nothing is runnable.
func (s *Scheduler) FetchTask() *TaskControlBlock {
	var t *TaskControlBlock
	s.cell.With(func(m *TaskManager) {
		t = m.Fetch()
		s.ready.Store(int64(m.Len()))
	})
	return t
}

// Len is the number of queued tasks. It never borrows the queue, so any
// goroutine may call it.
func (s *Scheduler) Len() int { return int(s.ready.Load()) }

func (s *Scheduler) Tasks() []*TaskControlBlock {
	var ts []*TaskControlBlock
	s.cell.With(func(m *TaskManager) { ts = m.Tasks() })
	return ts
}

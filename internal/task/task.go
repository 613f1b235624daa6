// Package task implements the task table and per-task control block (PCB):
// a fixed-size array of dense ids, each slot carrying scheduling, memory,
// and signal-delivery state. Ready-queue linkage is
// kept as index pairs rather than intrusive pointers, per the DESIGN
// NOTES' guidance for a GC'd rewrite: prev/next are task ids, not pointers.
package task

import (
	"errors"

	"github.com/hermit-os/kernel/internal/cpu"
	"github.com/hermit-os/kernel/internal/lock"
)

// ID identifies a task by its dense index into the table.
type ID int32

// None is the sentinel used for queue links and "no task" fields.
const None ID = -1

// Status is a task's lifecycle state.
type Status int32

const (
	StatusInvalid Status = iota
	StatusReady
	StatusRunning
	StatusBlocked
	StatusFinished
	StatusIdle
)

// ErrTableFull is returned when the task table has no free slot.
var ErrTableFull = errors.New("task: table full")

// ErrInvalidID is returned for an out-of-range or INVALID task id.
var ErrInvalidID = errors.New("task: invalid id")

// PageTable is the narrow view task needs of a page table root; satisfied
// by *paging.Table without task importing the memory subsystem.
type PageTable interface {
	Drop()
}

// Task is one task's control block.
type Task struct {
	mu lock.IRQSave // per-task lock

	id       ID
	status   Status
	priority int
	lastCore int

	kernelStackBase     uintptr
	kernelStackSize     int
	interruptStackBase  uintptr
	pageTable           PageTable
	savedSP             uintptr

	// Ready/block queue linkage, stored as ids rather than pointers.
	prev, next ID

	heapVMAStart uintptr

	sigHandler    func(signum int)
	pendingSignal *int

	fpuState []byte
	fpuUsed  bool

	userPageUsage cpu.Counter64

	entry func()
}

// ID returns the task's dense id.
func (t *Task) ID() ID { return t.id }

// Status returns the task's current lifecycle state.
func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *Task) setStatus(s Status) {
	t.mu.Lock()
	t.status = s
	t.mu.Unlock()
}

// Priority returns the task's scheduling priority.
func (t *Task) Priority() int { return t.priority }

// SetPriority changes the task's scheduling priority (the getprio/setprio
// syscalls). It takes effect the next time the task is
// enqueued; a task already queued at its old level is not moved until
// then.
func (t *Task) SetPriority(p int) {
	t.mu.Lock()
	t.priority = p
	t.mu.Unlock()
}

// LastCore returns the core this task last ran on (and, // always will run on — no migration after creation).
func (t *Task) LastCore() int { return t.lastCore }

// SetSignalHandler installs the task's signal handler, or clears it if fn
// is nil.
func (t *Task) SetSignalHandler(fn func(signum int)) {
	t.mu.Lock()
	t.sigHandler = fn
	t.mu.Unlock()
}

// SignalHandler returns the installed handler, or nil if none.
func (t *Task) SignalHandler() func(signum int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sigHandler
}

// MarkFPUUsed sets the "FPU used since last switch" flag; cleared by the
// scheduler when it saves the state away.
func (t *Task) MarkFPUUsed() {
	t.mu.Lock()
	t.fpuUsed = true
	t.mu.Unlock()
}

func (t *Task) takeFPUUsed() bool {
	t.mu.Lock()
	used := t.fpuUsed
	t.fpuUsed = false
	t.mu.Unlock()
	return used
}

// TakeFPUUsedForSwitch reports whether the task used its FPU since its
// last switch, clearing the flag either way. Called by the scheduler
// around a context switch.
func (t *Task) TakeFPUUsedForSwitch() bool { return t.takeFPUUsed() }

// QueuePendingSignal records a signal to be delivered the next time this
// task is dispatched, used when the target was not the core's currently
// running task at delivery time.
func (t *Task) QueuePendingSignal(signum int) {
	t.mu.Lock()
	s := signum
	t.pendingSignal = &s
	t.mu.Unlock()
}

// TakePendingSignal returns and clears a queued pending signal, if any.
func (t *Task) TakePendingSignal() (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pendingSignal == nil {
		return 0, false
	}
	s := *t.pendingSignal
	t.pendingSignal = nil
	return s, true
}

// Block transitions a RUNNING task to BLOCKED. Callers are responsible for also removing the
// task from its ready queue.
func (t *Task) Block() {
	t.mu.Lock()
	t.status = StatusBlocked
	t.mu.Unlock()
}

// Wake transitions a BLOCKED task back to READY. Callers are responsible
// for re-enqueueing the task onto its core's ready queue.
func (t *Task) Wake() {
	t.mu.Lock()
	if t.status == StatusBlocked {
		t.status = StatusReady
	}
	t.mu.Unlock()
}

// MarkIdle flags this task as the core's idle task. The idle task is
// never enqueued in a ready queue; the scheduler switches to it directly
// when no priority level has a ready task.
func (t *Task) MarkIdle() {
	t.mu.Lock()
	t.status = StatusIdle
	t.mu.Unlock()
}

// UserPageUsage returns the reference-counted user page usage counter
//.
func (t *Task) UserPageUsage() *cpu.Counter64 { return &t.userPageUsage }

// Package sched implements the per-core priority-preemptive scheduler:
// it drives task.ReadyQueue.Reschedule, handles FPU lazy
// save around an actual task switch, and decides the dyntick timer's next
// arming point.
package sched

import (
	"time"

	"github.com/hermit-os/kernel/internal/task"
	"github.com/hermit-os/kernel/internal/timer"
)

// FPUSaver saves a task's FPU state blob; invoked only for a task that set
// its "FPU used" flag since its last switch.
type FPUSaver interface {
	SaveFPU(t *task.Task)
}

// Core is one core's scheduling context: its ready queue and the task
// currently running on it.
type Core struct {
	ID      int
	RQ      *task.ReadyQueue
	Table   *task.Table
	Clock   *timer.Clock
	current task.ID
	fpu     FPUSaver
}

// NewCore creates a scheduling context for one core, starting with idle
// running.
func NewCore(id int, rq *task.ReadyQueue, table *task.Table, clock *timer.Clock, fpu FPUSaver, idle task.ID) *Core {
	return &Core{ID: id, RQ: rq, Table: table, Clock: clock, fpu: fpu, current: idle}
}

// Current returns the id of the task currently marked RUNNING on this
// core.
func (c *Core) Current() task.ID { return c.current }

// SwitchResult describes the outcome of a Reschedule call: whether a
// switch actually happened, and if so which task's saved-stack-pointer
// slot the arch-specific switcher should swap.
type SwitchResult struct {
	Switched bool
	From     task.ID
	To       task.ID
}

// Reschedule runs the five-step algorithm on this core's ready queue, then
// performs the FPU lazy-save handoff: the incumbent's
// FPU state is saved only if it marked itself as having used the FPU
// since its last switch, and the flag is cleared either way.
func (c *Core) Reschedule() SwitchResult {
	// Reap the corpse parked by the *previous* call's step 1, // INVALID is set the same tick a task finishes, but its resources are
	// only reclaimed on the following schedule.
	if old := c.RQ.TakeOldTask(); old != task.None {
		c.Table.Reclaim(old)
	}

	next, switched := c.RQ.Reschedule(c.current)
	if !switched {
		return SwitchResult{Switched: false, From: c.current, To: c.current}
	}

	from := c.current
	if fromTask := c.Table.Get(from); fromTask != nil && c.fpu != nil {
		if fromTask.TakeFPUUsedForSwitch() {
			c.fpu.SaveFPU(fromTask)
		}
	}

	c.current = next
	if nextTask := c.Table.Get(next); nextTask != nil {
		if signum, ok := nextTask.TakePendingSignal(); ok {
			if h := nextTask.SignalHandler(); h != nil {
				h(signum)
			}
		}
	}
	return SwitchResult{Switched: true, From: from, To: next}
}

// Dyntick decides whether the timer should be disarmed (core halts until
// the next IRQ) or armed to the nearest deadline, based on whether the
// running task is idle and how far out the nearest pending timer is.
// horizon is the configured dyntick horizon.
func (c *Core) Dyntick(idle task.ID, horizon time.Duration) {
	if c.current != idle {
		c.Clock.ArmNearest()
		return
	}
	nearest, ok := c.Clock.NearestDeadline()
	if ok && nearest <= horizon {
		c.Clock.ArmNearest()
		return
	}
	c.Clock.Disarm()
}

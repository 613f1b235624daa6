package task

import (
	"math/bits"

	"github.com/hermit-os/kernel/internal/constants"
	"github.com/hermit-os/kernel/internal/lock"
)

// ReadyQueue is one core's ready-task structure: one doubly-linked list per
// priority level, plus a bitmap of non-empty levels.
// Per-task prev/next are stored as ids on the Task itself rather than as
// intrusive pointers.
type ReadyQueue struct {
	mu lock.IRQSave

	table *Table

	heads, tails [constants.NumPriorities]ID
	bitmap       uint32 // bit p set iff priority p's list is non-empty

	running int
	idle    ID
	oldTask ID
}

// NewReadyQueue creates an empty ready queue backed by table for task
// lookups, with idle as the core's idle task.
func NewReadyQueue(table *Table, idle ID) *ReadyQueue {
	rq := &ReadyQueue{table: table, idle: idle, oldTask: None}
	for p := range rq.heads {
		rq.heads[p] = None
		rq.tails[p] = None
	}
	return rq
}

// Enqueue appends id to the tail of its priority level and sets that
// level's bitmap bit.
func (rq *ReadyQueue) Enqueue(id ID) {
	t := rq.table.Get(id)
	if t == nil {
		return
	}
	rq.mu.Lock()
	defer rq.mu.Unlock()
	rq.enqueueLocked(t)
}

func (rq *ReadyQueue) enqueueLocked(t *Task) {
	p := t.priority
	t.prev = rq.tails[p]
	t.next = None
	if rq.tails[p] != None {
		if tail := rq.table.Get(rq.tails[p]); tail != nil {
			tail.next = t.id
		}
	} else {
		rq.heads[p] = t.id
	}
	rq.tails[p] = t.id
	rq.bitmap |= 1 << uint(p)
}

// removeLocked unlinks t from its priority list; clears the bitmap bit if
// the level becomes empty. Caller must hold rq.mu.
func (rq *ReadyQueue) removeLocked(t *Task) {
	p := t.priority
	if t.prev != None {
		if prev := rq.table.Get(t.prev); prev != nil {
			prev.next = t.next
		}
	} else {
		rq.heads[p] = t.next
	}
	if t.next != None {
		if next := rq.table.Get(t.next); next != nil {
			next.prev = t.prev
		}
	} else {
		rq.tails[p] = t.prev
	}
	t.prev, t.next = None, None
	if rq.heads[p] == None {
		rq.bitmap &^= 1 << uint(p)
	}
}

// highestLocked returns the highest non-empty priority level, or -1 if the
// bitmap is all clear. Caller must hold rq.mu.
func (rq *ReadyQueue) highestLocked() int {
	if rq.bitmap == 0 {
		return -1
	}
	return bits.Len32(rq.bitmap) - 1
}

// popHighestLocked dequeues and returns the head of the highest non-empty
// priority level. Caller must hold rq.mu.
func (rq *ReadyQueue) popHighestLocked() *Task {
	p := rq.highestLocked()
	if p < 0 {
		return nil
	}
	head := rq.table.Get(rq.heads[p])
	if head == nil {
		return nil
	}
	rq.removeLocked(head)
	return head
}

// BitmapSnapshot returns the current non-empty-level bitmap, for tests
// asserting that the priority bit is set iff the list is non-empty.
func (rq *ReadyQueue) BitmapSnapshot() uint32 {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	return rq.bitmap
}

// LevelIDs returns, in head-to-tail order, the ids currently queued at
// priority p. Intended for tests only.
func (rq *ReadyQueue) LevelIDs(p int) []ID {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	var out []ID
	for id := rq.heads[p]; id != None; {
		out = append(out, id)
		t := rq.table.Get(id)
		if t == nil {
			break
		}
		id = t.next
	}
	return out
}

// TakeOldTask returns and clears the parked old (now-INVALID) task id, or
// None if none is parked. Called by the scheduler on the following pass
// to reclaim the corpse's stack.
func (rq *ReadyQueue) TakeOldTask() ID {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	id := rq.oldTask
	rq.oldTask = None
	return id
}

// Reschedule implements the core reschedule algorithm
// under this queue's single lock:
//
//  1. If the running task is FINISHED, mark it INVALID and park it.
//  2. If no priority level is ready, keep the incumbent if it is still
//     RUNNING or IDLE; otherwise switch to the idle task.
//  3. If the incumbent is RUNNING and strictly higher priority than the
//     highest ready level, keep it.
//  4. Otherwise, if the incumbent was RUNNING, requeue it at the tail of
//     its own level (round robin) and mark it READY.
//  5. Pop the head of the highest ready level and mark it RUNNING.
//
// Returns the chosen task's id and whether it differs from currentID.
func (rq *ReadyQueue) Reschedule(currentID ID) (ID, bool) {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	cur := rq.table.Get(currentID)
	if cur != nil && cur.Status() == StatusFinished {
		cur.setStatus(StatusInvalid)
		rq.oldTask = cur.id
		cur = nil
	}

	p := rq.highestLocked()
	if p < 0 {
		if cur != nil && (cur.Status() == StatusRunning || cur.Status() == StatusIdle) {
			return currentID, false
		}
		switched := rq.idle != currentID
		if idleTask := rq.table.Get(rq.idle); idleTask != nil {
			idleTask.MarkIdle()
		}
		if switched {
			rq.running++
		}
		return rq.idle, switched
	}

	if cur != nil && cur.Status() == StatusRunning && cur.priority > p {
		return currentID, false
	}

	if cur != nil && cur.Status() == StatusRunning {
		cur.setStatus(StatusReady)
		rq.enqueueLocked(cur)
	}

	next := rq.popHighestLocked()
	if next == nil {
		next = rq.table.Get(rq.idle)
		if next == nil {
			return currentID, false
		}
	}
	next.setStatus(StatusRunning)
	if next.id != currentID {
		rq.running++
	}
	return next.id, next.id != currentID
}

// SwitchCount reports how many times Reschedule has actually switched the
// running task on this core (diagnostic counter).
func (rq *ReadyQueue) SwitchCount() int {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	return rq.running
}

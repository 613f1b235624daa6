// Package sem implements the counting semaphore: a
// counter, a FIFO ring of pending waiter task ids, and an irq-save lock.
// It is a pure data structure — Wait/TimedWait do not themselves invoke
// the scheduler; a blocked caller is expected to hand control back via
// sched.Core.Reschedule once Wait reports it did not acquire, separating
// state transitions from the actual goroutine/control-flow handoff (see
// internal/task and internal/sched).
package sem

import (
	"time"

	"github.com/eapache/queue"

	"github.com/hermit-os/kernel/internal/lock"
	"github.com/hermit-os/kernel/internal/task"
)

// waiter is one pending entry in the semaphore's wait ring: a task id, the
// task itself (so Post can wake it), and an optional deadline (zero means
// "no timeout").
type waiter struct {
	id       task.ID
	t        *task.Task
	deadline time.Time
}

// Semaphore is a counting semaphore with a FIFO wait queue. The zero value is not usable; construct with New.
type Semaphore struct {
	mu      lock.IRQSave
	counter int
	pending *queue.Queue
}

// New creates a semaphore with the given initial counter value.
func New(initial int) *Semaphore {
	return &Semaphore{counter: initial, pending: queue.New()}
}

// TryWait is the non-blocking variant: it decrements and returns true if
// the counter is positive, or returns false without blocking otherwise.
func (s *Semaphore) TryWait() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counter > 0 {
		s.counter--
		return true
	}
	return false
}

// Wait attempts to acquire the semaphore. If the counter is already
// positive it decrements and returns true. Otherwise it enqueues t onto
// the semaphore's wait ring, transitions t to BLOCKED via task.Block, and
// returns false — the caller must then give up the CPU
// (sched.Core.Reschedule) and, once woken, call Wait again ("on wake loop
// back").
func (s *Semaphore) Wait(t *task.Task) bool {
	if s.TryWait() {
		return true
	}
	s.mu.Lock()
	s.pending.Add(waiter{id: t.ID(), t: t})
	s.mu.Unlock()
	t.Block()
	return false
}

// TimedWait behaves like Wait, but records a deadline; a zero timeout
// means infinite. now is passed
// in explicitly since this package never calls time.Now (kept
// deterministic and testable, consistent with internal/timer taking an
// explicit clock source).
func (s *Semaphore) TimedWait(t *task.Task, timeout time.Duration, now time.Time) bool {
	if s.TryWait() {
		return true
	}
	var deadline time.Time
	if timeout > 0 {
		deadline = now.Add(timeout)
	}
	s.mu.Lock()
	s.pending.Add(waiter{id: t.ID(), t: t, deadline: deadline})
	s.mu.Unlock()
	t.Block()
	return false
}

// Post increments the counter, then wakes the oldest pending waiter, if
// any (task.Task.Wake: BLOCKED -> READY), returning its id and true — the
// caller is responsible for re-enqueuing the woken task onto its own
// core's ready queue (the semaphore has no ready-queue access of its own,
// since waiters can belong to any core). Returns (task.None, false) if
// nothing was waiting.
func (s *Semaphore) Post() (task.ID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter++
	if s.pending.Length() == 0 {
		return task.None, false
	}
	w := s.pending.Remove().(waiter)
	w.t.Wake()
	return w.id, true
}

// ExpireDeadlines removes every waiter whose deadline has elapsed as of
// now, returning their ids in FIFO order. The caller is responsible for waking
// and re-enqueuing each returned task and reporting ETIME to it.
func (s *Semaphore) ExpireDeadlines(now time.Time) []task.ID {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.pending.Length()
	kept := queue.New()
	var expired []task.ID
	for i := 0; i < n; i++ {
		w := s.pending.Remove().(waiter)
		if !w.deadline.IsZero() && !now.Before(w.deadline) {
			expired = append(expired, w.id)
			continue
		}
		kept.Add(w)
	}
	s.pending = kept
	return expired
}

// PendingLen reports how many waiters are currently queued.
func (s *Semaphore) PendingLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Length()
}

// Count returns the current counter value.
func (s *Semaphore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counter
}

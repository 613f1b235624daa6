// Package signal implements per-core bounded signal queues and IPI-driven
// delivery. Each core owns one ring of pending
// {target_task_id, signum} messages; kill() on another core's target
// pushes into that core's ring and fires a dedicated IPI vector which
// drains it.
package signal

import (
	"errors"

	"github.com/eapache/queue"

	"github.com/hermit-os/kernel/internal/constants"
	"github.com/hermit-os/kernel/internal/lock"
)

// ErrRingFull is returned by Push when a core's ring is already at
// capacity.
var ErrRingFull = errors.New("signal: ring full")

// Message is one pending signal delivery.
type Message struct {
	TargetTaskID int64
	Signum       int
}

// Ring is one core's bounded signal message queue. It is backed by
// eapache/queue's ring-buffer Queue, with an explicit capacity check on
// Push standing in for a true fixed-size ring — the
// underlying structure can grow, but Push refuses once Length reaches
// capacity.
type Ring struct {
	mu       lock.IRQSave
	q        *queue.Queue
	capacity int
}

// NewRing creates an empty ring with the default capacity.
func NewRing() *Ring {
	return &Ring{q: queue.New(), capacity: constants.SignalRingCapacity}
}

// Push enqueues msg, or returns ErrRingFull if the ring is already at
// capacity.
func (r *Ring) Push(msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.q.Length() >= r.capacity {
		return ErrRingFull
	}
	r.q.Add(msg)
	return nil
}

// Drain removes and returns every message currently queued, in push
// order.
func (r *Ring) Drain() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.q.Length()
	out := make([]Message, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, r.q.Remove().(Message))
	}
	return out
}

// Len reports how many messages are currently queued.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.q.Length()
}

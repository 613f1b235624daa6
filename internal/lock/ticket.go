// Package lock implements the kernel's ticket spinlocks: a plain FIFO
// spinlock, an interrupt-masking variant for locks taken from IRQ context,
// and a recursive variant for call paths that may re-enter a lock they
// already hold. All three share the same queue/dequeue ticket discipline
// throughout.
package lock

import (
	"runtime"

	"github.com/hermit-os/kernel/internal/cpu"
)

// Ticket is a plain FIFO spinlock. Acquiring it from interrupt context while
// already held on the same core deadlocks — use IRQSave there instead.
type Ticket struct {
	queue   cpu.Counter64
	dequeue cpu.Counter64
}

// Lock blocks until this goroutine holds the lock, spinning with a
// runtime.Gosched hint (the userspace analogue of a PAUSE instruction) while
// waiting its turn.
func (t *Ticket) Lock() {
	my := t.queue.Add(1)
	for t.dequeue.Read() != my {
		runtime.Gosched()
	}
}

// Unlock releases the lock. Calling Unlock without holding the lock is
// undefined, matching the documented failure mode.
func (t *Ticket) Unlock() {
	t.dequeue.Inc()
}

// Ticket returns the (dequeue, queue) pair for testing fairness invariants
//.
func (t *Ticket) Ticket() (dequeue, queue int64) {
	return t.dequeue.Read(), t.queue.Read()
}

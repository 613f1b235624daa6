package lock

import "github.com/hermit-os/kernel/internal/percpu"

// InterruptMask abstracts "mask/restore interrupts on this core" so package
// lock does not need to import internal/irq (which itself needs locks,
// creating an import cycle). hermit.Boot installs internal/irq.Controller's
// real hooks; until then mask/restore are no-ops, which is correct for
// single-goroutine tests that never race with an IRQ handler.
var (
	maskInterrupts    func() bool = func() bool { return true }
	restoreInterrupts func(bool)  = func(bool) {}
)

// SetInterruptHooks wires the real disable/restore implementation. Called
// once by hermit.Boot with internal/irq.Controller's methods.
func SetInterruptHooks(mask func() bool, restore func(bool)) {
	maskInterrupts = mask
	restoreInterrupts = restore
}

// IRQSave is a ticket spinlock that masks interrupts on the calling core
// while held, so it is safe to acquire from a handler that would otherwise
// deadlock against itself via Ticket. The recorded holder is the core id,
// not a task id, because an irq-save critical section may run with no
// current task at all.
type IRQSave struct {
	inner  Ticket
	holder cpu32 // core id of the current holder, -1 when unlocked
	saved  bool  // interrupt-enable flag saved by the outermost acquire
}

type cpu32 = int32

// Lock masks interrupts, saving the previous mask, then acquires the
// underlying ticket lock.
func (l *IRQSave) Lock() {
	prevEnabled := maskInterrupts()
	l.inner.Lock()
	l.saved = prevEnabled
	if id, ok := percpu.TryCurrent(); ok {
		l.holder = int32(id)
	} else {
		l.holder = -1
	}
}

// Unlock releases the ticket lock then restores the saved interrupt mask.
func (l *IRQSave) Unlock() {
	saved := l.saved
	l.holder = -1
	l.inner.Unlock()
	restoreInterrupts(saved)
}

// HolderCore reports which core currently holds the lock, or -1 if free.
// Used by diagnostics and tests, not by the hot path.
func (l *IRQSave) HolderCore() int32 { return l.holder }

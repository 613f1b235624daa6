// Package irq implements the IDT/IRQ dispatch table and inter-processor
// interrupt sending: dynamic handler registration for
// vectors ≥32, a common dispatch path, and per-core interrupt
// enable/disable state wired into internal/lock's IRQSave hooks.
package irq

import (
	"errors"
	"sync"

	"github.com/hermit-os/kernel/internal/percpu"
)

// ExceptionVectorCount is how many of the low vectors are reserved for
// CPU-defined exceptions.
const ExceptionVectorCount = 32

// ErrReservedVector is returned by InstallHandler for a vector below
// ExceptionVectorCount.
var ErrReservedVector = errors.New("irq: vector is reserved for a CPU exception")

// Handler processes one IRQ/exception/IPI dispatch on a given core.
type Handler func(core int, vector int, errorCode uint64)

type handlerKey struct {
	core   int
	vector int
}

// Controller is the dispatch table plus per-core interrupt mask state.
// Handlers for vectors ≥ ExceptionVectorCount are registered per core
//; CPU exception
// vectors (<ExceptionVectorCount) share one fault handler across all
// cores, since the exception table layout itself is identical everywhere.
type Controller struct {
	mu       sync.Mutex
	handlers map[handlerKey]Handler
	onFault  Handler

	enabled *percpu.Var[bool]
}

// NewController creates a dispatcher for numCores cores, all starting
// with interrupts enabled.
func NewController(numCores int) *Controller {
	enabled := percpu.NewVar[bool](numCores)
	for i := 0; i < numCores; i++ {
		*enabled.Get(i) = true
	}
	return &Controller{handlers: map[handlerKey]Handler{}, enabled: enabled}
}

// InstallHandler registers fn for vector on the given core. Vectors below ExceptionVectorCount are reserved
// for CPU exceptions and cannot be registered here.
func (c *Controller) InstallHandler(core int, vector int, fn Handler) error {
	if vector < ExceptionVectorCount {
		return ErrReservedVector
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[handlerKey{core, vector}] = fn
	return nil
}

// SetFaultHandler installs the fallback invoked for an unregistered
// exception vector (< ExceptionVectorCount) — "synchronous
// faults on kernel code terminate the current task with a diagnostic".
func (c *Controller) SetFaultHandler(fn Handler) {
	c.mu.Lock()
	c.onFault = fn
	c.mu.Unlock()
}

// Dispatch runs the handler registered for (core, vector), or the fault
// handler if vector is an unregistered exception. An unregistered vector
// ≥ ExceptionVectorCount is silently ignored (no driver claimed it).
func (c *Controller) Dispatch(core int, vector int, errorCode uint64) {
	c.mu.Lock()
	h, ok := c.handlers[handlerKey{core, vector}]
	fault := c.onFault
	c.mu.Unlock()

	if ok {
		h(core, vector, errorCode)
		return
	}
	if vector < ExceptionVectorCount && fault != nil {
		fault(core, vector, errorCode)
	}
}

// SendIPI writes destCore/vector to the (simulated) local APIC ICR and
// dispatches immediately on the destination — the real hardware send is
// fire-and-forget; this
// single-process simulation has nowhere else to queue it, so "not
// waiting" means the caller's own control flow never blocks on the
// target having drained it, not that Dispatch runs on another goroutine.
func (c *Controller) SendIPI(destCore int, vector int) {
	c.Dispatch(destCore, vector, 0)
}

// MaskInterrupts implements lock.maskInterrupts: disables interrupts on
// the calling core, returning the previous enabled state. A caller with
// no bound core (not yet inside Bind) is treated as always-enabled.
func (c *Controller) MaskInterrupts() bool {
	core, ok := percpu.TryCurrent()
	if !ok {
		return true
	}
	p := c.enabled.Get(int(core))
	prev := *p
	*p = false
	return prev
}

// RestoreInterrupts implements lock.restoreInterrupts: restores the
// per-core enabled flag saved by a matching MaskInterrupts call.
func (c *Controller) RestoreInterrupts(prev bool) {
	core, ok := percpu.TryCurrent()
	if !ok {
		return
	}
	*c.enabled.Get(int(core)) = prev
}

// Enabled reports whether interrupts are currently enabled on the given
// core.
func (c *Controller) Enabled(core int) bool {
	return *c.enabled.Get(core)
}

// SignalVector is the dedicated IPI vector used by signal delivery
//; kept here since it must be installed through this
// same Controller.
const SignalVector = ExceptionVectorCount + 1

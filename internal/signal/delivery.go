package signal

import (
	"github.com/hermit-os/kernel/internal/irq"
	"github.com/hermit-os/kernel/internal/task"
)

// Delivery wires per-core Rings to an irq.Controller and a task.Table to
// implement kill().
type Delivery struct {
	rings    []*Ring
	irqCtl   *irq.Controller
	table    *task.Table
	onDropped func(core int, msg Message) // diagnostic hook, may be nil
}

// NewDelivery creates a Delivery with one Ring per core and installs the
// drain handler for irq.SignalVector on every core.
func NewDelivery(numCores int, table *task.Table, irqCtl *irq.Controller) *Delivery {
	d := &Delivery{
		rings:  make([]*Ring, numCores),
		irqCtl: irqCtl,
		table:  table,
	}
	for i := range d.rings {
		d.rings[i] = NewRing()
	}
	for core := 0; core < numCores; core++ {
		core := core
		_ = irqCtl.InstallHandler(core, irq.SignalVector, func(c, v int, errorCode uint64) {
			d.drain(c)
		})
	}
	return d
}

// SetDropHandler installs a diagnostic callback invoked whenever a signal
// is dropped because its target migrated off the expected core.
func (d *Delivery) SetDropHandler(fn func(core int, msg Message)) {
	d.onDropped = fn
}

// Kill implements the kill(target, signum) entry point. callerTaskID is
// the id of the task making the call, used to detect the self-signal
// fast path.
func (d *Delivery) Kill(callerTaskID task.ID, target task.ID, signum int) error {
	t := d.table.Get(target)
	if t == nil {
		return task.ErrInvalidID
	}

	if callerTaskID == target {
		if h := t.SignalHandler(); h != nil {
			h(signum)
		}
		return nil
	}

	core := t.LastCore()
	msg := Message{TargetTaskID: int64(target), Signum: signum}
	if err := d.rings[core].Push(msg); err != nil {
		return err
	}
	d.irqCtl.SendIPI(core, irq.SignalVector)
	return nil
}

// drain processes every message queued on core's ring.
func (d *Delivery) drain(core int) {
	for _, msg := range d.rings[core].Drain() {
		t := d.table.Get(task.ID(msg.TargetTaskID))
		if t == nil {
			continue
		}
		if t.LastCore() != core {
			if d.onDropped != nil {
				d.onDropped(core, msg)
			}
			continue
		}
		if t.Status() == task.StatusRunning {
			if h := t.SignalHandler(); h != nil {
				h(msg.Signum)
			}
			continue
		}
		t.QueuePendingSignal(msg.Signum)
	}
}

// RingLen exposes a core's pending message count, for tests.
func (d *Delivery) RingLen(core int) int {
	return d.rings[core].Len()
}

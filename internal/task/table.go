package task

import (
	"github.com/hermit-os/kernel/internal/lock"
)

// CreateParams describes a new task at creation time.
type CreateParams struct {
	Priority           int
	LastCore           int
	KernelStackBase    uintptr
	KernelStackSize    int
	InterruptStackBase uintptr
	PageTable          PageTable
	HeapVMAStart       uintptr
	Entry              func()
}

// Table is the fixed-size task array, addressed by dense id. Allocation is
// a linear scan under a table-wide irq-save lock.
type Table struct {
	mu    lock.IRQSave
	tasks []*Task
}

// NewTable creates a table with capacity for exactly n tasks, all slots
// initially empty (nil).
func NewTable(n int) *Table {
	return &Table{tasks: make([]*Task, n)}
}

// Create reserves the first free slot, initializes the PCB, and returns
// its id. Returns ErrTableFull if every slot is occupied by a live task.
func (tb *Table) Create(p CreateParams) (ID, error) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	for i, slot := range tb.tasks {
		if slot != nil && slot.status != StatusInvalid {
			continue
		}
		t := &Task{
			id:                 ID(i),
			status:             StatusReady,
			priority:           p.Priority,
			lastCore:           p.LastCore,
			kernelStackBase:    p.KernelStackBase,
			kernelStackSize:    p.KernelStackSize,
			interruptStackBase: p.InterruptStackBase,
			pageTable:          p.PageTable,
			heapVMAStart:       p.HeapVMAStart,
			entry:              p.Entry,
			prev:               None,
			next:               None,
		}
		tb.tasks[i] = t
		return t.id, nil
	}
	return None, ErrTableFull
}

// Get returns the task for id, or nil if the slot is empty or id is
// out of range.
func (tb *Table) Get(id ID) *Task {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if id < 0 || int(id) >= len(tb.tasks) {
		return nil
	}
	return tb.tasks[id]
}

// Finish transitions a task to FINISHED; the next schedule on its core
// will downgrade it to INVALID and park it for reclamation.
func (tb *Table) Finish(id ID) error {
	t := tb.Get(id)
	if t == nil {
		return ErrInvalidID
	}
	t.setStatus(StatusFinished)
	return nil
}

// Reclaim drops the page table of a task that the ready queue has already
// parked as its old_task (i.e. already transitioned to INVALID by
// ReadyQueue.Reschedule), freeing the slot for reuse by a later Create.
// This happens "on the following schedule" — the
// scheduler calls this once per parked corpse, one schedule after it was
// marked INVALID.
func (tb *Table) Reclaim(id ID) {
	t := tb.Get(id)
	if t == nil {
		return
	}
	t.mu.Lock()
	pt := t.pageTable
	t.pageTable = nil
	t.mu.Unlock()
	if pt != nil {
		pt.Drop()
	}
}

// Len reports the table's fixed capacity.
func (tb *Table) Len() int { return len(tb.tasks) }

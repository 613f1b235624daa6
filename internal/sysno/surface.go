package sysno

import (
	"sync"
	"time"

	"github.com/hermit-os/kernel/internal/memory/heap"
	"github.com/hermit-os/kernel/internal/sched"
	"github.com/hermit-os/kernel/internal/signal"
	"github.com/hermit-os/kernel/internal/task"

	"github.com/hermit-os/kernel/internal/sem"
)

func timeDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// HostIO is the narrow view of internal/transport's uhyve/proxy forwarding
// that file-backed syscalls need. A Surface with no Host set answers
// open/close/read/write/dup/stat with ErrNoSys, same as any other
// unregistered entry — "not yet wired" and "wired to nothing" look
// identical to a caller, which is the point.
type HostIO interface {
	Open(path string, flags, mode int32) (fd int32, err error)
	Close(fd int32) error
	Read(fd int32, buf []byte) (n int, err error)
	Write(fd int32, buf []byte) (n int, err error)
	Dup(fd int32) (newFD int32, err error)
	Stat(path string, buf []byte) (n int, err error)
}

// semTable hands out opaque ids for live semaphores the way a kernel's fd
// table hands out small integers: sem_init returns one, every other sem_*
// entry takes one back.
type semTable struct {
	mu   sync.Mutex
	next int64
	sems map[int64]*sem.Semaphore
}

func newSemTable() *semTable {
	return &semTable{sems: map[int64]*sem.Semaphore{}}
}

func (s *semTable) create(initial int) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	id := s.next
	s.sems[id] = sem.New(initial)
	return id
}

func (s *semTable) get(id int64) *sem.Semaphore {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sems[id]
}

func (s *semTable) destroy(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sems, id)
}

// Surface binds the kernel-core subset of the syscall table (everything
// that does not need a host round-trip) to live subsystem state: the task
// table, each core's scheduler, signal delivery, and the buddy heap.
// Bind also registers the host-forwarded entries (read, write, open, close,
// dup, stat) when Host is set; hermit.Kernel.AttachHost sets Host and calls
// Bind again.
type Surface struct {
	Tasks   *task.Table
	Cores   []*sched.Core // indexed by core id
	Signals *signal.Delivery
	Heap    *heap.Heap
	Host    HostIO

	sems *semTable
}

// NewSurface creates a Surface over already-constructed subsystems. cores
// must be indexed by core id, matching task.Task.LastCore().
func NewSurface(tasks *task.Table, cores []*sched.Core, signals *signal.Delivery, h *heap.Heap) *Surface {
	return &Surface{Tasks: tasks, Cores: cores, Signals: signals, Heap: h, sems: newSemTable()}
}

func (s *Surface) coreFor(t *task.Task) *sched.Core {
	core := t.LastCore()
	if core < 0 || core >= len(s.Cores) {
		return nil
	}
	return s.Cores[core]
}

// Bind registers every handler this Surface implements into tbl. fork,
// wait, and execve are deliberately left unregistered: this kernel's
// single-address-space model has no child process to fork into or exec
// over, so those three fall through to the ordinary ErrNoSys path rather
// than getting a handler that can only ever fail.
func (s *Surface) Bind(tbl *Table) {
	tbl.Register(SysExit, s.sysExit)
	tbl.Register(SysSbrk, s.sysSbrk)
	tbl.Register(SysMsleep, s.sysMsleep)
	tbl.Register(SysYield, s.sysYield)
	tbl.Register(SysSemInit, s.sysSemInit)
	tbl.Register(SysSemDestroy, s.sysSemDestroy)
	tbl.Register(SysSemWait, s.sysSemWait)
	tbl.Register(SysSemPost, s.sysSemPost)
	tbl.Register(SysSemTimedWait, s.sysSemTimedWait)
	tbl.Register(SysSemCancelableWait, s.sysSemWait) // see doc comment on sysSemWait
	tbl.Register(SysGetPrio, s.sysGetPrio)
	tbl.Register(SysSetPrio, s.sysSetPrio)
	tbl.Register(SysClone, s.sysClone)
	tbl.Register(SysGetTicks, s.sysGetTicks)
	tbl.Register(SysKill, s.sysKill)
	tbl.Register(SysSignal, s.sysSignal)
	tbl.Register(SysTimes, s.sysTimes)

	if s.Host != nil {
		tbl.Register(SysOpen, s.sysOpen)
		tbl.Register(SysClose, s.sysClose)
		tbl.Register(SysRead, s.sysRead)
		tbl.Register(SysWrite, s.sysWrite)
		tbl.Register(SysDup, s.sysDup)
		tbl.Register(SysStat, s.sysStat)
	}
}

func (s *Surface) sysExit(c Call) (int64, error) {
	return 0, s.Tasks.Finish(c.Caller)
}

func (s *Surface) sysSbrk(c Call) (int64, error) {
	size := int(c.Int[0])
	if size <= 0 {
		return -1, nil
	}
	p, err := s.Heap.KMalloc(size)
	if err != nil {
		return -1, err
	}
	_ = p // the handle itself has no stable external representation worth
	// returning across this boundary; callers that need the bytes go
	// through internal/transport's RAM view, same as any other
	// host-resolved buffer.
	return 0, nil
}

// sysMsleep blocks the caller and arms its core's clock for ms milliseconds
// out. The actual wake (Clock.Expired -> Task.Wake -> RQ.Enqueue) happens
// on the core's run loop, not inside this call — Surface only records the
// deadline and the blocked state, matching sem.Semaphore's own split
// between "record intent" and "hand control back to the scheduler".
func (s *Surface) sysMsleep(c Call) (int64, error) {
	t := s.Tasks.Get(c.Caller)
	if t == nil {
		return -1, task.ErrInvalidID
	}
	core := s.coreFor(t)
	if core == nil {
		return -1, task.ErrInvalidID
	}
	ticks := core.Clock.Ticks() + c.Int[0]*1000 // 1 tick == 1us
	core.Clock.SetTimer(ticks)
	t.Block()
	return 0, nil
}

// sysYield requeues the caller at the tail of its priority level by asking
// its core to reschedule; ReadyQueue.Reschedule already implements "keep
// running only if still the strictly-highest ready level" as part of its
// ordinary five-step algorithm, so yield needs no special
// case beyond triggering it.
func (s *Surface) sysYield(c Call) (int64, error) {
	t := s.Tasks.Get(c.Caller)
	if t == nil {
		return -1, task.ErrInvalidID
	}
	core := s.coreFor(t)
	if core == nil {
		return -1, task.ErrInvalidID
	}
	core.Reschedule()
	return 0, nil
}

func (s *Surface) sysSemInit(c Call) (int64, error) {
	return s.sems.create(int(c.Int[0])), nil
}

func (s *Surface) sysSemDestroy(c Call) (int64, error) {
	s.sems.destroy(c.Int[0])
	return 0, nil
}

// sysSemWait also backs sem_cancelablewait: the two numbers share one
// handler, and nothing cancels such a wait (internal/signal only records a
// pending signal on a blocked target; it does not wake it).
func (s *Surface) sysSemWait(c Call) (int64, error) {
	sm := s.sems.get(c.Int[0])
	if sm == nil {
		return -1, task.ErrInvalidID
	}
	t := s.Tasks.Get(c.Caller)
	if t == nil {
		return -1, task.ErrInvalidID
	}
	if sm.Wait(t) {
		return 0, nil
	}
	return -1, ErrWouldBlock
}

func (s *Surface) sysSemPost(c Call) (int64, error) {
	sm := s.sems.get(c.Int[0])
	if sm == nil {
		return -1, task.ErrInvalidID
	}
	woken, ok := sm.Post()
	if !ok {
		return 0, nil
	}
	wt := s.Tasks.Get(woken)
	if wt == nil {
		return 0, nil
	}
	wt.Wake()
	if core := s.coreFor(wt); core != nil {
		core.RQ.Enqueue(woken)
	}
	return 0, nil
}

func (s *Surface) sysSemTimedWait(c Call) (int64, error) {
	sm := s.sems.get(c.Int[0])
	if sm == nil {
		return -1, task.ErrInvalidID
	}
	t := s.Tasks.Get(c.Caller)
	if t == nil {
		return -1, task.ErrInvalidID
	}
	timeout := timeDuration(c.Int[1])
	if sm.TimedWait(t, timeout, c.Now) {
		return 0, nil
	}
	return -1, ErrWouldBlock
}

func (s *Surface) sysGetPrio(c Call) (int64, error) {
	target := task.ID(c.Int[0])
	if target == task.None {
		target = c.Caller
	}
	t := s.Tasks.Get(target)
	if t == nil {
		return -1, task.ErrInvalidID
	}
	return int64(t.Priority()), nil
}

func (s *Surface) sysSetPrio(c Call) (int64, error) {
	target := task.ID(c.Int[0])
	if target == task.None {
		target = c.Caller
	}
	t := s.Tasks.Get(target)
	if t == nil {
		return -1, task.ErrInvalidID
	}
	t.SetPriority(int(c.Int[1]))
	return 0, nil
}

// sysClone creates a new task entry (HermitCore's clone is a kernel-thread
// spawn, not a Unix fork: one address space, a new entry point and stack)
// and enqueues it on the requested core.
func (s *Surface) sysClone(c Call) (int64, error) {
	core := int(c.Int[0])
	priority := int(c.Int[1])
	id, err := s.Tasks.Create(task.CreateParams{
		Priority: priority,
		LastCore: core,
		Entry:    c.Entry,
	})
	if err != nil {
		return -1, err
	}
	if core >= 0 && core < len(s.Cores) {
		s.Cores[core].RQ.Enqueue(id)
	}
	return int64(id), nil
}

func (s *Surface) sysGetTicks(c Call) (int64, error) {
	t := s.Tasks.Get(c.Caller)
	if t == nil {
		return -1, task.ErrInvalidID
	}
	core := s.coreFor(t)
	if core == nil {
		return -1, task.ErrInvalidID
	}
	return core.Clock.Ticks(), nil
}

func (s *Surface) sysKill(c Call) (int64, error) {
	if err := s.Signals.Kill(c.Caller, task.ID(c.Int[0]), int(c.Int[1])); err != nil {
		return -1, err
	}
	return 0, nil
}

func (s *Surface) sysSignal(c Call) (int64, error) {
	t := s.Tasks.Get(c.Caller)
	if t == nil {
		return -1, task.ErrInvalidID
	}
	t.SetSignalHandler(c.Handler)
	return 0, nil
}

func (s *Surface) sysTimes(c Call) (int64, error) {
	t := s.Tasks.Get(c.Caller)
	if t == nil {
		return -1, task.ErrInvalidID
	}
	core := s.coreFor(t)
	if core == nil {
		return -1, task.ErrInvalidID
	}
	return core.Clock.Ticks(), nil
}

func (s *Surface) sysOpen(c Call) (int64, error) {
	fd, err := s.Host.Open(c.Path, int32(c.Int[0]), int32(c.Int[1]))
	return int64(fd), err
}

func (s *Surface) sysClose(c Call) (int64, error) {
	return 0, s.Host.Close(int32(c.Int[0]))
}

func (s *Surface) sysRead(c Call) (int64, error) {
	n, err := s.Host.Read(int32(c.Int[0]), c.Buf)
	return int64(n), err
}

func (s *Surface) sysWrite(c Call) (int64, error) {
	n, err := s.Host.Write(int32(c.Int[0]), c.Buf)
	return int64(n), err
}

func (s *Surface) sysDup(c Call) (int64, error) {
	fd, err := s.Host.Dup(int32(c.Int[0]))
	return int64(fd), err
}

func (s *Surface) sysStat(c Call) (int64, error) {
	n, err := s.Host.Stat(c.Path, c.Buf)
	return int64(n), err
}

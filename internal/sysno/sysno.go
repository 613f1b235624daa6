// Package sysno implements the kernel's syscall surface:
// a fixed numbered table mapping a syscall number to a handler, with an
// unregistered entry reporting -ENOSYS. Dispatch is table-driven rather
// than a giant switch so that internal/transport and the root hermit
// package can each register the handlers they own (host-forwarded I/O vs.
// pure kernel-core calls) without this package importing either.
package sysno

import (
	"errors"
	"sync"
	"time"

	"github.com/hermit-os/kernel/internal/task"
)

// Number is a syscall number. The set below is the table
// names explicitly.
type Number int32

const (
	SysExit Number = iota
	SysRead
	SysWrite
	SysOpen
	SysClose
	SysSbrk
	SysFork
	SysWait
	SysExecve
	SysTimes
	SysStat
	SysDup
	SysMsleep
	SysYield
	SysSemInit
	SysSemDestroy
	SysSemWait
	SysSemPost
	SysSemTimedWait
	SysGetPrio
	SysSetPrio
	SysClone
	SysSemCancelableWait
	SysGetTicks
	SysKill
	SysSignal
	numSyscalls
)

// ErrNoSys is returned for a syscall number with no registered handler
//.
var ErrNoSys = errors.New("sysno: syscall not implemented")

// ErrWouldBlock is returned by a blocking entry point (sem_wait,
// sem_timedwait, sem_cancelablewait) when the caller did not acquire and
// must give up the CPU and retry on wake, per internal/sem's documented
// contract.
var ErrWouldBlock = errors.New("sysno: call would block")

// Call carries one syscall's arguments. Int holds the x86-64
// register-convention integer arguments; Buf and Path carry payload data
// a real kernel would resolve from a raw user pointer. Resolving pointers
// out of a flat simulated address space buys nothing a direct []byte/
// string field doesn't already give the handler, so Call skips that
// indirection — the syscall *number* dispatch is what required,
// not a literal register ABI.
type Call struct {
	Caller  task.ID
	Int     [4]int64
	Buf     []byte
	Path    string
	Entry   func()
	Handler func(signum int)
	Now     time.Time
}

// Handler services one syscall number.
type Handler func(c Call) (int64, error)

// Table is the dispatch table: syscall number to handler.
type Table struct {
	mu       sync.RWMutex
	handlers [numSyscalls]Handler
}

// NewTable creates an empty table; every entry reports ErrNoSys until
// Register is called for it.
func NewTable() *Table {
	return &Table{}
}

// Register installs fn for n, replacing any existing entry.
func (t *Table) Register(n Number, fn Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[n] = fn
}

// Dispatch invokes the handler registered for n, or returns (-1,
// ErrNoSys) if none is registered.
func (t *Table) Dispatch(n Number, c Call) (int64, error) {
	if n < 0 || n >= numSyscalls {
		return -1, ErrNoSys
	}
	t.mu.RLock()
	fn := t.handlers[n]
	t.mu.RUnlock()
	if fn == nil {
		return -1, ErrNoSys
	}
	return fn(c)
}

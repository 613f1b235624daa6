package sysno

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hermit-os/kernel/internal/constants"
	"github.com/hermit-os/kernel/internal/irq"
	"github.com/hermit-os/kernel/internal/memory/heap"
	"github.com/hermit-os/kernel/internal/sched"
	"github.com/hermit-os/kernel/internal/signal"
	"github.com/hermit-os/kernel/internal/task"
	"github.com/hermit-os/kernel/internal/timer"
)

type noopFPU struct{}

func (noopFPU) SaveFPU(*task.Task) {}

type stubPageSource struct{}

func (stubPageSource) AllocPages(n int) []byte { return make([]byte, n*constants.PageSize) }

func newTestSurface(t *testing.T) (*Surface, *task.Table, task.ID) {
	tasks := task.NewTable(8)
	idleID, err := tasks.Create(task.CreateParams{Priority: constants.IdlePriority, LastCore: 0})
	require.NoError(t, err)
	tasks.Get(idleID).MarkIdle()

	rq := task.NewReadyQueue(tasks, idleID)
	clock := timer.NewClock(1000)
	core := sched.NewCore(0, rq, tasks, clock, noopFPU{}, idleID)

	irqCtl := irq.NewController(1)
	signals := signal.NewDelivery(1, tasks, irqCtl)
	h := heap.New(stubPageSource{})

	callerID, err := tasks.Create(task.CreateParams{Priority: 10, LastCore: 0})
	require.NoError(t, err)
	rq.Enqueue(callerID)

	s := NewSurface(tasks, []*sched.Core{core}, signals, h)
	return s, tasks, callerID
}

func TestSemInitWaitPost(t *testing.T) {
	s, tasks, caller := newTestSurface(t)
	tbl := NewTable()
	s.Bind(tbl)

	id, err := tbl.Dispatch(SysSemInit, Call{Caller: caller, Int: [4]int64{0}})
	require.NoError(t, err)

	// counter starts at 0: wait must report it would block.
	_, err = tbl.Dispatch(SysSemWait, Call{Caller: caller, Int: [4]int64{id}})
	assert.ErrorIs(t, err, ErrWouldBlock)
	assert.Equal(t, task.StatusBlocked, tasks.Get(caller).Status())

	_, err = tbl.Dispatch(SysSemPost, Call{Caller: caller, Int: [4]int64{id}})
	require.NoError(t, err)
	assert.Equal(t, task.StatusReady, tasks.Get(caller).Status())
}

func TestSemTimedWaitExpires(t *testing.T) {
	s, _, caller := newTestSurface(t)
	tbl := NewTable()
	s.Bind(tbl)

	id, err := tbl.Dispatch(SysSemInit, Call{Caller: caller, Int: [4]int64{0}})
	require.NoError(t, err)

	now := time.Unix(0, 0)
	_, err = tbl.Dispatch(SysSemTimedWait, Call{Caller: caller, Int: [4]int64{id, 10}, Now: now})
	assert.ErrorIs(t, err, ErrWouldBlock)
}

func TestGetSetPrio(t *testing.T) {
	s, tasks, caller := newTestSurface(t)
	tbl := NewTable()
	s.Bind(tbl)

	v, err := tbl.Dispatch(SysGetPrio, Call{Caller: caller, Int: [4]int64{int64(task.None)}})
	require.NoError(t, err)
	assert.Equal(t, int64(10), v)

	_, err = tbl.Dispatch(SysSetPrio, Call{Caller: caller, Int: [4]int64{int64(task.None), 5}})
	require.NoError(t, err)
	assert.Equal(t, 5, tasks.Get(caller).Priority())
}

func TestExitFinishesTask(t *testing.T) {
	s, tasks, caller := newTestSurface(t)
	tbl := NewTable()
	s.Bind(tbl)

	_, err := tbl.Dispatch(SysExit, Call{Caller: caller})
	require.NoError(t, err)
	assert.Equal(t, task.StatusFinished, tasks.Get(caller).Status())
}

func TestCloneCreatesAndEnqueues(t *testing.T) {
	s, tasks, caller := newTestSurface(t)
	tbl := NewTable()
	s.Bind(tbl)

	ran := false
	id, err := tbl.Dispatch(SysClone, Call{
		Caller: caller,
		Int:    [4]int64{0, 3},
		Entry:  func() { ran = true },
	})
	require.NoError(t, err)
	newID := task.ID(id)
	assert.Equal(t, 3, tasks.Get(newID).Priority())
	assert.Contains(t, s.Cores[0].RQ.LevelIDs(3), newID)
	_ = ran
}

func TestUnregisteredSyscallIsNoSys(t *testing.T) {
	tbl := NewTable()
	_, err := tbl.Dispatch(SysFork, Call{})
	assert.ErrorIs(t, err, ErrNoSys)
	_, err = tbl.Dispatch(SysExecve, Call{})
	assert.ErrorIs(t, err, ErrNoSys)
	_, err = tbl.Dispatch(SysWait, Call{})
	assert.ErrorIs(t, err, ErrNoSys)
}

func TestHostIOUnboundIsNoSys(t *testing.T) {
	s, _, caller := newTestSurface(t)
	tbl := NewTable()
	s.Bind(tbl) // s.Host is nil, so read/write/open/etc. are never registered
	_, err := tbl.Dispatch(SysRead, Call{Caller: caller})
	assert.ErrorIs(t, err, ErrNoSys)
}

func TestMsleepBlocksAndArmsTimer(t *testing.T) {
	s, tasks, caller := newTestSurface(t)
	tbl := NewTable()
	s.Bind(tbl)

	_, err := tbl.Dispatch(SysMsleep, Call{Caller: caller, Int: [4]int64{5}})
	require.NoError(t, err)
	assert.Equal(t, task.StatusBlocked, tasks.Get(caller).Status())
	assert.True(t, s.Cores[0].Clock.Armed())
}

type fakeHost struct {
	written []byte
}

func (f *fakeHost) Open(path string, flags, mode int32) (int32, error) { return 3, nil }
func (f *fakeHost) Close(fd int32) error                               { return nil }
func (f *fakeHost) Read(fd int32, buf []byte) (int, error)             { return copy(buf, "hi"), nil }
func (f *fakeHost) Write(fd int32, buf []byte) (int, error) {
	f.written = append(f.written, buf...)
	return len(buf), nil
}
func (f *fakeHost) Dup(fd int32) (int32, error)              { return fd + 1, nil }
func (f *fakeHost) Stat(path string, buf []byte) (int, error) { return 0, nil }

func TestHostIOForwarding(t *testing.T) {
	s, _, caller := newTestSurface(t)
	host := &fakeHost{}
	s.Host = host
	tbl := NewTable()
	s.Bind(tbl)

	fd, err := tbl.Dispatch(SysOpen, Call{Caller: caller, Path: "/tmp/x"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), fd)

	n, err := tbl.Dispatch(SysWrite, Call{Caller: caller, Int: [4]int64{int64(fd)}, Buf: []byte("payload")})
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, "payload", string(host.written))
}

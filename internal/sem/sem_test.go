package sem

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hermit-os/kernel/internal/task"
)

func TestTryWaitNonBlocking(t *testing.T) {
	s := New(1)
	assert.True(t, s.TryWait())
	assert.False(t, s.TryWait(), "counter already exhausted")
}

func TestWaitAcquiresWithoutBlockingWhenCounterPositive(t *testing.T) {
	s := New(1)
	tb := task.NewTable(1)
	id, err := tb.Create(task.CreateParams{})
	require.NoError(t, err)

	acquired := s.Wait(tb.Get(id))
	assert.True(t, acquired)
	assert.Equal(t, 0, s.PendingLen())
}

func TestWaitBlocksAndEnqueuesWhenCounterZero(t *testing.T) {
	s := New(0)
	tb := task.NewTable(1)
	id, err := tb.Create(task.CreateParams{})
	require.NoError(t, err)

	acquired := s.Wait(tb.Get(id))
	assert.False(t, acquired)
	assert.Equal(t, task.StatusBlocked, tb.Get(id).Status())
	assert.Equal(t, 1, s.PendingLen())
}

// TestPostWakesOldestWaiterFIFO reproduces the FIFO release
// ordering: multiple tasks block on an exhausted semaphore, and each Post
// wakes them in the order they originally queued.
func TestPostWakesOldestWaiterFIFO(t *testing.T) {
	s := New(0)
	tb := task.NewTable(4)

	var ids []task.ID
	for i := 0; i < 3; i++ {
		id, err := tb.Create(task.CreateParams{Priority: 1})
		require.NoError(t, err)
		require.False(t, s.Wait(tb.Get(id)))
		ids = append(ids, id)
	}
	require.Equal(t, 3, s.PendingLen())

	for _, want := range ids {
		woken, ok := s.Post()
		require.True(t, ok)
		assert.Equal(t, want, woken)
		assert.Equal(t, task.StatusReady, tb.Get(woken).Status(), "Wake transitions BLOCKED->READY")
	}

	// Counter ends at 3 (one increment per Post); no more waiters so the
	// next Post is a pure increment.
	assert.Equal(t, 3, s.Count())
	woken, ok := s.Post()
	assert.False(t, ok)
	assert.Equal(t, task.None, woken)
}

func TestTimedWaitExpiresAfterDeadline(t *testing.T) {
	s := New(0)
	tb := task.NewTable(1)
	id, err := tb.Create(task.CreateParams{})
	require.NoError(t, err)

	base := time.Unix(1_700_000_000, 0)
	acquired := s.TimedWait(tb.Get(id), 10*time.Millisecond, base)
	require.False(t, acquired)

	notYet := s.ExpireDeadlines(base.Add(5 * time.Millisecond))
	assert.Empty(t, notYet)
	assert.Equal(t, 1, s.PendingLen())

	expired := s.ExpireDeadlines(base.Add(11 * time.Millisecond))
	require.Len(t, expired, 1)
	assert.Equal(t, id, expired[0])
	assert.Equal(t, 0, s.PendingLen())
}

func TestTimedWaitZeroTimeoutNeverExpires(t *testing.T) {
	s := New(0)
	tb := task.NewTable(1)
	id, err := tb.Create(task.CreateParams{})
	require.NoError(t, err)

	base := time.Unix(1_700_000_000, 0)
	require.False(t, s.TimedWait(tb.Get(id), 0, base))

	expired := s.ExpireDeadlines(base.Add(365 * 24 * time.Hour))
	assert.Empty(t, expired, "zero timeout means infinite wait")
}

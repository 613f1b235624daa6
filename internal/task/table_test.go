package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateReservesDenseID(t *testing.T) {
	tb := NewTable(4)
	id1, err := tb.Create(CreateParams{Priority: 3})
	require.NoError(t, err)
	id2, err := tb.Create(CreateParams{Priority: 3})
	require.NoError(t, err)
	assert.Equal(t, ID(0), id1)
	assert.Equal(t, ID(1), id2)
}

func TestCreateFailsWhenTableFull(t *testing.T) {
	tb := NewTable(2)
	_, err := tb.Create(CreateParams{})
	require.NoError(t, err)
	_, err = tb.Create(CreateParams{})
	require.NoError(t, err)
	_, err = tb.Create(CreateParams{})
	assert.ErrorIs(t, err, ErrTableFull)
}

// TestFinishThenReclaimFreesSlotForReuse exercises the two-step lifecycle:
// Finish marks FINISHED, the scheduler (simulated here
// by directly setting INVALID, since that transition is
// ReadyQueue.Reschedule's job) marks it INVALID, and Reclaim — run on the
// following schedule — drops its resources and frees the slot.
func TestFinishThenReclaimFreesSlotForReuse(t *testing.T) {
	tb := NewTable(1)
	id, err := tb.Create(CreateParams{})
	require.NoError(t, err)

	require.NoError(t, tb.Finish(id))
	assert.Equal(t, StatusFinished, tb.Get(id).Status())

	tb.Get(id).setStatus(StatusInvalid)
	tb.Reclaim(id)

	id2, err := tb.Create(CreateParams{})
	require.NoError(t, err)
	assert.Equal(t, id, id2, "invalid slot must be reusable")
}

func TestReclaimDropsPageTable(t *testing.T) {
	dropped := false
	tb := NewTable(1)
	id, err := tb.Create(CreateParams{PageTable: dropFunc(func() { dropped = true })})
	require.NoError(t, err)
	require.NoError(t, tb.Finish(id))
	tb.Get(id).setStatus(StatusInvalid)
	tb.Reclaim(id)
	assert.True(t, dropped)
}

type dropFunc func()

func (f dropFunc) Drop() { f() }

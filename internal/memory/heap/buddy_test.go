package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hermit-os/kernel/internal/constants"
)

type stubSource struct {
	calls int
}

func (s *stubSource) AllocPages(n int) []byte {
	s.calls++
	return make([]byte, n*constants.PageSize)
}

// TestBuddySplitThenReuse checks that the first
// kmalloc(24) has to recurse up to the ALLOC threshold class, fetch fresh
// pages, and split all the way back down, leaving one spare block per class
// from MIN..threshold-1; the second kmalloc(24) is then served directly
// from class MIN's freelist with no new page source call.
func TestBuddySplitThenReuse(t *testing.T) {
	src := &stubSource{}
	h := New(src)

	p1, err := h.KMalloc(24)
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)

	for class := constants.HeapMinExponent; class < constants.HeapAllocThreshold; class++ {
		assert.Equalf(t, 1, h.FreelistLen(class), "class %d should have exactly one spare block", class)
	}

	p2, err := h.KMalloc(24)
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls, "second allocation must come from the freelist, not a new page source call")
	assert.Equal(t, 0, h.FreelistLen(constants.HeapMinExponent))

	assert.NotEqual(t, p1, p2)
}

func TestKMallocKFreeRoundTrip(t *testing.T) {
	h := New(&stubSource{})
	p, err := h.KMalloc(100)
	require.NoError(t, err)
	class := classFor(100 + constants.BuddyHeaderSize)
	before := h.FreelistLen(class)
	h.KFree(p)
	assert.Equal(t, before+1, h.FreelistLen(class))
}

func TestKFreeIgnoresCorruptHeader(t *testing.T) {
	h := New(&stubSource{})
	p, err := h.KMalloc(100)
	require.NoError(t, err)
	class := classFor(100 + constants.BuddyHeaderSize)

	// Corrupt the header magic in place.
	blockStart := Ptr{chunk: p.chunk, off: p.off - constants.BuddyHeaderSize}
	h.chunks[blockStart.chunk][blockStart.off] = 0xFF

	before := h.FreelistLen(class)
	h.KFree(p)
	assert.Equal(t, before, h.FreelistLen(class), "corrupted header must not be reused")
}

func TestKMallocTooLargeFails(t *testing.T) {
	h := New(&stubSource{})
	_, err := h.KMalloc(1 << 30)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestKMallocOutOfMemory(t *testing.T) {
	h := New(emptySource{})
	_, err := h.KMalloc(24)
	assert.ErrorIs(t, err, ErrOutOfMemory)
}

type emptySource struct{}

func (emptySource) AllocPages(int) []byte { return nil }

package pmm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestBitmapWrap checks, with 8 total pages,
// the available-count trace 8,5,2,2,5,2 across a sequence of allocs and frees.
func TestBitmapWrap(t *testing.T) {
	b := New(8, 0)
	trace := []int64{}
	_, avail, _ := b.Stats()
	trace = append(trace, avail)

	first := b.GetPages(3)
	assert.Equal(t, 0, first)
	_, avail, _ = b.Stats()
	trace = append(trace, avail)

	second := b.GetPages(3)
	assert.Equal(t, 3, second)
	_, avail, _ = b.Stats()
	trace = append(trace, avail)

	third := b.GetPages(3)
	assert.Equal(t, -1, third) // not enough contiguous
	_, avail, _ = b.Stats()
	trace = append(trace, avail)

	freed := b.PutPages(0, 3)
	assert.Equal(t, 3, freed)
	_, avail, _ = b.Stats()
	trace = append(trace, avail)

	fourth := b.GetPages(3)
	assert.Equal(t, 0, fourth)
	_, avail, _ = b.Stats()
	trace = append(trace, avail)

	assert.Equal(t, []int64{8, 5, 2, 2, 5, 2}, trace)
}

func TestBitmapConservation(t *testing.T) {
	b := New(64, 0)
	b.GetPages(10)
	b.GetPages(5)
	allocated, available, total := b.Stats()
	assert.Equal(t, total, allocated+available)
	b.PutPages(0, 10)
	allocated, available, total = b.Stats()
	assert.Equal(t, total, allocated+available)
}

func TestPutPagesTolerantOfPartialRange(t *testing.T) {
	b := New(8, 0)
	b.GetPages(3) // frames 0-2 set
	flipped := b.PutPages(0, 5)
	assert.Equal(t, 3, flipped) // only 0-2 were actually set
}

func TestGetPagesFailsWhenExhausted(t *testing.T) {
	b := New(4, 0)
	assert.Equal(t, 0, b.GetPages(4))
	assert.Equal(t, -1, b.GetPages(1))
}

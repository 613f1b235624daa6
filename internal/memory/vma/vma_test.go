package vma

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddRejectsOverlap(t *testing.T) {
	a := New(0, 0x10000)
	require.NoError(t, a.Add(0x1000, 0x2000, Read))
	err := a.Add(0x1800, 0x2800, Read)
	assert.ErrorIs(t, err, ErrOverlap)
}

func TestAddMergesAdjacentIdenticalFlags(t *testing.T) {
	a := New(0, 0x10000)
	require.NoError(t, a.Add(0x1000, 0x2000, Read|Write))
	require.NoError(t, a.Add(0x2000, 0x3000, Read|Write))
	regions := a.Regions()
	require.Len(t, regions, 1)
	assert.Equal(t, uintptr(0x1000), regions[0].Start)
	assert.Equal(t, uintptr(0x3000), regions[0].End)
}

func TestAddDoesNotMergeDifferentFlags(t *testing.T) {
	a := New(0, 0x10000)
	require.NoError(t, a.Add(0x1000, 0x2000, Read))
	require.NoError(t, a.Add(0x2000, 0x3000, Read|Write))
	assert.Len(t, a.Regions(), 2)
}

func TestNonOverlapInvariant(t *testing.T) {
	a := New(0, 0x100000)
	require.NoError(t, a.Add(0x1000, 0x2000, Read))
	require.NoError(t, a.Add(0x5000, 0x6000, Read|Write))
	require.NoError(t, a.Add(0x3000, 0x4000, Execute))
	regions := a.Regions()
	for i := 1; i < len(regions); i++ {
		assert.LessOrEqual(t, regions[i-1].End, regions[i].Start)
	}
}

func TestAllocFindsLowestGap(t *testing.T) {
	a := New(0x1000, 0x10000)
	require.NoError(t, a.Add(0x1000, 0x2000, Read))
	require.NoError(t, a.Add(0x3000, 0x4000, Read))
	start, err := a.Alloc(0x500, Read)
	require.NoError(t, err)
	assert.Equal(t, uintptr(0x2000), start) // first gap big enough
}

func TestAllocFailsWhenNoGapFits(t *testing.T) {
	a := New(0, 0x1000)
	require.NoError(t, a.Add(0, 0x1000, Read))
	_, err := a.Alloc(1, Read)
	assert.ErrorIs(t, err, ErrNoSpace)
}

func TestAddThenFreeRoundTrips(t *testing.T) {
	a := New(0, 0x10000)
	require.NoError(t, a.Add(0x1000, 0x2000, Read))
	require.NoError(t, a.Free(0x1000, 0x2000))
	assert.Empty(t, a.Regions())
}

func TestFreeInteriorHoleLeavesTwoSiblings(t *testing.T) {
	a := New(0, 0x10000)
	require.NoError(t, a.Add(0x1000, 0x4000, Read))
	require.NoError(t, a.Free(0x2000, 0x3000))
	regions := a.Regions()
	require.Len(t, regions, 2)
	assert.Equal(t, Region{Start: 0x1000, End: 0x2000, Flags: Read}, regions[0])
	assert.Equal(t, Region{Start: 0x3000, End: 0x4000, Flags: Read}, regions[1])
}

func TestFreeUnknownRangeErrors(t *testing.T) {
	a := New(0, 0x10000)
	err := a.Free(0x1000, 0x2000)
	assert.ErrorIs(t, err, ErrNotFound)
}

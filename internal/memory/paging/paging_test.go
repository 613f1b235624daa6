package paging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hermit-os/kernel/internal/constants"
)

type stubFrames struct {
	next int
	put  []int
}

func (s *stubFrames) GetFrame() int {
	f := s.next
	s.next++
	return f
}

func (s *stubFrames) PutFrame(frame int) {
	s.put = append(s.put, frame)
}

func TestMapVirtToPhysRoundTrip(t *testing.T) {
	tbl := New(&stubFrames{})
	require.NoError(t, tbl.Map(0x400000, 0x800000, 4, Present|RW))

	for i := 0; i < 4; i++ {
		virt := uintptr(0x400000 + i*constants.PageSize)
		phys, err := tbl.VirtToPhys(virt + 0x10)
		require.NoError(t, err)
		assert.Equal(t, uintptr(0x800000+i*constants.PageSize+0x10), phys)
	}
}

func TestVirtToPhysUnmappedErrors(t *testing.T) {
	tbl := New(&stubFrames{})
	_, err := tbl.VirtToPhys(0x1000)
	assert.ErrorIs(t, err, ErrNotMapped)
}

func TestUnmapRemovesLeaf(t *testing.T) {
	tbl := New(&stubFrames{})
	require.NoError(t, tbl.Map(0x1000, 0x2000, 1, Present|RW))
	require.NoError(t, tbl.Unmap(0x1000, 1))
	_, err := tbl.VirtToPhys(0x1000)
	assert.ErrorIs(t, err, ErrNotMapped)
}

func TestRemapInvalidatesOldLeaf(t *testing.T) {
	tbl := New(&stubFrames{})
	require.NoError(t, tbl.Map(0x1000, 0x2000, 1, Present|RW))
	assert.Equal(t, 0, tbl.Invalidations())
	require.NoError(t, tbl.Map(0x1000, 0x3000, 1, Present|RW))
	assert.Equal(t, 1, tbl.Invalidations())
	phys, err := tbl.VirtToPhys(0x1000)
	require.NoError(t, err)
	assert.Equal(t, uintptr(0x3000), phys)
}

func TestCopySharesKernelHalfNotUserHalf(t *testing.T) {
	tbl := New(&stubFrames{})
	userVirt := uintptr(0x1000)
	kernelVirt := uintptr(1) << 47 // top-level index >= kernelSplitIndex

	require.NoError(t, tbl.Map(userVirt, 0x9000, 1, Present|RW))
	require.NoError(t, tbl.Map(kernelVirt, 0xA000, 1, Present|RW|Global))

	child := tbl.Copy()

	_, err := child.VirtToPhys(userVirt)
	assert.ErrorIs(t, err, ErrNotMapped, "user half must not be inherited")

	phys, err := child.VirtToPhys(kernelVirt)
	require.NoError(t, err, "kernel half must be shared")
	assert.Equal(t, uintptr(0xA000), phys)
}

func TestDropReclaimsOwnIntermediateFrames(t *testing.T) {
	frames := &stubFrames{}
	tbl := New(frames)
	require.NoError(t, tbl.Map(0x1000, 0x9000, 1, Present|RW))
	require.NotEmpty(t, frames.next, "mapping a fresh region should have consumed at least one table frame")

	tbl.Drop()
	assert.NotEmpty(t, frames.put, "drop should release the intermediate table frames it owned")

	_, err := tbl.VirtToPhys(0x1000)
	assert.ErrorIs(t, err, ErrNotMapped)
}

func TestDropDoesNotReclaimSharedKernelFrames(t *testing.T) {
	frames := &stubFrames{}
	tbl := New(frames)
	kernelVirt := uintptr(1) << 47
	require.NoError(t, tbl.Map(kernelVirt, 0xA000, 1, Present|RW|Global))

	child := tbl.Copy()
	child.Drop()

	// The parent's mapping must still resolve: Drop on the child must not
	// have freed frames it only aliased from the shared kernel half.
	phys, err := tbl.VirtToPhys(kernelVirt)
	require.NoError(t, err)
	assert.Equal(t, uintptr(0xA000), phys)
}

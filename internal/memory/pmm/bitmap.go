// Package pmm implements the physical frame allocator: a bitmap over every
// page frame in RAM, first-fit from a rotating cursor.
package pmm

import (
	"github.com/hermit-os/kernel/internal/cpu"
	"github.com/hermit-os/kernel/internal/lock"
)

// Bitmap is the physical frame allocator. One bit per page frame; a set bit
// means the frame is in use.
type Bitmap struct {
	mu         lock.IRQSave
	bits       []uint64 // 64 frames per word
	total      int      // total page frames covered
	allocStart int      // rotating first-fit cursor, in frames

	allocated cpu.Counter64 // observability counters
	available cpu.Counter64
}

// New creates a bitmap covering total page frames, all initially free, with
// the rotating cursor starting at startFrame (just above the kernel image).
func New(total, startFrame int) *Bitmap {
	words := (total + 63) / 64
	b := &Bitmap{
		bits:       make([]uint64, words),
		total:      total,
		allocStart: startFrame,
	}
	b.available.Set(int64(total))
	return b
}

func (b *Bitmap) testBit(i int) bool { return b.bits[i/64]&(1<<uint(i%64)) != 0 }
func (b *Bitmap) setBit(i int)       { b.bits[i/64] |= 1 << uint(i%64) }
func (b *Bitmap) clearBit(i int)     { b.bits[i/64] &^= 1 << uint(i%64) }

// GetPages reserves n contiguous page frames starting from the rotating
// cursor using first-fit. Returns the starting frame number, or -1 if no run of n free frames exists anywhere in the bitmap.
func (b *Bitmap) GetPages(n int) int {
	if n <= 0 {
		return -1
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	start := b.findFreeRun(b.allocStart, n)
	if start < 0 {
		start = b.findFreeRun(0, n)
	}
	if start < 0 {
		return -1
	}
	for i := start; i < start+n; i++ {
		b.setBit(i)
	}
	b.allocStart = start + n
	b.allocated.Add(int64(n))
	b.available.Add(-int64(n))
	return start
}

// findFreeRun scans forward from `from` for n consecutive clear bits,
// returning -1 if none exist in [from, total). It does not wrap; GetPages
// retries from frame 0 itself.
func (b *Bitmap) findFreeRun(from, n int) int {
	run := 0
	runStart := -1
	for i := from; i < b.total; i++ {
		if !b.testBit(i) {
			if run == 0 {
				runStart = i
			}
			run++
			if run == n {
				return runStart
			}
		} else {
			run = 0
		}
	}
	return -1
}

// PutPages releases n frames starting at addr. It tolerates a range that is
// only partially marked (e.g. double-free of a sub-range) and returns the
// number of bits it actually flipped from set to clear.
func (b *Bitmap) PutPages(addr, n int) int {
	if n <= 0 || addr < 0 {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	flipped := 0
	end := addr + n
	if end > b.total {
		end = b.total
	}
	for i := addr; i < end; i++ {
		if b.testBit(i) {
			b.clearBit(i)
			flipped++
		}
	}
	if flipped > 0 {
		b.allocated.Add(-int64(flipped))
		b.available.Add(int64(flipped))
	}
	return flipped
}

// Stats reports the conservation invariant operands.
func (b *Bitmap) Stats() (allocated, available, total int64) {
	return b.allocated.Read(), b.available.Read(), int64(b.total)
}

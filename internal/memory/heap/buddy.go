// Package heap implements the kernel's buddy allocator: power-of-two
// freelists from 2^MIN to 2^MAX backed by fresh physical+virtual memory on
// demand. Rather than raw-pointer intrusive freelists threaded through
// allocated memory itself, freelists here are plain Go slices of block
// handles, avoiding cyclic pointer data Go's garbage collector would
// otherwise have to reason about.
package heap

import (
	"encoding/binary"
	"errors"

	"github.com/hermit-os/kernel/internal/constants"
	"github.com/hermit-os/kernel/internal/lock"
)

// ErrTooLarge is returned when a request exceeds the largest buddy class.
var ErrTooLarge = errors.New("heap: allocation exceeds largest class")

// ErrOutOfMemory is returned when no class can be satisfied and no further
// pages are available from the page source.
var ErrOutOfMemory = errors.New("heap: out of memory")

// PageSource supplies fresh backing memory when the buddy allocator needs a
// class at or above HeapAllocThreshold and has nothing to split. It is
// implemented by the glue that wires pmm+vma+paging together at boot; tests
// use a simple in-memory stub.
type PageSource interface {
	// AllocPages returns a freshly zeroed byte slice at least n pages long,
	// or nil if none are available.
	AllocPages(n int) []byte
}

// Ptr is an opaque handle to a live allocation. It carries no raw pointer
// arithmetic capability on purpose — callers get at the underlying bytes
// via Heap.Bytes.
type Ptr struct {
	chunk int
	off   int32
}

var zeroPtr = Ptr{chunk: -1}

// Heap is the buddy allocator. Per the shared-resource table, buddy
// freelists are guarded by a single plain spinlock (no IRQ masking) shared
// by all cores.
type Heap struct {
	mu      lock.Ticket
	chunks  [][]byte
	free    [constants.HeapMaxExponent + 1][]Ptr
	source  PageSource
}

// New creates an empty buddy heap drawing fresh memory from source.
func New(source PageSource) *Heap {
	return &Heap{source: source}
}

func classFor(totalNeeded int) int {
	class := constants.HeapMinExponent
	for (1 << uint(class)) < totalNeeded {
		class++
	}
	return class
}

// KMalloc allocates at least size bytes, rounding up to the smallest class
// that fits the request plus the 8-byte header.
func (h *Heap) KMalloc(size int) (Ptr, error) {
	if size <= 0 {
		return zeroPtr, errors.New("heap: invalid size")
	}
	class := classFor(size + constants.BuddyHeaderSize)
	if class > constants.HeapMaxExponent {
		return zeroPtr, ErrTooLarge
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	block, ok := h.obtainLocked(class)
	if !ok {
		return zeroPtr, ErrOutOfMemory
	}
	h.writeHeader(block, class)
	return Ptr{chunk: block.chunk, off: block.off + constants.BuddyHeaderSize}, nil
}

// obtainLocked returns a free block of exactly the requested class,
// splitting a larger one or requesting fresh pages as needed. Caller must
// hold h.mu.
func (h *Heap) obtainLocked(class int) (Ptr, bool) {
	if n := len(h.free[class]); n > 0 {
		blk := h.free[class][n-1]
		h.free[class] = h.free[class][:n-1]
		return blk, true
	}

	if class >= constants.HeapAllocThreshold {
		if blk, ok := h.allocFreshLocked(class); ok {
			return blk, true
		}
		// Fall through: maybe a larger already-freed block exists above us.
	}

	if class+1 > constants.HeapMaxExponent {
		return zeroPtr, false
	}
	parent, ok := h.obtainLocked(class + 1)
	if !ok {
		return zeroPtr, false
	}

	half := int32(1) << uint(class)
	left := parent
	right := Ptr{chunk: parent.chunk, off: parent.off + half}
	h.writeHeader(right, class)
	h.free[class] = append(h.free[class], right)
	return left, true
}

// allocFreshLocked requests pageSource memory sized exactly 2^class bytes
// and registers it as a brand-new chunk.
func (h *Heap) allocFreshLocked(class int) (Ptr, bool) {
	size := 1 << uint(class)
	pages := (size + constants.PageSize - 1) / constants.PageSize
	if pages < 1 {
		pages = 1
	}
	buf := h.source.AllocPages(pages)
	if buf == nil || len(buf) < size {
		return zeroPtr, false
	}
	h.chunks = append(h.chunks, buf)
	return Ptr{chunk: len(h.chunks) - 1, off: 0}, true
}

func (h *Heap) writeHeader(p Ptr, class int) {
	buf := h.chunks[p.chunk][p.off:]
	binary.LittleEndian.PutUint32(buf[0:4], constants.BuddyMagic)
	buf[4] = byte(class)
}

// KFree returns the block to its class's freelist. A header whose magic
// does not match BuddyMagic is treated as corruption and silently dropped,
// per the corruption guard.
func (h *Heap) KFree(p Ptr) {
	h.mu.Lock()
	defer h.mu.Unlock()

	blockStart := Ptr{chunk: p.chunk, off: p.off - constants.BuddyHeaderSize}
	if blockStart.chunk < 0 || blockStart.chunk >= len(h.chunks) || blockStart.off < 0 {
		return
	}
	hdr := h.chunks[blockStart.chunk][blockStart.off:]
	if len(hdr) < constants.BuddyHeaderSize {
		return
	}
	magic := binary.LittleEndian.Uint32(hdr[0:4])
	if magic != constants.BuddyMagic {
		return // corruption guard: mismatched header, drop silently
	}
	class := int(hdr[4])
	if class < constants.HeapMinExponent || class > constants.HeapMaxExponent {
		return
	}
	h.free[class] = append(h.free[class], blockStart)
}

// Bytes returns the payload view for a live handle. It panics on an invalid
// handle, mirroring a kernel dereferencing a bad pointer rather than
// returning a soft error — callers are expected to only ever hold handles
// KMalloc returned.
func (h *Heap) Bytes(p Ptr, size int) []byte {
	return h.chunks[p.chunk][p.off : p.off+int32(size)]
}

// FreelistLen reports how many blocks currently sit on a class's freelist,
// for tests exercising the split/coalesce-via-freelist scenario.
func (h *Heap) FreelistLen(class int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.free[class])
}

// Package paging implements the page-table manager. Rather than the
// original's self-referencing recursive mapping, this rewrite performs
// explicit top-down walks over a tagged tree of typed entries, keeping the
// same external contract: map/unmap/copy/drop and the virt_to_phys round
// trip.
package paging

import (
	"errors"

	"github.com/hermit-os/kernel/internal/constants"
	"github.com/hermit-os/kernel/internal/lock"
)

// Bits are the per-entry permission/cache flags, matching the PTE bit
// list.
type Bits uint32

const (
	Present Bits = 1 << iota
	RW
	User
	Global
	NX
	PAT
	Dirty
	Accessed
)

// kind tags what a tree node represents.
type kind uint8

const (
	kindEmpty kind = iota
	kindTable
	kindPage
)

const (
	levels      = 4
	entryBits   = 9
	entryMask   = (1 << entryBits) - 1
	leafShift   = constants.PageShift
)

type node struct {
	kind kind
	phys uintptr          // frame backing a page, or the table frame for a Table node
	bits Bits
	sub  map[uint64]*node // children, present only for Table nodes
}

// FrameSource supplies physical frames for fresh intermediate tables. It is
// implemented by internal/memory/pmm.Bitmap via a thin adapter.
type FrameSource interface {
	// GetFrame reserves one physical frame and returns its frame number, or
	// -1 if none are available.
	GetFrame() int
	// PutFrame releases a frame previously returned by GetFrame.
	PutFrame(frame int)
}

// ErrNoFrame is returned when an intermediate table cannot be allocated.
var ErrNoFrame = errors.New("paging: no physical frame available")

// ErrNotMapped is returned by Unmap/VirtToPhys for an address with no leaf
// entry.
var ErrNotMapped = errors.New("paging: address not mapped")

// Table is one task's (or the kernel's) top-level page table root.
type Table struct {
	mu     lock.IRQSave // per-task page lock on edit
	root   *node
	frames FrameSource

	// invalidations counts single-page TLB invalidations emitted when an
	// already-present leaf is overwritten; tests assert on this instead of
	// a real TLB.
	invalidations int
}

// New creates an empty page table rooted at a fresh node.
func New(frames FrameSource) *Table {
	return &Table{root: &node{kind: kindTable, sub: map[uint64]*node{}}, frames: frames}
}

func vpnLevels(virt uintptr) [levels]uint64 {
	var idx [levels]uint64
	shift := leafShift + (levels-1)*entryBits
	for l := 0; l < levels; l++ {
		idx[l] = (uint64(virt) >> shift) & entryMask
		shift -= entryBits
	}
	return idx
}

// Map installs n consecutive pages starting at virt, mapped to phys,
// phys+PageSize, ... with the given bits. Intermediate tables are created
// on demand and zeroed; an already-present leaf gets a single-page TLB
// invalidation recorded before being overwritten.
func (t *Table) Map(virt, phys uintptr, n int, bits Bits) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := 0; i < n; i++ {
		v := virt + uintptr(i)*constants.PageSize
		p := phys + uintptr(i)*constants.PageSize
		if err := t.mapOne(v, p, bits); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) mapOne(virt, phys uintptr, bits Bits) error {
	idx := vpnLevels(virt)
	cur := t.root
	for l := 0; l < levels-1; l++ {
		child, ok := cur.sub[idx[l]]
		if !ok {
			frame := t.frames.GetFrame()
			if frame < 0 {
				return ErrNoFrame
			}
			child = &node{kind: kindTable, phys: uintptr(frame) * constants.PageSize, bits: Present | RW, sub: map[uint64]*node{}}
			cur.sub[idx[l]] = child
		}
		cur = child
	}
	if existing, ok := cur.sub[idx[levels-1]]; ok && existing.kind == kindPage {
		t.invalidations++
	}
	cur.sub[idx[levels-1]] = &node{kind: kindPage, phys: phys, bits: bits | Present}
	return nil
}

// Unmap clears n leaf entries starting at virt. Intermediate tables are
// left in place; they are only reclaimed by Drop.
func (t *Table) Unmap(virt uintptr, n int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := 0; i < n; i++ {
		v := virt + uintptr(i)*constants.PageSize
		idx := vpnLevels(v)
		cur := t.root
		ok := true
		for l := 0; l < levels-1; l++ {
			child, exists := cur.sub[idx[l]]
			if !exists {
				ok = false
				break
			}
			cur = child
		}
		if !ok {
			continue
		}
		delete(cur.sub, idx[levels-1])
	}
	return nil
}

// VirtToPhys resolves a mapped virtual address to its physical address.
func (t *Table) VirtToPhys(virt uintptr) (uintptr, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := vpnLevels(virt)
	cur := t.root
	for l := 0; l < levels-1; l++ {
		child, ok := cur.sub[idx[l]]
		if !ok {
			return 0, ErrNotMapped
		}
		cur = child
	}
	leaf, ok := cur.sub[idx[levels-1]]
	if !ok || leaf.kind != kindPage {
		return 0, ErrNotMapped
	}
	offset := virt & (constants.PageSize - 1)
	return leaf.phys + offset, nil
}

// Invalidations reports how many single-page TLB invalidations Map has
// emitted so far (test/diagnostic hook).
func (t *Table) Invalidations() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.invalidations
}

// kernelSplitIndex is the top-level index at and above which an address is
// considered part of the shared kernel half of the address space.
const kernelSplitIndex = 1 << (entryBits - 1)

// Copy allocates a fresh top-level table for a new task and shares the
// kernel half's intermediate tables with src — copy-on-write is not
// implemented; user pages are not duplicated here at all.
func (t *Table) Copy() *Table {
	t.mu.Lock()
	defer t.mu.Unlock()
	nt := New(t.frames)
	for idx, child := range t.root.sub {
		if idx >= kernelSplitIndex {
			nt.root.sub[idx] = child
		}
	}
	return nt
}

// Drop reclaims every intermediate table frame owned by this table. Called
// at task exit; frames belonging to the shared kernel half
// are never released here because Copy aliases the same *node rather than
// duplicating it, and only a table that allocated a given node actually
// owns that frame. To keep that true, Drop only frees frames for subtrees
// whose top-level index is below kernelSplitIndex (this table's own user
// half).
func (t *Table) Drop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for idx, child := range t.root.sub {
		if idx < kernelSplitIndex {
			t.dropSubtree(child)
		}
	}
	t.root.sub = map[uint64]*node{}
}

func (t *Table) dropSubtree(n *node) {
	if n.kind != kindTable {
		return
	}
	for _, child := range n.sub {
		t.dropSubtree(child)
	}
	if t.frames != nil {
		t.frames.PutFrame(int(n.phys / constants.PageSize))
	}
}

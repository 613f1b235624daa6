// Package vma implements the kernel virtual-memory arena: a sorted list of
// non-overlapping [start, end) regions tagged with permission and cache
// flags. The list is a plain slice kept sorted by Start and searched with
// sort.Search, rather than a pointer-linked list.
package vma

import (
	"sort"

	"github.com/hermit-os/kernel/internal/lock"
)

// Flags tags a region's permissions and cache behavior.
type Flags uint32

const (
	Read Flags = 1 << iota
	Write
	Execute
	Cacheable
	User
	Heap
	NoAccess
)

// Region is one [Start, End) interval in the arena.
type Region struct {
	Start, End uintptr
	Flags      Flags
}

func (r Region) size() uintptr { return r.End - r.Start }

// Arena is the sorted, non-overlapping list of regions for one address
// space (kernel or a single task's user half).
type Arena struct {
	mu       lock.IRQSave
	regions  []Region // kept sorted ascending by Start; invariant checked by tests
	loWindow uintptr  // lowest address vma_alloc may place a new region
	hiWindow uintptr  // one past the highest address vma_alloc may use
}

// New creates an arena whose vma_alloc window is [lo, hi).
func New(lo, hi uintptr) *Arena {
	return &Arena{loWindow: lo, hiWindow: hi}
}

// Add splices in [start, end) with the given flags, rejecting any overlap
// with an existing region. Adjacent regions with identical flags are
// merged eagerly.
func (a *Arena) Add(start, end uintptr, flags Flags) error {
	if end <= start {
		return ErrInvalidRange
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.insertLocked(Region{Start: start, End: end, Flags: flags})
}

func (a *Arena) insertLocked(r Region) error {
	idx := sort.Search(len(a.regions), func(i int) bool { return a.regions[i].Start >= r.Start })

	// Overlap check against predecessor and successor.
	if idx > 0 && a.regions[idx-1].End > r.Start {
		return ErrOverlap
	}
	if idx < len(a.regions) && r.End > a.regions[idx].Start {
		return ErrOverlap
	}

	a.regions = append(a.regions, Region{})
	copy(a.regions[idx+1:], a.regions[idx:])
	a.regions[idx] = r

	a.mergeAroundLocked(idx)
	return nil
}

// mergeAroundLocked merges the region at idx with its immediate predecessor
// and successor when they abut exactly and share identical flags.
func (a *Arena) mergeAroundLocked(idx int) {
	if idx+1 < len(a.regions) {
		next := a.regions[idx+1]
		if a.regions[idx].End == next.Start && a.regions[idx].Flags == next.Flags {
			a.regions[idx].End = next.End
			a.regions = append(a.regions[:idx+1], a.regions[idx+2:]...)
		}
	}
	if idx > 0 {
		prev := a.regions[idx-1]
		if prev.End == a.regions[idx].Start && prev.Flags == a.regions[idx].Flags {
			a.regions[idx-1].End = a.regions[idx].End
			a.regions = append(a.regions[:idx], a.regions[idx+1:]...)
		}
	}
}

// Alloc finds the lowest gap >= size within the arena's window and inserts
// a new region there, returning its start address.
func (a *Arena) Alloc(size uintptr, flags Flags) (uintptr, error) {
	if size == 0 {
		return 0, ErrInvalidRange
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	cursor := a.loWindow
	for _, r := range a.regions {
		if r.Start >= a.hiWindow {
			break
		}
		gapStart := cursor
		gapEnd := r.Start
		if gapEnd > gapStart && gapEnd-gapStart >= size {
			if err := a.insertLocked(Region{Start: gapStart, End: gapStart + size, Flags: flags}); err != nil {
				return 0, err
			}
			return gapStart, nil
		}
		if r.End > cursor {
			cursor = r.End
		}
	}
	if a.hiWindow-cursor >= size {
		if err := a.insertLocked(Region{Start: cursor, End: cursor + size, Flags: flags}); err != nil {
			return 0, err
		}
		return cursor, nil
	}
	return 0, ErrNoSpace
}

// Free removes [start, end) from the arena. A hole in the interior of an
// existing region is permitted and leaves two surviving siblings.
func (a *Arena) Free(start, end uintptr) error {
	if end <= start {
		return ErrInvalidRange
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	idx := sort.Search(len(a.regions), func(i int) bool { return a.regions[i].End > start })
	if idx >= len(a.regions) || a.regions[idx].Start > start || a.regions[idx].End < end {
		return ErrNotFound
	}

	r := a.regions[idx]
	var replacement []Region
	if r.Start < start {
		replacement = append(replacement, Region{Start: r.Start, End: start, Flags: r.Flags})
	}
	if end < r.End {
		replacement = append(replacement, Region{Start: end, End: r.End, Flags: r.Flags})
	}

	a.regions = append(a.regions[:idx], append(replacement, a.regions[idx+1:]...)...)
	return nil
}

// Regions returns a snapshot copy of the sorted region list, for tests and
// diagnostics.
func (a *Arena) Regions() []Region {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Region, len(a.regions))
	copy(out, a.regions)
	return out
}

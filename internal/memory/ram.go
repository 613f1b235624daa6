// Package memory is the glue layer that wires the physical frame allocator
// (pmm), the virtual address arena (vma), and the page table manager
// (paging) into the two narrow interfaces the buddy heap (heap) and the
// page table manager themselves need: a source of physical frames and a
// source of fresh mapped pages. These cooperate as one memory subsystem,
// and this file is where "physical memory" actually becomes bytes.
package memory

import (
	"github.com/hermit-os/kernel/internal/constants"
	"github.com/hermit-os/kernel/internal/memory/heap"
	"github.com/hermit-os/kernel/internal/memory/paging"
	"github.com/hermit-os/kernel/internal/memory/pmm"
	"github.com/hermit-os/kernel/internal/memory/vma"
)

// RAM is the simulated backing store for "physical memory": a single flat
// byte slice indexed by physical address. A real kernel never owns memory
// this way — it runs inside it — but a goroutine-based simulation needs an
// explicit stand-in for the bytes a physical address resolves to.
type RAM struct {
	bytes []byte
}

// NewRAM allocates size bytes of simulated physical memory.
func NewRAM(size int) *RAM {
	return &RAM{bytes: make([]byte, size)}
}

// Slice returns the live backing bytes for [phys, phys+n).
func (r *RAM) Slice(phys uintptr, n int) []byte {
	return r.bytes[phys : phys+uintptr(n)]
}

// Len reports the simulated RAM's total size in bytes.
func (r *RAM) Len() int { return len(r.bytes) }

// Manager composes the frame allocator, the virtual address arena, and a
// page table into the PageSource/FrameSource contracts heap.Heap and
// paging.Table need from each other.
type Manager struct {
	Frames *pmm.Bitmap
	Arena  *vma.Arena
	Table  *paging.Table
	ram    *RAM
}

// NewManager ties together an already-constructed frame allocator, virtual
// arena, and kernel page table.
func NewManager(ram *RAM, frames *pmm.Bitmap, arena *vma.Arena, table *paging.Table) *Manager {
	return &Manager{Frames: frames, Arena: arena, Table: table, ram: ram}
}

// GetFrame implements paging.FrameSource.
func (m *Manager) GetFrame() int {
	return m.Frames.GetPages(1)
}

// PutFrame implements paging.FrameSource.
func (m *Manager) PutFrame(frame int) {
	m.Frames.PutPages(frame, 1)
}

// AllocPages implements heap.PageSource: it reserves n physical frames,
// carves out a matching virtual window, maps the two together, and hands
// back the live backing bytes.
func (m *Manager) AllocPages(n int) []byte {
	frame := m.Frames.GetPages(n)
	if frame < 0 {
		return nil
	}
	phys := uintptr(frame) * constants.PageSize
	size := uintptr(n) * constants.PageSize

	virt, err := m.Arena.Alloc(size, vma.Read|vma.Write|vma.Heap)
	if err != nil {
		m.Frames.PutPages(frame, n)
		return nil
	}
	if err := m.Table.Map(virt, phys, n, paging.Present|paging.RW); err != nil {
		m.Arena.Free(virt, virt+size)
		m.Frames.PutPages(frame, n)
		return nil
	}
	return m.ram.Slice(phys, int(size))
}

var _ paging.FrameSource = (*Manager)(nil)
var _ heap.PageSource = (*Manager)(nil)

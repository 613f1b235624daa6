// Package cpu wraps the atomic counter and memory-barrier primitives the
// rest of the kernel core builds on: ticket locks, the physical bitmap
// allocator, per-core statistics, and the virtqueue driver all operate
// through these rather than touching sync/atomic directly.
package cpu

import "sync/atomic"

// Counter32 is a sequentially-consistent signed 32-bit counter.
type Counter32 struct {
	v atomic.Int32
}

func (c *Counter32) Read() int32 { return c.v.Load() }

func (c *Counter32) Set(val int32) { c.v.Store(val) }

// Inc increments the counter and returns the new value.
func (c *Counter32) Inc() int32 { return c.v.Add(1) }

// Dec decrements the counter and returns the new value.
func (c *Counter32) Dec() int32 { return c.v.Add(-1) }

// Add adds delta and returns the prior value (fetch-add-return-old).
func (c *Counter32) Add(delta int32) int32 { return c.v.Add(delta) - delta }

// Xchg atomically stores val and returns the prior value (test-and-set).
func (c *Counter32) Xchg(val int32) int32 { return c.v.Swap(val) }

// CompareAndSwap reports whether the swap happened.
func (c *Counter32) CompareAndSwap(old, new int32) bool {
	return c.v.CompareAndSwap(old, new)
}

// Counter64 is the 64-bit counterpart, used for ticket-lock sequence numbers
// and the physical-page accounting counters.
type Counter64 struct {
	v atomic.Int64
}

func (c *Counter64) Read() int64 { return c.v.Load() }

func (c *Counter64) Set(val int64) { c.v.Store(val) }

func (c *Counter64) Inc() int64 { return c.v.Add(1) }

func (c *Counter64) Dec() int64 { return c.v.Add(-1) }

func (c *Counter64) Add(delta int64) int64 { return c.v.Add(delta) - delta }

func (c *Counter64) Xchg(val int64) int64 { return c.v.Swap(val) }

func (c *Counter64) CompareAndSwap(old, new int64) bool {
	return c.v.CompareAndSwap(old, new)
}

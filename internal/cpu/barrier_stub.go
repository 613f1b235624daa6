//go:build !linux || !cgo

package cpu

import "sync/atomic"

// barrierSentinel gives the stub fences something to touch so the Go
// compiler cannot prove they are no-ops and reorder around them. This is a
// compiler barrier only; it provides no CPU-level ordering guarantee. Builds
// that care about real hardware ordering (anything targeting bare metal or
// uhyve) must build with cgo enabled so barrier.go's inline asm is used
// instead.
var barrierSentinel atomic.Uint64

// Full is the non-cgo fallback for a full memory fence.
func Full() { barrierSentinel.Add(1) }

// Read is the non-cgo fallback for a load fence.
func Read() { _ = barrierSentinel.Load() }

// Write is the non-cgo fallback for a store fence.
func Write() { barrierSentinel.Add(1) }

// Package percpu provides per-core storage: an accessor that returns a
// pointer to the copy of a variable belonging to the currently executing
// core. This is a compile-time scheme generating N
// cache-line-padded copies; in this rewrite a "core" is a goroutine pinned
// to its own OS thread (see Bind in core.go), and the accessor keys off
// that goroutine's registered core id rather than a CPU base register.
package percpu

import (
	"sync"

	"github.com/hermit-os/kernel/internal/constants"
)

// padded wraps a value with cache-line padding so neighboring cores' copies
// never share a cache line.
type padded[T any] struct {
	val T
	_   [paddingFor[T]()]byte
}

func paddingFor[T any]() int {
	// A fixed pad is sufficient here: Go does not let us compute
	// unsafe.Sizeof in a generic const expression, and the simulation never
	// measures real false-sharing, only the layout contract. Kept at one
	// cache line to document the intent from .
	return constants.CacheLineSize
}

// Var is a per-core variable: N independently addressable copies of T.
type Var[T any] struct {
	mu    sync.RWMutex
	cores []*padded[T]
}

// NewVar allocates a per-core variable for n cores, each copy zero-valued.
func NewVar[T any](n int) *Var[T] {
	v := &Var[T]{cores: make([]*padded[T], n)}
	for i := range v.cores {
		v.cores[i] = &padded[T]{}
	}
	return v
}

// Grow extends the variable to cover additional cores (used when the boot
// sequence discovers more cores than were initially assumed).
func (v *Var[T]) Grow(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for len(v.cores) < n {
		v.cores = append(v.cores, &padded[T]{})
	}
}

// Get returns a pointer to core id's copy.
func (v *Var[T]) Get(core int) *T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return &v.cores[core].val
}

// N reports how many core copies currently exist.
func (v *Var[T]) N() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.cores)
}

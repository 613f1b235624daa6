//go:build linux && cgo

package cpu

/*
#include <stdint.h>

// x86-64 load fence: no loads after this point may be reordered before it.
static inline void lfence_impl(void) {
    __asm__ __volatile__("lfence" ::: "memory");
}

// x86-64 store fence: no stores after this point may be reordered before it.
// Used by the virtqueue driver to make payload writes visible before the
// available-ring index bump.
static inline void sfence_impl(void) {
    __asm__ __volatile__("sfence" ::: "memory");
}

// x86-64 full fence: no memory operation may cross this point in either
// direction.
static inline void mfence_impl(void) {
    __asm__ __volatile__("mfence" ::: "memory");
}
*/
import "C"

// Full issues a full memory fence (MFENCE).
func Full() { C.mfence_impl() }

// Read issues a load fence (LFENCE).
func Read() { C.lfence_impl() }

// Write issues a store fence (SFENCE).
func Write() { C.sfence_impl() }

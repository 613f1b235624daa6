// Package mpfloat locates and validates the Intel MultiProcessor floating
// pointer structure used for bare-metal CPU enumeration. It
// is the one piece of the boot trampoline's contract this core specifies
// rather than reimplements: the trampoline hands this package a byte
// window, and this package turns it into a core count.
package mpfloat

import (
	"errors"

	"github.com/hermit-os/kernel/internal/uapi"
)

// ErrNotFound is returned when no "_MP_" signature exists on a 16-byte
// boundary of the scanned region.
var ErrNotFound = errors.New("mpfloat: no MP floating pointer structure found")

// ErrBadChecksum is returned when a "_MP_" signature is found but the
// structure's byte-sum checksum does not validate.
var ErrBadChecksum = errors.New("mpfloat: checksum mismatch")

// Scan searches mem (typically the first KiB of the EBDA or the last KiB
// of base memory, per the MP spec's search order) on 16-byte boundaries
// for the "_MP_" signature and returns the first structure carrying it. If
// that structure's checksum does not validate, Scan returns ErrBadChecksum
// without looking further.
func Scan(mem []byte) (*uapi.MPFloatingPointer, int, error) {
	for off := 0; off+16 <= len(mem); off += 16 {
		if mem[off] != uapi.MPFloatingSignature[0] ||
			mem[off+1] != uapi.MPFloatingSignature[1] ||
			mem[off+2] != uapi.MPFloatingSignature[2] ||
			mem[off+3] != uapi.MPFloatingSignature[3] {
			continue
		}
		mp := &uapi.MPFloatingPointer{}
		if err := uapi.Unmarshal(mem[off:off+16], mp); err != nil {
			continue
		}
		if !validChecksum(mem[off : off+16]) {
			return nil, 0, ErrBadChecksum
		}
		return mp, off, nil
	}
	return nil, 0, ErrNotFound
}

// validChecksum reports whether the sum of all bytes in the structure,
// including the checksum byte itself, is zero mod 256 — the MP spec's
// checksum rule.
func validChecksum(raw []byte) bool {
	var sum byte
	for _, b := range raw {
		sum += b
	}
	return sum == 0
}

// DefaultConfiguration reports whether mp describes one of the MP spec's
// predefined default configurations (FeatureInfo1 != 0), in which case
// PhysAddr has no configuration table to parse and the core count is
// implied directly by the default-configuration number.
func DefaultConfiguration(mp *uapi.MPFloatingPointer) (numCores int, isDefault bool) {
	if mp.FeatureInfo1 == 0 {
		return 0, false
	}
	// MP spec table 4-1: default configurations 1-7 are all dual-processor
	// except configuration 5, which is quad-processor.
	if mp.FeatureInfo1 == 5 {
		return 4, true
	}
	return 2, true
}

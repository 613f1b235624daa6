package mpfloat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hermit-os/kernel/internal/uapi"
)

func checksummed(mp *uapi.MPFloatingPointer) []byte {
	buf := uapi.Marshal(mp)
	var sum byte
	for i, b := range buf {
		if i == 10 { // checksum byte itself excluded from the running sum
			continue
		}
		sum += b
	}
	buf[10] = byte(-sum)
	return buf
}

func TestScanFindsValidStructure(t *testing.T) {
	mp := &uapi.MPFloatingPointer{Signature: uapi.MPFloatingSignature, PhysAddr: 0x9fc00, Length: 1, SpecRev: 4}
	raw := checksummed(mp)

	mem := make([]byte, 64)
	copy(mem[32:], raw)

	found, off, err := Scan(mem)
	require.NoError(t, err)
	assert.Equal(t, 32, off)
	assert.Equal(t, uint32(0x9fc00), found.PhysAddr)
}

func TestScanNotFound(t *testing.T) {
	mem := make([]byte, 64)
	_, _, err := Scan(mem)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestScanBadChecksum(t *testing.T) {
	mp := &uapi.MPFloatingPointer{Signature: uapi.MPFloatingSignature, PhysAddr: 0x9fc00, Length: 1}
	raw := uapi.Marshal(mp)
	raw[10] = 0xff // corrupt checksum

	mem := make([]byte, 32)
	copy(mem[16:], raw)

	_, _, err := Scan(mem)
	assert.ErrorIs(t, err, ErrBadChecksum)
}

func TestDefaultConfiguration(t *testing.T) {
	n, ok := DefaultConfiguration(&uapi.MPFloatingPointer{FeatureInfo1: 5})
	assert.True(t, ok)
	assert.Equal(t, 4, n)

	n, ok = DefaultConfiguration(&uapi.MPFloatingPointer{FeatureInfo1: 1})
	assert.True(t, ok)
	assert.Equal(t, 2, n)

	_, ok = DefaultConfiguration(&uapi.MPFloatingPointer{FeatureInfo1: 0})
	assert.False(t, ok)
}

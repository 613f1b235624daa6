package uapi

import (
	"bytes"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructSizes(t *testing.T) {
	assert.Equal(t, 16, int(unsafe.Sizeof(MPFloatingPointer{})))
}

func TestMarshalRoundTrip(t *testing.T) {
	w := &WriteRequest{FD: 3, Data: 0xdead0000, Len: 128, RetOut: 0}
	buf := Marshal(w)
	require.NotNil(t, buf)

	got := &WriteRequest{}
	require.NoError(t, Unmarshal(buf, got))
	assert.Equal(t, w.FD, got.FD)
	assert.Equal(t, w.Data, got.Data)
	assert.Equal(t, w.Len, got.Len)
}

func TestUnmarshalInsufficientData(t *testing.T) {
	err := Unmarshal([]byte{1, 2, 3}, &WriteRequest{})
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestMPFloatingPointerRoundTrip(t *testing.T) {
	mp := &MPFloatingPointer{
		Signature: MPFloatingSignature,
		PhysAddr:  0x9fc00,
		Length:    1,
		SpecRev:   4,
	}
	buf := Marshal(mp)
	require.Len(t, buf, 16)

	got := &MPFloatingPointer{}
	require.NoError(t, Unmarshal(buf, got))
	assert.Equal(t, mp.Signature, got.Signature)
	assert.Equal(t, mp.PhysAddr, got.PhysAddr)
}

func TestProxyHandshakeRoundTrip(t *testing.T) {
	h := &ProxyHandshake{
		Magic: ProxyMagic,
		Argv:  [][]byte{[]byte("hermit-app"), []byte("-freq"), []byte("2400")},
		Envp:  [][]byte{[]byte("HOME=/")},
	}
	var buf bytes.Buffer
	require.NoError(t, EncodeProxyHandshake(&buf, h))

	got, err := DecodeProxyHandshake(&buf)
	require.NoError(t, err)
	assert.Equal(t, h.Magic, got.Magic)
	assert.Equal(t, h.Argv, got.Argv)
	assert.Equal(t, h.Envp, got.Envp)
}

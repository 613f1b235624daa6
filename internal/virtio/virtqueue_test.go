package virtio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hermit-os/kernel/internal/constants"
)

func packet(tag byte, n int) []byte {
	p := make([]byte, constants.VirtioNetHeaderSize+n)
	for i := constants.VirtioNetHeaderSize; i < len(p); i++ {
		p[i] = tag
	}
	return p
}

func TestRXBasicDeliver(t *testing.T) {
	d := NewDevice(4, 4)
	require.Equal(t, 4, d.RXFreeCount())

	var delivered [][]byte
	d.Deliver = func(p []byte) { delivered = append(delivered, p) }

	d.DeviceFillUsed([][]byte{packet('a', 10)})
	n := d.DrainRX()

	assert.Equal(t, 1, n)
	require.Len(t, delivered, 1)
	assert.Equal(t, 10, len(delivered[0]))
	assert.Equal(t, int64(1), d.Stats.Recv.Read())
	assert.Equal(t, 4, d.RXFreeCount()) // rearmed
}

func TestRXFloodRearm(t *testing.T) {
	// 256 RX descriptors pre-armed, 300 packets delivered in one flood.
	d := NewDevice(256, 4)
	require.Equal(t, 256, d.RXFreeCount())

	payloads := make([][]byte, 300)
	for i := range payloads {
		payloads[i] = packet(byte(i), 16)
	}

	d.DeviceFillUsed(payloads[:256])
	n1 := d.DrainRX()
	assert.Equal(t, 256, n1)
	assert.Equal(t, 256, d.RXFreeCount())

	d.DeviceFillUsed(payloads[256:])
	n2 := d.DrainRX()
	assert.Equal(t, 44, n2)

	assert.Equal(t, int64(300), d.Stats.Recv.Read())
	assert.Equal(t, int64(0), d.Stats.Drop.Read())
}

func TestRXDropsWhenNoDescriptorAvailable(t *testing.T) {
	d := NewDevice(1, 1)
	d.DeviceFillUsed([][]byte{packet('a', 4), packet('b', 4)})
	n := d.DrainRX()
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(1), d.Stats.Drop.Read())
}

func TestSendRejectsOversizePacket(t *testing.T) {
	d := NewDevice(2, 2)
	big := make([]byte, constants.VirtqueueMaxPacket+1)
	err := d.Send(big)
	assert.ErrorIs(t, err, ErrPacketTooLarge)
}

func TestSendNotifiesAndConsumes(t *testing.T) {
	d := NewDevice(2, 2)
	var notified []int
	d.Notify = func(q int) { notified = append(notified, q) }

	require.NoError(t, d.Send([]byte("hello")))
	assert.Equal(t, []int{constants.TXQueueIndex}, notified)
	assert.Equal(t, 1, d.TXPendingCount())
	assert.Equal(t, int64(1), d.Stats.Sent.Read())

	d.DeviceConsumeTX()
	assert.Equal(t, 0, d.TXPendingCount())

	// Descriptor is free again for reuse.
	require.NoError(t, d.Send([]byte("again")))
}

func TestSendNoFreeDescriptor(t *testing.T) {
	d := NewDevice(1, 1)
	require.NoError(t, d.Send([]byte("a")))
	err := d.Send([]byte("b"))
	assert.ErrorIs(t, err, ErrNoFreeDescriptor)
}

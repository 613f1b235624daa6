// Package virtio implements the virtio-net split-ring virtqueue driver:
// two queues (RX index 0, TX index 1), each with a
// descriptor table, an available ring, a used ring, and a pinned
// packet-buffer region. There is no real virtio device in this simulation,
// so internal/transport's uhyve netwrite/netread/netinfo ports stand in
// for "the device" on the other side of the ring — this package owns the
// ring discipline (barriers, descriptor recycling, overflow accounting)
// exactly as the driver contract describes it.
package virtio

import (
	"errors"

	"github.com/hermit-os/kernel/internal/constants"
	"github.com/hermit-os/kernel/internal/cpu"
)

// ErrPacketTooLarge is returned when a TX packet exceeds the per-buffer
// limit.
var ErrPacketTooLarge = errors.New("virtio: packet exceeds buffer size")

// ErrNoFreeDescriptor is returned by TX when every descriptor is in use.
var ErrNoFreeDescriptor = errors.New("virtio: no free TX descriptor")

// Stats are the driver-visible receive/transmit/drop counters a caller
// can assert against (LINK_STATS_INC(link.recv) etc.).
type Stats struct {
	Recv      cpu.Counter64
	Sent      cpu.Counter64
	Drop      cpu.Counter64 // RX packets with no published descriptor, or no payload past the header
	RXRearmed cpu.Counter64
}

// descriptor mirrors one split-ring descriptor: a buffer and its used
// length. usedLen == 0 means "free" on the TX side ("find a
// descriptor with zero length (free)").
type descriptor struct {
	buf     []byte
	usedLen int
}

// Device is one virtio-net device's pair of split-ring queues.
type Device struct {
	Stats Stats

	rx *queue
	tx *queue

	// Deliver hands a received payload (header stripped) up to the
	// networking stack. In this core's scope that stack is LwIP,
	// specified only as the interface it presents here: a callback that
	// accepts bytes and cannot block the RX drain loop.
	Deliver func(payload []byte)

	// Notify is invoked with the queue index whenever TX publishes a new
	// available-ring entry.
	Notify func(queueIndex int)
}

// queue is one split-ring queue: descriptors plus the two index rings.
type queue struct {
	index int // constants.RXQueueIndex or constants.TXQueueIndex

	descriptors []descriptor
	avail       []int // published descriptor indices, in order
	availIdx    int    // next avail slot to publish into (monotonic, wraps via len)
	used        []int  // descriptor indices the device has returned
	lastSeenUsed int   // cursor into `used` already drained
}

func newQueue(index, depth int) *queue {
	return &queue{
		index:       index,
		descriptors: make([]descriptor, depth),
		avail:       make([]int, 0, depth),
		used:        make([]int, 0, depth),
	}
}

// NewDevice creates a device with rxDepth RX descriptors and txDepth TX
// descriptors, each buffer sized to hold one max-size packet plus its
// virtio-net header.
func NewDevice(rxDepth, txDepth int) *Device {
	d := &Device{
		rx: newQueue(constants.RXQueueIndex, rxDepth),
		tx: newQueue(constants.TXQueueIndex, txDepth),
	}
	bufSize := constants.VirtioNetHeaderSize + constants.VirtqueueMaxPacket
	for i := range d.rx.descriptors {
		d.rx.descriptors[i].buf = make([]byte, bufSize)
	}
	for i := range d.tx.descriptors {
		d.tx.descriptors[i].buf = make([]byte, bufSize)
	}
	d.armAllRX()
	return d
}

// armAllRX publishes every RX descriptor as a write-only buffer in the
// available ring.
func (d *Device) armAllRX() {
	d.rx.avail = d.rx.avail[:0]
	for i := range d.rx.descriptors {
		d.rx.descriptors[i].usedLen = 0
		d.rx.avail = append(d.rx.avail, i)
	}
}

// rearmRX republishes descriptor idx after its payload has been drained.
func (d *Device) rearmRX(idx int) {
	d.rx.descriptors[idx].usedLen = 0
	d.rx.avail = append(d.rx.avail, idx)
	d.Stats.RXRearmed.Inc()
}

// DeviceFillUsed is the device-side test/simulation hook: it appends n
// entries from the RX queue's currently-available descriptors into the
// used ring, as if the device had written incoming packets into them.
// Real hardware does this asynchronously; a simulation needs an explicit
// entry point to drive "the device produced packets."
func (d *Device) DeviceFillUsed(payloads [][]byte) {
	for _, p := range payloads {
		if len(d.rx.avail) == 0 {
			// No descriptor available to receive into; the real device
			// would simply not have one published — drop.
			d.Stats.Drop.Inc()
			continue
		}
		idx := d.rx.avail[0]
		d.rx.avail = d.rx.avail[1:]

		n := copy(d.rx.descriptors[idx].buf, p)
		d.rx.descriptors[idx].usedLen = n
		d.rx.used = append(d.rx.used, idx)
	}
}

// DrainRX processes used entries from last_seen_used up to the device's
// published used index: for each, strip the virtio-net header,
// deliver the payload, and republish the buffer.
func (d *Device) DrainRX() int {
	cpu.Full() // pair with DeviceFillUsed's producer-side publish
	n := 0
	for d.rx.lastSeenUsed < len(d.rx.used) {
		idx := d.rx.used[d.rx.lastSeenUsed]
		d.rx.lastSeenUsed++
		n++

		desc := &d.rx.descriptors[idx]
		if desc.usedLen > constants.VirtioNetHeaderSize {
			payload := make([]byte, desc.usedLen-constants.VirtioNetHeaderSize)
			copy(payload, desc.buf[constants.VirtioNetHeaderSize:desc.usedLen])
			if d.Deliver != nil {
				d.Deliver(payload)
			}
			d.Stats.Recv.Inc()
		} else {
			d.Stats.Drop.Inc()
		}
		d.rearmRX(idx)
	}
	// Once drained past the tail, compact the used slice so it cannot grow
	// without bound across a long-running device.
	if d.rx.lastSeenUsed == len(d.rx.used) {
		d.rx.used = d.rx.used[:0]
		d.rx.lastSeenUsed = 0
	}
	return n
}

// Send queues payload for transmission: finds a free TX descriptor, zeroes
// its header, copies the payload after it, and publishes the descriptor in
// the available ring, then notifies the device.
func (d *Device) Send(payload []byte) error {
	if len(payload) > constants.VirtqueueMaxPacket {
		return ErrPacketTooLarge
	}

	idx := -1
	for i, desc := range d.tx.descriptors {
		if desc.usedLen == 0 {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrNoFreeDescriptor
	}

	desc := &d.tx.descriptors[idx]
	for i := 0; i < constants.VirtioNetHeaderSize; i++ {
		desc.buf[i] = 0
	}
	n := copy(desc.buf[constants.VirtioNetHeaderSize:], payload)
	desc.usedLen = constants.VirtioNetHeaderSize + n

	cpu.Write() // payload writes visible before the avail-ring index bump
	d.tx.avail = append(d.tx.avail, idx)
	cpu.Full() // index bump visible before the notify-port write

	if d.Notify != nil {
		d.Notify(d.tx.index)
	}
	d.Stats.Sent.Inc()
	return nil
}

// DeviceConsumeTX is the device-side simulation hook for the TX
// completion path: it marks every currently-published TX descriptor
// consumed, as the real device would after transmitting them.
func (d *Device) DeviceConsumeTX() {
	for _, idx := range d.tx.avail {
		d.tx.descriptors[idx].usedLen = 0
	}
	d.tx.avail = d.tx.avail[:0]
}

// RXFreeCount reports how many RX descriptors are currently published and
// available to receive into (used by tests to assert re-arm behavior).
func (d *Device) RXFreeCount() int { return len(d.rx.avail) }

// TXPendingCount reports how many TX descriptors are published and
// awaiting device consumption.
func (d *Device) TXPendingCount() int { return len(d.tx.avail) }

// Package constants holds the build-time tunables for the kernel core: task
// table size, priority levels, page geometry, and the timing knobs used
// during core bring-up.
package constants

import "time"

// Task table and scheduling constants
const (
	// MaxTasks is the fixed size N of the task table; task ids are dense
	// indices 0..MaxTasks-1.
	MaxTasks = 4096

	// IdlePriority is the reserved priority level of each core's idle task.
	IdlePriority = 0

	// MaxPriority is the highest user priority level (1..MaxPriority).
	MaxPriority = 31

	// NumPriorities is the number of ready-queue priority buckets.
	NumPriorities = MaxPriority + 1

	// DefaultKernelStackPages is the default kernel stack size in pages.
	DefaultKernelStackPages = 8
)

// Page and memory geometry
const (
	// PageSize is the page frame size in bytes (4 KiB, matching x86-64).
	PageSize = 4096

	// PageShift is log2(PageSize).
	PageShift = 12

	// HeapMinExponent is the smallest buddy allocation class, 2^HeapMinExponent.
	HeapMinExponent = 5

	// HeapMaxExponent is the largest buddy allocation class, 2^HeapMaxExponent.
	HeapMaxExponent = 21

	// HeapAllocThreshold is the class at or above which the buddy allocator
	// requests fresh backing pages instead of splitting further.
	HeapAllocThreshold = 13

	// BuddyHeaderSize is the size in bytes of the header placed immediately
	// before every live heap block.
	BuddyHeaderSize = 8

	// BuddyMagic tags a live buddy header; a free() whose header's magic
	// does not match this value is treated as corruption and dropped.
	BuddyMagic = 0xB0DDC0DE
)

// Per-core and cache-line layout
const (
	// CacheLineSize is the padding applied between per-core variable copies
	// so adjacent cores never false-share a cache line.
	CacheLineSize = 64
)

// Signal delivery
const (
	// SignalRingCapacity bounds the number of pending signal messages a
	// core's inbound ring may hold before kill() returns signal.ErrRingFull.
	SignalRingCapacity = 64
)

// Virtqueue
const (
	// VirtqueueMaxPacket is the largest single packet the RX/TX path will
	// accept into one descriptor buffer (matches the virtio-net MTU the
	// driver contract assumes).
	VirtqueueMaxPacket = 1792

	// VirtioNetHeaderSize is the size of the virtio-net header prefixed to
	// every RX buffer ahead of the payload.
	VirtioNetHeaderSize = 12

	// RXQueueIndex and TXQueueIndex are the split-ring queue indices for a
	// virtio-net device: RX is queue 0, TX is queue 1.
	RXQueueIndex = 0
	TXQueueIndex = 1
)

// Timer / calibration
const (
	// DefaultTickHz is the assumed timer IRQ frequency absent a kernel
	// command-line override or calibration.
	DefaultTickHz = 100

	// CalibrationWindow is how long the TSC-vs-reference calibration pass
	// samples for before computing an estimated CPU frequency.
	CalibrationWindow = 10 * time.Millisecond

	// DyntickHorizon is how far in the future a deadline must be before the
	// scheduler disarms the periodic timer and halts the idle core.
	DyntickHorizon = 2 * time.Millisecond
)

// Boot sequencing delays
//
// These mirror the boot dependency order: per-core state, IDT,
// timer, task table, physical memory, VMA arena, page tables, heap, signal
// delivery, then initd. Each step is synchronous but bounded so a hung
// collaborator (e.g. a slow calibration pass) cannot stall boot forever.
const (
	// CoreBringupTimeout bounds how long Boot waits for every core
	// goroutine to report itself calibrated and ready.
	CoreBringupTimeout = 2 * time.Second

	// ShutdownGracePeriod bounds how long a halt IPI has to be observed by
	// a core before boot orchestration gives up waiting on it.
	ShutdownGracePeriod = 500 * time.Millisecond
)

// Hypervisor / proxy transport
const (
	// UhyvePortWrite and friends enumerate the reserved uhyve port-I/O
	// request ports.
	UhyvePortWrite   = 0x499
	UhyvePortOpen    = 0x500
	UhyvePortClose   = 0x501
	UhyvePortRead    = 0x502
	UhyvePortExit    = 0x503
	UhyvePortLseek   = 0x504
	UhyvePortNetinfo = 0x505
	UhyvePortNetwrite = 0x506
	UhyvePortNetread  = 0x507
	UhyvePortNetstat  = 0x508

	// ProxyMagic is the 32-bit magic the proxy sends at the start of the
	// control handshake.
	ProxyMagic = 0x7E317

	// ProxyControlPort is the TCP port side-by-side mode listens on.
	ProxyControlPort = 0x494E
)

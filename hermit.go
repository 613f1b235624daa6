// Package hermit is the kernel core's public API: the boot sequence that
// brings up every subsystem in dependency order (per-core state, IRQ,
// clock, task table, physical memory, VMA arena, page tables, heap, signal
// delivery, then initd) and the Kernel handle callers
// use to spawn tasks, send signals, and drive an orderly shutdown.
//
// A "core" is realized as one goroutine pinned to its own OS thread via
// runtime.LockOSThread + golang.org/x/sys/unix.SchedSetaffinity — the same
// per-core-thread-affinity idiom used elsewhere in this codebase
// to pin an I/O queue's processing loop to a dedicated OS thread, retargeted
// here from one I/O queue per thread to one scheduler core per thread.
package hermit

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/hermit-os/kernel/internal/constants"
	"github.com/hermit-os/kernel/internal/irq"
	"github.com/hermit-os/kernel/internal/lock"
	"github.com/hermit-os/kernel/internal/logging"
	"github.com/hermit-os/kernel/internal/memory"
	"github.com/hermit-os/kernel/internal/memory/heap"
	"github.com/hermit-os/kernel/internal/memory/paging"
	"github.com/hermit-os/kernel/internal/memory/pmm"
	"github.com/hermit-os/kernel/internal/memory/vma"
	"github.com/hermit-os/kernel/internal/mpfloat"
	"github.com/hermit-os/kernel/internal/percpu"
	"github.com/hermit-os/kernel/internal/sched"
	"github.com/hermit-os/kernel/internal/signal"
	"github.com/hermit-os/kernel/internal/sysno"
	"github.com/hermit-os/kernel/internal/task"
	"github.com/hermit-os/kernel/internal/timer"
	"github.com/hermit-os/kernel/internal/virtio"
)

// Mode selects which external collaborator a booted kernel expects to run
// under: the hypervisor port-I/O protocol, the side-by-side
// proxy TCP control channel, or bare metal with DHCP/MP-table enumeration.
// hermit itself never speaks any of these wire protocols directly — that is
// internal/transport's job — Mode only steers default core-count detection
// and the kernel command-line knobs it accepts.
type Mode int

// defaultAssumedFreqMHz is used when no cmdline override, brand string, or
// calibrator yields a frequency — this simulation never has a real TSC to
// fall back to.
const defaultAssumedFreqMHz = 1000

const (
	// ModeUhyve assumes a single virtual core unless NumCores is set
	// explicitly; core enumeration comes from the hypervisor, not an MP
	// table.
	ModeUhyve Mode = iota
	// ModeProxy is the side-by-side-with-Linux multikernel mode.
	ModeProxy
	// ModeBareMetal enumerates cores from an MP floating pointer structure
	// via internal/mpfloat when MPTable is supplied.
	ModeBareMetal
)

// Config is the kernel command line, plus the handful of
// boot-time choices a real HermitCore image would bake in rather than
// parse: core count, tick frequency, and which external runtime it expects.
type Config struct {
	// NumCores is how many core goroutines Boot brings up. Zero means
	// "decide from Mode": 1 for uhyve, runtime.NumCPU() for proxy, or the
	// MP table's count for bare metal. A negative value makes Boot fail.
	NumCores int

	// FreqMHz is the "-freq <MHz>" kernel command-line override. Zero
	// defers to brand-string parsing, then TSC calibration.
	FreqMHz int

	// BrandString is the CPU brand string calibration falls back to when
	// FreqMHz is unset.
	BrandString string

	// UARTPort is the "uart=io:<hex>" kernel command-line value. The
	// UART/VGA console itself is an external collaborator; Boot only
	// records the selection for whatever console glue the caller wires up.
	UARTPort uint16

	// Mode selects the runtime environment.
	Mode Mode

	// MPTable is the raw byte window the boot trampoline hands the kernel
	// for bare-metal CPU enumeration, scanned by internal/mpfloat when Mode is
	// ModeBareMetal and NumCores is zero.
	MPTable []byte

	// RAMBytes sizes the simulated physical memory arena backing
	// internal/memory/pmm. Defaults to 64 MiB.
	RAMBytes int

	// KernelVirtualLo/Hi bound the kernel's VMA allocation window. Defaults to a generous
	// above-the-image range; callers embedding hermit inside a larger
	// address-space simulation can narrow it.
	KernelVirtualLo uintptr
	KernelVirtualHi uintptr

	// Logging configures the shared logger every component logs through.
	Logging *logging.Config
}

// DefaultConfig returns the configuration Boot uses for any field left
// zero-valued.
func DefaultConfig() Config {
	return Config{
		Mode:            ModeUhyve,
		RAMBytes:        64 << 20,
		KernelVirtualLo: 0x1_0000_0000,
		KernelVirtualHi: 0x2_0000_0000,
	}
}

func (c Config) withDefaults() Config {
	out := c
	if out.RAMBytes <= 0 {
		out.RAMBytes = 64 << 20
	}
	if out.KernelVirtualHi <= out.KernelVirtualLo {
		out.KernelVirtualLo = 0x1_0000_0000
		out.KernelVirtualHi = 0x2_0000_0000
	}
	if out.Logging == nil {
		out.Logging = logging.DefaultConfig()
	}
	return out
}

func (c Config) numCores() int {
	if c.NumCores != 0 {
		return c.NumCores
	}
	switch c.Mode {
	case ModeBareMetal:
		if len(c.MPTable) > 0 {
			if mp, _, err := mpfloat.Scan(c.MPTable); err == nil {
				if n, ok := mpfloat.DefaultConfiguration(mp); ok {
					return n
				}
			}
		}
		return 1
	case ModeProxy:
		n := runtime.NumCPU()
		if n < 1 {
			return 1
		}
		return n
	default: // ModeUhyve
		return 1
	}
}

// coreContext is the per-core scheduling state Boot assembles: its ready
// queue, its clock, and the sched.Core that ties them together with the
// shared task table.
type coreContext struct {
	RQ    *task.ReadyQueue
	Clock *timer.Clock
	Sched *sched.Core
	Idle  task.ID
}

// Kernel is a fully booted kernel core: every subsystem
// wired together, plus the per-core goroutines standing in for the
// physical cores they run on.
type Kernel struct {
	cfg Config
	log *logging.Logger

	Tasks   *task.Table
	IRQ     *irq.Controller
	Signals *signal.Delivery
	Mem     *memory.Manager
	Heap    *heap.Heap
	Sysno   *sysno.Table
	Surface *sysno.Surface
	Metrics *Metrics
	Net     *virtio.Device

	cores []coreContext

	cancel   context.CancelFunc
	group    *errgroup.Group
	groupCtx context.Context
}

// fpuStub implements sched.FPUSaver with a no-op: this simulation has no
// real FPU register file to spill, only the "used since last switch" bit.
// It exists so Boot does not have to special-case a nil
// saver in every coreContext.
type fpuStub struct{ m *Metrics }

func (f fpuStub) SaveFPU(t *task.Task) {
	if f.m != nil {
		f.m.FPUSaves.Inc()
	}
}

// Boot brings up the kernel core in the dependency order the system
// requires: per-core state and IRQ dispatch first (everything else can
// fault or be interrupted), then the clock, the task table, the memory
// subsystem (physical bitmap, VMA arena, page tables, buddy heap), signal
// delivery, and finally the syscall surface — then spawns initd on core 0.
// Each core's idle task is created first, so initd's task id is numCores.
//
// Boot blocks until every core goroutine reports itself calibrated and
// ready, or until ctx is done, or until constants.CoreBringupTimeout
// elapses.
func Boot(ctx context.Context, cfg Config, initd func()) (*Kernel, error) {
	cfg = cfg.withDefaults()
	logging.SetDefault(logging.NewLogger(cfg.Logging))
	log := logging.Default()

	numCores := cfg.numCores()
	if numCores < 1 {
		return nil, NewError("Boot", CodeInvalidArgument, "numCores must be >= 1")
	}

	// IRQ dispatch, wired into internal/lock so IRQSave's mask/restore
	// hooks have a real per-core implementation instead of the package's
	// always-enabled no-op default.
	irqCtl := irq.NewController(numCores)
	lock.SetInterruptHooks(irqCtl.MaskInterrupts, irqCtl.RestoreInterrupts)

	// One monotonic clock per core, calibrated via the three-strategy
	// cascade (cmdline override, brand string, TSC calibration). This
	// simulation has no TSC to calibrate against, so the cascade's last
	// resort is a fixed assumed frequency rather than a real calibration
	// pass.
	freqMHz, err := timer.DetectFrequencyMHz(cfg.FreqMHz, cfg.BrandString, nil, 0, func(time.Duration) {})
	if err != nil {
		freqMHz = defaultAssumedFreqMHz
	}

	// The fixed-size task table is shared by every core.
	tasks := task.NewTable(constants.MaxTasks)

	// Physical bitmap, kernel VMA arena, page table, buddy
	// heap, glued by internal/memory.Manager.
	ram := memory.NewRAM(cfg.RAMBytes)
	totalFrames := cfg.RAMBytes / constants.PageSize
	frames := pmm.New(totalFrames, totalFrames/16) // reserve the bottom 1/16th for the "kernel image"
	arena := vma.New(cfg.KernelVirtualLo, cfg.KernelVirtualHi)
	pageTable := paging.New(&frameAdapter{frames})
	mem := memory.NewManager(ram, frames, arena, pageTable)
	h := heap.New(mem)

	metrics := NewMetrics()

	// Signal delivery needs the IRQ controller (to install its drain
	// handler and send IPIs) and the task table (to resolve targets).
	signals := signal.NewDelivery(numCores, tasks, irqCtl)
	signals.SetDropHandler(func(core int, msg signal.Message) {
		metrics.SignalsDropped.Inc()
		log.Warn("signal dropped: target migrated off expected core",
			"core", core, "target", msg.TargetTaskID)
	})

	k := &Kernel{
		cfg:     cfg,
		log:     log,
		Tasks:   tasks,
		IRQ:     irqCtl,
		Signals: signals,
		Mem:     mem,
		Heap:    h,
		Metrics: metrics,
	}

	// One scheduling context per core, starting on that core's idle
	// task.
	k.cores = make([]coreContext, numCores)
	schedCores := make([]*sched.Core, numCores)
	for i := 0; i < numCores; i++ {
		idle, err := tasks.Create(task.CreateParams{Priority: constants.IdlePriority, LastCore: i})
		if err != nil {
			return nil, WrapError("Boot", err)
		}
		tasks.Get(idle).MarkIdle()

		rq := task.NewReadyQueue(tasks, idle)
		clock := timer.NewClock(freqMHz)
		core := sched.NewCore(i, rq, tasks, clock, fpuStub{m: metrics}, idle)

		k.cores[i] = coreContext{RQ: rq, Clock: clock, Sched: core, Idle: idle}
		schedCores[i] = core
	}

	// The syscall surface binds to the live task table, per-core
	// schedulers, signal delivery, and the heap. Host-forwarded entries
	// (open/read/write/...) are left unregistered until a caller attaches
	// a HostIO via Kernel.AttachHost, matching internal/transport's role.
	sysTable := sysno.NewTable()
	surface := sysno.NewSurface(tasks, schedCores, signals, h)
	surface.Bind(sysTable)
	k.Sysno = sysTable
	k.Surface = surface

	bootCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(bootCtx)
	k.cancel = cancel
	k.group = group
	k.groupCtx = groupCtx

	ready := make(chan struct{}, numCores)
	for i := 0; i < numCores; i++ {
		i := i
		group.Go(func() error {
			return k.runCore(groupCtx, i, ready)
		})
	}

	bringupDeadline := time.After(constants.CoreBringupTimeout)
	for i := 0; i < numCores; i++ {
		select {
		case <-ready:
		case <-bringupDeadline:
			cancel()
			return nil, NewError("Boot", CodeTimeout, "core bring-up did not complete")
		case <-ctx.Done():
			cancel()
			return nil, WrapError("Boot", ctx.Err())
		}
	}

	// initd runs on core 0 at the
	// lowest user priority.
	if initd != nil {
		id, err := tasks.Create(task.CreateParams{Priority: 1, LastCore: 0, Entry: initd})
		if err != nil {
			cancel()
			return nil, WrapError("Boot", err)
		}
		k.cores[0].RQ.Enqueue(id)
	}

	log.Info("kernel booted", "cores", numCores, "freq_mhz", freqMHz, "mode", cfg.Mode)
	return k, nil
}

// runCore is one core's bring-up + idle loop: lock to an OS thread, set
// affinity, register with internal/percpu, then wait for shutdown. Real
// scheduling activity happens through Kernel.Reschedule/Wake/Kill calls
// driven by the syscall surface and transport layer, not by this loop —
// it exists to give percpu.Bind and the OS-thread-affinity contract a
// live goroutine to bind to, per the per-core independence model.
func (k *Kernel) runCore(ctx context.Context, id int, ready chan<- struct{}) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := setAffinity(id); err != nil {
		k.log.Warn("failed to pin core to OS thread affinity", "core", id, "err", err)
	}
	percpu.Bind(percpu.CoreID(id))
	defer percpu.Unbind()

	ready <- struct{}{}

	<-ctx.Done()
	return nil
}

// setAffinity pins the calling OS thread to CPU id. Best-effort: a
// simulation with fewer host CPUs than configured cores logs and
// continues rather than failing boot.
func setAffinity(id int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(id % runtime.NumCPU())
	return unix.SchedSetaffinity(0, &set)
}

// frameAdapter satisfies paging.FrameSource over a pmm.Bitmap, allocating
// one frame at a time (paging only ever asks for single intermediate-table
// frames).
type frameAdapter struct{ b *pmm.Bitmap }

func (f *frameAdapter) GetFrame() int      { return f.b.GetPages(1) }
func (f *frameAdapter) PutFrame(frame int) { f.b.PutPages(frame, 1) }

// Reschedule runs the scheduler's five-step algorithm on the given core,
// returning whether a switch happened and to/from which
// task. Callers drive this from their own per-core run loop (a real timer
// IRQ, a syscall return path, or a test harness) — Boot's runCore
// intentionally does not call it automatically, since nothing in this
// simulation generates a periodic timer IRQ on its own.
func (k *Kernel) Reschedule(core int) (sched.SwitchResult, error) {
	if core < 0 || core >= len(k.cores) {
		return sched.SwitchResult{}, NewCoreError("Reschedule", core, CodeInvalidArgument, "no such core")
	}
	res := k.cores[core].Sched.Reschedule()
	if res.Switched {
		k.Metrics.ContextSwitches.Inc()
	}
	return res, nil
}

// Dyntick lets the caller's per-core run loop decide whether to arm or
// disarm that core's timer, per the dyntick description.
func (k *Kernel) Dyntick(core int) error {
	if core < 0 || core >= len(k.cores) {
		return NewCoreError("Dyntick", core, CodeInvalidArgument, "no such core")
	}
	c := k.cores[core]
	c.Sched.Dyntick(c.Idle, constants.DyntickHorizon)
	return nil
}

// Clock returns the given core's clock, for callers driving timer ticks
// or deadline expiry directly.
func (k *Kernel) Clock(core int) (*timer.Clock, error) {
	if core < 0 || core >= len(k.cores) {
		return nil, NewCoreError("Clock", core, CodeInvalidArgument, "no such core")
	}
	return k.cores[core].Clock, nil
}

// ReadyQueue returns the given core's ready queue.
func (k *Kernel) ReadyQueue(core int) (*task.ReadyQueue, error) {
	if core < 0 || core >= len(k.cores) {
		return nil, NewCoreError("ReadyQueue", core, CodeInvalidArgument, "no such core")
	}
	return k.cores[core].RQ, nil
}

// NumCores reports how many core goroutines this kernel booted.
func (k *Kernel) NumCores() int { return len(k.cores) }

// EnableNetwork creates and attaches a virtio-net device
// with the given RX/TX descriptor depths, counting each delivered RX packet
// in k.Metrics via the virtqueue-packet Observer event. Sent packets and
// drops stay in the device's own Stats and are not mirrored into k.Metrics.
// It replaces any previously attached device.
func (k *Kernel) EnableNetwork(rxDepth, txDepth int) *virtio.Device {
	dev := virtio.NewDevice(rxDepth, txDepth)
	obs := NewMetricsObserver(k.Metrics)
	deliver := dev.Deliver
	dev.Deliver = func(payload []byte) {
		obs.ObserveVirtqueuePacket(true)
		if deliver != nil {
			deliver(payload)
		}
	}
	k.Net = dev
	return dev
}

// AttachHost wires a host-I/O forwarder (internal/transport.UhyveHost or
// an equivalent) into the syscall surface, enabling the file-backed
// entries (open/read/write/close/dup/stat). Must be called before any
// caller dispatches one of those syscall numbers.
func (k *Kernel) AttachHost(host sysno.HostIO) {
	k.Surface.Host = host
	k.Surface.Bind(k.Sysno)
}

// Dispatch runs one syscall through the bound surface,
// returning -ENOSYS-equivalent sysno.ErrNoSys for any unregistered number.
func (k *Kernel) Dispatch(n sysno.Number, c sysno.Call) (int64, error) {
	k.Metrics.Syscalls.Inc()
	return k.Sysno.Dispatch(n, c)
}

// Shutdown fans out a cancellation to every core goroutine (standing in
// for the halt IPI — this simulation has no real CPU to send one to,
// only a goroutine blocked in runCore) and waits for all of them to
// acknowledge by returning, bounded by constants.ShutdownGracePeriod.
func (k *Kernel) Shutdown(ctx context.Context) error {
	k.cancel()

	done := make(chan error, 1)
	go func() { done <- k.group.Wait() }()

	select {
	case err := <-done:
		k.log.Info("kernel shutdown complete")
		return err
	case <-time.After(constants.ShutdownGracePeriod):
		return NewError("Shutdown", CodeTimeout, "cores did not acknowledge halt within grace period")
	case <-ctx.Done():
		return WrapError("Shutdown", ctx.Err())
	}
}

// String renders a Mode for logging.
func (m Mode) String() string {
	switch m {
	case ModeUhyve:
		return "uhyve"
	case ModeProxy:
		return "proxy"
	case ModeBareMetal:
		return "bare-metal"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

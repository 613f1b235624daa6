package hermit

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hermit-os/kernel/internal/cpu"
)

// Metrics is the kernel's plain counter block. The Kernel in hermit.go
// updates it: context switches in Reschedule, FPU saves, dropped signals,
// syscalls in Dispatch, and RX packets once EnableNetwork is called.
// PageFaults, SignalsSent, VirtqueueTXPackets and HeapBytesInUse are not
// updated anywhere in this module. It never depends on Prometheus — PromObserver below is an
// optional adapter that mirrors these same counters into collectors for
// scraping, keeping the counter struct and the Observer interface
// separate.
type Metrics struct {
	ContextSwitches cpu.Counter64
	PageFaults      cpu.Counter64
	SignalsSent     cpu.Counter64
	SignalsDropped  cpu.Counter64
	FPUSaves        cpu.Counter64
	Syscalls        cpu.Counter64
	VirtqueueRXPackets cpu.Counter64
	VirtqueueTXPackets cpu.Counter64
	HeapBytesInUse  cpu.Counter64
}

// NewMetrics returns a zeroed Metrics block.
func NewMetrics() *Metrics { return &Metrics{} }

// Snapshot is a point-in-time read of every counter, for a diagnostics
// endpoint or a test assertion.
type Snapshot struct {
	ContextSwitches    int64
	PageFaults         int64
	SignalsSent        int64
	SignalsDropped     int64
	FPUSaves           int64
	Syscalls           int64
	VirtqueueRXPackets int64
	VirtqueueTXPackets int64
	HeapBytesInUse     int64
}

// Snapshot reads every counter without resetting them.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		ContextSwitches:    m.ContextSwitches.Read(),
		PageFaults:         m.PageFaults.Read(),
		SignalsSent:        m.SignalsSent.Read(),
		SignalsDropped:     m.SignalsDropped.Read(),
		FPUSaves:           m.FPUSaves.Read(),
		Syscalls:           m.Syscalls.Read(),
		VirtqueueRXPackets: m.VirtqueueRXPackets.Read(),
		VirtqueueTXPackets: m.VirtqueueTXPackets.Read(),
		HeapBytesInUse:     m.HeapBytesInUse.Read(),
	}
}

// Observer receives the same update events Metrics does, for callers that
// want to push them somewhere else (a tracing span, a log line) instead of
// or in addition to the plain counters.
type Observer interface {
	ObserveContextSwitch(core int)
	ObservePageFault(core int)
	ObserveSignalSent()
	ObserveSignalDropped()
	ObserveSyscall(n int32)
	ObserveVirtqueuePacket(rx bool)
}

// NoOpObserver discards every event. It is the zero-cost default when no
// caller has wired a real Observer.
type NoOpObserver struct{}

func (NoOpObserver) ObserveContextSwitch(core int)   {}
func (NoOpObserver) ObservePageFault(core int)       {}
func (NoOpObserver) ObserveSignalSent()               {}
func (NoOpObserver) ObserveSignalDropped()            {}
func (NoOpObserver) ObserveSyscall(n int32)           {}
func (NoOpObserver) ObserveVirtqueuePacket(rx bool)   {}

var _ Observer = NoOpObserver{}

// MetricsObserver is an Observer that folds every event straight into a
// Metrics block, so a caller can register one Observer and still read the
// same plain counters the rest of the kernel updates directly.
type MetricsObserver struct {
	M *Metrics
}

// NewMetricsObserver wraps m.
func NewMetricsObserver(m *Metrics) *MetricsObserver { return &MetricsObserver{M: m} }

func (o *MetricsObserver) ObserveContextSwitch(core int) { o.M.ContextSwitches.Inc() }
func (o *MetricsObserver) ObservePageFault(core int)     { o.M.PageFaults.Inc() }
func (o *MetricsObserver) ObserveSignalSent()            { o.M.SignalsSent.Inc() }
func (o *MetricsObserver) ObserveSignalDropped()         { o.M.SignalsDropped.Inc() }
func (o *MetricsObserver) ObserveSyscall(n int32)        { o.M.Syscalls.Inc() }
func (o *MetricsObserver) ObserveVirtqueuePacket(rx bool) {
	if rx {
		o.M.VirtqueueRXPackets.Inc()
	} else {
		o.M.VirtqueueTXPackets.Inc()
	}
}

var _ Observer = (*MetricsObserver)(nil)

// PromObserver mirrors kernel events into Prometheus collectors, so a
// cmd/hermit-sim instance can expose /metrics without the scheduler or
// virtio driver ever importing the Prometheus client directly. It wraps a
// *Metrics the same way MetricsObserver does and additionally registers
// itself with reg.
type PromObserver struct {
	inner *MetricsObserver

	contextSwitches prometheus.Counter
	pageFaults      prometheus.Counter
	signalsSent     prometheus.Counter
	signalsDropped  prometheus.Counter
	syscalls        *prometheus.CounterVec
	virtqueuePackets *prometheus.CounterVec

	mu          sync.Mutex
	registered  bool
}

// NewPromObserver creates a PromObserver backed by m and registers its
// collectors with reg (pass prometheus.DefaultRegisterer for the global
// registry).
func NewPromObserver(m *Metrics, reg prometheus.Registerer) *PromObserver {
	p := &PromObserver{
		inner: NewMetricsObserver(m),
		contextSwitches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hermit",
			Name:      "context_switches_total",
			Help:      "Total scheduler context switches across all cores.",
		}),
		pageFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hermit",
			Name:      "page_faults_total",
			Help:      "Total page faults handled by the memory subsystem.",
		}),
		signalsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hermit",
			Name:      "signals_sent_total",
			Help:      "Total signals delivered via kill().",
		}),
		signalsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hermit",
			Name:      "signals_dropped_total",
			Help:      "Signals dropped because their target migrated off the expected core.",
		}),
		syscalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hermit",
			Name:      "syscalls_total",
			Help:      "Total syscalls dispatched, labeled by syscall number.",
		}, []string{"sysno"}),
		virtqueuePackets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hermit",
			Name:      "virtqueue_packets_total",
			Help:      "Total virtio-net packets processed, labeled by direction.",
		}, []string{"direction"}),
	}
	if reg != nil {
		reg.MustRegister(p.contextSwitches, p.pageFaults, p.signalsSent, p.signalsDropped, p.syscalls, p.virtqueuePackets)
		p.registered = true
	}
	return p
}

func (p *PromObserver) ObserveContextSwitch(core int) {
	p.inner.ObserveContextSwitch(core)
	p.contextSwitches.Inc()
}

func (p *PromObserver) ObservePageFault(core int) {
	p.inner.ObservePageFault(core)
	p.pageFaults.Inc()
}

func (p *PromObserver) ObserveSignalSent() {
	p.inner.ObserveSignalSent()
	p.signalsSent.Inc()
}

func (p *PromObserver) ObserveSignalDropped() {
	p.inner.ObserveSignalDropped()
	p.signalsDropped.Inc()
}

func (p *PromObserver) ObserveSyscall(n int32) {
	p.inner.ObserveSyscall(n)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.syscalls.WithLabelValues(syscallLabel(n)).Inc()
}

func (p *PromObserver) ObserveVirtqueuePacket(rx bool) {
	p.inner.ObserveVirtqueuePacket(rx)
	dir := "tx"
	if rx {
		dir = "rx"
	}
	p.virtqueuePackets.WithLabelValues(dir).Inc()
}

var _ Observer = (*PromObserver)(nil)

func syscallLabel(n int32) string {
	switch n {
	case 0:
		return "exit"
	case 1:
		return "read"
	case 2:
		return "write"
	case 3:
		return "open"
	case 4:
		return "close"
	case 5:
		return "sbrk"
	default:
		return "other"
	}
}

// Package ring is a generic submission/completion ring: a Ring/Result/Config
// shape addressing plain fd-addressed read/write/notify operations rather
// than any device-specific command format. It backs internal/transport's
// proxy control-channel socket I/O. The default build uses a pure-Go engine (minimal.go); an optional
// accelerated engine built on github.com/iceber/iouring-go is selected with
// the `giouring` build tag, gating the real io_uring engine behind the same
// interface.
package ring

import "errors"

// ErrRingFull is returned when a ring's submission queue has no free slot.
var ErrRingFull = errors.New("ring: submission queue full")

// Op identifies the kind of operation an SQE-equivalent Request performs.
type Op uint8

const (
	// OpRead reads from FD into Buf.
	OpRead Op = iota
	// OpWrite writes Buf to FD.
	OpWrite
	// OpNotify is a zero-payload doorbell kick — FD
	// identifies the notify port/eventfd, Buf is ignored.
	OpNotify
)

// Request is one submission queue entry: an fd, an operation, and the
// buffer it operates on.
type Request struct {
	Op       Op
	FD       int32
	Buf      []byte
	UserData uint64
}

// Result is the completion counterpart to a Request.
type Result struct {
	UserData uint64
	Value    int32 // bytes transferred, or 0 for a notify
	Err      error
}

// Config configures a new Ring.
type Config struct {
	// Entries bounds how many Requests may be in flight (queued async,
	// not yet drained) at once.
	Entries uint32
}

// Ring submits read/write/notify requests and reports their completions.
type Ring interface {
	// Close releases the ring's resources.
	Close() error

	// Submit performs req synchronously and returns its Result.
	Submit(req Request) (Result, error)

	// SubmitAsync enqueues req without waiting for completion — the
	// virtqueue TX/notify path's "sender does not wait for delivery"
	// contract.
	// Returns ErrRingFull if Entries in-flight slots are already used.
	SubmitAsync(req Request) error

	// Drain returns all completions produced by SubmitAsync calls since
	// the last Drain, blocking up to timeoutMs milliseconds if none are
	// yet ready (0 means return immediately with whatever is available).
	Drain(timeoutMs int) ([]Result, error)
}

// NewRing constructs the default pure-Go ring engine.
func NewRing(cfg Config) (Ring, error) {
	return newMinimalRing(cfg), nil
}

package ring

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// minimalRing is the pure-Go default engine: Submit performs the syscall
// directly (no real SQ/CQ memory mapping — there is nothing to map
// without a real io_uring_setup); SubmitAsync pushes the request onto a
// bounded channel a single background goroutine drains, giving callers
// the same "fire and forget, completions collected later" contract a real
// ring provides.
type minimalRing struct {
	cfg Config

	mu      sync.Mutex
	pending chan Request
	done    chan Result
	closed  bool
	wg      sync.WaitGroup
}

func newMinimalRing(cfg Config) *minimalRing {
	if cfg.Entries == 0 {
		cfg.Entries = 32
	}
	r := &minimalRing{
		cfg:     cfg,
		pending: make(chan Request, cfg.Entries),
		done:    make(chan Result, cfg.Entries),
	}
	r.wg.Add(1)
	go r.loop()
	return r
}

func (r *minimalRing) loop() {
	defer r.wg.Done()
	for req := range r.pending {
		res, err := r.perform(req)
		res.Err = err
		r.done <- res
	}
}

func (r *minimalRing) perform(req Request) (Result, error) {
	res := Result{UserData: req.UserData}
	switch req.Op {
	case OpRead:
		n, err := unix.Read(int(req.FD), req.Buf)
		res.Value = int32(n)
		return res, err
	case OpWrite:
		n, err := unix.Write(int(req.FD), req.Buf)
		res.Value = int32(n)
		return res, err
	case OpNotify:
		// A notify kick has no payload; writing a single zero-valued
		// counter matches the eventfd doorbell convention.
		var buf [8]byte
		n, err := unix.Write(int(req.FD), buf[:])
		res.Value = int32(n)
		return res, err
	default:
		return res, nil
	}
}

// Submit performs req synchronously, bypassing the async queue entirely.
func (r *minimalRing) Submit(req Request) (Result, error) {
	res, err := r.perform(req)
	res.Err = err
	return res, err
}

// SubmitAsync enqueues req for the background drain loop.
func (r *minimalRing) SubmitAsync(req Request) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return ErrRingFull
	}
	select {
	case r.pending <- req:
		return nil
	default:
		return ErrRingFull
	}
}

// Drain collects completions produced by SubmitAsync, waiting up to
// timeoutMs for at least one if none are immediately ready.
func (r *minimalRing) Drain(timeoutMs int) ([]Result, error) {
	var results []Result
	var timeout <-chan time.Time
	if timeoutMs > 0 {
		timer := time.NewTimer(time.Duration(timeoutMs) * time.Millisecond)
		defer timer.Stop()
		timeout = timer.C
	}

	if timeout != nil {
		select {
		case res := <-r.done:
			results = append(results, res)
		case <-timeout:
			return results, nil
		}
	} else {
		select {
		case res := <-r.done:
			results = append(results, res)
		default:
			return results, nil
		}
	}

	for {
		select {
		case res := <-r.done:
			results = append(results, res)
		default:
			return results, nil
		}
	}
}

// Close stops the drain goroutine and releases the ring.
func (r *minimalRing) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	close(r.pending)
	r.wg.Wait()
	close(r.done)
	return nil
}

package transport

import (
	"encoding/binary"
	"errors"
	"io"
	"net"

	"github.com/hermit-os/kernel/internal/ring"
	"github.com/hermit-os/kernel/internal/sysno"
	"github.com/hermit-os/kernel/internal/task"
	"github.com/hermit-os/kernel/internal/uapi"
)

// frameHeaderSize is the fixed part of a proxy syscall request: a syscall
// number, four x86-64-style integer argument slots, and a payload length.
const frameHeaderSize = 4 + 4*8 + 4

// ErrShortFrame is returned when the peer closes mid-frame.
var ErrShortFrame = errors.New("transport: short proxy frame")

// ProxyChannel is the TCP control channel proxy mode uses in place of
// uhyve's port I/O: after a handshake, it reads one syscall
// request frame at a time, dispatches it through a sysno.Table, and
// writes back the result. Socket I/O goes through internal/ring rather
// than conn.Read/Write directly, so the control channel always talks
// through the same submission/completion ring as every other I/O path
// instead of bare syscalls.
type ProxyChannel struct {
	conn   *net.TCPConn
	file   fileCloser
	fd     int32
	ring   ring.Ring
	table  *sysno.Table
	caller task.ID
}

// fileCloser narrows *os.File to what ProxyChannel needs, so tests can
// substitute a socketpair-backed fd without opening a real TCP listener.
type fileCloser interface {
	Close() error
}

// NewProxyChannel wraps an already-accepted TCP connection. caller is the
// task id every syscall arriving on this channel is attributed to — side-
// by-side proxy mode serves one guest context per connection.
func NewProxyChannel(conn *net.TCPConn, tbl *sysno.Table, caller task.ID) (*ProxyChannel, error) {
	f, err := conn.File()
	if err != nil {
		return nil, err
	}
	r, err := ring.NewRing(ring.Config{Entries: 16})
	if err != nil {
		f.Close()
		return nil, err
	}
	return &ProxyChannel{conn: conn, file: f, fd: int32(f.Fd()), ring: r, table: tbl, caller: caller}, nil
}

// Close releases the channel's ring and duplicated file descriptor.
func (p *ProxyChannel) Close() error {
	p.ring.Close()
	return p.file.Close()
}

func (p *ProxyChannel) readFull(buf []byte) error {
	off := 0
	for off < len(buf) {
		res, err := p.ring.Submit(ring.Request{Op: ring.OpRead, FD: p.fd, Buf: buf[off:]})
		if err != nil {
			return err
		}
		if res.Err != nil {
			return res.Err
		}
		if res.Value <= 0 {
			return ErrShortFrame
		}
		off += int(res.Value)
	}
	return nil
}

func (p *ProxyChannel) writeFull(buf []byte) error {
	off := 0
	for off < len(buf) {
		res, err := p.ring.Submit(ring.Request{Op: ring.OpWrite, FD: p.fd, Buf: buf[off:]})
		if err != nil {
			return err
		}
		if res.Err != nil {
			return res.Err
		}
		if res.Value <= 0 {
			return ErrShortFrame
		}
		off += int(res.Value)
	}
	return nil
}

// Handshake reads the proxy's initial argv/envp handshake frame and returns it.
func (p *ProxyChannel) Handshake() (*uapi.ProxyHandshake, error) {
	return uapi.DecodeProxyHandshake(&ringReader{p})
}

// ringReader adapts ProxyChannel's ring-backed readFull into io.Reader so
// uapi.DecodeProxyHandshake (written against io.Reader) can use it
// directly.
type ringReader struct{ p *ProxyChannel }

func (r *ringReader) Read(buf []byte) (int, error) {
	if err := r.p.readFull(buf); err != nil {
		if err == ErrShortFrame {
			return 0, io.EOF
		}
		return 0, err
	}
	return len(buf), nil
}

// ServeOne reads and dispatches exactly one syscall frame, returning
// io.EOF once the peer has closed the connection. Running it in a loop
// is the channel's main service loop.
func (p *ProxyChannel) ServeOne() error {
	header := make([]byte, frameHeaderSize)
	if err := p.readFull(header); err != nil {
		return err
	}

	sysNr := sysno.Number(int32(binary.LittleEndian.Uint32(header[0:4])))
	var ints [4]int64
	for i := 0; i < 4; i++ {
		ints[i] = int64(binary.LittleEndian.Uint64(header[4+8*i : 12+8*i]))
	}
	bufLen := binary.LittleEndian.Uint32(header[36:40])

	var payload []byte
	if bufLen > 0 {
		payload = make([]byte, bufLen)
		if err := p.readFull(payload); err != nil {
			return err
		}
	}

	ret, callErr := p.table.Dispatch(sysNr, sysno.Call{
		Caller: p.caller,
		Int:    ints,
		Buf:    payload,
		Path:   string(payload),
	})

	resp := make([]byte, 9)
	binary.LittleEndian.PutUint64(resp[0:8], uint64(ret))
	if callErr != nil {
		resp[8] = 1
	}
	return p.writeFull(resp)
}

// Serve runs ServeOne in a loop until the connection closes or ctx-less
// caller stops it by closing the channel from another goroutine.
func (p *ProxyChannel) Serve() error {
	for {
		if err := p.ServeOne(); err != nil {
			if err == io.EOF || err == ErrShortFrame {
				return nil
			}
			return err
		}
	}
}

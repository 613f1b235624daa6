// Package transport implements the two host-facing channels: the
// uhyve hypervisor's port-I/O protocol (internal/constants' UhyvePort*
// values) and the proxy mode TCP control channel. Both are thin wrappers
// around real host I/O, generalized from block-device reads/writes to the
// kernel's open/close/read/write/dup/stat syscalls.
package transport

import (
	"encoding/binary"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/hermit-os/kernel/internal/sysno"
	"github.com/hermit-os/kernel/internal/uapi"
	"github.com/hermit-os/kernel/internal/virtio"
)

// UhyveHost implements sysno.HostIO by forwarding guest file syscalls onto
// real host file descriptors. Guest-visible fds are small integers distinct from the
// host's own, mapped to host fds through an internal table.
type UhyveHost struct {
	mu   sync.Mutex
	fds  map[int32]int
	next int32
}

// NewUhyveHost creates a host-I/O forwarder with guest fds starting at 3
// (0, 1, 2 are reserved for stdio, matching any POSIX-shaped fd table).
func NewUhyveHost() *UhyveHost {
	return &UhyveHost{fds: map[int32]int{}, next: 3}
}

func (h *UhyveHost) allocate(hostFD int) int32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	gfd := h.next
	h.next++
	h.fds[gfd] = hostFD
	return gfd
}

func (h *UhyveHost) resolve(fd int32) (int, bool) {
	if fd >= 0 && fd <= 2 {
		return int(fd), true
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	hostFD, ok := h.fds[fd]
	return hostFD, ok
}

// Open implements sysno.HostIO.
func (h *UhyveHost) Open(path string, flags, mode int32) (int32, error) {
	hostFD, err := unix.Open(path, int(flags), uint32(mode))
	if err != nil {
		return -1, err
	}
	return h.allocate(hostFD), nil
}

// Close implements sysno.HostIO.
func (h *UhyveHost) Close(fd int32) error {
	h.mu.Lock()
	hostFD, ok := h.fds[fd]
	delete(h.fds, fd)
	h.mu.Unlock()
	if !ok {
		return unix.EBADF
	}
	return unix.Close(hostFD)
}

// Read implements sysno.HostIO.
func (h *UhyveHost) Read(fd int32, buf []byte) (int, error) {
	hostFD, ok := h.resolve(fd)
	if !ok {
		return 0, unix.EBADF
	}
	return unix.Read(hostFD, buf)
}

// Write implements sysno.HostIO.
func (h *UhyveHost) Write(fd int32, buf []byte) (int, error) {
	hostFD, ok := h.resolve(fd)
	if !ok {
		return 0, unix.EBADF
	}
	return unix.Write(hostFD, buf)
}

// Dup implements sysno.HostIO.
func (h *UhyveHost) Dup(fd int32) (int32, error) {
	hostFD, ok := h.resolve(fd)
	if !ok {
		return -1, unix.EBADF
	}
	newHostFD, err := unix.Dup(hostFD)
	if err != nil {
		return -1, err
	}
	return h.allocate(newHostFD), nil
}

// Stat implements sysno.HostIO: it writes the file size as a little-endian
// uint64 into buf, the minimum a guest libc stat() shim needs for st_size.
func (h *UhyveHost) Stat(path string, buf []byte) (int, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, err
	}
	if len(buf) < 8 {
		return 0, fmt.Errorf("transport: stat buffer too small")
	}
	binary.LittleEndian.PutUint64(buf[:8], uint64(st.Size))
	return 8, nil
}

// Lseek forwards a raw host seek for a previously opened guest fd; it is
// not part of sysno.HostIO but
// PortBus's UhyvePortLseek needs it directly.
func (h *UhyveHost) Lseek(fd int32, offset int64, whence int32) (int64, error) {
	hostFD, ok := h.resolve(fd)
	if !ok {
		return -1, unix.EBADF
	}
	return unix.Seek(hostFD, offset, int(whence))
}

var _ sysno.HostIO = (*UhyveHost)(nil)

// PortBus answers the uhyve port-I/O protocol: one method per
// reserved port, each taking the fixed part of its uapi request struct and
// returning it with the OUT/ret fields filled in, the same "struct in,
// struct mutated in place" contract the real port protocol uses. Variable-
// length payloads (a path string, a read/write buffer) are passed as an
// explicit parameter instead of resolved from a guest pointer field,
// since this simulation has no flat guest address space wired through
// transport for PortBus to chase a pointer into.
type PortBus struct {
	Host *UhyveHost
	Net  *virtio.Device

	mac [6]byte

	mu      sync.Mutex
	inbound [][]byte
}

// NewPortBus creates a PortBus forwarding file ports to host and netX
// ports to net. mac is the link address UhyvePortNetinfo reports.
func NewPortBus(host *UhyveHost, net *virtio.Device, mac [6]byte) *PortBus {
	b := &PortBus{Host: host, Net: net, mac: mac}
	if net != nil {
		net.Deliver = func(payload []byte) {
			b.mu.Lock()
			b.inbound = append(b.inbound, payload)
			b.mu.Unlock()
		}
	}
	return b
}

// Write answers UhyvePortWrite.
func (b *PortBus) Write(req *uapi.WriteRequest, data []byte) *uapi.WriteRequest {
	n, err := b.Host.Write(req.FD, data)
	if err != nil {
		req.RetOut = -1
	} else {
		req.RetOut = int32(n)
	}
	return req
}

// Open answers UhyvePortOpen.
func (b *PortBus) Open(req *uapi.OpenRequest, path string) *uapi.OpenRequest {
	fd, err := b.Host.Open(path, req.Flags, req.Mode)
	if err != nil {
		req.RetOut = -1
	} else {
		req.RetOut = fd
	}
	return req
}

// Close answers UhyvePortClose.
func (b *PortBus) Close(req *uapi.CloseRequest) *uapi.CloseRequest {
	if err := b.Host.Close(req.FD); err != nil {
		req.RetOut = -1
	} else {
		req.RetOut = 0
	}
	return req
}

// Read answers UhyvePortRead.
func (b *PortBus) Read(req *uapi.ReadRequest, buf []byte) *uapi.ReadRequest {
	n, err := b.Host.Read(req.FD, buf)
	if err != nil {
		req.RetOut = -1
	} else {
		req.RetOut = int32(n)
	}
	return req
}

// Lseek answers UhyvePortLseek.
func (b *PortBus) Lseek(req *uapi.LseekRequest) *uapi.LseekRequest {
	off, err := b.Host.Lseek(req.FD, req.Offset, req.Whence)
	if err != nil {
		req.RetOut = -1
	} else {
		req.RetOut = off
	}
	return req
}

// Netinfo answers UhyvePortNetinfo with the configured link address,
// formatted as a printable MAC string rather than raw bytes, since the
// request struct carries MAC as text.
func (b *PortBus) Netinfo(req *uapi.NetinfoRequest) *uapi.NetinfoRequest {
	s := fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x",
		b.mac[0], b.mac[1], b.mac[2], b.mac[3], b.mac[4], b.mac[5])
	copy(req.MAC[:], s)
	return req
}

// Netwrite answers UhyvePortNetwrite by handing payload to the virtqueue
// TX path.
func (b *PortBus) Netwrite(req *uapi.NetwriteRequest, payload []byte) *uapi.NetwriteRequest {
	if err := b.Net.Send(payload); err != nil {
		req.RetOut = -1
	} else {
		req.RetOut = int32(len(payload))
	}
	return req
}

// Netread answers UhyvePortNetread: it pops the oldest packet the
// virtqueue's RX drain delivered, if any. A nil second return means no
// packet was queued.
func (b *PortBus) Netread(req *uapi.NetreadRequest) (*uapi.NetreadRequest, []byte) {
	b.mu.Lock()
	var payload []byte
	if len(b.inbound) > 0 {
		payload = b.inbound[0]
		b.inbound = b.inbound[1:]
	}
	b.mu.Unlock()
	if payload == nil {
		req.RetOut = 0
		return req, nil
	}
	req.RetOut = int32(len(payload))
	return req, payload
}

// Netstat answers UhyvePortNetstat. This simulation's link is always up
// once a Device exists.
func (b *PortBus) Netstat(req *uapi.NetstatRequest) *uapi.NetstatRequest {
	if b.Net != nil {
		req.Status = 1
	}
	return req
}

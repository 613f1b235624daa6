// Package uapi holds the wire-format structures and constants for the
// external interfaces: the uhyve hypervisor port-I/O
// request structs, the proxy TCP control-channel handshake/syscall framing,
// and the Intel MultiProcessor floating-pointer structure used for
// bare-metal CPU enumeration. Every struct here is something a real host
// (uhyve, the proxy utility, BIOS firmware) reads or writes — this package
// specifies the contract, not the host side of it.
package uapi

import "github.com/hermit-os/kernel/internal/constants"

// Uhyve port-I/O request numbers. The guest writes the
// guest-physical address of the matching request struct to the port; the
// host fills in the OUT field(s) synchronously before returning.
const (
	PortWrite   = constants.UhyvePortWrite
	PortOpen    = constants.UhyvePortOpen
	PortClose   = constants.UhyvePortClose
	PortRead    = constants.UhyvePortRead
	PortExit    = constants.UhyvePortExit
	PortLseek   = constants.UhyvePortLseek
	PortNetinfo = constants.UhyvePortNetinfo
	PortNetwrite = constants.UhyvePortNetwrite
	PortNetread  = constants.UhyvePortNetread
	PortNetstat  = constants.UhyvePortNetstat
)

// Proxy TCP control channel.
const (
	ProxyMagic       = constants.ProxyMagic
	ProxyControlPort = constants.ProxyControlPort
)

// MPFloatingSignature is the 4-byte ASCII signature ("_MP_") that marks
// the start of an Intel MultiProcessor floating-pointer structure.
var MPFloatingSignature = [4]byte{'_', 'M', 'P', '_'}

// MPConfigSignature is the 4-byte signature ("PCMP") at the start of the
// MP configuration table the floating pointer structure usually points at.
var MPConfigSignature = [4]byte{'P', 'C', 'M', 'P'}

// Syscall request/response framing: both the uhyve
// direct-call path and the proxy's multiplexed TCP path identify a call by
// the same numeric table as internal/sysno.
const (
	SyscallHeaderSize = 4 // one int32 syscall number precedes every request
)

package hermit

import (
	"errors"
	"fmt"
	"syscall"
)

// Error is the kernel core's structured error type: an
// operation name, a high-level Code, the syscall.Errno it maps from (if
// any), and an optional wrapped cause.
type Error struct {
	Op    string   // Operation that failed (e.g. "Boot", "sysno.Dispatch")
	Core  int      // Core id involved, -1 if not applicable
	Code  Code     // High-level error category
	Errno syscall.Errno
	Msg   string
	Inner error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.Core >= 0 {
		parts = append(parts, fmt.Sprintf("core=%d", e.Core))
	}
	if e.Errno != 0 {
		parts = append(parts, fmt.Sprintf("errno=%d", e.Errno))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if len(parts) > 0 {
		return fmt.Sprintf("hermit: %s (%s)", msg, parts[0])
	}
	return fmt.Sprintf("hermit: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error { return e.Inner }

// Is reports whether target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// Code is a high-level error category.
type Code string

const (
	CodeInvalidArgument  Code = "invalid argument"
	CodeResourceExhausted Code = "resource exhausted"
	CodeNotFound         Code = "not found"
	CodePermission       Code = "permission denied"
	CodeTimeout          Code = "deadline exceeded"
	CodeUnsupported      Code = "not implemented"
	// CodeFatal marks a kernel-context exception (double-fault, NMI,
	// machine-check, or an unrecoverable page fault outside a known VMA).
	// internal/irq turns these into task termination rather than a
	// returned error; this code exists for logging and for callers that
	// observe the aftermath (e.g. a crash dump reader).
	CodeFatal Code = "fatal"
)

// NewError creates a structured error.
func NewError(op string, code Code, msg string) *Error {
	return &Error{Op: op, Core: -1, Code: code, Msg: msg}
}

// NewCoreError creates an error attributed to a specific core.
func NewCoreError(op string, core int, code Code, msg string) *Error {
	return &Error{Op: op, Core: core, Code: code, Msg: msg}
}

// WrapError wraps an existing error with kernel-core context, mapping a
// bare syscall.Errno the same way mapErrnoToCode does.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if he, ok := inner.(*Error); ok {
		return &Error{Op: op, Core: he.Core, Code: he.Code, Errno: he.Errno, Msg: he.Msg, Inner: he.Inner}
	}
	if errno, ok := inner.(syscall.Errno); ok {
		return &Error{Op: op, Core: -1, Code: mapErrnoToCode(errno), Errno: errno, Msg: errno.Error(), Inner: inner}
	}
	return &Error{Op: op, Core: -1, Code: CodeFatal, Msg: inner.Error(), Inner: inner}
}

// mapErrnoToCode maps a syscall errno to its error Code.
func mapErrnoToCode(errno syscall.Errno) Code {
	switch errno {
	case syscall.EINVAL:
		return CodeInvalidArgument
	case syscall.ENOMEM, syscall.ENOSPC, syscall.EOVERFLOW:
		return CodeResourceExhausted
	case syscall.ENOENT, syscall.ENODEV:
		return CodeNotFound
	case syscall.EACCES, syscall.EPERM:
		return CodePermission
	case syscall.ETIME, syscall.ETIMEDOUT:
		return CodeTimeout
	case syscall.ENOSYS:
		return CodeUnsupported
	default:
		return CodeFatal
	}
}

// IsCode reports whether err is a *Error (possibly wrapped) carrying code.
func IsCode(err error, code Code) bool {
	var herr *Error
	if errors.As(err, &herr) {
		return herr.Code == code
	}
	return false
}

// IsErrno reports whether err is a *Error (possibly wrapped) carrying errno.
func IsErrno(err error, errno syscall.Errno) bool {
	var herr *Error
	if errors.As(err, &herr) {
		return herr.Errno == errno
	}
	return false
}

package shallfs

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
)

// Error is a structured journal engine error with enough context to
// render a useful message and classify the failure programmatically.
type Error struct {
	Op     string        // operation that failed, e.g. "Mount", "Append"
	Device string        // device path or label, empty if not applicable
	Code   ErrorCode     // high-level error category
	Errno  syscall.Errno // kernel errno, 0 if not applicable
	Msg    string        // human-readable message
	Inner  error         // wrapped error
}

func (e *Error) Error() string {
	var parts []string

	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.Device != "" {
		parts = append(parts, fmt.Sprintf("device=%s", e.Device))
	}
	if e.Errno != 0 {
		parts = append(parts, fmt.Sprintf("errno=%d", e.Errno))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}

	if len(parts) > 0 {
		return fmt.Sprintf("shallfs: %s (%s)", msg, strings.Join(parts, ", "))
	}
	return fmt.Sprintf("shallfs: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is provides errors.Is support, comparing by Code.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// ErrorCode classifies a journal engine failure into a high-level
// category a caller can branch on without string-matching Msg.
type ErrorCode string

const (
	ErrCodeNotMounted       ErrorCode = "journal not mounted"
	ErrCodeAlreadyMounted   ErrorCode = "journal already mounted"
	ErrCodeDeviceTooSmall   ErrorCode = "device too small"
	ErrCodeInvalidSuper     ErrorCode = "superblock invalid or unrecoverable"
	ErrCodeUpdateInProgress ErrorCode = "superblock has an update in progress"
	ErrCodeRecordTooBig     ErrorCode = "record exceeds commit buffer size"
	ErrCodeInterrupted      ErrorCode = "operation interrupted"
	ErrCodeUnsupportedHash  ErrorCode = "data=hash requested but no hash implementation configured"
	ErrCodeIOError          ErrorCode = "I/O error"
	ErrCodeInvalidArgument  ErrorCode = "invalid argument"
)

// NewError creates a structured error with no device context.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// NewDeviceError creates a structured error scoped to a specific device.
func NewDeviceError(op, device string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Device: device, Code: code, Msg: msg}
}

// WrapError wraps inner with shallfs context. A plain syscall.Errno is
// classified via mapErrnoToCode; an existing *Error is passed through
// with its Op updated; anything else becomes a generic I/O error.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}

	if se, ok := inner.(*Error); ok {
		return &Error{
			Op:     op,
			Device: se.Device,
			Code:   se.Code,
			Errno:  se.Errno,
			Msg:    se.Msg,
			Inner:  se.Inner,
		}
	}

	if errno, ok := inner.(syscall.Errno); ok {
		return &Error{
			Op:    op,
			Code:  mapErrnoToCode(errno),
			Errno: errno,
			Msg:   errno.Error(),
			Inner: inner,
		}
	}

	return &Error{Op: op, Code: ErrCodeIOError, Msg: inner.Error(), Inner: inner}
}

func mapErrnoToCode(errno syscall.Errno) ErrorCode {
	switch errno {
	case syscall.ENOENT:
		return ErrCodeNotMounted
	case syscall.EBUSY:
		return ErrCodeUpdateInProgress
	case syscall.EINVAL, syscall.E2BIG:
		return ErrCodeInvalidArgument
	default:
		return ErrCodeIOError
	}
}

// IsCode reports whether err is a *Error carrying the given code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsErrno reports whether err is a *Error carrying the given errno.
func IsErrno(err error, errno syscall.Errno) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Errno == errno
	}
	return false
}

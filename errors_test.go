package shallfs

import (
	"errors"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewErrorMessage(t *testing.T) {
	err := NewError("Mount", ErrCodeDeviceTooSmall, "device is too small")
	assert.Equal(t, "shallfs: device is too small (op=Mount)", err.Error())
}

func TestNewDeviceErrorIncludesDevice(t *testing.T) {
	err := NewDeviceError("Mount", "/dev/sdb1", ErrCodeInvalidSuper, "bad superblock")
	assert.Contains(t, err.Error(), "op=Mount")
	assert.Contains(t, err.Error(), "device=/dev/sdb1")
}

func TestWrapErrorPassesThroughStructuredError(t *testing.T) {
	inner := NewError("Append", ErrCodeRecordTooBig, "too big")
	wrapped := WrapError("Mount", inner)
	assert.Equal(t, "Mount", wrapped.Op)
	assert.Equal(t, ErrCodeRecordTooBig, wrapped.Code)
}

func TestWrapErrorMapsErrno(t *testing.T) {
	wrapped := WrapError("Mount", syscall.EBUSY)
	assert.Equal(t, ErrCodeUpdateInProgress, wrapped.Code)
	assert.Equal(t, syscall.EBUSY, wrapped.Errno)
}

func TestWrapErrorNilIsNil(t *testing.T) {
	assert.Nil(t, WrapError("Mount", nil))
}

func TestIsCodeMatchesWrappedError(t *testing.T) {
	err := NewError("Append", ErrCodeRecordTooBig, "too big")
	assert.True(t, IsCode(err, ErrCodeRecordTooBig))
	assert.False(t, IsCode(err, ErrCodeIOError))
}

func TestIsErrnoMatchesWrappedError(t *testing.T) {
	err := WrapError("Mount", syscall.ENOENT)
	assert.True(t, IsErrno(err, syscall.ENOENT))
}

func TestErrorIsComparesByCode(t *testing.T) {
	a := NewError("Mount", ErrCodeNotMounted, "x")
	b := NewError("Unmount", ErrCodeNotMounted, "y")
	assert.True(t, errors.Is(a, b))
}

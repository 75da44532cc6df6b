// Package ioring abstracts block-device I/O for the journal engine: a
// plain unix-syscall-backed file device for the default build, a
// sharded-lock memory device for tests, and an optional io_uring-backed
// fast path built with -tags giouring.
package ioring

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/gladserv/shallfs/internal/logging"
)

// Device is the minimal block-device surface the journal engine needs:
// positioned reads and writes plus a durability barrier.
type Device interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Sync() error
	Size() int64
	Close() error
}

// FileDevice is the default Device implementation, backed directly by
// pread/pwrite/fdatasync on an open file descriptor.
type FileDevice struct {
	f    *os.File
	size int64
}

// OpenFile opens path for exclusive read-write access as a journal
// device. The caller is responsible for having formatted the device
// first; OpenFile does not write a superblock.
func OpenFile(path string) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	size := info.Size()
	if size == 0 {
		// Block devices report 0 from Stat; fall back to seek-to-end.
		if end, serr := f.Seek(0, os.SEEK_END); serr == nil {
			size = end
		}
	}

	logging.Default().Debug("opened journal device", "path", path, "size", size)

	return &FileDevice{f: f, size: size}, nil
}

func (d *FileDevice) ReadAt(p []byte, off int64) (int, error) {
	return d.f.ReadAt(p, off)
}

func (d *FileDevice) WriteAt(p []byte, off int64) (int, error) {
	return d.f.WriteAt(p, off)
}

func (d *FileDevice) Sync() error {
	return unix.Fdatasync(int(d.f.Fd()))
}

func (d *FileDevice) Size() int64 {
	return d.size
}

func (d *FileDevice) Close() error {
	unix.Flock(int(d.f.Fd()), unix.LOCK_UN)
	return d.f.Close()
}

// Fd exposes the raw file descriptor for the giouring fast path.
func (d *FileDevice) Fd() uintptr {
	return d.f.Fd()
}

var _ Device = (*FileDevice)(nil)

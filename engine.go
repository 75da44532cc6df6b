// Package shallfs implements the SHALLFS journal engine: a ring-buffered,
// self-describing, checksummed append-only log meant to sit underneath a
// filesystem's VFS glue and record every operation for crash recovery,
// auditing, or replication. This package owns the engine lifecycle
// (Mount/Unmount), the producer API (Append), the consumer API (Drain,
// Discard), and the administrative control channel (Commit plus the
// commit/clear/userlog commands in internal/reader); the on-disk codec,
// ring addressing, commit state machine, overflow controller, and
// consumer cursor discipline live in the internal/ packages this wraps.
package shallfs

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/sys/unix"

	"github.com/gladserv/shallfs/internal/commit"
	"github.com/gladserv/shallfs/internal/ioring"
	"github.com/gladserv/shallfs/internal/layout"
	"github.com/gladserv/shallfs/internal/logging"
	"github.com/gladserv/shallfs/internal/reader"
	"github.com/gladserv/shallfs/internal/record"
	"github.com/gladserv/shallfs/internal/registry"
	"github.com/gladserv/shallfs/internal/wire"
)

// *MetricsObserver satisfies commit.Observer structurally (ObserveFlush's
// signature matches); commit.Config.Observer accepts it without this
// package importing commit's Observer type anywhere else.
var _ commit.Observer = (*MetricsObserver)(nil)

// Engine is one mounted journal: a commit engine plus the consumer
// reader and admin surface wrapped around it.
type Engine struct {
	dev  ioring.Device
	path string
	id   registry.ID

	alignment uint32

	commit *commit.Engine
	reader *reader.Reader

	metrics  *Metrics
	observer Observer

	opts MountOptions
}

// Mount opens (or adopts, via opts.Device) a journal device, selects its
// active superblock per spec §4.1, and starts the commit engine's
// background flush task. The returned Engine must eventually be passed
// to Unmount.
func Mount(ctx context.Context, path string, opts MountOptions) (*Engine, error) {
	if opts.CommitSize <= 0 {
		return nil, NewError("Mount", ErrCodeInvalidArgument, "CommitSize must be positive")
	}

	dev := opts.Device
	var id registry.ID
	if dev == nil {
		f, err := ioring.OpenFile(path)
		if err != nil {
			return nil, WrapError("Mount", err)
		}
		dev = f
		id = idForPath(path)
	} else {
		id = registry.IDFromCounter()
	}

	size := dev.Size()
	if size < wire.MinDeviceSize {
		return nil, NewDeviceError("Mount", path, ErrCodeDeviceTooSmall, fmt.Sprintf("device is %d bytes, minimum is %d", size, wire.MinDeviceSize))
	}

	sb, idx, err := layout.Select(dev, size)
	if err != nil {
		return nil, mountSelectError(path, err)
	}

	metrics := NewMetrics()
	observer := opts.Observer
	if observer == nil {
		observer = NewMetricsObserver(metrics)
	}

	cfg := commit.Config{
		Device:         dev,
		DeviceSize:     size,
		DataSpace:      sb.DataSpace,
		DataStart:      sb.DataStart,
		DataLength:     sb.DataLength,
		MaxLength:      sb.MaxLength,
		Version:        sb.Version,
		NumSuperblocks: sb.NumSuperblocks,
		LastSBWritten:  idx,
		Alignment:      sb.Alignment,
		CommitSize:     opts.CommitSize,
		CommitInterval: opts.CommitInterval,
		SyncOnCommit:   opts.SyncOnCommit,
		Policy:         opts.OverflowPolicy,
		Observer:       observer,
	}

	ce := commit.New(cfg)

	if err := registry.Default.Register(id, ce); err != nil {
		return nil, WrapError("Mount", err)
	}

	ce.Start()

	eng := &Engine{
		dev:       dev,
		path:      path,
		id:        id,
		alignment: sb.Alignment,
		commit:    ce,
		reader:    reader.New(ce),
		metrics:   metrics,
		observer:  observer,
		opts:      opts,
	}

	logging.Default().Info("journal mounted", "path", path, "data_space", sb.DataSpace, "superblocks", sb.NumSuperblocks)

	mountRec, merr := record.Encode(wire.OpMount, 0, sb.Alignment, opts.CommitSize, time.Now(), record.Fields{})
	if merr == nil {
		_ = ce.Append(ctx, mountRec)
	}

	return eng, nil
}

func mountSelectError(path string, err error) error {
	switch err {
	case layout.ErrUpdateInProgress:
		return NewDeviceError("Mount", path, ErrCodeUpdateInProgress, "an update is in progress; run repair before mounting")
	case layout.ErrNoValidSuperblock, layout.ErrInvalidSuperblock:
		return NewDeviceError("Mount", path, ErrCodeInvalidSuper, err.Error())
	default:
		return WrapError("Mount", err)
	}
}

// idForPath tries to derive a real (major, minor) device identifier from
// path's backing store; if that fails (a plain file rather than a block
// device) it falls back to a synthetic, process-local identifier.
func idForPath(path string) registry.ID {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err == nil && st.Mode&unix.S_IFMT == unix.S_IFBLK {
		rdev := uint64(st.Rdev)
		return registry.ID{Major: unix.Major(rdev), Minor: unix.Minor(rdev)}
	}
	return registry.IDFromCounter()
}

// Append serializes one log record and appends it to the commit buffer,
// per spec §4.2/§4.4; a later flush writes it to the device. ctx
// cancellation can interrupt a blocked append (overflow WAIT policy, or
// remount quiescing the engine).
func (e *Engine) Append(ctx context.Context, op wire.Operation, result int32, fields record.Fields) error {
	rec, err := record.Encode(op, result, e.alignment, e.opts.CommitSize, time.Now(), fields)
	if err != nil {
		if err == record.ErrTooBig {
			required := uint64(e.opts.CommitSize)
			if full, ferr := record.Encode(op, result, e.alignment, math.MaxInt, time.Now(), fields); ferr == nil {
				required = uint64(len(full))
			}
			rec = record.EncodeTooBigMarker(e.alignment, time.Now(), required)
		} else {
			e.observer.ObserveAppend(0, false)
			return WrapError("Append", err)
		}
	}

	appendErr := e.commit.Append(ctx, rec)
	e.observer.ObserveAppend(uint64(len(rec)), appendErr == nil)
	if appendErr != nil {
		return WrapError("Append", appendErr)
	}
	return nil
}

// Drain decodes and returns currently-available records -- on-device
// and still-buffered, at most 64 KiB of them per call -- blocking until
// at least one is available or ctx is cancelled.
func (e *Engine) Drain(ctx context.Context) ([]*record.Record, error) {
	recs, err := e.reader.Drain(ctx)
	var drained uint64
	for _, r := range recs {
		drained += uint64(r.Header.NextHeader)
	}
	e.observer.ObserveDrain(drained, len(recs), err == nil)
	if err != nil {
		return nil, WrapError("Drain", err)
	}
	return recs, nil
}

// Discard implements the "clear <N>" admin command: skip up to maxBytes
// of committed records without decoding them.
func (e *Engine) Discard(maxBytes uint64) (uint64, error) {
	n, err := e.reader.Discard(maxBytes)
	if err != nil {
		return n, WrapError("Discard", err)
	}
	return n, nil
}

// Userlog appends a USERLOG record carrying text (<=128 bytes) as FILE1,
// implementing the "userlog <text>" admin command.
func (e *Engine) Userlog(ctx context.Context, text string) error {
	if len(text) > reader.MaxUserlogText {
		return NewError("Userlog", ErrCodeInvalidArgument, "text exceeds 128 bytes")
	}
	return e.Append(ctx, wire.OpUserlog, 0, record.Fields{File1: []byte(text)})
}

// Commit forces a synchronous flush, implementing the "commit" admin
// command.
func (e *Engine) Commit() error {
	if err := e.commit.Commit(nil); err != nil {
		return WrapError("Commit", err)
	}
	return nil
}

// Metrics returns the engine's live metrics.
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// MetricsSnapshot returns a point-in-time snapshot of the engine's
// metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return e.metrics.Snapshot()
}

// State is a read-only snapshot of the engine's on-disk bookkeeping.
func (e *Engine) State() commit.State {
	return e.commit.Snapshot()
}

// Unmount performs a clean shutdown: appends an UMOUNT record, forces a
// final flush, writes a consistent image across a spread of superblocks
// (so a later mount never needs a dirty-scan), stops the background
// commit task, and closes the device.
func Unmount(ctx context.Context, e *Engine) error {
	if e == nil {
		return NewError("Unmount", ErrCodeInvalidArgument, "nil engine")
	}

	umountRec, err := record.Encode(wire.OpUmount, 0, e.alignment, e.opts.CommitSize, time.Now(), record.Fields{})
	if err == nil {
		_ = e.commit.Append(ctx, umountRec)
	}

	if err := e.commit.Commit(nil); err != nil {
		logging.Default().Error("final commit failed during unmount", "err", err)
	} else if err := e.commit.FinalizeClean(); err != nil {
		logging.Default().Error("clean superblock spread failed during unmount", "err", err)
	}

	e.commit.Invalidate()
	e.commit.Stop()
	registry.Default.Unregister(e.id)
	e.metrics.Stop()

	if err := e.dev.Close(); err != nil {
		return WrapError("Unmount", err)
	}
	return nil
}

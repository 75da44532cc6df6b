package reader

import (
	"fmt"

	"github.com/gladserv/shallfs/internal/ioring"
	"github.com/gladserv/shallfs/internal/layout"
	"github.com/gladserv/shallfs/internal/logging"
	"github.com/gladserv/shallfs/internal/record"
	"github.com/gladserv/shallfs/internal/ringaddr"
	"github.com/gladserv/shallfs/internal/wire"
)

// ExitCode mirrors the fsck tool's exit status bitmask from spec §6.
// Codes are independent bits so a run can report e.g. "corrected" and
// "uncorrected" together (some defects fixed, some not).
type ExitCode int

const (
	ExitOK               ExitCode = 0
	ExitCorrected        ExitCode = 1
	ExitRebootNeeded     ExitCode = 2
	ExitUncorrected      ExitCode = 4
	ExitOperationalError ExitCode = 8
	ExitUsage            ExitCode = 16
	ExitCancelled        ExitCode = 32
)

// RepairOptions configures a Repair run.
type RepairOptions struct {
	// ScanRecords, if true, performs the optional second pass: streaming
	// through the data region parsing record headers. The pass stops at
	// the first record that fails to decode and reports it as
	// uncorrected; it does not rewrite or replace the bad record.
	ScanRecords bool
}

// Repair implements the out-of-mount recovery/fsck path of spec §4.6:
// select a superblock (scanning alternates and preferring the
// greatest-version superblock if the chosen one is dirty), refuse on an
// in-progress resize, fix the defects layout.Fixable covers, and write a
// consistent VALID,!DIRTY image back to every superblock slot.
func Repair(dev ioring.Device, physicalSize int64, opts RepairOptions) (ExitCode, error) {
	sb, _, err := layout.Select(dev, physicalSize)
	if err != nil {
		switch err {
		case layout.ErrUpdateInProgress:
			return ExitRebootNeeded, fmt.Errorf("reader: device has an update in progress; complete the resize before repairing: %w", err)
		case layout.ErrNoValidSuperblock:
			return ExitOperationalError, fmt.Errorf("reader: no valid superblock found: %w", err)
		default:
			return ExitOperationalError, err
		}
	}

	flags := layout.CheckSuperblock(sb, physicalSize)
	corrected := false
	uncorrected := false

	if flags != 0 {
		if unfixable := flags &^ layout.Fixable; unfixable != 0 {
			uncorrected = true
			logging.Default().Error("unfixable superblock defects", "flags", unfixable)
		}
		if fixable := flags & layout.Fixable; fixable != 0 {
			fixSuperblock(sb, fixable, physicalSize)
			corrected = true
		}
	}

	sb.Flags = wire.FlagValid
	for n := uint32(0); n < sb.NumSuperblocks; n++ {
		if err := layout.WriteSuperblock(dev, sb, n, false); err != nil {
			return ExitOperationalError, fmt.Errorf("reader: writing superblock %d: %w", n, err)
		}
	}
	if err := dev.Sync(); err != nil {
		return ExitOperationalError, fmt.Errorf("reader: sync: %w", err)
	}

	if opts.ScanRecords {
		fixed, scanErr := scanAndRepairRecords(dev, sb)
		if scanErr != nil {
			uncorrected = true
			logging.Default().Error("record scan stopped early", "err", scanErr)
		}
		if fixed > 0 {
			corrected = true
		}
	}

	var code ExitCode
	if corrected {
		code |= ExitCorrected
	}
	if uncorrected {
		code |= ExitUncorrected
	}
	return code, nil
}

// fixSuperblock corrects the subset of defects flags (already masked to
// layout.Fixable) that Repair found.
func fixSuperblock(sb *wire.SuperBlock, flags layout.CheckFlags, physicalSize int64) {
	if flags&layout.NoValid != 0 {
		sb.Flags |= wire.FlagValid
	}
	if flags&layout.DataSpace != 0 {
		sb.DataSpace = sb.DeviceSize - wire.BlockSize*uint64(sb.NumSuperblocks)
	}
	if flags&layout.MaxLength != 0 {
		if sb.MaxLength < sb.DataLength {
			sb.MaxLength = sb.DataLength
		}
		if sb.MaxLength > sb.DataSpace {
			sb.MaxLength = sb.DataSpace
		}
	}
	if flags&layout.Alignment != 0 {
		sb.Alignment = 8
	}
	if flags&layout.LastSB != 0 {
		for sb.NumSuperblocks > 9 && wire.ByteOffset(sb.NumSuperblocks-1)+wire.SuperblockSize > uint64(physicalSize) {
			sb.NumSuperblocks--
		}
	}
	if flags&layout.Flags != 0 {
		sb.Flags &= wire.FlagValid | wire.FlagDirty | wire.FlagUpdate
	}
}

// scanAndRepairRecords streams the data region from data_start,
// decoding each record header in turn. On a decode failure it stops the
// scan and returns an error naming the offset of the bad record. It
// never writes to the device, so the returned count of fixed records is
// always 0; nothing splices a marker over the bad span or resumes past
// it.
func scanAndRepairRecords(dev ioring.Device, sb *wire.SuperBlock) (int, error) {
	ptr := ringaddr.Map(sb.DataStart, sb.NumSuperblocks)
	maxBlock := sb.DeviceSize/wire.BlockSize - 1

	var consumed uint64
	fixed := 0
	for consumed < sb.DataLength {
		remaining := sb.DataLength - consumed
		readLen := uint64(wire.BlockSize)
		if readLen > remaining {
			readLen = remaining
		}

		var rec *record.Record
		var n int
		for {
			buf := make([]byte, readLen)
			if err := readAtRing(dev, ptr, maxBlock, uint32(sb.NumSuperblocks), buf); err != nil {
				return fixed, err
			}

			var derr error
			rec, n, derr = record.Decode(buf)
			if derr == nil {
				break
			}
			// A record's maximum size is bounded by commit_size, not by
			// one block (e.g. a large ACL/XATTR payload) -- grow the
			// scratch read and retry rather than calling it corrupt.
			if derr == record.ErrShortRecord && readLen < remaining {
				readLen *= 2
				if readLen > remaining {
					readLen = remaining
				}
				continue
			}
			return fixed, fmt.Errorf("reader: record scan: corrupt record at offset %d: %w", consumed, derr)
		}

		_ = rec
		consumed += uint64(n)
		ptr = advanceRing(ptr, uint64(n), maxBlock, uint32(sb.NumSuperblocks))
	}
	return fixed, nil
}

func readAtRing(dev ioring.Device, ptr ringaddr.Pointer, maxBlock uint64, numSuperblocks uint32, dst []byte) error {
	pos := 0
	cur := ptr
	for pos < len(dst) {
		avail := wire.BlockSize - int(cur.OffsetInBlock)
		n := avail
		if n > len(dst)-pos {
			n = len(dst) - pos
		}
		physOff := int64(cur.Block*wire.BlockSize + uint64(cur.OffsetInBlock))
		if _, err := dev.ReadAt(dst[pos:pos+n], physOff); err != nil {
			return err
		}
		pos += n
		if int(cur.OffsetInBlock)+n == wire.BlockSize {
			cur.Block = ringaddr.IncBlock(cur.Block, numSuperblocks, maxBlock)
			cur.OffsetInBlock = 0
		} else {
			cur.OffsetInBlock += uint32(n)
		}
	}
	return nil
}

func advanceRing(ptr ringaddr.Pointer, n uint64, maxBlock uint64, numSuperblocks uint32) ringaddr.Pointer {
	remaining := n
	for remaining > 0 {
		avail := uint64(wire.BlockSize) - uint64(ptr.OffsetInBlock)
		step := avail
		if step > remaining {
			step = remaining
		}
		if uint64(ptr.OffsetInBlock)+step == wire.BlockSize {
			ptr.Block = ringaddr.IncBlock(ptr.Block, numSuperblocks, maxBlock)
			ptr.OffsetInBlock = 0
		} else {
			ptr.OffsetInBlock += uint32(step)
		}
		remaining -= step
	}
	return ptr
}

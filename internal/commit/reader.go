package commit

import (
	"github.com/gladserv/shallfs/internal/ioring"
	"github.com/gladserv/shallfs/internal/record"
	"github.com/gladserv/shallfs/internal/ringaddr"
	"github.com/gladserv/shallfs/internal/wire"
)

// ReadRecords implements the Consumer Reader's drain per spec §2/§4.6:
// it drains committed-on-device data first, then the uncommitted tail
// of the in-memory commit buffer. A record delivered from the buffer
// tail retires from it immediately, so it is never written to the
// device by a later flush and never re-delivered by a later read.
//
// On a CRC failure at the very first record, the cursor is restored and
// the error is returned. A CRC failure after at least one record has
// been delivered truncates the read at that point, leaving the cursor
// on the bad record for a future retry (spec §4.6, §7).
func (e *Engine) ReadRecords(out []byte) (int, error) {
	total, err := e.readRecordsLocked(out)
	if total > 0 {
		// Recover locks e.mu itself, so it must run after we've released it.
		e.Recover()
	}
	return total, err
}

func (e *Engine) readRecordsLocked(out []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	savedStartPtr := e.startPtr
	savedDataStart := e.dataStart
	savedDataLength := e.dataLength
	savedCommitted := e.committed
	savedBufferRead := e.bufferRead

	total := 0
	for e.committed > 0 {
		readLen := e.committed
		if readLen > uint64(e.commitSize) {
			readLen = uint64(e.commitSize)
		}
		scratch := make([]byte, readLen)
		if err := e.readDeviceBytesLocked(scratch, e.startPtr); err != nil {
			e.restoreReadCursor(savedStartPtr, savedDataStart, savedDataLength, savedCommitted)
			return 0, err
		}

		rec, consumed, derr := record.Decode(scratch)
		if derr != nil {
			if total == 0 {
				e.restoreReadCursor(savedStartPtr, savedDataStart, savedDataLength, savedCommitted)
				return 0, derr
			}
			break
		}
		_ = rec

		if total+consumed > len(out) {
			break
		}

		copy(out[total:total+consumed], scratch[:consumed])
		total += consumed
		e.advanceReadLocked(uint64(consumed))
	}

	// Once the on-device backlog is exhausted, keep draining straight out
	// of the in-memory buffer's unflushed tail (spec §2/§4.6): those
	// bytes haven't reached the ring yet, so this is a memcpy rather than
	// a device read. Consuming a record here retires it from the buffer
	// (advances buffer_read) so flush_buffer never re-writes, and no
	// reader ever re-delivers, what was already handed out.
	for e.committed == 0 && e.bufferRead < e.bufferWritten {
		tail := e.buffer[e.bufferRead:e.bufferWritten]
		rec, consumed, derr := record.Decode(tail)
		if derr != nil {
			if total == 0 {
				e.restoreReadCursor(savedStartPtr, savedDataStart, savedDataLength, savedCommitted)
				e.bufferRead = savedBufferRead
				return 0, derr
			}
			break
		}
		_ = rec

		if total+consumed > len(out) {
			break
		}

		copy(out[total:total+consumed], tail[:consumed])
		total += consumed
		e.bufferRead += consumed
		e.dataLength -= uint64(consumed)
	}

	if e.committed == 0 && e.bufferWritten == e.bufferRead {
		e.someData.Store(false)
	}

	return total, nil
}

// Discard implements delete-without-reading (the "clear <N>" admin
// command): it skips whole committed records until the next record would
// push the discarded total past maxBytes, per spec §4.6 ("a partial
// record at the tail is not consumed").
func (e *Engine) Discard(maxBytes uint64) (uint64, error) {
	discarded, err := e.discardLocked(maxBytes)
	if discarded > 0 {
		e.Recover()
	}
	return discarded, err
}

func (e *Engine) discardLocked(maxBytes uint64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var discarded uint64
	for discarded < maxBytes && e.committed > 0 {
		readLen := e.committed
		if readLen > uint64(e.commitSize) {
			readLen = uint64(e.commitSize)
		}
		scratch := make([]byte, readLen)
		if err := e.readDeviceBytesLocked(scratch, e.startPtr); err != nil {
			return discarded, err
		}
		_, consumed, derr := record.Decode(scratch)
		if derr != nil {
			break
		}
		if discarded+uint64(consumed) > maxBytes {
			break
		}
		discarded += uint64(consumed)
		e.advanceReadLocked(uint64(consumed))
	}

	if e.committed == 0 && e.bufferWritten == e.bufferRead {
		e.someData.Store(false)
	}

	return discarded, nil
}

func (e *Engine) restoreReadCursor(ptr ringaddr.Pointer, dataStart, dataLength, committed uint64) {
	e.startPtr = ptr
	e.dataStart = dataStart
	e.dataLength = dataLength
	e.committed = committed
}

// advanceReadLocked moves the read cursor forward by n bytes, mirroring
// the block-walking logic of flushBufferLocked but for the consumer
// side.
func (e *Engine) advanceReadLocked(n uint64) {
	remaining := n
	for remaining > 0 {
		avail := uint64(wire.BlockSize) - uint64(e.startPtr.OffsetInBlock)
		step := avail
		if step > remaining {
			step = remaining
		}
		if uint64(e.startPtr.OffsetInBlock)+step == wire.BlockSize {
			e.startPtr.Block = ringaddr.IncBlock(e.startPtr.Block, e.numSuperblocks, e.maxBlock)
			e.startPtr.OffsetInBlock = 0
		} else {
			e.startPtr.OffsetInBlock += uint32(step)
		}
		remaining -= step
	}

	e.dataStart = (e.dataStart + n) % orOne(e.dataSpace)
	e.dataLength -= n
	e.committed -= n
}

// readDeviceBytesLocked reads len(dst) bytes starting at the physical
// block/offset described by ptr, walking blocks (and skipping
// superblocks, via ringaddr.IncBlock) without mutating e's cursors. The
// per-block reads are queued into one ioring.Batch and submitted
// together rather than issued as separate syscalls.
func (e *Engine) readDeviceBytesLocked(dst []byte, ptr ringaddr.Pointer) error {
	batch := ioring.NewBatch(e.dev)
	pos := 0
	cur := ptr
	for pos < len(dst) {
		avail := wire.BlockSize - int(cur.OffsetInBlock)
		n := avail
		if n > len(dst)-pos {
			n = len(dst) - pos
		}
		physOff := int64(cur.Block*wire.BlockSize + uint64(cur.OffsetInBlock))
		batch.QueueRead(dst[pos:pos+n], physOff)
		pos += n
		if int(cur.OffsetInBlock)+n == wire.BlockSize {
			cur.Block = ringaddr.IncBlock(cur.Block, e.numSuperblocks, e.maxBlock)
			cur.OffsetInBlock = 0
		} else {
			cur.OffsetInBlock += uint32(n)
		}
	}
	return batch.Submit()
}

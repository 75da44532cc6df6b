// Package ringaddr translates between a logical offset into the journal's
// data space and the physical device block that holds it, skipping over
// the interleaved superblock blocks. This is the only package that knows
// the ring's topology; the commit engine, overflow controller, and
// consumer reader all go through it rather than computing block math
// themselves.
package ringaddr

import "github.com/gladserv/shallfs/internal/wire"

// Pointer is a physical cursor into the ring: the device block currently
// addressed, the byte offset within that block, and enough bookkeeping
// to know how many superblocks have been skipped so far.
type Pointer struct {
	Block           uint64 // physical device-block index
	OffsetInBlock   uint32 // byte offset within Block
	SuperblocksSeen uint32 // number of superblock blocks skipped to reach Block
}

// Map computes the physical pointer for logical offset p within a data
// space of the given size, governed by num superblocks whose locations
// follow wire.Location. p must satisfy 0 <= p < dataSpace.
//
// Because wire.Location(n) = 16n^2+4n grows quadratically, the interval
// between consecutive superblock blocks grows too, so the mapping walks
// nsb upward from 1, subtracting each interval's data-block count from
// the remaining offset until it fits in the current interval.
func Map(p uint64, num uint32) Pointer {
	// Blocks [1, wire.Location(1)) are pure data (block 0 holds superblock 0).
	block := uint64(1)
	nsb := uint32(1)

	for {
		var intervalEnd uint64
		if nsb < num {
			intervalEnd = wire.Location(nsb)
		} else {
			// Past the last superblock: the interval runs to device end,
			// which callers bound via dataSpace; Map never needs to know
			// the absolute device size because p is already clamped to
			// dataSpace by the caller.
			intervalEnd = block + p + 1
		}

		dataBlocksInInterval := intervalEnd - block // blocks (block..intervalEnd) that are all data
		bytesInInterval := dataBlocksInInterval * wire.BlockSize

		if p < bytesInInterval {
			blockOffset := p / wire.BlockSize
			return Pointer{
				Block:           block + blockOffset,
				OffsetInBlock:   uint32(p % wire.BlockSize),
				SuperblocksSeen: nsb,
			}
		}

		p -= bytesInInterval
		block = intervalEnd + 1 // skip the superblock block itself
		nsb++
	}
}

// IncBlock advances a physical block pointer by one device block,
// automatically skipping over the next superblock block, and wrapping to
// block 1 once it passes the last usable block (maxBlock, inclusive).
func IncBlock(block uint64, num uint32, maxBlock uint64) uint64 {
	next := block + 1

	// If next lands on a superblock-holding block, skip it.
	for n := uint32(0); n < num; n++ {
		if wire.Location(n) == next {
			next++
			break
		}
	}

	if next > maxBlock {
		next = 1
	}
	return next
}

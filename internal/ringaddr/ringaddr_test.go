package ringaddr

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gladserv/shallfs/internal/wire"
)

func TestMapSkipsFirstSuperblock(t *testing.T) {
	p := Map(0, 9)
	assert.Equal(t, uint64(1), p.Block)
	assert.Equal(t, uint32(0), p.OffsetInBlock)
}

func TestMapWithinFirstInterval(t *testing.T) {
	p := Map(wire.BlockSize*5, 9)
	assert.Equal(t, uint64(6), p.Block)
	assert.Equal(t, uint32(0), p.OffsetInBlock)
}

func TestMapCrossesSuperblockBoundary(t *testing.T) {
	// wire.Location(1) == 20, so blocks [1,19] are the first data
	// interval (19 blocks). Offset 19*BlockSize lands just past it, in
	// the interval starting after the superblock at block 20.
	p := Map(uint64(19)*wire.BlockSize, 9)
	assert.Equal(t, uint64(21), p.Block)
	assert.Equal(t, uint32(2), p.SuperblocksSeen)
}

func TestIncBlockSkipsSuperblock(t *testing.T) {
	// block 19 -> next is 20, which is wire.Location(1); IncBlock must
	// skip straight to 21.
	next := IncBlock(19, 9, 1<<20)
	assert.Equal(t, uint64(21), next)
}

func TestIncBlockWrapsAtEnd(t *testing.T) {
	next := IncBlock(100, 9, 100)
	assert.Equal(t, uint64(1), next)
}

func TestIncBlockPlainAdvance(t *testing.T) {
	next := IncBlock(5, 9, 1<<20)
	assert.Equal(t, uint64(6), next)
}

package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gladserv/shallfs/internal/ioring"
	"github.com/gladserv/shallfs/internal/wire"
)

// testSize is large enough to hold 9 superblocks at their quadratic
// locations (wire.Location(n) = 16n^2+4n), unlike a naive 1MiB device.
const testSize = 8 << 20

func freshDevice(t *testing.T, size int64, numSuperblocks uint32) ioring.Device {
	t.Helper()
	dev := ioring.NewMemDevice(size)
	sb := &wire.SuperBlock{
		DeviceSize:     uint64(size),
		DataSpace:      uint64(size) - wire.BlockSize*uint64(numSuperblocks),
		Alignment:      8,
		Flags:          wire.FlagValid,
		NumSuperblocks: numSuperblocks,
	}
	for n := uint32(0); n < numSuperblocks; n++ {
		require.NoError(t, WriteSuperblock(dev, sb, n, false))
	}
	return dev
}

func TestWriteReadSuperblockRoundTrip(t *testing.T) {
	dev := freshDevice(t, testSize, 9)
	sb, err := ReadSuperblock(dev, 0, testSize)
	require.NoError(t, err)
	assert.Equal(t, uint64(testSize), sb.DeviceSize)
	assert.Equal(t, uint32(0), sb.ThisSuperblock)
}

func TestCheckSuperblockNoDefects(t *testing.T) {
	sb := &wire.SuperBlock{
		DeviceSize:     testSize,
		DataSpace:      testSize - wire.BlockSize*9,
		DataStart:      0,
		DataLength:     0,
		MaxLength:      testSize - wire.BlockSize*9,
		Alignment:      8,
		Flags:          wire.FlagValid,
		NumSuperblocks: 9,
	}
	assert.Equal(t, CheckFlags(0), CheckSuperblock(sb, testSize))
}

func TestCheckSuperblockCatchesDefects(t *testing.T) {
	sb := &wire.SuperBlock{
		DeviceSize:     testSize,
		DataSpace:      1, // wrong, should trigger DataSpace
		Alignment:      3, // not a multiple of 8
		NumSuperblocks: 9,
	}
	flags := CheckSuperblock(sb, testSize)
	assert.NotZero(t, flags&NoValid)
	assert.NotZero(t, flags&DataSpace)
	assert.NotZero(t, flags&Alignment)
}

func TestSelectCleanSuperblock(t *testing.T) {
	dev := freshDevice(t, testSize, 9)
	sb, idx, err := Select(dev, testSize)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), idx)
	assert.Equal(t, wire.FlagValid, sb.Flags)
}

func TestSelectRefusesUpdateInProgress(t *testing.T) {
	dev := ioring.NewMemDevice(testSize)
	sb := &wire.SuperBlock{
		DeviceSize:     testSize,
		DataSpace:      testSize - wire.BlockSize*9,
		Alignment:      8,
		Flags:          wire.FlagValid | wire.FlagUpdate,
		NumSuperblocks: 9,
	}
	require.NoError(t, WriteSuperblock(dev, sb, 0, false))

	_, _, err := Select(dev, testSize)
	assert.ErrorIs(t, err, ErrUpdateInProgress)
}

func TestSelectPicksGreatestVersionWhenDirty(t *testing.T) {
	dev := ioring.NewMemDevice(testSize)
	base := &wire.SuperBlock{
		DeviceSize:     testSize,
		DataSpace:      testSize - wire.BlockSize*9,
		Alignment:      8,
		Flags:          wire.FlagValid | wire.FlagDirty,
		NumSuperblocks: 9,
	}
	base.Version = 1
	require.NoError(t, WriteSuperblock(dev, base, 0, false))
	base.Version = 5
	require.NoError(t, WriteSuperblock(dev, base, 1, false))
	base.Version = 3
	require.NoError(t, WriteSuperblock(dev, base, 2, false))
	for n := uint32(3); n < 9; n++ {
		require.NoError(t, WriteSuperblock(dev, base, n, false))
	}

	sb, idx, err := Select(dev, testSize)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), idx)
	assert.Equal(t, uint64(5), sb.Version)
}

func TestNextRotation(t *testing.T) {
	assert.Equal(t, uint32(1), NextRotation(0, 9))
	assert.Equal(t, uint32(2), NextRotation(1, 9))
	assert.Equal(t, uint32(1), NextRotation(8, 9))
}

func TestSpreadIndices(t *testing.T) {
	idx := SpreadIndices(9, 3)
	assert.Len(t, idx, 3)
	assert.Equal(t, uint32(0), idx[0])
}

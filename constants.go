package shallfs

import "github.com/gladserv/shallfs/internal/wire"

// Re-exported for public API convenience, so callers formatting a new
// device don't need to import internal/wire directly.
const (
	BlockSize      = wire.BlockSize
	MinDeviceSize  = wire.MinDeviceSize
	MinSuperblocks = wire.MinSuperblocks
)

// Package layout implements the Device Layout & Superblock Codec
// component: reading, writing, validating, and ranking superblocks, and
// selecting the active superblock at mount time.
package layout

import (
	"github.com/gladserv/shallfs/internal/ioring"
	"github.com/gladserv/shallfs/internal/logging"
	"github.com/gladserv/shallfs/internal/wire"
)

// CheckFlags is a bitmask of independently-signaled superblock defects.
type CheckFlags uint32

const (
	NoValid    CheckFlags = 1 << iota // VALID bit missing
	TooBig                            // device_size > physical device size
	TooSmall                          // device_size < 64KiB or num_superblocks <= 8
	NonBlock                          // device_size not a multiple of 4096
	DataSpace                         // data_space inconsistent with device_size/num_superblocks
	DataStart                         // data_start out of range
	DataLength                        // data_length out of range
	MaxLength                         // max_length out of range
	Alignment                         // alignment invalid
	LastSB                            // last superblock would sit past end of device
	Flags                             // unknown flag bits set
)

// Fixable is the subset of defects a repair tool may correct in place
// (recomputing data_space, clamping max_length, and so on). The other
// defects (TooBig, TooSmall, NonBlock, DataStart, DataLength) are
// reported but left unchanged.
const Fixable = NoValid | DataSpace | MaxLength | Alignment | LastSB | Flags

// knownFlagBits is every flag bit this implementation understands.
const knownFlagBits = wire.FlagValid | wire.FlagDirty | wire.FlagUpdate

// ReadSuperblockRaw reads superblock n from dev and verifies its magics
// and CRC, without any field-level consistency checking.
func ReadSuperblockRaw(dev ioring.Device, n uint32) (*wire.SuperBlock, error) {
	buf := make([]byte, wire.SuperblockSize)
	off := int64(wire.ByteOffset(n))
	if _, err := dev.ReadAt(buf, off); err != nil {
		return nil, err
	}
	if !wire.VerifySuperBlock(buf) {
		return nil, ErrInvalidSuperblock
	}
	sb := &wire.SuperBlock{}
	if err := wire.UnmarshalSuperBlock(buf, sb); err != nil {
		return nil, err
	}
	return sb, nil
}

// ReadSuperblock reads and fully validates superblock n, physicalSize
// being the actual size of the underlying device (used for the TooBig
// check).
func ReadSuperblock(dev ioring.Device, n uint32, physicalSize int64) (*wire.SuperBlock, error) {
	sb, err := ReadSuperblockRaw(dev, n)
	if err != nil {
		return nil, err
	}
	if flags := CheckSuperblock(sb, physicalSize); flags != 0 {
		return nil, ErrInvalidSuperblock
	}
	return sb, nil
}

// WriteSuperblock encodes sb, stamps ThisSuperblock = n, recomputes the
// CRC, and writes it to its canonical location, optionally calling Sync
// afterward.
func WriteSuperblock(dev ioring.Device, sb *wire.SuperBlock, n uint32, sync bool) error {
	sb.ThisSuperblock = n
	sb.Magic1 = wire.Magic
	sb.Magic2 = wire.Magic
	buf := wire.MarshalSuperBlock(sb)

	off := int64(wire.ByteOffset(n))
	if _, err := dev.WriteAt(buf, off); err != nil {
		return err
	}
	if sync {
		return dev.Sync()
	}
	return nil
}

// CheckSuperblock reports every defect found in sb given the physical
// device size.
func CheckSuperblock(sb *wire.SuperBlock, physicalSize int64) CheckFlags {
	var f CheckFlags

	if sb.Flags&wire.FlagValid == 0 {
		f |= NoValid
	}
	if int64(sb.DeviceSize) > physicalSize {
		f |= TooBig
	}
	if sb.DeviceSize < wire.MinDeviceSize || sb.NumSuperblocks <= 8 {
		f |= TooSmall
	}
	if sb.DeviceSize%wire.BlockSize != 0 {
		f |= NonBlock
	}
	if sb.DataSpace+wire.BlockSize*uint64(sb.NumSuperblocks) != sb.DeviceSize {
		f |= DataSpace
	}
	if sb.DataStart >= sb.DataSpace {
		f |= DataStart
	}
	if sb.DataLength > sb.DataSpace {
		f |= DataLength
	}
	if sb.DataLength > sb.MaxLength || sb.MaxLength > sb.DataSpace {
		f |= MaxLength
	}
	if sb.Alignment < 8 || sb.Alignment > wire.BlockSize || sb.Alignment%8 != 0 {
		f |= Alignment
	}
	if wire.ByteOffset(sb.NumSuperblocks-1)+wire.SuperblockSize > sb.DeviceSize {
		f |= LastSB
	}
	if sb.Flags&^knownFlagBits != 0 {
		f |= Flags
	}

	return f
}

// Select implements mount-time superblock selection per spec §4.1: read
// superblock 0; if valid, clean, and not mid-update, use it; if UPDATE is
// set, refuse to mount; otherwise scan forward until a valid superblock
// is found. If the selected superblock is DIRTY, every superblock is read
// and the one with the greatest Version wins.
func Select(dev ioring.Device, physicalSize int64) (sb *wire.SuperBlock, index uint32, err error) {
	sb0, err0 := ReadSuperblockRaw(dev, 0)
	if err0 == nil {
		if sb0.Flags&wire.FlagUpdate != 0 {
			return nil, 0, ErrUpdateInProgress
		}
		if sb0.Flags&wire.FlagDirty == 0 {
			return sb0, 0, nil
		}
	}

	// sb0 missing, invalid, or dirty: scan forward for any valid superblock
	// to learn num_superblocks, or fall back to a full dirty-recovery scan.
	var found *wire.SuperBlock
	var foundIdx uint32
	for n := uint32(0); ; n++ {
		if int64(wire.ByteOffset(n)+wire.SuperblockSize) > physicalSize {
			break
		}
		candidate, cerr := ReadSuperblockRaw(dev, n)
		if cerr != nil {
			continue
		}
		if candidate.Flags&wire.FlagUpdate != 0 {
			return nil, 0, ErrUpdateInProgress
		}
		found = candidate
		foundIdx = n
		break
	}

	if found == nil {
		return nil, 0, ErrNoValidSuperblock
	}

	if found.Flags&wire.FlagDirty == 0 {
		return found, foundIdx, nil
	}

	// Dirty: recover by scanning every superblock and taking the one with
	// the greatest version.
	var best *wire.SuperBlock
	var bestIdx uint32
	for n := uint32(0); n < found.NumSuperblocks; n++ {
		candidate, cerr := ReadSuperblockRaw(dev, n)
		if cerr != nil {
			continue
		}
		if best == nil || candidate.Version > best.Version {
			best = candidate
			bestIdx = n
		}
	}
	if best == nil {
		return nil, 0, ErrNoValidSuperblock
	}

	logging.Default().Info("selected dirty superblock by version", "index", bestIdx, "version", best.Version)
	return best, bestIdx, nil
}

// NextRotation returns the next round-robin superblock index for commit
// rotation, cycling through [1, num) and reserving index 0 for clean
// unmount and freeze-point snapshots.
func NextRotation(last uint32, num uint32) uint32 {
	next := last + 1
	if next >= num || next == 0 {
		next = 1
	}
	return next
}

// SpreadIndices returns up to count superblock indices spread evenly
// across [0, num) for the final multi-superblock write performed on a
// clean unmount.
func SpreadIndices(num uint32, count int) []uint32 {
	if count <= 0 || num == 0 {
		return nil
	}
	if int(num) < count {
		count = int(num)
	}
	out := make([]uint32, count)
	step := float64(num) / float64(count)
	for i := range out {
		out[i] = uint32(float64(i) * step)
	}
	return out
}

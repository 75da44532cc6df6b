package wire

import (
	"encoding/binary"
	"hash/crc32"
	"unsafe"
)

// SuperBlock mirrors the on-device 1024-byte superblock structure
// described in spec §3/§6. Reserved regions are kept as explicit byte
// arrays (rather than omitted) so the in-memory struct's size matches the
// wire size and so a future update-plan field can be added without
// reshuffling offsets.
type SuperBlock struct {
	Magic1 [8]byte

	DeviceSize uint64
	DataSpace  uint64
	DataStart  uint64
	DataLength uint64
	MaxLength  uint64
	Version    uint64

	Flags          uint32
	Alignment      uint32
	NumSuperblocks uint32
	ThisSuperblock uint32

	Reserved [696]byte

	NewSize        uint64
	NewAlignment   uint32
	NewSuperblocks uint32

	Reserved2 [228]byte

	Magic2 [8]byte
	CRC32  uint32
}

var _ [SuperblockSize]byte = [unsafe.Sizeof(SuperBlock{})]byte{}

// Location returns the device-block index holding superblock n, per the
// spec's L(n) = 16n^2 + 4n placement formula.
func Location(n uint32) uint64 {
	nn := uint64(n)
	return 16*nn*nn + 4*nn
}

// ByteOffset returns the absolute byte offset of superblock n within the
// device.
func ByteOffset(n uint32) uint64 {
	return Location(n)*BlockSize + SuperblockOffset
}

// MarshalSuperBlock encodes sb into its 1024-byte on-disk representation,
// recomputing the CRC over everything preceding the checksum field.
func MarshalSuperBlock(sb *SuperBlock) []byte {
	buf := make([]byte, SuperblockSize)

	copy(buf[0:8], sb.Magic1[:])
	binary.LittleEndian.PutUint64(buf[8:16], sb.DeviceSize)
	binary.LittleEndian.PutUint64(buf[16:24], sb.DataSpace)
	binary.LittleEndian.PutUint64(buf[24:32], sb.DataStart)
	binary.LittleEndian.PutUint64(buf[32:40], sb.DataLength)
	binary.LittleEndian.PutUint64(buf[40:48], sb.MaxLength)
	binary.LittleEndian.PutUint64(buf[48:56], sb.Version)
	binary.LittleEndian.PutUint32(buf[56:60], sb.Flags)
	binary.LittleEndian.PutUint32(buf[60:64], sb.Alignment)
	binary.LittleEndian.PutUint32(buf[64:68], sb.NumSuperblocks)
	binary.LittleEndian.PutUint32(buf[68:72], sb.ThisSuperblock)
	copy(buf[72:768], sb.Reserved[:])
	binary.LittleEndian.PutUint64(buf[768:776], sb.NewSize)
	binary.LittleEndian.PutUint32(buf[776:780], sb.NewAlignment)
	binary.LittleEndian.PutUint32(buf[780:784], sb.NewSuperblocks)
	copy(buf[784:1012], sb.Reserved2[:])
	copy(buf[1012:1020], sb.Magic2[:])

	crc := crc32.Update(CRCSeed, crc32.IEEETable, buf[:1020])
	binary.LittleEndian.PutUint32(buf[1020:1024], crc)

	return buf
}

// UnmarshalSuperBlock decodes a 1024-byte buffer into sb. It does not
// validate the magic strings or CRC; callers use VerifySuperBlock for
// that so a caller can distinguish "doesn't parse" from "parses but
// fails validation".
func UnmarshalSuperBlock(data []byte, sb *SuperBlock) error {
	if len(data) < SuperblockSize {
		return ErrShortBuffer
	}

	copy(sb.Magic1[:], data[0:8])
	sb.DeviceSize = binary.LittleEndian.Uint64(data[8:16])
	sb.DataSpace = binary.LittleEndian.Uint64(data[16:24])
	sb.DataStart = binary.LittleEndian.Uint64(data[24:32])
	sb.DataLength = binary.LittleEndian.Uint64(data[32:40])
	sb.MaxLength = binary.LittleEndian.Uint64(data[40:48])
	sb.Version = binary.LittleEndian.Uint64(data[48:56])
	sb.Flags = binary.LittleEndian.Uint32(data[56:60])
	sb.Alignment = binary.LittleEndian.Uint32(data[60:64])
	sb.NumSuperblocks = binary.LittleEndian.Uint32(data[64:68])
	sb.ThisSuperblock = binary.LittleEndian.Uint32(data[68:72])
	copy(sb.Reserved[:], data[72:768])
	sb.NewSize = binary.LittleEndian.Uint64(data[768:776])
	sb.NewAlignment = binary.LittleEndian.Uint32(data[776:780])
	sb.NewSuperblocks = binary.LittleEndian.Uint32(data[780:784])
	copy(sb.Reserved2[:], data[784:1012])
	copy(sb.Magic2[:], data[1012:1020])
	sb.CRC32 = binary.LittleEndian.Uint32(data[1020:1024])

	return nil
}

// VerifySuperBlock reports whether both magic strings match and the CRC
// over the raw bytes is valid.
func VerifySuperBlock(data []byte) bool {
	if len(data) < SuperblockSize {
		return false
	}
	if string(data[0:8]) != string(Magic[:]) || string(data[1012:1020]) != string(Magic[:]) {
		return false
	}
	want := binary.LittleEndian.Uint32(data[1020:1024])
	got := crc32.Update(CRCSeed, crc32.IEEETable, data[:1020])
	return want == got
}

// ShortBufferError is returned when a buffer is too small to decode.
type ShortBufferError string

func (e ShortBufferError) Error() string { return string(e) }

// ErrShortBuffer is returned by Unmarshal functions given a short buffer.
const ErrShortBuffer = ShortBufferError("wire: buffer too short")

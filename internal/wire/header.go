package wire

import (
	"encoding/binary"
	"hash/crc32"
	"unsafe"
)

// Header is the 32-byte preamble of every log record.
type Header struct {
	NextHeader uint32
	Operation  Operation
	ReqSec     uint64
	ReqNsec    uint32
	Result     int32
	Flags      uint32
	CRC32      uint32
}

var _ [HeaderSize]byte = [unsafe.Sizeof(Header{})]byte{}

// MarshalHeader encodes h into a HeaderSize-byte buffer, computing the CRC
// over the first 28 bytes (everything but the checksum field itself).
func MarshalHeader(h *Header) []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.NextHeader)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(h.Operation))
	binary.LittleEndian.PutUint64(buf[8:16], h.ReqSec)
	binary.LittleEndian.PutUint32(buf[16:20], h.ReqNsec)
	binary.LittleEndian.PutUint32(buf[20:24], uint32(h.Result))
	binary.LittleEndian.PutUint32(buf[24:28], h.Flags)

	crc := crc32.Update(CRCSeed, crc32.IEEETable, buf[:28])
	binary.LittleEndian.PutUint32(buf[28:32], crc)
	return buf
}

// UnmarshalHeader decodes a HeaderSize-byte buffer into h without
// verifying the CRC; use VerifyHeader for that.
func UnmarshalHeader(data []byte, h *Header) error {
	if len(data) < HeaderSize {
		return ErrShortBuffer
	}
	h.NextHeader = binary.LittleEndian.Uint32(data[0:4])
	h.Operation = Operation(int32(binary.LittleEndian.Uint32(data[4:8])))
	h.ReqSec = binary.LittleEndian.Uint64(data[8:16])
	h.ReqNsec = binary.LittleEndian.Uint32(data[16:20])
	h.Result = int32(binary.LittleEndian.Uint32(data[20:24]))
	h.Flags = binary.LittleEndian.Uint32(data[24:28])
	h.CRC32 = binary.LittleEndian.Uint32(data[28:32])
	return nil
}

// VerifyHeader reports whether the trailing CRC field matches the CRC of
// the first 28 bytes of data.
func VerifyHeader(data []byte) bool {
	if len(data) < HeaderSize {
		return false
	}
	want := binary.LittleEndian.Uint32(data[28:32])
	got := crc32.Update(CRCSeed, crc32.IEEETable, data[:28])
	return want == got
}

// Credentials is the optional 48-byte credentials block carried when
// FlagCREDS is set.
type Credentials struct {
	UID   uint64
	EUID  uint64
	FSUID uint64
	GID   uint64
	EGID  uint64
	FSGID uint64
}

var _ [CredentialsSize]byte = [unsafe.Sizeof(Credentials{})]byte{}

func MarshalCredentials(c *Credentials) []byte {
	buf := make([]byte, CredentialsSize)
	binary.LittleEndian.PutUint64(buf[0:8], c.UID)
	binary.LittleEndian.PutUint64(buf[8:16], c.EUID)
	binary.LittleEndian.PutUint64(buf[16:24], c.FSUID)
	binary.LittleEndian.PutUint64(buf[24:32], c.GID)
	binary.LittleEndian.PutUint64(buf[32:40], c.EGID)
	binary.LittleEndian.PutUint64(buf[40:48], c.FSGID)
	return buf
}

func UnmarshalCredentials(data []byte, c *Credentials) error {
	if len(data) < CredentialsSize {
		return ErrShortBuffer
	}
	c.UID = binary.LittleEndian.Uint64(data[0:8])
	c.EUID = binary.LittleEndian.Uint64(data[8:16])
	c.FSUID = binary.LittleEndian.Uint64(data[16:24])
	c.GID = binary.LittleEndian.Uint64(data[24:32])
	c.EGID = binary.LittleEndian.Uint64(data[32:40])
	c.FSGID = binary.LittleEndian.Uint64(data[40:48])
	return nil
}

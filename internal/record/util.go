package record

import "encoding/binary"

func putU32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }
func putU64(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }
func getU32(b []byte) uint32    { return binary.LittleEndian.Uint32(b) }
func getU64(b []byte) uint64    { return binary.LittleEndian.Uint64(b) }

// sentinelError matches the string-error style used elsewhere in this
// module for package-local, non-wrapping error values.
type sentinelError string

func (e sentinelError) Error() string { return string(e) }

const (
	ErrMultiplePayloads sentinelError = "record: more than one payload field set"
	ErrTooBig           sentinelError = "record: encoded length exceeds commit size"
	ErrShortRecord      sentinelError = "record: buffer shorter than declared record length"
	ErrCRC              sentinelError = "record: header CRC mismatch"
	ErrCorruptLength    sentinelError = "record: next_header smaller than header size"
)

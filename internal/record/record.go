// Package record implements the Log Record Codec: encoding and decoding
// of self-delimiting log records built on top of the internal/wire byte
// layouts.
package record

import (
	"time"

	"github.com/gladserv/shallfs/internal/wire"
)

// Fields carries the optional and payload data of a record to be
// encoded. At most one of the payload fields may be set; Encode returns
// an error if more than one is present.
type Fields struct {
	Creds *wire.Credentials
	File1 []byte
	File2 []byte

	Attr   *wire.Attr
	Region *wire.Region
	FileID *uint32
	Size   *uint64
	ACL    *wire.ACL
	Xattr  *wire.Xattr
	Hash   *wire.Hash
	Data   *wire.Data
}

// Record is a fully decoded log record.
type Record struct {
	Header wire.Header
	Fields Fields
}

func (f *Fields) flags() (uint32, error) {
	var flags uint32
	if f.Creds != nil {
		flags |= wire.FlagCREDS
	}
	if f.File1 != nil {
		flags |= wire.FlagFILE1
	}
	if f.File2 != nil {
		flags |= wire.FlagFILE2
	}

	set := 0
	if f.Attr != nil {
		flags |= wire.FlagATTR
		set++
	}
	if f.Region != nil {
		flags |= wire.FlagREGION
		set++
	}
	if f.FileID != nil {
		flags |= wire.FlagFILEID
		set++
	}
	if f.Size != nil {
		flags |= wire.FlagSIZE
		set++
	}
	if f.ACL != nil {
		flags |= wire.FlagACL
		set++
	}
	if f.Xattr != nil {
		flags |= wire.FlagXATTR
		set++
	}
	if f.Hash != nil {
		flags |= wire.FlagHASH
		set++
	}
	if f.Data != nil {
		flags |= wire.FlagDATA
		set++
	}
	if set > 1 {
		return 0, ErrMultiplePayloads
	}
	return flags, nil
}

func (f *Fields) payloadBytes() []byte {
	switch {
	case f.Attr != nil:
		return wire.MarshalAttr(f.Attr)
	case f.Region != nil:
		return wire.MarshalRegion(f.Region)
	case f.FileID != nil:
		buf := make([]byte, 4)
		putU32(buf, *f.FileID)
		return buf
	case f.Size != nil:
		buf := make([]byte, 8)
		putU64(buf, *f.Size)
		return buf
	case f.ACL != nil:
		return wire.MarshalACL(f.ACL)
	case f.Xattr != nil:
		return wire.MarshalXattr(f.Xattr)
	case f.Hash != nil:
		return wire.MarshalHash(f.Hash)
	case f.Data != nil:
		return wire.MarshalData(f.Data)
	default:
		return nil
	}
}

// Encode serializes op/result/fields into a single padded record. The
// returned slice length is always a multiple of alignment. If the
// padded length would exceed commitSize, Encode returns ErrTooBig; the
// caller (internal/commit) is responsible for substituting a TOO_BIG
// marker per spec §4.3 policy.
func Encode(op wire.Operation, result int32, alignment uint32, commitSize int, at time.Time, fields Fields) ([]byte, error) {
	flags, err := fields.flags()
	if err != nil {
		return nil, err
	}

	payload := fields.payloadBytes()

	length := wire.HeaderSize
	if flags&wire.FlagCREDS != 0 {
		length += wire.CredentialsSize
	}
	if flags&wire.FlagFILE1 != 0 {
		length += 4 + len(fields.File1)
	}
	if flags&wire.FlagFILE2 != 0 {
		length += 4 + len(fields.File2)
	}
	length += len(payload)

	padded := padUp(length, int(alignment))
	if padded > commitSize {
		return nil, ErrTooBig
	}

	buf := make([]byte, padded)

	h := wire.Header{
		NextHeader: uint32(padded),
		Operation:  op,
		ReqSec:     uint64(at.Unix()),
		ReqNsec:    uint32(at.Nanosecond()),
		Result:     result,
		Flags:      flags,
	}
	copy(buf[0:wire.HeaderSize], wire.MarshalHeader(&h))

	off := wire.HeaderSize
	if flags&wire.FlagCREDS != 0 {
		copy(buf[off:], wire.MarshalCredentials(fields.Creds))
		off += wire.CredentialsSize
	}
	if flags&wire.FlagFILE1 != 0 {
		putU32(buf[off:off+4], uint32(len(fields.File1)))
		off += 4
		off += copy(buf[off:], fields.File1)
	}
	if flags&wire.FlagFILE2 != 0 {
		putU32(buf[off:off+4], uint32(len(fields.File2)))
		off += 4
		off += copy(buf[off:], fields.File2)
	}
	copy(buf[off:], payload)

	return buf, nil
}

// EncodeTooBigMarker builds the substitute marker record used in place of
// a record that exceeded commitSize, per spec §4.3: a record carrying the
// SIZE payload equal to the space that would have been required.
func EncodeTooBigMarker(alignment uint32, at time.Time, requiredSize uint64) []byte {
	rec, err := Encode(wire.OpTooBig, 0, alignment, 1<<30, at, Fields{Size: &requiredSize})
	if err != nil {
		// A bare header + 8-byte SIZE payload always fits any sane
		// commit_size; this path only runs with an oversized limit.
		panic(err)
	}
	return rec
}

// Decode parses one record starting at the head of data. It returns the
// decoded record and the number of bytes consumed (Header.NextHeader).
// A CRC failure on the header is always reported; callers decide whether
// that is fatal (head of stream) or a truncation point (mid-stream), per
// spec §4.3.
func Decode(data []byte) (*Record, int, error) {
	if len(data) < wire.HeaderSize {
		return nil, 0, ErrShortRecord
	}
	if !wire.VerifyHeader(data) {
		return nil, 0, ErrCRC
	}

	var h wire.Header
	if err := wire.UnmarshalHeader(data[:wire.HeaderSize], &h); err != nil {
		return nil, 0, err
	}
	if h.NextHeader < wire.HeaderSize {
		return nil, 0, ErrCorruptLength
	}
	if len(data) < int(h.NextHeader) {
		return nil, 0, ErrShortRecord
	}

	rec := &Record{Header: h}
	off := wire.HeaderSize

	if h.Flags&wire.FlagCREDS != 0 {
		c := &wire.Credentials{}
		if err := wire.UnmarshalCredentials(data[off:], c); err != nil {
			return nil, 0, err
		}
		rec.Fields.Creds = c
		off += wire.CredentialsSize
	}
	if h.Flags&wire.FlagFILE1 != 0 {
		l := getU32(data[off : off+4])
		off += 4
		rec.Fields.File1 = append([]byte(nil), data[off:off+int(l)]...)
		off += int(l)
	}
	if h.Flags&wire.FlagFILE2 != 0 {
		l := getU32(data[off : off+4])
		off += 4
		rec.Fields.File2 = append([]byte(nil), data[off:off+int(l)]...)
		off += int(l)
	}

	payload := data[off:h.NextHeader]
	switch h.Flags & wire.FlagDMASK {
	case wire.FlagATTR:
		a := &wire.Attr{}
		if err := wire.UnmarshalAttr(payload, a); err != nil {
			return nil, 0, err
		}
		rec.Fields.Attr = a
	case wire.FlagREGION:
		r := &wire.Region{}
		if err := wire.UnmarshalRegion(payload, r); err != nil {
			return nil, 0, err
		}
		rec.Fields.Region = r
	case wire.FlagFILEID:
		v := getU32(payload)
		rec.Fields.FileID = &v
	case wire.FlagSIZE:
		v := getU64(payload)
		rec.Fields.Size = &v
	case wire.FlagACL:
		a := &wire.ACL{}
		if err := wire.UnmarshalACL(payload, a); err != nil {
			return nil, 0, err
		}
		rec.Fields.ACL = a
	case wire.FlagXATTR:
		x := &wire.Xattr{}
		if err := wire.UnmarshalXattr(payload, x); err != nil {
			return nil, 0, err
		}
		rec.Fields.Xattr = x
	case wire.FlagHASH:
		hh := &wire.Hash{}
		if err := wire.UnmarshalHash(payload, hh); err != nil {
			return nil, 0, err
		}
		rec.Fields.Hash = hh
	case wire.FlagDATA:
		d := &wire.Data{}
		if err := wire.UnmarshalData(payload, d); err != nil {
			return nil, 0, err
		}
		rec.Fields.Data = d
	}

	return rec, int(h.NextHeader), nil
}

func padUp(n, alignment int) int {
	if alignment <= 0 {
		return n
	}
	rem := n % alignment
	if rem == 0 {
		return n
	}
	return n + (alignment - rem)
}

package wire

import (
	"encoding/binary"
	"unsafe"
)

// Attr payload bits (flags field of Attr).
const (
	AttrMode  uint32 = 1 << 0
	AttrUser  uint32 = 1 << 1
	AttrGroup uint32 = 1 << 2
	AttrBlock uint32 = 1 << 3
	AttrChar  uint32 = 1 << 4
	AttrSizeF uint32 = 1 << 5
	AttrAtime uint32 = 1 << 6
	AttrMtime uint32 = 1 << 7
	AttrExcl  uint32 = 1 << 8
)

const AttrSize = 48

// Attr is the attribute-change payload. When Flags includes AttrBlock or
// AttrChar, SizeOrDevnum packs major (upper 32 bits) and minor (lower 32
// bits) device numbers instead of a byte size.
type Attr struct {
	Flags        uint32
	Mode         uint32
	User         uint32
	Group        uint32
	SizeOrDevnum uint64
	AtimeSec     uint64
	MtimeSec     uint64
	AtimeNsec    uint32
	MtimeNsec    uint32
}

var _ [AttrSize]byte = [unsafe.Sizeof(Attr{})]byte{}

func MarshalAttr(a *Attr) []byte {
	buf := make([]byte, AttrSize)
	binary.LittleEndian.PutUint32(buf[0:4], a.Flags)
	binary.LittleEndian.PutUint32(buf[4:8], a.Mode)
	binary.LittleEndian.PutUint32(buf[8:12], a.User)
	binary.LittleEndian.PutUint32(buf[12:16], a.Group)
	binary.LittleEndian.PutUint64(buf[16:24], a.SizeOrDevnum)
	binary.LittleEndian.PutUint64(buf[24:32], a.AtimeSec)
	binary.LittleEndian.PutUint64(buf[32:40], a.MtimeSec)
	binary.LittleEndian.PutUint32(buf[40:44], a.AtimeNsec)
	binary.LittleEndian.PutUint32(buf[44:48], a.MtimeNsec)
	return buf
}

func UnmarshalAttr(data []byte, a *Attr) error {
	if len(data) < AttrSize {
		return ErrShortBuffer
	}
	a.Flags = binary.LittleEndian.Uint32(data[0:4])
	a.Mode = binary.LittleEndian.Uint32(data[4:8])
	a.User = binary.LittleEndian.Uint32(data[8:12])
	a.Group = binary.LittleEndian.Uint32(data[12:16])
	a.SizeOrDevnum = binary.LittleEndian.Uint64(data[16:24])
	a.AtimeSec = binary.LittleEndian.Uint64(data[24:32])
	a.MtimeSec = binary.LittleEndian.Uint64(data[32:40])
	a.AtimeNsec = binary.LittleEndian.Uint32(data[40:44])
	a.MtimeNsec = binary.LittleEndian.Uint32(data[44:48])
	return nil
}

const RegionSize = 20

// Region identifies a byte range within a file, used standalone and as a
// prefix of the HASH and DATA payloads.
type Region struct {
	FileID uint32
	Start  uint64
	Length uint64
}

// Region carries no size assertion: Go pads FileID to 8 bytes, so the
// in-memory struct is larger than its RegionSize-byte wire form.

func MarshalRegion(r *Region) []byte {
	buf := make([]byte, RegionSize)
	binary.LittleEndian.PutUint32(buf[0:4], r.FileID)
	binary.LittleEndian.PutUint64(buf[4:12], r.Start)
	binary.LittleEndian.PutUint64(buf[12:20], r.Length)
	return buf
}

func UnmarshalRegion(data []byte, r *Region) error {
	if len(data) < RegionSize {
		return ErrShortBuffer
	}
	r.FileID = binary.LittleEndian.Uint32(data[0:4])
	r.Start = binary.LittleEndian.Uint64(data[4:12])
	r.Length = binary.LittleEndian.Uint64(data[12:20])
	return nil
}

const HashSize = RegionSize + 32

// Hash pairs a Region with its 32-byte content hash.
type Hash struct {
	Region Region
	Sum    [32]byte
}

func MarshalHash(h *Hash) []byte {
	buf := make([]byte, HashSize)
	copy(buf[0:RegionSize], MarshalRegion(&h.Region))
	copy(buf[RegionSize:], h.Sum[:])
	return buf
}

func UnmarshalHash(data []byte, h *Hash) error {
	if len(data) < HashSize {
		return ErrShortBuffer
	}
	if err := UnmarshalRegion(data[0:RegionSize], &h.Region); err != nil {
		return err
	}
	copy(h.Sum[:], data[RegionSize:HashSize])
	return nil
}

// ACLEntry is one entry of a variable-length ACL payload.
type ACLEntry struct {
	Tag  uint32
	ID   uint32
	Perm uint32
}

const ACLEntrySize = 12
const ACLFixedSize = 20 // UserBits,GroupBits,OtherBits,MaskBits,NumEntries

// ACL is the combined owner/group/other/mask permission bits plus a
// variable list of named entries.
type ACL struct {
	UserBits  uint32
	GroupBits uint32
	OtherBits uint32
	MaskBits  uint32
	Entries   []ACLEntry
}

func MarshalACL(a *ACL) []byte {
	buf := make([]byte, ACLFixedSize+len(a.Entries)*ACLEntrySize)
	binary.LittleEndian.PutUint32(buf[0:4], a.UserBits)
	binary.LittleEndian.PutUint32(buf[4:8], a.GroupBits)
	binary.LittleEndian.PutUint32(buf[8:12], a.OtherBits)
	binary.LittleEndian.PutUint32(buf[12:16], a.MaskBits)
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(a.Entries)))
	off := ACLFixedSize
	for _, e := range a.Entries {
		binary.LittleEndian.PutUint32(buf[off:off+4], e.Tag)
		binary.LittleEndian.PutUint32(buf[off+4:off+8], e.ID)
		binary.LittleEndian.PutUint32(buf[off+8:off+12], e.Perm)
		off += ACLEntrySize
	}
	return buf
}

func UnmarshalACL(data []byte, a *ACL) error {
	if len(data) < ACLFixedSize {
		return ErrShortBuffer
	}
	a.UserBits = binary.LittleEndian.Uint32(data[0:4])
	a.GroupBits = binary.LittleEndian.Uint32(data[4:8])
	a.OtherBits = binary.LittleEndian.Uint32(data[8:12])
	a.MaskBits = binary.LittleEndian.Uint32(data[12:16])
	n := binary.LittleEndian.Uint32(data[16:20])
	need := ACLFixedSize + int(n)*ACLEntrySize
	if len(data) < need {
		return ErrShortBuffer
	}
	a.Entries = make([]ACLEntry, n)
	off := ACLFixedSize
	for i := range a.Entries {
		a.Entries[i].Tag = binary.LittleEndian.Uint32(data[off : off+4])
		a.Entries[i].ID = binary.LittleEndian.Uint32(data[off+4 : off+8])
		a.Entries[i].Perm = binary.LittleEndian.Uint32(data[off+8 : off+12])
		off += ACLEntrySize
	}
	return nil
}

const XattrFixedSize = 12 // flags, namelen, valuelen

// Xattr is an extended-attribute mutation payload: a flags word plus a
// variable-length name and value.
type Xattr struct {
	Flags uint32
	Name  []byte
	Value []byte
}

func MarshalXattr(x *Xattr) []byte {
	buf := make([]byte, XattrFixedSize+len(x.Name)+len(x.Value))
	binary.LittleEndian.PutUint32(buf[0:4], x.Flags)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(x.Name)))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(x.Value)))
	off := XattrFixedSize
	off += copy(buf[off:], x.Name)
	copy(buf[off:], x.Value)
	return buf
}

func UnmarshalXattr(data []byte, x *Xattr) error {
	if len(data) < XattrFixedSize {
		return ErrShortBuffer
	}
	x.Flags = binary.LittleEndian.Uint32(data[0:4])
	nameLen := binary.LittleEndian.Uint32(data[4:8])
	valueLen := binary.LittleEndian.Uint32(data[8:12])
	need := XattrFixedSize + int(nameLen) + int(valueLen)
	if len(data) < need {
		return ErrShortBuffer
	}
	off := XattrFixedSize
	x.Name = append([]byte(nil), data[off:off+int(nameLen)]...)
	off += int(nameLen)
	x.Value = append([]byte(nil), data[off:off+int(valueLen)]...)
	return nil
}

// Data is a raw-bytes payload describing a write to Region, the bytes
// following immediately after the region header.
type Data struct {
	Region Region
	Bytes  []byte
}

func MarshalData(d *Data) []byte {
	buf := make([]byte, RegionSize+len(d.Bytes))
	copy(buf[0:RegionSize], MarshalRegion(&d.Region))
	copy(buf[RegionSize:], d.Bytes)
	return buf
}

func UnmarshalData(data []byte, d *Data) error {
	if len(data) < RegionSize {
		return ErrShortBuffer
	}
	if err := UnmarshalRegion(data[0:RegionSize], &d.Region); err != nil {
		return err
	}
	d.Bytes = append([]byte(nil), data[RegionSize:]...)
	return nil
}

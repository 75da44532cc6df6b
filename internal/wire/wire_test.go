package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuperblockRoundTrip(t *testing.T) {
	sb := &SuperBlock{
		DeviceSize:     1 << 20,
		DataSpace:      1 << 19,
		DataStart:      1024,
		DataLength:     2048,
		MaxLength:      1 << 19,
		Version:        7,
		Flags:          FlagValid,
		Alignment:      8,
		NumSuperblocks: 9,
		ThisSuperblock: 3,
	}

	buf := MarshalSuperBlock(sb)
	require.Len(t, buf, SuperblockSize)
	assert.True(t, VerifySuperBlock(buf))

	var got SuperBlock
	require.NoError(t, UnmarshalSuperBlock(buf, &got))
	assert.Equal(t, sb.DeviceSize, got.DeviceSize)
	assert.Equal(t, sb.DataSpace, got.DataSpace)
	assert.Equal(t, sb.Version, got.Version)
	assert.Equal(t, sb.Flags, got.Flags)
	assert.Equal(t, Magic, got.Magic1)
	assert.Equal(t, Magic, got.Magic2)
}

func TestSuperblockCRCDetectsCorruption(t *testing.T) {
	sb := &SuperBlock{DeviceSize: 65536, NumSuperblocks: 9, Alignment: 8, Flags: FlagValid}
	buf := MarshalSuperBlock(sb)
	require.True(t, VerifySuperBlock(buf))

	buf[40] ^= 0xFF
	assert.False(t, VerifySuperBlock(buf))
}

func TestSuperblockLocation(t *testing.T) {
	assert.Equal(t, uint64(0), Location(0))
	assert.Equal(t, uint64(20), Location(1))
	assert.Equal(t, uint64(72), Location(2))
}

func TestHeaderRoundTrip(t *testing.T) {
	h := &Header{
		NextHeader: 64,
		Operation:  OpWrite,
		ReqSec:     1234567890,
		ReqNsec:    42,
		Result:     0,
		Flags:      FlagFILE1,
	}
	buf := MarshalHeader(h)
	require.Len(t, buf, HeaderSize)
	assert.True(t, VerifyHeader(buf))

	var got Header
	require.NoError(t, UnmarshalHeader(buf, &got))
	assert.Equal(t, h.NextHeader, got.NextHeader)
	assert.Equal(t, h.Operation, got.Operation)
	assert.Equal(t, h.ReqSec, got.ReqSec)
}

func TestHeaderCRCDetectsCorruption(t *testing.T) {
	h := &Header{NextHeader: 32, Operation: OpMeta}
	buf := MarshalHeader(h)
	require.True(t, VerifyHeader(buf))
	buf[4] ^= 0x01
	assert.False(t, VerifyHeader(buf))
}

func TestCredentialsRoundTrip(t *testing.T) {
	c := &Credentials{UID: 1000, EUID: 1000, FSUID: 1000, GID: 1000, EGID: 1000, FSGID: 1000}
	buf := MarshalCredentials(c)
	require.Len(t, buf, CredentialsSize)

	var got Credentials
	require.NoError(t, UnmarshalCredentials(buf, &got))
	assert.Equal(t, *c, got)
}

func TestPayloadSizeFixed(t *testing.T) {
	size, fixed := PayloadSize(FlagSIZE)
	assert.True(t, fixed)
	assert.Equal(t, 8, size)

	size, fixed = PayloadSize(FlagDATA)
	assert.False(t, fixed)
	assert.Equal(t, 0, size)
}

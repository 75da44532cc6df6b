package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gladserv/shallfs/internal/wire"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	now := time.Now()
	size := uint64(4096)
	buf, err := Encode(wire.OpWrite, 0, 8, 1<<20, now, Fields{
		Creds: &wire.Credentials{UID: 1000, GID: 1000},
		File1: []byte("/tmp/foo"),
		Size:  &size,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, len(buf)%8)

	rec, consumed, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), consumed)
	assert.Equal(t, wire.OpWrite, rec.Header.Operation)
	require.NotNil(t, rec.Fields.Creds)
	assert.Equal(t, uint64(1000), rec.Fields.Creds.UID)
	assert.Equal(t, "/tmp/foo", string(rec.Fields.File1))
	require.NotNil(t, rec.Fields.Size)
	assert.Equal(t, size, *rec.Fields.Size)
}

func TestEncodeRejectsMultiplePayloads(t *testing.T) {
	size := uint64(10)
	fileID := uint32(5)
	_, err := Encode(wire.OpMeta, 0, 8, 4096, time.Now(), Fields{
		Size:   &size,
		FileID: &fileID,
	})
	assert.ErrorIs(t, err, ErrMultiplePayloads)
}

func TestEncodeTooBig(t *testing.T) {
	_, err := Encode(wire.OpWrite, 0, 8, 16, time.Now(), Fields{
		File1: make([]byte, 1024),
	})
	assert.ErrorIs(t, err, ErrTooBig)
}

func TestEncodeTooBigMarker(t *testing.T) {
	marker := EncodeTooBigMarker(8, time.Now(), 1<<20)
	rec, consumed, err := Decode(marker)
	require.NoError(t, err)
	assert.Equal(t, len(marker), consumed)
	assert.Equal(t, wire.OpTooBig, rec.Header.Operation)
	require.NotNil(t, rec.Fields.Size)
	assert.Equal(t, uint64(1<<20), *rec.Fields.Size)
}

func TestDecodeDetectsCRCFailure(t *testing.T) {
	buf, err := Encode(wire.OpMkdir, 0, 8, 4096, time.Now(), Fields{})
	require.NoError(t, err)
	buf[1] ^= 0xFF

	_, _, err = Decode(buf)
	assert.ErrorIs(t, err, ErrCRC)
}

func TestDecodeShortRecord(t *testing.T) {
	_, _, err := Decode([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrShortRecord)
}

func TestDecodeMultipleRecordsFromStream(t *testing.T) {
	a, err := Encode(wire.OpOpen, 0, 8, 4096, time.Now(), Fields{File1: []byte("a")})
	require.NoError(t, err)
	b, err := Encode(wire.OpClose, 0, 8, 4096, time.Now(), Fields{File1: []byte("bb")})
	require.NoError(t, err)

	stream := append(append([]byte{}, a...), b...)

	rec1, n1, err := Decode(stream)
	require.NoError(t, err)
	assert.Equal(t, wire.OpOpen, rec1.Header.Operation)

	rec2, n2, err := Decode(stream[n1:])
	require.NoError(t, err)
	assert.Equal(t, wire.OpClose, rec2.Header.Operation)
	assert.Equal(t, len(stream), n1+n2)
}

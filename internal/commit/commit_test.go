package commit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gladserv/shallfs/internal/ioring"
	"github.com/gladserv/shallfs/internal/layout"
	"github.com/gladserv/shallfs/internal/overflow"
	"github.com/gladserv/shallfs/internal/record"
	"github.com/gladserv/shallfs/internal/wire"
)

const testDeviceSize = 8 << 20 // large enough for 9 superblocks at their quadratic offsets

func newTestEngine(t *testing.T, commitSize int) *Engine {
	t.Helper()
	dev := ioring.NewMemDevice(testDeviceSize)
	dataSpace := uint64(testDeviceSize) - wire.BlockSize*9

	e := New(Config{
		Device:         dev,
		DeviceSize:     testDeviceSize,
		DataSpace:      dataSpace,
		DataStart:      0,
		DataLength:     0,
		MaxLength:      dataSpace,
		Version:        0,
		NumSuperblocks: 9,
		LastSBWritten:  0,
		Alignment:      8,
		CommitSize:     commitSize,
		CommitInterval: time.Hour, // manual Commit() drives flushes in these tests
		SyncOnCommit:   false,
		Policy:         overflow.Drop,
	})
	e.Start()
	t.Cleanup(e.Stop)
	return e
}

func encodeRecord(t *testing.T, op wire.Operation, text string) []byte {
	t.Helper()
	buf, err := record.Encode(op, 0, 8, 1<<20, time.Now(), record.Fields{File1: []byte(text)})
	require.NoError(t, err)
	return buf
}

func TestAppendAndCommitRoundTrip(t *testing.T) {
	e := newTestEngine(t, 4096)
	ctx := context.Background()

	rec := encodeRecord(t, wire.OpWrite, "hello")
	require.NoError(t, e.Append(ctx, rec))
	require.NoError(t, e.Commit(nil))

	out := make([]byte, 65536)
	n, err := e.ReadRecords(out)
	require.NoError(t, err)
	require.Greater(t, n, 0)

	got, consumed, err := record.Decode(out[:n])
	require.NoError(t, err)
	assert.Equal(t, n, consumed)
	assert.Equal(t, wire.OpWrite, got.Header.Operation)
	assert.Equal(t, "hello", string(got.Fields.File1))
}

func TestDiscardSkipsRecordsWithoutDecoding(t *testing.T) {
	e := newTestEngine(t, 4096)
	ctx := context.Background()

	first := encodeRecord(t, wire.OpOpen, "a")
	second := encodeRecord(t, wire.OpClose, "bb")
	require.NoError(t, e.Append(ctx, first))
	require.NoError(t, e.Append(ctx, second))
	require.NoError(t, e.Commit(nil))

	discarded, err := e.Discard(uint64(len(first)))
	require.NoError(t, err)
	assert.Equal(t, uint64(len(first)), discarded)

	out := make([]byte, 65536)
	n, err := e.ReadRecords(out)
	require.NoError(t, err)

	got, _, err := record.Decode(out[:n])
	require.NoError(t, err)
	assert.Equal(t, wire.OpClose, got.Header.Operation)
}

func TestCommitIsIdempotentWhenBufferEmpty(t *testing.T) {
	e := newTestEngine(t, 4096)
	require.NoError(t, e.Commit(nil))
	require.NoError(t, e.Commit(nil))
	assert.Equal(t, uint64(0), e.Snapshot().DataLength)
}

func TestWaitDataUnblocksOnAppend(t *testing.T) {
	e := newTestEngine(t, 4096)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- e.WaitData(ctx) }()

	require.NoError(t, e.Append(context.Background(), encodeRecord(t, wire.OpWrite, "x")))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("WaitData did not unblock after Append")
	}
}

func TestAppendRejectsOversizedRecord(t *testing.T) {
	e := newTestEngine(t, 64)
	err := e.Append(context.Background(), make([]byte, 128))
	assert.ErrorIs(t, err, ErrTooBig)
}

func TestReadRecordsSeesUncommittedBufferTail(t *testing.T) {
	e := newTestEngine(t, 4096)
	ctx := context.Background()

	rec := encodeRecord(t, wire.OpWrite, "uncommitted")
	require.NoError(t, e.Append(ctx, rec))

	// No Commit() yet: the record only exists in the in-memory buffer.
	out := make([]byte, 65536)
	n, err := e.ReadRecords(out)
	require.NoError(t, err)
	require.Greater(t, n, 0)

	got, consumed, err := record.Decode(out[:n])
	require.NoError(t, err)
	assert.Equal(t, n, consumed)
	assert.Equal(t, "uncommitted", string(got.Fields.File1))

	// Delivered records retire from the buffer so a later commit has
	// nothing left to flush and a later read sees nothing more.
	require.NoError(t, e.Commit(nil))
	assert.Equal(t, uint64(0), e.Snapshot().DataLength)

	n, err = e.ReadRecords(out)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestFinalizeCleanClearsDirtyAndSpreadsSuperblocks(t *testing.T) {
	e := newTestEngine(t, 4096)
	ctx := context.Background()

	require.NoError(t, e.Append(ctx, encodeRecord(t, wire.OpWrite, "x")))
	require.NoError(t, e.Commit(nil))
	require.NoError(t, e.FinalizeClean())

	var clean int
	for _, idx := range layout.SpreadIndices(9, cleanSpreadCount) {
		sb, err := layout.ReadSuperblockRaw(e.dev, idx)
		require.NoError(t, err)
		assert.NotZero(t, sb.Flags&wire.FlagValid)
		assert.Zero(t, sb.Flags&wire.FlagDirty)
		clean++
	}
	assert.Equal(t, cleanSpreadCount, clean)
}

func TestReadRecordsMixesCommittedAndBufferTail(t *testing.T) {
	e := newTestEngine(t, 4096)
	ctx := context.Background()

	first := encodeRecord(t, wire.OpOpen, "flushed")
	require.NoError(t, e.Append(ctx, first))
	require.NoError(t, e.Commit(nil))

	second := encodeRecord(t, wire.OpClose, "pending")
	require.NoError(t, e.Append(ctx, second))

	out := make([]byte, 65536)
	n, err := e.ReadRecords(out)
	require.NoError(t, err)

	firstGot, consumed, err := record.Decode(out[:n])
	require.NoError(t, err)
	assert.Equal(t, "flushed", string(firstGot.Fields.File1))

	secondGot, _, err := record.Decode(out[consumed:n])
	require.NoError(t, err)
	assert.Equal(t, "pending", string(secondGot.Fields.File1))
}

package reader

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gladserv/shallfs/internal/commit"
	"github.com/gladserv/shallfs/internal/ioring"
	"github.com/gladserv/shallfs/internal/overflow"
	"github.com/gladserv/shallfs/internal/record"
	"github.com/gladserv/shallfs/internal/wire"
)

const testDeviceSize = 8 << 20

func newTestEngine(t *testing.T) *commit.Engine {
	t.Helper()
	dev := ioring.NewMemDevice(testDeviceSize)
	dataSpace := uint64(testDeviceSize) - wire.BlockSize*9

	e := commit.New(commit.Config{
		Device:         dev,
		DeviceSize:     testDeviceSize,
		DataSpace:      dataSpace,
		MaxLength:      dataSpace,
		NumSuperblocks: 9,
		Alignment:      8,
		CommitSize:     4096,
		CommitInterval: time.Hour,
		Policy:         overflow.Drop,
	})
	e.Start()
	t.Cleanup(e.Stop)
	return e
}

func TestParseCommandCommit(t *testing.T) {
	cmd, err := ParseCommand("commit\n")
	require.NoError(t, err)
	assert.Equal(t, CommandCommit, cmd.Kind)
}

func TestParseCommandClear(t *testing.T) {
	cmd, err := ParseCommand("clear 4096")
	require.NoError(t, err)
	assert.Equal(t, CommandClear, cmd.Kind)
	assert.Equal(t, uint64(4096), cmd.N)
}

func TestParseCommandClearBadArg(t *testing.T) {
	_, err := ParseCommand("clear not-a-number")
	assert.ErrorIs(t, err, ErrBadCommand)
}

func TestParseCommandUserlog(t *testing.T) {
	cmd, err := ParseCommand("userlog hello world")
	require.NoError(t, err)
	assert.Equal(t, CommandUserlog, cmd.Kind)
	assert.Equal(t, "hello world", cmd.Text)
}

func TestParseCommandUserlogTooLong(t *testing.T) {
	text := make([]byte, MaxUserlogText+1)
	_, err := ParseCommand("userlog " + string(text))
	assert.ErrorIs(t, err, ErrTextTooLong)
}

func TestParseCommandUnknown(t *testing.T) {
	_, err := ParseCommand("frobnicate")
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestApplyUserlogThenDrain(t *testing.T) {
	eng := newTestEngine(t)

	require.NoError(t, Apply(eng, 8, Command{Kind: CommandUserlog, Text: "operator note"}))
	require.NoError(t, Apply(eng, 8, Command{Kind: CommandCommit}))

	r := New(eng)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	recs, err := r.Drain(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, wire.OpUserlog, recs[0].Header.Operation)
	assert.Equal(t, "operator note", string(recs[0].Fields.File1))
}

func TestApplyClearDiscardsBytes(t *testing.T) {
	eng := newTestEngine(t)

	rec, err := record.Encode(wire.OpOpen, 0, 8, 4096, time.Now(), record.Fields{File1: []byte("a")})
	require.NoError(t, err)
	require.NoError(t, eng.Append(context.Background(), rec))
	require.NoError(t, eng.Commit(nil))

	err = Apply(eng, 8, Command{Kind: CommandClear, N: uint64(len(rec))})
	require.NoError(t, err)

	r := New(eng)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = r.Drain(ctx)
	assert.Error(t, err) // nothing left, WaitData times out via ctx
}

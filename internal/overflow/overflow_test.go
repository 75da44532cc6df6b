package overflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordOverflowReportsFirst(t *testing.T) {
	q := &Queue{}

	first := q.RecordOverflow(100)
	assert.True(t, first)

	second := q.RecordOverflow(50)
	assert.False(t, second)

	dropped, extra := q.Snapshot()
	assert.Equal(t, uint64(2), dropped)
	assert.Equal(t, uint64(150), extra)
}

func TestRecoverResetsCounters(t *testing.T) {
	q := &Queue{}
	q.RecordOverflow(10)
	q.RecordOverflow(20)

	dropped, extra, had := q.Recover()
	assert.True(t, had)
	assert.Equal(t, uint64(2), dropped)
	assert.Equal(t, uint64(30), extra)

	dropped, extra, had = q.Recover()
	assert.False(t, had)
	assert.Zero(t, dropped)
	assert.Zero(t, extra)
}

func TestRecoverOnCleanQueueReportsNoOverflow(t *testing.T) {
	q := &Queue{}
	_, _, had := q.Recover()
	assert.False(t, had)
}

package reader

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetBufferBucketsBySize(t *testing.T) {
	buf := getBuffer(100)
	assert.Len(t, buf, 100)
	assert.Equal(t, size4k, cap(buf))
	putBuffer(buf)
}

func TestGetBufferOversizeFallsBackToAlloc(t *testing.T) {
	buf := getBuffer(size1m + 1)
	assert.Len(t, buf, size1m+1)
	putBuffer(buf) // no matching bucket, silently dropped
}

func TestPutBufferRoundTrip(t *testing.T) {
	buf := getBuffer(size64k)
	putBuffer(buf)
	again := getBuffer(size64k)
	assert.Equal(t, size64k, cap(again))
	putBuffer(again)
}

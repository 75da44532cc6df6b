package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gladserv/shallfs/internal/commit"
)

func TestRegisterLookupUnregister(t *testing.T) {
	r := &Registry{}
	id := ID{Major: 8, Minor: 1}
	eng := &commit.Engine{}

	require.NoError(t, r.Register(id, eng))
	got, ok := r.Lookup(id)
	require.True(t, ok)
	assert.Same(t, eng, got)
	assert.Equal(t, 1, r.Len())

	r.Unregister(id)
	_, ok = r.Lookup(id)
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}

func TestRegisterRejectsDuplicate(t *testing.T) {
	r := &Registry{}
	id := ID{Major: 8, Minor: 2}
	require.NoError(t, r.Register(id, &commit.Engine{}))

	err := r.Register(id, &commit.Engine{})
	assert.ErrorIs(t, err, ErrAlreadyMounted)
}

func TestIDFromCounterIsUnique(t *testing.T) {
	a := IDFromCounter()
	b := IDFromCounter()
	assert.NotEqual(t, a, b)
	assert.Equal(t, uint32(0), a.Major)
}

func TestUnregisterMissingIsNoOp(t *testing.T) {
	r := &Registry{}
	assert.NotPanics(t, func() { r.Unregister(ID{Major: 1, Minor: 1}) })
}

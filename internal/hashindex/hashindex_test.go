package hashindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/ccml/internal/arena"
)

func newIndex(t *testing.T, capacity int) *Index {
	t.Helper()
	a, err := arena.New(1 << 16)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Release() })
	x, err := New(a, capacity)
	require.NoError(t, err)
	return x
}

func TestCapacityRoundsUp(t *testing.T) {
	assert.Equal(t, 8, newIndex(t, 5).Cap())
	assert.Equal(t, 16, newIndex(t, 16).Cap())
	assert.Equal(t, 1, newIndex(t, 0).Cap())
}

func TestSetGet(t *testing.T) {
	x := newIndex(t, 8)

	for k := range uint64(8) {
		require.NoError(t, x.Set(k*1024, int32(k)))
	}
	assert.Equal(t, 8, x.Len())
	for k := range uint64(8) {
		v, ok := x.Get(k * 1024)
		require.True(t, ok)
		assert.Equal(t, int32(k), v)
	}
	assert.False(t, x.Has(99))

	require.NoError(t, x.Set(0, 42))
	v, _ := x.Get(0)
	assert.Equal(t, int32(42), v)
	assert.Equal(t, 8, x.Len())

	require.ErrorIs(t, x.Set(12345, 1), ErrFull)
}

func TestReset(t *testing.T) {
	x := newIndex(t, 4)
	require.NoError(t, x.Set(3, 3))
	x.Reset()
	assert.Zero(t, x.Len())
	assert.False(t, x.Has(3))
}

func TestArenaCharge(t *testing.T) {
	a, err := arena.New(64)
	require.NoError(t, err)
	defer func() { _ = a.Release() }()

	_, err = New(a, 1024)
	require.ErrorIs(t, err, arena.ErrExhausted)
}

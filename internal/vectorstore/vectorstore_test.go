package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStride(t *testing.T) {
	assert.Equal(t, 64, Stride(1))
	assert.Equal(t, 64, Stride(64))
	assert.Equal(t, 128, Stride(65))
}

func TestOwningSetGet(t *testing.T) {
	s := New(8)
	require.NoError(t, s.Reserve(4))
	assert.Equal(t, 4, s.Capacity())

	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	require.NoError(t, s.Set(2, data, true))

	got := s.Get(2)
	assert.Equal(t, data, got)

	// The arena owns its copy.
	data[0] = 99
	assert.Equal(t, byte(1), s.Get(2)[0])
}

func TestBorrowingSetGet(t *testing.T) {
	s := New(4)
	require.NoError(t, s.Reserve(2))

	data := []byte{9, 9, 9, 9}
	require.NoError(t, s.Set(0, data, false))
	assert.True(t, s.Borrowed())

	// The caller's slice is referenced, not copied.
	data[0] = 1
	assert.Equal(t, byte(1), s.Get(0)[0])
}

func TestReservePreservesContents(t *testing.T) {
	s := New(4)
	require.NoError(t, s.Reserve(1))
	require.NoError(t, s.Set(0, []byte{1, 2, 3, 4}, true))

	require.NoError(t, s.Reserve(8))
	assert.Equal(t, 8, s.Capacity())
	assert.Equal(t, []byte{1, 2, 3, 4}, s.Get(0))
}

func TestViewIsImmutable(t *testing.T) {
	arena := make([]byte, 2*Stride(4))
	copy(arena, []byte{1, 2, 3, 4})

	s := NewView(4, arena)
	assert.Equal(t, []byte{1, 2, 3, 4}, s.Get(0))
	assert.ErrorIs(t, s.Set(0, []byte{9}, true), ErrImmutable)
	assert.ErrorIs(t, s.Reserve(4), ErrImmutable)
}

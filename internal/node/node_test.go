package node

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocAndAccess(t *testing.T) {
	s := NewStore(4)
	s.Reserve(8)
	require.Equal(t, 8, s.Capacity())

	s.Alloc(0, 42, 2)
	assert.Equal(t, int64(42), s.Label(0))
	assert.Equal(t, 2, s.Top(0))
	assert.Equal(t, 8, s.LayerCap(0))
	assert.Equal(t, 4, s.LayerCap(1))
	assert.Equal(t, 0, s.Count(0, 0))
}

func TestAppendAndReplace(t *testing.T) {
	s := NewStore(2)
	s.Reserve(4)
	s.Alloc(0, 1, 0)

	require.True(t, s.Append(0, 0, 1))
	require.True(t, s.Append(0, 0, 2))
	require.True(t, s.Append(0, 0, 3))
	require.True(t, s.Append(0, 0, 4))
	// Layer 0 cap is 2*M = 4.
	assert.False(t, s.Append(0, 0, 5))

	nb := s.Neighbors(0, 0, nil)
	assert.Equal(t, []uint32{1, 2, 3, 4}, nb)

	s.Replace(0, 0, []uint32{9, 8})
	nb = s.Neighbors(0, 0, nb)
	assert.Equal(t, []uint32{9, 8}, nb)
}

func TestNeighborsOfUnfilledSlot(t *testing.T) {
	s := NewStore(2)
	s.Reserve(2)

	assert.Nil(t, s.Get(0))
	assert.Equal(t, -1, s.Top(0))
	assert.Empty(t, s.Neighbors(0, 0, nil))
}

func TestReserveKeepsNodes(t *testing.T) {
	s := NewStore(2)
	s.Reserve(2)
	s.Alloc(0, 7, 1)
	s.Append(0, 1, 1)

	s.Reserve(16)
	assert.Equal(t, 16, s.Capacity())
	assert.Equal(t, int64(7), s.Label(0))
	assert.Equal(t, []uint32{1}, s.Neighbors(0, 1, nil))

	// Shrinking is a no-op.
	s.Reserve(4)
	assert.Equal(t, 16, s.Capacity())
}

func TestClear(t *testing.T) {
	s := NewStore(2)
	s.Reserve(4)
	s.Alloc(0, 7, 0)

	s.Clear()
	assert.Equal(t, 4, s.Capacity())
	assert.Nil(t, s.Get(0))
}

func TestViewNode(t *testing.T) {
	layers := [][]uint32{{1, 2, 3}, {2}}
	n := View(55, layers)
	nodes := make([]*Node, 4)
	nodes[0] = n

	s := NewViewStore(4, nodes)
	assert.True(t, s.Immutable())
	assert.Equal(t, 4, s.Capacity())
	assert.Equal(t, int64(55), s.Label(0))
	assert.Equal(t, 1, s.Top(0))
	assert.Equal(t, []uint32{1, 2, 3}, s.Neighbors(0, 0, nil))
	assert.Equal(t, []uint32{2}, s.Neighbors(0, 1, nil))
}

func TestLockSerializesWriters(t *testing.T) {
	s := NewStore(8)
	s.Reserve(2)
	s.Alloc(0, 1, 0)

	const writers = 8
	const perWriter = 100

	var wg sync.WaitGroup
	counter := 0
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				s.Lock(0)
				counter++
				s.Unlock(0)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, writers*perWriter, counter)
}

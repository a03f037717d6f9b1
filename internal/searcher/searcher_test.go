package searcher

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolWorkersAreDistinct(t *testing.T) {
	p := NewPool(4, 100, 64, 32, 1)
	require.Equal(t, 4, p.Workers())

	seen := map[*Searcher]bool{}
	for i := 0; i < 4; i++ {
		s := p.Worker(i)
		assert.False(t, seen[s])
		seen[s] = true
	}
}

func TestAcquireRelease(t *testing.T) {
	p := NewPool(2, 10, 8, 8, 1)

	id1, s1 := p.Acquire()
	id2, s2 := p.Acquire()
	assert.NotEqual(t, id1, id2)
	assert.NotSame(t, s1, s2)

	p.Release(id1)
	id3, _ := p.Acquire()
	assert.Equal(t, id1, id3)
	p.Release(id2)
	p.Release(id3)
}

func TestNextLayerReproducible(t *testing.T) {
	lambda := 1 / math.Log(16)

	a := NewPool(1, 0, 8, 8, 42).Worker(0)
	b := NewPool(1, 0, 8, 8, 42).Worker(0)
	for i := 0; i < 1000; i++ {
		assert.Equal(t, a.NextLayer(lambda), b.NextLayer(lambda))
	}
}

func TestWorkersDrawIndependently(t *testing.T) {
	lambda := 1 / math.Log(16)
	p := NewPool(2, 0, 8, 8, 42)

	same := 0
	const draws = 1000
	for i := 0; i < draws; i++ {
		if p.Worker(0).NextLayer(lambda) == p.Worker(1).NextLayer(lambda) {
			same++
		}
	}
	// Both mostly draw layer 0, but the streams must not be identical
	// beyond that base rate.
	assert.Less(t, same, draws)
}

func TestGrow(t *testing.T) {
	p := NewPool(2, 4, 8, 8, 1)
	p.Grow(128)
	for i := 0; i < 2; i++ {
		assert.Equal(t, 128, p.Worker(i).Visited.Cap())
	}
}

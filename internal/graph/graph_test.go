package graph

import (
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EvandroLG/usearch/distance"
	"github.com/EvandroLG/usearch/internal/node"
	"github.com/EvandroLG/usearch/internal/queue"
	"github.com/EvandroLG/usearch/internal/searcher"
	"github.com/EvandroLG/usearch/internal/vectorstore"
)

func newTestGraph(t testing.TB, dims, capacity, m, workers int) (*Graph, *searcher.Pool) {
	t.Helper()

	dist, err := distance.Resolve(distance.KindL2Sq, distance.ScalarF32, dims)
	require.NoError(t, err)

	cfg := Config{
		M:              m,
		M0:             2 * m,
		EFConstruction: 128,
		EFSearch:       64,
		LevelLambda:    1 / math.Log(float64(m)),
	}

	nodes := node.NewStore(m)
	nodes.Reserve(capacity)
	vectors := vectorstore.New(dims * 4)
	require.NoError(t, vectors.Reserve(capacity))

	g := New(cfg, nodes, vectors, dist)
	pool := searcher.NewPool(workers, capacity, 128, cfg.M0, 1)
	return g, pool
}

func encode(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	distance.EncodeFloats(buf, v, distance.ScalarF32)
	return buf
}

func randomVector(rng *rand.Rand, dims int) []float32 {
	v := make([]float32, dims)
	for i := range v {
		v[i] = rng.Float32()
	}
	return v
}

func TestEmptySearch(t *testing.T) {
	g, pool := newTestGraph(t, 4, 8, 4, 1)
	labels := make([]int64, 3)
	dists := make([]float32, 3)
	n := g.Search(encode([]float32{1, 2, 3, 4}), 3, 64, pool.Worker(0), labels, dists)
	assert.Equal(t, 0, n)
}

func TestFirstInsertBecomesEntry(t *testing.T) {
	g, pool := newTestGraph(t, 2, 8, 4, 1)
	id, err := g.Add(7, encode([]float32{1, 0}), true, pool.Worker(0))
	require.NoError(t, err)
	assert.Equal(t, uint32(0), id)
	assert.Equal(t, uint32(0), g.Entry())
	assert.Equal(t, g.Nodes().Top(0), g.MaxLevel())
	assert.Equal(t, 1, g.Size())
}

func TestOutOfCapacity(t *testing.T) {
	g, pool := newTestGraph(t, 2, 2, 4, 1)
	s := pool.Worker(0)

	_, err := g.Add(1, encode([]float32{0, 0}), true, s)
	require.NoError(t, err)
	_, err = g.Add(2, encode([]float32{1, 1}), true, s)
	require.NoError(t, err)
	_, err = g.Add(3, encode([]float32{2, 2}), true, s)
	assert.ErrorIs(t, err, ErrOutOfCapacity)
	assert.Equal(t, 2, g.Size())
}

func TestSearchReturnsAscendingWithIDTieBreak(t *testing.T) {
	g, pool := newTestGraph(t, 2, 16, 4, 1)
	s := pool.Worker(0)

	// Two identical points and one farther away.
	_, err := g.Add(10, encode([]float32{1, 0}), true, s)
	require.NoError(t, err)
	_, err = g.Add(20, encode([]float32{1, 0}), true, s)
	require.NoError(t, err)
	_, err = g.Add(30, encode([]float32{5, 5}), true, s)
	require.NoError(t, err)

	labels := make([]int64, 3)
	dists := make([]float32, 3)
	n := g.Search(encode([]float32{1, 0}), 3, 64, s, labels, dists)
	require.Equal(t, 3, n)

	assert.Equal(t, []int64{10, 20, 30}, labels)
	assert.Equal(t, float32(0), dists[0])
	assert.Equal(t, float32(0), dists[1])
	assert.Greater(t, dists[2], float32(0))
}

func TestClearKeepsCapacity(t *testing.T) {
	g, pool := newTestGraph(t, 2, 8, 4, 1)
	s := pool.Worker(0)

	_, err := g.Add(1, encode([]float32{0, 1}), true, s)
	require.NoError(t, err)

	g.Clear()
	assert.Equal(t, 0, g.Size())
	assert.Equal(t, 8, g.Capacity())
	assert.Equal(t, EntryNone, g.Entry())

	labels := make([]int64, 1)
	dists := make([]float32, 1)
	assert.Equal(t, 0, g.Search(encode([]float32{0, 1}), 1, 64, s, labels, dists))

	// The index is reusable after Clear.
	id, err := g.Add(2, encode([]float32{1, 0}), true, s)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), id)
}

// checkStructure verifies layer monotonicity, degree bounds, and the
// absence of self-loops and duplicates on every committed node.
func checkStructure(t *testing.T, g *Graph) {
	t.Helper()
	size := g.Size()
	nodes := g.Nodes()

	var buf []uint32
	for id := uint32(0); int(id) < size; id++ {
		top := nodes.Top(id)
		for layer := 0; layer <= top; layer++ {
			buf = nodes.Neighbors(id, layer, buf)
			assert.LessOrEqual(t, len(buf), nodes.LayerCap(layer),
				"node %d layer %d exceeds degree bound", id, layer)

			seen := make(map[uint32]bool, len(buf))
			for _, m := range buf {
				assert.NotEqual(t, id, m, "node %d has a self-loop at layer %d", id, layer)
				assert.False(t, seen[m], "node %d has duplicate neighbor %d at layer %d", id, m, layer)
				seen[m] = true
				assert.Less(t, int(m), size, "node %d links to unborn id %d", id, m)
				assert.GreaterOrEqual(t, nodes.Top(m), layer,
					"edge %d->%d at layer %d above neighbor's top layer", id, m, layer)
			}
		}
	}

	if size > 0 {
		entry := g.Entry()
		require.NotEqual(t, EntryNone, entry)
		assert.Equal(t, g.MaxLevel(), nodes.Top(entry))
	}
}

// checkReciprocity verifies that a one-directional edge is explained by the
// pruning heuristic: re-running the selection on the target's current list
// plus the missing back-link must reject the back-link. Concurrent pruning
// can reshuffle lists between the eviction and the check, so a small
// violation ratio is tolerated.
func checkReciprocity(t *testing.T, g *Graph) {
	t.Helper()
	size := g.Size()
	nodes := g.Nodes()

	edges, violations := 0, 0
	var nb, back []uint32
	for id := uint32(0); int(id) < size; id++ {
		for layer := 0; layer <= nodes.Top(id); layer++ {
			nb = nodes.Neighbors(id, layer, nb)
			for _, m := range nb {
				edges++
				back = nodes.Neighbors(m, layer, back)
				found := false
				for _, r := range back {
					if r == id {
						found = true
						break
					}
				}
				if found {
					continue
				}
				if keptByHeuristic(g, m, id, back, nodes.LayerCap(layer)) {
					violations++
				}
			}
		}
	}

	if edges > 0 {
		ratio := float64(violations) / float64(edges)
		assert.Less(t, ratio, 0.02, "unexplained one-directional edges: %d of %d", violations, edges)
	}
}

// keptByHeuristic re-runs the diversified selection over list+candidate
// around the owner and reports whether the candidate survives.
func keptByHeuristic(g *Graph, owner, candidate uint32, list []uint32, limit int) bool {
	ov := g.vectors.Get(owner)
	cands := make([]queue.Item, 0, len(list)+1)
	cands = append(cands, queue.Item{ID: candidate, Distance: g.dist(ov, g.vectors.Get(candidate))})
	for _, m := range list {
		cands = append(cands, queue.Item{ID: m, Distance: g.dist(ov, g.vectors.Get(m))})
	}
	sortItems(cands)

	keptItems := make([]queue.Item, 0, limit)
	for _, c := range cands {
		if len(keptItems) >= limit {
			break
		}
		cv := g.vectors.Get(c.ID)
		good := true
		for _, y := range keptItems {
			if g.dist(cv, g.vectors.Get(y.ID)) < c.Distance {
				good = false
				break
			}
		}
		if good {
			if c.ID == candidate {
				return true
			}
			keptItems = append(keptItems, c)
		}
	}
	return false
}

func TestInvariantsAfterSequentialBuild(t *testing.T) {
	const (
		dims = 8
		n    = 2000
	)
	g, pool := newTestGraph(t, dims, n, 8, 1)
	s := pool.Worker(0)
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < n; i++ {
		_, err := g.Add(int64(i), encode(randomVector(rng, dims)), true, s)
		require.NoError(t, err)
	}
	require.Equal(t, n, g.Size())

	checkStructure(t, g)
	checkReciprocity(t, g)
}

func TestConcurrentAddAndSearch(t *testing.T) {
	const (
		dims       = 8
		perWorker  = 2500
		addWorkers = 4
		total      = addWorkers * perWorker
	)
	g, pool := newTestGraph(t, dims, total, 8, addWorkers*2)

	var wg sync.WaitGroup
	for w := 0; w < addWorkers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			s := pool.Worker(worker)
			rng := rand.New(rand.NewSource(int64(worker)))
			base := int64(worker * perWorker)
			for i := 0; i < perWorker; i++ {
				_, err := g.Add(base+int64(i), encode(randomVector(rng, dims)), true, s)
				assert.NoError(t, err)
			}
		}(w)
	}
	for w := 0; w < addWorkers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			s := pool.Worker(addWorkers + worker)
			rng := rand.New(rand.NewSource(int64(100 + worker)))
			labels := make([]int64, 10)
			dists := make([]float32, 10)
			for i := 0; i < perWorker; i++ {
				n := g.Search(encode(randomVector(rng, dims)), 10, 64, s, labels, dists)
				for j := 1; j < n; j++ {
					assert.LessOrEqual(t, dists[j-1], dists[j])
				}
			}
		}(w)
	}
	wg.Wait()

	require.Equal(t, total, g.Size())
	checkStructure(t, g)
	checkReciprocity(t, g)
}

func TestExactMatchesBruteForce(t *testing.T) {
	const (
		dims = 4
		n    = 200
		k    = 5
	)
	g, pool := newTestGraph(t, dims, n, 8, 1)
	s := pool.Worker(0)
	rng := rand.New(rand.NewSource(3))

	vecs := make([][]float32, n)
	for i := 0; i < n; i++ {
		vecs[i] = randomVector(rng, dims)
		_, err := g.Add(int64(i), encode(vecs[i]), true, s)
		require.NoError(t, err)
	}

	q := randomVector(rng, dims)
	labels := make([]int64, k)
	dists := make([]float32, k)
	got := g.Exact(encode(q), k, s, labels, dists)
	require.Equal(t, k, got)

	// Reference scan.
	type pair struct {
		label int64
		d     float32
	}
	ref := make([]pair, n)
	for i, v := range vecs {
		var sum float32
		for j := range v {
			d := v[j] - q[j]
			sum += d * d
		}
		ref[i] = pair{label: int64(i), d: sum}
	}
	for i := 0; i < k; i++ {
		best := i
		for j := i + 1; j < n; j++ {
			if ref[j].d < ref[best].d || (ref[j].d == ref[best].d && ref[j].label < ref[best].label) {
				best = j
			}
		}
		ref[i], ref[best] = ref[best], ref[i]
		assert.Equal(t, ref[i].label, labels[i])
		assert.InDelta(t, ref[i].d, dists[i], 1e-5)
	}
}

func TestLayerDrawDistribution(t *testing.T) {
	pool := searcher.NewPool(1, 0, 8, 8, 42)
	s := pool.Worker(0)
	lambda := 1 / math.Log(16)

	counts := make(map[int]int)
	const draws = 100000
	for i := 0; i < draws; i++ {
		counts[s.NextLayer(lambda)]++
	}

	// Roughly 1/M of the draws land above layer 0.
	assert.Greater(t, counts[0], draws*90/100)
	assert.Greater(t, draws-counts[0], draws/100)
}

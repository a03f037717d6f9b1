// Package graph implements the hierarchical proximity graph: a layered
// navigable small-world structure with concurrent insertion and best-first
// search. Layer 0 holds every node; each higher layer is exponentially
// sparser and serves as a coarse routing level for greedy descent.
package graph

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/EvandroLG/usearch/distance"
	"github.com/EvandroLG/usearch/internal/node"
	"github.com/EvandroLG/usearch/internal/queue"
	"github.com/EvandroLG/usearch/internal/searcher"
	"github.com/EvandroLG/usearch/internal/vectorstore"
)

// EntryNone marks an empty index; it doubles as the on-disk encoding.
const EntryNone = ^uint32(0)

// ErrOutOfCapacity is returned by Add when every reserved slot is in use.
// Growth is caller-owned: reserve more and retry.
var ErrOutOfCapacity = errors.New("index is out of capacity")

// Config carries the construction-time graph parameters.
type Config struct {
	M              int
	M0             int
	EFConstruction int
	EFSearch       int
	LevelLambda    float64
}

// Graph binds the node store, the vector arena and a distance kernel into
// the proximity graph.
type Graph struct {
	cfg     Config
	nodes   *node.Store
	vectors *vectorstore.Store
	dist    distance.Func

	size     atomic.Uint32
	entry    atomic.Uint32
	maxLevel atomic.Int32
	entryMu  sync.Mutex
}

// New creates an empty graph over the given stores.
func New(cfg Config, nodes *node.Store, vectors *vectorstore.Store, dist distance.Func) *Graph {
	g := &Graph{cfg: cfg, nodes: nodes, vectors: vectors, dist: dist}
	g.entry.Store(EntryNone)
	g.maxLevel.Store(-1)
	return g
}

// Config returns the construction parameters.
func (g *Graph) Config() Config { return g.cfg }

// Nodes returns the underlying node store.
func (g *Graph) Nodes() *node.Store { return g.nodes }

// Vectors returns the underlying vector store.
func (g *Graph) Vectors() *vectorstore.Store { return g.vectors }

// Size returns the number of committed nodes.
func (g *Graph) Size() int { return int(g.size.Load()) }

// Capacity returns the number of reserved slots.
func (g *Graph) Capacity() int { return g.nodes.Capacity() }

// Entry returns the current entry point, or EntryNone when empty.
func (g *Graph) Entry() uint32 { return g.entry.Load() }

// MaxLevel returns the highest top layer across all nodes, or -1 when empty.
func (g *Graph) MaxLevel() int { return int(g.maxLevel.Load()) }

// Restore resets the graph state after deserialization.
func (g *Graph) Restore(size, entry uint32, maxLevel int32) {
	g.size.Store(size)
	g.entry.Store(entry)
	g.maxLevel.Store(maxLevel)
}

// Clear forgets every node but keeps the reserved capacity. Caller must
// hold exclusive access.
func (g *Graph) Clear() {
	g.nodes.Clear()
	g.size.Store(0)
	g.entry.Store(EntryNone)
	g.maxLevel.Store(-1)
}

func (g *Graph) distTo(id uint32, q []byte) float32 {
	return g.dist(g.vectors.Get(id), q)
}

// Add inserts a vector under label and returns its internal id. The slot is
// consumed only after the capacity check and the random layer draw, so a
// failed Add never burns an id.
func (g *Graph) Add(label int64, vec []byte, copyVec bool, s *searcher.Searcher) (uint32, error) {
	top := s.NextLayer(g.cfg.LevelLambda)

	var id uint32
	capacity := uint32(g.nodes.Capacity())
	for {
		cur := g.size.Load()
		if cur >= capacity {
			return 0, ErrOutOfCapacity
		}
		if g.size.CompareAndSwap(cur, cur+1) {
			id = cur
			break
		}
	}

	g.nodes.Alloc(id, label, top)
	if err := g.vectors.Set(id, vec, copyVec); err != nil {
		return 0, err
	}

	if id == 0 {
		g.entryMu.Lock()
		g.maxLevel.Store(int32(top))
		g.entry.Store(id)
		g.entryMu.Unlock()
		return id, nil
	}

	// The first inserter publishes the entry point after its vector store;
	// later inserters racing with it wait for the publication.
	entry := g.entry.Load()
	for entry == EntryNone {
		runtime.Gosched()
		entry = g.entry.Load()
	}
	maxLevel := int(g.maxLevel.Load())

	cur, curDist := g.greedy(vec, entry, g.distTo(entry, vec), maxLevel, top, s)

	for layer := min(top, maxLevel); layer >= 0; layer-- {
		g.searchLayer(vec, cur, curDist, g.cfg.EFConstruction, layer, s)
		sorted := g.drainAscending(s)
		if len(sorted) == 0 {
			continue
		}
		cur, curDist = sorted[0].ID, sorted[0].Distance

		// connect reuses the Sorted and Kept scratch, so the selection is
		// moved into its own buffer first.
		s.Links = append(s.Links[:0], g.selectDiverse(sorted, g.nodes.LayerCap(layer), s)...)

		g.nodes.Lock(id)
		s.Neighbors = s.Neighbors[:0]
		for _, it := range s.Links {
			s.Neighbors = append(s.Neighbors, it.ID)
		}
		g.nodes.Replace(id, layer, s.Neighbors)
		g.nodes.Unlock(id)

		for _, it := range s.Links {
			g.connect(it.ID, id, layer, it.Distance, s)
		}
	}

	if top > maxLevel {
		g.entryMu.Lock()
		if int32(top) > g.maxLevel.Load() {
			g.maxLevel.Store(int32(top))
			g.entry.Store(id)
		}
		g.entryMu.Unlock()
	}

	return id, nil
}

// greedy descends from layer fromLevel down to toLevel+1, hill-climbing to
// the locally nearest node at each layer.
func (g *Graph) greedy(q []byte, cur uint32, curDist float32, fromLevel, toLevel int, s *searcher.Searcher) (uint32, float32) {
	for layer := fromLevel; layer > toLevel; layer-- {
		for changed := true; changed; {
			changed = false
			nb := g.nodes.Neighbors(cur, layer, s.Neighbors)
			for _, m := range nb {
				if d := g.distTo(m, q); d < curDist || (d == curDist && m < cur) {
					cur, curDist = m, d
					changed = true
				}
			}
			s.Neighbors = nb
		}
	}
	return cur, curDist
}

// searchLayer runs the bounded best-first expansion at one layer, leaving
// the kept beam in s.Results.
func (g *Graph) searchLayer(q []byte, entry uint32, entryDist float32, ef, layer int, s *searcher.Searcher) {
	s.Visited.NextGeneration()
	s.Candidates.Reset()
	s.Results.Reset()

	s.Visited.Visit(entry)
	seed := queue.Item{ID: entry, Distance: entryDist}
	s.Candidates.Push(seed)
	s.Results.Push(seed)

	for s.Candidates.Len() > 0 {
		c, _ := s.Candidates.Pop()
		if worst, ok := s.Results.Top(); ok && s.Results.Len() >= ef && c.Distance > worst.Distance {
			break
		}

		nb := g.nodes.Neighbors(c.ID, layer, s.Neighbors)
		s.Neighbors = nb
		for _, m := range nb {
			if !s.Visited.Visit(m) {
				continue
			}
			item := queue.Item{ID: m, Distance: g.distTo(m, q)}
			if s.Results.PushBounded(item, ef) {
				s.Candidates.Push(item)
			}
		}
	}
}

// drainAscending empties s.Results into s.Sorted, nearest first.
func (g *Graph) drainAscending(s *searcher.Searcher) []queue.Item {
	n := s.Results.Len()
	if cap(s.Sorted) < n {
		s.Sorted = make([]queue.Item, 0, n)
	}
	s.Sorted = s.Sorted[:n]
	for i := n - 1; i >= 0; i-- {
		s.Sorted[i], _ = s.Results.Pop()
	}
	return s.Sorted
}

// selectDiverse applies the diversified-neighbor rule: walking candidates
// nearest first, a candidate is kept only while no already-kept neighbor is
// strictly closer to it than the target is. cands must be sorted ascending
// by distance to the target.
func (g *Graph) selectDiverse(cands []queue.Item, m int, s *searcher.Searcher) []queue.Item {
	kept := s.Kept[:0]
	for _, c := range cands {
		if len(kept) >= m {
			break
		}
		cv := g.vectors.Get(c.ID)
		good := true
		for _, y := range kept {
			if g.dist(cv, g.vectors.Get(y.ID)) < c.Distance {
				good = false
				break
			}
		}
		if good {
			kept = append(kept, c)
		}
	}
	s.Kept = kept
	return kept
}

// connect back-links newID into the layer list of n, pruning the list with
// the diversification rule when it exceeds its cap. d is the distance
// between n and the new node.
func (g *Graph) connect(n, newID uint32, layer int, d float32, s *searcher.Searcher) {
	g.nodes.Lock(n)
	defer g.nodes.Unlock(n)

	nb := g.nodes.Neighbors(n, layer, s.Neighbors)
	s.Neighbors = nb
	for _, m := range nb {
		if m == newID {
			return
		}
	}

	if len(nb) < g.nodes.LayerCap(layer) {
		g.nodes.Append(n, layer, newID)
		return
	}

	// List is full: rank the current neighbors plus the newcomer by their
	// distance to n and keep the diversified prefix.
	nv := g.vectors.Get(n)
	cands := append(s.Sorted[:0], queue.Item{ID: newID, Distance: d})
	for _, m := range nb {
		cands = append(cands, queue.Item{ID: m, Distance: g.dist(nv, g.vectors.Get(m))})
	}
	sortItems(cands)
	s.Sorted = cands

	kept := g.selectDiverse(cands, g.nodes.LayerCap(layer), s)
	ids := make([]uint32, 0, len(kept))
	for _, it := range kept {
		ids = append(ids, it.ID)
	}
	g.nodes.Replace(n, layer, ids)
}

func sortItems(items []queue.Item) {
	// Insertion sort: the slice is at most M0+1 entries.
	for i := 1; i < len(items); i++ {
		for j := i; j > 0; j-- {
			a, b := items[j], items[j-1]
			if a.Distance < b.Distance || (a.Distance == b.Distance && a.ID < b.ID) {
				items[j], items[j-1] = b, a
			} else {
				break
			}
		}
	}
}

// Search runs the layered query and writes up to k results into labels and
// dists, ascending by distance with ties broken by insertion order. It
// returns the number of results written.
func (g *Graph) Search(q []byte, k, ef int, s *searcher.Searcher, labels []int64, dists []float32) int {
	if g.size.Load() == 0 {
		return 0
	}
	entry := g.entry.Load()
	if entry == EntryNone {
		return 0
	}

	cur, curDist := g.greedy(q, entry, g.distTo(entry, q), int(g.maxLevel.Load()), 0, s)
	g.searchLayer(q, cur, curDist, ef, 0, s)

	for s.Results.Len() > k {
		s.Results.Pop()
	}
	n := s.Results.Len()
	for i := n - 1; i >= 0; i-- {
		it, _ := s.Results.Pop()
		labels[i] = g.nodes.Label(it.ID)
		dists[i] = it.Distance
	}
	return n
}

// Exact runs a brute-force scan over every committed vector. It is the
// recall baseline and has no approximation.
func (g *Graph) Exact(q []byte, k int, s *searcher.Searcher, labels []int64, dists []float32) int {
	size := g.size.Load()
	s.Results.Reset()
	for id := uint32(0); id < size; id++ {
		s.Results.PushBounded(queue.Item{ID: id, Distance: g.distTo(id, q)}, k)
	}
	n := s.Results.Len()
	for i := n - 1; i >= 0; i-- {
		it, _ := s.Results.Pop()
		labels[i] = g.nodes.Label(it.ID)
		dists[i] = it.Distance
	}
	return n
}

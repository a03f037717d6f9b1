// Package searcher provides the per-worker scratch state used by graph
// traversal: the visited set, the candidate and result heaps, and the
// temporary buffers of the selection heuristic.
//
// Scratch is keyed by a caller-supplied worker id rather than a true
// thread-local, so the engine stays agnostic to the thread pool. Workers
// with explicit ids index the pool directly; workerless callers acquire a
// free slot, which serves as the one-shot allocator for single-threaded use.
package searcher

import (
	"math"

	"github.com/EvandroLG/usearch/internal/queue"
	"github.com/EvandroLG/usearch/internal/visited"
)

// Searcher is the scratch state of one worker. At most one in-flight
// operation may use a Searcher at a time.
type Searcher struct {
	Visited    *visited.Set
	Candidates *queue.Queue // min-heap: expansion frontier
	Results    *queue.Queue // max-heap: kept beam
	Neighbors  []uint32     // snapshot buffer, cap M0+1
	Sorted     []queue.Item // drained beam, ascending
	Kept       []queue.Item // heuristic output
	Links      []queue.Item // selected links of the node being inserted
	Query      []byte       // encoded query scratch

	rng uint64
}

func newSearcher(capacity, ef, m0 int, seed uint64) *Searcher {
	return &Searcher{
		Visited:    visited.New(capacity),
		Candidates: queue.NewMin(ef),
		Results:    queue.NewMax(ef),
		Neighbors:  make([]uint32, 0, m0+1),
		Sorted:     make([]queue.Item, 0, ef),
		Kept:       make([]queue.Item, 0, m0+1),
		Links:      make([]queue.Item, 0, m0+1),
		rng:        seed,
	}
}

// NextLayer draws a random top layer with the exponential decay lambda.
// The generator is a worker-private xorshift64*, so single-threaded builds
// with a fixed construction seed are reproducible.
func (s *Searcher) NextLayer(lambda float64) int {
	s.rng += 0x9E3779B97F4A7C15
	x := s.rng
	x ^= x >> 12
	x ^= x << 25
	x ^= x >> 27
	const inv = 1.0 / (1 << 53)
	r := float64(x*0x2545F4914F6CDD1D>>11) * inv
	if r == 0 {
		// r is a multiple of 2^-53 in [0,1); clamp a zero draw to the
		// smallest step so that r stays positive.
		r = inv
	}
	return int(math.Floor(-math.Log(r) * lambda))
}

// splitmix64 decorrelates per-worker seeds derived from one base seed.
func splitmix64(x uint64) uint64 {
	x += 0x9E3779B97F4A7C15
	x = (x ^ (x >> 30)) * 0xBF58476D1CE4E5B9
	x = (x ^ (x >> 27)) * 0x94D049BB133111EB
	return x ^ (x >> 31)
}

// Pool holds one Searcher per worker id.
type Pool struct {
	workers []*Searcher
	free    chan int
}

// NewPool creates scratch for ids in [0, workers).
func NewPool(workers, capacity, ef, m0 int, seed uint64) *Pool {
	p := &Pool{
		workers: make([]*Searcher, workers),
		free:    make(chan int, workers),
	}
	for i := range p.workers {
		p.workers[i] = newSearcher(capacity, ef, m0, seed^splitmix64(uint64(i)))
		p.free <- i
	}
	return p
}

// Workers returns the number of worker slots.
func (p *Pool) Workers() int { return len(p.workers) }

// Worker returns the scratch of an explicit worker id.
func (p *Pool) Worker(id int) *Searcher { return p.workers[id] }

// Acquire blocks until a free worker slot is available.
func (p *Pool) Acquire() (int, *Searcher) {
	id := <-p.free
	return id, p.workers[id]
}

// Release returns a slot taken with Acquire.
func (p *Pool) Release(id int) { p.free <- id }

// Grow resizes every visited set to track ids in [0, capacity). Caller must
// hold exclusive access.
func (p *Pool) Grow(capacity int) {
	for _, s := range p.workers {
		s.Visited.Grow(capacity)
	}
}

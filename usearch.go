// Package usearch is a single-file, in-memory vector search engine: a
// hierarchical navigable small-world index with approximate nearest-neighbor
// queries under pluggable distance functions.
//
// An index stores fixed-dimension vectors of one element type (f32, f64,
// f16, i8, uint64 bit-hash words or sorted uint32 sets) under opaque int64
// labels. Searches and adds run concurrently; exclusive operations
// (Reserve, Save, Load, View, Clear) must not overlap with traffic.
//
// Quick start:
//
//	idx, err := usearch.New(128,
//	    usearch.WithMetric(distance.KindCos),
//	    usearch.WithCapacity(100_000),
//	)
//	if err != nil { ... }
//	id, err := idx.Add(42, vec)
//	matches, err := idx.Search(query, 10)
package usearch

import (
	"fmt"
	"io"
	"math"
	"runtime"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/EvandroLG/usearch/distance"
	"github.com/EvandroLG/usearch/internal/graph"
	"github.com/EvandroLG/usearch/internal/node"
	"github.com/EvandroLG/usearch/internal/searcher"
	"github.com/EvandroLG/usearch/internal/vectorstore"
	"github.com/EvandroLG/usearch/persistence"
)

// AutoWorker makes an operation acquire any free scratch slot instead of
// using an explicit worker id.
const AutoWorker = -1

const minConnectivity = 2

// Match is one search result.
type Match struct {
	Label    int64
	Distance float32
}

// AddOptions tunes a single Add.
type AddOptions struct {
	// Worker is the scratch slot to use. Callers running their own thread
	// pool pass a slot in [0, Workers) unique among in-flight operations;
	// AutoWorker acquires a free slot.
	Worker int

	// NoCopy retains the caller's vector instead of copying it into the
	// arena. The caller must not mutate the slice afterwards.
	NoCopy bool
}

// SearchOptions tunes a single Search.
type SearchOptions struct {
	// Worker is the scratch slot, as in AddOptions.
	Worker int

	// EF overrides the query beam width. The effective width is never
	// below k.
	EF int
}

// Index is the public façade over the proximity graph and its stores.
type Index struct {
	opts  Options
	dims  int
	dist  distance.Func
	graph *graph.Graph
	pool  *searcher.Pool
	log   *Logger

	traffic   atomic.Int64
	exclusive atomic.Bool

	view    bool
	mapping io.Closer
}

// New creates an empty index for vectors of the given dimension count.
// For hamming indexes the dimension counts uint64 words, for jaccard the
// fixed set length.
func New(dimensions int, optFns ...func(*Options)) (*Index, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if dimensions <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive, got %d", ErrInvalidArgument, dimensions)
	}
	if opts.Connectivity < minConnectivity {
		opts.Connectivity = minConnectivity
	}

	dist := opts.UserDistance
	if opts.Metric != distance.KindUser {
		var err error
		dist, err = distance.Resolve(opts.Metric, opts.Element, dimensions)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
	} else if dist == nil {
		return nil, fmt.Errorf("%w: user metric requires a distance callback", ErrInvalidArgument)
	}

	m := opts.Connectivity
	cfg := graph.Config{
		M:              m,
		M0:             2 * m,
		EFConstruction: opts.ExpansionAdd,
		EFSearch:       opts.ExpansionSearch,
		LevelLambda:    1 / math.Log(float64(m)),
	}

	nodes := node.NewStore(m)
	vectors := vectorstore.New(dimensions * opts.Element.Size())

	ix := newIndex(opts, dimensions, dist, graph.New(cfg, nodes, vectors, dist))
	if opts.Capacity > 0 {
		if err := ix.reserve(opts.Capacity); err != nil {
			return nil, err
		}
	}
	return ix, nil
}

func newIndex(opts Options, dims int, dist distance.Func, g *graph.Graph) *Index {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.Logger == nil {
		opts.Logger = NoopLogger()
	}

	var seed uint64
	if opts.RandomSeed != nil {
		seed = uint64(*opts.RandomSeed)
	} else {
		seed = uint64(time.Now().UnixNano())
	}

	cfg := g.Config()
	ef := cfg.EFConstruction
	if cfg.EFSearch > ef {
		ef = cfg.EFSearch
	}

	return &Index{
		opts:  opts,
		dims:  dims,
		dist:  dist,
		graph: g,
		pool:  searcher.NewPool(opts.Workers, g.Capacity(), ef, cfg.M0, seed),
		log:   opts.Logger,
	}
}

// Len returns the number of vectors in the index.
func (ix *Index) Len() int { return ix.graph.Size() }

// Capacity returns the number of reserved slots.
func (ix *Index) Capacity() int { return ix.graph.Capacity() }

// Dimensions returns the vector dimension count.
func (ix *Index) Dimensions() int { return ix.dims }

// Connectivity returns M.
func (ix *Index) Connectivity() int { return ix.graph.Config().M }

// ExpansionAdd returns ef_construction.
func (ix *Index) ExpansionAdd() int { return ix.graph.Config().EFConstruction }

// ExpansionSearch returns the default ef_search.
func (ix *Index) ExpansionSearch() int { return ix.graph.Config().EFSearch }

// Metric returns the configured distance metric.
func (ix *Index) Metric() distance.Kind { return ix.opts.Metric }

// Element returns the stored scalar type.
func (ix *Index) Element() distance.Scalar { return ix.opts.Element }

// Workers returns the scratch pool width.
func (ix *Index) Workers() int { return ix.pool.Workers() }

// Close releases the snapshot mapping of a viewed index. It must not be
// called while searches are in flight.
func (ix *Index) Close() error {
	if ix.mapping != nil {
		err := ix.mapping.Close()
		ix.mapping = nil
		return err
	}
	return nil
}

// enter admits one add/search while no exclusive operation runs.
func (ix *Index) enter() error {
	if ix.exclusive.Load() {
		return ErrLocked
	}
	ix.traffic.Add(1)
	if ix.exclusive.Load() {
		ix.traffic.Add(-1)
		return ErrLocked
	}
	return nil
}

func (ix *Index) exit() { ix.traffic.Add(-1) }

// beginExclusive claims the index for a structural operation. It fails
// instead of waiting: serializing exclusive operations against traffic is
// the caller's contract.
func (ix *Index) beginExclusive() error {
	if !ix.exclusive.CompareAndSwap(false, true) {
		return ErrLocked
	}
	if ix.traffic.Load() != 0 {
		ix.exclusive.Store(false)
		return ErrLocked
	}
	return nil
}

func (ix *Index) endExclusive() { ix.exclusive.Store(false) }

// Reserve grows the index to hold at least n vectors. It is idempotent for
// n at or below the current capacity and requires exclusive access.
func (ix *Index) Reserve(n int) error {
	if err := ix.beginExclusive(); err != nil {
		return err
	}
	defer ix.endExclusive()
	if ix.view {
		return ErrIndexImmutable
	}
	return ix.reserve(n)
}

func (ix *Index) reserve(n int) error {
	if n <= ix.graph.Capacity() {
		return nil
	}
	ix.graph.Nodes().Reserve(n)
	if err := ix.graph.Vectors().Reserve(n); err != nil {
		return err
	}
	ix.pool.Grow(n)
	ix.log.Debug("capacity reserved", "slots", n)
	return nil
}

// Clear forgets every vector but keeps the reserved capacity. It requires
// exclusive access and is not available on views.
func (ix *Index) Clear() error {
	if err := ix.beginExclusive(); err != nil {
		return err
	}
	defer ix.endExclusive()
	if ix.view {
		return ErrIndexImmutable
	}
	ix.graph.Clear()
	return nil
}

func (ix *Index) acquire(worker int) (*searcher.Searcher, func(), error) {
	if worker == AutoWorker {
		id, s := ix.pool.Acquire()
		return s, func() { ix.pool.Release(id) }, nil
	}
	if worker < 0 || worker >= ix.pool.Workers() {
		return nil, nil, fmt.Errorf("%w: worker %d out of range [0, %d)", ErrInvalidArgument, worker, ix.pool.Workers())
	}
	return ix.pool.Worker(worker), func() {}, nil
}

func (ix *Index) floatElement() bool {
	switch ix.opts.Element {
	case distance.ScalarF32, distance.ScalarF64, distance.ScalarF16, distance.ScalarI8:
		return true
	default:
		return false
	}
}

// Add inserts vec under label and returns the internal id.
func (ix *Index) Add(label int64, vec []float32) (uint32, error) {
	return ix.AddWithOptions(label, vec, AddOptions{Worker: AutoWorker})
}

// AddWithOptions inserts vec under label with explicit worker and copy
// control. The vector is converted to the stored element type at the
// boundary; for f32 indexes with NoCopy the caller's slice itself is
// retained.
func (ix *Index) AddWithOptions(label int64, vec []float32, o AddOptions) (uint32, error) {
	if !ix.floatElement() {
		return 0, fmt.Errorf("%w: element type %s takes AddSet/AddHash", ErrInvalidArgument, ix.opts.Element)
	}
	if len(vec) != ix.dims {
		return 0, &ErrDimensionMismatch{Expected: ix.dims, Actual: len(vec)}
	}

	var data []byte
	if ix.opts.Element == distance.ScalarF32 {
		data = f32Bytes(vec)
	} else {
		data = make([]byte, ix.dims*ix.opts.Element.Size())
		distance.EncodeFloats(data, vec, ix.opts.Element)
	}
	return ix.addRaw(label, data, o)
}

// AddSet inserts a sorted set of member ids into a jaccard index.
func (ix *Index) AddSet(label int64, members []uint32, o AddOptions) (uint32, error) {
	if ix.opts.Element != distance.ScalarU32 {
		return 0, fmt.Errorf("%w: element type %s does not take sets", ErrInvalidArgument, ix.opts.Element)
	}
	if len(members) != ix.dims {
		return 0, &ErrDimensionMismatch{Expected: ix.dims, Actual: len(members)}
	}
	if err := distance.ValidateSet(members); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return ix.addRaw(label, u32Bytes(members), o)
}

// AddHash inserts a bit-hash of uint64 words into a hamming index.
func (ix *Index) AddHash(label int64, words []uint64, o AddOptions) (uint32, error) {
	if ix.opts.Element != distance.ScalarB64 {
		return 0, fmt.Errorf("%w: element type %s does not take bit-hashes", ErrInvalidArgument, ix.opts.Element)
	}
	if len(words) != ix.dims {
		return 0, &ErrDimensionMismatch{Expected: ix.dims, Actual: len(words)}
	}
	return ix.addRaw(label, u64Bytes(words), o)
}

func (ix *Index) addRaw(label int64, data []byte, o AddOptions) (uint32, error) {
	if ix.view {
		return 0, ErrIndexImmutable
	}
	if err := ix.enter(); err != nil {
		return 0, err
	}
	defer ix.exit()

	s, release, err := ix.acquire(o.Worker)
	if err != nil {
		return 0, err
	}
	defer release()

	return ix.graph.Add(label, data, !o.NoCopy, s)
}

// Search returns the k approximate nearest neighbors of q, ascending by
// distance with ties broken by insertion order.
func (ix *Index) Search(q []float32, k int) ([]Match, error) {
	return ix.SearchWithOptions(q, k, SearchOptions{Worker: AutoWorker})
}

// SearchWithOptions is Search with explicit worker and beam control.
func (ix *Index) SearchWithOptions(q []float32, k int, o SearchOptions) ([]Match, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive", ErrInvalidArgument)
	}
	labels := make([]int64, k)
	dists := make([]float32, k)
	n, err := ix.SearchInto(q, labels[:k], dists[:k], o)
	if err != nil {
		return nil, err
	}
	return matches(labels, dists, n), nil
}

// SearchInto writes up to min(len(labels), len(dists)) results into the
// caller's buffers and returns the count. It performs no allocation beyond
// scratch reuse.
func (ix *Index) SearchInto(q []float32, labels []int64, dists []float32, o SearchOptions) (int, error) {
	if !ix.floatElement() {
		return 0, fmt.Errorf("%w: element type %s takes SearchSet/SearchHash", ErrInvalidArgument, ix.opts.Element)
	}
	if len(q) != ix.dims {
		return 0, &ErrDimensionMismatch{Expected: ix.dims, Actual: len(q)}
	}
	return ix.searchRaw(nil, q, labels, dists, o)
}

// SearchSet queries a jaccard index with a sorted member set.
func (ix *Index) SearchSet(q []uint32, k int, o SearchOptions) ([]Match, error) {
	if ix.opts.Element != distance.ScalarU32 {
		return nil, fmt.Errorf("%w: element type %s does not take sets", ErrInvalidArgument, ix.opts.Element)
	}
	if len(q) != ix.dims {
		return nil, &ErrDimensionMismatch{Expected: ix.dims, Actual: len(q)}
	}
	if err := distance.ValidateSet(q); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive", ErrInvalidArgument)
	}
	labels := make([]int64, k)
	dists := make([]float32, k)
	n, err := ix.searchRaw(u32Bytes(q), nil, labels, dists, o)
	if err != nil {
		return nil, err
	}
	return matches(labels, dists, n), nil
}

// SearchHash queries a hamming index with a bit-hash.
func (ix *Index) SearchHash(q []uint64, k int, o SearchOptions) ([]Match, error) {
	if ix.opts.Element != distance.ScalarB64 {
		return nil, fmt.Errorf("%w: element type %s does not take bit-hashes", ErrInvalidArgument, ix.opts.Element)
	}
	if len(q) != ix.dims {
		return nil, &ErrDimensionMismatch{Expected: ix.dims, Actual: len(q)}
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive", ErrInvalidArgument)
	}
	labels := make([]int64, k)
	dists := make([]float32, k)
	n, err := ix.searchRaw(u64Bytes(q), nil, labels, dists, o)
	if err != nil {
		return nil, err
	}
	return matches(labels, dists, n), nil
}

// searchRaw runs the query with either a pre-encoded payload or a float
// query converted inside the scratch buffer.
func (ix *Index) searchRaw(data []byte, q []float32, labels []int64, dists []float32, o SearchOptions) (int, error) {
	k := len(labels)
	if len(dists) < k {
		k = len(dists)
	}
	if k <= 0 {
		return 0, fmt.Errorf("%w: k must be positive", ErrInvalidArgument)
	}
	if err := ix.enter(); err != nil {
		return 0, err
	}
	defer ix.exit()

	s, release, err := ix.acquire(o.Worker)
	if err != nil {
		return 0, err
	}
	defer release()

	if data == nil {
		data = ix.encodeQuery(s, q)
	}

	ef := ix.graph.Config().EFSearch
	if o.EF > 0 {
		ef = o.EF
	}
	if ef < k {
		ef = k
	}

	return ix.graph.Search(data, k, ef, s, labels[:k], dists[:k]), nil
}

func (ix *Index) encodeQuery(s *searcher.Searcher, q []float32) []byte {
	if ix.opts.Element == distance.ScalarF32 {
		return f32Bytes(q)
	}
	need := ix.dims * ix.opts.Element.Size()
	if cap(s.Query) < need {
		s.Query = make([]byte, need)
	}
	s.Query = s.Query[:need]
	distance.EncodeFloats(s.Query, q, ix.opts.Element)
	return s.Query
}

// ExactSearch runs a brute-force scan over every vector. It is exact and
// O(n); use it for small indexes or as a recall baseline.
func (ix *Index) ExactSearch(q []float32, k int) ([]Match, error) {
	if !ix.floatElement() {
		return nil, fmt.Errorf("%w: element type %s takes SearchSet/SearchHash", ErrInvalidArgument, ix.opts.Element)
	}
	if len(q) != ix.dims {
		return nil, &ErrDimensionMismatch{Expected: ix.dims, Actual: len(q)}
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive", ErrInvalidArgument)
	}
	if err := ix.enter(); err != nil {
		return nil, err
	}
	defer ix.exit()

	s, release, err := ix.acquire(AutoWorker)
	if err != nil {
		return nil, err
	}
	defer release()

	labels := make([]int64, k)
	dists := make([]float32, k)
	n := ix.graph.Exact(ix.encodeQuery(s, q), k, s, labels, dists)
	return matches(labels, dists, n), nil
}

// Save writes a snapshot to path in the raw format.
func (ix *Index) Save(path string) error { return ix.save(path, false) }

// SaveCompressed writes a zstd-compressed snapshot. Compressed snapshots
// can be loaded but not viewed.
func (ix *Index) SaveCompressed(path string) error { return ix.save(path, true) }

func (ix *Index) save(path string, compressed bool) error {
	if err := ix.beginExclusive(); err != nil {
		return err
	}
	defer ix.endExclusive()

	start := time.Now()
	st := &persistence.State{
		Header:  ix.header(),
		Nodes:   ix.graph.Nodes(),
		Vectors: ix.graph.Vectors(),
	}
	n, err := persistence.Save(path, st, compressed)
	if err != nil {
		return err
	}
	ix.log.Info("index saved",
		"path", path,
		"vectors", st.Header.Size,
		"bytes", n,
		"compressed", compressed,
		"duration", time.Since(start),
	)
	return nil
}

func (ix *Index) header() persistence.Header {
	cfg := ix.graph.Config()
	maxLevel := ix.graph.MaxLevel()
	if maxLevel < 0 {
		maxLevel = 0
	}
	return persistence.Header{
		Version:        persistence.Version,
		Dims:           uint32(ix.dims),
		Element:        ix.opts.Element,
		Metric:         ix.opts.Metric,
		M:              uint32(cfg.M),
		M0:             uint32(cfg.M0),
		EFConstruction: uint32(cfg.EFConstruction),
		EFSearch:       uint32(cfg.EFSearch),
		Size:           uint64(ix.graph.Size()),
		Capacity:       uint64(ix.graph.Capacity()),
		Entry:          ix.graph.Entry(),
		MaxLevel:       uint32(maxLevel),
		LevelLambda:    cfg.LevelLambda,
	}
}

// Load reads a snapshot fully into memory and returns a mutable index.
// Options are honored for Workers, Logger, RandomSeed and UserDistance;
// the graph parameters come from the file.
func Load(path string, optFns ...func(*Options)) (*Index, error) {
	st, err := persistence.Load(path)
	if err != nil {
		return nil, err
	}
	return fromState(st, nil, optFns)
}

// View maps a snapshot read-only. The returned index serves searches out
// of the mapping; Add, Reserve and Clear are forbidden. Close releases the
// mapping.
func View(path string, optFns ...func(*Options)) (*Index, error) {
	st, mapping, err := persistence.View(path)
	if err != nil {
		return nil, err
	}
	ix, err := fromState(st, mapping, optFns)
	if err != nil {
		mapping.Close()
		return nil, err
	}
	return ix, nil
}

func fromState(st *persistence.State, mapping io.Closer, optFns []func(*Options)) (*Index, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	h := st.Header
	opts.Element = h.Element
	opts.Capacity = int(h.Capacity)
	opts.Connectivity = int(h.M)
	opts.ExpansionAdd = int(h.EFConstruction)
	opts.ExpansionSearch = int(h.EFSearch)

	dist := opts.UserDistance
	if h.Metric == distance.KindUser {
		opts.Metric = distance.KindUser
		if dist == nil {
			return nil, fmt.Errorf("%w: snapshot was written with a user kernel, pass WithUserDistance to load it", ErrIncompatibleFile)
		}
	} else {
		opts.Metric = h.Metric
		var err error
		dist, err = distance.Resolve(h.Metric, h.Element, int(h.Dims))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIncompatibleFile, err)
		}
	}

	cfg := graph.Config{
		M:              int(h.M),
		M0:             int(h.M0),
		EFConstruction: int(h.EFConstruction),
		EFSearch:       int(h.EFSearch),
		LevelLambda:    h.LevelLambda,
	}

	g := graph.New(cfg, st.Nodes, st.Vectors, dist)
	maxLevel := int32(h.MaxLevel)
	entry := h.Entry
	if h.Size == 0 {
		maxLevel = -1
		entry = graph.EntryNone
	}
	g.Restore(uint32(h.Size), entry, maxLevel)

	ix := newIndex(opts, int(h.Dims), dist, g)
	ix.view = mapping != nil
	ix.mapping = mapping
	return ix, nil
}

func matches(labels []int64, dists []float32, n int) []Match {
	out := make([]Match, n)
	for i := 0; i < n; i++ {
		out[i] = Match{Label: labels[i], Distance: dists[i]}
	}
	return out
}

func f32Bytes(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), len(v)*4)
}

func u32Bytes(v []uint32) []byte {
	if len(v) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), len(v)*4)
}

func u64Bytes(v []uint64) []byte {
	if len(v) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), len(v)*8)
}

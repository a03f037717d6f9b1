// Package node implements the fixed-capacity store of graph nodes.
//
// Each node keeps its per-layer neighbor lists in one flat uint32 buffer,
// segmented by the layer caps (2M at layer 0, M above), so a node's edges
// stay contiguous during expansion. Slots are allocated once per insertion
// and never move or shrink for the life of the index.
//
// Concurrency contract: a single writer mutates a node's lists while holding
// that node's spin flag. Readers take no lock; they snapshot entries with
// atomic loads and tolerate torn lists, which is safe because ids in a list
// always refer to live slots. Writers publish appended ids before the count.
package node

import (
	"runtime"
	"sync/atomic"
)

// Node is one graph node. The zero slot pointer means the id is unused.
type Node struct {
	label  int64
	top    int32
	flag   atomic.Uint32
	counts []int32
	layers [][]uint32
}

// Label returns the caller-supplied identifier.
func (n *Node) Label() int64 { return n.label }

// Top returns the node's highest layer.
func (n *Node) Top() int { return int(n.top) }

// Store holds the node slab.
type Store struct {
	m         int
	m0        int
	immutable bool
	nodes     []*Node
}

// NewStore creates an empty mutable store with connectivity m.
func NewStore(m int) *Store {
	return &Store{m: m, m0: 2 * m}
}

// NewViewStore creates an immutable store over pre-built nodes, as produced
// from a read-only mapping.
func NewViewStore(m int, nodes []*Node) *Store {
	return &Store{m: m, m0: 2 * m, immutable: true, nodes: nodes}
}

// View constructs a node backed by externally owned layer slices. Counts are
// derived from the slice lengths; the node is complete and never mutated.
func View(label int64, layers [][]uint32) *Node {
	counts := make([]int32, len(layers))
	for i, l := range layers {
		counts[i] = int32(len(l))
	}
	return &Node{
		label:  label,
		top:    int32(len(layers) - 1),
		counts: counts,
		layers: layers,
	}
}

// M returns the connectivity parameter.
func (s *Store) M() int { return s.m }

// LayerCap returns the neighbor-list capacity at a layer.
func (s *Store) LayerCap(layer int) int {
	if layer == 0 {
		return s.m0
	}
	return s.m
}

// Immutable reports whether the store is view-backed.
func (s *Store) Immutable() bool { return s.immutable }

// Capacity returns the number of reserved slots.
func (s *Store) Capacity() int { return len(s.nodes) }

// Reserve grows the slot table to n entries. Existing nodes keep their
// identity; only the pointer table is reallocated, so the caller must hold
// exclusive access.
func (s *Store) Reserve(n int) {
	if n <= len(s.nodes) {
		return
	}
	nodes := make([]*Node, n)
	copy(nodes, s.nodes)
	s.nodes = nodes
}

// Clear drops all nodes but keeps the reserved capacity.
func (s *Store) Clear() {
	clear(s.nodes)
}

// Alloc creates the node for id with empty neighbor lists up to top.
func (s *Store) Alloc(id uint32, label int64, top int) *Node {
	flat := make([]uint32, s.m0+top*s.m)
	n := &Node{
		label:  label,
		top:    int32(top),
		counts: make([]int32, top+1),
		layers: make([][]uint32, top+1),
	}
	off := 0
	for layer := 0; layer <= top; layer++ {
		c := s.LayerCap(layer)
		n.layers[layer] = flat[off : off+c]
		off += c
	}
	s.nodes[id] = n
	return n
}

// Get returns the node for id, or nil for an unused slot.
func (s *Store) Get(id uint32) *Node {
	if int(id) >= len(s.nodes) {
		return nil
	}
	return s.nodes[id]
}

// Label returns the label of id, or zero for an unfilled slot.
func (s *Store) Label(id uint32) int64 {
	n := s.nodes[id]
	if n == nil {
		return 0
	}
	return n.label
}

// Top returns the highest layer of id, or -1 for an unfilled slot.
func (s *Store) Top(id uint32) int {
	n := s.nodes[id]
	if n == nil {
		return -1
	}
	return int(n.top)
}

// Count returns the current neighbor count of id at layer.
func (s *Store) Count(id uint32, layer int) int {
	n := s.nodes[id]
	if n == nil || layer > int(n.top) {
		return 0
	}
	c := int(atomic.LoadInt32(&n.counts[layer]))
	if c > len(n.layers[layer]) {
		c = len(n.layers[layer])
	}
	return c
}

// Neighbors snapshots the layer list of id into buf. The copy may be torn
// relative to a concurrent writer; every entry is still a valid live id.
func (s *Store) Neighbors(id uint32, layer int, buf []uint32) []uint32 {
	buf = buf[:0]
	n := s.nodes[id]
	if n == nil || layer > int(n.top) {
		return buf
	}
	list := n.layers[layer]
	c := int(atomic.LoadInt32(&n.counts[layer]))
	if c > len(list) {
		c = len(list)
	}
	for i := 0; i < c; i++ {
		buf = append(buf, atomic.LoadUint32(&list[i]))
	}
	return buf
}

// Lock spins until the write flag of id is acquired. When a mutator needs
// two node locks it must acquire the smaller id first.
func (s *Store) Lock(id uint32) {
	n := s.nodes[id]
	for !n.flag.CompareAndSwap(0, 1) {
		runtime.Gosched()
	}
}

// Unlock releases the write flag of id.
func (s *Store) Unlock(id uint32) {
	s.nodes[id].flag.Store(0)
}

// Append adds m to the layer list of id. Returns false when the list is at
// its cap. Caller must hold the node's write flag.
func (s *Store) Append(id uint32, layer int, m uint32) bool {
	n := s.nodes[id]
	list := n.layers[layer]
	c := int(atomic.LoadInt32(&n.counts[layer]))
	if c >= len(list) {
		return false
	}
	atomic.StoreUint32(&list[c], m)
	atomic.StoreInt32(&n.counts[layer], int32(c+1))
	return true
}

// Replace rewrites the layer list of id in place. Caller must hold the
// node's write flag; ids are published before the count so a torn reader
// never sees stale entries beyond the new count.
func (s *Store) Replace(id uint32, layer int, ids []uint32) {
	n := s.nodes[id]
	list := n.layers[layer]
	for i, v := range ids {
		atomic.StoreUint32(&list[i], v)
	}
	atomic.StoreInt32(&n.counts[layer], int32(len(ids)))
}

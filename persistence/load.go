package persistence

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"unsafe"

	"github.com/EvandroLG/usearch/distance"
	"github.com/EvandroLG/usearch/internal/mmap"
	"github.com/EvandroLG/usearch/internal/node"
	"github.com/EvandroLG/usearch/internal/vectorstore"
	"github.com/klauspost/compress/zstd"
)

// Load reads a snapshot fully into memory and rebuilds mutable stores.
// Compressed snapshots are detected by their frame magic and inflated first.
func Load(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if len(data) >= 4 && bytes.Equal(data[:4], zstdMagic[:]) {
		dec, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		if data, err = io.ReadAll(dec); err != nil {
			return nil, err
		}
	}

	return parse(data, false)
}

// View maps a snapshot read-only. Node links and the vector arena point
// into the mapping, which must stay open for the life of the returned state.
func View(path string) (*State, io.Closer, error) {
	m, err := mmap.Open(path)
	if err != nil {
		return nil, nil, err
	}

	data := m.Bytes()
	if len(data) >= 4 && bytes.Equal(data[:4], zstdMagic[:]) {
		m.Close()
		return nil, nil, ErrCompressedView
	}

	st, err := parse(data, true)
	if err != nil {
		m.Close()
		return nil, nil, err
	}

	// Traversal order is effectively random across the arena.
	_ = m.Advise(mmap.AccessRandom)

	return st, m, nil
}

type cursor struct {
	data []byte
	off  int
}

func (c *cursor) take(n int) ([]byte, error) {
	if c.off+n > len(c.data) {
		return nil, fmt.Errorf("%w: truncated at offset %d", ErrCorrupt, c.off)
	}
	b := c.data[c.off : c.off+n]
	c.off += n
	return b, nil
}

func (c *cursor) u32() (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c *cursor) u64() (uint64, error) {
	b, err := c.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func parse(data []byte, viewMode bool) (*State, error) {
	h, c, err := parseHeader(data)
	if err != nil {
		return nil, err
	}

	st := &State{Header: *h}
	if err := parseNodes(st, c, viewMode); err != nil {
		return nil, err
	}
	if err := parseArena(st, c, viewMode); err != nil {
		return nil, err
	}
	return st, nil
}

func parseHeader(data []byte) (*Header, *cursor, error) {
	if len(data) < headerSize {
		return nil, nil, fmt.Errorf("%w: file shorter than header", ErrCorrupt)
	}
	if !bytes.Equal(data[:8], Magic[:]) {
		return nil, nil, &FieldError{Field: "magic", Got: uint64(binary.LittleEndian.Uint64(data[:8])), Want: uint64(binary.LittleEndian.Uint64(Magic[:]))}
	}

	le := binary.LittleEndian
	h := &Header{
		Version:        le.Uint32(data[8:]),
		Dims:           le.Uint32(data[12:]),
		Element:        distance.Scalar(le.Uint32(data[16:])),
		Metric:         distance.Kind(le.Uint32(data[20:])),
		M:              le.Uint32(data[24:]),
		M0:             le.Uint32(data[28:]),
		EFConstruction: le.Uint32(data[32:]),
		EFSearch:       le.Uint32(data[36:]),
		Size:           le.Uint64(data[40:]),
		Capacity:       le.Uint64(data[48:]),
		Entry:          le.Uint32(data[56:]),
		MaxLevel:       le.Uint32(data[60:]),
		LevelLambda:    math.Float64frombits(le.Uint64(data[64:])),
	}

	if h.Version != Version {
		return nil, nil, &FieldError{Field: "version", Got: uint64(h.Version), Want: Version}
	}
	if h.Element.Size() == 0 {
		return nil, nil, &FieldError{Field: "element_type", Got: uint64(h.Element)}
	}
	if h.M0 != 2*h.M {
		return nil, nil, &FieldError{Field: "M0", Got: uint64(h.M0), Want: uint64(2 * h.M)}
	}
	if h.Size > h.Capacity {
		return nil, nil, fmt.Errorf("%w: size %d exceeds capacity %d", ErrCorrupt, h.Size, h.Capacity)
	}

	return h, &cursor{data: data, off: headerSize}, nil
}

func parseNodes(st *State, c *cursor, viewMode bool) error {
	h := &st.Header
	m := int(h.M)

	var store *node.Store
	var viewNodes []*node.Node
	if viewMode {
		viewNodes = make([]*node.Node, h.Capacity)
	} else {
		store = node.NewStore(m)
		store.Reserve(int(h.Capacity))
	}

	for id := uint32(0); uint64(id) < h.Size; id++ {
		rawLabel, err := c.u64()
		if err != nil {
			return err
		}
		label := int64(rawLabel)

		top32, err := c.u32()
		if err != nil {
			return err
		}
		top := int(top32)

		var layers [][]uint32
		if viewMode {
			layers = make([][]uint32, top+1)
		} else {
			store.Alloc(id, label, top)
		}
		for layer := 0; layer <= top; layer++ {
			count, err := c.u32()
			if err != nil {
				return err
			}
			capLayer := m
			if layer == 0 {
				capLayer = 2 * m
			}
			if int(count) > capLayer {
				return fmt.Errorf("%w: node %d layer %d has %d links, cap %d", ErrCorrupt, id, layer, count, capLayer)
			}
			raw, err := c.take(4 * int(count))
			if err != nil {
				return err
			}

			if viewMode {
				if count > 0 {
					layers[layer] = unsafe.Slice((*uint32)(unsafe.Pointer(&raw[0])), count)
				} else {
					layers[layer] = nil
				}
				continue
			}

			ids := make([]uint32, count)
			for i := range ids {
				ids[i] = binary.LittleEndian.Uint32(raw[i*4:])
			}
			store.Replace(id, layer, ids)
		}
		if viewMode {
			viewNodes[id] = node.View(label, layers)
		}
	}

	if viewMode {
		st.Nodes = node.NewViewStore(m, viewNodes)
	} else {
		st.Nodes = store
	}
	return nil
}

func parseArena(st *State, c *cursor, viewMode bool) error {
	h := &st.Header
	c.off = int(alignUp(int64(c.off)))

	stride := vectorstore.Stride(int(h.Dims) * h.Element.Size())
	raw, err := c.take(int(h.Size) * stride)
	if err != nil {
		return err
	}

	vecSize := int(h.Dims) * h.Element.Size()
	if viewMode {
		st.Vectors = vectorstore.NewView(vecSize, raw)
		return nil
	}

	store := vectorstore.New(vecSize)
	if err := store.Reserve(int(h.Capacity)); err != nil {
		return err
	}
	copy(store.Arena(), raw)
	st.Vectors = store
	return nil
}

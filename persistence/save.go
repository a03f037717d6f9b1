package persistence

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/klauspost/compress/zstd"
)

// Save writes the snapshot to path. With compressed the stream is wrapped
// in a zstd frame; the inner bytes are identical to the raw format.
func Save(path string, src *State, compressed bool) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}

	bw := bufio.NewWriterSize(f, 1<<20)
	var out io.Writer = bw
	var enc *zstd.Encoder
	if compressed {
		enc, err = zstd.NewWriter(bw)
		if err != nil {
			f.Close()
			return 0, err
		}
		out = enc
	}

	n, err := write(out, src)
	if err == nil && enc != nil {
		err = enc.Close()
	}
	if err == nil {
		err = bw.Flush()
	}
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return 0, err
	}
	return n, nil
}

func write(w io.Writer, src *State) (int64, error) {
	cw := &countingWriter{w: w}

	if err := writeHeader(cw, &src.Header); err != nil {
		return cw.n, err
	}
	if err := writeNodes(cw, src); err != nil {
		return cw.n, err
	}
	if err := writePadding(cw, int(alignUp(cw.n)-cw.n)); err != nil {
		return cw.n, err
	}
	if err := writeArena(cw, src); err != nil {
		return cw.n, err
	}
	return cw.n, nil
}

func writeHeader(w io.Writer, h *Header) error {
	var buf [headerSize]byte
	copy(buf[0:], Magic[:])
	le := binary.LittleEndian
	le.PutUint32(buf[8:], h.Version)
	le.PutUint32(buf[12:], h.Dims)
	le.PutUint32(buf[16:], uint32(h.Element))
	le.PutUint32(buf[20:], uint32(h.Metric))
	le.PutUint32(buf[24:], h.M)
	le.PutUint32(buf[28:], h.M0)
	le.PutUint32(buf[32:], h.EFConstruction)
	le.PutUint32(buf[36:], h.EFSearch)
	le.PutUint64(buf[40:], h.Size)
	le.PutUint64(buf[48:], h.Capacity)
	le.PutUint32(buf[56:], h.Entry)
	le.PutUint32(buf[60:], h.MaxLevel)
	le.PutUint64(buf[64:], math.Float64bits(h.LevelLambda))
	_, err := w.Write(buf[:])
	return err
}

func writeNodes(w io.Writer, src *State) error {
	le := binary.LittleEndian
	var scratch [8]byte
	ids := make([]uint32, 0, src.Nodes.LayerCap(0))
	buf := make([]byte, 0, 4*src.Nodes.LayerCap(0))

	for id := uint32(0); uint64(id) < src.Header.Size; id++ {
		le.PutUint64(scratch[:], uint64(src.Nodes.Label(id)))
		if _, err := w.Write(scratch[:8]); err != nil {
			return err
		}
		top := src.Nodes.Top(id)
		le.PutUint32(scratch[:], uint32(top))
		if _, err := w.Write(scratch[:4]); err != nil {
			return err
		}

		for layer := 0; layer <= top; layer++ {
			ids = src.Nodes.Neighbors(id, layer, ids)
			le.PutUint32(scratch[:], uint32(len(ids)))
			if _, err := w.Write(scratch[:4]); err != nil {
				return err
			}
			buf = buf[:4*len(ids)]
			for i, v := range ids {
				le.PutUint32(buf[i*4:], v)
			}
			if _, err := w.Write(buf); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeArena(w io.Writer, src *State) error {
	stride := src.Vectors.ArenaStride()
	size := int(src.Header.Size)

	if !src.Vectors.Borrowed() {
		_, err := w.Write(src.Vectors.Arena()[:size*stride])
		return err
	}

	// Borrowed slots are materialized into owned form on disk.
	pad := make([]byte, stride)
	for id := 0; id < size; id++ {
		vec := src.Vectors.Get(uint32(id))
		if _, err := w.Write(vec); err != nil {
			return err
		}
		if _, err := w.Write(pad[:stride-len(vec)]); err != nil {
			return err
		}
	}
	return nil
}

func writePadding(w io.Writer, n int) error {
	if n <= 0 {
		return nil
	}
	_, err := w.Write(make([]byte, n))
	return err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

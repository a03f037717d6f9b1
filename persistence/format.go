// Package persistence serializes an index into a single self-describing
// byte stream and materializes it back, either fully in memory or as a
// read-only memory mapping.
//
// The layout is little-endian throughout and is a stable contract:
//
//	magic        : 8 bytes "USEARCH\0"
//	version      : u32
//	dims         : u32
//	element_type : u32
//	metric_id    : u32 (0 = user kernel, file is non-portable)
//	M, M0        : u32, u32
//	ef_construction, ef_search : u32, u32
//	size, capacity             : u64, u64
//	entry_id     : u32 (0xFFFFFFFF when empty)
//	max_level    : u32
//	level_lambda : f64
//	-- per node, id = 0..size-1 --
//	  label      : i64
//	  top_layer  : u32
//	  per layer 0..top_layer: count u32, ids u32*count
//	-- vector arena, at the next 64-byte boundary --
//	  raw slots, size x stride
package persistence

import (
	"errors"
	"fmt"

	"github.com/EvandroLG/usearch/distance"
	"github.com/EvandroLG/usearch/internal/node"
	"github.com/EvandroLG/usearch/internal/vectorstore"
)

const (
	// Version is the current format version.
	Version = 1

	headerSize = 72
	arenaAlign = vectorstore.Align
)

// Magic identifies index snapshot files.
var Magic = [8]byte{'U', 'S', 'E', 'A', 'R', 'C', 'H', 0}

// zstdMagic is the frame header of compressed snapshots.
var zstdMagic = [4]byte{0x28, 0xB5, 0x2F, 0xFD}

var (
	// ErrIncompatible is the base error for magic, version and parameter
	// mismatches on load.
	ErrIncompatible = errors.New("incompatible index file")
	// ErrCorrupt is returned for files that are structurally invalid.
	ErrCorrupt = errors.New("corrupt index file")
	// ErrCompressedView is returned when viewing a zstd snapshot: only raw
	// files can back a memory mapping.
	ErrCompressedView = errors.New("compressed snapshots cannot be viewed")
)

// FieldError reports which header field failed validation.
type FieldError struct {
	Field string
	Want  uint64
	Got   uint64
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("incompatible index file: %s is %d, want %d", e.Field, e.Got, e.Want)
}

func (e *FieldError) Unwrap() error { return ErrIncompatible }

// Header mirrors the fixed-size file prologue.
type Header struct {
	Version        uint32
	Dims           uint32
	Element        distance.Scalar
	Metric         distance.Kind
	M              uint32
	M0             uint32
	EFConstruction uint32
	EFSearch       uint32
	Size           uint64
	Capacity       uint64
	Entry          uint32
	MaxLevel       uint32
	LevelLambda    float64
}

// State is a deserialized index: the header plus rebuilt stores. In view
// mode the stores alias the mapping and are immutable.
type State struct {
	Header  Header
	Nodes   *node.Store
	Vectors *vectorstore.Store
}

// alignUp rounds an absolute stream offset up to the arena alignment.
func alignUp(off int64) int64 {
	return (off + arenaAlign - 1) &^ (arenaAlign - 1)
}

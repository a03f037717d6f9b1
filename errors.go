package usearch

import (
	"errors"
	"fmt"

	"github.com/EvandroLG/usearch/internal/graph"
	"github.com/EvandroLG/usearch/persistence"
)

var (
	// ErrInvalidArgument is returned for malformed input: a zero dimension,
	// an unsupported metric/element pairing, a non-positive k, an unsorted
	// jaccard set, or an out-of-range worker id.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrOutOfCapacity is returned by Add when all reserved slots are in
	// use. Reserve more and retry; the failed Add consumed nothing.
	ErrOutOfCapacity = graph.ErrOutOfCapacity

	// ErrLocked is returned when an exclusive operation (Reserve, Save,
	// Clear) overlaps with in-flight adds or searches, or vice versa.
	ErrLocked = errors.New("index is locked by a concurrent operation")

	// ErrIndexImmutable is returned for mutations on a viewed index.
	ErrIndexImmutable = errors.New("index is a read-only view")

	// ErrIncompatibleFile is the base error for snapshot mismatches:
	// wrong magic, version, dimension, element type or metric.
	ErrIncompatibleFile = persistence.ErrIncompatible
)

// ErrDimensionMismatch reports a vector whose length differs from the
// configured dimension.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return ErrInvalidArgument }

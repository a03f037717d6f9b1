// Package distance provides the distance kernels used by the index.
//
// A kernel is a pure function over two raw element views and must be
// thread-safe and deterministic. Lower values mean closer; the dot-product
// style metrics are stored as 1-dot and 1-cos so that every metric sorts
// ascending.
package distance

import (
	"fmt"
)

// Kind identifies a distance metric. The numeric values are part of the
// on-disk file contract and must not be reordered.
type Kind uint32

const (
	// KindUser marks a caller-supplied kernel. Files written with a user
	// kernel are not portable: loading them requires the same callback.
	KindUser Kind = iota
	KindIP
	KindCos
	KindL2Sq
	KindHamming
	KindJaccard
)

func (k Kind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindIP:
		return "ip"
	case KindCos:
		return "cos"
	case KindL2Sq:
		return "l2sq"
	case KindHamming:
		return "hamming"
	case KindJaccard:
		return "jaccard"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(k))
	}
}

// ParseKind resolves a metric name from configuration.
func ParseKind(name string) (Kind, error) {
	switch name {
	case "ip":
		return KindIP, nil
	case "cos", "cosine":
		return KindCos, nil
	case "l2sq", "l2":
		return KindL2Sq, nil
	case "hamming":
		return KindHamming, nil
	case "jaccard":
		return KindJaccard, nil
	default:
		return 0, fmt.Errorf("unsupported metric name: %q", name)
	}
}

// Scalar identifies the element type of stored vectors. The numeric values
// are part of the on-disk file contract and must not be reordered.
type Scalar uint32

const (
	scalarInvalid Scalar = iota
	ScalarF32
	ScalarF64
	ScalarF16
	ScalarI8
	// ScalarB64 stores bit-hashes as little-endian uint64 words; the index
	// dimension counts words, not bits.
	ScalarB64
	// ScalarU32 stores sorted sets of uint32 member ids; the index dimension
	// is the fixed set length.
	ScalarU32
)

// Size returns the byte width of one element.
func (s Scalar) Size() int {
	switch s {
	case ScalarF32, ScalarU32:
		return 4
	case ScalarF64, ScalarB64:
		return 8
	case ScalarF16:
		return 2
	case ScalarI8:
		return 1
	default:
		return 0
	}
}

func (s Scalar) String() string {
	switch s {
	case ScalarF32:
		return "f32"
	case ScalarF64:
		return "f64"
	case ScalarF16:
		return "f16"
	case ScalarI8:
		return "i8"
	case ScalarB64:
		return "b64"
	case ScalarU32:
		return "u32"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(s))
	}
}

// ParseScalar resolves an element-type name from configuration.
func ParseScalar(name string) (Scalar, error) {
	switch name {
	case "f32", "float32":
		return ScalarF32, nil
	case "f64", "float64":
		return ScalarF64, nil
	case "f16", "float16":
		return ScalarF16, nil
	case "i8", "int8":
		return ScalarI8, nil
	case "b64":
		return ScalarB64, nil
	case "u32":
		return ScalarU32, nil
	default:
		return 0, fmt.Errorf("unsupported element type name: %q", name)
	}
}

// Func computes the distance between two element views of dims elements
// each. Implementations must not retain the views.
type Func func(a, b []byte) float32

// Resolve returns the built-in kernel for a metric/element pair.
func Resolve(kind Kind, scalar Scalar, dims int) (Func, error) {
	switch kind {
	case KindIP:
		switch scalar {
		case ScalarF32:
			return ipF32, nil
		case ScalarF64:
			return ipF64, nil
		case ScalarF16:
			return ipF16, nil
		case ScalarI8:
			return ipI8, nil
		}
	case KindCos:
		switch scalar {
		case ScalarF32:
			return cosF32, nil
		case ScalarF64:
			return cosF64, nil
		case ScalarF16:
			return cosF16, nil
		}
	case KindL2Sq:
		switch scalar {
		case ScalarF32:
			return l2sqF32, nil
		case ScalarF64:
			return l2sqF64, nil
		case ScalarF16:
			return l2sqF16, nil
		case ScalarI8:
			return l2sqI8, nil
		}
	case KindHamming:
		if scalar == ScalarB64 {
			return hammingB64, nil
		}
	case KindJaccard:
		if scalar == ScalarU32 {
			return jaccardU32, nil
		}
	}

	return nil, fmt.Errorf("metric %s does not support element type %s", kind, scalar)
}

package distance

import (
	"encoding/binary"
	"math"

	"github.com/x448/float16"
)

// EncodeFloats writes src into dst using the element encoding of s.
// dst must be at least len(src)*s.Size() bytes. Only the float family
// (f32, f64, f16, i8) is supported; i8 clamps to [-1, 1] and quantizes by
// a fixed scale of 127.
func EncodeFloats(dst []byte, src []float32, s Scalar) {
	switch s {
	case ScalarF32:
		for i, v := range src {
			binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v))
		}
	case ScalarF64:
		for i, v := range src {
			binary.LittleEndian.PutUint64(dst[i*8:], math.Float64bits(float64(v)))
		}
	case ScalarF16:
		for i, v := range src {
			binary.LittleEndian.PutUint16(dst[i*2:], float16.Fromfloat32(v).Bits())
		}
	case ScalarI8:
		for i, v := range src {
			if v > 1 {
				v = 1
			} else if v < -1 {
				v = -1
			}
			dst[i] = byte(int8(math.RoundToEven(float64(v) * i8Scale)))
		}
	}
}

// DecodeFloats reads len(dst) elements encoded as s out of src into dst.
func DecodeFloats(dst []float32, src []byte, s Scalar) {
	switch s {
	case ScalarF32:
		for i := range dst {
			dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
		}
	case ScalarF64:
		for i := range dst {
			dst[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(src[i*8:])))
		}
	case ScalarF16:
		for i := range dst {
			dst[i] = float16.Frombits(binary.LittleEndian.Uint16(src[i*2:])).Float32()
		}
	case ScalarI8:
		for i := range dst {
			dst[i] = float32(int8(src[i])) / i8Scale
		}
	}
}

// EncodeWords writes uint64 payloads (hamming bit-hashes) into dst.
func EncodeWords(dst []byte, src []uint64) {
	for i, v := range src {
		binary.LittleEndian.PutUint64(dst[i*8:], v)
	}
}

// EncodeMembers writes uint32 payloads (jaccard set members) into dst.
func EncodeMembers(dst []byte, src []uint32) {
	for i, v := range src {
		binary.LittleEndian.PutUint32(dst[i*4:], v)
	}
}

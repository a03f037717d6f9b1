package distance

import (
	"math"
	"math/bits"
	"unsafe"

	"github.com/viterin/vek/vek32"
	"github.com/x448/float16"
)

// i8Scale is the fixed-point scale applied when float input is quantized to
// int8 slots. Kernels divide it back out so that i8 distances stay
// comparable to the float metrics.
const i8Scale = 127

func asF32(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), len(b)/4)
}

func asF64(b []byte) []float64 {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*float64)(unsafe.Pointer(&b[0])), len(b)/8)
}

func asU16(b []byte) []uint16 {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*uint16)(unsafe.Pointer(&b[0])), len(b)/2)
}

func asU32(b []byte) []uint32 {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&b[0])), len(b)/4)
}

func asU64(b []byte) []uint64 {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*uint64)(unsafe.Pointer(&b[0])), len(b)/8)
}

func asI8(b []byte) []int8 {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*int8)(unsafe.Pointer(&b[0])), len(b))
}

func ipF32(a, b []byte) float32 {
	return 1 - vek32.Dot(asF32(a), asF32(b))
}

func cosF32(a, b []byte) float32 {
	av, bv := asF32(a), asF32(b)
	dot := vek32.Dot(av, bv)
	na := vek32.Dot(av, av)
	nb := vek32.Dot(bv, bv)
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/float32(math.Sqrt(float64(na)*float64(nb)))
}

func l2sqF32(a, b []byte) float32 {
	av, bv := asF32(a), asF32(b)
	var sum float32
	for i := range av {
		d := av[i] - bv[i]
		sum += d * d
	}
	return sum
}

func ipF64(a, b []byte) float32 {
	av, bv := asF64(a), asF64(b)
	var dot float64
	for i := range av {
		dot += av[i] * bv[i]
	}
	return float32(1 - dot)
}

func cosF64(a, b []byte) float32 {
	av, bv := asF64(a), asF64(b)
	var dot, na, nb float64
	for i := range av {
		dot += av[i] * bv[i]
		na += av[i] * av[i]
		nb += bv[i] * bv[i]
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return float32(1 - dot/math.Sqrt(na*nb))
}

func l2sqF64(a, b []byte) float32 {
	av, bv := asF64(a), asF64(b)
	var sum float64
	for i := range av {
		d := av[i] - bv[i]
		sum += d * d
	}
	return float32(sum)
}

func ipF16(a, b []byte) float32 {
	av, bv := asU16(a), asU16(b)
	var dot float32
	for i := range av {
		dot += float16.Frombits(av[i]).Float32() * float16.Frombits(bv[i]).Float32()
	}
	return 1 - dot
}

func cosF16(a, b []byte) float32 {
	av, bv := asU16(a), asU16(b)
	var dot, na, nb float32
	for i := range av {
		x := float16.Frombits(av[i]).Float32()
		y := float16.Frombits(bv[i]).Float32()
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/float32(math.Sqrt(float64(na)*float64(nb)))
}

func l2sqF16(a, b []byte) float32 {
	av, bv := asU16(a), asU16(b)
	var sum float32
	for i := range av {
		d := float16.Frombits(av[i]).Float32() - float16.Frombits(bv[i]).Float32()
		sum += d * d
	}
	return sum
}

func ipI8(a, b []byte) float32 {
	av, bv := asI8(a), asI8(b)
	var dot int32
	for i := range av {
		dot += int32(av[i]) * int32(bv[i])
	}
	return 1 - float32(dot)/(i8Scale*i8Scale)
}

func l2sqI8(a, b []byte) float32 {
	av, bv := asI8(a), asI8(b)
	var sum int32
	for i := range av {
		d := int32(av[i]) - int32(bv[i])
		sum += d * d
	}
	return float32(sum) / (i8Scale * i8Scale)
}

func hammingB64(a, b []byte) float32 {
	av, bv := asU64(a), asU64(b)
	var count int
	for i := range av {
		count += bits.OnesCount64(av[i] ^ bv[i])
	}
	return float32(count)
}

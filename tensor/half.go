package tensor

import "math"

// IEEE 754 binary16 conversions, used by the mixed precision forward
// pass. Rounding is to nearest, ties to even.

// FloatToHalf converts a float32 to its binary16 bit pattern.
func FloatToHalf(f float32) uint16 {
	b := math.Float32bits(f)
	sign := uint16(b>>16) & 0x8000
	exp := int32(b>>23&0xff) - 127
	man := b & 0x7fffff

	switch {
	case exp == 128:
		if man != 0 {
			return sign | 0x7e00 // quiet NaN
		}
		return sign | 0x7c00
	case exp > 15:
		return sign | 0x7c00 // overflow to infinity
	case exp >= -14:
		v := uint32(exp+15)<<10 | man>>13
		rem := man & 0x1fff
		if rem > 0x1000 || (rem == 0x1000 && v&1 == 1) {
			v++ // carry may bump the exponent, including up to infinity
		}
		return sign | uint16(v)
	case exp >= -25:
		// subnormal half
		m := man | 0x800000
		s := uint32(-exp - 1)
		v := m >> s
		rem := m & (1<<s - 1)
		if rem > 1<<(s-1) || (rem == 1<<(s-1) && v&1 == 1) {
			v++
		}
		return sign | uint16(v)
	default:
		return sign // underflow to zero
	}
}

// HalfToFloat converts a binary16 bit pattern to float32.
func HalfToFloat(h uint16) float32 {
	sign := uint32(h&0x8000) << 16
	exp := uint32(h>>10) & 0x1f
	man := uint32(h & 0x3ff)

	switch {
	case exp == 0x1f:
		return math.Float32frombits(sign | 0x7f800000 | man<<13)
	case exp != 0:
		return math.Float32frombits(sign | (exp+112)<<23 | man<<13)
	case man == 0:
		return math.Float32frombits(sign)
	default:
		// normalize the subnormal
		e := uint32(113)
		for man&0x400 == 0 {
			man <<= 1
			e--
		}
		man &= 0x3ff
		return math.Float32frombits(sign | e<<23 | man<<13)
	}
}

// RoundHalf rounds a float32 through binary16 precision.
func RoundHalf(f float32) float32 {
	return HalfToFloat(FloatToHalf(f))
}

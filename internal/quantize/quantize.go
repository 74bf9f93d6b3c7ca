// Package quantize maps bounded floats onto fixed-width integers and packs several of them into
// one word. Out-of-range values are clamped: quantisation is a lossy boundary, not a validator.
package quantize

import "math"

// Range is the closed interval a quantised value is known to lie in.
type Range struct {
	Lo float32
	Hi float32
}

// Clamp limits v to the range.
func (r Range) Clamp(v float32) float32 {
	if v < r.Lo {
		return r.Lo
	}
	if v > r.Hi {
		return r.Hi
	}
	return v
}

// Step returns the largest reconstruction error for the given bit width.
func (r Range) Step(bits uint) float32 {
	return (r.Hi - r.Lo) / float32(steps(bits))
}

func steps(bits uint) uint32 {
	return uint32(1)<<bits - 1
}

func mask(bits uint) uint32 {
	return steps(bits)
}

// Pack scales v into [0, 2^bits-1]. NaN packs to the low end of the range.
func Pack(v float32, r Range, bits uint) uint32 {
	if bits == 0 || r.Hi <= r.Lo {
		return 0
	}
	if v != v {
		v = r.Lo
	}
	//1.- Work in float64 so the scale factor does not lose precision for wide fields.
	norm := float64(r.Clamp(v)-r.Lo) / float64(r.Hi-r.Lo)
	return uint32(math.Round(norm * float64(steps(bits))))
}

// Unpack reverses Pack.
func Unpack(c uint32, r Range, bits uint) float32 {
	if bits == 0 {
		return r.Lo
	}
	c &= mask(bits)
	return float32(float64(c)/float64(steps(bits))*float64(r.Hi-r.Lo) + float64(r.Lo))
}

// Roundtrip returns the value a peer will observe after v crosses the wire.
func Roundtrip(v float32, r Range, bits uint) float32 {
	return Unpack(Pack(v, r, bits), r, bits)
}

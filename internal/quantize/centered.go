package quantize

import "math"

// Centered quantises the symmetric interval [-Max, Max] onto 2^Bits-1 codes centred on zero,
// so zero and both endpoints reconstruct exactly. The highest code of the width is unused and
// decodes as Max.
type Centered struct {
	Max  float32
	Bits uint
}

func (c Centered) mid() uint32 {
	if c.Bits < 2 {
		return 0
	}
	return steps(c.Bits) / 2
}

// Step returns the distance between adjacent reconstructed values.
func (c Centered) Step() float32 {
	mid := c.mid()
	if mid == 0 {
		return 0
	}
	return c.Max / float32(mid)
}

// Pack clamps v to [-Max, Max] and returns its code. NaN packs to zero.
func (c Centered) Pack(v float32) uint32 {
	mid := c.mid()
	if mid == 0 || c.Max <= 0 || v != v {
		return mid
	}
	v = Range{Lo: -c.Max, Hi: c.Max}.Clamp(v)
	offset := int64(math.Round(float64(v) / float64(c.Max) * float64(mid)))
	return uint32(offset + int64(mid))
}

// Unpack reverses Pack.
func (c Centered) Unpack(code uint32) float32 {
	mid := c.mid()
	if mid == 0 {
		return 0
	}
	code &= mask(c.Bits)
	if code > 2*mid {
		code = 2 * mid
	}
	return float32(float64(int64(code)-int64(mid)) / float64(mid) * float64(c.Max))
}

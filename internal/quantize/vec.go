package quantize

// Vec2 packs two quantised sub-fields into one word, the first in the low bits.
type Vec2 struct {
	R1, R2       Range
	Bits1, Bits2 uint
}

// Width reports the number of bits the packed word uses.
func (v Vec2) Width() uint { return v.Bits1 + v.Bits2 }

// Pack quantises a and b and ORs them together.
func (v Vec2) Pack(a, b float32) uint32 {
	return Pack(b, v.R2, v.Bits2)<<v.Bits1 | Pack(a, v.R1, v.Bits1)
}

// Unpack splits the word back into its two sub-fields.
func (v Vec2) Unpack(word uint32) (float32, float32) {
	a := Unpack(word&mask(v.Bits1), v.R1, v.Bits1)
	b := Unpack(word>>v.Bits1&mask(v.Bits2), v.R2, v.Bits2)
	return a, b
}

// Vec3 packs three quantised sub-fields into one word, least significant first.
type Vec3 struct {
	R1, R2, R3          Range
	Bits1, Bits2, Bits3 uint
}

// Width reports the number of bits the packed word uses.
func (v Vec3) Width() uint { return v.Bits1 + v.Bits2 + v.Bits3 }

// Pack quantises a, b and c into one word.
func (v Vec3) Pack(a, b, c float32) uint32 {
	return Pack(c, v.R3, v.Bits3)<<(v.Bits1+v.Bits2) |
		Pack(b, v.R2, v.Bits2)<<v.Bits1 |
		Pack(a, v.R1, v.Bits1)
}

// Unpack splits the word back into its three sub-fields.
func (v Vec3) Unpack(word uint32) (float32, float32, float32) {
	a := Unpack(word&mask(v.Bits1), v.R1, v.Bits1)
	b := Unpack(word>>v.Bits1&mask(v.Bits2), v.R2, v.Bits2)
	c := Unpack(word>>(v.Bits1+v.Bits2)&mask(v.Bits3), v.R3, v.Bits3)
	return a, b, c
}

package quantize

import (
	"math"
	"testing"
)

func TestPackUnpackErrorBound(t *testing.T) {
	ranges := []Range{{Lo: -1, Hi: 1}, {Lo: -math.Pi, Hi: math.Pi}, {Lo: -10, Hi: 40}, {Lo: 0, Hi: 1000}}
	for _, r := range ranges {
		for _, bits := range []uint{4, 8, 12, 16} {
			bound := r.Step(bits)
			//1.- Sample the interval densely including both endpoints.
			for i := 0; i <= 1000; i++ {
				v := r.Lo + (r.Hi-r.Lo)*float32(i)/1000
				got := Unpack(Pack(v, r, bits), r, bits)
				if diff := float32(math.Abs(float64(got - v))); diff > bound {
					t.Fatalf("range %+v bits %d: |%v - %v| = %v exceeds %v", r, bits, got, v, diff, bound)
				}
			}
		}
	}
}

func TestPackClampsOutOfRange(t *testing.T) {
	r := Range{Lo: -1, Hi: 1}
	if got := Pack(5, r, 4); got != 15 {
		t.Fatalf("Pack(5) = %d, want 15", got)
	}
	if got := Pack(-5, r, 4); got != 0 {
		t.Fatalf("Pack(-5) = %d, want 0", got)
	}
	if got := Roundtrip(2, r, 8); got != 1 {
		t.Fatalf("Roundtrip(2) = %v, want 1", got)
	}
	if got := Roundtrip(float32(math.NaN()), r, 8); got != -1 {
		t.Fatalf("Roundtrip(NaN) = %v, want -1", got)
	}
}

func TestPackEndpointsExact(t *testing.T) {
	r := Range{Lo: -1, Hi: 1}
	for _, bits := range []uint{4, 8, 16} {
		if got := Roundtrip(-1, r, bits); got != -1 {
			t.Fatalf("bits %d: lo round trip = %v", bits, got)
		}
		if got := Roundtrip(1, r, bits); got != 1 {
			t.Fatalf("bits %d: hi round trip = %v", bits, got)
		}
	}
}

func TestRoundtripIsIdempotent(t *testing.T) {
	//1.- A value that already crossed the wire must survive a second crossing unchanged.
	r := Range{Lo: -1, Hi: 1}
	for i := 0; i <= 100; i++ {
		v := -1 + 2*float32(i)/100
		once := Roundtrip(v, r, 4)
		if twice := Roundtrip(once, r, 4); twice != once {
			t.Fatalf("Roundtrip not idempotent for %v: %v then %v", v, once, twice)
		}
	}
}

func TestVec2PacksLowFieldFirst(t *testing.T) {
	v := Vec2{R1: Range{Lo: 0, Hi: 15}, R2: Range{Lo: 0, Hi: 15}, Bits1: 4, Bits2: 4}
	word := v.Pack(3, 12)
	if word != 12<<4|3 {
		t.Fatalf("Pack(3, 12) = %#x, want %#x", word, 12<<4|3)
	}
	a, b := v.Unpack(word)
	if a != 3 || b != 12 {
		t.Fatalf("Unpack = (%v, %v), want (3, 12)", a, b)
	}
	if v.Width() != 8 {
		t.Fatalf("Width() = %d", v.Width())
	}
}

func TestVec3RoundTrip(t *testing.T) {
	v := Vec3{
		R1: Range{Lo: -100, Hi: 100}, Bits1: 11,
		R2: Range{Lo: -100, Hi: 100}, Bits2: 11,
		R3: Range{Lo: -math.Pi, Hi: math.Pi}, Bits3: 10,
	}
	if v.Width() != 32 {
		t.Fatalf("Width() = %d", v.Width())
	}
	tests := [][3]float32{{0, 0, 0}, {-100, 100, 3}, {42.5, -17.25, -2.5}, {99.9, -99.9, 3.14}}
	for _, tc := range tests {
		a, b, c := v.Unpack(v.Pack(tc[0], tc[1], tc[2]))
		if !within(a, tc[0], v.R1.Step(v.Bits1)) || !within(b, tc[1], v.R2.Step(v.Bits2)) || !within(c, tc[2], v.R3.Step(v.Bits3)) {
			t.Fatalf("round trip %v -> (%v, %v, %v)", tc, a, b, c)
		}
	}
}

func within(got, want, eps float32) bool {
	return math.Abs(float64(got-want)) <= float64(eps)
}

func TestCenteredKeepsZeroAndEndpointsExact(t *testing.T) {
	c := Centered{Max: 1, Bits: 4}
	cases := []struct {
		in   float32
		code uint32
		out  float32
	}{
		{0, 7, 0},
		{1, 14, 1},
		{-1, 0, -1},
		{3, 14, 1},
		{-3, 0, -1},
		{float32(math.NaN()), 7, 0},
	}
	for _, tc := range cases {
		if got := c.Pack(tc.in); got != tc.code {
			t.Fatalf("Pack(%v) = %d, want %d", tc.in, got, tc.code)
		}
		if got := c.Unpack(tc.code); got != tc.out {
			t.Fatalf("Unpack(%d) = %v, want %v", tc.code, got, tc.out)
		}
	}
	//1.- The spare top code never decodes past Max.
	if got := c.Unpack(15); got != 1 {
		t.Fatalf("Unpack(15) = %v", got)
	}
}

func TestCenteredErrorBoundAndIdempotence(t *testing.T) {
	c := Centered{Max: 1, Bits: 4}
	half := c.Step() / 2
	for i := 0; i <= 1000; i++ {
		v := -1 + 2*float32(i)/1000
		got := c.Unpack(c.Pack(v))
		if diff := float32(math.Abs(float64(got - v))); diff > half+1e-6 {
			t.Fatalf("|%v - %v| = %v exceeds %v", got, v, diff, half)
		}
		if again := c.Unpack(c.Pack(got)); again != got {
			t.Fatalf("re-quantising %v gave %v", got, again)
		}
	}
}

package bitstream

import (
	"errors"
	"math"
	"testing"
)

func TestWriterReaderFixedFields(t *testing.T) {
	w := NewWriter(0)
	w.WriteUint8(0x42)
	w.WriteUint16(0x1234)
	w.WriteUint32(0xDEADBEEF)
	w.WriteFloat32(3.5)
	w.WriteBytes([]byte{1, 2, 3})
	w.WriteString("hi")

	if w.Len() != 1+2+4+4+3+2 {
		t.Fatalf("unexpected length %d", w.Len())
	}

	r := NewReader(w.Bytes())
	if v, err := r.ReadUint8(); err != nil || v != 0x42 {
		t.Fatalf("ReadUint8() = %#x, %v", v, err)
	}
	if v, err := r.ReadUint16(); err != nil || v != 0x1234 {
		t.Fatalf("ReadUint16() = %#x, %v", v, err)
	}
	if v, err := r.ReadUint32(); err != nil || v != 0xDEADBEEF {
		t.Fatalf("ReadUint32() = %#x, %v", v, err)
	}
	if v, err := r.ReadFloat32(); err != nil || v != 3.5 {
		t.Fatalf("ReadFloat32() = %v, %v", v, err)
	}
	if v, err := r.ReadBytes(3); err != nil || string(v) != "\x01\x02\x03" {
		t.Fatalf("ReadBytes(3) = %v, %v", v, err)
	}
	if rest := r.Rest(); string(rest) != "hi" {
		t.Fatalf("Rest() = %q", rest)
	}
	if r.Remaining() != 0 {
		t.Fatalf("expected reader to be exhausted, %d left", r.Remaining())
	}
}

func TestWriterBigEndianLayout(t *testing.T) {
	w := NewWriter(4)
	w.WriteUint32(0x01020304)
	got := w.Bytes()
	want := []byte{1, 2, 3, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestWriterGrowthPreservesBytes(t *testing.T) {
	//1.- Start from an empty buffer so every write forces the doubling path.
	w := NewWriter(0)
	for i := 0; i < 100; i++ {
		w.WriteUint8(uint8(i))
	}
	if w.Len() != 100 {
		t.Fatalf("expected 100 bytes, got %d", w.Len())
	}
	//2.- Capacity grows by doubling so it lands on a power of two.
	if c := w.Cap(); c != 128 {
		t.Fatalf("expected capacity 128, got %d", c)
	}
	for i, b := range w.Bytes() {
		if int(b) != i {
			t.Fatalf("byte %d corrupted: %d", i, b)
		}
	}
	w.Reset()
	if w.Len() != 0 || w.Cap() != 128 {
		t.Fatalf("reset should keep storage, len=%d cap=%d", w.Len(), w.Cap())
	}
}

func TestReaderFailsPastEnd(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02, 0x03})
	if _, err := r.ReadUint32(); !errors.Is(err, ErrShortBuffer) {
		t.Fatalf("expected ErrShortBuffer, got %v", err)
	}
	//1.- A failed read must not move the cursor.
	if r.Position() != 0 {
		t.Fatalf("cursor moved to %d after failed read", r.Position())
	}
	if err := r.Skip(3); err != nil {
		t.Fatalf("skip: %v", err)
	}
	if _, err := r.ReadUint8(); !errors.Is(err, ErrShortBuffer) {
		t.Fatalf("expected ErrShortBuffer at end, got %v", err)
	}
	if err := r.Skip(1); !errors.Is(err, ErrShortBuffer) {
		t.Fatalf("expected skip past end to fail, got %v", err)
	}
}

func TestReaderSkipDiscardsTag(t *testing.T) {
	w := NewWriter(8)
	w.WriteUint8(7)
	w.WriteUint16(512)
	r := NewReader(w.Bytes())
	if err := r.Skip(1); err != nil {
		t.Fatalf("skip: %v", err)
	}
	if v, err := r.ReadUint16(); err != nil || v != 512 {
		t.Fatalf("ReadUint16() after skip = %d, %v", v, err)
	}
}

func TestPackedUint32Widths(t *testing.T) {
	tests := []struct {
		name  string
		value uint32
		bytes int
	}{
		{"zero", 0, 1},
		{"max_1byte", 63, 1},
		{"min_2byte", 64, 2},
		{"max_2byte", 16383, 2},
		{"min_4byte", 16384, 4},
		{"tick", 123456, 4},
		{"max_packed", MaxPacked, 4},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := NewWriter(0)
			if err := w.WritePackedUint32(tc.value); err != nil {
				t.Fatalf("WritePackedUint32(%d): %v", tc.value, err)
			}
			if w.Len() != tc.bytes {
				t.Fatalf("encoded %d in %d bytes, want %d", tc.value, w.Len(), tc.bytes)
			}
			if PackedUint32Len(tc.value) != tc.bytes {
				t.Fatalf("PackedUint32Len(%d) = %d", tc.value, PackedUint32Len(tc.value))
			}
			got, err := NewReader(w.Bytes()).ReadPackedUint32()
			if err != nil || got != tc.value {
				t.Fatalf("ReadPackedUint32() = %d, %v; want %d", got, err, tc.value)
			}
		})
	}
}

func TestPackedUint32RoundTripSweep(t *testing.T) {
	//1.- Walk the whole 30-bit domain with a stride that still touches every width boundary.
	w := NewWriter(16)
	for v := uint64(0); v <= MaxPacked; v += 7919 {
		checkPackedRoundTrip(t, w, uint32(v))
	}
	for _, v := range []uint32{62, 63, 64, 65, 16382, 16383, 16384, 16385, MaxPacked - 1, MaxPacked} {
		checkPackedRoundTrip(t, w, v)
	}
}

func checkPackedRoundTrip(t *testing.T, w *Writer, v uint32) {
	t.Helper()
	w.Reset()
	if err := w.WritePackedUint32(v); err != nil {
		t.Fatalf("write %d: %v", v, err)
	}
	got, err := NewReader(w.Bytes()).ReadPackedUint32()
	if err != nil || got != v {
		t.Fatalf("round trip %d -> %d, %v", v, got, err)
	}
}

func TestPackedUint32MSBFirst(t *testing.T) {
	w := NewWriter(4)
	if err := w.WritePackedUint32(0x3FFF); err != nil {
		t.Fatalf("write: %v", err)
	}
	got := w.Bytes()
	if got[0] != 0x40|0x3F || got[1] != 0xFF {
		t.Fatalf("unexpected 2-byte layout % x", got)
	}
}

func TestPackedUint32RejectsOverflow(t *testing.T) {
	w := NewWriter(4)
	for _, v := range []uint32{MaxPacked + 1, math.MaxUint32} {
		if err := w.WritePackedUint32(v); !errors.Is(err, ErrPackedOverflow) {
			t.Fatalf("expected overflow for %d, got %v", v, err)
		}
	}
	if w.Len() != 0 {
		t.Fatalf("rejected values must not write bytes, got %d", w.Len())
	}
}

func TestReadPackedUint32Errors(t *testing.T) {
	if _, err := NewReader([]byte{0xC0}).ReadPackedUint32(); !errors.Is(err, ErrPackedTag) {
		t.Fatalf("expected ErrPackedTag, got %v", err)
	}
	if _, err := NewReader([]byte{0x80, 0x01}).ReadPackedUint32(); !errors.Is(err, ErrShortBuffer) {
		t.Fatalf("expected ErrShortBuffer for truncated 4-byte form, got %v", err)
	}
}

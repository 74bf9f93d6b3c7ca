package bitstream

import (
	"errors"
	"fmt"
)

// Packed integers carry their width in the two most significant bits of the first byte.
const (
	tagBits = 2

	tag8  = 0b00
	tag16 = 0b01
	tag32 = 0b10

	// MaxPacked is the largest value the packed encoding can carry (30 bits).
	MaxPacked = 1<<(32-tagBits) - 1

	max8  = 1<<(8-tagBits) - 1
	max16 = 1<<(16-tagBits) - 1
)

var (
	// ErrPackedOverflow rejects values that do not fit in 30 bits.
	ErrPackedOverflow = errors.New("bitstream: value exceeds packed range")
	// ErrPackedTag reports the reserved 0b11 width tag.
	ErrPackedTag = errors.New("bitstream: invalid packed width tag")
)

// PackedUint32Len returns the encoded width of v in bytes, or 0 when v is out of range.
func PackedUint32Len(v uint32) int {
	switch {
	case v <= max8:
		return 1
	case v <= max16:
		return 2
	case v <= MaxPacked:
		return 4
	default:
		return 0
	}
}

// WritePackedUint32 appends v using the smallest of the 1, 2 or 4 byte forms. Bytes are
// emitted most significant first regardless of platform endianness.
func (w *Writer) WritePackedUint32(v uint32) error {
	switch PackedUint32Len(v) {
	case 1:
		w.WriteUint8(uint8(v) | tag8<<(8-tagBits))
	case 2:
		w.WriteUint8(uint8(v>>8) | tag16<<(8-tagBits))
		w.WriteUint8(uint8(v))
	case 4:
		w.WriteUint8(uint8(v>>24) | tag32<<(8-tagBits))
		w.WriteUint8(uint8(v >> 16))
		w.WriteUint8(uint8(v >> 8))
		w.WriteUint8(uint8(v))
	default:
		return fmt.Errorf("%w: %d", ErrPackedOverflow, v)
	}
	return nil
}

// ReadPackedUint32 decodes a value written by WritePackedUint32.
func (r *Reader) ReadPackedUint32() (uint32, error) {
	first, err := r.ReadUint8()
	if err != nil {
		return 0, err
	}
	//1.- Split the tag from the payload bits of the first byte.
	tag := first >> (8 - tagBits)
	value := uint32(first & (1<<(8-tagBits) - 1))
	var extra int
	switch tag {
	case tag8:
		return value, nil
	case tag16:
		extra = 1
	case tag32:
		extra = 3
	default:
		return 0, fmt.Errorf("%w: %#02x", ErrPackedTag, first)
	}
	//2.- Fold the remaining bytes in, most significant first.
	for i := 0; i < extra; i++ {
		b, err := r.ReadUint8()
		if err != nil {
			return 0, err
		}
		value = value<<8 | uint32(b)
	}
	return value, nil
}

package bitstream

import (
	"errors"
	"fmt"
	"math"
)

// ErrShortBuffer reports a read past the end of the span. A fixed-size prefix is never
// legitimately truncated, so callers treat it as protocol desync.
var ErrShortBuffer = errors.New("bitstream: read past end of buffer")

// Reader is a cursor over an externally supplied, fixed-length span.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps data without copying it.
func NewReader(data []byte) *Reader {
	return &Reader{buf: data}
}

// Position returns the cursor offset.
func (r *Reader) Position() int {
	return r.pos
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

func (r *Reader) need(n int, field string) error {
	if n < 0 || r.pos+n > len(r.buf) {
		return fmt.Errorf("%w: %s needs %d bytes at offset %d of %d", ErrShortBuffer, field, n, r.pos, len(r.buf))
	}
	return nil
}

// Skip discards n bytes without copying them out.
func (r *Reader) Skip(n int) error {
	if err := r.need(n, "skip"); err != nil {
		return err
	}
	r.pos += n
	return nil
}

// ReadUint8 reads one byte.
func (r *Reader) ReadUint8() (uint8, error) {
	if err := r.need(1, "uint8"); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

// ReadUint16 reads a big-endian uint16.
func (r *Reader) ReadUint16() (uint16, error) {
	if err := r.need(2, "uint16"); err != nil {
		return 0, err
	}
	v := uint16(r.buf[r.pos])<<8 | uint16(r.buf[r.pos+1])
	r.pos += 2
	return v, nil
}

// ReadUint32 reads a big-endian uint32.
func (r *Reader) ReadUint32() (uint32, error) {
	if err := r.need(4, "uint32"); err != nil {
		return 0, err
	}
	v := uint32(r.buf[r.pos])<<24 | uint32(r.buf[r.pos+1])<<16 |
		uint32(r.buf[r.pos+2])<<8 | uint32(r.buf[r.pos+3])
	r.pos += 4
	return v, nil
}

// ReadFloat32 reads big-endian IEEE 754 bits.
func (r *Reader) ReadFloat32() (float32, error) {
	bits, err := r.ReadUint32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(bits), nil
}

// ReadBytes copies exactly n bytes out of the span.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if err := r.need(n, "bytes"); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.buf[r.pos:r.pos+n])
	r.pos += n
	return out, nil
}

// Rest consumes everything left in the span. Used for trailing free-text fields whose length
// is the packet length minus the fixed prefix.
func (r *Reader) Rest() []byte {
	out := make([]byte, len(r.buf)-r.pos)
	copy(out, r.buf[r.pos:])
	r.pos = len(r.buf)
	return out
}

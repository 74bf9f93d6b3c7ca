// Package bitstream implements the byte-level codec shared by every wire message: a growable
// write buffer, a bounds-checked read cursor and the tag-prefixed packed integer encoding.
package bitstream

import "math"

const (
	minCapacity = 1
	growFactor  = 2
)

// Writer appends fixed-size fields to an owned, growable byte buffer.
type Writer struct {
	buf []byte
}

// NewWriter creates a writer with the requested initial capacity.
func NewWriter(capacity int) *Writer {
	if capacity < 0 {
		capacity = 0
	}
	return &Writer{buf: make([]byte, 0, capacity)}
}

// Bytes returns the written span. The slice is valid until the next write or Reset.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len reports how many bytes have been written.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Cap reports the current storage capacity.
func (w *Writer) Cap() int {
	return cap(w.buf)
}

// Reset empties the writer while keeping its storage.
func (w *Writer) Reset() {
	w.buf = w.buf[:0]
}

// reserve makes room for n more bytes, doubling capacity until it fits.
func (w *Writer) reserve(n int) {
	need := len(w.buf) + n
	if need <= cap(w.buf) {
		return
	}
	//1.- Double from the current size (never below the minimum) so growth stays amortised.
	size := cap(w.buf)
	if size < minCapacity {
		size = minCapacity
	}
	for size < need {
		size *= growFactor
	}
	//2.- Copy the already written bytes into the larger storage.
	grown := make([]byte, len(w.buf), size)
	copy(grown, w.buf)
	w.buf = grown
}

// WriteUint8 appends a single byte.
func (w *Writer) WriteUint8(v uint8) {
	w.reserve(1)
	w.buf = append(w.buf, v)
}

// WriteUint16 appends v in big-endian order.
func (w *Writer) WriteUint16(v uint16) {
	w.reserve(2)
	w.buf = append(w.buf, byte(v>>8), byte(v))
}

// WriteUint32 appends v in big-endian order.
func (w *Writer) WriteUint32(v uint32) {
	w.reserve(4)
	w.buf = append(w.buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// WriteFloat32 appends the IEEE 754 bits of v in big-endian order.
func (w *Writer) WriteFloat32(v float32) {
	w.WriteUint32(math.Float32bits(v))
}

// WriteBytes appends a raw span.
func (w *Writer) WriteBytes(p []byte) {
	w.reserve(len(p))
	w.buf = append(w.buf, p...)
}

// WriteString appends the raw bytes of s without a length prefix.
func (w *Writer) WriteString(s string) {
	w.reserve(len(s))
	w.buf = append(w.buf, s...)
}

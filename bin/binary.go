package bin

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
)

// Simple binary parsing/serialization library.

// ErrShortBuffer is recorded by a Decoder that runs out of input.
var ErrShortBuffer = errors.New("bin: short buffer")

// Decoder streams binary data from a byte buffer.
//
// Decoding errors are sticky: once the decoder runs out of input every
// further read returns a zero value, and Err reports the first failure.
type Decoder struct {
	buf []byte
	err error
}

// NewDecoder creates a decoder that parses data from buffer b.
//
// Retains b, which the caller should not use afterward.
func NewDecoder(b []byte) *Decoder {
	return &Decoder{buf: b}
}

// RemainingBytes gives the number of bytes remaining in the buffer.
func (r Decoder) RemainingBytes() int {
	return len(r.buf)
}

// Err returns the first error encountered while decoding.
func (r Decoder) Err() error {
	return r.err
}

// Bytes is a primitive decoder that reads a fixed number of bytes.
func (r *Decoder) Bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > len(r.buf) {
		r.err = ErrShortBuffer
		r.buf = nil
		return nil
	}
	d := r.buf[:n]
	r.buf = r.buf[n:]
	return d
}

// Encoder encodes values to an output stream.
type Encoder struct {
	w io.Writer
	// total bytes written since initialization
	bytesWritten int
}

// NewEncoder creates an encoder that writes data to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w, bytesWritten: 0}
}

// BytesWritten returns the number of bytes written to the encoder since this
// encoder was created.
func (w Encoder) BytesWritten() int {
	return w.bytesWritten
}

// Bytes is a primitive encoder that copies bytes.
//
// Encoders are only used over in-memory buffers, so a write error is a
// programming error and panics.
func (w *Encoder) Bytes(b []byte) {
	for len(b) > 0 {
		n, err := w.w.Write(b)
		if err != nil {
			panic(err)
		}
		w.bytesWritten += n
		b = b[n:]
	}
}

// Uint64 decodes a uint64 (in little endian format).
func (r *Decoder) Uint64() uint64 {
	b := r.Bytes(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// Int64 decodes an int64 stored as its two's complement uint64.
func (r *Decoder) Int64() int64 {
	return int64(r.Uint64())
}

// Float64 decodes an IEEE 754 float64.
func (r *Decoder) Float64() float64 {
	return math.Float64frombits(r.Uint64())
}

// Uint8 decodes a uint8
func (r *Decoder) Uint8() uint8 {
	b := r.Bytes(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// Uint64 encodes a uint64 (in little endian format).
func (w *Encoder) Uint64(v uint64) {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	w.Bytes(b)
}

// Int64 encodes an int64 as its two's complement uint64.
func (w *Encoder) Int64(v int64) {
	w.Uint64(uint64(v))
}

// Float64 encodes an IEEE 754 float64, preserving NaN payloads and the sign
// of zero.
func (w *Encoder) Float64(v float64) {
	w.Uint64(math.Float64bits(v))
}

// Uint8 encodes a uint8
func (w *Encoder) Uint8(b uint8) {
	w.Bytes([]byte{b})
}

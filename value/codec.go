package value

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"github.com/golang/snappy"
	"github.com/tchajed/specious-kv/bin"
)

// Encoding of a stored value:
//
// tag uint8 (low bits: kind, high bit: payload is snappy-compressed)
// payload:
//   bool:   uint8 (0 or 1)
//   int:    int64, little endian
//   float:  float64 bits, little endian
//   string: varint-prefixed bytes (UTF-8)
//   bytes:  varint-prefixed bytes
//
// Absent values are never stored.

const (
	compressedFlag = 0x80
	kindMask       = 0x7f
	// payloads shorter than this are stored uncompressed
	compressThreshold = 512
	// payloads longer than this are stored uncompressed, and Decode refuses
	// to inflate anything larger
	maxDecodedLen = 256 << 20
)

// Encode serializes v for storage.
func Encode(v Value) ([]byte, error) {
	var buf bytes.Buffer
	e := bin.NewEncoder(&buf)
	switch v.kind {
	case KindAbsent:
		return nil, fmt.Errorf("%w: absent values cannot be stored", ErrUnexpectedValue)
	case KindBool:
		e.Uint8(uint8(KindBool))
		if v.b {
			e.Uint8(1)
		} else {
			e.Uint8(0)
		}
	case KindInt:
		e.Uint8(uint8(KindInt))
		e.Int64(v.i)
	case KindFloat:
		e.Uint8(uint8(KindFloat))
		e.Float64(v.f)
	case KindString:
		if !utf8.ValidString(v.s) {
			return nil, fmt.Errorf("%w: string is not valid UTF-8", ErrInvalidValue)
		}
		encodePayload(e, KindString, []byte(v.s))
	case KindBytes:
		encodePayload(e, KindBytes, v.bs)
	default:
		return nil, fmt.Errorf("%w: unknown kind %v", ErrInvalidValue, v.kind)
	}
	return buf.Bytes(), nil
}

func encodePayload(e *bin.Encoder, k Kind, data []byte) {
	if len(data) >= compressThreshold && len(data) <= maxDecodedLen {
		compressed := snappy.Encode(nil, data)
		if len(compressed) < len(data) {
			e.Uint8(uint8(k) | compressedFlag)
			e.Array(compressed)
			return
		}
	}
	e.Uint8(uint8(k))
	e.Array(data)
}

// Decode parses a stored value. Malformed input is ErrUnexpectedValue.
func Decode(data []byte) (Value, error) {
	if len(data) == 0 {
		return Absent, fmt.Errorf("%w: empty encoding", ErrUnexpectedValue)
	}
	d := bin.NewDecoder(data)
	tag := d.Uint8()
	kind := Kind(tag & kindMask)
	compressed := tag&compressedFlag != 0
	if compressed && kind != KindString && kind != KindBytes {
		return Absent, fmt.Errorf("%w: compressed %v", ErrUnexpectedValue, kind)
	}
	var v Value
	switch kind {
	case KindBool:
		switch d.Uint8() {
		case 0:
			v = Bool(false)
		case 1:
			v = Bool(true)
		default:
			return Absent, fmt.Errorf("%w: bad boolean", ErrUnexpectedValue)
		}
	case KindInt:
		v = Int(d.Int64())
	case KindFloat:
		v = Float(d.Float64())
	case KindString, KindBytes:
		payload := d.Array()
		if d.Err() == nil && compressed {
			n, err := snappy.DecodedLen(payload)
			if err != nil {
				return Absent, fmt.Errorf("%w: %v", ErrUnexpectedValue, err)
			}
			if n > maxDecodedLen {
				return Absent, fmt.Errorf("%w: compressed payload claims %d bytes", ErrUnexpectedValue, n)
			}
			payload, err = snappy.Decode(nil, payload)
			if err != nil {
				return Absent, fmt.Errorf("%w: %v", ErrUnexpectedValue, err)
			}
		}
		if kind == KindString {
			if !utf8.Valid(payload) {
				return Absent, fmt.Errorf("%w: string is not valid UTF-8", ErrUnexpectedValue)
			}
			v = String(string(payload))
		} else {
			v = Bytes(payload)
		}
	default:
		return Absent, fmt.Errorf("%w: unknown tag %#x", ErrUnexpectedValue, tag)
	}
	if err := d.Err(); err != nil {
		return Absent, fmt.Errorf("%w: %v", ErrUnexpectedValue, err)
	}
	if d.RemainingBytes() > 0 {
		return Absent, fmt.Errorf("%w: %d trailing bytes", ErrUnexpectedValue, d.RemainingBytes())
	}
	return v, nil
}

// Package value defines the typed values stored in a key-value database and
// their on-disk encoding.
package value

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
)

var (
	// ErrInvalidValue is returned for native values that have no
	// representation as a Value, and for strings that are not valid UTF-8.
	ErrInvalidValue = errors.New("invalid value")
	// ErrUnexpectedValue is returned when a value cannot be used where it
	// appears: an absent value where one is required, or stored bytes that
	// do not decode.
	ErrUnexpectedValue = errors.New("unexpected value")
)

// Kind identifies which member of the Value union is set.
type Kind uint8

const (
	KindAbsent Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
)

func (k Kind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// A Value is a closed tagged union over absent, boolean, integer,
// floating-point, text and byte-sequence values.
//
// The zero Value is absent.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	bs   []byte
}

// Absent is the value with no content.
var Absent = Value{}

func Bool(b bool) Value     { return Value{kind: KindBool, b: b} }
func Int(i int64) Value     { return Value{kind: KindInt, i: i} }
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }
func String(s string) Value { return Value{kind: KindString, s: s} }

// Bytes copies b into a new byte-sequence value.
func Bytes(b []byte) Value {
	return Value{kind: KindBytes, bs: append([]byte{}, b...)}
}

// Of converts a native Go value into a Value.
//
// nil becomes Absent; booleans, integers that fit in an int64, floats,
// strings and byte slices map onto the matching kind. Anything else is
// ErrInvalidValue.
func Of(x interface{}) (Value, error) {
	switch x := x.(type) {
	case nil:
		return Absent, nil
	case Value:
		return x, nil
	case bool:
		return Bool(x), nil
	case int:
		return Int(int64(x)), nil
	case int8:
		return Int(int64(x)), nil
	case int16:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint:
		return ofUint(uint64(x))
	case uint8:
		return Int(int64(x)), nil
	case uint16:
		return Int(int64(x)), nil
	case uint32:
		return Int(int64(x)), nil
	case uint64:
		return ofUint(x)
	case float32:
		return Float(float64(x)), nil
	case float64:
		return Float(x), nil
	case string:
		return String(x), nil
	case []byte:
		return Bytes(x), nil
	}
	return Absent, fmt.Errorf("%w: unsupported type %T", ErrInvalidValue, x)
}

func ofUint(u uint64) (Value, error) {
	if u > math.MaxInt64 {
		return Absent, fmt.Errorf("%w: %d overflows int64", ErrInvalidValue, u)
	}
	return Int(int64(u)), nil
}

func (v Value) Kind() Kind       { return v.kind }
func (v Value) IsAbsent() bool   { return v.kind == KindAbsent }
func (v Value) AsBool() bool     { return v.b }
func (v Value) AsInt() int64     { return v.i }
func (v Value) AsFloat() float64 { return v.f }
func (v Value) AsString() string { return v.s }

// AsBytes returns the byte sequence of a bytes value. The caller must not
// modify it.
func (v Value) AsBytes() []byte { return v.bs }

// Interface returns the native Go value held by v (nil when absent).
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindBytes:
		return v.bs
	}
	return nil
}

// Equal reports whether v and o hold the same kind and content. Floats are
// compared bit-for-bit, so a stored NaN equals itself.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return math.Float64bits(v.f) == math.Float64bits(o.f)
	case KindString:
		return v.s == o.s
	case KindBytes:
		return bytes.Equal(v.bs, o.bs)
	}
	return true
}

func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return v.s
	case KindBytes:
		return fmt.Sprintf("%x", v.bs)
	}
	return "<absent>"
}

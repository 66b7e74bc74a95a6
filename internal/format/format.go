// Package format implements the primitive layout mini-language used by
// FIELD specs: an optional byte order prefix, an optional count and a single
// type code.
//
//	prefix  @ = native, < little, > big, ! network (big), none = structure default
//	codes   c b B ? h H i I l L q Q e f d s
//
// The count is only meaningful for "s" (a byte string of that length).
package format

import (
	"encoding/binary"
	"math"
	"strconv"

	"github.com/x448/float16"

	"github.com/wippyai/datastruct/errors"
	"github.com/wippyai/datastruct/internal/coerce"
)

// Order selects the byte order of a layout.
type Order uint8

const (
	OrderDefault Order = iota // use the structure's configured order
	OrderNative
	OrderLittle
	OrderBig
)

// Spec is a parsed layout code.
type Spec struct {
	Order Order
	Count int
	Code  byte
}

var sizes = map[byte]int{
	'c': 1, 'b': 1, 'B': 1, '?': 1,
	'h': 2, 'H': 2, 'e': 2,
	'i': 4, 'I': 4, 'l': 4, 'L': 4, 'f': 4,
	'q': 8, 'Q': 8, 'd': 8,
	's': 1,
}

// Parse parses a layout code such as "<I", "16s" or "!H".
func Parse(s string) (Spec, error) {
	var spec Spec
	if s == "" {
		return spec, invalid(s, "empty layout")
	}
	switch s[0] {
	case '@', '=':
		spec.Order = OrderNative
		s = s[1:]
	case '<':
		spec.Order = OrderLittle
		s = s[1:]
	case '>', '!':
		spec.Order = OrderBig
		s = s[1:]
	}

	digits := 0
	count := 0
	for digits < len(s) && s[digits] >= '0' && s[digits] <= '9' {
		count = count*10 + int(s[digits]-'0')
		if count > math.MaxInt32 {
			return spec, invalid(s, "count too large")
		}
		digits++
	}
	rest := s[digits:]
	if len(rest) != 1 {
		return spec, invalid(s, "expected exactly one type code")
	}
	spec.Code = rest[0]
	if _, ok := sizes[spec.Code]; !ok {
		return spec, invalid(s, "unknown type code")
	}
	if digits == 0 {
		count = 1
	}
	if spec.Code != 's' && count != 1 {
		return spec, invalid(s, "a count is only valid for byte strings")
	}
	spec.Count = count
	return spec, nil
}

// Bytes returns the layout of a fixed-length byte string.
func Bytes(n int) Spec {
	return Spec{Code: 's', Count: n}
}

// IsBytes reports whether the layout decodes to a byte string.
func (s Spec) IsBytes() bool { return s.Code == 's' || s.Code == 'c' }

// Size returns the encoded width in bytes.
func (s Spec) Size() int {
	if s.Code == 's' {
		return s.Count
	}
	return sizes[s.Code]
}

// ByteOrder resolves the layout's byte order against the structure default.
func (s Spec) ByteOrder(def binary.ByteOrder) binary.ByteOrder {
	switch s.Order {
	case OrderNative:
		return binary.NativeEndian
	case OrderLittle:
		return binary.LittleEndian
	case OrderBig:
		return binary.BigEndian
	}
	if def == nil {
		return binary.LittleEndian
	}
	return def
}

// Decode converts exactly Size() bytes into the layout's Go value.
func (s Spec) Decode(b []byte, def binary.ByteOrder) (any, error) {
	if len(b) < s.Size() {
		return nil, errors.InsufficientData(errors.PhaseDecode, s.Size(), len(b))
	}
	bo := s.ByteOrder(def)
	switch s.Code {
	case 's':
		out := make([]byte, s.Count)
		copy(out, b)
		return out, nil
	case 'c':
		return []byte{b[0]}, nil
	case 'b':
		return int8(b[0]), nil
	case 'B':
		return b[0], nil
	case '?':
		return b[0] != 0, nil
	case 'h':
		return int16(bo.Uint16(b)), nil
	case 'H':
		return bo.Uint16(b), nil
	case 'e':
		return float16.Frombits(bo.Uint16(b)).Float32(), nil
	case 'i', 'l':
		return int32(bo.Uint32(b)), nil
	case 'I', 'L':
		return bo.Uint32(b), nil
	case 'f':
		return math.Float32frombits(bo.Uint32(b)), nil
	case 'q':
		return int64(bo.Uint64(b)), nil
	case 'Q':
		return bo.Uint64(b), nil
	case 'd':
		return math.Float64frombits(bo.Uint64(b)), nil
	}
	return nil, invalid(string(s.Code), "unknown type code")
}

// Encode converts v into the layout's bytes. Byte strings longer than the
// layout are truncated; shorter ones are an error.
func (s Spec) Encode(v any, def binary.ByteOrder) ([]byte, error) {
	bo := s.ByteOrder(def)
	out := make([]byte, s.Size())
	switch s.Code {
	case 's', 'c':
		raw, ok := coerce.Bytes(v)
		if !ok {
			return nil, mismatch(v, "bytes")
		}
		if len(raw) < len(out) {
			return nil, errors.InsufficientData(errors.PhaseEncode, len(out), len(raw))
		}
		copy(out, raw)
	case 'b':
		n, ok := coerce.Signed[int8](v)
		if !ok {
			return nil, overflow(v, "int8")
		}
		out[0] = byte(n)
	case 'B':
		n, ok := coerce.Unsigned[uint8](v)
		if !ok {
			return nil, overflow(v, "uint8")
		}
		out[0] = n
	case '?':
		b, ok := coerce.ToBool(v)
		if !ok {
			return nil, mismatch(v, "bool")
		}
		if b {
			out[0] = 1
		}
	case 'h':
		n, ok := coerce.Signed[int16](v)
		if !ok {
			return nil, overflow(v, "int16")
		}
		bo.PutUint16(out, uint16(n))
	case 'H':
		n, ok := coerce.Unsigned[uint16](v)
		if !ok {
			return nil, overflow(v, "uint16")
		}
		bo.PutUint16(out, n)
	case 'e':
		f, ok := coerce.ToFloat64(v)
		if !ok {
			return nil, mismatch(v, "float16")
		}
		bo.PutUint16(out, float16.Fromfloat32(float32(f)).Bits())
	case 'i', 'l':
		n, ok := coerce.Signed[int32](v)
		if !ok {
			return nil, overflow(v, "int32")
		}
		bo.PutUint32(out, uint32(n))
	case 'I', 'L':
		n, ok := coerce.Unsigned[uint32](v)
		if !ok {
			return nil, overflow(v, "uint32")
		}
		bo.PutUint32(out, n)
	case 'f':
		f, ok := coerce.ToFloat64(v)
		if !ok {
			return nil, mismatch(v, "float32")
		}
		bo.PutUint32(out, math.Float32bits(float32(f)))
	case 'q':
		n, ok := coerce.Signed[int64](v)
		if !ok {
			return nil, overflow(v, "int64")
		}
		bo.PutUint64(out, uint64(n))
	case 'Q':
		n, ok := coerce.Unsigned[uint64](v)
		if !ok {
			return nil, overflow(v, "uint64")
		}
		bo.PutUint64(out, n)
	case 'd':
		f, ok := coerce.ToFloat64(v)
		if !ok {
			return nil, mismatch(v, "float64")
		}
		bo.PutUint64(out, math.Float64bits(f))
	default:
		return nil, invalid(string(s.Code), "unknown type code")
	}
	return out, nil
}

// String renders the layout back into its code form.
func (s Spec) String() string {
	prefix := ""
	switch s.Order {
	case OrderNative:
		prefix = "="
	case OrderLittle:
		prefix = "<"
	case OrderBig:
		prefix = ">"
	}
	if s.Code == 's' {
		return prefix + strconv.Itoa(s.Count) + "s"
	}
	return prefix + string(s.Code)
}

func invalid(code, detail string) error {
	return errors.New(errors.PhaseSchema, errors.KindInvalidFormat).
		Value(code).
		Detail("layout %q: %s", code, detail).
		Build()
}

func mismatch(v any, want string) error {
	return errors.TypeMismatch(errors.PhaseEncode, coerce.TypeName(v), "cannot encode as "+want)
}

func overflow(v any, target string) error {
	if _, ok := coerce.ToInt64(v); !ok {
		if _, ok := coerce.ToUint64(v); !ok {
			return mismatch(v, target)
		}
	}
	return errors.Overflow(errors.PhaseEncode, v, target)
}

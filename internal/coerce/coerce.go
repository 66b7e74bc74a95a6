// Package coerce converts loosely typed values into the fixed-width Go
// types a primitive layout code needs.
//
// Callers fill records with whatever integer type is convenient (int literals,
// enum types with an integer underlying kind, JSON float64). Pack narrows them
// to the width of the layout code and rejects values that do not fit.
package coerce

import (
	"bytes"
	"math"
	"reflect"

	"golang.org/x/exp/constraints"
)

// ToInt64 handles every Go integer kind, named integer types and integral floats.
func ToInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int64:
		return v, true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint:
		if v <= math.MaxInt64 {
			return int64(v), true
		}
	case uint64:
		if v <= math.MaxInt64 {
			return int64(v), true
		}
	case float64:
		if v >= float64(math.MinInt64) && v <= float64(math.MaxInt64) && v == float64(int64(v)) {
			return int64(v), true
		}
	case float32:
		if v >= float32(math.MinInt64) && v <= float32(math.MaxInt64) && v == float32(int64(v)) {
			return int64(v), true
		}
	case bool, nil:
		return 0, false
	default:
		return reflectInt64(value)
	}
	return 0, false
}

// ToUint64 is ToInt64 for the unsigned range.
func ToUint64(value any) (uint64, bool) {
	switch v := value.(type) {
	case uint64:
		return v, true
	case uint8:
		return uint64(v), true
	case uint16:
		return uint64(v), true
	case uint32:
		return uint64(v), true
	case uint:
		return uint64(v), true
	case int8:
		if v >= 0 {
			return uint64(v), true
		}
	case int16:
		if v >= 0 {
			return uint64(v), true
		}
	case int32:
		if v >= 0 {
			return uint64(v), true
		}
	case int:
		if v >= 0 {
			return uint64(v), true
		}
	case int64:
		if v >= 0 {
			return uint64(v), true
		}
	case float64:
		if v >= 0 && v <= float64(math.MaxUint64) && v == float64(uint64(v)) {
			return uint64(v), true
		}
	case float32:
		if v >= 0 && float64(v) <= float64(math.MaxUint64) && v == float32(uint64(v)) {
			return uint64(v), true
		}
	case bool, nil:
		return 0, false
	default:
		return reflectUint64(value)
	}
	return 0, false
}

// ToFloat64 accepts floats and integers.
func ToFloat64(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	}
	if n, ok := ToInt64(value); ok {
		return float64(n), true
	}
	if n, ok := ToUint64(value); ok {
		return float64(n), true
	}
	rv := reflect.ValueOf(value)
	if rv.IsValid() && (rv.Kind() == reflect.Float32 || rv.Kind() == reflect.Float64) {
		return rv.Float(), true
	}
	return 0, false
}

// ToBool accepts bools and the integers 0 and 1.
func ToBool(value any) (bool, bool) {
	if b, ok := value.(bool); ok {
		return b, true
	}
	rv := reflect.ValueOf(value)
	if rv.IsValid() && rv.Kind() == reflect.Bool {
		return rv.Bool(), true
	}
	if n, ok := ToInt64(value); ok && (n == 0 || n == 1) {
		return n == 1, true
	}
	return false, false
}

// Signed narrows value to T, failing on overflow.
func Signed[T constraints.Signed](value any) (T, bool) {
	n, ok := ToInt64(value)
	if !ok || int64(T(n)) != n {
		return 0, false
	}
	return T(n), true
}

// Unsigned narrows value to T, failing on overflow.
func Unsigned[T constraints.Unsigned](value any) (T, bool) {
	n, ok := ToUint64(value)
	if !ok || uint64(T(n)) != n {
		return 0, false
	}
	return T(n), true
}

// IsInteger reports whether value has an integer kind (named types included).
func IsInteger(value any) bool {
	if value == nil {
		return false
	}
	switch reflect.ValueOf(value).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	}
	return false
}

// Bytes accepts byte slices, strings and fixed-size byte arrays.
func Bytes(value any) ([]byte, bool) {
	switch v := value.(type) {
	case []byte:
		return v, true
	case string:
		return []byte(v), true
	}
	rv := reflect.ValueOf(value)
	if !rv.IsValid() {
		return nil, false
	}
	switch rv.Kind() {
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return rv.Bytes(), true
		}
	case reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			out := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(out), rv)
			return out, true
		}
	case reflect.String:
		return []byte(rv.String()), true
	}
	return nil, false
}

// Equal compares two decoded values. Integers compare by numeric value
// regardless of width or named type, byte slices by content.
func Equal(a, b any) bool {
	if IsInteger(a) && IsInteger(b) {
		if x, ok := ToInt64(a); ok {
			y, ok := ToInt64(b)
			return ok && x == y
		}
		x, _ := ToUint64(a)
		y, ok := ToUint64(b)
		return ok && x == y
	}
	if ab, ok := a.([]byte); ok {
		bb, ok := b.([]byte)
		return ok && bytes.Equal(ab, bb)
	}
	return reflect.DeepEqual(a, b)
}

// TypeName returns "nil" for nil values, avoiding reflect.TypeOf(nil) panic.
func TypeName(value any) string {
	if value == nil {
		return "nil"
	}
	return reflect.TypeOf(value).String()
}

func reflectInt64(value any) (int64, bool) {
	rv := reflect.ValueOf(value)
	if !rv.IsValid() {
		return 0, false
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if u := rv.Uint(); u <= math.MaxInt64 {
			return int64(u), true
		}
	}
	return 0, false
}

func reflectUint64(value any) (uint64, bool) {
	rv := reflect.ValueOf(value)
	if !rv.IsValid() {
		return 0, false
	}
	switch rv.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if n := rv.Int(); n >= 0 {
			return uint64(n), true
		}
	}
	return 0, false
}

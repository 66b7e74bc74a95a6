package datastruct

import (
	"reflect"
	"strings"

	"github.com/wippyai/datastruct/internal/coerce"
)

type typeTag uint8

const (
	tagSimple typeTag = iota
	tagList
	tagUnion
	tagAny
	tagNoValue
	tagNull
)

// Type is the declared value type of a field. Types are explicit tags chosen
// by the schema author; the validator checks them against the field kind.
type Type struct {
	goType  reflect.Type
	strct   *StructType
	elem    *Type
	name    string
	members []*Type
	tag     typeTag
}

// TypeFor declares a simple type backed by the Go type T. Named integer
// types (enums) decode into T.
func TypeFor[T any]() *Type {
	rt := reflect.TypeFor[T]()
	return &Type{tag: tagSimple, goType: rt, name: rt.String()}
}

// Predeclared simple types.
var (
	Bool    = TypeFor[bool]()
	Int8    = TypeFor[int8]()
	Uint8   = TypeFor[uint8]()
	Int16   = TypeFor[int16]()
	Uint16  = TypeFor[uint16]()
	Int32   = TypeFor[int32]()
	Uint32  = TypeFor[uint32]()
	Int64   = TypeFor[int64]()
	Uint64  = TypeFor[uint64]()
	Float32 = TypeFor[float32]()
	Float64 = TypeFor[float64]()
	Bytes   = TypeFor[[]byte]()
	String  = TypeFor[string]()

	// Any accepts every value; only Cond and Switch may declare it.
	Any = &Type{tag: tagAny, name: "any"}
	// NoValue is the type of special fields that never produce a value.
	NoValue = &Type{tag: tagNoValue, name: "novalue"}
	// Null is the type of a nil value; only valid inside Optional/Union.
	Null = &Type{tag: tagNull, name: "null"}
)

// StructOf declares a nested structure type.
func StructOf(st *StructType) *Type {
	return &Type{tag: tagSimple, strct: st, name: st.Name()}
}

// ListOf declares a list. A nil elem is an unparameterized list.
func ListOf(elem *Type) *Type {
	name := "list"
	if elem != nil {
		name = "list[" + elem.String() + "]"
	}
	return &Type{tag: tagList, elem: elem, name: name}
}

// Union declares a union of types. Nested unions are flattened, a member of
// Any collapses the union to Any, and a single member is returned as is.
func Union(members ...*Type) *Type {
	var flat []*Type
	for _, m := range members {
		if m.tag == tagAny {
			return Any
		}
		if m.tag == tagUnion {
			flat = append(flat, m.members...)
			continue
		}
		flat = append(flat, m)
	}
	var uniq []*Type
	for _, m := range flat {
		if indexOfType(uniq, m) < 0 {
			uniq = append(uniq, m)
		}
	}
	if len(uniq) == 1 {
		return uniq[0]
	}
	names := make([]string, len(uniq))
	for i, m := range uniq {
		names[i] = m.String()
	}
	return &Type{tag: tagUnion, members: uniq, name: strings.Join(names, " | ")}
}

// Optional declares t | Null.
func Optional(t *Type) *Type {
	return Union(t, Null)
}

func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	return t.name
}

// Struct returns the nested structure type, or nil.
func (t *Type) Struct() *StructType { return t.strct }

func (t *Type) isStruct() bool { return t != nil && t.tag == tagSimple && t.strct != nil }

func (t *Type) hasMember(tag typeTag) bool {
	for _, m := range t.members {
		if m.tag == tag {
			return true
		}
	}
	return false
}

func sameType(a, b *Type) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil || a.tag != b.tag {
		return false
	}
	switch a.tag {
	case tagSimple:
		if a.strct != nil || b.strct != nil {
			return a.strct == b.strct
		}
		return a.goType == b.goType
	case tagList:
		if a.elem == nil || b.elem == nil {
			return a.elem == b.elem
		}
		return sameType(a.elem, b.elem)
	case tagUnion:
		if len(a.members) != len(b.members) {
			return false
		}
		for _, m := range a.members {
			if indexOfType(b.members, m) < 0 {
				return false
			}
		}
		return true
	}
	return true
}

func indexOfType(list []*Type, t *Type) int {
	for i, m := range list {
		if sameType(m, t) {
			return i
		}
	}
	return -1
}

// subclassOf reports whether simple type a can stand where simple type b is declared.
func subclassOf(a, b *Type) bool {
	if a.tag != tagSimple || b.tag != tagSimple {
		return false
	}
	if a.strct != nil || b.strct != nil {
		return a.strct == b.strct
	}
	if a.goType == b.goType {
		return true
	}
	return b.goType.Kind() == reflect.Interface && a.goType.Implements(b.goType)
}

// classMatches checks a single class against a declared type.
func classMatches(cls, super *Type) bool {
	switch super.tag {
	case tagNoValue, tagAny:
		return true
	case tagSimple:
		return subclassOf(cls, super)
	case tagList:
		return cls.tag == tagList
	case tagUnion:
		for _, m := range super.members {
			if classMatches(cls, m) {
				return true
			}
		}
		return false
	case tagNull:
		return cls.tag == tagNull
	}
	return false
}

// typesMatch reports whether every value of sub fits super.
func typesMatch(sub, super *Type) bool {
	if sub.tag == tagNoValue || super.tag == tagNoValue {
		return true
	}
	switch sub.tag {
	case tagSimple, tagNull, tagList:
		return classMatches(sub, super)
	case tagAny:
		return super.tag == tagAny
	}
	if super.tag == tagAny {
		return true
	}
	for _, m := range sub.members {
		if !classMatches(m, super) {
			return false
		}
	}
	return true
}

// typeOfValue returns the declared-type view of a literal value.
func typeOfValue(v any) *Type {
	switch x := v.(type) {
	case nil:
		return Null
	case *Record:
		return StructOf(x.typ)
	case []any:
		return ListOf(nil)
	}
	rt := reflect.TypeOf(v)
	return &Type{tag: tagSimple, goType: rt, name: rt.String()}
}

// fits reports whether the literal v is acceptable for the declared type t.
// Integer literals fit any integer type and float literals any float type.
func fits(t *Type, v any) bool {
	switch t.tag {
	case tagAny:
		return true
	case tagNull:
		return v == nil
	case tagNoValue:
		return false
	case tagList:
		if v == nil {
			return false
		}
		k := reflect.TypeOf(v).Kind()
		_, isBytes := v.([]byte)
		return (k == reflect.Slice || k == reflect.Array) && !isBytes
	case tagUnion:
		for _, m := range t.members {
			if fits(m, v) {
				return true
			}
		}
		return false
	}
	if v == nil {
		return false
	}
	if t.strct != nil {
		rec, ok := v.(*Record)
		return ok && rec.typ == t.strct
	}
	rt := reflect.TypeOf(v)
	if rt == t.goType {
		return true
	}
	if t.goType.Kind() == reflect.Interface {
		return rt.Implements(t.goType)
	}
	if coerce.IsInteger(v) && isIntegerKind(t.goType.Kind()) {
		return true
	}
	return isFloatKind(rt.Kind()) && isFloatKind(t.goType.Kind())
}

func isIntegerKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	}
	return false
}

func isFloatKind(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

package datastruct

import (
	"strings"
	"testing"

	"github.com/wippyai/datastruct/errors"
)

func TestValidate_Rejects(t *testing.T) {
	nested := NewStruct("N", Field("x", "B"))
	ck := CRC32("body")
	tests := []struct {
		name  string
		field *FieldSpec
		kind  errors.Kind
		msg   string
	}{
		{"novalue field", Field("x", "<I").As(NoValue), errors.KindTypeMismatch, "cannot use NoValue for standard fields"},
		{"typed special", Action(func(*Context) error { return nil }).As(Uint8), errors.KindTypeMismatch, "use NoValue for special fields"},
		{"list field", Field("x", "<I").As(ListOf(Uint32)), errors.KindTypeMismatch, "use Repeat for lists"},
		{"wide union", Field("x", "<I").As(Union(Uint32, Uint16, Bytes)), errors.KindTypeMismatch, "use Switch for unions of 3 or more types"},
		{"optional", Field("x", "<I").As(Optional(Uint32)), errors.KindTypeMismatch, "use Cond for optional types"},
		{"union", Field("x", "<I").As(Union(Uint32, Bytes)), errors.KindTypeMismatch, "use Switch or Cond for union types"},
		{"any", Field("x", "<I").As(Any), errors.KindTypeMismatch, "Any can only be used with Switch or Cond"},
		{"null", Field("x", "<I").As(Null), errors.KindTypeMismatch, "cannot use Null as field type"},
		{"struct with layout", Field("x", "<I").As(StructOf(nested)), errors.KindTypeMismatch, "use Sub for nested structures"},
		{"repeat of scalar", Repeat("x", Uint32, Elem("B")).Count(Lit(1)), errors.KindTypeMismatch, "cannot use Repeat for a non-list field"},
		{"unparameterized", Repeat("x", ListOf(nil), Elem("B")).Count(Lit(1)), errors.KindTypeMismatch, "lists of standard fields must be parameterized"},
		{"lazy builder", Repeat("x", ListOf(Uint8), Elem("B").Build(Lit[any](1))).Count(Lit(1)), errors.KindTypeMismatch, "built fields inside Repeat must be always built"},
		{"unbounded repeat", Repeat("x", ListOf(Uint8), Elem("B")), errors.KindInvalidSchema, "needs Count, Length, When or Last"},
		{"cond else type", Cond("x", Uint16, Lit(true), Elem("<H")).Else("zero"), errors.KindTypeMismatch, "different than the field type"},
		{"cond union else", Cond("x", Union(Uint16, Bytes), Lit(true), Elem("<H")).Else(1.5), errors.KindTypeMismatch, "must be part of the union"},
		{"switch case type", Switch("x", Uint16, Lit[any](1), On(1, Bytes, Raw("", Lit(2)))), errors.KindTypeMismatch, "does not fit the Switch type"},
		{"switch novalue", Switch("x", NoValue, Lit[any](1), On(1, Uint8, Elem("B"))), errors.KindTypeMismatch, "without special cases"},
		{"bad layout", Field("x", "3I"), errors.KindInvalidFormat, "only valid for byte strings"},
		{"unmarked checksum", ck.Field("crc", "<I"), errors.KindInvalidSchema, "needs both start and end markers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := NewStruct("T", tt.field)
			err := st.Validate()
			if err == nil {
				t.Fatal("Validate() succeeded")
			}
			if errors.KindOf(err) != tt.kind {
				t.Errorf("kind = %s, want %s (%v)", errors.KindOf(err), tt.kind, err)
			}
			if !strings.Contains(err.Error(), tt.msg) {
				t.Errorf("error %q does not mention %q", err, tt.msg)
			}
			if !errors.IsSchema(err) {
				t.Errorf("IsSchema(%v) = false", err)
			}
		})
	}
}

func TestValidate_Duplicates(t *testing.T) {
	st := NewStruct("T", Field("a", "B"), Field("b", "B"), Field("a", "<H"))
	err := st.Validate()
	if errors.KindOf(err) != errors.KindDuplicateField {
		t.Fatalf("Validate() error = %v, want duplicate_field", err)
	}
	if !strings.Contains(err.Error(), "T.a") {
		t.Errorf("error %q has no path", err)
	}
}

func TestValidate_Idempotent(t *testing.T) {
	good := shape()
	if err := good.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("second Validate() error = %v", err)
	}

	bad := NewStruct("T", Field("x", "<I").As(NoValue))
	first, second := bad.Validate(), bad.Validate()
	if first == nil || first != second {
		t.Errorf("Validate() = %v then %v, want the same error", first, second)
	}
	if _, err := bad.Unpack([]byte{0, 0, 0, 0}); err != first {
		t.Errorf("Unpack() error = %v, want the validation error", err)
	}
}

func TestValidate_Accepts(t *testing.T) {
	inner := NewStruct("Inner", Field("v", "B"))
	tests := []struct {
		name  string
		field *FieldSpec
	}{
		{"optional cond", Cond("x", Optional(Uint16), Lit(true), Elem("<H"))},
		{"union cond", Cond("x", Union(Uint16, Bytes), Lit(true), Elem("<H")).Else([]byte{})},
		{"struct cond", Cond("x", Union(StructOf(inner), Uint8), Lit(true), Sub("", inner)).Else(0)},
		{"special cond", Cond("_x", NoValue, Lit(true), Padding(Lit(1)))},
		{"any switch", Switch("x", Any, Lit[any](1), On(1, Uint8, Elem("B")), Otherwise(Bytes, Raw("", Lit(0))))},
		{"struct list", Repeat("x", ListOf(StructOf(inner)), Sub("", inner)).Count(Lit(2))},
		{"computed layout", Formatted("x", Uint32, Func(func(*Context) (Format, error) { return Code("<I"), nil }))},
		{"always built repeat", Repeat("x", ListOf(Uint8), Elem("B").Build(Lit[any](1)).Always()).Count(Lit(2))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := NewStruct("T", tt.field).Validate(); err != nil {
				t.Errorf("Validate() error = %v", err)
			}
		})
	}
}

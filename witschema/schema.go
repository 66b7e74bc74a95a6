package witschema

import (
	"fmt"
	"strconv"
	"unicode/utf8"

	"go.bytecodealliance.org/wit"

	ds "github.com/wippyai/datastruct"
	"github.com/wippyai/datastruct/errors"
)

// Declared types of the fields that do not map onto a layout code.
var (
	RuneType  = ds.TypeFor[rune]()
	FlagsType = ds.TypeFor[map[string]bool]()
	ListType  = ds.TypeFor[[]any]()
)

// FromRecord builds a structure type laid out like the WIT record t in
// linear memory. t must be a record type definition.
//
// Records, tuples and variants decode into nested records ({"case",
// "value"} for variants and results). Enums decode into their case name,
// flags into a map of flag names, and options into the value or nil.
// Strings and lists follow their pointer, so they can only be unpacked, and
// only from a stream whose positions are guest addresses.
func FromRecord(name string, t wit.Type) (*ds.StructType, error) {
	td, ok := t.(*wit.TypeDef)
	if !ok {
		return nil, errors.Schema("%s: %T is not a record", name, t)
	}
	rec, ok := td.Kind.(*wit.Record)
	if !ok {
		return nil, errors.Schema("%s: %T is not a record", name, td.Kind)
	}
	b := &builder{calc: newCalculator(), structs: make(map[*wit.TypeDef]*ds.StructType)}
	members := make([]member, len(rec.Fields))
	for i, f := range rec.Fields {
		members[i] = member{name: f.Name, typ: f.Type}
	}
	st, err := b.sequence(name, members)
	if err != nil {
		return nil, err
	}
	b.structs[td] = st
	return st, nil
}

// MustFromRecord is FromRecord that panics on error.
func MustFromRecord(name string, t wit.Type) *ds.StructType {
	st, err := FromRecord(name, t)
	if err != nil {
		panic(err)
	}
	return st
}

type member struct {
	name string
	typ  wit.Type
}

type builder struct {
	calc    *calculator
	structs map[*wit.TypeDef]*ds.StructType
}

// sequence builds a structure whose members sit at their canonical offsets
// and whose size is rounded up to its alignment.
func (b *builder) sequence(name string, members []member) (*ds.StructType, error) {
	var fields []*ds.FieldSpec
	types := make([]wit.Type, len(members))
	for i, m := range members {
		types[i] = m.typ
		if a := b.calc.calculate(m.typ).Align; a > 1 {
			fields = append(fields, ds.Align(int(a)))
		}
		f, err := b.field(name+"."+m.name, m.name, m.typ)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	fields = append(fields, fillTo(b.calc.sequence(types).Size))
	return ds.NewStruct(name, fields...).WithOptions(ds.PaddingPattern(0)), nil
}

// fillTo pads the structure up to size bytes.
func fillTo(size uint32) *ds.FieldSpec {
	return ds.Padding(ds.Func(func(ctx *ds.Context) (int, error) {
		pos, err := ctx.P.Tell()
		return int(size) - int(pos), err
	}))
}

// field converts one member. path names nested structures in errors.
func (b *builder) field(path, name string, t wit.Type) (*ds.FieldSpec, error) {
	switch typ := t.(type) {
	case wit.Bool:
		return ds.Field(name, "?"), nil
	case wit.U8:
		return ds.Field(name, "B"), nil
	case wit.S8:
		return ds.Field(name, "b"), nil
	case wit.U16:
		return ds.Field(name, "<H"), nil
	case wit.S16:
		return ds.Field(name, "<h"), nil
	case wit.U32:
		return ds.Field(name, "<I"), nil
	case wit.S32:
		return ds.Field(name, "<i"), nil
	case wit.U64:
		return ds.Field(name, "<Q"), nil
	case wit.S64:
		return ds.Field(name, "<q"), nil
	case wit.F32:
		return ds.Field(name, "<f"), nil
	case wit.F64:
		return ds.Field(name, "<d"), nil
	case wit.Char:
		return ds.Field(name, "<I").As(RuneType).Verify(validRune), nil
	case wit.String:
		return wrapped(name, indirect(path, stringReader{})), nil
	case *wit.TypeDef:
		return b.typeDef(path, name, typ)
	}
	return nil, errors.Schema("%s: unsupported WIT type %T", path, t)
}

func (b *builder) typeDef(path, name string, t *wit.TypeDef) (*ds.FieldSpec, error) {
	switch kind := t.Kind.(type) {
	case *wit.Record:
		st, ok := b.structs[t]
		if !ok {
			members := make([]member, len(kind.Fields))
			for i, f := range kind.Fields {
				members[i] = member{name: f.Name, typ: f.Type}
			}
			var err error
			if st, err = b.sequence(path, members); err != nil {
				return nil, err
			}
			b.structs[t] = st
		}
		return ds.Sub(name, st), nil

	case *wit.Tuple:
		members := make([]member, len(kind.Types))
		for i, et := range kind.Types {
			members[i] = member{name: strconv.Itoa(i), typ: et}
		}
		st, err := b.sequence(path, members)
		if err != nil {
			return nil, err
		}
		return ds.Sub(name, st), nil

	case *wit.Enum:
		names := make([]string, len(kind.Cases))
		for i, c := range kind.Cases {
			names[i] = c.Name
		}
		return ds.Field(name, discLayout(len(names))).As(ds.String).Adapt(enumNames(names)), nil

	case *wit.Flags:
		if len(kind.Flags) > 64 {
			return nil, errors.Schema("%s: %d flags do not fit in 64 bits", path, len(kind.Flags))
		}
		names := make([]string, len(kind.Flags))
		for i, f := range kind.Flags {
			names[i] = f.Name
		}
		return ds.Field(name, flagsCode(len(names))).As(FlagsType).Adapt(flagNames(names)), nil

	case *wit.Option:
		st, err := b.option(path, kind.Type)
		if err != nil {
			return nil, err
		}
		return wrapped(name, st), nil

	case *wit.Variant:
		cases := make([]member, len(kind.Cases))
		for i, c := range kind.Cases {
			cases[i] = member{name: c.Name, typ: c.Type}
		}
		st, err := b.variant(path, cases)
		if err != nil {
			return nil, err
		}
		return ds.Sub(name, st), nil

	case *wit.Result:
		st, err := b.variant(path, []member{{name: "ok", typ: kind.OK}, {name: "err", typ: kind.Err}})
		if err != nil {
			return nil, err
		}
		return ds.Sub(name, st), nil

	case *wit.List:
		elem, err := b.element(path+"[]", kind.Type)
		if err != nil {
			return nil, err
		}
		info := b.calc.calculate(kind.Type)
		stride := alignTo(info.Size, info.Align)
		return wrapped(name, indirect(path, listReader{elem: elem, stride: stride})), nil

	case wit.Type:
		return b.field(path, name, kind)
	}
	return nil, errors.Schema("%s: unsupported WIT type definition %T", path, t.Kind)
}

// option is a presence byte followed by the aligned payload.
func (b *builder) option(path string, t wit.Type) (*ds.StructType, error) {
	if td, ok := t.(*wit.TypeDef); ok {
		if _, nested := td.Kind.(*wit.Option); nested {
			return nil, errors.Schema("%s: nested options are not supported", path)
		}
	}
	base, err := b.field(path, "", t)
	if err != nil {
		return nil, err
	}
	info := b.calc.calculate(&wit.TypeDef{Kind: &wit.Option{Type: t}})
	payload := b.calc.calculate(t)
	return ds.NewStruct(path,
		ds.Field("_some", "?").Build(ds.Func(func(ctx *ds.Context) (any, error) {
			v, ok := ctx.Value("value")
			return ok && v != nil, nil
		})),
		ds.Align(int(payload.Align)),
		ds.Cond("value", ds.Optional(base.Type()), ds.Ref[bool]("_some"), base),
		fillTo(info.Size),
	).WithOptions(ds.PaddingPattern(0)), nil
}

// variant is a discriminant naming the case followed by that case's
// payload, padded to the largest payload.
func (b *builder) variant(path string, cases []member) (*ds.StructType, error) {
	names := make([]string, len(cases))
	payloads := make([]wit.Type, len(cases))
	var switchCases []ds.Case
	for i, c := range cases {
		names[i] = c.name
		payloads[i] = c.typ
		if c.typ == nil {
			switchCases = append(switchCases, ds.On(c.name, ds.NoValue, ds.Padding(ds.Lit(0))))
			continue
		}
		f, err := b.field(path+"."+c.name, "", c.typ)
		if err != nil {
			return nil, err
		}
		switchCases = append(switchCases, ds.On(c.name, f.Type(), f))
	}
	info := b.calc.tagged(len(cases), payloads)
	return ds.NewStruct(path,
		ds.Field("case", discLayout(len(names))).As(ds.String).Adapt(enumNames(names)),
		ds.Align(int(info.Align)),
		ds.Switch("value", ds.Any, ds.Ref[any]("case"), switchCases...),
		fillTo(info.Size),
	).WithOptions(ds.PaddingPattern(0)), nil
}

// element builds the one-field structure a list element is read with.
func (b *builder) element(path string, t wit.Type) (*ds.StructType, error) {
	return b.sequence(path, []member{{name: "value", typ: t}})
}

func discLayout(cases int) string {
	switch discriminantSize(cases) {
	case 1:
		return "B"
	case 2:
		return "<H"
	}
	return "<I"
}

func flagsCode(n int) string {
	switch flagsLayout(n).Size {
	case 1:
		return "B"
	case 2:
		return "<H"
	case 4:
		return "<I"
	}
	return "<Q"
}

func validRune(ctx *ds.Context, v any) error {
	r, _ := v.(rune)
	if !utf8.ValidRune(r) {
		return errors.InvalidData(ctx.G.Phase(), fmt.Sprintf("%#x is not a valid char", uint32(r)))
	}
	return nil
}

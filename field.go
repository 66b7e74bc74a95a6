package datastruct

import (
	"io"
	"strconv"
	"strings"

	"github.com/wippyai/datastruct/errors"
	"github.com/wippyai/datastruct/internal/format"
)

// Kind selects the traversal behavior of a field.
type Kind uint8

const (
	KindField Kind = iota
	KindSeek
	KindPadding
	KindAction
	KindHook
	KindIO
	KindRepeat
	KindCond
	KindSwitch
)

var kindNames = [...]string{
	KindField:   "FIELD",
	KindSeek:    "SEEK",
	KindPadding: "PADDING",
	KindAction:  "ACTION",
	KindHook:    "HOOK",
	KindIO:      "IO",
	KindRepeat:  "REPEAT",
	KindCond:    "COND",
	KindSwitch:  "SWITCH",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// special kinds never produce a value.
func (k Kind) special() bool {
	switch k {
	case KindSeek, KindPadding, KindAction, KindHook, KindIO:
		return true
	}
	return false
}

// Format is the wire layout of a FIELD: a layout code such as "<I" or a
// plain byte count.
type Format struct {
	code   string
	size   int
	isSize bool
}

// Code returns a layout-code format.
func Code(s string) Format { return Format{code: s} }

// Size returns a byte-count format.
func Size(n int) Format { return Format{size: n, isSize: true} }

func (f Format) resolve() (format.Spec, error) {
	if f.isSize {
		if f.size < 0 {
			return format.Spec{}, errors.New(errors.PhaseSchema, errors.KindInvalidFormat).
				Value(f.size).
				Detail("negative byte count %d", f.size).
				Build()
		}
		return format.Bytes(f.size), nil
	}
	return format.Parse(f.code)
}

func (f Format) String() string {
	if f.isSize {
		return strconv.Itoa(f.size)
	}
	return f.code
}

// Adapter converts between a field's value and its raw representation.
type Adapter interface {
	Encode(value any, ctx *Context) (any, error)
	Decode(raw any, ctx *Context) (any, error)
}

// AdapterFuncs adapts a pair of functions to Adapter. A nil function passes
// the value through unchanged.
type AdapterFuncs struct {
	EncodeFunc func(value any, ctx *Context) (any, error)
	DecodeFunc func(raw any, ctx *Context) (any, error)
}

func (a AdapterFuncs) Encode(value any, ctx *Context) (any, error) {
	if a.EncodeFunc == nil {
		return value, nil
	}
	return a.EncodeFunc(value, ctx)
}

func (a AdapterFuncs) Decode(raw any, ctx *Context) (any, error) {
	if a.DecodeFunc == nil {
		return raw, nil
	}
	return a.DecodeFunc(raw, ctx)
}

type fieldArg struct {
	value Expr[any]
	name  string
}

// FieldSpec is one declared field of a structure. Specs are built with the
// constructors in this file, refined with the chainable setters and become
// immutable once the owning StructType is validated.
type FieldSpec struct {
	def      any
	ifNot    any
	typ      *Type
	defFn    func() any
	adapter  Adapter
	verify   func(ctx *Context, v any) error
	action   func(ctx *Context) error
	hook     Hook
	ioHook   IOHook
	base     *FieldSpec
	checksum *Checksum
	padCheck *bool
	spec     *format.Spec

	name       string
	padPattern []byte
	args       []fieldArg
	cases      []Case

	format     Expr[Format]
	builder    Expr[any]
	offset     Expr[int64]
	padLength  Expr[int]
	padModulus Expr[int]
	padOffset  Expr[int64]
	repCount   Expr[int]
	repLength  Expr[int]
	repWhen    Expr[bool]
	repLast    Expr[bool]
	cond       Expr[bool]
	ifNotFn    Expr[any]
	key        Expr[any]

	whence   int
	kind     Kind
	public   bool
	hasDef   bool
	always   bool
	absolute bool
	hookEnd  bool
	hasElse  bool
	// sizes marks actions that also run while sizing.
	sizes bool
}

// Name returns the field name.
func (f *FieldSpec) Name() string { return f.name }

// Kind returns the field kind.
func (f *FieldSpec) Kind() Kind { return f.kind }

// Type returns the declared value type.
func (f *FieldSpec) Type() *Type { return f.typ }

// Public reports whether the field appears in records.
func (f *FieldSpec) Public() bool { return f.public }

// Base returns the wrapped field of a Repeat or Cond.
func (f *FieldSpec) Base() *FieldSpec { return f.base }

func (f *FieldSpec) String() string {
	var b strings.Builder
	b.WriteString(f.kind.String())
	if f.name != "" {
		b.WriteByte(' ')
		b.WriteString(f.name)
	}
	if f.typ != nil {
		b.WriteByte(' ')
		b.WriteString(f.typ.String())
	}
	if lit, ok := f.format.Literal(); ok {
		b.WriteString(" [")
		b.WriteString(lit.String())
		b.WriteByte(']')
	}
	return b.String()
}

var codeTypes = map[byte]*Type{
	'c': Bytes, 's': Bytes,
	'b': Int8, 'B': Uint8,
	'?': Bool,
	'h': Int16, 'H': Uint16,
	'i': Int32, 'l': Int32,
	'I': Uint32, 'L': Uint32,
	'q': Int64, 'Q': Uint64,
	'e': Float32, 'f': Float32,
	'd': Float64,
}

func isPublicName(name string) bool {
	return name != "" && !strings.HasPrefix(name, "_")
}

// Field declares a primitive field with a layout code. The declared type
// follows the code ("<I" is Uint32, "16s" is Bytes) and can be replaced
// with As. Names starting with an underscore stay out of records.
func Field(name, layout string) *FieldSpec {
	f := &FieldSpec{kind: KindField, name: name, public: isPublicName(name), format: Lit(Code(layout))}
	if spec, err := format.Parse(layout); err == nil {
		f.typ = codeTypes[spec.Code]
		f.spec = &spec
	}
	return f
}

// Elem declares an unnamed primitive used as the base of a wrapper.
func Elem(layout string) *FieldSpec {
	return Field("", layout)
}

// Raw declares a byte string of n bytes. n may depend on earlier fields.
func Raw(name string, n Expr[int]) *FieldSpec {
	f := &FieldSpec{kind: KindField, name: name, public: isPublicName(name), typ: Bytes}
	if lit, ok := n.Literal(); ok {
		f.format = Lit(Size(lit))
		if lit >= 0 {
			spec := format.Bytes(lit)
			f.spec = &spec
		}
	} else {
		f.format = Func(func(ctx *Context) (Format, error) {
			v, err := Eval(ctx, n)
			return Size(v), err
		})
	}
	return f
}

// Sub declares a nested structure.
func Sub(name string, st *StructType) *FieldSpec {
	return &FieldSpec{kind: KindField, name: name, public: isPublicName(name), typ: StructOf(st)}
}

// Formatted declares a field whose layout is computed.
func Formatted(name string, typ *Type, layout Expr[Format]) *FieldSpec {
	return &FieldSpec{kind: KindField, name: name, public: isPublicName(name), typ: typ, format: layout}
}

func special(kind Kind) *FieldSpec {
	return &FieldSpec{kind: kind, typ: NoValue}
}

// Seek moves the stream position. Offsets relative to io.SeekStart are
// measured from the structure start unless Absolute is set.
func Seek(offset Expr[int64], whence int) *FieldSpec {
	f := special(KindSeek)
	f.offset = offset
	f.whence = whence
	return f
}

// SeekTo moves to offset from the structure start.
func SeekTo(offset int64) *FieldSpec {
	return Seek(Lit(offset), io.SeekStart)
}

// Skip moves n bytes forward without reading or writing.
func Skip(n Expr[int64]) *FieldSpec {
	return Seek(n, io.SeekCurrent)
}

// Padding declares n bytes of fill.
func Padding(n Expr[int]) *FieldSpec {
	f := special(KindPadding)
	f.padLength = n
	return f
}

// Align pads up to the next multiple of modulus, measured from the
// structure start unless Absolute is set.
func Align(modulus int) *FieldSpec {
	f := special(KindPadding)
	f.padModulus = Lit(modulus)
	return f
}

// AlignTo pads up to offset, measured from the structure start unless
// Absolute is set. Being past offset already is an error.
func AlignTo(offset Expr[int64]) *FieldSpec {
	f := special(KindPadding)
	f.padOffset = offset
	return f
}

// Action runs fn for its side effects.
func Action(fn func(ctx *Context) error) *FieldSpec {
	f := special(KindAction)
	f.action = fn
	return f
}

// HookStart pushes h onto the hook chain.
func HookStart(h Hook) *FieldSpec {
	f := special(KindHook)
	f.hook = h
	return f
}

// HookEnd finalizes h and pops it from the hook chain.
func HookEnd(h Hook) *FieldSpec {
	f := special(KindHook)
	f.hook = h
	f.hookEnd = true
	return f
}

// IOStart attaches h as the stream substitute.
func IOStart(h IOHook) *FieldSpec {
	f := special(KindIO)
	f.ioHook = h
	return f
}

// IOEnd detaches h.
func IOEnd(h IOHook) *FieldSpec {
	f := special(KindIO)
	f.ioHook = h
	f.hookEnd = true
	return f
}

// Repeat declares a list of base items. typ must be a ListOf type. At least
// one of Count, Length, When or Last has to be set.
func Repeat(name string, typ *Type, base *FieldSpec) *FieldSpec {
	return &FieldSpec{kind: KindRepeat, name: name, typ: typ, base: base, public: isPublicName(name)}
}

// Cond declares a field that is only present when cond holds.
func Cond(name string, typ *Type, cond Expr[bool], base *FieldSpec) *FieldSpec {
	return &FieldSpec{
		kind:   KindCond,
		name:   name,
		typ:    typ,
		cond:   cond,
		base:   base,
		public: isPublicName(name) && base != nil && !base.kind.special(),
	}
}

// Case is one branch of a Switch.
type Case struct {
	key      any
	typ      *Type
	field    *FieldSpec
	fallback bool
}

// On declares the branch taken when the discriminant matches key. String
// keys also match integers ("_5"), booleans ("true") and named constants
// by their String form.
func On(key any, typ *Type, field *FieldSpec) Case {
	return Case{key: key, typ: typ, field: field}
}

// Otherwise declares the branch taken when no key matches.
func Otherwise(typ *Type, field *FieldSpec) Case {
	return Case{typ: typ, field: field, fallback: true}
}

// Switch declares a field whose layout is chosen by a discriminant.
func Switch(name string, typ *Type, key Expr[any], cases ...Case) *FieldSpec {
	return &FieldSpec{kind: KindSwitch, name: name, typ: typ, key: key, cases: cases, public: isPublicName(name)}
}

// As replaces the declared type.
func (f *FieldSpec) As(t *Type) *FieldSpec {
	f.typ = t
	return f
}

// Default sets the value used when the caller supplies none.
func (f *FieldSpec) Default(v any) *FieldSpec {
	f.def, f.hasDef, f.defFn = v, true, nil
	return f
}

// DefaultFunc sets a producer of fresh default values.
func (f *FieldSpec) DefaultFunc(fn func() any) *FieldSpec {
	f.defFn, f.def, f.hasDef = fn, nil, false
	return f
}

// Build computes the value on pack when the caller supplied none.
func (f *FieldSpec) Build(e Expr[any]) *FieldSpec {
	f.builder = e
	return f
}

// Always makes the builder run even when a value was supplied.
func (f *FieldSpec) Always() *FieldSpec {
	f.always = true
	return f
}

// Adapt sets the value adapter.
func (f *FieldSpec) Adapt(a Adapter) *FieldSpec {
	f.adapter = a
	return f
}

// Arg passes a value to a nested structure, where it is visible through
// ctx.Get.
func (f *FieldSpec) Arg(name string, e Expr[any]) *FieldSpec {
	f.args = append(f.args, fieldArg{name: name, value: e})
	return f
}

// Verify runs fn on every unpacked value.
func (f *FieldSpec) Verify(fn func(ctx *Context, v any) error) *FieldSpec {
	f.verify = fn
	return f
}

// Absolute measures Seek and Align positions from the stream start.
func (f *FieldSpec) Absolute() *FieldSpec {
	f.absolute = true
	return f
}

// Pattern overrides the padding fill pattern.
func (f *FieldSpec) Pattern(p ...byte) *FieldSpec {
	f.padPattern = append([]byte(nil), p...)
	return f
}

// Check overrides padding verification.
func (f *FieldSpec) Check(on bool) *FieldSpec {
	f.padCheck = &on
	return f
}

// Count sets the number of repeated items.
func (f *FieldSpec) Count(n Expr[int]) *FieldSpec {
	f.repCount = n
	return f
}

// Length bounds a repeat by byte length, measured from its first item.
func (f *FieldSpec) Length(n Expr[int]) *FieldSpec {
	f.repLength = n
	return f
}

// When is checked before each item; false stops the repeat.
func (f *FieldSpec) When(e Expr[bool]) *FieldSpec {
	f.repWhen = e
	return f
}

// Last is checked after each item with P.Item set; true stops the repeat.
func (f *FieldSpec) Last(e Expr[bool]) *FieldSpec {
	f.repLast = e
	return f
}

// Else sets the value a Cond takes when its condition is false.
func (f *FieldSpec) Else(v any) *FieldSpec {
	f.ifNot, f.hasElse = v, true
	return f
}

// ElseFunc sets a value computed from the context when the condition is
// false. Its type is only known at run time.
func (f *FieldSpec) ElseFunc(e Expr[any]) *FieldSpec {
	f.ifNot, f.ifNotFn, f.hasElse = nil, e, true
	return f
}

// elseValue resolves the value of a Cond whose condition is false.
func (f *FieldSpec) elseValue(ctx *Context) (any, error) {
	if f.ifNotFn.IsSet() {
		return Eval(ctx, f.ifNotFn)
	}
	return f.ifNot, nil
}

func (f *FieldSpec) hasDefault() bool {
	return f.hasDef || f.defFn != nil
}

func (f *FieldSpec) defaultValue() any {
	if f.defFn != nil {
		return f.defFn()
	}
	return f.def
}

// zeroDefault returns the value a field takes when the caller supplies none
// and no builder applies.
func (f *FieldSpec) zeroDefault() (any, bool) {
	switch f.kind {
	case KindField:
		if f.builder.IsSet() || f.checksum != nil {
			return nil, false
		}
		if f.hasDefault() {
			return f.defaultValue(), true
		}
		if f.typ.isStruct() {
			rec, err := f.typ.strct.New(nil)
			if err != nil {
				return nil, false
			}
			return rec, true
		}
		return nil, false
	case KindRepeat:
		if f.hasDefault() {
			return f.defaultValue(), true
		}
		n, ok := f.repCount.Literal()
		if !ok || f.base == nil {
			return []any{}, true
		}
		items := make([]any, 0, n)
		for range n {
			v, ok := f.base.zeroDefault()
			if !ok {
				return []any{}, true
			}
			items = append(items, v)
		}
		return items, true
	case KindCond:
		if f.hasDefault() {
			return f.defaultValue(), true
		}
		return f.base.zeroDefault()
	case KindSwitch:
		if f.hasDefault() {
			return f.defaultValue(), true
		}
	}
	return nil, false
}

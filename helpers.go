package datastruct

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/exp/constraints"

	"github.com/wippyai/datastruct/errors"
	"github.com/wippyai/datastruct/internal/bytebuf"
	"github.com/wippyai/datastruct/internal/coerce"
	"github.com/wippyai/datastruct/internal/format"
)

// PadUp returns how many units move x up to the next multiple of n. It is
// 0 when x is already aligned or n is 0.
func PadUp[T constraints.Integer](x, n T) T {
	if n == 0 {
		return 0
	}
	r := x % n
	if r < 0 {
		r += n
	}
	return (n - r) % n
}

// Const declares a field that always packs value and fails to unpack
// anything else. Magic numbers and version tags are the usual use.
func Const(name, layout string, value any) *FieldSpec {
	return Field(name, layout).
		Build(Lit(value)).
		Always().
		Verify(func(ctx *Context, v any) error {
			if constEqual(v, value) {
				return nil
			}
			return errors.New(ctx.G.phase, errors.KindInvalidData).
				Value(v).
				Detail("expected constant %v, got %v", value, v).
				Build()
		})
}

func constEqual(got, want any) bool {
	if s, ok := want.(string); ok {
		b, ok := coerce.Bytes(got)
		return ok && string(b) == s
	}
	return coerce.Equal(got, want)
}

// Text declares a NUL-padded UTF-8 string of size bytes. Unpacking stops at
// the first NUL; packing pads with NULs and rejects longer strings.
func Text(name string, size Expr[int]) *FieldSpec {
	return Raw(name, size).As(String).Adapt(textAdapter{size: size})
}

type textAdapter struct {
	size Expr[int]
}

func (a textAdapter) Encode(value any, ctx *Context) (any, error) {
	raw, ok := coerce.Bytes(value)
	if !ok {
		return nil, errors.TypeMismatch(ctx.G.phase, coerce.TypeName(value), "text needs a string")
	}
	n, err := Eval(ctx, a.size)
	if err != nil {
		return nil, err
	}
	if len(raw) > n {
		return nil, errors.New(ctx.G.phase, errors.KindOverflow).
			Value(string(raw)).
			Detail("text of %d bytes does not fit in %d", len(raw), n).
			Build()
	}
	out := make([]byte, n)
	copy(out, raw)
	return out, nil
}

func (a textAdapter) Decode(raw any, ctx *Context) (any, error) {
	b, _ := coerce.Bytes(raw)
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	if !utf8.Valid(b) {
		return nil, errors.InvalidData(ctx.G.phase, fmt.Sprintf("text %q is not valid UTF-8", b))
	}
	return string(b), nil
}

// VarList declares a list that fills length bytes.
func VarList(name string, typ *Type, length Expr[int], base *FieldSpec) *FieldSpec {
	return Repeat(name, typ, base).Length(length)
}

// Virtual declares a value computed from the context that takes no space
// in the stream.
func Virtual(name string, typ *Type, e Expr[any]) *FieldSpec {
	return Raw(name, Lit(0)).As(typ).Build(e).Always().Adapt(AdapterFuncs{
		EncodeFunc: func(any, *Context) (any, error) { return []byte{}, nil },
		DecodeFunc: func(_ any, ctx *Context) (any, error) { return Eval(ctx, e) },
	})
}

// Validate fails the traversal with doc when e does not hold.
func Validate(e Expr[bool], doc string) *FieldSpec {
	return Action(func(ctx *Context) error {
		ok, err := Eval(ctx, e)
		if err != nil {
			return err
		}
		if !ok {
			return errors.InvalidData(ctx.G.phase, "validation failed: "+doc)
		}
		return nil
	})
}

// Probe logs the values resolved so far at debug level.
func Probe(label string) *FieldSpec {
	return Action(func(ctx *Context) error {
		pos, _ := ctx.P.Tell()
		Logger().Debug("probe",
			zap.String("label", label),
			zap.Int64("offset", pos),
			zap.Stringer("context", ctx))
		return nil
	})
}

// TellInto stores the position relative to the structure start under name.
// It runs while sizing too, so later fields may depend on it.
func TellInto(name string) *FieldSpec {
	f := Action(func(ctx *Context) error {
		pos, err := ctx.P.Tell()
		if err != nil {
			return err
		}
		ctx.Set(name, pos)
		return nil
	})
	f.sizes = true
	return f
}

// EvalInto stores the result of e under name, in every mode.
func EvalInto(name string, e Expr[any]) *FieldSpec {
	f := Action(func(ctx *Context) error {
		v, err := Eval(ctx, e)
		if err != nil {
			return err
		}
		ctx.Set(name, v)
		return nil
	})
	f.sizes = true
	return f
}

// Packing holds only while packing, and then only if e holds.
func Packing(e Expr[bool]) Expr[bool] {
	return Func(func(ctx *Context) (bool, error) {
		if !ctx.G.Packing {
			return false, nil
		}
		return Eval(ctx, e)
	})
}

// Unpacking holds only while unpacking, and then only if e holds.
func Unpacking(e Expr[bool]) Expr[bool] {
	return Func(func(ctx *Context) (bool, error) {
		if !ctx.G.Unpacking {
			return false, nil
		}
		return Eval(ctx, e)
	})
}

// Buffer returns a hook pair capturing the bytes that pass between the two
// markers. end receives them when the second marker is reached.
func Buffer(end func(data []byte, ctx *Context) error) (start, stop *FieldSpec) {
	h := &HookFuncs{}
	h.EndFunc = func(ctx *Context) error {
		buf, _ := ctx.G.State(h).(*bytes.Buffer)
		if buf == nil {
			buf = &bytes.Buffer{}
		}
		return end(buf.Bytes(), ctx)
	}
	h.InitFunc = func(ctx *Context) error {
		ctx.G.SetState(h, &bytes.Buffer{})
		return nil
	}
	h.UpdateFunc = func(data []byte, ctx *Context) ([]byte, error) {
		if buf, ok := ctx.G.State(h).(*bytes.Buffer); ok {
			buf.Write(data)
		}
		return nil, nil
	}
	return HookStart(h), HookEnd(h)
}

// Sizeof returns the packed size of the current value of the named field
// of this structure.
func (c *Context) Sizeof(name string) (int, error) {
	i, ok := c.typ.index[name]
	if !ok {
		return 0, errors.New(c.G.phase, errors.KindFieldMissing).
			Detail("%s has no field %q", c.typ.name, name).
			Build()
	}
	f := c.typ.fields[i]
	v, has := c.values.Get(name)
	var counter bytebuf.Counter
	sub := c.fork(&counter, true)
	if _, _, err := packField(sub, f, v, has); err != nil {
		return 0, err
	}
	return int(counter.Size()), nil
}

// PackedLen evaluates to the packed size of the named field. Unlike LenOf it
// sees the bytes an adapter produces, so it fits length prefixes of
// compressed or encoded payloads. A byte string adapter result is measured
// directly, which lets the field's own size refer back to the prefix.
func PackedLen(name string) Expr[any] {
	return Func(func(ctx *Context) (any, error) {
		if i, ok := ctx.typ.index[name]; ok {
			f := ctx.typ.fields[i]
			if v, has := ctx.values.Get(name); has && f.kind == KindField && f.adapter != nil {
				raw, err := f.adapter.Encode(v, ctx)
				if err != nil {
					return nil, err
				}
				if b, ok := raw.([]byte); ok {
					return len(b), nil
				}
			}
		}
		return ctx.Sizeof(name)
	})
}

// Bit is one member of a Bitfield, most significant first.
type Bit struct {
	Name  string
	Width int
	Flag  bool
}

// Bits declares an unsigned member of width bits.
func Bits(name string, width int) Bit { return Bit{Name: name, Width: width} }

// Flag declares a one-bit boolean member.
func Flag(name string) Bit { return Bit{Name: name, Width: 1, Flag: true} }

// Reserved declares width bits that unpack to nothing and pack as zero.
func Reserved(width int) Bit { return Bit{Width: width} }

// Bitfield declares a primitive split into named bit ranges. Its value is a
// map from member name to uint64, or bool for flags. Members missing from
// the map pack as zero.
func Bitfield(name, layout string, parts ...Bit) *FieldSpec {
	return Field(name, layout).
		As(TypeFor[map[string]any]()).
		DefaultFunc(func() any { return map[string]any{} }).
		Adapt(bitfieldAdapter{layout: layout, parts: parts})
}

type bitfieldAdapter struct {
	layout string
	parts  []Bit
}

func (a bitfieldAdapter) width() (int, bool, error) {
	spec, err := format.Parse(a.layout)
	if err != nil {
		return 0, false, err
	}
	if spec.IsBytes() || spec.Code == '?' || spec.Code == 'e' || spec.Code == 'f' || spec.Code == 'd' {
		return 0, false, errors.Schema("bitfield needs an integer layout, got %q", a.layout)
	}
	bits := spec.Size() * 8
	used := 0
	for _, p := range a.parts {
		if p.Width <= 0 {
			return 0, false, errors.Schema("bitfield member %q has width %d", p.Name, p.Width)
		}
		used += p.Width
	}
	if used > bits {
		return 0, false, errors.Schema("bitfield members take %d bits, %q holds %d", used, a.layout, bits)
	}
	signed := spec.Code >= 'a' && spec.Code <= 'z'
	return bits, signed, nil
}

func (a bitfieldAdapter) Encode(value any, ctx *Context) (any, error) {
	bits, signed, err := a.width()
	if err != nil {
		return nil, err
	}
	m, ok := value.(map[string]any)
	if !ok && value != nil {
		return nil, errors.TypeMismatch(ctx.G.phase, coerce.TypeName(value), "bitfield needs a map[string]any")
	}
	var out uint64
	shift := bits
	for _, p := range a.parts {
		shift -= p.Width
		v, ok := m[p.Name]
		if p.Name == "" || !ok {
			continue
		}
		var n uint64
		if p.Flag {
			b, ok := coerce.ToBool(v)
			if !ok {
				return nil, errors.TypeMismatch(ctx.G.phase, coerce.TypeName(v), "flag "+p.Name+" needs a bool")
			}
			if b {
				n = 1
			}
		} else if n, ok = coerce.ToUint64(v); !ok {
			return nil, errors.TypeMismatch(ctx.G.phase, coerce.TypeName(v), "member "+p.Name+" needs an unsigned integer")
		}
		if p.Width < 64 && n>>p.Width != 0 {
			return nil, errors.New(ctx.G.phase, errors.KindOverflow).
				Value(n).
				Detail("member %q does not fit in %d bits", p.Name, p.Width).
				Build()
		}
		out |= n << shift
	}
	if signed && bits < 64 {
		return int64(out<<(64-bits)) >> (64 - bits), nil
	}
	if signed {
		return int64(out), nil
	}
	return out, nil
}

func (a bitfieldAdapter) Decode(raw any, ctx *Context) (any, error) {
	bits, _, err := a.width()
	if err != nil {
		return nil, err
	}
	var word uint64
	if n, ok := coerce.ToUint64(raw); ok {
		word = n
	} else if n, ok := coerce.ToInt64(raw); ok {
		word = uint64(n)
	} else {
		return nil, errors.TypeMismatch(ctx.G.phase, coerce.TypeName(raw), "bitfield needs an integer")
	}
	if bits < 64 {
		word &= uint64(1)<<bits - 1
	}
	out := make(map[string]any, len(a.parts))
	shift := bits
	for _, p := range a.parts {
		shift -= p.Width
		if p.Name == "" {
			continue
		}
		n := word >> shift
		if p.Width < 64 {
			n &= uint64(1)<<p.Width - 1
		}
		if p.Flag {
			out[p.Name] = n == 1
		} else {
			out[p.Name] = n
		}
	}
	return out, nil
}

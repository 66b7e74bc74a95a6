package witschema

import (
	"fmt"
	"io"
	"math/bits"
	"unicode/utf8"

	ds "github.com/wippyai/datastruct"
	"github.com/wippyai/datastruct/errors"
	"github.com/wippyai/datastruct/internal/coerce"
)

// wrapped declares a nested structure whose "value" field stands in for
// the whole structure in the parent record.
func wrapped(name string, st *ds.StructType) *ds.FieldSpec {
	return ds.Sub(name, st).Adapt(unwrap{st: st})
}

type unwrap struct {
	st *ds.StructType
}

func (a unwrap) Encode(value any, ctx *ds.Context) (any, error) {
	if rec, ok := value.(*ds.Record); ok && rec.Type() == a.st {
		return rec, nil
	}
	if value == nil {
		return map[string]any{}, nil
	}
	return map[string]any{"value": value}, nil
}

func (a unwrap) Decode(raw any, ctx *ds.Context) (any, error) {
	rec, ok := raw.(*ds.Record)
	if !ok {
		return raw, nil
	}
	v, _ := rec.Get("value")
	return v, nil
}

// pointee reads the data a (pointer, length) pair refers to.
type pointee interface {
	ds.Adapter
	valueType() *ds.Type
}

// indirect lays out a pointer and a length; "value" takes no space of its
// own and is read from wherever the pointer leads.
func indirect(path string, p pointee) *ds.StructType {
	unsupported := ds.Func(func(ctx *ds.Context) (any, error) {
		return nil, errors.Unsupported(ctx.G.Phase(), "packing "+path+" needs guest allocation")
	})
	return ds.NewStruct(path,
		ds.Field("_ptr", "<I").Build(unsupported),
		ds.Field("_len", "<I").Build(unsupported),
		ds.Raw("value", ds.Lit(0)).As(p.valueType()).Adapt(p),
	)
}

// target returns the address and element count of the current pointer.
func target(ctx *ds.Context) (int64, int, error) {
	ptr, err := ctx.Int("_ptr")
	if err != nil {
		return 0, 0, err
	}
	n, err := ctx.Int("_len")
	return int64(ptr), n, err
}

// readAt reads n bytes at addr and restores the stream position.
func readAt(ctx *ds.Context, addr int64, n int) ([]byte, error) {
	r := ctx.G.Raw()
	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, errors.Wrap(ctx.G.Phase(), errors.KindIO, err, "tell")
	}
	defer r.Seek(pos, io.SeekStart)

	end, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, errors.Wrap(ctx.G.Phase(), errors.KindIO, err, "seek")
	}
	if addr+int64(n) > end {
		return nil, errors.InsufficientData(ctx.G.Phase(), n, int(max(end-addr, 0)))
	}
	if _, err := r.Seek(addr, io.SeekStart); err != nil {
		return nil, errors.Wrap(ctx.G.Phase(), errors.KindIO, err, "seek")
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, errors.Wrap(ctx.G.Phase(), errors.KindIO, err, "read")
	}
	return buf, nil
}

type stringReader struct{}

func (stringReader) valueType() *ds.Type { return ds.String }

func (stringReader) Encode(value any, ctx *ds.Context) (any, error) {
	return nil, errors.Unsupported(ctx.G.Phase(), "packing strings")
}

func (stringReader) Decode(_ any, ctx *ds.Context) (any, error) {
	addr, n, err := target(ctx)
	if err != nil {
		return nil, err
	}
	b, err := readAt(ctx, addr, n)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(b) {
		return nil, errors.InvalidData(ctx.G.Phase(), "string is not valid UTF-8")
	}
	return string(b), nil
}

type listReader struct {
	elem   *ds.StructType
	stride uint32
}

func (listReader) valueType() *ds.Type { return ListType }

func (listReader) Encode(value any, ctx *ds.Context) (any, error) {
	return nil, errors.Unsupported(ctx.G.Phase(), "packing lists")
}

func (l listReader) Decode(_ any, ctx *ds.Context) (any, error) {
	addr, n, err := target(ctx)
	if err != nil {
		return nil, err
	}
	// Bounds check the whole list before following nested pointers.
	if _, err := readAt(ctx, addr, n*int(l.stride)); err != nil {
		return nil, err
	}
	r := ctx.G.Raw()
	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, errors.Wrap(ctx.G.Phase(), errors.KindIO, err, "tell")
	}
	defer r.Seek(pos, io.SeekStart)

	items := make([]any, 0, n)
	for i := range n {
		if _, err := r.Seek(addr+int64(i)*int64(l.stride), io.SeekStart); err != nil {
			return nil, errors.Wrap(ctx.G.Phase(), errors.KindIO, err, "seek")
		}
		rec, err := l.elem.UnpackFrom(r, ds.WithConfig(ctx.G.Config()))
		if err != nil {
			return nil, err
		}
		v, _ := rec.Get("value")
		items = append(items, v)
	}
	return items, nil
}

// enumNames maps a discriminant to its case name.
type enumNames []string

func (e enumNames) Encode(value any, ctx *ds.Context) (any, error) {
	if s, ok := value.(string); ok {
		for i, name := range e {
			if name == s {
				return uint64(i), nil
			}
		}
		return nil, errors.InvalidData(ctx.G.Phase(), fmt.Sprintf("unknown case %q", s))
	}
	n, ok := coerce.ToUint64(value)
	if !ok || n >= uint64(len(e)) {
		return nil, errors.InvalidData(ctx.G.Phase(), fmt.Sprintf("unknown case %v", value))
	}
	return n, nil
}

func (e enumNames) Decode(raw any, ctx *ds.Context) (any, error) {
	n, _ := coerce.ToUint64(raw)
	if n >= uint64(len(e)) {
		return nil, errors.InvalidData(ctx.G.Phase(), fmt.Sprintf("discriminant %d out of range", n))
	}
	return e[n], nil
}

// flagNames maps bit i, least significant first, to flag i.
type flagNames []string

func (f flagNames) Encode(value any, ctx *ds.Context) (any, error) {
	var set []string
	switch v := value.(type) {
	case map[string]bool:
		for name, on := range v {
			if on {
				set = append(set, name)
			}
		}
	case []string:
		set = v
	default:
		return nil, errors.TypeMismatch(ctx.G.Phase(), coerce.TypeName(value), "expected map[string]bool or []string")
	}
	var out uint64
	for _, name := range set {
		i := f.index(name)
		if i < 0 {
			return nil, errors.InvalidData(ctx.G.Phase(), fmt.Sprintf("unknown flag %q", name))
		}
		out |= 1 << i
	}
	return out, nil
}

func (f flagNames) Decode(raw any, ctx *ds.Context) (any, error) {
	n, _ := coerce.ToUint64(raw)
	if bits.Len64(n) > len(f) {
		return nil, errors.InvalidData(ctx.G.Phase(), fmt.Sprintf("flag bits %#x beyond the %d declared", n, len(f)))
	}
	out := make(map[string]bool, len(f))
	for i, name := range f {
		out[name] = n&(1<<i) != 0
	}
	return out, nil
}

func (f flagNames) index(name string) int {
	for i, n := range f {
		if n == name {
			return i
		}
	}
	return -1
}

package adapters

import (
	"bytes"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"

	ds "github.com/wippyai/datastruct"
	"github.com/wippyai/datastruct/errors"
	"github.com/wippyai/datastruct/internal/coerce"
)

// UTF16LE declares a NUL-padded little endian UTF-16 string of size bytes.
func UTF16LE(name string, size ds.Expr[int]) *ds.FieldSpec {
	return ds.Raw(name, size).As(ds.String).Adapt(Text{
		Encoding: unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM),
		Size:     size,
		Unit:     2,
	})
}

// UTF16BE declares a NUL-padded big endian UTF-16 string of size bytes.
func UTF16BE(name string, size ds.Expr[int]) *ds.FieldSpec {
	return ds.Raw(name, size).As(ds.String).Adapt(Text{
		Encoding: unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM),
		Size:     size,
		Unit:     2,
	})
}

// EncodedLen evaluates to the length of the named string once encoded with
// enc. It fits length prefixes that count bytes rather than runes.
func EncodedLen(name string, enc encoding.Encoding) ds.Expr[any] {
	return ds.Func(func(ctx *ds.Context) (any, error) {
		s, err := ds.Lookup[string](ctx, name)
		if err != nil {
			return nil, err
		}
		b, err := enc.NewEncoder().Bytes([]byte(s))
		if err != nil {
			return nil, errors.Wrap(ctx.G.Phase(), errors.KindInvalidData, err, "encode text")
		}
		return len(b), nil
	})
}

// Text converts Go strings to a character encoding. When Size is set the
// output is padded with zero code units to that many bytes, and decoding
// stops at the first zero code unit of width Unit.
type Text struct {
	Encoding encoding.Encoding
	Size     ds.Expr[int]
	Unit     int
}

func (a Text) Encode(value any, ctx *ds.Context) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, errors.TypeMismatch(ctx.G.Phase(), coerce.TypeName(value), "expected a string")
	}
	b, err := a.Encoding.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, errors.Wrap(ctx.G.Phase(), errors.KindInvalidData, err, "encode text")
	}
	if !a.Size.IsSet() {
		return b, nil
	}
	n, err := ds.Eval(ctx, a.Size)
	if err != nil {
		return nil, err
	}
	if len(b) > n {
		return nil, errors.New(ctx.G.Phase(), errors.KindOverflow).
			Value(s).
			Detail("text of %d bytes does not fit in %d", len(b), n).
			Build()
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

func (a Text) Decode(raw any, ctx *ds.Context) (any, error) {
	b, _ := coerce.Bytes(raw)
	if unit := max(a.Unit, 1); a.Size.IsSet() {
		zero := make([]byte, unit)
		for i := 0; i+unit <= len(b); i += unit {
			if bytes.Equal(b[i:i+unit], zero) {
				b = b[:i]
				break
			}
		}
	}
	s, err := a.Encoding.NewDecoder().Bytes(b)
	if err != nil {
		return nil, errors.Wrap(ctx.G.Phase(), errors.KindInvalidData, err, "decode text")
	}
	return string(s), nil
}

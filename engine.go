package datastruct

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"reflect"
	"strconv"

	"github.com/wippyai/datastruct/errors"
	"github.com/wippyai/datastruct/internal/coerce"
	"github.com/wippyai/datastruct/internal/format"
)

// resolveFormat evaluates the field's layout. Literal layouts are parsed
// when the field is declared.
func resolveFormat(ctx *Context, f *FieldSpec) (format.Spec, error) {
	if f.spec != nil {
		return *f.spec, nil
	}
	fm, err := Eval(ctx, f.format)
	if err != nil {
		return format.Spec{}, err
	}
	spec, err := fm.resolve()
	if err != nil {
		return format.Spec{}, errors.Wrap(ctx.G.phase, errors.KindInvalidFormat, err, "computed layout "+fm.String())
	}
	return spec, nil
}

func (c *Context) byteOrder() binary.ByteOrder {
	return c.P.Config.Endianness.ByteOrder()
}

func evalArgs(ctx *Context, f *FieldSpec) (*Values, error) {
	args := NewValues()
	for _, a := range f.args {
		v, err := Eval(ctx, a.value)
		if err != nil {
			return nil, err
		}
		args.Set(a.name, v)
	}
	return args, nil
}

// toDeclared converts a decoded primitive into the declared Go type when
// they differ only by name or width, as with enums declared via TypeFor.
// Values that do not fit are returned unchanged.
func toDeclared(t *Type, v any) any {
	if t == nil || t.tag != tagSimple || t.goType == nil || v == nil {
		return v
	}
	rv := reflect.ValueOf(v)
	target := t.goType
	if rv.Type() == target || target.Kind() == reflect.Interface {
		return v
	}
	switch {
	case isIntegerKind(target.Kind()):
		if n, ok := coerce.ToInt64(v); ok {
			out := reflect.New(target).Elem()
			switch target.Kind() {
			case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
				if out.OverflowInt(n) {
					return v
				}
				out.SetInt(n)
			default:
				if n < 0 || out.OverflowUint(uint64(n)) {
					return v
				}
				out.SetUint(uint64(n))
			}
			return out.Interface()
		}
		if n, ok := coerce.ToUint64(v); ok && !isSignedKind(target.Kind()) {
			out := reflect.New(target).Elem()
			if out.OverflowUint(n) {
				return v
			}
			out.SetUint(n)
			return out.Interface()
		}
	case isFloatKind(target.Kind()) && isFloatKind(rv.Kind()):
		return rv.Convert(target).Interface()
	case target.Kind() == reflect.Bool && rv.Kind() == reflect.Bool:
		return rv.Convert(target).Interface()
	case target.Kind() == reflect.String || target.Kind() == reflect.Slice:
		if rv.CanConvert(target) {
			return rv.Convert(target).Interface()
		}
	}
	return v
}

func isSignedKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}

func doSeek(ctx *Context, f *FieldSpec) error {
	offset, err := Eval(ctx, f.offset)
	if err != nil {
		return err
	}
	if f.whence == io.SeekCurrent || f.absolute {
		_, err = ctx.G.Seek(offset, f.whence)
	} else {
		_, err = ctx.P.Seek(offset, f.whence)
	}
	return err
}

func (c *Context) tell(absolute bool) (int64, error) {
	if absolute {
		return c.G.Tell()
	}
	return c.P.Tell()
}

// paddingLength returns the number of fill bytes of a PADDING field.
func paddingLength(ctx *Context, f *FieldSpec) (int, error) {
	var n int64
	switch {
	case f.padLength.IsSet():
		v, err := Eval(ctx, f.padLength)
		if err != nil {
			return 0, err
		}
		n = int64(v)
	case f.padModulus.IsSet():
		m, err := Eval(ctx, f.padModulus)
		if err != nil {
			return 0, err
		}
		if m <= 0 {
			return 0, errors.InvalidData(ctx.G.phase, fmt.Sprintf("alignment modulus %d is not positive", m))
		}
		pos, err := ctx.tell(f.absolute)
		if err != nil {
			return 0, err
		}
		n = PadUp(pos, int64(m))
	case f.padOffset.IsSet():
		offset, err := Eval(ctx, f.padOffset)
		if err != nil {
			return 0, err
		}
		pos, err := ctx.tell(f.absolute)
		if err != nil {
			return 0, err
		}
		if offset < pos {
			return 0, errors.InvalidData(ctx.G.phase,
				fmt.Sprintf("padding offset %d is before the current position %d", offset, pos))
		}
		n = offset - pos
	}
	if n < 0 {
		return 0, errors.InvalidData(ctx.G.phase, fmt.Sprintf("negative padding length %d", n))
	}
	return int(n), nil
}

func paddingBytes(ctx *Context, f *FieldSpec, n int) []byte {
	pattern := f.padPattern
	if pattern == nil {
		pattern = ctx.P.Config.PaddingPattern
	}
	out := make([]byte, n)
	if len(pattern) == 0 {
		return out
	}
	for i := range out {
		out[i] = pattern[i%len(pattern)]
	}
	return out
}

func unpackPadding(ctx *Context, f *FieldSpec) error {
	n, err := paddingLength(ctx, f)
	if err != nil {
		return err
	}
	data, err := ctx.G.read(ctx, n)
	if err != nil {
		return err
	}
	check := ctx.P.Config.PaddingCheck
	if f.padCheck != nil {
		check = *f.padCheck
	}
	if check && !bytes.Equal(data, paddingBytes(ctx, f, n)) {
		return errors.BadPadding(data)
	}
	return nil
}

func packPadding(ctx *Context, f *FieldSpec) error {
	n, err := paddingLength(ctx, f)
	if err != nil {
		return err
	}
	return ctx.G.write(ctx, paddingBytes(ctx, f, n))
}

// selectCase picks the Switch branch for the evaluated discriminant.
func selectCase(ctx *Context, f *FieldSpec) (*Case, error) {
	key, err := Eval(ctx, f.key)
	if err != nil {
		return nil, err
	}
	for _, cand := range switchKeys(key) {
		for i := range f.cases {
			c := &f.cases[i]
			if !c.fallback && coerce.Equal(c.key, cand) {
				return c, nil
			}
		}
	}
	for i := range f.cases {
		if f.cases[i].fallback {
			return &f.cases[i], nil
		}
	}
	return nil, errors.UnmatchedCase(ctx.G.phase, key)
}

// switchKeys lists the forms a discriminant is matched by, in order.
func switchKeys(key any) []any {
	keys := []any{key}
	switch k := key.(type) {
	case bool:
		keys = append(keys, strconv.FormatBool(k))
	default:
		if n, ok := coerce.ToInt64(key); ok {
			keys = append(keys, "_"+strconv.FormatInt(n, 10))
		} else if u, ok := coerce.ToUint64(key); ok {
			keys = append(keys, "_"+strconv.FormatUint(u, 10))
		}
	}
	if s, ok := key.(fmt.Stringer); ok {
		keys = append(keys, s.String())
	}
	return keys
}

func runAction(ctx *Context, f *FieldSpec) error {
	if ctx.G.Sizing && !f.sizes {
		return nil
	}
	return f.action(ctx)
}

// iterState saves the repeat slots of Params around a nested loop.
type iterState struct {
	item, prev any
	i          int
}

func saveIter(p *Params) iterState {
	return iterState{item: p.Item, prev: p.Prev, i: p.I}
}

func (s iterState) restore(p *Params) {
	p.Item, p.Prev, p.I = s.item, s.prev, s.i
}

// repeatBudget tracks the byte length limit of a repeat.
type repeatBudget struct {
	start int64
	limit int64
	set   bool
}

func newRepeatBudget(ctx *Context, f *FieldSpec) (repeatBudget, error) {
	if !f.repLength.IsSet() {
		return repeatBudget{}, nil
	}
	n, err := Eval(ctx, f.repLength)
	if err != nil {
		return repeatBudget{}, err
	}
	pos, err := ctx.P.Tell()
	if err != nil {
		return repeatBudget{}, err
	}
	return repeatBudget{start: pos, limit: int64(n), set: true}, nil
}

func (b repeatBudget) exhausted(ctx *Context) (bool, error) {
	if !b.set {
		return false, nil
	}
	pos, err := ctx.P.Tell()
	if err != nil {
		return false, err
	}
	return pos-b.start >= b.limit, nil
}

func optionalCount(ctx *Context, f *FieldSpec) (int, bool, error) {
	if !f.repCount.IsSet() {
		return 0, false, nil
	}
	n, err := Eval(ctx, f.repCount)
	if err != nil {
		return 0, false, err
	}
	if n < 0 {
		return 0, false, errors.InvalidData(ctx.G.phase, fmt.Sprintf("negative repeat count %d", n))
	}
	return n, true, nil
}

func evalStop(ctx *Context, e Expr[bool], stopOn bool) (bool, error) {
	if !e.IsSet() {
		return false, nil
	}
	v, err := Eval(ctx, e)
	if err != nil {
		return false, err
	}
	return v == stopOn, nil
}

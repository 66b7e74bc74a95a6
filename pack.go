package datastruct

import (
	"reflect"

	"go.uber.org/zap"

	"github.com/wippyai/datastruct/errors"
	"github.com/wippyai/datastruct/internal/coerce"
)

func packStruct(g *Global, parent *Context, t *StructType, rec *Record, args *Values) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if parent == nil {
		g.trace.push(t.name)
		Logger().Debug("pack", zap.String("struct", t.name), zap.Bool("sizing", g.Sizing))
	}
	ctx, err := newContext(g, parent, t, args)
	if err != nil {
		return err
	}
	ctx.rec = rec
	for _, k := range rec.vals.Keys() {
		v, _ := rec.vals.Get(k)
		ctx.values.Set(k, v)
	}
	if err := packFields(ctx, t.fields); err != nil {
		return err
	}
	if parent == nil {
		g.trace.pop()
	}
	return nil
}

// packFields writes fields in order, recording each resolved value. It is
// also the bounded sub-traversal used for forward checksums.
func packFields(ctx *Context, fields []*FieldSpec) error {
	for _, f := range fields {
		ctx.G.trace.push(f.name)
		val, has := ctx.values.Get(f.name)
		v, present, err := packField(ctx, f, val, has)
		if err != nil {
			return err
		}
		if present {
			ctx.Set(f.name, v)
		}
		ctx.G.trace.pop()
	}
	return nil
}

// packField writes one field. val is the supplied value when has is set;
// the returned value is what the field resolved to.
func packField(ctx *Context, f *FieldSpec, val any, has bool) (v any, present bool, err error) {
	switch f.kind {
	case KindField:
		v, err = packValue(ctx, f, val, has)
		return v, err == nil, err
	case KindSeek:
		return nil, false, doSeek(ctx, f)
	case KindPadding:
		return nil, false, packPadding(ctx, f)
	case KindAction:
		return nil, false, runAction(ctx, f)
	case KindHook:
		if ctx.G.Sizing {
			return nil, false, nil
		}
		return nil, false, applyHook(ctx, f)
	case KindIO:
		if ctx.G.Sizing {
			return nil, false, nil
		}
		return nil, false, applyIOHook(ctx, f)
	case KindRepeat:
		v, err = packRepeat(ctx, f, val, has)
		return v, err == nil, err
	case KindCond:
		ok, err := Eval(ctx, f.cond)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return packField(ctx, f.base, val, has)
		}
		if f.hasElse {
			v, err := f.elseValue(ctx)
			return v, err == nil, err
		}
		return nil, f.public, nil
	case KindSwitch:
		c, err := selectCase(ctx, f)
		if err != nil {
			return nil, false, err
		}
		if !has {
			val, has = c.field.zeroDefault()
		}
		return packField(ctx, c.field, val, has)
	}
	return nil, false, nil
}

func packValue(ctx *Context, f *FieldSpec, val any, has bool) (any, error) {
	nested := f.typ.isStruct() && !f.format.IsSet()
	switch {
	case f.checksum != nil:
		spec, err := resolveFormat(ctx, f)
		if err != nil {
			return nil, err
		}
		if val, err = f.checksum.value(ctx, f, spec); err != nil {
			return nil, err
		}
		has = true
	case f.builder.IsSet() && (!has || f.always):
		var err error
		if val, err = Eval(ctx, f.builder); err != nil {
			return nil, err
		}
		has = true
	}
	if !has || (nested && val == nil) {
		if val, has = f.zeroDefault(); !has {
			return nil, errors.FieldMissing(ctx.G.phase, f.name)
		}
	}

	raw := val
	if f.adapter != nil {
		var err error
		if raw, err = f.adapter.Encode(val, ctx); err != nil {
			return nil, err
		}
	}

	if nested {
		rec, err := asRecord(ctx, f.typ.strct, raw)
		if err != nil {
			return nil, err
		}
		args, err := evalArgs(ctx, f)
		if err != nil {
			return nil, err
		}
		if err := packStruct(ctx.G, ctx, rec.typ, rec, args); err != nil {
			return nil, err
		}
		if f.adapter == nil {
			return rec, nil
		}
		return val, nil
	}

	spec, err := resolveFormat(ctx, f)
	if err != nil {
		return nil, err
	}
	data, err := spec.Encode(raw, ctx.byteOrder())
	if err != nil {
		return nil, err
	}
	if err := ctx.G.write(ctx, data); err != nil {
		return nil, err
	}
	return val, nil
}

// asRecord accepts a record of t or a plain map of its field values.
func asRecord(ctx *Context, t *StructType, v any) (*Record, error) {
	switch x := v.(type) {
	case *Record:
		if x.typ != t {
			return nil, errors.TypeMismatch(ctx.G.phase, x.typ.name, "expected a "+t.name+" record")
		}
		return x, nil
	case map[string]any:
		return t.New(x)
	}
	return nil, errors.TypeMismatch(ctx.G.phase, coerce.TypeName(v), "expected a "+t.name+" record")
}

// toList accepts []any or any other slice or array except byte strings.
func toList(ctx *Context, v any) ([]any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []any:
		return x, nil
	case []byte:
		return nil, errors.TypeMismatch(ctx.G.phase, "[]byte", "repeat needs a list")
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, errors.TypeMismatch(ctx.G.phase, coerce.TypeName(v), "repeat needs a list")
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

// fitCount applies the list fill policy when the supplied list disagrees
// with the evaluated count.
func fitCount(ctx *Context, f *FieldSpec, items []any, count int) ([]any, error) {
	if len(items) == count {
		return items, nil
	}
	if !ctx.P.Config.RepeatFill {
		return nil, errors.CountMismatch(count, len(items))
	}
	if len(items) > count {
		return items[:count], nil
	}
	out := append([]any(nil), items...)
	for len(out) < count {
		v, ok := f.base.zeroDefault()
		if !ok {
			return nil, errors.CountMismatch(count, len(items))
		}
		out = append(out, v)
	}
	return out, nil
}

func packRepeat(ctx *Context, f *FieldSpec, val any, has bool) (any, error) {
	var items []any
	if has {
		var err error
		if items, err = toList(ctx, val); err != nil {
			return nil, err
		}
	}
	count, hasCount, err := optionalCount(ctx, f)
	if err != nil {
		return nil, err
	}
	built := f.base.builder.IsSet()
	if hasCount && !built {
		if items, err = fitCount(ctx, f, items, count); err != nil {
			return nil, err
		}
	}
	budget, err := newRepeatBudget(ctx, f)
	if err != nil {
		return nil, err
	}
	saved := saveIter(ctx.P)
	defer saved.restore(ctx.P)
	ctx.P.Prev = nil

	out := make([]any, 0, len(items))
	ctx.values.Set(f.name, out)
	for i := 0; ; i++ {
		if hasCount && i >= count {
			break
		}
		if !hasCount && !built && i >= len(items) {
			break
		}
		if done, err := budget.exhausted(ctx); err != nil || done {
			if err != nil {
				return nil, err
			}
			if !built && i < len(items) {
				return nil, errors.New(ctx.G.phase, errors.KindOverflow).
					Value(len(items)).
					Detail("only %d of %d items fit the byte length", i, len(items)).
					Build()
			}
			break
		}
		ctx.P.I = i
		ctx.G.trace.index(i)
		if stop, err := evalStop(ctx, f.repWhen, false); err != nil || stop {
			if err != nil {
				return nil, err
			}
			break
		}
		var item any
		itemHas := i < len(items)
		if itemHas {
			item = items[i]
		}
		v, _, err := packField(ctx, f.base, item, itemHas)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		ctx.values.Set(f.name, out)
		ctx.P.Item = v
		stop, err := evalStop(ctx, f.repLast, true)
		if err != nil {
			return nil, err
		}
		if stop {
			break
		}
		ctx.P.Prev = v
	}
	return out, nil
}

package datastruct

import (
	"go.uber.org/zap"
)

func unpackStruct(g *Global, parent *Context, t *StructType, args *Values) (*Record, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if parent == nil {
		g.trace.push(t.name)
		Logger().Debug("unpack", zap.String("struct", t.name))
	}
	ctx, err := newContext(g, parent, t, args)
	if err != nil {
		return nil, err
	}
	ctx.rec = &Record{typ: t, vals: NewValues()}
	for _, f := range t.fields {
		g.trace.push(f.name)
		v, present, err := unpackField(ctx, f)
		if err != nil {
			return nil, err
		}
		if present {
			ctx.Set(f.name, v)
		}
		g.trace.pop()
	}
	if parent == nil {
		g.trace.pop()
	}
	return ctx.rec, nil
}

// unpackField reads one field. present is false for fields that produce no
// value.
func unpackField(ctx *Context, f *FieldSpec) (v any, present bool, err error) {
	switch f.kind {
	case KindField:
		v, err = unpackValue(ctx, f)
		return v, err == nil, err
	case KindSeek:
		return nil, false, doSeek(ctx, f)
	case KindPadding:
		return nil, false, unpackPadding(ctx, f)
	case KindAction:
		return nil, false, runAction(ctx, f)
	case KindHook:
		return nil, false, applyHook(ctx, f)
	case KindIO:
		return nil, false, applyIOHook(ctx, f)
	case KindRepeat:
		v, err = unpackRepeat(ctx, f)
		return v, err == nil, err
	case KindCond:
		ok, err := Eval(ctx, f.cond)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return unpackField(ctx, f.base)
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
		return unpackField(ctx, c.field)
	}
	return nil, false, nil
}

func unpackValue(ctx *Context, f *FieldSpec) (any, error) {
	var v any
	if f.typ.isStruct() && !f.format.IsSet() {
		args, err := evalArgs(ctx, f)
		if err != nil {
			return nil, err
		}
		rec, err := unpackStruct(ctx.G, ctx, f.typ.strct, args)
		if err != nil {
			return nil, err
		}
		v = rec
	} else {
		spec, err := resolveFormat(ctx, f)
		if err != nil {
			return nil, err
		}
		raw, err := ctx.G.read(ctx, spec.Size())
		if err != nil {
			return nil, err
		}
		if v, err = spec.Decode(raw, ctx.byteOrder()); err != nil {
			return nil, err
		}
	}
	if f.adapter != nil {
		var err error
		if v, err = f.adapter.Decode(v, ctx); err != nil {
			return nil, err
		}
	}
	v = toDeclared(f.typ, v)
	if f.verify != nil {
		if err := f.verify(ctx, v); err != nil {
			return nil, err
		}
	}
	if f.checksum != nil {
		if err := f.checksum.checkRead(ctx, f, v); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func unpackRepeat(ctx *Context, f *FieldSpec) (any, error) {
	count, hasCount, err := optionalCount(ctx, f)
	if err != nil {
		return nil, err
	}
	budget, err := newRepeatBudget(ctx, f)
	if err != nil {
		return nil, err
	}
	saved := saveIter(ctx.P)
	defer saved.restore(ctx.P)
	ctx.P.Prev = nil

	items := []any{}
	ctx.values.Set(f.name, items)
	for i := 0; !hasCount || i < count; i++ {
		if done, err := budget.exhausted(ctx); err != nil || done {
			if err != nil {
				return nil, err
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
		item, _, err := unpackField(ctx, f.base)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		ctx.values.Set(f.name, items)
		ctx.P.Item = item
		stop, err := evalStop(ctx, f.repLast, true)
		if err != nil {
			return nil, err
		}
		if stop {
			break
		}
		ctx.P.Prev = item
	}
	return items, nil
}

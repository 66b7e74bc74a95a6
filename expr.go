package datastruct

import (
	"reflect"

	"github.com/wippyai/datastruct/errors"
	"github.com/wippyai/datastruct/internal/coerce"
)

// Expr is a field parameter that is either a literal or computed from the
// context at the point of the traversal where it is needed.
//
// Computations see every field declared before the one being processed;
// referencing a later field fails with a field_missing error.
type Expr[T any] struct {
	lit T
	fn  func(*Context) (T, error)
	set bool
}

// Lit returns a literal expression.
func Lit[T any](v T) Expr[T] {
	return Expr[T]{lit: v, set: true}
}

// Func returns a computed expression.
func Func[T any](fn func(*Context) (T, error)) Expr[T] {
	return Expr[T]{fn: fn, set: fn != nil}
}

// IsSet reports whether the expression was given.
func (e Expr[T]) IsSet() bool { return e.set }

// IsLazy reports whether the expression is computed.
func (e Expr[T]) IsLazy() bool { return e.fn != nil }

// Literal returns the literal value, if the expression is one.
func (e Expr[T]) Literal() (T, bool) {
	return e.lit, e.set && e.fn == nil
}

// Eval resolves e against ctx. It is the only place where computed
// expressions are invoked.
func Eval[T any](ctx *Context, e Expr[T]) (T, error) {
	if e.fn != nil {
		return e.fn(ctx)
	}
	return e.lit, nil
}

// Ref reads an already resolved field of the current structure.
func Ref[T any](name string) Expr[T] {
	return Func(func(ctx *Context) (T, error) {
		return Lookup[T](ctx, name)
	})
}

// Lookup reads name from ctx and converts it to T. Integer targets accept
// any integer value that fits.
func Lookup[T any](ctx *Context, name string) (T, error) {
	var zero T
	v, err := ctx.Get(name)
	if err != nil {
		return zero, err
	}
	return convertTo[T](ctx, name, v)
}

func convertTo[T any](ctx *Context, name string, v any) (T, error) {
	var zero T
	if t, ok := v.(T); ok {
		return t, nil
	}
	var out any
	ok := false
	switch any(zero).(type) {
	case int:
		var n int64
		n, ok = coerce.ToInt64(v)
		out = int(n)
	case int64:
		out, ok = coerce.ToInt64(v)
	case uint64:
		out, ok = coerce.ToUint64(v)
	case bool:
		out, ok = coerce.ToBool(v)
	case []byte:
		out, ok = coerce.Bytes(v)
	}
	if ok {
		return out.(T), nil
	}
	return zero, errors.New(ctx.G.phase, errors.KindTypeMismatch).
		GoType(coerce.TypeName(v)).
		Detail("field %q is not a %s", name, reflect.TypeFor[T]()).
		Build()
}

// LenOf computes the length of a list or byte string field. It is the usual
// builder of count and length fields.
func LenOf(name string) Expr[any] {
	return Func(func(ctx *Context) (any, error) {
		v, err := ctx.Get(name)
		if err != nil {
			return nil, err
		}
		return lenOf(v), nil
	})
}

func lenOf(v any) int {
	switch x := v.(type) {
	case nil:
		return 0
	case []any:
		return len(x)
	case []byte:
		return len(x)
	case string:
		return len(x)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.String, reflect.Map:
		return rv.Len()
	}
	return 0
}

// Values is an ordered string-keyed map. It backs structure value
// containers and caller-supplied extra values.
type Values struct {
	m    map[string]any
	keys []string
}

// NewValues returns an empty Values.
func NewValues() *Values {
	return &Values{m: make(map[string]any)}
}

// Get returns the value stored under key.
func (v *Values) Get(key string) (any, bool) {
	if v == nil {
		return nil, false
	}
	x, ok := v.m[key]
	return x, ok
}

// Set stores value under key, keeping the first insertion position.
func (v *Values) Set(key string, value any) {
	if _, ok := v.m[key]; !ok {
		v.keys = append(v.keys, key)
	}
	v.m[key] = value
}

// Delete removes key.
func (v *Values) Delete(key string) {
	if _, ok := v.m[key]; !ok {
		return
	}
	delete(v.m, key)
	for i, k := range v.keys {
		if k == key {
			v.keys = append(v.keys[:i], v.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (v *Values) Keys() []string {
	if v == nil {
		return nil
	}
	return v.keys
}

// Len returns the number of entries.
func (v *Values) Len() int {
	if v == nil {
		return 0
	}
	return len(v.keys)
}

func (v *Values) clone() *Values {
	out := &Values{m: make(map[string]any, len(v.m)), keys: append([]string(nil), v.keys...)}
	for k, x := range v.m {
		out.m[k] = x
	}
	return out
}

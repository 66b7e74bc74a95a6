package datastruct

import (
	"fmt"
	"io"
	"maps"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/datastruct/errors"
	"github.com/wippyai/datastruct/internal/bytebuf"
	"github.com/wippyai/datastruct/internal/coerce"
)

// span locates a forward checksum: its value field and the field index
// range [start, end] covered by its markers.
type span struct {
	value, start, end int
}

// StructType is a named, ordered schema. It is validated on first use and
// can be shared between goroutines afterwards.
type StructType struct {
	err     error
	spans   map[*FieldSpec]span
	index   map[string]int
	configs sync.Map
	name    string
	fields  []*FieldSpec
	opts    []TypeOption
	once    sync.Once
}

// NewStruct declares a structure type. Unnamed special fields are named
// "_<index>".
func NewStruct(name string, fields ...*FieldSpec) *StructType {
	for i, f := range fields {
		if f != nil && f.name == "" && f.kind.special() {
			f.name = "_" + strconv.Itoa(i)
		}
	}
	return &StructType{name: name, fields: fields}
}

// WithOptions attaches per-type configuration overrides. It must be called
// before the type is first used.
func (t *StructType) WithOptions(opts ...TypeOption) *StructType {
	t.opts = append(t.opts, opts...)
	return t
}

// Name returns the structure name.
func (t *StructType) Name() string { return t.name }

// Fields returns the declared fields.
func (t *StructType) Fields() []*FieldSpec { return t.fields }

// Field returns the field declared under name.
func (t *StructType) Field(name string) (*FieldSpec, bool) {
	if err := t.Validate(); err != nil {
		return nil, false
	}
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.fields[i], true
}

func (t *StructType) String() string { return t.name }

// Validate checks the schema once; later calls return the memoized result.
func (t *StructType) Validate() error {
	t.once.Do(func() {
		t.err = validateStruct(t)
		if t.err != nil {
			Logger().Debug("schema rejected", zap.String("struct", t.name), zap.Error(t.err))
		}
	})
	return t.err
}

func (t *StructType) isPublic(name string) bool {
	i, ok := t.index[name]
	return ok && t.fields[i].public
}

// config resolves the type's overrides against base. Results are cached
// per base configuration.
func (t *StructType) config(base *Config) *Config {
	if len(t.opts) == 0 {
		return base
	}
	if c, ok := t.configs.Load(base); ok {
		return c.(*Config)
	}
	c := base.Clone()
	for _, opt := range t.opts {
		opt(c)
	}
	actual, _ := t.configs.LoadOrStore(base, c)
	return actual.(*Config)
}

// New creates a record from values, filling defaults for the public fields
// not given. Unknown names are an error; missing values without a default
// are left for builders or reported at pack time.
func (t *StructType) New(values map[string]any) (*Record, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	for name := range values {
		if !t.isPublic(name) {
			return nil, errors.New(errors.PhaseEncode, errors.KindInvalidData).
				Path(t.name).
				Detail("%s has no field %q", t.name, name).
				Build()
		}
	}
	rec := &Record{typ: t, vals: NewValues()}
	for _, f := range t.fields {
		if !f.public {
			continue
		}
		if v, ok := values[f.name]; ok {
			rec.vals.Set(f.name, v)
			continue
		}
		if v, ok := f.zeroDefault(); ok {
			rec.vals.Set(f.name, v)
		}
	}
	return rec, nil
}

// MustNew is New that panics on error. It is meant for fixtures.
func (t *StructType) MustNew(values map[string]any) *Record {
	rec, err := t.New(values)
	if err != nil {
		panic(err)
	}
	return rec
}

// Unpack decodes data.
func (t *StructType) Unpack(data []byte, opts ...CallOption) (*Record, error) {
	return t.UnpackFrom(bytebuf.New(data), opts...)
}

// UnpackFrom decodes from the current position of r. The reader is left
// after the last consumed byte.
func (t *StructType) UnpackFrom(r io.ReadSeeker, opts ...CallOption) (*Record, error) {
	cc := newCallConfig(opts)
	g := newGlobal(readOnly{r}, errors.PhaseDecode, false, cc)
	rec, err := unpackStruct(g, nil, t, cc.env)
	if err != nil {
		return nil, errors.Annotate(errors.PhaseDecode, err, g.trace.snapshot())
	}
	return rec, nil
}

// Pack encodes rec into a new byte slice.
func (t *StructType) Pack(rec *Record, opts ...CallOption) ([]byte, error) {
	buf := bytebuf.New(nil)
	if err := t.PackTo(rec, buf, opts...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PackTo encodes rec at the current position of w.
func (t *StructType) PackTo(rec *Record, w io.WriteSeeker, opts ...CallOption) error {
	cc := newCallConfig(opts)
	g := newGlobal(writeOnly{w}, errors.PhaseEncode, false, cc)
	return t.packCall(g, rec, cc)
}

// Sizeof returns the number of bytes Pack would produce for rec, without
// running hooks or producing output.
func (t *StructType) Sizeof(rec *Record, opts ...CallOption) (int, error) {
	cc := newCallConfig(opts)
	var counter bytebuf.Counter
	g := newGlobal(&counter, errors.PhaseEncode, true, cc)
	if err := t.packCall(g, rec, cc); err != nil {
		return 0, err
	}
	return int(counter.Size()), nil
}

func (t *StructType) packCall(g *Global, rec *Record, cc *callConfig) error {
	if rec == nil {
		var err error
		if rec, err = t.New(nil); err != nil {
			return err
		}
	}
	if rec.typ != t {
		return errors.TypeMismatch(errors.PhaseEncode, rec.typ.name, "record is not a "+t.name)
	}
	if err := packStruct(g, nil, t, rec, cc.env); err != nil {
		return errors.Annotate(errors.PhaseEncode, err, g.trace.snapshot())
	}
	return nil
}

// Record is an instance of a structure type: its public field values in
// declaration order. Nested structures are *Record, lists are []any.
type Record struct {
	typ  *StructType
	vals *Values
}

// Type returns the record's structure type.
func (r *Record) Type() *StructType { return r.typ }

// Get returns the value of a field.
func (r *Record) Get(name string) (any, bool) { return r.vals.Get(name) }

// Set stores the value of a field.
func (r *Record) Set(name string, v any) { r.vals.Set(name, v) }

// Has reports whether a value is present.
func (r *Record) Has(name string) bool {
	_, ok := r.vals.Get(name)
	return ok
}

// Delete removes a value so builders or defaults apply on the next pack.
func (r *Record) Delete(name string) { r.vals.Delete(name) }

// Names returns the names of present values in field order.
func (r *Record) Names() []string {
	names := make([]string, 0, r.vals.Len())
	for _, f := range r.typ.fields {
		if f.public && r.Has(f.name) {
			names = append(names, f.name)
		}
	}
	return names
}

// Len returns the number of present values.
func (r *Record) Len() int { return r.vals.Len() }

// Pack encodes the record with its own type.
func (r *Record) Pack(opts ...CallOption) ([]byte, error) {
	return r.typ.Pack(r, opts...)
}

// Sizeof returns the encoded size of the record.
func (r *Record) Sizeof(opts ...CallOption) (int, error) {
	return r.typ.Sizeof(r, opts...)
}

// AsMap returns a plain map view with nested records and lists converted
// recursively.
func (r *Record) AsMap() map[string]any {
	out := make(map[string]any, r.vals.Len())
	for _, k := range r.vals.Keys() {
		v, _ := r.vals.Get(k)
		out[k] = plain(v)
	}
	return out
}

func plain(v any) any {
	switch x := v.(type) {
	case *Record:
		if x == nil {
			return nil
		}
		return x.AsMap()
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = plain(item)
		}
		return out
	}
	return v
}

// Equal compares two records by type and values. Integers compare by value
// regardless of their Go type.
func (r *Record) Equal(o *Record) bool {
	if r == nil || o == nil {
		return r == o
	}
	if r.typ != o.typ || r.vals.Len() != o.vals.Len() {
		return false
	}
	for _, k := range r.vals.Keys() {
		a, _ := r.vals.Get(k)
		b, ok := o.vals.Get(k)
		if !ok || !valuesEqual(a, b) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b any) bool {
	switch x := a.(type) {
	case *Record:
		y, ok := b.(*Record)
		return ok && x.Equal(y)
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !valuesEqual(x[i], y[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		y, ok := b.(map[string]any)
		return ok && maps.EqualFunc(x, y, valuesEqual)
	}
	return coerce.Equal(a, b)
}

func (r *Record) String() string {
	var b strings.Builder
	b.WriteString(r.typ.name)
	b.WriteByte('(')
	for i, k := range r.Names() {
		if i > 0 {
			b.WriteString(", ")
		}
		v, _ := r.vals.Get(k)
		if raw, ok := v.([]byte); ok {
			fmt.Fprintf(&b, "%s=%x", k, raw)
			continue
		}
		fmt.Fprintf(&b, "%s=%v", k, v)
	}
	b.WriteByte(')')
	return b.String()
}

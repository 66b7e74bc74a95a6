package datastruct

import (
	"fmt"
	"io"
	"strings"

	"github.com/wippyai/datastruct/errors"
)

// Global is shared by every structure of one outermost pack, unpack or
// sizeof call.
type Global struct {
	// Env holds caller-supplied values (WithEnv).
	Env *Values
	// Root is the context of the outermost structure.
	Root *Context

	stream io.ReadWriteSeeker
	io     IOHook
	ioCtx  *Context
	cfg    *Config
	state  map[any]any
	trace  *pathTrace
	hooks  []Hook
	phase  errors.Phase

	// Packing and Unpacking are mutually exclusive; Sizing implies Packing.
	Packing   bool
	Unpacking bool
	Sizing    bool
}

func newGlobal(stream io.ReadWriteSeeker, phase errors.Phase, sizing bool, cc *callConfig) *Global {
	return &Global{
		Env:       cc.env,
		stream:    stream,
		cfg:       cc.cfg,
		state:     make(map[any]any),
		trace:     &pathTrace{},
		phase:     phase,
		Packing:   phase == errors.PhaseEncode,
		Unpacking: phase == errors.PhaseDecode,
		Sizing:    sizing,
	}
}

// Tell returns the absolute stream position, as seen through the IO hook
// when one is attached.
func (g *Global) Tell() (int64, error) {
	if g.io != nil {
		return g.io.Tell(g.ioCtx)
	}
	pos, err := g.stream.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, g.ioError(err, "tell")
	}
	return pos, nil
}

// Seek moves the absolute stream position.
func (g *Global) Seek(offset int64, whence int) (int64, error) {
	if g.io != nil {
		return g.io.Seek(g.ioCtx, offset, whence)
	}
	pos, err := g.stream.Seek(offset, whence)
	if err != nil {
		return 0, g.ioError(err, "seek")
	}
	return pos, nil
}

// Raw returns the underlying stream, bypassing hooks and the IO hook.
// IO hook implementations use it to reach the physical bytes.
func (g *Global) Raw() io.ReadWriteSeeker { return g.stream }

// Config returns the base configuration of the call.
func (g *Global) Config() *Config { return g.cfg }

// State returns per-call state stored under key. Hooks keep their running
// state here so schema objects stay shareable between calls.
func (g *Global) State(key any) any { return g.state[key] }

// SetState stores per-call state under key.
func (g *Global) SetState(key, value any) { g.state[key] = value }

// Phase reports the error phase of the running call.
func (g *Global) Phase() errors.Phase { return g.phase }

func (g *Global) ioError(err error, op string) error {
	return errors.New(g.phase, errors.KindIO).Cause(err).Detail("stream %s failed", op).Build()
}

// pathTrace is the field path stack used to annotate errors.
type pathTrace struct {
	segs []string
}

func (p *pathTrace) push(s string) { p.segs = append(p.segs, s) }

func (p *pathTrace) pop() { p.segs = p.segs[:len(p.segs)-1] }

func (p *pathTrace) index(i int) {
	top := p.segs[len(p.segs)-1]
	if j := strings.IndexByte(top, '['); j >= 0 {
		top = top[:j]
	}
	p.segs[len(p.segs)-1] = fmt.Sprintf("%s[%d]", top, i)
}

func (p *pathTrace) snapshot() []string {
	return append([]string(nil), p.segs...)
}

// Params is the per-structure part of the context.
type Params struct {
	// Config is the configuration resolved for this structure type.
	Config *Config
	// Args holds values passed by the parent field (Sub(...).Arg) or the caller.
	Args *Values
	// Item is the item just produced by the enclosing repeat, visible to Last.
	Item any
	// Prev is the previous item of the enclosing repeat.
	Prev any
	// I is the current repeat index.
	I int

	g         *Global
	checksums map[*Checksum]any
	pending   map[*Checksum]any
	start     int64
}

// Start returns the absolute offset where this structure began.
func (p *Params) Start() int64 { return p.start }

// Tell returns the position relative to the structure start.
func (p *Params) Tell() (int64, error) {
	pos, err := p.g.Tell()
	if err != nil {
		return 0, err
	}
	return pos - p.start, nil
}

// Seek moves relative to the structure start for io.SeekStart.
func (p *Params) Seek(offset int64, whence int) (int64, error) {
	if whence == io.SeekStart {
		offset += p.start
	}
	pos, err := p.g.Seek(offset, whence)
	if err != nil {
		return 0, err
	}
	return pos - p.start, nil
}

// Skip moves n bytes forward.
func (p *Params) Skip(n int64) error {
	_, err := p.g.Seek(n, io.SeekCurrent)
	return err
}

// Context is the view a field expression gets: the shared Global, the
// structure's Params and the values resolved so far.
type Context struct {
	G *Global
	P *Params

	parent *Context
	typ    *StructType
	values *Values
	rec    *Record
}

func newContext(g *Global, parent *Context, t *StructType, args *Values) (*Context, error) {
	start, err := g.Tell()
	if err != nil {
		return nil, err
	}
	if args == nil {
		args = NewValues()
	}
	ctx := &Context{
		G:      g,
		parent: parent,
		typ:    t,
		values: NewValues(),
		P: &Params{
			Config:    t.config(g.cfg),
			Args:      args,
			g:         g,
			start:     start,
			checksums: make(map[*Checksum]any),
			pending:   make(map[*Checksum]any),
		},
	}
	if parent == nil {
		g.Root = ctx
	}
	return ctx, nil
}

// Get returns a value resolved earlier in this structure, or a value passed
// down by the parent. Missing names are a field_missing error.
func (c *Context) Get(name string) (any, error) {
	if v, ok := c.values.Get(name); ok {
		return v, nil
	}
	if v, ok := c.P.Args.Get(name); ok {
		return v, nil
	}
	return nil, errors.FieldMissing(c.G.phase, name)
}

// Value is Get without the error.
func (c *Context) Value(name string) (any, bool) {
	v, err := c.Get(name)
	return v, err == nil
}

// Int reads an integer field.
func (c *Context) Int(name string) (int, error) { return Lookup[int](c, name) }

// Bool reads a boolean field.
func (c *Context) Bool(name string) (bool, error) { return Lookup[bool](c, name) }

// Bytes reads a byte string field.
func (c *Context) Bytes(name string) ([]byte, error) { return Lookup[[]byte](c, name) }

// Set stores a value in the structure's container. Public names also
// update the record.
func (c *Context) Set(name string, value any) {
	c.values.Set(name, value)
	if c.rec != nil && c.typ.isPublic(name) {
		c.rec.Set(name, value)
	}
}

// Parent returns the enclosing structure's context, or nil at the root.
func (c *Context) Parent() *Context { return c.parent }

// Root returns the outermost structure's context.
func (c *Context) Root() *Context { return c.G.Root }

// Type returns the structure type being processed.
func (c *Context) Type() *StructType { return c.typ }

// Record returns the record being built or consumed.
func (c *Context) Record() *Record { return c.rec }

func (c *Context) String() string {
	var b strings.Builder
	b.WriteString(c.typ.name)
	b.WriteByte('{')
	for i, k := range c.values.Keys() {
		if i > 0 {
			b.WriteString(", ")
		}
		v, _ := c.values.Get(k)
		fmt.Fprintf(&b, "%s: %v", k, v)
	}
	b.WriteByte('}')
	return b.String()
}

// fork returns a packing copy of c writing into stream. The copy shares the
// path trace and the structure start but has its own hooks, checksum
// results and value container, so nothing it does leaks back into c.
func (c *Context) fork(stream io.ReadWriteSeeker, sizing bool) *Context {
	g := &Global{
		Env:     c.G.Env,
		Root:    c.G.Root,
		stream:  stream,
		cfg:     c.G.cfg,
		state:   make(map[any]any),
		trace:   c.G.trace,
		phase:   errors.PhaseEncode,
		Packing: true,
		Sizing:  sizing,
	}
	p := *c.P
	p.g = g
	p.checksums = make(map[*Checksum]any)
	p.pending = make(map[*Checksum]any)
	return &Context{G: g, P: &p, parent: c.parent, typ: c.typ, values: c.values.clone()}
}

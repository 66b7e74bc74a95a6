package datastruct

import (
	"hash"
	"hash/crc32"
	"io"

	"go.uber.org/zap"

	"github.com/wippyai/datastruct/errors"
	"github.com/wippyai/datastruct/internal/bytebuf"
	"github.com/wippyai/datastruct/internal/format"
)

// Checksum ties together a start marker, an end marker and a value field.
// Every byte between the markers feeds the hash. The value field may be
// declared after the end marker, or before the start marker, in which case
// packing replays the marked span into a scratch buffer to compute it.
type Checksum struct {
	newHash func() hash.Hash
	result  func(hash.Hash) any
	hook    *checksumHook
	doc     string
}

// NewChecksum returns a checksum over newHash; result converts the final
// hash into the value stored in the value field.
func NewChecksum(doc string, newHash func() hash.Hash, result func(hash.Hash) any) *Checksum {
	ck := &Checksum{doc: doc, newHash: newHash, result: result}
	ck.hook = &checksumHook{ck: ck}
	return ck
}

// CRC32 is an IEEE CRC-32 checksum producing a uint32.
func CRC32(doc string) *Checksum {
	return NewChecksum(doc, func() hash.Hash { return crc32.NewIEEE() }, func(h hash.Hash) any {
		return h.(hash.Hash32).Sum32()
	})
}

// HashChecksum is a checksum producing the digest bytes of newHash.
func HashChecksum(doc string, newHash func() hash.Hash) *Checksum {
	return NewChecksum(doc, newHash, func(h hash.Hash) any { return h.Sum(nil) })
}

// Doc returns the checksum description used in mismatch errors.
func (ck *Checksum) Doc() string { return ck.doc }

// Start returns the marker where hashing begins.
func (ck *Checksum) Start() *FieldSpec { return HookStart(ck.hook) }

// End returns the marker where hashing stops.
func (ck *Checksum) End() *FieldSpec { return HookEnd(ck.hook) }

// Field declares the value field holding the checksum.
func (ck *Checksum) Field(name, layout string) *FieldSpec {
	f := Field(name, layout)
	f.checksum = ck
	return f
}

type checksumHook struct {
	ck *Checksum
}

func (h *checksumHook) Init(ctx *Context) error {
	ctx.G.SetState(h, h.ck.newHash())
	return nil
}

func (h *checksumHook) Update(data []byte, ctx *Context) ([]byte, error) {
	if hs, ok := ctx.G.State(h).(hash.Hash); ok {
		hs.Write(data)
	}
	return data, nil
}

func (h *checksumHook) Read(data []byte, ctx *Context) ([]byte, error)  { return data, nil }
func (h *checksumHook) Write(data []byte, ctx *Context) ([]byte, error) { return data, nil }

func (h *checksumHook) End(ctx *Context) error {
	hs, ok := ctx.G.State(h).(hash.Hash)
	if !ok {
		return errors.New(ctx.G.phase, errors.KindHookState).
			Detail("checksum %q ended before it started", h.ck.doc).
			Build()
	}
	ctx.G.SetState(h, nil)
	sum := h.ck.result(hs)
	ctx.P.checksums[h.ck] = sum
	if read, ok := ctx.P.pending[h.ck]; ok {
		delete(ctx.P.pending, h.ck)
		if !valuesEqual(read, sum) {
			return errors.ChecksumMismatch(h.ck.doc, read, sum)
		}
	}
	return nil
}

// checkRead verifies an unpacked checksum value, or holds it until the end
// marker when the value precedes its span.
func (ck *Checksum) checkRead(ctx *Context, f *FieldSpec, v any) error {
	if _, forward := ctx.typ.spans[f]; forward {
		ctx.P.pending[ck] = v
		return nil
	}
	sum, ok := ctx.P.checksums[ck]
	if !ok {
		return errors.New(ctx.G.phase, errors.KindHookState).
			Detail("checksum %q has no computed value", ck.doc).
			Build()
	}
	if !valuesEqual(v, sum) {
		return errors.ChecksumMismatch(ck.doc, v, sum)
	}
	return nil
}

// value produces the checksum to pack. Sizing writes a placeholder of the
// right width.
func (ck *Checksum) value(ctx *Context, f *FieldSpec, spec format.Spec) (any, error) {
	if ctx.G.Sizing {
		return spec.Decode(make([]byte, spec.Size()), nil)
	}
	if sp, forward := ctx.typ.spans[f]; forward {
		return packRange(ctx, ck, sp)
	}
	sum, ok := ctx.P.checksums[ck]
	if !ok {
		return nil, errors.New(ctx.G.phase, errors.KindHookState).
			Detail("checksum %q has no computed value; declare its end marker first", ck.doc).
			Build()
	}
	return sum, nil
}

// packRange computes a forward checksum. The fields between the value field
// and the start marker are sized to find where the span begins, then the
// span itself, markers included, is packed into a scratch buffer placed at
// that offset, seeing the values built while sizing. Only the checksum
// result is kept.
func packRange(ctx *Context, ck *Checksum, sp span) (any, error) {
	t := ctx.typ
	abs, err := ctx.G.Tell()
	if err != nil {
		return nil, err
	}
	counter := &bytebuf.Counter{}
	if _, err := counter.Seek(abs, io.SeekStart); err != nil {
		return nil, err
	}
	sizing := ctx.fork(counter, true)
	if err := packFields(sizing, t.fields[sp.value:sp.start]); err != nil {
		return nil, err
	}
	from, _ := counter.Seek(0, io.SeekCurrent)

	scratch := bytebuf.NewAt(from)
	sub := sizing.fork(scratch, false)
	if err := packFields(sub, t.fields[sp.start:sp.end+1]); err != nil {
		return nil, err
	}
	sum, ok := sub.P.checksums[ck]
	if !ok {
		return nil, errors.New(ctx.G.phase, errors.KindHookState).
			Detail("checksum %q span produced no value", ck.doc).
			Build()
	}
	Logger().Debug("forward checksum computed",
		zap.String("checksum", ck.doc),
		zap.Int64("offset", from),
		zap.Int("bytes", scratch.Len()))
	return sum, nil
}

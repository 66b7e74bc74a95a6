package witschema

import (
	"go.bytecodealliance.org/wit"

	ds "github.com/wippyai/datastruct"
)

// Info is the canonical ABI memory layout of a type.
type Info struct {
	Size  uint32
	Align uint32
}

// Layout returns the size and alignment of t in linear memory.
func Layout(t wit.Type) Info {
	return newCalculator().calculate(t)
}

type calculator struct {
	cache map[*wit.TypeDef]Info
}

func newCalculator() *calculator {
	return &calculator{cache: make(map[*wit.TypeDef]Info)}
}

func alignTo(offset, align uint32) uint32 {
	return offset + ds.PadUp(offset, align)
}

// discriminantSize is 1 byte for up to 256 cases, 2 up to 65536, else 4.
func discriminantSize(cases int) uint32 {
	switch {
	case cases <= 256:
		return 1
	case cases <= 65536:
		return 2
	}
	return 4
}

func (c *calculator) calculate(t wit.Type) Info {
	switch typ := t.(type) {
	case wit.U8, wit.S8, wit.Bool:
		return Info{Size: 1, Align: 1}
	case wit.U16, wit.S16:
		return Info{Size: 2, Align: 2}
	case wit.U32, wit.S32, wit.F32, wit.Char:
		return Info{Size: 4, Align: 4}
	case wit.U64, wit.S64, wit.F64:
		return Info{Size: 8, Align: 8}
	case wit.String:
		return Info{Size: 8, Align: 4}
	case *wit.TypeDef:
		return c.typeDef(typ)
	}
	return Info{Size: 0, Align: 1}
}

func (c *calculator) typeDef(t *wit.TypeDef) Info {
	if cached, ok := c.cache[t]; ok {
		return cached
	}
	var info Info
	switch kind := t.Kind.(type) {
	case *wit.Record:
		types := make([]wit.Type, len(kind.Fields))
		for i, f := range kind.Fields {
			types[i] = f.Type
		}
		info = c.sequence(types)
	case *wit.Tuple:
		info = c.sequence(kind.Types)
	case *wit.Variant:
		payloads := make([]wit.Type, len(kind.Cases))
		for i, cs := range kind.Cases {
			payloads[i] = cs.Type
		}
		info = c.tagged(len(kind.Cases), payloads)
	case *wit.Result:
		info = c.tagged(2, []wit.Type{kind.OK, kind.Err})
	case *wit.Option:
		info = c.tagged(2, []wit.Type{kind.Type})
	case *wit.Enum:
		size := discriminantSize(len(kind.Cases))
		info = Info{Size: size, Align: size}
	case *wit.Flags:
		info = flagsLayout(len(kind.Flags))
	case *wit.List:
		info = Info{Size: 8, Align: 4}
	case wit.Type:
		info = c.calculate(kind)
	default:
		info = Info{Size: 0, Align: 1}
	}
	c.cache[t] = info
	return info
}

// sequence lays out types one after another, each at its own alignment.
func (c *calculator) sequence(types []wit.Type) Info {
	offset, maxAlign := uint32(0), uint32(1)
	for _, t := range types {
		l := c.calculate(t)
		offset = alignTo(offset, l.Align) + l.Size
		maxAlign = max(maxAlign, l.Align)
	}
	return Info{Size: alignTo(offset, maxAlign), Align: maxAlign}
}

// tagged lays out a discriminant followed by the largest payload. Nil
// payloads are unit cases.
func (c *calculator) tagged(cases int, payloads []wit.Type) Info {
	disc := discriminantSize(cases)
	maxAlign, maxSize := disc, uint32(0)
	for _, p := range payloads {
		if p == nil {
			continue
		}
		l := c.calculate(p)
		maxAlign = max(maxAlign, l.Align)
		maxSize = max(maxSize, l.Size)
	}
	return Info{Size: alignTo(alignTo(disc, maxAlign)+maxSize, maxAlign), Align: maxAlign}
}

func flagsLayout(n int) Info {
	switch {
	case n == 0:
		return Info{Size: 0, Align: 1}
	case n <= 8:
		return Info{Size: 1, Align: 1}
	case n <= 16:
		return Info{Size: 2, Align: 2}
	case n <= 32:
		return Info{Size: 4, Align: 4}
	}
	return Info{Size: 8, Align: 8}
}

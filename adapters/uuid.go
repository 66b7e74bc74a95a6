package adapters

import (
	"github.com/google/uuid"

	ds "github.com/wippyai/datastruct"
	"github.com/wippyai/datastruct/errors"
	"github.com/wippyai/datastruct/internal/coerce"
)

// UUIDType is the declared type of UUID and GUID fields.
var UUIDType = ds.TypeFor[uuid.UUID]()

// UUID declares a 16-byte RFC 4122 UUID in network order.
func UUID(name string) *ds.FieldSpec {
	return ds.Field(name, "16s").As(UUIDType).Adapt(UUIDBytes{})
}

// GUID declares a 16-byte Microsoft GUID, whose first three groups are
// stored little endian.
func GUID(name string) *ds.FieldSpec {
	return ds.Field(name, "16s").As(UUIDType).Adapt(UUIDBytes{Mixed: true})
}

// UUIDBytes converts uuid.UUID values to raw bytes. Encode also accepts the
// textual form.
type UUIDBytes struct {
	Mixed bool
}

func (a UUIDBytes) Encode(value any, ctx *ds.Context) (any, error) {
	var id uuid.UUID
	switch v := value.(type) {
	case uuid.UUID:
		id = v
	case string:
		p, err := uuid.Parse(v)
		if err != nil {
			return nil, errors.Wrap(ctx.G.Phase(), errors.KindInvalidData, err, "parse uuid")
		}
		id = p
	case []byte:
		p, err := uuid.FromBytes(v)
		if err != nil {
			return nil, errors.Wrap(ctx.G.Phase(), errors.KindInvalidData, err, "uuid bytes")
		}
		id = p
	default:
		return nil, errors.TypeMismatch(ctx.G.Phase(), coerce.TypeName(value), "expected uuid.UUID")
	}
	out := id[:]
	if a.Mixed {
		out = swapGUID(out)
	}
	return out, nil
}

func (a UUIDBytes) Decode(raw any, ctx *ds.Context) (any, error) {
	b, _ := coerce.Bytes(raw)
	if a.Mixed && len(b) == 16 {
		b = swapGUID(b)
	}
	id, err := uuid.FromBytes(b)
	if err != nil {
		return nil, errors.Wrap(ctx.G.Phase(), errors.KindInvalidData, err, "uuid bytes")
	}
	return id, nil
}

// swapGUID converts between RFC 4122 and GUID byte order. It is its own
// inverse.
func swapGUID(b []byte) []byte {
	out := make([]byte, 16)
	copy(out, b)
	out[0], out[1], out[2], out[3] = b[3], b[2], b[1], b[0]
	out[4], out[5] = b[5], b[4]
	out[6], out[7] = b[7], b[6]
	return out
}

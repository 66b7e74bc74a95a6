package adapters

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"

	ds "github.com/wippyai/datastruct"
	"github.com/wippyai/datastruct/errors"
	"github.com/wippyai/datastruct/internal/coerce"
)

// Deterministic encoding keeps packed output stable for equal values, which
// checksums over CBOR payloads depend on.
var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("adapters: CBOR encoder initialization failed: " + err.Error())
	}
	cborDec, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("adapters: CBOR decoder initialization failed: " + err.Error())
	}
}

// CBOR declares n bytes holding a CBOR document that decodes into T.
func CBOR[T any](name string, n ds.Expr[int]) *ds.FieldSpec {
	return ds.Raw(name, n).As(ds.TypeFor[T]()).Adapt(CBORCodec[T]{})
}

// CBORCodec converts values of T to deterministic CBOR.
type CBORCodec[T any] struct{}

func (CBORCodec[T]) Encode(value any, ctx *ds.Context) (any, error) {
	b, err := cborEnc.Marshal(value)
	if err != nil {
		return nil, errors.Wrap(ctx.G.Phase(), errors.KindInvalidData, err, "cbor encode")
	}
	return b, nil
}

func (CBORCodec[T]) Decode(raw any, ctx *ds.Context) (any, error) {
	b, _ := coerce.Bytes(raw)
	var v T
	if err := cborDec.Unmarshal(b, &v); err != nil {
		return nil, errors.Wrap(ctx.G.Phase(), errors.KindInvalidData, err, "cbor decode")
	}
	return v, nil
}

package adapters

import (
	"bytes"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	ds "github.com/wippyai/datastruct"
	"github.com/wippyai/datastruct/errors"
	"github.com/wippyai/datastruct/internal/coerce"
)

// Zstd declares a zstd-compressed byte string of n bytes on the wire. The
// field value is the uncompressed data.
func Zstd(name string, n ds.Expr[int]) *ds.FieldSpec {
	return ds.Raw(name, n).Adapt(ZstdCodec{})
}

// LZ4 declares an LZ4-framed byte string of n bytes on the wire.
func LZ4(name string, n ds.Expr[int]) *ds.FieldSpec {
	return ds.Raw(name, n).Adapt(LZ4Codec{})
}

// Snappy declares a snappy block of n bytes on the wire.
func Snappy(name string, n ds.Expr[int]) *ds.FieldSpec {
	return ds.Raw(name, n).Adapt(SnappyCodec{})
}

// zstd encoders and decoders are safe for concurrent use and costly to set
// up, so one of each is shared.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("adapters: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		panic("adapters: zstd decoder initialization failed: " + err.Error())
	}
}

func payload(value any, ctx *ds.Context) ([]byte, error) {
	b, ok := coerce.Bytes(value)
	if !ok {
		return nil, errors.TypeMismatch(ctx.G.Phase(), coerce.TypeName(value), "expected bytes")
	}
	return b, nil
}

// ZstdCodec compresses byte values with zstd.
type ZstdCodec struct{}

func (ZstdCodec) Encode(value any, ctx *ds.Context) (any, error) {
	b, err := payload(value, ctx)
	if err != nil {
		return nil, err
	}
	return zstdEncoder.EncodeAll(b, nil), nil
}

func (ZstdCodec) Decode(raw any, ctx *ds.Context) (any, error) {
	b, _ := coerce.Bytes(raw)
	out, err := zstdDecoder.DecodeAll(b, nil)
	if err != nil {
		return nil, errors.Wrap(ctx.G.Phase(), errors.KindInvalidData, err, "zstd decompress")
	}
	return out, nil
}

// LZ4Codec compresses byte values with the LZ4 frame format, which carries
// its own length and checksum.
type LZ4Codec struct{}

func (LZ4Codec) Encode(value any, ctx *ds.Context) (any, error) {
	b, err := payload(value, ctx)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(b); err != nil {
		return nil, errors.Wrap(ctx.G.Phase(), errors.KindInvalidData, err, "lz4 compress")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(ctx.G.Phase(), errors.KindInvalidData, err, "lz4 compress")
	}
	return buf.Bytes(), nil
}

func (LZ4Codec) Decode(raw any, ctx *ds.Context) (any, error) {
	b, _ := coerce.Bytes(raw)
	out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(b)))
	if err != nil {
		return nil, errors.Wrap(ctx.G.Phase(), errors.KindInvalidData, err, "lz4 decompress")
	}
	return out, nil
}

// SnappyCodec compresses byte values with snappy block encoding.
type SnappyCodec struct{}

func (SnappyCodec) Encode(value any, ctx *ds.Context) (any, error) {
	b, err := payload(value, ctx)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, b), nil
}

func (SnappyCodec) Decode(raw any, ctx *ds.Context) (any, error) {
	b, _ := coerce.Bytes(raw)
	out, err := snappy.Decode(nil, b)
	if err != nil {
		return nil, errors.Wrap(ctx.G.Phase(), errors.KindInvalidData, err, "snappy decompress")
	}
	return out, nil
}

// Package sealed is a small container for compressed, encrypted blobs.
//
// Layout:
//
//	"SEAL" | version (1) | mac (32) | codec (1) | length (u32 LE) | payload | padding
//
// The payload is compressed with the codec, padded to the XTEA block size
// and encrypted block by block. The mac is a keyed BLAKE3 over everything
// after it, taken before encryption, so it also covers the codec and
// length. Unpacking decompresses only once the mac has been checked.
package sealed

import (
	"fmt"
	"hash"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/xtea"

	ds "github.com/wippyai/datastruct"
	"github.com/wippyai/datastruct/adapters"
	"github.com/wippyai/datastruct/errors"
)

// KeySize is the size of the key New takes.
const KeySize = 16

// Codec selects how the payload is compressed.
type Codec uint8

const (
	None Codec = iota
	Zstd
	LZ4
	Snappy
)

func (c Codec) String() string {
	switch c {
	case None:
		return "none"
	case Zstd:
		return "zstd"
	case LZ4:
		return "lz4"
	case Snappy:
		return "snappy"
	}
	return fmt.Sprintf("Codec(%d)", uint8(c))
}

var codecs = map[Codec]ds.Adapter{
	Zstd:   adapters.ZstdCodec{},
	LZ4:    adapters.LZ4Codec{},
	Snappy: adapters.SnappyCodec{},
}

// macContext separates the MAC key from the cipher key.
const macContext = "datastruct sealed 2026-01 mac key"

// New returns the container layout for key.
func New(key []byte) (*ds.StructType, error) {
	if len(key) != KeySize {
		return nil, errors.Schema("sealed: key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := xtea.NewCipher(key)
	if err != nil {
		return nil, errors.Schema("sealed: %v", err)
	}
	macKey := make([]byte, 32)
	blake3.DeriveKey(macContext, key, macKey)
	mac := ds.HashChecksum("sealed mac", func() hash.Hash {
		h, _ := blake3.NewKeyed(macKey)
		return h
	})
	enc := ds.NewBlockCipher(block)

	return ds.NewStruct("Sealed",
		ds.Const("_magic", "4s", "SEAL"),
		ds.Const("_version", "B", 1),
		mac.Field("_mac", "32s"),
		mac.Start(),
		ds.Field("codec", "B").As(ds.TypeFor[Codec]()).Default(Zstd),
		ds.Field("_length", "<I").Build(ds.PackedLen("payload")),
		ds.IOStart(enc),
		ds.Raw("payload", ds.Ref[int]("_length")).Adapt(codecAdapter{}),
		ds.Padding(ds.Func(func(ctx *ds.Context) (int, error) {
			n, err := ctx.Int("_length")
			return ds.PadUp(n, block.BlockSize()), err
		})).Pattern(0),
		ds.IOEnd(enc),
		mac.End(),
		ds.Action(decompress),
	), nil
}

// codecAdapter compresses with the codec named by the codec field. It
// leaves decoding to decompress, which runs after the mac check.
type codecAdapter struct{}

func codecFor(ctx *ds.Context) (ds.Adapter, error) {
	n, err := ctx.Int("codec")
	c := Codec(n)
	if err != nil || c == None {
		return nil, err
	}
	a, ok := codecs[c]
	if !ok {
		return nil, errors.New(ctx.G.Phase(), errors.KindUnsupported).
			Value(uint8(c)).
			Detail("unknown codec %d", uint8(c)).
			Build()
	}
	return a, nil
}

func (codecAdapter) Encode(value any, ctx *ds.Context) (any, error) {
	c, err := codecFor(ctx)
	if err != nil || c == nil {
		return value, err
	}
	return c.Encode(value, ctx)
}

func (codecAdapter) Decode(raw any, ctx *ds.Context) (any, error) {
	return raw, nil
}

func decompress(ctx *ds.Context) error {
	if ctx.G.Packing {
		return nil
	}
	c, err := codecFor(ctx)
	if err != nil || c == nil {
		return err
	}
	raw, _ := ctx.Value("payload")
	plain, err := c.Decode(raw, ctx)
	if err != nil {
		return err
	}
	ctx.Set("payload", plain)
	return nil
}

// Seal packs payload into a container.
func Seal(key, payload []byte, codec Codec) ([]byte, error) {
	st, err := New(key)
	if err != nil {
		return nil, err
	}
	rec, err := st.New(map[string]any{"codec": codec, "payload": payload})
	if err != nil {
		return nil, err
	}
	return rec.Pack()
}

// Open verifies and unpacks a container and returns its payload.
func Open(key, data []byte) ([]byte, error) {
	st, err := New(key)
	if err != nil {
		return nil, err
	}
	rec, err := st.Unpack(data)
	if err != nil {
		return nil, err
	}
	payload, _ := rec.Get("payload")
	b, _ := payload.([]byte)
	return b, nil
}

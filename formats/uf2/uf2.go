// Package uf2 reads and writes UF2 firmware images: a run of 512-byte
// blocks, each carrying up to 476 bytes of flash contents and the address
// they belong at.
package uf2

import (
	"fmt"

	ds "github.com/wippyai/datastruct"
	"github.com/wippyai/datastruct/errors"
	"github.com/wippyai/datastruct/internal/coerce"
)

const (
	// BlockSize is the size of one block in an image.
	BlockSize = 512
	// DataArea is the room a block has for payload bytes.
	DataArea = 476
	// PayloadSize is the payload each block gets from Split.
	PayloadSize = 256
)

// Block is a single UF2 block.
var Block = ds.NewStruct("UF2Block",
	ds.Const("_magic0", "<I", uint32(0x0A324655)),
	ds.Const("_magic1", "<I", uint32(0x9E5D5157)),
	ds.Bitfield("flags", "<I",
		ds.Reserved(16),
		ds.Flag("extension_tags"),
		ds.Flag("md5"),
		ds.Flag("family_id"),
		ds.Flag("file_container"),
		ds.Reserved(11),
		ds.Flag("not_main_flash"),
	),
	ds.Field("target_addr", "<I"),
	ds.Field("payload_size", "<I").Build(ds.LenOf("data")),
	ds.Field("block_no", "<I"),
	ds.Field("num_blocks", "<I"),
	ds.Field("family", "<I").Default(0),
	ds.Validate(ds.Func(func(ctx *ds.Context) (bool, error) {
		n, err := ctx.Int("payload_size")
		return n <= DataArea, err
	}), "payload fits the data area"),
	ds.Raw("data", ds.Ref[int]("payload_size")),
	ds.Padding(ds.Func(func(ctx *ds.Context) (int, error) {
		n, err := ctx.Int("payload_size")
		return DataArea - n, err
	})),
	ds.Const("_magic_end", "<I", uint32(0x0AB16F30)),
).WithOptions(ds.PaddingPattern(0))

// Image is a whole file. Reading stops after the block numbered
// num_blocks-1.
var Image = ds.NewStruct("UF2",
	ds.Repeat("blocks", ds.ListOf(ds.StructOf(Block)), ds.Sub("", Block)).
		Last(ds.Func(lastBlock)),
)

func lastBlock(ctx *ds.Context) (bool, error) {
	rec, ok := ctx.P.Item.(*ds.Record)
	if !ok {
		return true, nil
	}
	no, _ := rec.Get("block_no")
	total, _ := rec.Get("num_blocks")
	n, _ := coerce.ToUint64(no)
	t, _ := coerce.ToUint64(total)
	return n+1 >= t, nil
}

// Split cuts data into an image flashed at addr. A non-zero family tags
// every block with that family ID.
func Split(data []byte, addr, family uint32) *ds.Record {
	count := (len(data) + PayloadSize - 1) / PayloadSize
	blocks := make([]any, 0, count)
	for i := range count {
		chunk := data[i*PayloadSize : min((i+1)*PayloadSize, len(data))]
		blocks = append(blocks, Block.MustNew(map[string]any{
			"flags":       map[string]any{"family_id": family != 0},
			"target_addr": addr + uint32(i*PayloadSize),
			"block_no":    i,
			"num_blocks":  count,
			"family":      family,
			"data":        chunk,
		}))
	}
	return Image.MustNew(map[string]any{"blocks": blocks})
}

// Flatten joins the payloads of an unpacked image. Blocks must be numbered
// in order and cover one contiguous address range.
func Flatten(img *ds.Record) (addr uint32, data []byte, err error) {
	v, _ := img.Get("blocks")
	blocks, _ := v.([]any)
	var next uint32
	for i, b := range blocks {
		rec, ok := b.(*ds.Record)
		if !ok {
			return 0, nil, errors.TypeMismatch(errors.PhaseDecode, coerce.TypeName(b), "expected a UF2Block record")
		}
		target, _ := uintField(rec, "target_addr")
		no, _ := uintField(rec, "block_no")
		if no != uint64(i) {
			return 0, nil, blockError(i, "block number %d out of order", no)
		}
		switch {
		case i == 0:
			addr = uint32(target)
		case uint32(target) != next:
			return 0, nil, blockError(i, "address %#x leaves a gap after %#x", target, next)
		}
		payload, _ := rec.Get("data")
		chunk, _ := coerce.Bytes(payload)
		data = append(data, chunk...)
		next = uint32(target) + uint32(len(chunk))
	}
	return addr, data, nil
}

func uintField(rec *ds.Record, name string) (uint64, bool) {
	v, ok := rec.Get(name)
	if !ok {
		return 0, false
	}
	return coerce.ToUint64(v)
}

func blockError(i int, format string, args ...any) error {
	return errors.New(errors.PhaseDecode, errors.KindInvalidData).
		Path("UF2", fmt.Sprintf("blocks[%d]", i)).
		Detail(format, args...).
		Build()
}

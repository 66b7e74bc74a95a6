package uf2

import (
	"bytes"
	"encoding/binary"
	"testing"

	ds "github.com/wippyai/datastruct"
	"github.com/wippyai/datastruct/errors"
)

func firmware(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i * 7)
	}
	return data
}

func TestSplit_Pack(t *testing.T) {
	img := Split(firmware(600), 0x2000, 0xE48BFF56)
	data, err := img.Pack()
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	if len(data) != 3*BlockSize {
		t.Fatalf("len = %d, want %d", len(data), 3*BlockSize)
	}

	le := binary.LittleEndian
	for i := range 3 {
		b := data[i*BlockSize : (i+1)*BlockSize]
		if le.Uint32(b[0:]) != 0x0A324655 || le.Uint32(b[4:]) != 0x9E5D5157 || le.Uint32(b[508:]) != 0x0AB16F30 {
			t.Errorf("block %d: bad magic", i)
		}
		if flags := le.Uint32(b[8:]); flags != 0x2000 {
			t.Errorf("block %d: flags = %#x, want family ID present", i, flags)
		}
		if addr := le.Uint32(b[12:]); addr != 0x2000+uint32(i*PayloadSize) {
			t.Errorf("block %d: target = %#x", i, addr)
		}
		if no, total := le.Uint32(b[20:]), le.Uint32(b[24:]); no != uint32(i) || total != 3 {
			t.Errorf("block %d: numbered %d of %d", i, no, total)
		}
	}
	if size := le.Uint32(data[2*BlockSize+16:]); size != 600-2*PayloadSize {
		t.Errorf("last payload size = %d, want 88", size)
	}

	n, err := img.Sizeof()
	if err != nil {
		t.Fatalf("Sizeof failed: %v", err)
	}
	if n != len(data) {
		t.Errorf("Sizeof() = %d, want %d", n, len(data))
	}
}

func TestImage_RoundTrip(t *testing.T) {
	want := firmware(1000)
	data, err := Split(want, 0x10000000, 0).Pack()
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	// Trailing bytes after the last block are left alone.
	data = append(data, 0xFF, 0xFF)

	img, err := Image.Unpack(data)
	if err != nil {
		t.Fatalf("Unpack failed: %v", err)
	}
	addr, got, err := Flatten(img)
	if err != nil {
		t.Fatalf("Flatten failed: %v", err)
	}
	if addr != 0x10000000 {
		t.Errorf("addr = %#x", addr)
	}
	if !bytes.Equal(got, want) {
		t.Error("flattened payload differs from the input")
	}

	blocks, _ := img.Get("blocks")
	first := blocks.([]any)[0].(*ds.Record)
	flags, _ := first.Get("flags")
	if f := flags.(map[string]any); f["family_id"] != false || f["not_main_flash"] != false {
		t.Errorf("flags = %v", f)
	}
}

func TestImage_Rejects(t *testing.T) {
	good, err := Split(firmware(300), 0, 0).Pack()
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}

	tests := []struct {
		name   string
		offset int
		value  uint32
	}{
		{"bad start magic", 0, 0xDEADBEEF},
		{"bad end magic", BlockSize + 508, 0},
		{"oversized payload", 16, 477},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := bytes.Clone(good)
			binary.LittleEndian.PutUint32(data[tt.offset:], tt.value)
			if _, err := Image.Unpack(data); errors.KindOf(err) != errors.KindInvalidData {
				t.Errorf("error = %v, want invalid data", err)
			}
		})
	}

	t.Run("truncated", func(t *testing.T) {
		if _, err := Image.Unpack(good[:BlockSize+100]); errors.KindOf(err) != errors.KindInsufficientData {
			t.Errorf("error = %v, want insufficient data", err)
		}
	})
}

func TestFlatten_Gaps(t *testing.T) {
	img := Split(firmware(600), 0, 0)
	blocks, _ := img.Get("blocks")
	blocks.([]any)[1].(*ds.Record).Set("target_addr", uint32(0x4000))

	if _, _, err := Flatten(img); errors.KindOf(err) != errors.KindInvalidData {
		t.Errorf("error = %v, want invalid data", err)
	}
}

func TestBlock_OversizedPack(t *testing.T) {
	rec := Block.MustNew(map[string]any{
		"target_addr": 0, "block_no": 0, "num_blocks": 1,
		"data": make([]byte, DataArea+1),
	})
	if _, err := rec.Pack(); errors.KindOf(err) != errors.KindInvalidData {
		t.Errorf("error = %v, want invalid data", err)
	}
}

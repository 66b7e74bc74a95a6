package datastruct

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/wippyai/datastruct/errors"
)

func trailingCRC() *StructType {
	ck := CRC32("payload")
	return NewStruct("Frame",
		Field("len", "B").Build(LenOf("payload")),
		ck.Start(),
		Raw("payload", Ref[int]("len")),
		ck.End(),
		ck.Field("crc", "<I"),
	)
}

func leadingCRC() *StructType {
	ck := CRC32("payload")
	return NewStruct("Fwd",
		ck.Field("crc", "<I"),
		Field("len", "B").Build(LenOf("payload")),
		ck.Start(),
		Raw("payload", Ref[int]("len")),
		ck.End(),
		Field("trailer", "B").Default(0xEE),
	)
}

func TestChecksum_Trailing(t *testing.T) {
	st := trailingCRC()
	payload := []byte("hello")
	data, err := st.MustNew(map[string]any{"payload": payload}).Pack()
	if err != nil {
		t.Fatalf("Pack() error = %v", err)
	}
	want := append([]byte{5}, payload...)
	want = binary.LittleEndian.AppendUint32(want, crc32.ChecksumIEEE(payload))
	if !bytes.Equal(data, want) {
		t.Fatalf("Pack() = % x, want % x", data, want)
	}

	rec, err := st.Unpack(data)
	if err != nil {
		t.Fatalf("Unpack() error = %v", err)
	}
	if crc, _ := rec.Get("crc"); crc != crc32.ChecksumIEEE(payload) {
		t.Errorf("crc = %v, want %08x", crc, crc32.ChecksumIEEE(payload))
	}

	corrupt := bytes.Clone(data)
	corrupt[2] ^= 0x01
	_, err = st.Unpack(corrupt)
	if errors.KindOf(err) != errors.KindChecksum || !errors.IsDecode(err) {
		t.Errorf("Unpack(corrupt) error = %v, want decode/checksum_mismatch", err)
	}
}

func TestChecksum_Leading(t *testing.T) {
	st := leadingCRC()
	payload := []byte("hello")
	rec := st.MustNew(map[string]any{"payload": payload})

	size, err := st.Sizeof(rec)
	if err != nil {
		t.Fatalf("Sizeof() error = %v", err)
	}
	data, err := rec.Pack()
	if err != nil {
		t.Fatalf("Pack() error = %v", err)
	}
	want := binary.LittleEndian.AppendUint32(nil, crc32.ChecksumIEEE(payload))
	want = append(want, 5)
	want = append(want, payload...)
	want = append(want, 0xEE)
	if !bytes.Equal(data, want) {
		t.Fatalf("Pack() = % x, want % x", data, want)
	}
	if size != len(data) {
		t.Errorf("Sizeof() = %d, want %d", size, len(data))
	}

	back, err := st.Unpack(data)
	if err != nil {
		t.Fatalf("Unpack() error = %v", err)
	}
	if !back.Equal(rec) {
		t.Errorf("round trip mismatch:\n got %v\nwant %v", back, rec)
	}

	corrupt := bytes.Clone(data)
	corrupt[6] ^= 0x80
	_, err = st.Unpack(corrupt)
	if errors.KindOf(err) != errors.KindChecksum {
		t.Errorf("Unpack(corrupt payload) error = %v, want checksum_mismatch", err)
	}

	corrupt = bytes.Clone(data)
	corrupt[0] ^= 0x01
	_, err = st.Unpack(corrupt)
	if errors.KindOf(err) != errors.KindChecksum {
		t.Errorf("Unpack(corrupt value) error = %v, want checksum_mismatch", err)
	}
}

func TestChecksum_Symmetry(t *testing.T) {
	for _, st := range []*StructType{trailingCRC(), leadingCRC()} {
		t.Run(st.Name(), func(t *testing.T) {
			for _, payload := range [][]byte{{}, {0}, []byte("a longer payload with some text")} {
				data, err := st.MustNew(map[string]any{"payload": payload}).Pack()
				if err != nil {
					t.Fatalf("Pack(%q) error = %v", payload, err)
				}
				rec, err := st.Unpack(data)
				if err != nil {
					t.Fatalf("Unpack(%q) error = %v", payload, err)
				}
				if got, _ := rec.Get("payload"); !bytes.Equal(got.([]byte), payload) {
					t.Errorf("payload = %q, want %q", got, payload)
				}
			}
		})
	}
}

func TestChecksum_SharedSchema(t *testing.T) {
	st := leadingCRC()
	a, err := st.MustNew(map[string]any{"payload": []byte("one")}).Pack()
	if err != nil {
		t.Fatal(err)
	}
	b, err := st.MustNew(map[string]any{"payload": []byte("two")}).Pack()
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(a[:4], b[:4]) {
		t.Error("different payloads produced the same checksum")
	}
	if _, err := st.Unpack(a); err != nil {
		t.Errorf("Unpack(a) error = %v", err)
	}
}

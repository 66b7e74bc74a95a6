package witschema

import (
	"bytes"
	"context"
	"testing"

	"github.com/kylelemons/godebug/pretty"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	ds "github.com/wippyai/datastruct"
	"github.com/wippyai/datastruct/errors"
	"github.com/wippyai/datastruct/memio"
)

func record(fields ...wit.Field) *wit.TypeDef {
	return &wit.TypeDef{Kind: &wit.Record{Fields: fields}}
}

func TestLayout(t *testing.T) {
	tests := []struct {
		name string
		typ  wit.Type
		want Info
	}{
		{"u8", wit.U8{}, Info{1, 1}},
		{"char", wit.Char{}, Info{4, 4}},
		{"string", wit.String{}, Info{8, 4}},
		{"record", record(
			wit.Field{Name: "a", Type: wit.U8{}},
			wit.Field{Name: "b", Type: wit.U32{}},
			wit.Field{Name: "c", Type: wit.U16{}},
		), Info{12, 4}},
		{"option u64", &wit.TypeDef{Kind: &wit.Option{Type: wit.U64{}}}, Info{16, 8}},
		{"result", &wit.TypeDef{Kind: &wit.Result{OK: wit.U32{}, Err: wit.U8{}}}, Info{8, 4}},
		{"unit result", &wit.TypeDef{Kind: &wit.Result{}}, Info{1, 1}},
		{"variant", &wit.TypeDef{Kind: &wit.Variant{Cases: []wit.Case{
			{Name: "none"},
			{Name: "big", Type: wit.U64{}},
		}}}, Info{16, 8}},
		{"tuple", &wit.TypeDef{Kind: &wit.Tuple{Types: []wit.Type{wit.U8{}, wit.U64{}}}}, Info{16, 8}},
		{"flags 9", &wit.TypeDef{Kind: &wit.Flags{Flags: make([]wit.Flag, 9)}}, Info{2, 2}},
		{"flags 40", &wit.TypeDef{Kind: &wit.Flags{Flags: make([]wit.Flag, 40)}}, Info{8, 8}},
		{"list", &wit.TypeDef{Kind: &wit.List{Type: wit.U64{}}}, Info{8, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Layout(tt.typ); got != tt.want {
				t.Errorf("Layout() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func sample() *wit.TypeDef {
	return record(
		wit.Field{Name: "tag", Type: wit.U8{}},
		wit.Field{Name: "x", Type: wit.U32{}},
		wit.Field{Name: "ok", Type: wit.Bool{}},
		wit.Field{Name: "color", Type: &wit.TypeDef{Kind: &wit.Enum{Cases: []wit.EnumCase{
			{Name: "red"}, {Name: "green"}, {Name: "blue"},
		}}}},
		wit.Field{Name: "perms", Type: &wit.TypeDef{Kind: &wit.Flags{Flags: []wit.Flag{
			{Name: "read"}, {Name: "write"}, {Name: "exec"},
		}}}},
		wit.Field{Name: "maybe", Type: &wit.TypeDef{Kind: &wit.Option{Type: wit.U16{}}}},
		wit.Field{Name: "res", Type: &wit.TypeDef{Kind: &wit.Result{OK: wit.U32{}, Err: wit.U8{}}}},
		wit.Field{Name: "ch", Type: wit.Char{}},
		wit.Field{Name: "pair", Type: &wit.TypeDef{Kind: &wit.Tuple{Types: []wit.Type{wit.U8{}, wit.U64{}}}}},
	)
}

func TestFromRecord_RoundTrip(t *testing.T) {
	st := MustFromRecord("Sample", sample())

	tests := []struct {
		name  string
		input map[string]any
		want  []byte
		back  map[string]any
	}{
		{
			name: "some and ok",
			input: map[string]any{
				"tag": 7, "x": 0x01020304, "ok": true, "color": "blue",
				"perms": map[string]bool{"read": true, "exec": true},
				"maybe": 5,
				"res":   map[string]any{"case": "ok", "value": 9},
				"ch":    'é',
				"pair":  map[string]any{"0": 1, "1": 2},
			},
			want: []byte{
				0x07, 0, 0, 0, 0x04, 0x03, 0x02, 0x01,
				0x01, 0x02, 0x05, 0, 0x01, 0, 0x05, 0,
				0x00, 0, 0, 0, 0x09, 0, 0, 0,
				0xE9, 0, 0, 0, 0, 0, 0, 0,
				0x01, 0, 0, 0, 0, 0, 0, 0,
				0x02, 0, 0, 0, 0, 0, 0, 0,
			},
			back: map[string]any{
				"tag": 7, "x": 0x01020304, "ok": true, "color": "blue",
				"perms": map[string]bool{"read": true, "write": false, "exec": true},
				"maybe": 5,
				"res":   map[string]any{"case": "ok", "value": 9},
				"ch":    'é',
				"pair":  map[string]any{"0": 1, "1": 2},
			},
		},
		{
			name: "none and err",
			input: map[string]any{
				"tag": 1, "x": 2, "ok": false, "color": 0,
				"perms": []string{"write"},
				"maybe": nil,
				"res":   map[string]any{"case": "err", "value": 3},
				"ch":    'A',
				"pair":  map[string]any{"0": 0, "1": 0},
			},
			want: []byte{
				0x01, 0, 0, 0, 0x02, 0, 0, 0,
				0x00, 0x00, 0x02, 0, 0x00, 0, 0x00, 0,
				0x01, 0, 0, 0, 0x03, 0, 0, 0,
				0x41, 0, 0, 0, 0, 0, 0, 0,
				0, 0, 0, 0, 0, 0, 0, 0,
				0, 0, 0, 0, 0, 0, 0, 0,
			},
			back: map[string]any{
				"tag": 1, "x": 2, "ok": false, "color": "red",
				"perms": map[string]bool{"read": false, "write": true, "exec": false},
				"maybe": nil,
				"res":   map[string]any{"case": "err", "value": 3},
				"ch":    'A',
				"pair":  map[string]any{"0": 0, "1": 0},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := st.MustNew(tt.input).Pack()
			if err != nil {
				t.Fatalf("Pack failed: %v", err)
			}
			if !bytes.Equal(data, tt.want) {
				t.Errorf("Pack() =\n% x\nwant\n% x", data, tt.want)
			}

			rec, err := st.Unpack(data)
			if err != nil {
				t.Fatalf("Unpack failed: %v", err)
			}
			if diff := pretty.Compare(tt.back, rec.AsMap()); diff != "" {
				t.Errorf("Unpack() diff (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFromRecord_Sizeof(t *testing.T) {
	st := MustFromRecord("Sample", sample())
	n, err := st.MustNew(map[string]any{
		"tag": 0, "x": 0, "ok": false, "color": "red", "perms": []string{},
		"res": map[string]any{"case": "ok", "value": 0}, "ch": 'a',
		"pair": map[string]any{"0": 0, "1": 0},
	}).Sizeof()
	if err != nil {
		t.Fatalf("Sizeof failed: %v", err)
	}
	if want := Layout(sample()).Size; n != int(want) {
		t.Errorf("Sizeof() = %d, want %d", n, want)
	}
}

func TestFromRecord_NestedRecords(t *testing.T) {
	point := record(
		wit.Field{Name: "x", Type: wit.S16{}},
		wit.Field{Name: "y", Type: wit.S16{}},
	)
	line := record(
		wit.Field{Name: "from", Type: point},
		wit.Field{Name: "to", Type: point},
		wit.Field{Name: "width", Type: wit.F64{}},
	)
	st := MustFromRecord("Line", line)

	in := map[string]any{
		"from":  map[string]any{"x": -1, "y": 2},
		"to":    map[string]any{"x": 3, "y": -4},
		"width": 0.5,
	}
	data, err := st.MustNew(in).Pack()
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	if len(data) != int(Layout(line).Size) {
		t.Fatalf("len = %d, want %d", len(data), Layout(line).Size)
	}
	rec, err := st.Unpack(data)
	if err != nil {
		t.Fatalf("Unpack failed: %v", err)
	}
	if diff := pretty.Compare(in, rec.AsMap()); diff != "" {
		t.Errorf("diff (-want +got):\n%s", diff)
	}
}

func TestFromRecord_Variant(t *testing.T) {
	shape := &wit.TypeDef{Kind: &wit.Variant{Cases: []wit.Case{
		{Name: "empty"},
		{Name: "circle", Type: wit.F32{}},
		{Name: "rect", Type: &wit.TypeDef{Kind: &wit.Tuple{Types: []wit.Type{wit.U16{}, wit.U16{}}}}},
	}}}
	st := MustFromRecord("Shape", record(wit.Field{Name: "shape", Type: shape}))

	data, err := st.MustNew(map[string]any{
		"shape": map[string]any{"case": "rect", "value": map[string]any{"0": 3, "1": 4}},
	}).Pack()
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	want := []byte{0x02, 0, 0, 0, 0x03, 0, 0x04, 0}
	if !bytes.Equal(data, want) {
		t.Errorf("Pack() = % x, want % x", data, want)
	}

	rec, err := st.Unpack([]byte{0x00, 0, 0, 0, 0, 0, 0, 0})
	if err != nil {
		t.Fatalf("Unpack failed: %v", err)
	}
	v, _ := rec.Get("shape")
	inner, ok := v.(*ds.Record)
	if !ok {
		t.Fatalf("shape = %T, want a record", v)
	}
	if c, _ := inner.Get("case"); c != "empty" {
		t.Errorf("case = %v, want empty", c)
	}
}

func TestFromRecord_RejectsBadData(t *testing.T) {
	st := MustFromRecord("Sample", sample())
	good, err := st.MustNew(map[string]any{
		"tag": 0, "x": 0, "ok": false, "color": "red", "perms": []string{},
		"res": map[string]any{"case": "ok", "value": 0}, "ch": 'a',
		"pair": map[string]any{"0": 0, "1": 0},
	}).Pack()
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}

	tests := []struct {
		name   string
		offset int
		patch  []byte
		path   string
	}{
		{"enum out of range", 9, []byte{3}, "Sample.color"},
		{"flag bit beyond declared", 10, []byte{0x08}, "Sample.perms"},
		{"surrogate char", 24, []byte{0x00, 0xD8, 0, 0}, "Sample.ch"},
		{"result case", 16, []byte{2}, "Sample.res.case"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := bytes.Clone(good)
			copy(data[tt.offset:], tt.patch)
			_, err := st.Unpack(data)
			if errors.KindOf(err) != errors.KindInvalidData {
				t.Fatalf("error = %v, want invalid data", err)
			}
			if !bytes.Contains([]byte(err.Error()), []byte(tt.path)) {
				t.Errorf("error %q does not name %s", err, tt.path)
			}
		})
	}
}

func TestFromRecord_SchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		typ  wit.Type
	}{
		{"not a typedef", wit.U32{}},
		{"not a record", &wit.TypeDef{Kind: &wit.Enum{Cases: []wit.EnumCase{{Name: "a"}}}}},
		{"too many flags", record(wit.Field{Name: "f", Type: &wit.TypeDef{Kind: &wit.Flags{Flags: make([]wit.Flag, 65)}}})},
		{"nested option", record(wit.Field{Name: "o", Type: &wit.TypeDef{Kind: &wit.Option{
			Type: &wit.TypeDef{Kind: &wit.Option{Type: wit.U8{}}},
		}}})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FromRecord("T", tt.typ); !errors.IsSchema(err) {
				t.Errorf("error = %v, want a schema error", err)
			}
		})
	}
}

// memoryWASM is a minimal WASM module with 1 page of memory exported as "memory"
var memoryWASM = []byte{
	0x00, 0x61, 0x73, 0x6d,
	0x01, 0x00, 0x00, 0x00,
	0x05, 0x03, 0x01, 0x00, 0x01,
	0x07, 0x0a, 0x01,
	0x06, 0x6d, 0x65, 0x6d, 0x6f, 0x72, 0x79,
	0x02, 0x00,
}

func guestMemory(t *testing.T) api.Memory {
	t.Helper()
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	t.Cleanup(func() { rt.Close(ctx) })

	mod, err := rt.Instantiate(ctx, memoryWASM)
	if err != nil {
		t.Fatalf("failed to instantiate: %v", err)
	}
	return mod.ExportedMemory("memory")
}

func message() *wit.TypeDef {
	return record(
		wit.Field{Name: "id", Type: wit.U32{}},
		wit.Field{Name: "name", Type: wit.String{}},
		wit.Field{Name: "tags", Type: &wit.TypeDef{Kind: &wit.List{Type: wit.String{}}}},
		wit.Field{Name: "nums", Type: &wit.TypeDef{Kind: &wit.List{Type: wit.U16{}}}},
		wit.Field{Name: "nick", Type: &wit.TypeDef{Kind: &wit.Option{Type: wit.String{}}}},
	)
}

func writeU32s(t *testing.T, mem api.Memory, addr uint32, vals ...uint32) {
	t.Helper()
	for i, v := range vals {
		if !mem.WriteUint32Le(addr+uint32(4*i), v) {
			t.Fatalf("write at %d out of range", addr+uint32(4*i))
		}
	}
}

func TestFromRecord_LoadFromMemory(t *testing.T) {
	mem := guestMemory(t)
	st := MustFromRecord("Message", message())

	// id, name, tags, nums, then option<string>: present byte and pointer.
	writeU32s(t, mem, 0x100, 42, 0x200, 5, 0x300, 2, 0x500, 3, 1, 0x600, 4)
	mem.Write(0x200, []byte("hello"))
	writeU32s(t, mem, 0x300, 0x400, 1, 0x410, 2)
	mem.Write(0x400, []byte("a"))
	mem.Write(0x410, []byte("bc"))
	mem.Write(0x500, []byte{1, 0, 2, 0, 3, 0})
	mem.Write(0x600, []byte("nick"))

	rec, err := memio.Load(mem, st, 0x100)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := map[string]any{
		"id":   42,
		"name": "hello",
		"tags": []any{"a", "bc"},
		"nums": []any{1, 2, 3},
		"nick": "nick",
	}
	if diff := pretty.Compare(want, rec.AsMap()); diff != "" {
		t.Errorf("Load() diff (-want +got):\n%s", diff)
	}
}

func TestFromRecord_LoadRejects(t *testing.T) {
	mem := guestMemory(t)
	st := MustFromRecord("Message", message())

	t.Run("string past end of memory", func(t *testing.T) {
		writeU32s(t, mem, 0x100, 1, 0xFFF0, 0x100, 0, 0, 0, 0, 0, 0, 0)
		if _, err := memio.Load(mem, st, 0x100); errors.KindOf(err) != errors.KindInsufficientData {
			t.Errorf("error = %v, want insufficient data", err)
		}
	})
	t.Run("invalid utf-8", func(t *testing.T) {
		writeU32s(t, mem, 0x100, 1, 0x200, 2, 0, 0, 0, 0, 0, 0, 0)
		mem.Write(0x200, []byte{0xC3, 0x28})
		_, err := memio.Load(mem, st, 0x100)
		if errors.KindOf(err) != errors.KindInvalidData {
			t.Errorf("error = %v, want invalid data", err)
		}
	})
}

func TestFromRecord_PackPointersUnsupported(t *testing.T) {
	st := MustFromRecord("Message", message())
	_, err := st.MustNew(map[string]any{"id": 1, "name": "x"}).Pack()
	if errors.KindOf(err) != errors.KindUnsupported {
		t.Errorf("error = %v, want unsupported", err)
	}
}

package datastruct

import (
	"bytes"
	stderrors "errors"
	"io"
	"strings"
	"testing"

	"github.com/kylelemons/godebug/pretty"

	"github.com/wippyai/datastruct/errors"
)

type opcode uint8

func (o opcode) String() string {
	switch o {
	case 1:
		return "Ping"
	case 2:
		return "Pong"
	}
	return "Unknown"
}

func TestSwitch_KeyForms(t *testing.T) {
	msg := NewStruct("Msg",
		Field("op", "B").As(TypeFor[opcode]()),
		Switch("body", Union(Uint16, Bytes, Bool), Ref[any]("op"),
			On("Ping", Uint16, Elem("<H")),
			On("_2", Bytes, Raw("", Lit(1))),
			Otherwise(Bool, Elem("?")),
		),
	)
	wide := NewStruct("Wide",
		Field("wide", "?"),
		Switch("v", Union(Uint8, Uint16), Ref[any]("wide"),
			On("true", Uint16, Elem("<H")),
			On("false", Uint8, Elem("B")),
		),
	)

	tests := []struct {
		name string
		st   *StructType
		data []byte
		want map[string]any
	}{
		{name: "enum name", st: msg, data: []byte{1, 0x34, 0x12}, want: map[string]any{"op": opcode(1), "body": 0x1234}},
		{name: "integer key", st: msg, data: []byte{2, 0xAB}, want: map[string]any{"op": opcode(2), "body": []byte{0xAB}}},
		{name: "fallback", st: msg, data: []byte{9, 1}, want: map[string]any{"op": opcode(9), "body": true}},
		{name: "bool true", st: wide, data: []byte{1, 0x01, 0x02}, want: map[string]any{"wide": true, "v": 0x0201}},
		{name: "bool false", st: wide, data: []byte{0, 0x07}, want: map[string]any{"wide": false, "v": 7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := tt.st.Unpack(tt.data)
			if err != nil {
				t.Fatalf("Unpack() error = %v", err)
			}
			if diff := pretty.Compare(tt.want, rec.AsMap()); diff != "" {
				t.Errorf("Unpack() diff (-want +got):\n%s", diff)
			}
			data, err := rec.Pack()
			if err != nil {
				t.Fatalf("Pack() error = %v", err)
			}
			if !bytes.Equal(data, tt.data) {
				t.Errorf("Pack() = % x, want % x", data, tt.data)
			}
		})
	}
}

func TestSwitch_Unmatched(t *testing.T) {
	st := NewStruct("S",
		Field("k", "B"),
		Switch("v", Uint8, Ref[any]("k"), On(1, Uint8, Elem("B"))),
	)
	_, err := st.Unpack([]byte{5, 0})
	if errors.KindOf(err) != errors.KindUnmatchedCase {
		t.Fatalf("Unpack() error = %v, want unmatched_case", err)
	}
	if !errors.IsDecode(err) {
		t.Errorf("IsDecode(%v) = false", err)
	}
}

func TestRepeat_FillPolicy(t *testing.T) {
	withDefault := NewStruct("L", Repeat("v", ListOf(Uint8), Elem("B").Default(0)).Count(Lit(3)))
	noDefault := NewStruct("N", Repeat("v", ListOf(Uint8), Elem("B")).Count(Lit(3)))
	fill := DefaultConfig().Clone()
	fill.RepeatFill = true

	tests := []struct {
		name     string
		st       *StructType
		items    []any
		cfg      *Config
		want     []byte
		wantKind errors.Kind
	}{
		{name: "exact", st: withDefault, items: []any{1, 2, 3}, want: []byte{1, 2, 3}},
		{name: "short strict", st: withDefault, items: []any{1, 2}, wantKind: errors.KindCountMismatch},
		{name: "long strict", st: withDefault, items: []any{1, 2, 3, 4}, wantKind: errors.KindCountMismatch},
		{name: "short filled", st: withDefault, items: []any{1, 2}, cfg: fill, want: []byte{1, 2, 0}},
		{name: "long truncated", st: withDefault, items: []any{1, 2, 3, 4}, cfg: fill, want: []byte{1, 2, 3}},
		{name: "short without default", st: noDefault, items: []any{1}, cfg: fill, wantKind: errors.KindCountMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tt.st.MustNew(map[string]any{"v": tt.items})
			got, err := rec.Pack(WithConfig(tt.cfg))
			if tt.wantKind != "" {
				if errors.KindOf(err) != tt.wantKind {
					t.Fatalf("Pack() error = %v, want %s", err, tt.wantKind)
				}
				if !errors.IsEncode(err) {
					t.Errorf("IsEncode(%v) = false", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Pack() error = %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Pack() = % x, want % x", got, tt.want)
			}
		})
	}
}

func TestRepeat_StopConditions(t *testing.T) {
	tests := []struct {
		name string
		st   *StructType
		data []byte
		want []any
	}{
		{
			name: "terminator",
			st: NewStruct("Z", Repeat("v", ListOf(Uint8), Elem("B")).
				Last(Func(func(ctx *Context) (bool, error) { return ctx.P.Item == uint8(0), nil }))),
			data: []byte{4, 5, 0},
			want: []any{4, 5, 0},
		},
		{
			name: "byte length",
			st:   NewStruct("V", VarList("v", ListOf(Uint16), Lit(4), Elem("<H"))),
			data: []byte{1, 0, 2, 0},
			want: []any{1, 2},
		},
		{
			name: "guard",
			st: NewStruct("W", Repeat("v", ListOf(Uint8), Elem("B")).
				When(Func(func(ctx *Context) (bool, error) { return ctx.P.I < 2, nil }))),
			data: []byte{7, 8},
			want: []any{7, 8},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := tt.st.Unpack(tt.data)
			if err != nil {
				t.Fatalf("Unpack() error = %v", err)
			}
			got, _ := rec.Get("v")
			if diff := pretty.Compare(tt.want, got); diff != "" {
				t.Errorf("v diff (-want +got):\n%s", diff)
			}
			data, err := rec.Pack()
			if err != nil {
				t.Fatalf("Pack() error = %v", err)
			}
			if !bytes.Equal(data, tt.data) {
				t.Errorf("Pack() = % x, want % x", data, tt.data)
			}
		})
	}
}

func TestRepeat_ByteLengthOverflow(t *testing.T) {
	st := NewStruct("V",
		Field("len", "B").Build(Lit[any](4)),
		VarList("items", ListOf(Uint16), Ref[int]("len"), Elem("<H")),
	)
	rec := st.MustNew(map[string]any{"items": []any{1, 2, 3}})
	if _, err := rec.Pack(); errors.KindOf(err) != errors.KindOverflow {
		t.Errorf("Pack() error = %v, want overflow", err)
	}
	if _, err := rec.Sizeof(); errors.KindOf(err) != errors.KindOverflow {
		t.Errorf("Sizeof() error = %v, want overflow", err)
	}

	rec = st.MustNew(map[string]any{"items": []any{1, 2}})
	data, err := rec.Pack()
	if err != nil {
		t.Fatalf("Pack() error = %v", err)
	}
	if !bytes.Equal(data, []byte{4, 1, 0, 2, 0}) {
		t.Errorf("Pack() = % x", data)
	}
}

func TestErrors_PathAnnotation(t *testing.T) {
	_, err := countedList().Unpack([]byte{0x03, 0x0A, 0x00, 0x14})
	var e *errors.Error
	if !stderrors.As(err, &e) {
		t.Fatalf("Unpack() error = %v, want *errors.Error", err)
	}
	if e.Kind != errors.KindInsufficientData || e.Phase != errors.PhaseDecode {
		t.Errorf("error = %s/%s, want decode/insufficient_data", e.Phase, e.Kind)
	}
	if got := strings.Join(e.Path, "."); got != "B.items[1]" {
		t.Errorf("Path = %q, want B.items[1]", got)
	}

	st := shape()
	_, err = st.Unpack([]byte{0x53, 0x48, 0x50, 0x31, 2, 0xFF, 0xFF, 0xFF, 1, 0, 5, 0})
	if !stderrors.As(err, &e) {
		t.Fatalf("Unpack() error = %v, want *errors.Error", err)
	}
	if got := strings.Join(e.Path, "."); got != "Shape.points[0].y" {
		t.Errorf("Path = %q, want Shape.points[0].y", got)
	}
}

func TestErrors_CallbackWrapped(t *testing.T) {
	boom := stderrors.New("boom")
	st := NewStruct("A", Field("x", "B"), Action(func(*Context) error { return boom }))
	_, err := st.Unpack([]byte{1})
	if !stderrors.Is(err, boom) {
		t.Fatalf("Unpack() error = %v, want to wrap boom", err)
	}
	if errors.KindOf(err) != errors.KindCallback || !errors.IsDecode(err) {
		t.Errorf("error = %v, want decode/callback", err)
	}
}

func TestPack_FieldMissing(t *testing.T) {
	st := NewStruct("M", Field("a", "B"), Field("b", "B"))
	_, err := st.MustNew(map[string]any{"a": 1}).Pack()
	if errors.KindOf(err) != errors.KindFieldMissing {
		t.Fatalf("Pack() error = %v, want field_missing", err)
	}
	var e *errors.Error
	if stderrors.As(err, &e) && strings.Join(e.Path, ".") != "M.b" {
		t.Errorf("Path = %v, want M.b", e.Path)
	}
}

func TestPack_FieldMissingInCase(t *testing.T) {
	_, err := taggedData().MustNew(map[string]any{"kind": 2}).Pack()
	if errors.KindOf(err) != errors.KindFieldMissing {
		t.Fatalf("Pack() error = %v, want field_missing", err)
	}
	if strings.Contains(err.Error(), `""`) {
		t.Errorf("error names an empty field: %v", err)
	}
	var e *errors.Error
	if stderrors.As(err, &e) && strings.Join(e.Path, ".") != "C.data" {
		t.Errorf("Path = %v, want C.data", e.Path)
	}
}

func TestPack_Overflow(t *testing.T) {
	st := NewStruct("O", Field("a", "B"))
	_, err := st.MustNew(map[string]any{"a": 256}).Pack()
	if errors.KindOf(err) != errors.KindOverflow || !errors.IsEncode(err) {
		t.Fatalf("Pack() error = %v, want encode/overflow", err)
	}
}

func TestPadding(t *testing.T) {
	st := NewStruct("P", Field("a", "B"), Padding(Lit(2)), Field("b", "B"), Align(4).Pattern(0x00))
	data, err := st.MustNew(map[string]any{"a": 1, "b": 2}).Pack()
	if err != nil {
		t.Fatalf("Pack() error = %v", err)
	}
	if want := []byte{1, 0xFF, 0xFF, 2}; !bytes.Equal(data, want) {
		t.Errorf("Pack() = % x, want % x", data, want)
	}

	checked := NewStruct("P", Field("a", "B"), Padding(Lit(2)), Field("b", "B")).WithOptions(CheckPadding(true))
	if _, err := checked.Unpack([]byte{1, 0xFF, 0xFF, 2}); err != nil {
		t.Errorf("Unpack(good padding) error = %v", err)
	}
	_, err = checked.Unpack([]byte{1, 0xFF, 0x00, 2})
	if errors.KindOf(err) != errors.KindBadPadding {
		t.Errorf("Unpack(bad padding) error = %v, want bad_padding", err)
	}
	if _, err := st.Unpack([]byte{1, 0x00, 0x00, 2}); err != nil {
		t.Errorf("Unpack(unchecked) error = %v", err)
	}

	zero := NewStruct("Z", Field("a", "B"), Padding(Lit(3))).WithOptions(PaddingPattern(0xAB, 0xCD))
	data, err = zero.MustNew(map[string]any{"a": 1}).Pack()
	if err != nil {
		t.Fatalf("Pack() error = %v", err)
	}
	if want := []byte{1, 0xAB, 0xCD, 0xAB}; !bytes.Equal(data, want) {
		t.Errorf("Pack(pattern) = % x, want % x", data, want)
	}
}

func TestAlign_NestedIsRelative(t *testing.T) {
	inner := NewStruct("Inner", Field("x", "B"), Align(4))
	outer := NewStruct("Outer", Field("tag", "B"), Sub("in", inner), Field("abs", "B"), Align(4).Absolute())
	rec := outer.MustNew(map[string]any{"tag": 1, "in": map[string]any{"x": 2}, "abs": 3})
	data, err := rec.Pack()
	if err != nil {
		t.Fatalf("Pack() error = %v", err)
	}
	want := []byte{1, 2, 0xFF, 0xFF, 0xFF, 3, 0xFF, 0xFF}
	if !bytes.Equal(data, want) {
		t.Errorf("Pack() = % x, want % x", data, want)
	}
	n, err := outer.Sizeof(rec)
	if err != nil || n != len(want) {
		t.Errorf("Sizeof() = %d, %v, want %d", n, err, len(want))
	}
}

func TestSeekAndVirtual(t *testing.T) {
	st := NewStruct("S",
		Field("a", "B"),
		SeekTo(4),
		Field("b", "B"),
		TellInto("_end"),
		Virtual("end", Int64, Ref[any]("_end")),
	)
	data, err := st.MustNew(map[string]any{"a": 1, "b": 2}).Pack()
	if err != nil {
		t.Fatalf("Pack() error = %v", err)
	}
	if want := []byte{1, 0, 0, 0, 2}; !bytes.Equal(data, want) {
		t.Fatalf("Pack() = % x, want % x", data, want)
	}
	rec, err := st.Unpack(data)
	if err != nil {
		t.Fatalf("Unpack() error = %v", err)
	}
	if diff := pretty.Compare(map[string]any{"a": 1, "b": 2, "end": 5}, rec.AsMap()); diff != "" {
		t.Errorf("Unpack() diff (-want +got):\n%s", diff)
	}
}

func TestUnpackFrom_LeavesPosition(t *testing.T) {
	r := bytes.NewReader([]byte{1, 0, 0, 0, 2, 0, 0, 0, 0xEE})
	st := NewStruct("AB", Field("a", "<I"), Field("b", "<I"))
	if _, err := st.UnpackFrom(r); err != nil {
		t.Fatalf("UnpackFrom() error = %v", err)
	}
	pos, _ := r.Seek(0, io.SeekCurrent)
	if pos != 8 {
		t.Errorf("position = %d, want 8", pos)
	}
}

func TestEnvAndArgs(t *testing.T) {
	item := NewStruct("Item", Raw("data", Ref[int]("width")))
	st := NewStruct("Table",
		Field("width", "B"),
		Sub("first", item).Arg("width", Ref[any]("width")),
		Raw("tail", Ref[int]("tail_len")),
	)
	rec, err := st.Unpack([]byte{2, 0xAA, 0xBB, 0xCC}, WithEnv("tail_len", 1))
	if err != nil {
		t.Fatalf("Unpack() error = %v", err)
	}
	first, _ := rec.Get("first")
	if data, _ := first.(*Record).Get("data"); !bytes.Equal(data.([]byte), []byte{0xAA, 0xBB}) {
		t.Errorf("first.data = % x", data)
	}
	if tail, _ := rec.Get("tail"); !bytes.Equal(tail.([]byte), []byte{0xCC}) {
		t.Errorf("tail = % x", tail)
	}
}

func TestEndianness(t *testing.T) {
	le := NewStruct("LE", Field("v", "H"))
	be := NewStruct("BE", Field("v", "H")).WithOptions(Endian(Network))
	mixed := NewStruct("Mixed", Field("v", "<H")).WithOptions(Endian(Big))
	tests := []struct {
		st   *StructType
		want []byte
	}{
		{le, []byte{0x34, 0x12}},
		{be, []byte{0x12, 0x34}},
		{mixed, []byte{0x34, 0x12}},
	}
	for _, tt := range tests {
		t.Run(tt.st.Name(), func(t *testing.T) {
			data, err := tt.st.MustNew(map[string]any{"v": 0x1234}).Pack()
			if err != nil {
				t.Fatalf("Pack() error = %v", err)
			}
			if !bytes.Equal(data, tt.want) {
				t.Errorf("Pack() = % x, want % x", data, tt.want)
			}
		})
	}
}

func TestHooks(t *testing.T) {
	var captured []byte
	start, stop := Buffer(func(data []byte, _ *Context) error {
		captured = append([]byte(nil), data...)
		return nil
	})
	upper := &HookFuncs{
		WriteFunc: func(data []byte, _ *Context) ([]byte, error) { return bytes.ToUpper(data), nil },
		ReadFunc:  func(data []byte, _ *Context) ([]byte, error) { return bytes.ToLower(data), nil },
	}
	st := NewStruct("H",
		Field("n", "B"),
		start,
		HookStart(upper),
		Raw("s", Lit(3)),
		HookEnd(upper),
		stop,
	)
	data, err := st.MustNew(map[string]any{"n": 1, "s": []byte("abc")}).Pack()
	if err != nil {
		t.Fatalf("Pack() error = %v", err)
	}
	if want := []byte{1, 'A', 'B', 'C'}; !bytes.Equal(data, want) {
		t.Errorf("Pack() = %q, want %q", data, want)
	}
	if string(captured) != "abc" {
		t.Errorf("captured on pack = %q, want abc", captured)
	}

	rec, err := st.Unpack(data)
	if err != nil {
		t.Fatalf("Unpack() error = %v", err)
	}
	if s, _ := rec.Get("s"); string(s.([]byte)) != "abc" {
		t.Errorf("s = %q, want abc", s)
	}
	if string(captured) != "ABC" {
		t.Errorf("captured on unpack = %q, want ABC", captured)
	}
}

func TestHooks_EndWithoutStart(t *testing.T) {
	h := &HookFuncs{}
	st := NewStruct("E", Field("a", "B"), HookEnd(h))
	_, err := st.Unpack([]byte{1})
	if errors.KindOf(err) != errors.KindHookState {
		t.Fatalf("Unpack() error = %v, want hook_state", err)
	}
}

func TestPackingGuards(t *testing.T) {
	var seen []string
	note := func(s string) *FieldSpec {
		return Action(func(*Context) error {
			seen = append(seen, s)
			return nil
		})
	}
	st := NewStruct("G",
		Field("a", "B"),
		Cond("_p", NoValue, Packing(Lit(true)), note("pack")),
		Cond("_u", NoValue, Unpacking(Lit(true)), note("unpack")),
	)
	data, err := st.MustNew(map[string]any{"a": 1}).Pack()
	if err != nil {
		t.Fatalf("Pack() error = %v", err)
	}
	if _, err := st.Unpack(data); err != nil {
		t.Fatalf("Unpack() error = %v", err)
	}
	if diff := pretty.Compare([]string{"pack", "unpack"}, seen); diff != "" {
		t.Errorf("actions diff (-want +got):\n%s", diff)
	}
}

func TestContext_Sizeof(t *testing.T) {
	var size int
	st := NewStruct("B",
		Field("count", "B").Build(LenOf("items")),
		Repeat("items", ListOf(Uint16), Elem("<H")).Count(Ref[int]("count")),
		Action(func(ctx *Context) error {
			n, err := ctx.Sizeof("items")
			size = n
			return err
		}),
	)
	if _, err := st.Unpack([]byte{3, 1, 0, 2, 0, 3, 0}); err != nil {
		t.Fatalf("Unpack() error = %v", err)
	}
	if size != 6 {
		t.Errorf("Sizeof(items) = %d, want 6", size)
	}
}

package main

import (
	"bytes"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/kylelemons/godebug/pretty"

	ds "github.com/wippyai/datastruct"
	"github.com/wippyai/datastruct/formats/sealed"
	"github.com/wippyai/datastruct/formats/uf2"
)

func TestParseConfig(t *testing.T) {
	cfg, err := parseConfig([]byte("endianness: network\npadding_pattern: [0, 170]\npadding_check: true\n"))
	if err != nil {
		t.Fatalf("parseConfig failed: %v", err)
	}
	want := &ds.Config{
		Endianness:     ds.Big,
		PaddingPattern: []byte{0, 170},
		PaddingCheck:   true,
	}
	if diff := pretty.Compare(want, cfg); diff != "" {
		t.Errorf("config diff (-want +got):\n%s", diff)
	}

	if _, err := parseConfig([]byte("endianness: middle\n")); err == nil {
		t.Error("expected an error for an unknown endianness")
	}
	if _, err := parseConfig([]byte("padding_check: [\n")); err == nil {
		t.Error("expected an error for malformed YAML")
	}
}

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := parseConfig(nil)
	if err != nil {
		t.Fatalf("parseConfig failed: %v", err)
	}
	if cfg.Endianness != ds.Little || !bytes.Equal(cfg.PaddingPattern, []byte{0xFF}) {
		t.Errorf("config = %+v, want the defaults", cfg)
	}
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestRun_UF2(t *testing.T) {
	firmware := bytes.Repeat([]byte{0xAB}, 300)
	data, err := uf2.Split(firmware, 0x2000, 0).Pack()
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	path := writeFile(t, "fw.uf2", data)
	out := filepath.Join(filepath.Dir(path), "fw.bin")

	var buf bytes.Buffer
	if err := run([]string{"-f", "uf2", "-x", out, path}, &buf); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	for _, want := range []string{"blocks: list (2)", "[1]: UF2Block", "target_addr: 8448", "wrote 300 bytes at 0x2000"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("output lacks %q:\n%s", want, buf.String())
		}
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read extracted payload: %v", err)
	}
	if !bytes.Equal(got, firmware) {
		t.Error("extracted payload differs from the firmware")
	}
}

func TestRun_Sealed(t *testing.T) {
	key := []byte("0123456789abcdef")
	data, err := sealed.Seal(key, []byte("hello"), sealed.None)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	path := writeFile(t, "blob.seal", data)

	var buf bytes.Buffer
	if err := run([]string{"--format", "sealed", "--key", hex.EncodeToString(key), path}, &buf); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !strings.Contains(buf.String(), "payload: 68656c6c6f") {
		t.Errorf("output lacks the payload:\n%s", buf.String())
	}

	if err := run([]string{"-f", "sealed", "-k", hex.EncodeToString([]byte("fedcba9876543210")), path}, &buf); err == nil {
		t.Error("expected an error for the wrong key")
	}
}

func TestRun_Errors(t *testing.T) {
	path := writeFile(t, "empty", nil)
	tests := []struct {
		name string
		args []string
	}{
		{"no file", []string{"-f", "uf2"}},
		{"no format", []string{path}},
		{"unknown format", []string{"-f", "png", path}},
		{"bad key", []string{"-f", "sealed", "-k", "zz", path}},
		{"missing config", []string{"-f", "uf2", "-c", filepath.Join(t.TempDir(), "none.yaml"), path}},
		{"extract from dhcp", []string{"-f", "dhcp", "-x", "out", path}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := run(tt.args, &buf); err == nil {
				t.Errorf("run(%v) succeeded", tt.args)
			}
		})
	}
}

func press(m *interactiveModel, keys ...tea.KeyMsg) {
	for _, k := range keys {
		m.Update(k)
	}
}

func TestInteractiveModel_Navigate(t *testing.T) {
	img := uf2.Split(bytes.Repeat([]byte{1}, 10), 0x100, 0)
	m := newInteractiveModel("fw.uf2", nil, options{})
	m.Update(loadedMsg{rec: img, size: 512})

	if got := m.path(); got != "UF2" {
		t.Fatalf("path = %q, want UF2", got)
	}

	enter := tea.KeyMsg{Type: tea.KeyEnter}
	down := tea.KeyMsg{Type: tea.KeyDown}
	esc := tea.KeyMsg{Type: tea.KeyEsc}

	press(m, enter, enter)
	if got := m.path(); got != "UF2.blocks.[0]" {
		t.Fatalf("path = %q", got)
	}

	// flags, target_addr
	press(m, down, enter)
	if m.state != stateShowValue {
		t.Fatalf("state = %v, want value view", m.state)
	}
	if !strings.Contains(m.View(), "256") {
		t.Errorf("value view:\n%s", m.View())
	}

	press(m, esc, esc)
	if got := m.path(); got != "UF2.blocks" {
		t.Errorf("path after back = %q", got)
	}
}

func TestInteractiveModel_Filter(t *testing.T) {
	img := uf2.Split([]byte{1, 2, 3}, 0, 0)
	m := newInteractiveModel("fw.uf2", nil, options{})
	m.Update(loadedMsg{rec: img})
	press(m, tea.KeyMsg{Type: tea.KeyEnter}, tea.KeyMsg{Type: tea.KeyEnter})

	press(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("/")})
	if m.state != stateFilter {
		t.Fatalf("state = %v, want filter", m.state)
	}
	press(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("num")}, tea.KeyMsg{Type: tea.KeyEnter})

	vis := m.visible()
	if len(vis) != 1 || m.top().entries[vis[0]].name != "num_blocks" {
		t.Errorf("visible entries = %v", vis)
	}
}

func TestInteractiveModel_LoadError(t *testing.T) {
	m := newInteractiveModel(filepath.Join(t.TempDir(), "missing"), formats["uf2"], options{})
	m.Update(m.load())
	if m.err == nil || !strings.Contains(m.View(), "Error") {
		t.Errorf("view = %q, want an error", m.View())
	}
}

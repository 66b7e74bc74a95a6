package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"

	ds "github.com/wippyai/datastruct"
)

// entry is one named child of a record, list or bitfield map.
type entry struct {
	name  string
	value any
}

// children lists the entries of a composite value. ok is false for leaves.
func children(v any) (entries []entry, ok bool) {
	switch x := v.(type) {
	case *ds.Record:
		for _, name := range x.Names() {
			val, _ := x.Get(name)
			entries = append(entries, entry{name: name, value: val})
		}
		return entries, true
	case []any:
		for i, item := range x {
			entries = append(entries, entry{name: fmt.Sprintf("[%d]", i), value: item})
		}
		return entries, true
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			entries = append(entries, entry{name: k, value: x[k]})
		}
		return entries, true
	}
	return nil, false
}

// summary is the one-line form of a value.
func summary(v any) string {
	switch x := v.(type) {
	case *ds.Record:
		return x.Type().Name()
	case []any:
		return fmt.Sprintf("list (%d)", len(x))
	case map[string]any:
		return fmt.Sprintf("map (%d)", len(x))
	case []byte:
		if len(x) > 16 {
			return fmt.Sprintf("%x... (%d bytes)", x[:16], len(x))
		}
		return fmt.Sprintf("%x", x)
	case string:
		return fmt.Sprintf("%q", x)
	case nil:
		return "none"
	}
	return fmt.Sprintf("%v", v)
}

// detail is the full form of a leaf value.
func detail(v any) string {
	if b, ok := v.([]byte); ok {
		return strings.TrimRight(hex.Dump(b), "\n")
	}
	return summary(v)
}

func writeTree(w io.Writer, v any, depth int) {
	entries, _ := children(v)
	indent := strings.Repeat("  ", depth)
	for _, e := range entries {
		fmt.Fprintf(w, "%s%s: %s\n", indent, e.name, summary(e.value))
		if _, ok := children(e.value); ok {
			writeTree(w, e.value, depth+1)
		}
	}
}

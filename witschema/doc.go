// Package witschema derives structure types from WIT record definitions,
// laid out the way the component model canonical ABI stores them in linear
// memory.
//
//	point := &wit.TypeDef{Kind: &wit.Record{Fields: []wit.Field{
//		{Name: "x", Type: wit.S32{}},
//		{Name: "y", Type: wit.S32{}},
//	}}}
//	st := witschema.MustFromRecord("Point", point)
//	rec, err := memio.Load(mem, st, ptr)
//
// Fixed-size members (numbers, bool, char, enums, flags, records, tuples,
// options, variants and results) pack and unpack. Strings and lists are
// stored behind a pointer; they unpack from guest memory and report
// KindUnsupported when packed.
package witschema

// Package datastruct declares binary structures as ordered, typed fields and
// converts between byte streams and records in both directions.
//
// A schema is a StructType built from field constructors. Every field has a
// kind that decides how the traversal treats it: FIELD reads or writes a
// primitive or nested structure, SEEK and PADDING move the stream, ACTION
// runs code, HOOK and IO intercept the bytes, and REPEAT, COND and SWITCH
// wrap other fields. Parameters such as lengths, counts and layouts may be
// literals or computed from values resolved earlier (Expr).
//
// # Architecture Overview
//
//	datastruct/          Schema, validator, traversal engine, hooks, checksums
//	├── errors/          Structured errors with phase, kind and field path
//	├── internal/        Format mini-language, numeric coercion, byte buffers
//	├── adapters/        Reusable value adapters (network, time, text, compression)
//	├── memio/           Streams over wazero guest memory
//	├── witschema/       Structure types generated from WIT records
//	├── formats/         Bundled schemas (UF2, DHCP, sealed containers)
//	└── cmd/dsview/      Command line and interactive viewer
//
// # Quick Start
//
//	header := datastruct.NewStruct("Header",
//	    datastruct.Const("magic", "<I", uint32(0x46546C50)),
//	    datastruct.Field("count", "<H").Build(datastruct.LenOf("items")),
//	    datastruct.Repeat("items", datastruct.ListOf(datastruct.Uint16),
//	        datastruct.Elem("<H")).Count(datastruct.Ref[int]("count")),
//	)
//
//	rec := header.MustNew(map[string]any{"items": []any{1, 2, 3}})
//	data, err := rec.Pack()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	back, err := header.Unpack(data)
//
// # Thread Safety
//
// A StructType is validated once on first use and may then be shared
// between goroutines. Each Pack, Unpack or Sizeof call owns its context;
// hooks keep running state in the call's Global, never in the hook value.
//
// # Errors
//
// Every failure is an *errors.Error carrying the phase (schema, decode,
// encode), a kind and the path of the field being processed, for example
// "Header.items[2]".
package datastruct

// Package adapters provides reusable datastruct.Adapter implementations and
// the field constructors that pair them with a layout.
//
// Every constructor returns an ordinary *datastruct.FieldSpec, so the usual
// setters (Default, Build, Verify, ...) still apply:
//
//	datastruct.NewStruct("Lease",
//		adapters.IPv4("addr"),
//		adapters.MAC("hw"),
//		adapters.UnixTime("expires", "<I"),
//		datastruct.Field("zlen", "<H").Build(datastruct.PackedLen("blob")),
//		adapters.Zstd("blob", datastruct.Ref[int]("zlen")),
//	)
//
// Adapters report failures as datastruct errors tagged with the phase of
// the running call, so a malformed address shows up as a decode error with
// the field path attached.
package adapters

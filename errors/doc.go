// Package errors provides structured error types for the datastruct codec.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The three phases map to the codec's error taxonomy:
//
//	PhaseSchema  schema definition errors, raised once at first use of a type
//	PhaseDecode  unpack errors (short reads, bad padding, checksum mismatch)
//	PhaseEncode  pack and sizeof errors (count mismatch, missing values)
//
// The Error type carries the dotted field path that was active when the failure
// happened. The path is attached once, at the outermost pack/unpack/sizeof call.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseDecode, errors.KindInsufficientData).
//		Path("Header", "magic").
//		Detail("want %d bytes, got %d", 4, 1).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.CountMismatch(3, 5)
//	err := errors.ChecksumMismatch("block", read, calculated)
//
// All errors implement the standard error interface and support errors.Is/As.
// IsSchema, IsDecode and IsEncode match any error of the given phase.
package errors

package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseSchema Phase = "schema" // schema validation (SchemaError)
	PhaseDecode Phase = "decode" // bytes to record (DecodeError)
	PhaseEncode Phase = "encode" // record to bytes, sizing included (EncodeError)
	PhaseConfig Phase = "config" // configuration loading
)

// Kind categorizes the error
type Kind string

const (
	KindTypeMismatch     Kind = "type_mismatch"
	KindInvalidSchema    Kind = "invalid_schema"
	KindDuplicateField   Kind = "duplicate_field"
	KindInvalidFormat    Kind = "invalid_format"
	KindInsufficientData Kind = "insufficient_data"
	KindBadPadding       Kind = "bad_padding"
	KindChecksum         Kind = "checksum_mismatch"
	KindUnmatchedCase    Kind = "unmatched_case"
	KindCountMismatch    Kind = "count_mismatch"
	KindFieldMissing     Kind = "field_missing"
	KindInvalidData      Kind = "invalid_data"
	KindOverflow         Kind = "overflow"
	KindUnsupported      Kind = "unsupported"
	KindHookState        Kind = "hook_state"
	KindCallback         Kind = "callback"
	KindIO               Kind = "io"
)

// Error is the structured error type used throughout the module
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	GoType string
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.GoType != "" {
		b.WriteString(": Go type ")
		b.WriteString(e.GoType)
	}

	if e.Detail != "" {
		if e.GoType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target with an empty Kind matches any error of the same Phase.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		if t.Kind == "" {
			return e.Phase == t.Phase
		}
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Sentinels for errors.Is matching by phase only.
var (
	ErrSchema = &Error{Phase: PhaseSchema}
	ErrDecode = &Error{Phase: PhaseDecode}
	ErrEncode = &Error{Phase: PhaseEncode}
)

// IsSchema reports whether err is a schema definition error
func IsSchema(err error) bool { return stderrors.Is(err, ErrSchema) }

// IsDecode reports whether err was raised while unpacking
func IsDecode(err error) bool { return stderrors.Is(err, ErrDecode) }

// IsEncode reports whether err was raised while packing or sizing
func IsEncode(err error) bool { return stderrors.Is(err, ErrEncode) }

// KindOf returns the kind of the first *Error in the chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Schema creates a schema definition error
func Schema(detail string, args ...any) *Error {
	return New(PhaseSchema, KindInvalidSchema).Detail(detail, args...).Build()
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, goType, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		GoType: goType,
		Detail: detail,
	}
}

// InsufficientData creates an error for a short read or short byte value
func InsufficientData(phase Phase, want, got int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInsufficientData,
		Detail: fmt.Sprintf("not enough bytes: want %d, got %d", want, got),
		Value:  got,
	}
}

// BadPadding creates an invalid padding contents error
func BadPadding(got []byte) *Error {
	preview := got
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindBadPadding,
		Detail: fmt.Sprintf("invalid padding found: %x", preview),
	}
}

// ChecksumMismatch creates a checksum validation error
func ChecksumMismatch(doc string, read, calculated any) *Error {
	detail := fmt.Sprintf("read %v; calculated %v", read, calculated)
	if doc != "" {
		detail = fmt.Sprintf("checksum invalid at %q; %s", doc, detail)
	}
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindChecksum,
		Detail: detail,
		Value:  read,
	}
}

// UnmatchedCase creates an error for a switch discriminant without a case
func UnmatchedCase(phase Phase, key any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnmatchedCase,
		Detail: fmt.Sprintf("unmapped switch key %v (and no default case)", key),
		Value:  key,
	}
}

// CountMismatch creates a repeat count mismatch error
func CountMismatch(count, length int) *Error {
	return &Error{
		Phase:  PhaseEncode,
		Kind:   KindCountMismatch,
		Detail: fmt.Sprintf("list length %d does not match count %d", length, count),
		Value:  length,
	}
}

// FieldMissing creates a missing field error. Unnamed fields, such as the
// base of a Cond or Switch case, are identified by the error path alone.
func FieldMissing(phase Phase, fieldName string) *Error {
	detail := "no value supplied and no default"
	if fieldName != "" {
		detail = fmt.Sprintf("field %q not found", fieldName)
	}
	return &Error{
		Phase:  phase,
		Kind:   KindFieldMissing,
		Detail: detail,
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, value any, targetType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOverflow,
		GoType: targetType,
		Detail: fmt.Sprintf("value %v overflows %s", value, targetType),
		Value:  value,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Annotate attaches path to err, wrapping foreign errors into an *Error
// of the given phase. An *Error that already carries a path is returned as is.
func Annotate(phase Phase, err error, path []string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		if len(e.Path) == 0 {
			e.Path = path
		}
		return err
	}
	return &Error{
		Phase: phase,
		Kind:  KindCallback,
		Cause: err,
		Path:  path,
	}
}

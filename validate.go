package datastruct

import (
	"fmt"

	"github.com/wippyai/datastruct/errors"
)

type validType uint8

const (
	validRepeat validType = iota
	validUnion
	validAny
	validNoValue
	validSimple
)

func validateStruct(t *StructType) error {
	t.index = make(map[string]int, len(t.fields))
	t.spans = make(map[*FieldSpec]span)
	for i, f := range t.fields {
		if f == nil {
			return errors.New(errors.PhaseSchema, errors.KindInvalidSchema).
				Path(t.name).
				Detail("field %d is nil", i).
				Build()
		}
		if f.name == "" {
			return errors.New(errors.PhaseSchema, errors.KindInvalidSchema).
				Path(t.name).
				Detail("field %d (%s) has no name", i, f.kind).
				Build()
		}
		if j, dup := t.index[f.name]; dup {
			kind := "public"
			if !t.fields[j].public || !f.public {
				kind = "non-public"
			}
			return errors.New(errors.PhaseSchema, errors.KindDuplicateField).
				Path(t.name, f.name).
				Detail("%s field %q declared twice (fields %d and %d)", kind, f.name, j, i).
				Build()
		}
		t.index[f.name] = i
		if err := validateField(f, f.typ); err != nil {
			return withPath(err, t.name, f.name)
		}
	}
	return findSpans(t)
}

func withPath(err error, path ...string) error {
	if e, ok := err.(*errors.Error); ok && len(e.Path) == 0 {
		e.Path = path
	}
	return err
}

func typeError(typ *Type, msg string, args ...any) error {
	return errors.TypeMismatch(errors.PhaseSchema, typ.String(), fmt.Sprintf(msg, args...))
}

// producesValue reports whether a field yields a value; special fields and
// wrappers around them do not.
func producesValue(f *FieldSpec) bool {
	switch f.kind {
	case KindRepeat, KindCond:
		return f.base == nil || producesValue(f.base)
	case KindSwitch, KindField:
		return true
	}
	return false
}

func isUnionKind(k Kind) bool { return k == KindCond || k == KindSwitch }

// validateField checks f against its effective declared type. Wrapped base
// fields get their effective type assigned here.
func validateField(f *FieldSpec, typ *Type) error {
	if f.kind == KindField && f.spec == nil {
		if lit, ok := f.format.Literal(); ok {
			spec, err := lit.resolve()
			if err != nil {
				return err
			}
			f.spec = &spec
			if typ == nil {
				typ = codeTypes[spec.Code]
				f.typ = typ
			}
		}
	}
	if typ == nil {
		return errors.Schema("%s field has no declared type", f.kind)
	}

	if !producesValue(f) {
		if typ.tag != tagNoValue {
			return typeError(typ, "use NoValue for special fields")
		}
		if f.base == nil {
			return validateSpecial(f)
		}
		if f.kind != KindCond {
			return typeError(typ, "only Cond and Switch can wrap special fields")
		}
	} else if typ.tag == tagNoValue && !isUnionKind(f.kind) {
		return typeError(typ, "cannot use NoValue for standard fields")
	}

	vt, err := typeUsage(f, typ)
	if err != nil {
		return err
	}
	switch f.kind {
	case KindRepeat:
		return validateRepeat(f, typ, vt)
	case KindCond:
		return validateCond(f, typ, vt)
	case KindSwitch:
		return validateSwitch(f, typ)
	}
	return nil
}

func typeUsage(f *FieldSpec, typ *Type) (validType, error) {
	switch typ.tag {
	case tagList:
		if f.kind != KindRepeat {
			return 0, typeError(typ, "use Repeat for lists")
		}
		return validRepeat, nil
	case tagUnion:
		if !isUnionKind(f.kind) {
			switch {
			case len(typ.members) > 2:
				return 0, typeError(typ, "use Switch for unions of 3 or more types")
			case typ.hasMember(tagNull):
				return 0, typeError(typ, "use Cond for optional types")
			default:
				return 0, typeError(typ, "use Switch or Cond for union types")
			}
		}
		return validUnion, nil
	case tagAny:
		if !isUnionKind(f.kind) {
			return 0, typeError(typ, "Any can only be used with Switch or Cond")
		}
		return validAny, nil
	case tagNoValue:
		if !isUnionKind(f.kind) {
			return 0, typeError(typ, "NoValue can only be used with Switch or Cond")
		}
		return validNoValue, nil
	case tagNull:
		return 0, typeError(typ, "cannot use Null as field type")
	}
	if typ.strct != nil {
		if f.format.IsSet() && f.adapter == nil {
			return 0, typeError(typ, "use Sub for nested structures")
		}
	} else if !f.format.IsSet() && f.base == nil && f.kind != KindSwitch {
		return 0, typeError(typ, "use Field for non-structure types")
	}
	return validSimple, nil
}

func validateSpecial(f *FieldSpec) error {
	var missing string
	switch f.kind {
	case KindSeek:
		if !f.offset.IsSet() {
			missing = "an offset"
		}
	case KindPadding:
		if !f.padLength.IsSet() && !f.padModulus.IsSet() && !f.padOffset.IsSet() {
			missing = "a length, modulus or offset"
		}
	case KindAction:
		if f.action == nil {
			missing = "a function"
		}
	case KindHook:
		if f.hook == nil {
			missing = "a hook"
		}
	case KindIO:
		if f.ioHook == nil {
			missing = "an IO hook"
		}
	}
	if missing != "" {
		return errors.Schema("%s field %q needs %s", f.kind, f.name, missing)
	}
	return nil
}

func validateRepeat(f *FieldSpec, typ *Type, vt validType) error {
	if vt != validRepeat {
		return typeError(typ, "cannot use Repeat for a non-list field")
	}
	if f.base == nil {
		return errors.Schema("Repeat %q has no base field", f.name)
	}
	if f.base.builder.IsSet() && !f.base.always {
		return typeError(typ, "built fields inside Repeat must be always built")
	}
	if typ.elem == nil && f.base.kind == KindField {
		return typeError(typ, "lists of standard fields must be parameterized")
	}
	if !f.repCount.IsSet() && !f.repLength.IsSet() && !f.repWhen.IsSet() && !f.repLast.IsSet() {
		return errors.Schema("Repeat %q needs Count, Length, When or Last", f.name)
	}
	elem := typ.elem
	if elem == nil {
		elem = Any
	}
	f.base.typ = elem
	return validateField(f.base, elem)
}

func validateCond(f *FieldSpec, typ *Type, vt validType) error {
	if f.base == nil {
		return errors.Schema("Cond %q has no base field", f.name)
	}
	var elseVal any
	if f.hasElse {
		elseVal = f.ifNot
	}
	computed := f.ifNotFn.IsSet()
	var baseType *Type
	switch vt {
	case validUnion:
		if !computed && !fits(typ, elseVal) {
			return typeError(typ, "Else value of type %s must be part of the union", typeOfValue(elseVal))
		}
		switch {
		case f.base.kind == KindSwitch:
			baseType = typ
		case typ.hasMember(tagNull):
			var rest []*Type
			for _, m := range typ.members {
				if m.tag != tagNull {
					rest = append(rest, m)
				}
			}
			baseType = Union(rest...)
		default:
			t, err := guessCondType(f, typ, elseVal)
			if err != nil {
				return err
			}
			baseType = t
		}
	case validAny:
		baseType = Any
	case validNoValue:
		baseType = NoValue
	case validSimple:
		if !computed && !fits(typ, elseVal) {
			return typeError(typ, "Else value of type %s different than the field type", typeOfValue(elseVal))
		}
		baseType = typ
	default:
		return typeError(typ, "no valid type found for Cond")
	}
	f.base.typ = baseType
	return validateField(f.base, baseType)
}

// guessCondType picks the member of a two-type union the wrapped field
// produces: the one the Else value does not fit, or the structure member
// when only the base's shape can tell.
func guessCondType(f *FieldSpec, typ *Type, elseVal any) (*Type, error) {
	var rest []*Type
	for _, m := range typ.members {
		if !fits(m, elseVal) {
			rest = append(rest, m)
		}
	}
	if len(rest) == 1 {
		return rest[0], nil
	}
	if len(typ.members) == 2 {
		a, b := typ.members[0], typ.members[1]
		nested := !f.base.format.IsSet()
		switch {
		case a.isStruct() && !b.isStruct():
			if nested {
				return a, nil
			}
			return b, nil
		case b.isStruct() && !a.isStruct():
			if nested {
				return b, nil
			}
			return a, nil
		}
	}
	return nil, typeError(typ, "cannot guess the wrapped field's type")
}

func validateSwitch(f *FieldSpec, typ *Type) error {
	if !f.key.IsSet() {
		return errors.Schema("Switch %q has no key", f.name)
	}
	hasNoValue := false
	fallbacks := 0
	for i := range f.cases {
		c := &f.cases[i]
		label := fmt.Sprint(c.key)
		if c.fallback {
			label = "default"
			fallbacks++
		}
		if c.typ == nil || c.field == nil {
			return errors.Schema("Switch %q case %s needs a type and a field", f.name, label)
		}
		if !typesMatch(c.typ, typ) {
			return typeError(typ, "case type %s (for case %s) does not fit the Switch type", c.typ, label)
		}
		c.field.typ = c.typ
		if err := validateField(c.field, c.typ); err != nil {
			return err
		}
		if c.typ.tag == tagNoValue {
			hasNoValue = true
		}
	}
	if fallbacks > 1 {
		return errors.Schema("Switch %q has %d default cases", f.name, fallbacks)
	}
	if typ.tag == tagNoValue && !hasNoValue {
		return typeError(typ, "cannot use NoValue for Switch fields without special cases")
	}
	return nil
}

// findSpans locates the markers of every checksum value field and records
// forward spans.
func findSpans(t *StructType) error {
	for i, f := range t.fields {
		if f.checksum == nil {
			continue
		}
		start, end := -1, -1
		for j, m := range t.fields {
			if m.kind != KindHook || m.hook != Hook(f.checksum.hook) {
				continue
			}
			if m.hookEnd {
				end = j
			} else {
				start = j
			}
		}
		path := []string{t.name, f.name}
		switch {
		case start < 0 || end < 0:
			return errors.New(errors.PhaseSchema, errors.KindInvalidSchema).
				Path(path...).
				Detail("checksum %q needs both start and end markers", f.checksum.doc).
				Build()
		case end < start:
			return errors.New(errors.PhaseSchema, errors.KindInvalidSchema).
				Path(path...).
				Detail("checksum %q ends before it starts", f.checksum.doc).
				Build()
		case i < start:
			t.spans[f] = span{value: i, start: start, end: end}
		case i > end:
		default:
			return errors.New(errors.PhaseSchema, errors.KindInvalidSchema).
				Path(path...).
				Detail("checksum %q value lies inside its own span", f.checksum.doc).
				Build()
		}
	}
	return nil
}

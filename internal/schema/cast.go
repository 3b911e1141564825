package schema

import (
	"errors"
	"fmt"

	"github.com/roach88/docsync/internal/ir"
)

// FieldError reports a value that does not fit a type's declared field.
type FieldError struct {
	Type    string
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s.%s: %s", e.Type, e.Field, e.Message)
}

// IsFieldError reports whether err is or wraps a *FieldError.
func IsFieldError(err error) bool {
	var fe *FieldError
	return errors.As(err, &fe)
}

// Cast validates value against the declared kind of field on t.
// Null is accepted for every declared field. Undeclared fields are accepted
// only when t is dynamic.
func (s *Schema) Cast(t *Type, field string, value ir.IRValue) error {
	if field == IDField || field == TypeField {
		return &FieldError{Type: t.Name, Field: field, Message: "reserved field cannot be assigned"}
	}
	if _, isRel := s.Relation(t, field); isRel {
		return &FieldError{Type: t.Name, Field: field, Message: "field is a relation"}
	}

	kind, ok := s.FieldKind(t, field)
	if !ok {
		if s.Dynamic(t) {
			return nil
		}
		return &FieldError{Type: t.Name, Field: field, Message: "undeclared field"}
	}
	if !Conforms(kind, value) {
		return &FieldError{
			Type:    t.Name,
			Field:   field,
			Message: fmt.Sprintf("expected %s, got %s", kind, KindOf(value)),
		}
	}
	return nil
}

// Conform validates attrs against t and returns the subset t accepts.
// Undeclared fields are dropped unless t is dynamic; a declared field whose
// value has the wrong kind is an error.
func (s *Schema) Conform(t *Type, attrs ir.IRObject) (ir.IRObject, error) {
	out := make(ir.IRObject, len(attrs))
	dynamic := s.Dynamic(t)
	for _, k := range attrs.SortedKeys() {
		if _, declared := s.FieldKind(t, k); !declared && !dynamic {
			continue
		}
		if err := s.Cast(t, k, attrs[k]); err != nil {
			return nil, err
		}
		out[k] = attrs[k]
	}
	return out, nil
}

// Conforms reports whether v may be stored in a field of kind k.
func Conforms(k Kind, v ir.IRValue) bool {
	if _, isNull := v.(ir.IRNull); isNull || k == KindAny {
		return true
	}
	return KindOf(v) == k
}

// KindOf returns the field kind of an IR value. Null maps to KindAny.
func KindOf(v ir.IRValue) Kind {
	switch v.(type) {
	case ir.IRString:
		return KindString
	case ir.IRInt:
		return KindInt
	case ir.IRBool:
		return KindBool
	case ir.IRArray:
		return KindArray
	case ir.IRObject:
		return KindObject
	default:
		return KindAny
	}
}

package schema

import (
	"fmt"
	"slices"
)

// Validation error codes (E100-E199)
const (
	ErrUnknownType         = "E101" // relation or extends names an undeclared type
	ErrExtendsCycle        = "E102" // extends chain loops back on itself
	ErrEmbeddedCollection  = "E103" // embedded type declares a collection
	ErrMissingCollection   = "E104" // root type has no collection
	ErrEmbeddingMismatch   = "E105" // embeds_* targets a non-embedded type or vice versa
	ErrDuplicateField      = "E106" // subtype redeclares an inherited field with another kind
	ErrDuplicateCollection = "E107" // two hierarchies share a collection
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks cross-type rules that a single CompileDocument call cannot see.
// Returns all errors found (does not fail-fast), ordered by type name.
func (s *Schema) Validate() []ValidationError {
	var errs []ValidationError
	collections := make(map[string]string)

	for _, name := range s.Names() {
		t := s.types[name]
		field := "document." + name

		if t.Extends != "" {
			parent, ok := s.types[t.Extends]
			switch {
			case !ok:
				errs = append(errs, ValidationError{
					Field:   field + ".extends",
					Message: fmt.Sprintf("unknown type %q", t.Extends),
					Code:    ErrUnknownType,
				})
			case s.extendsCycle(t):
				errs = append(errs, ValidationError{
					Field:   field + ".extends",
					Message: "extends chain forms a cycle",
					Code:    ErrExtendsCycle,
				})
			case parent.Embedded != t.Embedded:
				errs = append(errs, ValidationError{
					Field:   field + ".extends",
					Message: fmt.Sprintf("%q and %q disagree on embedded", name, parent.Name),
					Code:    ErrEmbeddingMismatch,
				})
			default:
				for f, k := range t.Fields {
					if pk, ok := s.FieldKind(parent, f); ok && pk != k {
						errs = append(errs, ValidationError{
							Field:   field + ".fields." + f,
							Message: fmt.Sprintf("redeclared as %s, inherited as %s", k, pk),
							Code:    ErrDuplicateField,
						})
					}
				}
			}
		}

		switch {
		case t.Embedded && t.Collection != "":
			errs = append(errs, ValidationError{
				Field:   field + ".collection",
				Message: "embedded documents cannot declare a collection",
				Code:    ErrEmbeddedCollection,
			})
		case !t.Embedded && t.Extends == "" && t.Collection == "":
			errs = append(errs, ValidationError{
				Field:   field + ".collection",
				Message: "collection is required for root documents",
				Code:    ErrMissingCollection,
			})
		case t.Collection != "":
			if other, dup := collections[t.Collection]; dup {
				errs = append(errs, ValidationError{
					Field:   field + ".collection",
					Message: fmt.Sprintf("collection %q already used by %q", t.Collection, other),
					Code:    ErrDuplicateCollection,
				})
			}
			collections[t.Collection] = name
		}

		for _, r := range t.Relations {
			rf := fmt.Sprintf("%s.%s.%s", field, r.Kind, r.Name)
			target, ok := s.types[r.Target]
			if !ok {
				errs = append(errs, ValidationError{
					Field:   rf + ".type",
					Message: fmt.Sprintf("unknown type %q", r.Target),
					Code:    ErrUnknownType,
				})
				continue
			}
			if r.Kind.Embedding() != target.Embedded {
				msg := fmt.Sprintf("%s requires an embedded target, %q is a root type", r.Kind, r.Target)
				if !r.Kind.Embedding() {
					msg = fmt.Sprintf("%s requires a root target, %q is embedded", r.Kind, r.Target)
				}
				errs = append(errs, ValidationError{
					Field:   rf + ".type",
					Message: msg,
					Code:    ErrEmbeddingMismatch,
				})
			}
		}
	}

	return errs
}

func (s *Schema) extendsCycle(t *Type) bool {
	seen := []*Type{t}
	for cur := t; cur.Extends != ""; {
		next, ok := s.types[cur.Extends]
		if !ok {
			return false
		}
		if slices.Contains(seen, next) {
			return true
		}
		seen = append(seen, next)
		cur = next
	}
	return false
}

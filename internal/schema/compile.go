package schema

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// CompileDocument parses a CUE value into a document Type.
// Uses the CUE SDK's Go API directly (not a CLI subprocess).
//
// The CUE value should be the document struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`document: Person: { collection: "people", ... }`)
//	t, err := CompileDocument(v.LookupPath(cue.ParsePath("document.Person")))
func CompileDocument(v cue.Value) (*Type, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	t := &Type{Fields: make(map[string]Kind)}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		t.Name = labels[len(labels)-1].String()
	}

	var err error
	if t.Collection, err = optionalString(v, "collection"); err != nil {
		return nil, err
	}
	if t.Extends, err = optionalString(v, "extends"); err != nil {
		return nil, err
	}
	if t.Embedded, err = optionalBool(v, "embedded"); err != nil {
		return nil, err
	}
	if t.Dynamic, err = optionalBool(v, "dynamic"); err != nil {
		return nil, err
	}

	switch {
	case t.Embedded && t.Collection != "":
		return nil, &CompileError{Field: "collection", Message: "embedded documents cannot declare a collection", Pos: v.Pos()}
	case !t.Embedded && t.Extends == "" && t.Collection == "":
		return nil, &CompileError{Field: "collection", Message: "collection is required for root documents", Pos: v.Pos()}
	case t.Extends != "" && t.Collection != "":
		return nil, &CompileError{Field: "collection", Message: "subtypes inherit their collection", Pos: v.Pos()}
	}

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if fieldsVal.Exists() {
		iter, err := fieldsVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			name := iter.Label()
			if name == IDField || name == TypeField {
				return nil, &CompileError{
					Field:   "fields." + name,
					Message: "reserved field name",
					Pos:     iter.Value().Pos(),
				}
			}
			kind, err := extractKind(iter.Value())
			if err != nil {
				return nil, err
			}
			t.Fields[name] = kind
		}
	}

	for _, kind := range relationKinds {
		rels, err := parseRelations(v, kind)
		if err != nil {
			return nil, err
		}
		t.Relations = append(t.Relations, rels...)
	}

	for _, r := range t.Relations {
		if _, clash := t.Fields[r.Name]; clash {
			return nil, &CompileError{
				Field:   string(r.Kind) + "." + r.Name,
				Message: "relation name collides with a field",
				Pos:     v.Pos(),
			}
		}
	}

	return t, nil
}

// parseRelations extracts one relation block (embeds_many, has_one, ...).
func parseRelations(v cue.Value, kind RelationKind) ([]Relation, error) {
	block := v.LookupPath(cue.ParsePath(string(kind)))
	if !block.Exists() {
		return nil, nil
	}

	iter, err := block.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var rels []Relation
	for iter.Next() {
		name := iter.Label()
		rv := iter.Value()
		field := fmt.Sprintf("%s.%s", kind, name)

		target, err := optionalString(rv, "type")
		if err != nil {
			return nil, err
		}
		if target == "" {
			return nil, &CompileError{Field: field + ".type", Message: "relation target type is required", Pos: rv.Pos()}
		}

		rel := Relation{Name: name, Kind: kind, Target: target}
		if rel.Inverse, err = optionalString(rv, "inverse"); err != nil {
			return nil, err
		}
		if rel.ForeignKey, err = optionalString(rv, "foreign_key"); err != nil {
			return nil, err
		}

		if kind.Embedding() && rel.ForeignKey != "" {
			return nil, &CompileError{Field: field + ".foreign_key", Message: "embedded relations have no foreign key", Pos: rv.Pos()}
		}
		if !kind.Embedding() && rel.ForeignKey == "" {
			return nil, &CompileError{Field: field + ".foreign_key", Message: "foreign_key is required for referenced relations", Pos: rv.Pos()}
		}

		rels = append(rels, rel)
	}
	return rels, nil
}

func optionalString(v cue.Value, path string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(path))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalBool(v cue.Value, path string) (bool, error) {
	fv := v.LookupPath(cue.ParsePath(path))
	if !fv.Exists() {
		return false, nil
	}
	b, err := fv.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

// extractKind converts a CUE type to a field Kind. Floats are forbidden.
func extractKind(v cue.Value) (Kind, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		return KindString, nil
	case cue.IntKind:
		return KindInt, nil
	case cue.BoolKind:
		return KindBool, nil
	case cue.ListKind:
		return KindArray, nil
	case cue.StructKind:
		return KindObject, nil
	case cue.TopKind:
		return KindAny, nil
	case cue.FloatKind, cue.NumberKind:
		return "", &CompileError{
			Field:   "type",
			Message: "float types are forbidden - use int instead",
			Pos:     v.Pos(),
		}
	default:
		return "", &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}

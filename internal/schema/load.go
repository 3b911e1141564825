package schema

import (
	"errors"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

// BuildDir loads the CUE package in dir and builds it into a single value.
func BuildDir(dir string) (cue.Value, error) {
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return cue.Value{}, fmt.Errorf("load cue package %s: no instances", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, fmt.Errorf("load cue package %s: %w", dir, inst.Err)
	}

	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		return cue.Value{}, formatCUEError(err)
	}
	return value, nil
}

// CompileSchema compiles every entry under the top-level "document" struct
// and validates the result as a whole. All errors are collected; the schema
// is nil whenever errs is non-empty.
func CompileSchema(v cue.Value) (*Schema, []error) {
	docs := v.LookupPath(cue.ParsePath("document"))
	if !docs.Exists() {
		return nil, []error{&CompileError{Field: "document", Message: "no document types declared"}}
	}

	iter, err := docs.Fields()
	if err != nil {
		return nil, []error{formatCUEError(err)}
	}

	var errs []error
	s := &Schema{types: make(map[string]*Type)}
	for iter.Next() {
		t, err := CompileDocument(iter.Value())
		if err != nil {
			errs = append(errs, fmt.Errorf("document.%s: %w", iter.Label(), err))
			continue
		}
		s.types[t.Name] = t
	}
	if len(errs) > 0 {
		return nil, errs
	}

	for _, ve := range s.Validate() {
		errs = append(errs, ve)
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return s, nil
}

// LoadDir loads and compiles the document schema declared in dir.
func LoadDir(dir string) (*Schema, error) {
	v, err := BuildDir(dir)
	if err != nil {
		return nil, err
	}
	s, errs := CompileSchema(v)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return s, nil
}

// Compile compiles a schema from CUE source text. Used by tests and
// scenario files that inline their schema.
func Compile(src string) (*Schema, error) {
	v := cuecontext.New().CompileString(src)
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	s, errs := CompileSchema(v)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return s, nil
}

// MustCompile is like Compile but panics on error.
// Use only in tests.
func MustCompile(src string) *Schema {
	s, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return s
}

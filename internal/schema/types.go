package schema

import (
	"fmt"
	"slices"
	"sort"
)

// Kind is the declared kind of a document field.
// There is no float kind: numbers are always int.
type Kind string

const (
	KindString Kind = "string"
	KindInt    Kind = "int"
	KindBool   Kind = "bool"
	KindArray  Kind = "array"
	KindObject Kind = "object"
	KindAny    Kind = "any"
)

// Reserved attribute names carried by every stored document.
const (
	IDField   = "_id"
	TypeField = "_type"
)

// RelationKind classifies a relation declared on a document type.
type RelationKind string

const (
	EmbedsMany RelationKind = "embeds_many"
	EmbedsOne  RelationKind = "embeds_one"
	HasOne     RelationKind = "has_one"
	HasMany    RelationKind = "has_many"
	BelongsTo  RelationKind = "belongs_to"
)

// relationKinds lists relation blocks in declaration-lookup order.
var relationKinds = []RelationKind{EmbedsMany, EmbedsOne, HasOne, HasMany, BelongsTo}

// Embedding reports whether the relation owns its target inside the parent document.
func (k RelationKind) Embedding() bool {
	return k == EmbedsMany || k == EmbedsOne
}

// Relation is a named edge from one document type to another.
type Relation struct {
	Name       string       `json:"name"`
	Kind       RelationKind `json:"kind"`
	Target     string       `json:"target"`
	Inverse    string       `json:"inverse,omitempty"`     // embedded back-reference name
	ForeignKey string       `json:"foreign_key,omitempty"` // referenced relations only
}

// Type is a compiled document type.
type Type struct {
	Name       string          `json:"name"`
	Collection string          `json:"collection,omitempty"` // empty for embedded types and subtypes
	Extends    string          `json:"extends,omitempty"`
	Embedded   bool            `json:"embedded"`
	Dynamic    bool            `json:"dynamic"`
	Fields     map[string]Kind `json:"fields"`
	Relations  []Relation      `json:"relations"`
}

// Schema is a closed set of compiled document types.
// It is immutable after construction and safe for concurrent reads.
type Schema struct {
	types map[string]*Type
}

// New builds a schema from compiled types and validates it.
func New(types ...*Type) (*Schema, error) {
	s := &Schema{types: make(map[string]*Type, len(types))}
	for _, t := range types {
		if _, dup := s.types[t.Name]; dup {
			return nil, &CompileError{Field: "document." + t.Name, Message: "duplicate document type"}
		}
		s.types[t.Name] = t
	}
	if errs := s.Validate(); len(errs) > 0 {
		return nil, errs[0]
	}
	return s, nil
}

// Lookup returns the type with the given name.
func (s *Schema) Lookup(name string) (*Type, bool) {
	t, ok := s.types[name]
	return t, ok
}

// MustLookup is like Lookup but panics when the type is unknown.
// Use only in tests.
func (s *Schema) MustLookup(name string) *Type {
	t, ok := s.types[name]
	if !ok {
		panic(fmt.Sprintf("schema: unknown document type %q", name))
	}
	return t
}

// Names returns all type names, sorted.
func (s *Schema) Names() []string {
	names := make([]string, 0, len(s.types))
	for n := range s.types {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// chain returns t followed by its ancestors, nearest first.
func (s *Schema) chain(t *Type) []*Type {
	out := []*Type{t}
	for cur := t; cur.Extends != ""; {
		parent, ok := s.types[cur.Extends]
		if !ok || slices.Contains(out, parent) {
			break
		}
		out = append(out, parent)
		cur = parent
	}
	return out
}

// Root returns the top of t's inheritance chain. All types in a hierarchy
// share the root's collection and identity-registry keyspace.
func (s *Schema) Root(t *Type) *Type {
	c := s.chain(t)
	return c[len(c)-1]
}

// Collection returns the collection documents of type t are stored in.
func (s *Schema) Collection(t *Type) string {
	return s.Root(t).Collection
}

// IsA reports whether t is base or inherits from it.
func (s *Schema) IsA(t, base *Type) bool {
	return slices.Contains(s.chain(t), base)
}

// SameHierarchy reports whether a and b share a root type.
func (s *Schema) SameHierarchy(a, b *Type) bool {
	return s.Root(a) == s.Root(b)
}

// FieldKind returns the declared kind of a field, searching the inheritance chain.
func (s *Schema) FieldKind(t *Type, field string) (Kind, bool) {
	for _, c := range s.chain(t) {
		if k, ok := c.Fields[field]; ok {
			return k, true
		}
	}
	return "", false
}

// Fields returns the full field set of t including inherited fields.
func (s *Schema) Fields(t *Type) map[string]Kind {
	out := make(map[string]Kind)
	chain := s.chain(t)
	for i := len(chain) - 1; i >= 0; i-- {
		for f, k := range chain[i].Fields {
			out[f] = k
		}
	}
	return out
}

// Relation returns the named relation of t, searching the inheritance chain.
func (s *Schema) Relation(t *Type, name string) (Relation, bool) {
	for _, c := range s.chain(t) {
		for _, r := range c.Relations {
			if r.Name == name {
				return r, true
			}
		}
	}
	return Relation{}, false
}

// Relations returns every relation of t including inherited ones, base first.
func (s *Schema) Relations(t *Type) []Relation {
	var out []Relation
	chain := s.chain(t)
	for i := len(chain) - 1; i >= 0; i-- {
		out = append(out, chain[i].Relations...)
	}
	return out
}

// EmbeddedRelations returns the embeds_many and embeds_one relations of t.
func (s *Schema) EmbeddedRelations(t *Type) []Relation {
	var out []Relation
	for _, r := range s.Relations(t) {
		if r.Kind.Embedding() {
			out = append(out, r)
		}
	}
	return out
}

// Dynamic reports whether t (or an ancestor) accepts undeclared fields.
func (s *Schema) Dynamic(t *Type) bool {
	for _, c := range s.chain(t) {
		if c.Dynamic {
			return true
		}
	}
	return false
}

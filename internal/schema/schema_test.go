package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docsync/internal/ir"
)

const peopleSchema = `
document: Person: {
	collection: "people"
	fields: { title: string, names: [...string], age: int }
	embeds_many: addresses: { type: "Address", inverse: "addressable" }
	has_one: game: { type: "Game", foreign_key: "person_id" }
}
document: Doctor: { extends: "Person", fields: { specialty: string } }
document: Game: {
	collection: "games"
	fields: { score: int }
	belongs_to: person: { type: "Person", foreign_key: "person_id" }
}
document: Address: {
	embedded: true
	fields: { street: string }
	embeds_many: locations: { type: "Location", inverse: "address" }
}
document: Location: { embedded: true, dynamic: true, fields: { name: string } }
`

func TestCompileSchema(t *testing.T) {
	s, err := Compile(peopleSchema)
	require.NoError(t, err)

	assert.Equal(t, []string{"Address", "Doctor", "Game", "Location", "Person"}, s.Names())

	person := s.MustLookup("Person")
	doctor := s.MustLookup("Doctor")

	assert.Same(t, person, s.Root(doctor))
	assert.Equal(t, "people", s.Collection(doctor))
	assert.True(t, s.IsA(doctor, person))
	assert.False(t, s.IsA(person, doctor))
	assert.True(t, s.SameHierarchy(person, doctor))
	assert.False(t, s.SameHierarchy(person, s.MustLookup("Game")))
}

func TestSchemaInheritance(t *testing.T) {
	s := MustCompile(peopleSchema)
	doctor := s.MustLookup("Doctor")

	k, ok := s.FieldKind(doctor, "names")
	require.True(t, ok)
	assert.Equal(t, KindArray, k)

	assert.Len(t, s.Fields(doctor), 4)

	rel, ok := s.Relation(doctor, "addresses")
	require.True(t, ok)
	assert.Equal(t, "Address", rel.Target)

	embedded := s.EmbeddedRelations(doctor)
	require.Len(t, embedded, 1)
	assert.Equal(t, "addresses", embedded[0].Name)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	_, err := Compile(`
document: A: { collection: "as", embeds_many: bs: { type: "B", inverse: "a" } }
document: B: { collection: "bs" }
document: C: { extends: "Missing" }
document: D: { collection: "as" }
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrEmbeddingMismatch)
	assert.Contains(t, err.Error(), ErrUnknownType)
	assert.Contains(t, err.Error(), ErrDuplicateCollection)
}

func TestValidateExtendsCycle(t *testing.T) {
	s := &Schema{types: map[string]*Type{
		"A": {Name: "A", Extends: "B"},
		"B": {Name: "B", Extends: "A"},
	}}
	errs := s.Validate()
	require.NotEmpty(t, errs)
	assert.Equal(t, ErrExtendsCycle, errs[0].Code)
}

func TestValidateRedeclaredField(t *testing.T) {
	_, err := Compile(`
document: P: { collection: "ps", fields: { n: int } }
document: Q: { extends: "P", fields: { n: string } }
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrDuplicateField)
}

func TestNewRejectsDuplicateNames(t *testing.T) {
	a := &Type{Name: "A", Collection: "as"}
	_, err := New(a, &Type{Name: "A", Collection: "bs"})
	require.Error(t, err)
}

func TestValidationErrorFormat(t *testing.T) {
	assert.Equal(t, "[E104] document.A.collection: required",
		ValidationError{Field: "document.A.collection", Message: "required", Code: ErrMissingCollection}.Error())
	assert.Equal(t, "[E104] line 3: document.A.collection: required",
		ValidationError{Field: "document.A.collection", Message: "required", Code: ErrMissingCollection, Line: 3}.Error())
}

func TestCast(t *testing.T) {
	s := MustCompile(peopleSchema)
	person := s.MustLookup("Person")
	location := s.MustLookup("Location")

	require.NoError(t, s.Cast(person, "title", ir.IRString("Sir")))
	require.NoError(t, s.Cast(person, "title", ir.IRNull{}))
	require.NoError(t, s.Cast(person, "names", ir.Strings("James")))

	err := s.Cast(person, "age", ir.IRString("old"))
	require.Error(t, err)
	assert.True(t, IsFieldError(err))
	assert.Contains(t, err.Error(), "expected int, got string")

	assert.Error(t, s.Cast(person, "specialty", ir.IRString("brain")))
	assert.NoError(t, s.Cast(s.MustLookup("Doctor"), "specialty", ir.IRString("brain")))
	assert.Error(t, s.Cast(person, "addresses", ir.IRArray{}))
	assert.Error(t, s.Cast(person, IDField, ir.IRString("x")))

	assert.NoError(t, s.Cast(location, "anything", ir.IRInt(1)))
}

func TestConform(t *testing.T) {
	s := MustCompile(peopleSchema)
	person := s.MustLookup("Person")

	out, err := s.Conform(person, ir.IRObject{
		"title":     ir.IRString("Sir"),
		"specialty": ir.IRString("brain"),
	})
	require.NoError(t, err)
	assert.Equal(t, ir.IRObject{"title": ir.IRString("Sir")}, out)

	_, err = s.Conform(person, ir.IRObject{"age": ir.IRString("x")})
	assert.Error(t, err)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindString, KindOf(ir.IRString("a")))
	assert.Equal(t, KindObject, KindOf(ir.IRObject{}))
	assert.Equal(t, KindAny, KindOf(ir.IRNull{}))
	assert.True(t, Conforms(KindAny, ir.IRInt(1)))
	assert.False(t, Conforms(KindArray, ir.IRInt(1)))
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "people.cue"), []byte("package people\n"+peopleSchema), 0o644))

	s, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Len(t, s.Names(), 5)
}

func TestLoadDirNoDocuments(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.cue"), []byte("package empty\nother: 1\n"), 0o644))

	_, err := LoadDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no document types declared")
}

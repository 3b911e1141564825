package harness

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docsync/internal/document"
	"github.com/roach88/docsync/internal/fieldpath"
	"github.com/roach88/docsync/internal/ir"
	"github.com/roach88/docsync/internal/store"
)

func TestMatchSubset(t *testing.T) {
	actual := ir.IRObject{"title": ir.IRString("Sir"), "tags": ir.Strings("a", "b")}

	assert.NoError(t, matchSubset(Assertion{Expect: map[string]any{"title": "Sir"}}, actual))
	assert.NoError(t, matchSubset(Assertion{Expect: map[string]any{"tags": []any{"a", "b"}}}, actual))
	assert.NoError(t, matchSubset(Assertion{Expect: map[string]any{"gone": nil}}, actual), "null matches absent")

	err := matchSubset(Assertion{Type: AssertNode, Target: "p1", Expect: map[string]any{"title": "Dr"}}, actual)
	var ae *AssertionError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, `field "title" = "Sir"`, ae.Actual)

	err = matchSubset(Assertion{Expect: map[string]any{"missing": "x"}}, actual)
	assert.ErrorContains(t, err, "field absent")
}

func TestWalkRaw(t *testing.T) {
	doc := ir.IRObject{
		"addresses": ir.IRArray{
			ir.IRObject{"_id": ir.IRString("a1"), "locations": ir.IRArray{ir.IRObject{"name": ir.IRString("studio")}}},
		},
		"name": ir.IRObject{"first_name": ir.IRString("James")},
		"tags": ir.Strings("x"),
	}

	got, err := walkRaw(doc, fieldpath.MustParse("addresses.0.locations.0"))
	require.NoError(t, err)
	assert.Equal(t, ir.IRString("studio"), got["name"])

	got, err = walkRaw(doc, fieldpath.MustParse("name"))
	require.NoError(t, err)
	assert.Equal(t, ir.IRString("James"), got["first_name"])

	for _, p := range []string{"addresses.4", "nope", "tags", "addresses.$"} {
		_, err := walkRaw(doc, fieldpath.MustParse(p))
		assert.Error(t, err, p)
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&document.DocumentNotFoundError{Type: "Person", ID: "p1"}, "document_not_found"},
		{fmt.Errorf("wrapped: %w", &document.IndexNotFoundError{Type: "Address"}), "index_not_found"},
		{&document.NotPersistedError{Type: "Person"}, "not_persisted"},
		{fmt.Errorf("find: %w", store.ErrNotFound), "not_found"},
		{errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorKind(tt.err), "%v", tt.err)
	}
}

func TestAssertionError_Format(t *testing.T) {
	err := &AssertionError{Type: AssertStored, Target: "p1", Expected: "a", Actual: "b"}
	assert.Equal(t, "Assertion failed: stored p1\n  Expected: a\n  Actual: b", err.Error())
}

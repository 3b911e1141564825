package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docsync/internal/fieldpath"
	"github.com/roach88/docsync/internal/ir"
)

func push(path string, values ...ir.IRValue) Update {
	return Update{Operator: OpPush, Fields: []FieldUpdate{{Path: fieldpath.MustParse(path), Values: values}}}
}

func TestApplyDoesNotModifyInput(t *testing.T) {
	doc := ir.IRObject{"names": ir.Strings("James")}
	out, err := Apply(doc, push("names", ir.IRString("Bond")))
	require.NoError(t, err)

	assert.Equal(t, ir.Strings("James"), doc["names"])
	assert.Equal(t, ir.Strings("James", "Bond"), out["names"])
}

func TestApplyPushCreatesMissing(t *testing.T) {
	out, err := Apply(ir.IRObject{}, push("profile.tags", ir.IRString("a")))
	require.NoError(t, err)
	assert.Equal(t, ir.IRObject{"tags": ir.Strings("a")}, out["profile"])

	out, err = Apply(ir.IRObject{"names": ir.IRNull{}}, push("names", ir.IRString("a")))
	require.NoError(t, err)
	assert.Equal(t, ir.Strings("a"), out["names"])
}

func TestApplyAddToSetCanonicalEquality(t *testing.T) {
	doc := ir.IRObject{"tags": ir.IRArray{ir.IRObject{"a": ir.IRInt(1), "b": ir.IRInt(2)}}}
	out, err := Apply(doc, Update{Operator: OpAddToSet, Fields: []FieldUpdate{{
		Path:   fieldpath.New("tags"),
		Values: []ir.IRValue{ir.IRObject{"b": ir.IRInt(2), "a": ir.IRInt(1)}, ir.IRString("x"), ir.IRString("x")},
	}}})
	require.NoError(t, err)
	assert.Len(t, out["tags"], 2)
}

func TestApplyErrors(t *testing.T) {
	doc := ir.IRObject{
		"title":     ir.IRString("Sir"),
		"addresses": ir.IRArray{ir.IRObject{"street": ir.IRString("Abbey Road")}},
	}

	tests := []struct {
		name string
		upd  Update
	}{
		{"push to scalar", push("title", ir.IRString("x"))},
		{"index out of range", push("addresses.3.tags", ir.IRString("x"))},
		{"index into object", push("title.0.x", ir.IRString("x"))},
		{"field of array", push("addresses.street", ir.IRString("x"))},
		{"placeholder", push("addresses.$.tags", ir.IRString("x"))},
		{"missing array", push("missing.0.tags", ir.IRString("x"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Apply(doc, tt.upd)
			require.Error(t, err)
			assert.True(t, IsPathError(err))
		})
	}
}

func TestApplyUnsetMissingIsNoop(t *testing.T) {
	doc := ir.IRObject{"a": ir.IRInt(1)}
	out, err := Apply(doc, Update{Operator: OpUnset, Fields: []FieldUpdate{
		{Path: fieldpath.MustParse("missing.0.x")},
		{Path: fieldpath.New("a")},
	}})
	require.NoError(t, err)
	assert.Equal(t, ir.IRObject{}, out)
}

func TestApplyPull(t *testing.T) {
	doc := ir.IRObject{
		"names": ir.Strings("a", "b", "a"),
		"addresses": ir.IRArray{
			ir.IRObject{"_id": ir.IRString("a1"), "street": ir.IRString("Abbey Road")},
			ir.IRObject{"_id": ir.IRString("a2"), "street": ir.IRString("Maiden Lane"), "tags": ir.Strings("upstream")},
			ir.IRString("a1"),
		},
	}
	out, err := Apply(doc, Update{Operator: OpPull, Fields: []FieldUpdate{
		{Path: fieldpath.New("names"), Values: []ir.IRValue{ir.IRString("a")}},
		{Path: fieldpath.New("addresses"), Values: []ir.IRValue{ir.IRObject{"_id": ir.IRString("a1")}}},
		{Path: fieldpath.MustParse("missing.0.x"), Values: []ir.IRValue{ir.IRInt(1)}},
	}})
	require.NoError(t, err)

	assert.Equal(t, ir.Strings("b"), out["names"])
	assert.Equal(t, ir.IRArray{doc["addresses"].(ir.IRArray)[1], ir.IRString("a1")}, out["addresses"])
	_, has := out["missing"]
	assert.False(t, has)
	assert.Len(t, doc["addresses"], 3)

	_, err = Apply(ir.IRObject{"title": ir.IRString("Sir")}, Update{Operator: OpPull, Fields: []FieldUpdate{
		{Path: fieldpath.New("title"), Values: []ir.IRValue{ir.IRString("Sir")}},
	}})
	assert.True(t, IsPathError(err))
}

func TestApplySetArrayElement(t *testing.T) {
	doc := ir.IRObject{"addresses": ir.IRArray{ir.IRObject{"street": ir.IRString("Abbey Road")}}}
	out, err := Apply(doc, Update{Operator: OpSet, Fields: []FieldUpdate{{
		Path:   fieldpath.MustParse("addresses.0"),
		Values: []ir.IRValue{ir.IRObject{"street": ir.IRString("Broadway")}},
	}}})
	require.NoError(t, err)
	assert.Equal(t, ir.IRString("Broadway"), out["addresses"].(ir.IRArray)[0].(ir.IRObject)["street"])
}

func TestUpdateValidate(t *testing.T) {
	tests := []struct {
		name string
		upd  Update
	}{
		{"bad operator", Update{Operator: "$inc", Fields: []FieldUpdate{{Path: fieldpath.New("a")}}}},
		{"no fields", Update{Operator: OpPush}},
		{"empty path", Update{Operator: OpPush, Fields: []FieldUpdate{{}}}},
		{"set without value", Update{Operator: OpSet, Fields: []FieldUpdate{{Path: fieldpath.New("a")}}}},
		{"pull without value", Update{Operator: OpPull, Fields: []FieldUpdate{{Path: fieldpath.New("a")}}}},
		{"unset with value", Update{Operator: OpUnset, Fields: []FieldUpdate{{Path: fieldpath.New("a"), Values: []ir.IRValue{ir.IRInt(1)}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.upd.Validate())
		})
	}

	ok := Update{Operator: OpPush, Fields: []FieldUpdate{{Path: fieldpath.New("a")}}}
	assert.NoError(t, ok.Validate())
	assert.Equal(t, []string{"a"}, ok.Paths())
}

func TestDecodeBody(t *testing.T) {
	doc, err := DecodeBody([]byte(`{"_id":"p1","n":9007199254740993,"x":null,"arr":[1,"a"]}`))
	require.NoError(t, err)
	assert.Equal(t, ir.IRInt(9007199254740993), doc["n"])
	assert.Equal(t, ir.IRNull{}, doc["x"])
	assert.Equal(t, ir.IRArray{ir.IRInt(1), ir.IRString("a")}, doc["arr"])

	_, err = DecodeBody([]byte(`{"f":1.5}`))
	assert.Error(t, err)

	_, err = DecodeBody([]byte(`[1]`))
	assert.Error(t, err)

	empty, err := DecodeBody(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestDocID(t *testing.T) {
	id, err := DocID(ir.IRObject{"_id": ir.IRString("p1")})
	require.NoError(t, err)
	assert.Equal(t, "p1", id)

	_, err = DocID(ir.IRObject{"_id": ir.IRInt(1)})
	assert.Error(t, err)
}

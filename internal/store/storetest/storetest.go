// Package storetest is a conformance suite for store.DocumentStore backends.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docsync/internal/fieldpath"
	"github.com/roach88/docsync/internal/ir"
	"github.com/roach88/docsync/internal/store"
)

// Opener returns a fresh, empty store. Cleanup is the opener's job.
type Opener func(t *testing.T) store.DocumentStore

// Person returns a root document with two embedded addresses, the first
// holding one location.
func Person(id string) ir.IRObject {
	return ir.IRObject{
		"_id":   ir.IRString(id),
		"_type": ir.IRString("Person"),
		"title": ir.IRString("Sir"),
		"names": ir.Strings("James"),
		"addresses": ir.IRArray{
			ir.IRObject{
				"_id":       ir.IRString("a1"),
				"street":    ir.IRString("Abbey Road"),
				"locations": ir.IRArray{ir.IRObject{"_id": ir.IRString("l1"), "name": ir.IRString("studio")}},
			},
			ir.IRObject{"_id": ir.IRString("a2"), "street": ir.IRString("Maiden Lane")},
		},
	}
}

// Run exercises every DocumentStore operation against open.
func Run(t *testing.T, open Opener) {
	t.Run("InsertAndFind", func(t *testing.T) { testInsertAndFind(t, open(t)) })
	t.Run("InsertDuplicate", func(t *testing.T) { testInsertDuplicate(t, open(t)) })
	t.Run("InsertWithoutID", func(t *testing.T) { testInsertWithoutID(t, open(t)) })
	t.Run("FindMissing", func(t *testing.T) { testFindMissing(t, open(t)) })
	t.Run("FindBy", func(t *testing.T) { testFindBy(t, open(t)) })
	t.Run("Push", func(t *testing.T) { testPush(t, open(t)) })
	t.Run("AddToSet", func(t *testing.T) { testAddToSet(t, open(t)) })
	t.Run("NestedPositional", func(t *testing.T) { testNestedPositional(t, open(t)) })
	t.Run("SetAndUnset", func(t *testing.T) { testSetAndUnset(t, open(t)) })
	t.Run("PullByID", func(t *testing.T) { testPullByID(t, open(t)) })
	t.Run("UpdateMissingDocument", func(t *testing.T) { testUpdateMissing(t, open(t)) })
	t.Run("UpdatePathError", func(t *testing.T) { testUpdatePathError(t, open(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, open(t)) })
	t.Run("LargeIntegers", func(t *testing.T) { testLargeIntegers(t, open(t)) })
}

func testInsertAndFind(t *testing.T, s store.DocumentStore) {
	ctx := context.Background()
	require.NoError(t, s.InsertDocument(ctx, "people", Person("p1")))

	got, err := s.FindDocument(ctx, "people", "p1")
	require.NoError(t, err)
	assert.True(t, ir.Equal(Person("p1"), got), "got %v", got)

	_, err = s.FindDocument(ctx, "games", "p1")
	assert.ErrorIs(t, err, store.ErrNotFound, "collections are separate keyspaces")
}

func testInsertDuplicate(t *testing.T, s store.DocumentStore) {
	ctx := context.Background()
	require.NoError(t, s.InsertDocument(ctx, "people", Person("p1")))

	err := s.InsertDocument(ctx, "people", Person("p1"))
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func testInsertWithoutID(t *testing.T, s store.DocumentStore) {
	err := s.InsertDocument(context.Background(), "people", ir.IRObject{"title": ir.IRString("Sir")})
	assert.Error(t, err)
}

func testFindMissing(t *testing.T, s store.DocumentStore) {
	_, err := s.FindDocument(context.Background(), "people", "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testFindBy(t *testing.T, s store.DocumentStore) {
	ctx := context.Background()
	for _, g := range []ir.IRObject{
		{"_id": ir.IRString("g2"), "_type": ir.IRString("Game"), "person_id": ir.IRString("p1")},
		{"_id": ir.IRString("g1"), "_type": ir.IRString("Game"), "person_id": ir.IRString("p1")},
		{"_id": ir.IRString("g3"), "_type": ir.IRString("Game"), "person_id": ir.IRString("p2")},
	} {
		require.NoError(t, s.InsertDocument(ctx, "games", g))
	}

	got, err := s.FindBy(ctx, "games", "person_id", ir.IRString("p1"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, ir.IRString("g1"), got[0]["_id"], "ordered by id")
	assert.Equal(t, ir.IRString("g2"), got[1]["_id"])

	none, err := s.FindBy(ctx, "games", "person_id", ir.IRString("p9"))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testPush(t *testing.T, s store.DocumentStore) {
	ctx := context.Background()
	require.NoError(t, s.InsertDocument(ctx, "people", Person("p1")))

	ok, err := s.UpdateDocument(ctx, store.Selector{Collection: "people", ID: "p1"}, store.Update{
		Operator: store.OpPush,
		Fields: []store.FieldUpdate{
			{Path: fieldpath.New("names"), Values: []ir.IRValue{ir.IRString("James"), ir.IRString("Bond")}},
			{Path: fieldpath.New("aliases"), Values: []ir.IRValue{ir.IRString("007")}},
		},
	})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.FindDocument(ctx, "people", "p1")
	require.NoError(t, err)
	assert.Equal(t, ir.Strings("James", "James", "Bond"), got["names"])
	assert.Equal(t, ir.Strings("007"), got["aliases"])
}

func testAddToSet(t *testing.T, s store.DocumentStore) {
	ctx := context.Background()
	require.NoError(t, s.InsertDocument(ctx, "people", Person("p1")))

	ok, err := s.UpdateDocument(ctx, store.Selector{Collection: "people", ID: "p1"}, store.Update{
		Operator: store.OpAddToSet,
		Fields: []store.FieldUpdate{
			{Path: fieldpath.New("names"), Values: []ir.IRValue{ir.IRString("James"), ir.IRString("Bond")}},
		},
	})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.FindDocument(ctx, "people", "p1")
	require.NoError(t, err)
	assert.Equal(t, ir.Strings("James", "Bond"), got["names"])
}

func testNestedPositional(t *testing.T, s store.DocumentStore) {
	ctx := context.Background()
	require.NoError(t, s.InsertDocument(ctx, "people", Person("p1")))

	ok, err := s.UpdateDocument(ctx, store.Selector{Collection: "people", ID: "p1", Positions: []int{0, 0}}, store.Update{
		Operator: store.OpPush,
		Fields: []store.FieldUpdate{
			{Path: fieldpath.MustParse("addresses.0.locations.0.tags"), Values: []ir.IRValue{ir.IRString("loud")}},
		},
	})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.FindDocument(ctx, "people", "p1")
	require.NoError(t, err)
	loc := got["addresses"].(ir.IRArray)[0].(ir.IRObject)["locations"].(ir.IRArray)[0].(ir.IRObject)
	assert.Equal(t, ir.Strings("loud"), loc["tags"])
	assert.Equal(t, ir.IRString("studio"), loc["name"])
}

func testSetAndUnset(t *testing.T, s store.DocumentStore) {
	ctx := context.Background()
	require.NoError(t, s.InsertDocument(ctx, "people", Person("p1")))
	sel := store.Selector{Collection: "people", ID: "p1"}

	ok, err := s.UpdateDocument(ctx, sel, store.Update{
		Operator: store.OpSet,
		Fields: []store.FieldUpdate{
			{Path: fieldpath.New("title"), Values: []ir.IRValue{ir.IRString("Dr")}},
			{Path: fieldpath.MustParse("addresses.1.street"), Values: []ir.IRValue{ir.IRString("Broadway")}},
			{Path: fieldpath.New("_type"), Values: []ir.IRValue{ir.IRString("Doctor")}},
		},
	})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.UpdateDocument(ctx, sel, store.Update{
		Operator: store.OpUnset,
		Fields:   []store.FieldUpdate{{Path: fieldpath.New("names")}},
	})
	require.NoError(t, err)
	require.True(t, ok)

	got, err := s.FindDocument(ctx, "people", "p1")
	require.NoError(t, err)
	assert.Equal(t, ir.IRString("Dr"), got["title"])
	assert.Equal(t, ir.IRString("Doctor"), got["_type"])
	assert.Equal(t, ir.IRString("Broadway"), got["addresses"].(ir.IRArray)[1].(ir.IRObject)["street"])
	_, has := got["names"]
	assert.False(t, has)
}

func testPullByID(t *testing.T, s store.DocumentStore) {
	ctx := context.Background()
	require.NoError(t, s.InsertDocument(ctx, "people", Person("p1")))
	sel := store.Selector{Collection: "people", ID: "p1"}

	ok, err := s.UpdateDocument(ctx, sel, store.Update{
		Operator: store.OpPull,
		Fields: []store.FieldUpdate{
			{Path: fieldpath.New("addresses"), Values: []ir.IRValue{ir.IRObject{"_id": ir.IRString("a1")}}},
			{Path: fieldpath.New("missing"), Values: []ir.IRValue{ir.IRObject{"_id": ir.IRString("x")}}},
		},
	})
	require.NoError(t, err)
	require.True(t, ok)

	got, err := s.FindDocument(ctx, "people", "p1")
	require.NoError(t, err)
	addrs := got["addresses"].(ir.IRArray)
	require.Len(t, addrs, 1)
	assert.True(t, ir.Equal(Person("p1")["addresses"].(ir.IRArray)[1], addrs[0]), "sibling untouched")
	_, has := got["missing"]
	assert.False(t, has)

	ok, err = s.UpdateDocument(ctx, sel, store.Update{
		Operator: store.OpPull,
		Fields:   []store.FieldUpdate{{Path: fieldpath.New("names"), Values: []ir.IRValue{ir.IRString("James")}}},
	})
	require.NoError(t, err)
	require.True(t, ok)
	got, err = s.FindDocument(ctx, "people", "p1")
	require.NoError(t, err)
	assert.Equal(t, ir.IRArray{}, got["names"])
}

func testUpdateMissing(t *testing.T, s store.DocumentStore) {
	ok, err := s.UpdateDocument(context.Background(), store.Selector{Collection: "people", ID: "ghost"}, store.Update{
		Operator: store.OpPush,
		Fields:   []store.FieldUpdate{{Path: fieldpath.New("names"), Values: []ir.IRValue{ir.IRString("x")}}},
	})
	require.NoError(t, err)
	assert.False(t, ok)
}

func testUpdatePathError(t *testing.T, s store.DocumentStore) {
	ctx := context.Background()
	require.NoError(t, s.InsertDocument(ctx, "people", Person("p1")))

	_, err := s.UpdateDocument(ctx, store.Selector{Collection: "people", ID: "p1"}, store.Update{
		Operator: store.OpPush,
		Fields:   []store.FieldUpdate{{Path: fieldpath.New("title"), Values: []ir.IRValue{ir.IRString("x")}}},
	})
	require.Error(t, err)

	got, err := s.FindDocument(ctx, "people", "p1")
	require.NoError(t, err)
	assert.True(t, ir.Equal(Person("p1"), got), "failed update leaves the document untouched")
}

func testDelete(t *testing.T, s store.DocumentStore) {
	ctx := context.Background()
	require.NoError(t, s.InsertDocument(ctx, "people", Person("p1")))

	require.NoError(t, s.DeleteDocument(ctx, "people", "p1"))
	_, err := s.FindDocument(ctx, "people", "p1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.ErrorIs(t, s.DeleteDocument(ctx, "people", "p1"), store.ErrNotFound)
}

func testLargeIntegers(t *testing.T, s store.DocumentStore) {
	ctx := context.Background()
	doc := ir.IRObject{"_id": ir.IRString("n1"), "n": ir.IRInt(9007199254740993)}
	require.NoError(t, s.InsertDocument(ctx, "numbers", doc))

	got, err := s.FindDocument(ctx, "numbers", "n1")
	require.NoError(t, err)
	assert.Equal(t, ir.IRInt(9007199254740993), got["n"])
}

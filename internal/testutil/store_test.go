package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docsync/internal/fieldpath"
	"github.com/roach88/docsync/internal/ir"
	"github.com/roach88/docsync/internal/store"
)

func pushNames(v string) store.Update {
	return store.Update{Operator: store.OpPush, Fields: []store.FieldUpdate{
		{Path: fieldpath.New("names"), Values: []ir.IRValue{ir.IRString(v)}},
	}}
}

func TestCountingStore(t *testing.T) {
	ctx := context.Background()
	s := NewCountingStore(OpenSQLite(t))
	sel := store.Selector{Collection: "people", ID: "p1"}

	require.NoError(t, s.InsertDocument(ctx, "people", ir.IRObject{"_id": ir.IRString("p1")}))
	ok, err := s.UpdateDocument(ctx, sel, pushNames("James"))
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.FindDocument(ctx, "people", "p1")
	require.NoError(t, err)

	assert.Equal(t, 1, s.Calls("InsertDocument"))
	assert.Equal(t, 1, s.Calls("UpdateDocument"))
	assert.Equal(t, 3, s.Total())
	require.Len(t, s.Updates(), 1)
	assert.Equal(t, sel, s.Updates()[0].Selector)

	s.Reset()
	assert.Zero(t, s.Total())
	assert.Empty(t, s.Updates())
}

func TestCountingStoreNackAndFail(t *testing.T) {
	ctx := context.Background()
	s := NewCountingStore(OpenSQLite(t))
	sel := store.Selector{Collection: "people", ID: "p1"}
	require.NoError(t, s.InsertDocument(ctx, "people", ir.IRObject{"_id": ir.IRString("p1")}))

	s.Nack(true)
	ok, err := s.UpdateDocument(ctx, sel, pushNames("James"))
	require.NoError(t, err)
	assert.False(t, ok)

	s.Nack(false)
	boom := errors.New("connection reset")
	s.FailUpdates(boom)
	_, err = s.UpdateDocument(ctx, sel, pushNames("James"))
	assert.ErrorIs(t, err, boom)

	doc, err := s.FindDocument(ctx, "people", "p1")
	require.NoError(t, err)
	_, has := doc["names"]
	assert.False(t, has, "neither call reached the store")
}

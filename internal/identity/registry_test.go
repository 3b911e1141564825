package identity

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docsync/internal/document"
	"github.com/roach88/docsync/internal/ir"
	"github.com/roach88/docsync/internal/schema"
)

var testSchema = schema.MustCompile(`
document: Person: {
	collection: "people"
	fields: { title: string }
	embeds_many: addresses: { type: "Address", inverse: "addressable" }
}
document: Doctor: { extends: "Person", fields: { specialty: string } }
document: Address: { embedded: true, fields: { street: string } }
`)

func person(t *testing.T, id string) *document.Node {
	t.Helper()
	n, err := document.FromRaw(testSchema, testSchema.MustLookup("Person"), ir.IRObject{
		"_id":   ir.IRString(id),
		"title": ir.IRString("Sir"),
	})
	require.NoError(t, err)
	return n
}

func TestRegisterReturnsExisting(t *testing.T) {
	r := New()
	a := person(t, "p1")
	b := person(t, "p1")

	assert.Same(t, a, r.Register(a))
	assert.Same(t, a, r.Register(b), "second node for a key is not registered")
	assert.Equal(t, 1, r.Len())

	got, ok := r.Get(Key{Collection: "people", ID: "p1"})
	require.True(t, ok)
	assert.Same(t, a, got)
}

func TestKeyOf(t *testing.T) {
	p := person(t, "p1")
	key, ok := KeyOf(p)
	require.True(t, ok)
	assert.Equal(t, "people/p1", key.String())

	_, ok = KeyOf(document.New(testSchema, testSchema.MustLookup("Person"), ""))
	assert.False(t, ok, "no identifier")

	addr := document.New(testSchema, testSchema.MustLookup("Address"), "a1")
	require.NoError(t, p.Embed("addresses", addr))
	_, ok = KeyOf(addr)
	assert.False(t, ok, "embedded nodes are not registered")

	r := New()
	assert.Same(t, addr, r.Register(addr))
	assert.Zero(t, r.Len())
}

func TestResolveLoadsOnce(t *testing.T) {
	r := New()
	key := Key{Collection: "people", ID: "p1"}
	var loads atomic.Int32
	load := func(context.Context) (*document.Node, error) {
		loads.Add(1)
		return person(t, "p1"), nil
	}

	first, err := r.Resolve(context.Background(), key, load)
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), key, load)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), loads.Load())
}

func TestResolveConcurrentSameInstance(t *testing.T) {
	r := New()
	key := Key{Collection: "people", ID: "p1"}
	start := make(chan struct{})

	const workers = 16
	results := make([]*document.Node, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			n, err := r.Resolve(context.Background(), key, func(context.Context) (*document.Node, error) {
				return document.FromRaw(testSchema, testSchema.MustLookup("Person"), ir.IRObject{"_id": ir.IRString("p1")})
			})
			assert.NoError(t, err)
			results[i] = n
		}(i)
	}
	close(start)
	wg.Wait()

	for _, n := range results {
		assert.Same(t, results[0], n)
	}
	assert.Equal(t, 1, r.Len())
}

func TestResolveLoadError(t *testing.T) {
	r := New()
	boom := errors.New("not found")
	_, err := r.Resolve(context.Background(), Key{Collection: "people", ID: "p1"}, func(context.Context) (*document.Node, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, r.Len())
}

func TestRetypeKeepsIdentity(t *testing.T) {
	r := New()
	p := r.Register(person(t, "p1"))
	doctor := testSchema.MustLookup("Doctor")

	require.NoError(t, r.Retype(p, func() error { return p.Becomes(doctor) }))

	got, ok := r.Get(Key{Collection: "people", ID: "p1"})
	require.True(t, ok)
	assert.Same(t, p, got)
	assert.Equal(t, "Doctor", got.Type().Name)
}

func TestDestroyedNodesAreEvicted(t *testing.T) {
	r := New()
	p := r.Register(person(t, "p1"))
	p.MarkDestroyed()

	_, ok := r.Get(Key{Collection: "people", ID: "p1"})
	assert.False(t, ok)

	fresh := person(t, "p1")
	assert.Same(t, fresh, r.Register(fresh))
}

func TestRemoveAndClear(t *testing.T) {
	r := New()
	a := r.Register(person(t, "p1"))
	r.Register(person(t, "p2"))

	r.Remove(person(t, "p1"))
	assert.Equal(t, 2, r.Len(), "only the registered instance removes its entry")

	r.Remove(a)
	assert.Equal(t, 1, r.Len())

	r.Clear()
	assert.Zero(t, r.Len())
}

func TestNilRegistry(t *testing.T) {
	var r *Registry
	p := person(t, "p1")

	assert.False(t, r.Enabled())
	assert.Same(t, p, r.Register(p))
	_, ok := r.Get(Key{Collection: "people", ID: "p1"})
	assert.False(t, ok)

	calls := 0
	for i := 0; i < 2; i++ {
		n, err := r.Resolve(context.Background(), Key{}, func(context.Context) (*document.Node, error) {
			calls++
			return person(t, "p1"), nil
		})
		require.NoError(t, err)
		assert.NotSame(t, p, n)
	}
	assert.Equal(t, 2, calls, "no caching without a registry")

	assert.NoError(t, r.Retype(p, func() error { return nil }))
	r.Remove(p)
	r.Clear()
	assert.Zero(t, r.Len())
}

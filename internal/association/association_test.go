package association

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docsync/internal/document"
	"github.com/roach88/docsync/internal/identity"
	"github.com/roach88/docsync/internal/ir"
	"github.com/roach88/docsync/internal/schema"
	"github.com/roach88/docsync/internal/testutil"
)

var testSchema = schema.MustCompile(`
document: Person: {
	collection: "people"
	fields: { title: string }
	has_one: game: { type: "Game", foreign_key: "person_id" }
	has_many: posts: { type: "Post", foreign_key: "author_id" }
	embeds_many: addresses: { type: "Address", inverse: "addressable" }
}
document: Doctor: { extends: "Person", fields: { specialty: string } }
document: Game: {
	collection: "games"
	fields: { score: int, person_id: string }
	belongs_to: person: { type: "Person", foreign_key: "person_id" }
}
document: Post: { collection: "posts", fields: { title: string, author_id: string } }
document: Address: { embedded: true, fields: { street: string } }
`)

type fixture struct {
	store *testutil.CountingStore
	reg   *identity.Registry
	res   *Resolver
}

func setup(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	s := testutil.NewCountingStore(testutil.OpenSQLite(t))

	docs := map[string][]ir.IRObject{
		"people": {{"_id": ir.IRString("p1"), "_type": ir.IRString("Person"), "title": ir.IRString("Sir")}},
		"games":  {{"_id": ir.IRString("g1"), "_type": ir.IRString("Game"), "person_id": ir.IRString("p1"), "score": ir.IRInt(10)}},
		"posts": {
			{"_id": ir.IRString("b2"), "author_id": ir.IRString("p1")},
			{"_id": ir.IRString("b1"), "author_id": ir.IRString("p1")},
			{"_id": ir.IRString("b3"), "author_id": ir.IRString("p2")},
		},
	}
	for coll, list := range docs {
		for _, d := range list {
			require.NoError(t, s.InsertDocument(ctx, coll, d))
		}
	}
	s.Reset()

	reg := identity.New()
	return fixture{store: s, reg: reg, res: New(s, WithRegistry(reg))}
}

func (f fixture) load(t *testing.T, typ, coll, id string) *document.Node {
	t.Helper()
	raw, err := f.store.DocumentStore.FindDocument(context.Background(), coll, id)
	require.NoError(t, err)
	n, err := document.FromRaw(testSchema, testSchema.MustLookup(typ), raw)
	require.NoError(t, err)
	return f.reg.Register(n)
}

func TestHasOneAndBelongsTo(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	person := f.load(t, "Person", "people", "p1")

	game, err := f.res.One(ctx, person, "game")
	require.NoError(t, err)
	require.NotNil(t, game)
	assert.Equal(t, "g1", game.ID())

	back, err := f.res.One(ctx, game, "person")
	require.NoError(t, err)
	assert.Same(t, person, back, "registry returns the live person")
}

func TestHasManyOrderedByID(t *testing.T) {
	f := setup(t)
	person := f.load(t, "Person", "people", "p1")

	posts, err := f.res.Many(context.Background(), person, "posts")
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "b1", posts[0].ID())
	assert.Equal(t, "b2", posts[1].ID())
}

func TestCachedUntilForcedOrInvalidated(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	person := f.load(t, "Person", "people", "p1")

	first, err := f.res.One(ctx, person, "game")
	require.NoError(t, err)
	_, err = f.res.One(ctx, person, "game")
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.Calls("FindBy"))

	forced, err := f.res.One(ctx, person, "game", Force())
	require.NoError(t, err)
	assert.Equal(t, 2, f.store.Calls("FindBy"))
	assert.Same(t, first, forced, "same live game")

	f.res.Invalidate(person)
	_, cached := person.CachedAssociation("game")
	assert.False(t, cached)
	_, err = f.res.One(ctx, person, "game")
	require.NoError(t, err)
	assert.Equal(t, 3, f.store.Calls("FindBy"))
}

func TestBelongsToSeesCurrentType(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	person := f.load(t, "Person", "people", "p1")
	game := f.load(t, "Game", "games", "g1")

	require.NoError(t, f.reg.Retype(person, func() error {
		return person.Becomes(testSchema.MustLookup("Doctor"))
	}))

	got, err := f.res.One(ctx, game, "person")
	require.NoError(t, err)
	assert.Same(t, person, got)
	assert.Equal(t, "Doctor", got.Type().Name)
}

func TestBelongsToMissing(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	orphan := document.New(testSchema, testSchema.MustLookup("Game"), "g9")
	got, err := f.res.One(ctx, orphan, "person")
	require.NoError(t, err)
	assert.Nil(t, got, "no foreign key")
	assert.Zero(t, f.store.Total())

	require.NoError(t, orphan.Set("person_id", ir.IRString("ghost")))
	got, err = f.res.One(ctx, orphan, "person", Force())
	require.NoError(t, err)
	assert.Nil(t, got, "dangling foreign key")
	assert.Zero(t, f.reg.Len())
}

func TestWithoutRegistryLoadsFreshNodes(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	res := New(f.store)
	game := f.load(t, "Game", "games", "g1")

	a, err := res.One(ctx, game, "person")
	require.NoError(t, err)
	b, err := res.One(ctx, game, "person", Force())
	require.NoError(t, err)
	assert.NotSame(t, a, b)
	assert.Equal(t, a.ID(), b.ID())
}

func TestRejectsEmbeddedRelation(t *testing.T) {
	f := setup(t)
	person := f.load(t, "Person", "people", "p1")
	_, err := f.res.Many(context.Background(), person, "addresses")
	assert.Error(t, err)
	_, err = f.res.Many(context.Background(), person, "nope")
	assert.Error(t, err)
}

// Package session is the public entry point to the document core: a store,
// a schema and an optional identity registry wired together.
//
// The four core operations are Reload, Push, AddToSet and ResolvePath; the
// rest (Create, Find, Embed, Save, Becomes, Delete) is the lifecycle needed
// to reach them.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/docsync/internal/association"
	"github.com/roach88/docsync/internal/atomicop"
	"github.com/roach88/docsync/internal/document"
	"github.com/roach88/docsync/internal/fieldpath"
	"github.com/roach88/docsync/internal/identity"
	"github.com/roach88/docsync/internal/idgen"
	"github.com/roach88/docsync/internal/ir"
	"github.com/roach88/docsync/internal/path"
	"github.com/roach88/docsync/internal/reload"
	"github.com/roach88/docsync/internal/schema"
	"github.com/roach88/docsync/internal/store"
)

// ErrUnknownType is returned for a type name the schema does not declare.
var ErrUnknownType = errors.New("unknown document type")

// Session owns one object graph and the collaborators that keep it in sync.
// It is not safe for concurrent use apart from the registry.
type Session struct {
	store    store.DocumentStore
	schema   *schema.Schema
	registry *identity.Registry
	ids      idgen.Generator
	logger   *slog.Logger

	ops    *atomicop.Builder
	reload *reload.Coordinator
	assoc  *association.Resolver

	ownsStore bool
}

// Option configures a Session.
type Option func(*Session)

// WithIdentityMap enables or disables the identity registry.
func WithIdentityMap(on bool) Option {
	return func(s *Session) {
		if on {
			s.registry = identity.New()
		} else {
			s.registry = nil
		}
	}
}

// WithRegistry uses an existing registry, shared with other sessions.
func WithRegistry(r *identity.Registry) Option {
	return func(s *Session) { s.registry = r }
}

// WithIDGenerator sets the generator for new root ids.
func WithIDGenerator(g idgen.Generator) Option {
	return func(s *Session) { s.ids = g }
}

// WithLogger sets the logger passed to every collaborator.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// New wires a session over an open store. The caller keeps ownership of st.
func New(st store.DocumentStore, sch *schema.Schema, opts ...Option) *Session {
	s := &Session{
		store:  st,
		schema: sch,
		ids:    idgen.UUIDv7Generator{},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.assoc = association.New(st,
		association.WithRegistry(s.registry),
		association.WithLogger(s.logger))
	s.ops = atomicop.New(st, atomicop.WithLogger(s.logger))
	s.reload = reload.New(st,
		reload.WithRegistry(s.registry),
		reload.WithInvalidator(s.assoc),
		reload.WithLogger(s.logger))
	return s
}

// Schema returns the session's schema.
func (s *Session) Schema() *schema.Schema { return s.schema }

// Store returns the backing store.
func (s *Session) Store() store.DocumentStore { return s.store }

// Registry returns the identity registry, nil when disabled.
func (s *Session) Registry() *identity.Registry { return s.registry }

// Reload refreshes node from the store and returns the live instance.
func (s *Session) Reload(ctx context.Context, node *document.Node) (*document.Node, error) {
	return s.reload.Reload(ctx, node)
}

// Push appends values to array fields of node. See atomicop.Builder.
func (s *Session) Push(ctx context.Context, node *document.Node, pairs ...ir.IRPair) (bool, error) {
	return s.ops.Push(ctx, node, pairs...)
}

// AddToSet inserts values not already present into array fields of node.
func (s *Session) AddToSet(ctx context.Context, node *document.Node, pairs ...ir.IRPair) (bool, error) {
	return s.ops.AddToSet(ctx, node, pairs...)
}

// ResolvePath returns the storage address of node.
func (s *Session) ResolvePath(node *document.Node) (path.Address, error) {
	return path.Resolve(node)
}

func (s *Session) lookup(typeName string) (*schema.Type, error) {
	t, ok := s.schema.Lookup(typeName)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownType, typeName)
	}
	return t, nil
}

// Build returns a new, unsaved node of typeName with attrs assigned.
func (s *Session) Build(typeName string, attrs ir.IRObject) (*document.Node, error) {
	t, err := s.lookup(typeName)
	if err != nil {
		return nil, err
	}
	n := document.New(s.schema, t, "")
	for _, k := range attrs.SortedKeys() {
		if err := n.Set(k, attrs[k]); err != nil {
			return nil, fmt.Errorf("build %s: %w", typeName, err)
		}
	}
	return n, nil
}

// Create builds a root of typeName and inserts it.
func (s *Session) Create(ctx context.Context, typeName string, attrs ir.IRObject) (*document.Node, error) {
	n, err := s.Build(typeName, attrs)
	if err != nil {
		return nil, err
	}
	if err := s.Insert(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// Insert stores a new root node together with its embedded children. A
// node without an id gets one from the session's generator.
func (s *Session) Insert(ctx context.Context, n *document.Node) error {
	if n.IsEmbedded() {
		return fmt.Errorf("insert %s: embedded documents are saved through their parent", n)
	}
	if n.Type().Embedded {
		return fmt.Errorf("insert %s: type is embedded-only", n)
	}
	if n.Persisted() {
		return fmt.Errorf("insert %s: already persisted", n)
	}
	if n.ID() == "" {
		if err := n.SetID(s.ids.Generate()); err != nil {
			return err
		}
	}
	if err := s.assignIDs(n); err != nil {
		return fmt.Errorf("insert %s: %w", n, err)
	}

	if err := s.store.InsertDocument(ctx, n.Collection(), n.Raw()); err != nil {
		return fmt.Errorf("insert %s: %w", n, err)
	}
	n.MarkPersisted()
	n.ClearChanges()
	if got := s.registry.Register(n); got != n {
		return fmt.Errorf("insert %s: another live node holds this identity", n)
	}

	s.logger.Debug("document created", "collection", n.Collection(), "id", n.ID(), "type", n.Type().Name)
	return nil
}

// assignIDs gives every embedded descendant without an id a fresh one, so
// reload can match children by key.
func (s *Session) assignIDs(n *document.Node) error {
	for _, c := range n.Children() {
		if c.ID() == "" {
			if err := c.SetID(s.ids.Generate()); err != nil {
				return err
			}
		}
		if err := s.assignIDs(c); err != nil {
			return err
		}
	}
	return nil
}

// Find returns the live root of typeName with the given id, loading it on
// first access. A stored document of another type hierarchy, or of a
// supertype of typeName, is reported as not found.
func (s *Session) Find(ctx context.Context, typeName, id string) (*document.Node, error) {
	t, err := s.lookup(typeName)
	if err != nil {
		return nil, err
	}
	if t.Embedded {
		return nil, fmt.Errorf("find %s: embedded documents are reached through their parent", typeName)
	}

	key := identity.Key{Collection: s.schema.Collection(t), ID: id}
	n, err := s.registry.Resolve(ctx, key, func(ctx context.Context) (*document.Node, error) {
		raw, err := s.store.FindDocument(ctx, key.Collection, id)
		if err != nil {
			return nil, err
		}
		return document.FromRaw(s.schema, s.schema.Root(t), raw)
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, &document.DocumentNotFoundError{Type: typeName, ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("find %s %s: %w", typeName, id, err)
	}
	if !s.schema.IsA(n.Type(), t) {
		return nil, &document.DocumentNotFoundError{Type: typeName, ID: id}
	}
	return n, nil
}

// Embed attaches child to parent through relation. When the parent's root
// is persisted the child is written at once: pushed for embeds_many, set
// for embeds_one. The bool is the store acknowledgement.
func (s *Session) Embed(ctx context.Context, parent *document.Node, relation string, child *document.Node) (bool, error) {
	if child.ID() == "" {
		if err := child.SetID(s.ids.Generate()); err != nil {
			return false, err
		}
	}
	if err := s.assignIDs(child); err != nil {
		return false, err
	}
	if err := parent.Embed(relation, child); err != nil {
		return false, err
	}
	if !parent.Persisted() {
		return false, nil
	}

	addr, err := path.Resolve(parent)
	if err != nil {
		return false, err
	}
	upd := store.Update{Operator: store.OpPush}
	if child.Relation().Kind == schema.EmbedsOne {
		upd.Operator = store.OpSet
	}
	upd.Fields = []store.FieldUpdate{{
		Path:   addr.Placeholder().Append(fieldpath.Field(relation)),
		Values: []ir.IRValue{child.Raw()},
	}}

	ok, err := s.send(ctx, addr, upd)
	if err != nil {
		return false, fmt.Errorf("embed %s into %s.%s: %w", child, parent, relation, err)
	}
	if ok {
		child.ClearChanges()
	}
	return ok, nil
}

// Save writes node's dirty fields with one $set. Clean nodes make no store
// call. Acknowledged fields leave the overlay.
func (s *Session) Save(ctx context.Context, node *document.Node) (bool, error) {
	if !node.Persisted() {
		return false, &document.NotPersistedError{Type: node.Type().Name}
	}
	changes := node.Changes()
	if len(changes) == 0 {
		return true, nil
	}

	addr, err := path.Resolve(node)
	if err != nil {
		return false, err
	}

	var sets []store.FieldUpdate
	for _, k := range changes.SortedKeys() {
		sets = append(sets, store.FieldUpdate{
			Path:   addr.Placeholder().Append(fieldpath.Field(k)),
			Values: []ir.IRValue{changes[k]},
		})
	}

	ok, err := s.send(ctx, addr, store.Update{Operator: store.OpSet, Fields: sets})
	if err != nil {
		return false, fmt.Errorf("save %s: %w", node, err)
	}
	if ok {
		node.ClearChanges()
	}
	return ok, nil
}

func (s *Session) send(ctx context.Context, addr path.Address, upd store.Update) (bool, error) {
	upd, err := path.Positionally(addr.Selector(), upd)
	if err != nil {
		return false, err
	}
	return s.store.UpdateDocument(ctx, addr.Selector(), upd)
}

// Becomes re-types node in place to typeName. Identity and registry entry
// are kept; the new type is written on the next Save.
func (s *Session) Becomes(node *document.Node, typeName string) error {
	t, err := s.lookup(typeName)
	if err != nil {
		return err
	}
	return s.registry.Retype(node, func() error { return node.Becomes(t) })
}

// Association resolves every endpoint of a referenced relation.
func (s *Session) Association(ctx context.Context, node *document.Node, relation string, opts ...association.ResolveOption) ([]*document.Node, error) {
	return s.assoc.Many(ctx, node, relation, opts...)
}

// AssociationOne resolves a single-valued relation; nil when unset.
func (s *Session) AssociationOne(ctx context.Context, node *document.Node, relation string, opts ...association.ResolveOption) (*document.Node, error) {
	return s.assoc.One(ctx, node, relation, opts...)
}

// Delete removes node from the store. A root is deleted and evicted from
// the registry, and the result is always acknowledged. An embedded node is
// removed with a single targeted update ($pull by _id, or $unset for
// embeds_one) and dropped from its parent only once the store acknowledges.
func (s *Session) Delete(ctx context.Context, node *document.Node) (bool, error) {
	if !node.Persisted() {
		return false, &document.NotPersistedError{Type: node.Type().Name}
	}
	if !node.IsEmbedded() {
		if err := s.store.DeleteDocument(ctx, node.Collection(), node.ID()); err != nil {
			return false, fmt.Errorf("delete %s: %w", node, err)
		}
		node.MarkDestroyed()
		s.registry.Remove(node)
		return true, nil
	}

	if _, err := path.Resolve(node); err != nil {
		return false, err
	}
	parent := node.Parent()
	rel := node.Relation()
	addr, err := path.Resolve(parent)
	if err != nil {
		return false, err
	}

	field := addr.Placeholder().Append(fieldpath.Field(rel.Name))
	upd := store.Update{Operator: store.OpUnset, Fields: []store.FieldUpdate{{Path: field}}}
	if rel.Kind == schema.EmbedsMany {
		if node.ID() == "" {
			return false, fmt.Errorf("delete %s: embedded document has no id", node)
		}
		match := ir.IRObject{schema.IDField: ir.IRString(node.ID())}
		upd = store.Update{Operator: store.OpPull, Fields: []store.FieldUpdate{{Path: field, Values: []ir.IRValue{match}}}}
	}

	ok, err := s.send(ctx, addr, upd)
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", node, err)
	}
	if !ok {
		return false, nil
	}
	parent.Discard(node)
	return true, nil
}

// Close clears the registry and closes the store if the session opened it.
func (s *Session) Close() error {
	s.registry.Clear()
	if s.ownsStore {
		return s.store.Close()
	}
	return nil
}

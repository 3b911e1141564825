// Package association resolves referenced relations (belongs_to, has_one,
// has_many) between root documents.
//
// Endpoints are resolved lazily on first access, cached on the source node
// and routed through the identity registry, so a target already live in
// memory is returned as is, with its current type.
package association

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/docsync/internal/document"
	"github.com/roach88/docsync/internal/identity"
	"github.com/roach88/docsync/internal/ir"
	"github.com/roach88/docsync/internal/schema"
	"github.com/roach88/docsync/internal/store"
)

// Resolver loads association endpoints from a store.
type Resolver struct {
	store    store.DocumentStore
	registry *identity.Registry
	logger   *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithRegistry routes resolved targets through an identity registry.
func WithRegistry(reg *identity.Registry) Option {
	return func(r *Resolver) { r.registry = reg }
}

// WithLogger sets the resolver's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// New returns a Resolver reading from s.
func New(s store.DocumentStore, opts ...Option) *Resolver {
	r := &Resolver{store: s, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type resolveOptions struct {
	force bool
}

// ResolveOption adjusts a single resolution.
type ResolveOption func(*resolveOptions)

// Force bypasses the node's cache and re-resolves from the store.
func Force() ResolveOption {
	return func(o *resolveOptions) { o.force = true }
}

// Many resolves every endpoint of a referenced relation on n.
func (r *Resolver) Many(ctx context.Context, n *document.Node, relation string, opts ...ResolveOption) ([]*document.Node, error) {
	var o resolveOptions
	for _, opt := range opts {
		opt(&o)
	}

	rel, ok := n.Schema().Relation(n.Type(), relation)
	if !ok || rel.Kind.Embedding() {
		return nil, fmt.Errorf("resolve %s.%s: not a referenced relation", n.Type().Name, relation)
	}
	if !o.force {
		if cached, ok := n.CachedAssociation(relation); ok {
			return cached, nil
		}
	}

	targets, err := r.load(ctx, n, rel)
	if err != nil {
		return nil, fmt.Errorf("resolve %s.%s: %w", n, relation, err)
	}
	n.CacheAssociation(relation, targets)

	r.logger.Debug("association resolved",
		"source", n.String(), "relation", relation,
		"kind", string(rel.Kind), "targets", len(targets), "forced", o.force)
	return targets, nil
}

// One resolves a single-valued relation. It returns nil when no target
// exists.
func (r *Resolver) One(ctx context.Context, n *document.Node, relation string, opts ...ResolveOption) (*document.Node, error) {
	targets, err := r.Many(ctx, n, relation, opts...)
	if err != nil || len(targets) == 0 {
		return nil, err
	}
	return targets[0], nil
}

// Invalidate drops every cached endpoint on n, so the next access
// re-resolves lazily.
func (r *Resolver) Invalidate(n *document.Node) {
	n.InvalidateAssociations()
}

func (r *Resolver) load(ctx context.Context, n *document.Node, rel schema.Relation) ([]*document.Node, error) {
	sch := n.Schema()
	target, ok := sch.Lookup(rel.Target)
	if !ok {
		return nil, fmt.Errorf("unknown type %q", rel.Target)
	}
	collection := sch.Collection(target)

	switch rel.Kind {
	case schema.BelongsTo:
		fk, ok := n.Get(rel.ForeignKey)
		id, isString := fk.(ir.IRString)
		if !ok || !isString || id == "" {
			return []*document.Node{}, nil
		}
		key := identity.Key{Collection: collection, ID: string(id)}
		node, err := r.registry.Resolve(ctx, key, func(ctx context.Context) (*document.Node, error) {
			raw, err := r.store.FindDocument(ctx, collection, string(id))
			if err != nil {
				return nil, err
			}
			return document.FromRaw(sch, target, raw)
		})
		if errors.Is(err, store.ErrNotFound) {
			return []*document.Node{}, nil
		}
		if err != nil {
			return nil, err
		}
		return []*document.Node{node}, nil

	case schema.HasOne, schema.HasMany:
		if n.ID() == "" {
			return []*document.Node{}, nil
		}
		raws, err := r.store.FindBy(ctx, collection, rel.ForeignKey, ir.IRString(n.ID()))
		if err != nil {
			return nil, err
		}
		if rel.Kind == schema.HasOne && len(raws) > 1 {
			raws = raws[:1]
		}

		out := make([]*document.Node, 0, len(raws))
		for _, raw := range raws {
			node, err := document.FromRaw(sch, target, raw)
			if err != nil {
				return nil, err
			}
			out = append(out, r.registry.Register(node))
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unsupported relation kind %s", rel.Kind)
	}
}

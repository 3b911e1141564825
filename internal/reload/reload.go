// Package reload refreshes in-memory document nodes from the store.
//
// A reload fetches the root document once, locates the target's raw state
// inside it and builds a detached replacement tree before touching the
// live graph. Either the whole target is refreshed or nothing changes.
package reload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/docsync/internal/document"
	"github.com/roach88/docsync/internal/fieldpath"
	"github.com/roach88/docsync/internal/identity"
	"github.com/roach88/docsync/internal/ir"
	"github.com/roach88/docsync/internal/path"
	"github.com/roach88/docsync/internal/schema"
	"github.com/roach88/docsync/internal/store"
)

// Invalidator drops cached association endpoints of a root node.
type Invalidator interface {
	Invalidate(n *document.Node)
}

type nodeCache struct{}

func (nodeCache) Invalidate(n *document.Node) { n.InvalidateAssociations() }

// Coordinator reloads nodes against a store.
type Coordinator struct {
	store       store.DocumentStore
	registry    *identity.Registry
	invalidator Invalidator
	logger      *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRegistry routes root reloads through an identity registry.
func WithRegistry(r *identity.Registry) Option {
	return func(c *Coordinator) { c.registry = r }
}

// WithInvalidator sets how association caches are dropped after a root
// reload. The default clears the node's own cache.
func WithInvalidator(inv Invalidator) Option {
	return func(c *Coordinator) { c.invalidator = inv }
}

// WithLogger sets the coordinator's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// New returns a Coordinator reading from s.
func New(s store.DocumentStore, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:       s,
		invalidator: nodeCache{},
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Reload refreshes node from the store and returns it. For a root node with
// an active registry the registered instance is refreshed and returned.
//
// Fails with *document.DocumentNotFoundError when the root has no identity
// (without a store call), when the store has no such root, or when the
// embedded target's path no longer exists in it.
func (c *Coordinator) Reload(ctx context.Context, node *document.Node) (*document.Node, error) {
	root := node.Root()
	if !root.Persisted() {
		return nil, &document.DocumentNotFoundError{Type: node.Type().Name, ID: root.ID()}
	}

	addr, err := path.Resolve(node)
	if err != nil {
		return nil, fmt.Errorf("reload %s: %w", node, err)
	}

	raw, err := c.store.FindDocument(ctx, addr.Collection, addr.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &document.DocumentNotFoundError{Type: root.Type().Name, ID: root.ID()}
	}
	if err != nil {
		return nil, fmt.Errorf("reload %s: %w", node, err)
	}

	sch := root.Schema()
	rootType, err := document.TypeOf(sch, root.Type(), raw)
	if err != nil {
		return nil, fmt.Errorf("reload %s: %w", node, err)
	}

	if addr.IsRoot() {
		return c.reloadRoot(root, rootType, raw)
	}
	return c.reloadEmbedded(node, root, rootType, addr, raw)
}

func (c *Coordinator) reloadRoot(root *document.Node, rootType *schema.Type, raw ir.IRObject) (*document.Node, error) {
	target := root
	if key, ok := identity.KeyOf(root); ok {
		target = c.registry.Register(root)
		if target != root {
			c.logger.Debug("reload redirected to registered instance", "key", key.String())
		}
	}

	fresh, err := document.FromRaw(target.Schema(), rootType, raw)
	if err != nil {
		return nil, fmt.Errorf("reload %s: %w", target, err)
	}

	changed := digestOf(target.Raw()) != digestOf(raw)
	err = c.registry.Retype(target, func() error {
		if err := target.Retype(rootType); err != nil {
			return err
		}
		return reconcile(target, fresh)
	})
	if err != nil {
		return nil, fmt.Errorf("reload %s: %w", target, err)
	}
	target.MarkPersisted()
	c.invalidator.Invalidate(target)

	c.logger.Debug("reloaded root",
		"collection", target.Collection(), "id", target.ID(),
		"type", target.Type().Name, "changed", changed)
	return target, nil
}

func (c *Coordinator) reloadEmbedded(node, root *document.Node, rootType *schema.Type, addr path.Address, raw ir.IRObject) (*document.Node, error) {
	// A different "_id" at the same position means the element was
	// replaced upstream; the node itself is gone.
	sub, ok := walk(raw, addr.Path)
	if id, hasID := sub[schema.IDField].(ir.IRString); ok && hasID && node.ID() != "" && string(id) != node.ID() {
		ok = false
	}
	if !ok {
		return nil, &document.DocumentNotFoundError{Type: node.Type().Name, ID: root.ID(), Path: addr.Path}
	}

	sch := node.Schema()
	typ, err := document.TypeOf(sch, node.Type(), sub)
	if err != nil {
		return nil, fmt.Errorf("reload %s at %s: %w", node, addr.Path, err)
	}
	fresh, err := document.FromRaw(sch, typ, sub)
	if err != nil {
		return nil, fmt.Errorf("reload %s at %s: %w", node, addr.Path, err)
	}

	if err := c.registry.Retype(root, func() error { return root.Retype(rootType) }); err != nil {
		return nil, fmt.Errorf("reload %s: %w", root, err)
	}
	if err := node.Retype(typ); err != nil {
		return nil, fmt.Errorf("reload %s at %s: %w", node, addr.Path, err)
	}
	if err := reconcile(node, fresh); err != nil {
		return nil, fmt.Errorf("reload %s at %s: %w", node, addr.Path, err)
	}

	c.logger.Debug("reloaded embedded",
		"collection", addr.Collection, "id", addr.ID, "path", addr.Path.String())
	return node, nil
}

// walk follows an embedded path through a raw root document.
func walk(raw ir.IRObject, p fieldpath.Path) (ir.IRObject, bool) {
	var cur ir.IRValue = raw
	for _, seg := range p {
		switch seg.Kind {
		case fieldpath.KindField:
			obj, ok := cur.(ir.IRObject)
			if !ok {
				return nil, false
			}
			if cur, ok = obj[seg.Field]; !ok {
				return nil, false
			}
		case fieldpath.KindIndex:
			arr, ok := cur.(ir.IRArray)
			if !ok || seg.Index >= len(arr) {
				return nil, false
			}
			cur = arr[seg.Index]
		default:
			return nil, false
		}
	}
	obj, ok := cur.(ir.IRObject)
	return obj, ok
}

// reconcile makes live mirror fresh: attributes are replaced wholesale, the
// overlay cleared, and each embedded collection rebuilt. Children are
// matched by "_id" first, then by position for children without one; a
// matched live child keeps its identity and is reconciled recursively.
// Unmatched fresh children are adopted as they are and unmatched live
// children dropped.
func reconcile(live, fresh *document.Node) error {
	live.Replace(fresh.Attributes())

	sch := live.Schema()
	for _, rel := range sch.EmbeddedRelations(live.Type()) {
		var next []*document.Node
		switch rel.Kind {
		case schema.EmbedsMany:
			for _, m := range match(live.Embedded(rel.Name), fresh.Embedded(rel.Name)) {
				kid, err := adoptMatch(m)
				if err != nil {
					return err
				}
				next = append(next, kid)
			}
		case schema.EmbedsOne:
			f := fresh.EmbeddedOne(rel.Name)
			if f == nil {
				break
			}
			var l *document.Node
			if cur := live.EmbeddedOne(rel.Name); cur != nil && sameSlot(cur, f) {
				l = cur
			}
			kid, err := adoptMatch(pair{live: l, fresh: f})
			if err != nil {
				return err
			}
			next = []*document.Node{kid}
		}
		if err := live.ReplaceEmbedded(rel.Name, next); err != nil {
			return err
		}
	}
	return nil
}

type pair struct {
	live  *document.Node // nil when unmatched
	fresh *document.Node
}

func adoptMatch(m pair) (*document.Node, error) {
	if m.live == nil {
		return m.fresh, nil
	}
	if err := m.live.Retype(m.fresh.Type()); err != nil {
		return nil, err
	}
	if err := reconcile(m.live, m.fresh); err != nil {
		return nil, err
	}
	return m.live, nil
}

// match pairs each fresh child with the live child it continues, in fresh
// order.
func match(live, fresh []*document.Node) []pair {
	byID := make(map[string]*document.Node, len(live))
	for _, n := range live {
		if n.ID() != "" {
			byID[n.ID()] = n
		}
	}
	used := make(map[*document.Node]bool, len(live))

	out := make([]pair, len(fresh))
	for i, f := range fresh {
		out[i].fresh = f
		var cand *document.Node
		if f.ID() != "" {
			cand = byID[f.ID()]
		} else if i < len(live) && live[i].ID() == "" {
			cand = live[i]
		}
		if cand != nil && !used[cand] && cand.Schema().SameHierarchy(cand.Type(), f.Type()) {
			used[cand] = true
			out[i].live = cand
		}
	}
	return out
}

// sameSlot reports whether a fresh embeds_one child continues the live one.
func sameSlot(live, fresh *document.Node) bool {
	if live.ID() != "" && fresh.ID() != "" && live.ID() != fresh.ID() {
		return false
	}
	return live.Schema().SameHierarchy(live.Type(), fresh.Type())
}

func digestOf(doc ir.IRObject) string {
	d, err := ir.Digest(doc)
	if err != nil {
		return ""
	}
	return d
}

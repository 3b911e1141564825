// Package path computes storage addresses for document nodes and rewrites
// positional update paths against them.
//
// An address is recomputed on every call. Sibling insertions and removals
// shift positions, so a cached address goes stale without notice.
package path

import (
	"errors"
	"fmt"

	"github.com/roach88/docsync/internal/document"
	"github.com/roach88/docsync/internal/fieldpath"
	"github.com/roach88/docsync/internal/schema"
	"github.com/roach88/docsync/internal/store"
)

// Address locates a node inside the store: the root document selector plus
// the path from the root to the node. Path is empty for roots.
type Address struct {
	Collection string
	ID         string
	Path       fieldpath.Path
}

// IsRoot reports whether the address names a root document.
func (a Address) IsRoot() bool { return len(a.Path) == 0 }

// Positions returns the resolved collection indexes along the path,
// outermost first.
func (a Address) Positions() []int { return a.Path.Positions() }

// Placeholder returns the path with every resolved index replaced by the
// positional placeholder, e.g. "addresses.$.locations.$".
func (a Address) Placeholder() fieldpath.Path { return a.Path.Positional() }

// Field returns the concrete path of a field on the addressed node.
func (a Address) Field(name string) fieldpath.Path {
	return a.Path.Append(fieldpath.Field(name))
}

// Selector returns the store selector for the address, carrying the
// resolved positions for placeholder substitution.
func (a Address) Selector() store.Selector {
	return store.Selector{Collection: a.Collection, ID: a.ID, Positions: a.Positions()}
}

func (a Address) String() string {
	if a.IsRoot() {
		return a.Collection + "/" + a.ID
	}
	return a.Collection + "/" + a.ID + "#" + a.Path.String()
}

// Resolve computes the address of node by walking its parent back-edges to
// the root. Positions are found by identity in the parent's current
// collection.
func Resolve(node *document.Node) (Address, error) {
	var segs []fieldpath.Segment
	cur := node
	for cur.IsEmbedded() {
		parent := cur.Parent()
		rel := cur.Relation()

		switch rel.Kind {
		case schema.EmbedsMany:
			i := parent.IndexOf(cur)
			if i < 0 {
				return Address{}, indexNotFound(cur)
			}
			segs = append(segs, fieldpath.Index(i), fieldpath.Field(rel.Name))
		case schema.EmbedsOne:
			if parent.EmbeddedOne(rel.Name) != cur {
				return Address{}, indexNotFound(cur)
			}
			segs = append(segs, fieldpath.Field(rel.Name))
		}
		cur = parent
	}

	// segs was collected node-to-root.
	p := make(fieldpath.Path, len(segs))
	for i, s := range segs {
		p[len(segs)-1-i] = s
	}
	return Address{
		Collection: cur.Collection(),
		ID:         cur.ID(),
		Path:       p,
	}, nil
}

// Walk follows a concrete embedding path such as "addresses.0.name" down
// from node. It is the inverse of Resolve.
func Walk(node *document.Node, p fieldpath.Path) (*document.Node, error) {
	cur := node
	for i := 0; i < len(p); i++ {
		seg := p[i]
		if seg.Kind != fieldpath.KindField {
			return nil, fmt.Errorf("walk %s: expected a relation name at %s", p, seg)
		}
		if i+1 < len(p) && p[i+1].Kind == fieldpath.KindIndex {
			children := cur.Embedded(seg.Field)
			idx := p[i+1].Index
			if idx >= len(children) {
				return nil, fmt.Errorf("walk %s: %s has %d children", p, seg.Field, len(children))
			}
			cur = children[idx]
			i++
			continue
		}
		next := cur.EmbeddedOne(seg.Field)
		if next == nil {
			return nil, fmt.Errorf("walk %s: no embedded %s", p, seg.Field)
		}
		cur = next
	}
	return cur, nil
}

func indexNotFound(n *document.Node) error {
	return &document.IndexNotFoundError{
		Type:     n.Type().Name,
		Relation: n.Relation().Name,
		ID:       n.ID(),
	}
}

// PositionError is returned when an update path has more positional
// placeholders than the selector has resolved positions.
type PositionError struct {
	Path      fieldpath.Path
	Positions []int
}

func (e *PositionError) Error() string {
	return fmt.Sprintf("positional path %s: %d placeholders, %d resolved positions",
		e.Path, e.Path.Placeholders(), len(e.Positions))
}

// IsPositionError returns true if err is or wraps a *PositionError.
func IsPositionError(err error) bool {
	var e *PositionError
	return errors.As(err, &e)
}

// Positionally substitutes each placeholder in upd's field paths with the
// selector's resolved positions, left to right. Paths without placeholders
// pass through unchanged. upd is not modified.
func Positionally(sel store.Selector, upd store.Update) (store.Update, error) {
	out := store.Update{Operator: upd.Operator, Fields: make([]store.FieldUpdate, len(upd.Fields))}
	for i, f := range upd.Fields {
		p, err := substitute(f.Path, sel.Positions)
		if err != nil {
			return store.Update{}, err
		}
		out.Fields[i] = store.FieldUpdate{Path: p, Values: f.Values}
	}
	return out, nil
}

func substitute(p fieldpath.Path, positions []int) (fieldpath.Path, error) {
	if p.Placeholders() == 0 {
		return p, nil
	}
	if p.Placeholders() > len(positions) {
		return nil, &PositionError{Path: p, Positions: positions}
	}

	out := make(fieldpath.Path, len(p))
	next := 0
	for i, s := range p {
		if s.Kind == fieldpath.KindPlaceholder {
			s = fieldpath.Index(positions[next])
			next++
		}
		out[i] = s
	}
	return out, nil
}

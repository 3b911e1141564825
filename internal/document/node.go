package document

import (
	"fmt"
	"slices"
	"sort"

	"github.com/roach88/docsync/internal/ir"
	"github.com/roach88/docsync/internal/schema"
)

// Node is one in-memory document: a root stored in a collection or a child
// embedded inside another node.
//
// A Node is not safe for concurrent use. Each object graph is owned by one
// goroutine; only the identity registry is shared.
type Node struct {
	sch *schema.Schema
	typ *schema.Type
	id  string

	persisted bool
	destroyed bool

	attrs ir.IRObject
	// changes maps each dirty field to its value before the first change.
	// A nil entry means the field was absent.
	changes map[string]ir.IRValue

	parent   *Node
	relation schema.Relation

	many map[string][]*Node
	one  map[string]*Node

	assoc map[string][]*Node
}

// New returns an empty, unpersisted node of type t.
func New(s *schema.Schema, t *schema.Type, id string) *Node {
	return &Node{
		sch:   s,
		typ:   t,
		id:    id,
		attrs: make(ir.IRObject),
	}
}

// FromRaw builds a persisted node tree from a stored document. A "_type"
// key naming another type of t's hierarchy selects that type instead.
// Undeclared attributes are kept: stored data is authoritative.
func FromRaw(s *schema.Schema, t *schema.Type, raw ir.IRObject) (*Node, error) {
	n, err := fromRaw(s, t, raw)
	if err != nil {
		return nil, err
	}
	n.persisted = true
	return n, nil
}

func fromRaw(s *schema.Schema, t *schema.Type, raw ir.IRObject) (*Node, error) {
	typ, err := TypeOf(s, t, raw)
	if err != nil {
		return nil, err
	}

	n := New(s, typ, "")
	if id, ok := raw[schema.IDField].(ir.IRString); ok {
		n.id = string(id)
	}

	for k, v := range raw {
		if k == schema.IDField || k == schema.TypeField {
			continue
		}
		if rel, ok := s.Relation(typ, k); ok && rel.Kind.Embedding() {
			continue
		}
		n.attrs[k] = ir.Clone(v)
	}

	for _, rel := range s.EmbeddedRelations(typ) {
		v, present := raw[rel.Name]
		if !present {
			continue
		}
		if _, isNull := v.(ir.IRNull); isNull {
			continue
		}
		target, ok := s.Lookup(rel.Target)
		if !ok {
			return nil, fmt.Errorf("build %s.%s: unknown type %q", typ.Name, rel.Name, rel.Target)
		}

		switch rel.Kind {
		case schema.EmbedsMany:
			arr, ok := v.(ir.IRArray)
			if !ok {
				return nil, fmt.Errorf("build %s.%s: expected array, got %s", typ.Name, rel.Name, schema.KindOf(v))
			}
			for i, elem := range arr {
				obj, ok := elem.(ir.IRObject)
				if !ok {
					return nil, fmt.Errorf("build %s.%s.%d: expected object, got %s", typ.Name, rel.Name, i, schema.KindOf(elem))
				}
				child, err := fromRaw(s, target, obj)
				if err != nil {
					return nil, err
				}
				n.adopt(rel, child)
			}
		case schema.EmbedsOne:
			obj, ok := v.(ir.IRObject)
			if !ok {
				return nil, fmt.Errorf("build %s.%s: expected object, got %s", typ.Name, rel.Name, schema.KindOf(v))
			}
			child, err := fromRaw(s, target, obj)
			if err != nil {
				return nil, err
			}
			n.adopt(rel, child)
		}
	}
	return n, nil
}

// TypeOf returns the concrete type a raw document declares through "_type",
// or base when it declares none. The declared type must share base's hierarchy.
func TypeOf(s *schema.Schema, base *schema.Type, raw ir.IRObject) (*schema.Type, error) {
	name, ok := raw[schema.TypeField].(ir.IRString)
	if !ok || string(name) == base.Name {
		return base, nil
	}
	t, ok := s.Lookup(string(name))
	if !ok {
		return nil, fmt.Errorf("resolve type: unknown document type %q", name)
	}
	if !s.SameHierarchy(base, t) {
		return nil, fmt.Errorf("resolve type: %q is not in the %s hierarchy", name, s.Root(base).Name)
	}
	return t, nil
}

// Schema returns the schema the node was built against.
func (n *Node) Schema() *schema.Schema { return n.sch }

// Type returns the node's current type.
func (n *Node) Type() *schema.Type { return n.typ }

// ID returns the store identifier ("_id"), or "" if none was assigned.
func (n *Node) ID() string { return n.id }

// SetID assigns an identifier to a node that has none.
func (n *Node) SetID(id string) error {
	if n.id != "" && n.id != id {
		return fmt.Errorf("set id on %s: already has id %s", n.typ.Name, n.id)
	}
	n.id = id
	return nil
}

// Collection returns the store collection of the node's hierarchy root type.
// Embedded nodes report their root's collection.
func (n *Node) Collection() string {
	r := n.Root()
	return r.sch.Collection(r.typ)
}

// IsEmbedded reports whether n lives inside another node.
func (n *Node) IsEmbedded() bool { return n.parent != nil }

// Parent returns the node n is embedded in, or nil for a root.
func (n *Node) Parent() *Node { return n.parent }

// Relation returns the parent relation n is embedded through.
// Zero for roots.
func (n *Node) Relation() schema.Relation { return n.relation }

// Inverse returns the name the parent is known by from n, if declared.
func (n *Node) Inverse() string { return n.relation.Inverse }

// Root returns the top of n's ancestor chain, or n itself.
func (n *Node) Root() *Node {
	cur := n
	for cur.parent != nil {
		cur = cur.parent
	}
	return cur
}

// Persisted reports whether the root of n has been stored under an identifier.
func (n *Node) Persisted() bool {
	r := n.Root()
	return r.persisted && r.id != ""
}

// MarkPersisted records that the node (a root) now exists in the store.
func (n *Node) MarkPersisted() { n.persisted = true }

// Destroyed reports whether the node, or the root holding it, was deleted.
func (n *Node) Destroyed() bool { return n.destroyed || n.Root().destroyed }

// MarkDestroyed records that the root was deleted.
func (n *Node) MarkDestroyed() {
	n.destroyed = true
	n.persisted = false
}

// Get returns the current value of an attribute.
func (n *Node) Get(field string) (ir.IRValue, bool) {
	v, ok := n.attrs[field]
	return v, ok
}

// Attributes returns a copy of the node's own attributes. Embedded children
// and the reserved keys are not included.
func (n *Node) Attributes() ir.IRObject {
	return n.attrs.Clone()
}

// Set assigns an attribute after validating it against the node's type and
// records the change in the dirty overlay.
func (n *Node) Set(field string, value ir.IRValue) error {
	if err := n.sch.Cast(n.typ, field, value); err != nil {
		return err
	}
	n.assign(field, value)
	return nil
}

func (n *Node) assign(field string, value ir.IRValue) {
	old, had := n.attrs[field]
	orig, seen := n.changes[field]
	if !seen {
		if n.changes == nil {
			n.changes = make(map[string]ir.IRValue)
		}
		if had {
			orig = ir.Clone(old)
		}
		n.changes[field] = orig
	}
	n.attrs[field] = value

	if orig != nil && ir.Equal(orig, value) {
		delete(n.changes, field)
	}
}

// Changed returns the dirty field names, sorted.
func (n *Node) Changed() []string {
	out := make([]string, 0, len(n.changes))
	for k := range n.changes {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// IsChanged reports whether any field is dirty.
func (n *Node) IsChanged() bool { return len(n.changes) > 0 }

// Changes returns the current values of every dirty field.
func (n *Node) Changes() ir.IRObject {
	out := make(ir.IRObject, len(n.changes))
	for k := range n.changes {
		if k == schema.TypeField {
			out[k] = ir.IRString(n.typ.Name)
			continue
		}
		if v, ok := n.attrs[k]; ok {
			out[k] = ir.Clone(v)
		}
	}
	return out
}

// Was returns a dirty field's value before its first change.
// ok is false when the field is clean or was previously absent.
func (n *Node) Was(field string) (ir.IRValue, bool) {
	v, ok := n.changes[field]
	return v, ok && v != nil
}

// ClearChanges removes fields from the dirty overlay; with no arguments it
// clears the whole overlay.
func (n *Node) ClearChanges(fields ...string) {
	if len(fields) == 0 {
		n.changes = nil
		return
	}
	for _, f := range fields {
		delete(n.changes, f)
	}
}

// Replace swaps the node's attributes for attrs wholesale and clears the
// dirty overlay in the same step.
func (n *Node) Replace(attrs ir.IRObject) {
	n.attrs = attrs.Clone()
	if n.attrs == nil {
		n.attrs = make(ir.IRObject)
	}
	n.changes = nil
}

// Retype changes the node's type within its hierarchy without touching
// attributes.
func (n *Node) Retype(t *schema.Type) error {
	if t == n.typ {
		return nil
	}
	if !n.sch.SameHierarchy(n.typ, t) {
		return fmt.Errorf("retype %s to %s: different hierarchies", n.typ.Name, t.Name)
	}
	n.typ = t
	return nil
}

// Becomes re-types the node in place. Attributes are conformed to t: kinds
// are validated and undeclared fields dropped unless t is dynamic. The type
// change is recorded in the dirty overlay under "_type".
func (n *Node) Becomes(t *schema.Type) error {
	if !n.sch.SameHierarchy(n.typ, t) {
		return fmt.Errorf("becomes %s: %s is in another hierarchy", t.Name, n.typ.Name)
	}
	attrs, err := n.sch.Conform(t, n.attrs)
	if err != nil {
		return err
	}

	prev := n.typ
	n.typ = t
	n.attrs = attrs
	for f := range n.changes {
		if _, kept := attrs[f]; !kept && f != schema.TypeField {
			delete(n.changes, f)
		}
	}

	orig, seen := n.changes[schema.TypeField]
	if !seen {
		orig = ir.IRString(prev.Name)
	}
	if n.changes == nil {
		n.changes = make(map[string]ir.IRValue)
	}
	n.changes[schema.TypeField] = orig
	if ir.Equal(orig, ir.IRString(t.Name)) {
		delete(n.changes, schema.TypeField)
	}
	return nil
}

// Embedded returns the children of an embeds_many relation in order.
func (n *Node) Embedded(relation string) []*Node {
	return slices.Clone(n.many[relation])
}

// EmbeddedOne returns the child of an embeds_one relation, or nil.
func (n *Node) EmbeddedOne(relation string) *Node {
	return n.one[relation]
}

// Children returns every embedded child, relation by relation in schema order.
func (n *Node) Children() []*Node {
	var out []*Node
	for _, rel := range n.sch.EmbeddedRelations(n.typ) {
		switch rel.Kind {
		case schema.EmbedsMany:
			out = append(out, n.many[rel.Name]...)
		case schema.EmbedsOne:
			if c := n.one[rel.Name]; c != nil {
				out = append(out, c)
			}
		}
	}
	return out
}

// Embed attaches a detached child through an embedding relation. For
// embeds_many the child is appended; for embeds_one it replaces any
// current child, which is detached.
func (n *Node) Embed(relation string, child *Node) error {
	rel, err := n.embeddingRelation(relation)
	if err != nil {
		return err
	}
	if child.parent != nil {
		return fmt.Errorf("embed %s into %s.%s: already embedded in %s", child.typ.Name, n.typ.Name, relation, child.parent.typ.Name)
	}
	if child == n.Root() {
		return fmt.Errorf("embed %s into %s.%s: cycle", child.typ.Name, n.typ.Name, relation)
	}
	target, ok := n.sch.Lookup(rel.Target)
	if !ok || !n.sch.IsA(child.typ, target) {
		return fmt.Errorf("embed %s into %s.%s: expected %s", child.typ.Name, n.typ.Name, relation, rel.Target)
	}
	n.adopt(rel, child)
	return nil
}

func (n *Node) embeddingRelation(name string) (schema.Relation, error) {
	rel, ok := n.sch.Relation(n.typ, name)
	if !ok || !rel.Kind.Embedding() {
		return schema.Relation{}, fmt.Errorf("%s has no embedded relation %q", n.typ.Name, name)
	}
	return rel, nil
}

func (n *Node) adopt(rel schema.Relation, child *Node) {
	child.parent = n
	child.relation = rel
	switch rel.Kind {
	case schema.EmbedsMany:
		if n.many == nil {
			n.many = make(map[string][]*Node)
		}
		n.many[rel.Name] = append(n.many[rel.Name], child)
	case schema.EmbedsOne:
		if n.one == nil {
			n.one = make(map[string]*Node)
		}
		if old := n.one[rel.Name]; old != nil && old != child {
			old.detach()
		}
		n.one[rel.Name] = child
	}
}

func (n *Node) detach() {
	n.parent = nil
	n.relation = schema.Relation{}
}

// Remove detaches child from n. It reports whether child was embedded in n.
func (n *Node) Remove(child *Node) bool {
	if !n.unlink(child) {
		return false
	}
	child.detach()
	return true
}

// Discard removes child from n's collection and marks it destroyed. Unlike
// Remove, the child keeps its back-edge, so it still names the parent and
// relation it was dropped from but is no longer a member there.
func (n *Node) Discard(child *Node) bool {
	if !n.unlink(child) {
		return false
	}
	child.destroyed = true
	return true
}

func (n *Node) unlink(child *Node) bool {
	if child.parent != n {
		return false
	}
	name := child.relation.Name
	switch child.relation.Kind {
	case schema.EmbedsMany:
		i := n.IndexOf(child)
		if i < 0 {
			return false
		}
		n.many[name] = slices.Delete(n.many[name], i, i+1)
	case schema.EmbedsOne:
		if n.one[name] != child {
			return false
		}
		delete(n.one, name)
	}
	return true
}

// IndexOf returns child's position in its embeds_many collection on n, by
// identity, or -1 when child is not a member.
func (n *Node) IndexOf(child *Node) int {
	return slices.Index(n.many[child.relation.Name], child)
}

// ReplaceEmbedded sets the members of an embedding relation. Previous
// members not in children are detached; children are adopted in order.
func (n *Node) ReplaceEmbedded(relation string, children []*Node) error {
	rel, err := n.embeddingRelation(relation)
	if err != nil {
		return err
	}
	if rel.Kind == schema.EmbedsOne && len(children) > 1 {
		return fmt.Errorf("replace %s.%s: embeds_one takes at most one child", n.typ.Name, relation)
	}

	var old []*Node
	switch rel.Kind {
	case schema.EmbedsMany:
		old = n.many[relation]
		delete(n.many, relation)
	case schema.EmbedsOne:
		if c := n.one[relation]; c != nil {
			old = []*Node{c}
		}
		delete(n.one, relation)
	}
	for _, c := range old {
		if !slices.Contains(children, c) {
			c.detach()
		}
	}
	for _, c := range children {
		c.detach()
		n.adopt(rel, c)
	}
	return nil
}

// CachedAssociation returns the resolved endpoints of a referenced relation.
func (n *Node) CachedAssociation(relation string) ([]*Node, bool) {
	v, ok := n.assoc[relation]
	return v, ok
}

// CacheAssociation stores resolved endpoints of a referenced relation.
func (n *Node) CacheAssociation(relation string, targets []*Node) {
	if n.assoc == nil {
		n.assoc = make(map[string][]*Node)
	}
	n.assoc[relation] = targets
}

// InvalidateAssociations drops cached endpoints so the next access
// re-resolves them. With no arguments every relation is dropped.
func (n *Node) InvalidateAssociations(relations ...string) {
	if len(relations) == 0 {
		n.assoc = nil
		return
	}
	for _, r := range relations {
		delete(n.assoc, r)
	}
}

// Raw serialises the node and its embedded subtree to a stored document.
func (n *Node) Raw() ir.IRObject {
	out := n.attrs.Clone()
	if out == nil {
		out = make(ir.IRObject)
	}
	if n.id != "" {
		out[schema.IDField] = ir.IRString(n.id)
	}
	out[schema.TypeField] = ir.IRString(n.typ.Name)

	for _, rel := range n.sch.EmbeddedRelations(n.typ) {
		switch rel.Kind {
		case schema.EmbedsMany:
			children := n.many[rel.Name]
			if len(children) == 0 {
				continue
			}
			arr := make(ir.IRArray, len(children))
			for i, c := range children {
				arr[i] = c.Raw()
			}
			out[rel.Name] = arr
		case schema.EmbedsOne:
			if c := n.one[rel.Name]; c != nil {
				out[rel.Name] = c.Raw()
			}
		}
	}
	return out
}

// String identifies the node for logs.
func (n *Node) String() string {
	if n.id == "" {
		return n.typ.Name + "(new)"
	}
	return fmt.Sprintf("%s(%s)", n.typ.Name, n.id)
}

// Package identity keeps at most one live in-memory node per stored root
// document.
//
// A Registry is created at session start and cleared at session end. A nil
// *Registry is valid and disables identity mapping: every method degrades to
// a pass-through.
package identity

import (
	"context"
	"sync"

	"github.com/roach88/docsync/internal/document"
)

// Key identifies a stored root. Collection is the collection of the type
// hierarchy root, so a node keeps its key when it is re-typed.
type Key struct {
	Collection string
	ID         string
}

func (k Key) String() string { return k.Collection + "/" + k.ID }

// KeyOf returns the registry key of a root node. ok is false for embedded
// nodes and nodes without an identifier.
func KeyOf(n *document.Node) (Key, bool) {
	if n == nil || n.IsEmbedded() || n.ID() == "" {
		return Key{}, false
	}
	return Key{Collection: n.Collection(), ID: n.ID()}, true
}

// Registry maps keys to live root nodes.
//
// Thread-safety: all methods are safe for concurrent use. The nodes
// themselves are not; see document.Node.
type Registry struct {
	mu    sync.Mutex
	nodes map[Key]*document.Node
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{nodes: make(map[Key]*document.Node)}
}

// Enabled reports whether identity mapping is active.
func (r *Registry) Enabled() bool { return r != nil }

// Get returns the live node registered under key.
func (r *Registry) Get(key Key) (*document.Node, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookup(key)
}

// lookup must be called with mu held. Destroyed nodes are evicted.
func (r *Registry) lookup(key Key) (*document.Node, bool) {
	n, ok := r.nodes[key]
	if !ok {
		return nil, false
	}
	if n.Destroyed() {
		delete(r.nodes, key)
		return nil, false
	}
	return n, true
}

// Register records n as the live node for its key and returns it. If
// another live node already holds the key, that node is returned instead
// and n is not registered. Nodes without a key are returned unchanged.
func (r *Registry) Register(n *document.Node) *document.Node {
	key, ok := KeyOf(n)
	if r == nil || !ok {
		return n
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.lookup(key); ok {
		return existing
	}
	r.nodes[key] = n
	return n
}

// Resolve returns the live node for key, calling load when there is none.
// load runs without the lock held; if another caller registered the key in
// the meantime, that node wins and load's result is discarded. Concurrent
// resolvers of one key therefore all receive the same node.
func (r *Registry) Resolve(ctx context.Context, key Key, load func(context.Context) (*document.Node, error)) (*document.Node, error) {
	if r == nil {
		return load(ctx)
	}

	r.mu.Lock()
	if n, ok := r.lookup(key); ok {
		r.mu.Unlock()
		return n, nil
	}
	r.mu.Unlock()

	loaded, err := load(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Re-check: another goroutine may have registered while we loaded.
	if n, ok := r.lookup(key); ok {
		return n, nil
	}
	r.nodes[key] = loaded
	return loaded, nil
}

// Retype runs fn, which changes n's type, while holding the registry lock,
// so no resolver observes the node mid-change. The key is unaffected.
func (r *Registry) Retype(n *document.Node, fn func() error) error {
	if r == nil {
		return fn()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn()
}

// Remove drops n's entry if n is the registered node for its key.
func (r *Registry) Remove(n *document.Node) {
	key, ok := KeyOf(n)
	if r == nil || !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.nodes[key] == n {
		delete(r.nodes, key)
	}
}

// Clear drops every entry.
func (r *Registry) Clear() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes = make(map[Key]*document.Node)
}

// Len returns the number of entries, including any destroyed nodes not
// yet evicted.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.nodes)
}

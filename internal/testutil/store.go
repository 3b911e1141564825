// Package testutil holds store doubles for tests of the document core.
package testutil

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/roach88/docsync/internal/ir"
	"github.com/roach88/docsync/internal/store"
)

// CountingStore wraps a DocumentStore and records every call.
// Tests use it to assert that an operation made no store round trip.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type CountingStore struct {
	store.DocumentStore

	mu    sync.Mutex
	calls map[string]int

	updates []RecordedUpdate // in call order

	nack bool
	fail error
}

// RecordedUpdate is one UpdateDocument call.
type RecordedUpdate struct {
	Selector store.Selector
	Update   store.Update
}

// NewCountingStore wraps inner.
func NewCountingStore(inner store.DocumentStore) *CountingStore {
	return &CountingStore{DocumentStore: inner, calls: make(map[string]int)}
}

func (s *CountingStore) record(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[name]++
}

// Calls returns how many times the named method was called.
func (s *CountingStore) Calls(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

// Total returns the number of calls across all methods except Close.
func (s *CountingStore) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for name, c := range s.calls {
		if name != "Close" {
			n += c
		}
	}
	return n
}

// Updates returns the recorded updates.
func (s *CountingStore) Updates() []RecordedUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecordedUpdate, len(s.updates))
	copy(out, s.updates)
	return out
}

// Reset clears counters and recorded updates.
func (s *CountingStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = make(map[string]int)
	s.updates = nil
}

// Nack makes subsequent updates go unacknowledged.
func (s *CountingStore) Nack(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nack = on
}

// FailUpdates makes subsequent updates return err. nil restores writes.
func (s *CountingStore) FailUpdates(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

func (s *CountingStore) FindDocument(ctx context.Context, collection, id string) (ir.IRObject, error) {
	s.record("FindDocument")
	return s.DocumentStore.FindDocument(ctx, collection, id)
}

func (s *CountingStore) FindBy(ctx context.Context, collection, field string, value ir.IRValue) ([]ir.IRObject, error) {
	s.record("FindBy")
	return s.DocumentStore.FindBy(ctx, collection, field, value)
}

func (s *CountingStore) InsertDocument(ctx context.Context, collection string, doc ir.IRObject) error {
	s.record("InsertDocument")
	return s.DocumentStore.InsertDocument(ctx, collection, doc)
}

func (s *CountingStore) UpdateDocument(ctx context.Context, sel store.Selector, upd store.Update) (bool, error) {
	s.record("UpdateDocument")

	s.mu.Lock()
	s.updates = append(s.updates, RecordedUpdate{Selector: sel, Update: upd})
	nack, fail := s.nack, s.fail
	s.mu.Unlock()

	if fail != nil {
		return false, fail
	}
	if nack {
		return false, nil
	}
	return s.DocumentStore.UpdateDocument(ctx, sel, upd)
}

func (s *CountingStore) DeleteDocument(ctx context.Context, collection, id string) error {
	s.record("DeleteDocument")
	return s.DocumentStore.DeleteDocument(ctx, collection, id)
}

// OpenSQLite opens a SQLite store in a temp dir, closed on cleanup.
func OpenSQLite(t testing.TB) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "docs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

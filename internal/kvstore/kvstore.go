// Package kvstore is a store.DocumentStore backed by an embedded badger
// key-value database.
//
// Each root document is one key, "doc/<n>:<collection>/<id>" where n is the
// byte length of the collection name, holding its canonical JSON body. The
// length keeps collection names containing "/" from sharing a key range. Updates read, apply and write back inside one badger
// transaction.
package kvstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/roach88/docsync/internal/ir"
	"github.com/roach88/docsync/internal/store"
)

const keyPrefix = "doc/"

// Config configures a badger-backed store.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path     string
	InMemory bool

	// Logger receives badger's own diagnostics and store debug lines.
	// Defaults to a logrus logger at warn level.
	Logger *logrus.Logger
}

// Store is a badger-backed document store.
type Store struct {
	db  *badger.DB
	log *logrus.Logger
}

var _ store.DocumentStore = (*Store)(nil)

// Open opens (or creates) the badger database described by cfg.
func Open(cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
		cfg.Logger.SetLevel(logrus.WarnLevel)
	}
	if !cfg.InMemory && cfg.Path == "" {
		return nil, fmt.Errorf("open badger store: path is required")
	}

	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLogger(cfg.Logger)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return &Store{db: db, log: cfg.Logger}, nil
}

// InMemory opens a throwaway store. Used by tests and scenarios.
func InMemory() (*Store, error) {
	return Open(Config{InMemory: true})
}

func docKey(collection, id string) []byte {
	return append(collectionPrefix(collection), id...)
}

func collectionPrefix(collection string) []byte {
	return []byte(keyPrefix + strconv.Itoa(len(collection)) + ":" + collection + "/")
}

// FindDocument returns the body of a root document.
func (s *Store) FindDocument(ctx context.Context, collection, id string) (ir.IRObject, error) {
	var doc ir.IRObject
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		doc, err = get(txn, collection, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("find %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

// FindBy scans the collection's key range in id order.
func (s *Store) FindBy(ctx context.Context, collection, field string, value ir.IRValue) ([]ir.IRObject, error) {
	docs := []ir.IRObject{}
	prefix := collectionPrefix(collection)

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			raw, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			doc, err := store.DecodeBody(raw)
			if err != nil {
				return err
			}
			if v, ok := doc[field]; ok && ir.Equal(v, value) {
				docs = append(docs, doc)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query %s by %s: %w", collection, field, err)
	}
	return docs, nil
}

// InsertDocument stores a new root document.
func (s *Store) InsertDocument(ctx context.Context, collection string, doc ir.IRObject) error {
	id, err := store.DocID(doc)
	if err != nil {
		return fmt.Errorf("insert into %s: %w", collection, err)
	}
	body, err := store.EncodeBody(doc)
	if err != nil {
		return fmt.Errorf("insert %s/%s: %w", collection, id, err)
	}

	key := docKey(collection, id)
	err = s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		switch {
		case err == nil:
			return store.ErrDuplicate
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return txn.Set(key, body)
	})
	if err != nil {
		return fmt.Errorf("insert %s/%s: %w", collection, id, err)
	}

	s.log.WithFields(logrus.Fields{"collection": collection, "id": id}).Debug("document inserted")
	return nil
}

// UpdateDocument applies upd inside one badger transaction.
func (s *Store) UpdateDocument(ctx context.Context, sel store.Selector, upd store.Update) (bool, error) {
	if err := upd.Validate(); err != nil {
		return false, fmt.Errorf("update %s/%s: %w", sel.Collection, sel.ID, err)
	}

	matched := false
	err := s.db.Update(func(txn *badger.Txn) error {
		doc, err := get(txn, sel.Collection, sel.ID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		next, err := store.Apply(doc, upd)
		if err != nil {
			return err
		}
		body, err := store.EncodeBody(next)
		if err != nil {
			return err
		}
		matched = true
		return txn.Set(docKey(sel.Collection, sel.ID), body)
	})
	if err != nil {
		return false, fmt.Errorf("update %s/%s: %w", sel.Collection, sel.ID, err)
	}

	s.log.WithFields(logrus.Fields{
		"collection": sel.Collection,
		"id":         sel.ID,
		"op":         upd.Operator,
		"matched":    matched,
	}).Debug("document update")
	return matched, nil
}

// DeleteDocument removes a root document.
func (s *Store) DeleteDocument(ctx context.Context, collection, id string) error {
	key := docKey(collection, id)
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return store.ErrNotFound
			}
			return err
		}
		return txn.Delete(key)
	})
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// Close closes the badger database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func get(txn *badger.Txn, collection, id string) (ir.IRObject, error) {
	item, err := txn.Get(docKey(collection, id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	return store.DecodeBody(raw)
}

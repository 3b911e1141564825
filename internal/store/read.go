package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/docsync/internal/ir"
)

// FindDocument returns the body of a root document.
// Returns ErrNotFound if no document has the id.
func (s *Store) FindDocument(ctx context.Context, collection, id string) (ir.IRObject, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `
		SELECT body FROM documents
		WHERE collection = ? AND id = ?
	`, collection, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find %s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find %s/%s: %w", collection, id, err)
	}

	doc, err := DecodeBody([]byte(body))
	if err != nil {
		return nil, fmt.Errorf("find %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

// FindBy returns every document in collection whose top-level field equals
// value, ordered by id.
//
// Matching is done on decoded bodies with ir.Equal rather than json_extract,
// so string normalisation and null handling agree with the other backends.
func (s *Store) FindBy(ctx context.Context, collection, field string, value ir.IRValue) ([]ir.IRObject, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT body FROM documents
		WHERE collection = ?
		ORDER BY id COLLATE BINARY ASC
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("query %s by %s: %w", collection, field, err)
	}
	defer rows.Close()

	docs := []ir.IRObject{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		doc, err := DecodeBody([]byte(body))
		if err != nil {
			return nil, fmt.Errorf("query %s by %s: %w", collection, field, err)
		}
		if v, ok := doc[field]; ok && ir.Equal(v, value) {
			docs = append(docs, doc)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", collection, err)
	}
	return docs, nil
}

// Version returns the write counter of a document: 1 after insert, +1 per
// acknowledged update.
func (s *Store) Version(ctx context.Context, collection, id string) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx, `
		SELECT version FROM documents WHERE collection = ? AND id = ?
	`, collection, id).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("version %s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("version %s/%s: %w", collection, id, err)
	}
	return v, nil
}

// Count returns the number of documents in a collection.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM documents WHERE collection = ?
	`, collection).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

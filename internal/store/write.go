package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/docsync/internal/ir"
)

// InsertDocument stores a new root document.
// Returns ErrDuplicate if the collection already holds the id.
func (s *Store) InsertDocument(ctx context.Context, collection string, doc ir.IRObject) error {
	id, err := DocID(doc)
	if err != nil {
		return fmt.Errorf("insert into %s: %w", collection, err)
	}
	body, digest, err := encodeWithDigest(doc)
	if err != nil {
		return fmt.Errorf("insert %s/%s: %w", collection, id, err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, type, body, digest)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO NOTHING
	`, collection, id, docType(doc), body, digest)
	if err != nil {
		return fmt.Errorf("insert %s/%s: %w", collection, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert %s/%s: %w", collection, id, err)
	}
	if n == 0 {
		return fmt.Errorf("insert %s/%s: %w", collection, id, ErrDuplicate)
	}

	s.logger.Debug("document inserted", "collection", collection, "id", id)
	return nil
}

// UpdateDocument applies upd to the selected document inside one
// transaction. Returns false (and no error) when no document matched.
//
// Paths must already be resolved; see path.Positionally.
func (s *Store) UpdateDocument(ctx context.Context, sel Selector, upd Update) (bool, error) {
	if err := upd.Validate(); err != nil {
		return false, fmt.Errorf("update %s/%s: %w", sel.Collection, sel.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("update %s/%s: begin tx: %w", sel.Collection, sel.ID, err)
	}
	defer tx.Rollback() // No-op if committed

	var raw string
	err = tx.QueryRowContext(ctx, `
		SELECT body FROM documents WHERE collection = ? AND id = ?
	`, sel.Collection, sel.ID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		s.logger.Debug("update matched nothing", "collection", sel.Collection, "id", sel.ID)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("update %s/%s: %w", sel.Collection, sel.ID, err)
	}

	doc, err := DecodeBody([]byte(raw))
	if err != nil {
		return false, fmt.Errorf("update %s/%s: %w", sel.Collection, sel.ID, err)
	}
	next, err := Apply(doc, upd)
	if err != nil {
		return false, fmt.Errorf("update %s/%s: %w", sel.Collection, sel.ID, err)
	}
	body, digest, err := encodeWithDigest(next)
	if err != nil {
		return false, fmt.Errorf("update %s/%s: %w", sel.Collection, sel.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE documents
		SET body = ?, digest = ?, type = ?, version = version + 1
		WHERE collection = ? AND id = ?
	`, body, digest, docType(next), sel.Collection, sel.ID); err != nil {
		return false, fmt.Errorf("update %s/%s: %w", sel.Collection, sel.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("update %s/%s: commit: %w", sel.Collection, sel.ID, err)
	}

	s.logger.Debug("document updated",
		"collection", sel.Collection, "id", sel.ID,
		"op", string(upd.Operator), "paths", upd.Paths())
	return true, nil
}

// DeleteDocument removes a root document.
// Returns ErrNotFound if no document has the id.
func (s *Store) DeleteDocument(ctx context.Context, collection, id string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM documents WHERE collection = ? AND id = ?
	`, collection, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete %s/%s: %w", collection, id, ErrNotFound)
	}
	return nil
}

// encodeWithDigest returns the canonical body and its content digest.
func encodeWithDigest(doc ir.IRObject) (string, string, error) {
	body, err := EncodeBody(doc)
	if err != nil {
		return "", "", err
	}
	digest, err := ir.Digest(doc)
	if err != nil {
		return "", "", err
	}
	return string(body), digest, nil
}

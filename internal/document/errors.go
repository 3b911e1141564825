package document

import (
	"errors"
	"fmt"

	"github.com/roach88/docsync/internal/fieldpath"
)

// NotPersistedError is returned when an operation needs a store identity
// and the node's root has never been saved.
type NotPersistedError struct {
	// Type is the document type of the node the operation was invoked on.
	Type string
}

func (e *NotPersistedError) Error() string {
	return fmt.Sprintf("document %s is not persisted", e.Type)
}

// DocumentNotFoundError is returned when the store has no document for an
// identifier, or the document exists but the embedded path no longer does.
type DocumentNotFoundError struct {
	Type string
	ID   string

	// Path is set when the root exists but the embedded target is gone.
	Path fieldpath.Path
}

func (e *DocumentNotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("document %s not found: no identifier", e.Type)
	}
	if len(e.Path) > 0 {
		return fmt.Sprintf("document %s %s not found at path %s", e.Type, e.ID, e.Path)
	}
	return fmt.Sprintf("document %s %s not found", e.Type, e.ID)
}

// IndexNotFoundError is returned when an embedded node is not a member of
// the collection its parent back-edge points at.
type IndexNotFoundError struct {
	Type     string
	Relation string
	ID       string
}

func (e *IndexNotFoundError) Error() string {
	return fmt.Sprintf("embedded %s %s not found in parent collection %q", e.Type, e.ID, e.Relation)
}

// IsNotPersisted returns true if err is or wraps a *NotPersistedError.
func IsNotPersisted(err error) bool {
	var e *NotPersistedError
	return errors.As(err, &e)
}

// IsDocumentNotFound returns true if err is or wraps a *DocumentNotFoundError.
func IsDocumentNotFound(err error) bool {
	var e *DocumentNotFoundError
	return errors.As(err, &e)
}

// IsIndexNotFound returns true if err is or wraps an *IndexNotFoundError.
func IsIndexNotFound(err error) bool {
	var e *IndexNotFoundError
	return errors.As(err, &e)
}

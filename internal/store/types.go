package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/docsync/internal/fieldpath"
	"github.com/roach88/docsync/internal/ir"
)

// DocumentStore is the backing store protocol shared by every backend.
type DocumentStore interface {
	// FindDocument returns the stored body of a root document.
	// Returns ErrNotFound when no document has the id.
	FindDocument(ctx context.Context, collection, id string) (ir.IRObject, error)

	// FindBy returns every root document whose top-level field equals value,
	// ordered by id.
	FindBy(ctx context.Context, collection, field string, value ir.IRValue) ([]ir.IRObject, error)

	// InsertDocument stores a new root document. doc must carry "_id".
	// Returns ErrDuplicate when the id is taken.
	InsertDocument(ctx context.Context, collection string, doc ir.IRObject) error

	// UpdateDocument applies upd to the selected document. The boolean is
	// the store acknowledgement: false when no document matched.
	UpdateDocument(ctx context.Context, sel Selector, upd Update) (bool, error)

	// DeleteDocument removes a root document. Returns ErrNotFound when absent.
	DeleteDocument(ctx context.Context, collection, id string) error

	Close() error
}

var (
	// ErrNotFound is returned when no document matches a lookup.
	ErrNotFound = errors.New("document not found")

	// ErrDuplicate is returned when inserting an id that already exists.
	ErrDuplicate = errors.New("duplicate document id")
)

// Operator names a partial-update operation.
type Operator string

const (
	OpPush     Operator = "$push"
	OpAddToSet Operator = "$addToSet"
	OpSet      Operator = "$set"
	OpUnset    Operator = "$unset"

	// OpPull removes the array elements matching its single value. An
	// object value matches elements holding every one of its fields.
	OpPull Operator = "$pull"
)

// Valid reports whether op is a known operator.
func (op Operator) Valid() bool {
	switch op {
	case OpPush, OpAddToSet, OpSet, OpUnset, OpPull:
		return true
	}
	return false
}

// Selector addresses the document an update targets.
type Selector struct {
	Collection string
	ID         string

	// Positions are the resolved embedded indexes of the update target,
	// outermost first. They fill positional placeholders in update paths.
	Positions []int
}

// FieldUpdate is one field of an Update.
type FieldUpdate struct {
	Path fieldpath.Path

	// Values holds the $each list for $push and $addToSet, exactly one
	// value for $set and $pull, and nothing for $unset.
	Values []ir.IRValue
}

// Update is a single-operator partial update covering one or more fields.
type Update struct {
	Operator Operator
	Fields   []FieldUpdate
}

// Paths returns the wire form of every field path, in order.
func (u Update) Paths() []string {
	out := make([]string, len(u.Fields))
	for i, f := range u.Fields {
		out[i] = f.Path.String()
	}
	return out
}

// Validate checks the update's shape before it reaches a backend.
func (u Update) Validate() error {
	if !u.Operator.Valid() {
		return fmt.Errorf("invalid update operator %q", u.Operator)
	}
	if len(u.Fields) == 0 {
		return fmt.Errorf("%s update has no fields", u.Operator)
	}
	for _, f := range u.Fields {
		if len(f.Path) == 0 {
			return fmt.Errorf("%s update has an empty path", u.Operator)
		}
		switch u.Operator {
		case OpSet, OpPull:
			if len(f.Values) != 1 {
				return fmt.Errorf("%s %s: expected one value, got %d", u.Operator, f.Path, len(f.Values))
			}
		case OpUnset:
			if len(f.Values) != 0 {
				return fmt.Errorf("$unset %s: takes no values", f.Path)
			}
		}
	}
	return nil
}

// PathError reports an update path that cannot be applied to a document.
type PathError struct {
	Path    fieldpath.Path
	Message string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("path %s: %s", e.Path, e.Message)
}

// IsPathError reports whether err is or wraps a *PathError.
func IsPathError(err error) bool {
	var pe *PathError
	return errors.As(err, &pe)
}

package document

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/docsync/internal/fieldpath"
)

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "document Person is not persisted", (&NotPersistedError{Type: "Person"}).Error())
	assert.Equal(t, "document Person p1 not found", (&DocumentNotFoundError{Type: "Person", ID: "p1"}).Error())
	assert.Equal(t, "document Person not found: no identifier", (&DocumentNotFoundError{Type: "Person"}).Error())
	assert.Equal(t, "document Location p1 not found at path addresses.0.locations.0",
		(&DocumentNotFoundError{Type: "Location", ID: "p1", Path: fieldpath.MustParse("addresses.0.locations.0")}).Error())
	assert.Equal(t, `embedded Address a1 not found in parent collection "addresses"`,
		(&IndexNotFoundError{Type: "Address", Relation: "addresses", ID: "a1"}).Error())
}

func TestIsHelpersUnwrap(t *testing.T) {
	wrapped := fmt.Errorf("reload: %w", &DocumentNotFoundError{Type: "Person", ID: "p1"})
	assert.True(t, IsDocumentNotFound(wrapped))
	assert.False(t, IsNotPersisted(wrapped))
	assert.False(t, IsIndexNotFound(wrapped))

	assert.True(t, IsNotPersisted(fmt.Errorf("push: %w", &NotPersistedError{Type: "Person"})))
	assert.True(t, IsIndexNotFound(&IndexNotFoundError{Type: "Address"}))
	assert.False(t, IsDocumentNotFound(nil))
}

package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content digests. The version suffix allows a future
// algorithm migration without colliding with stored digests.
const (
	DomainDocument = "docsync/document/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Digest computes the content digest of a raw document. Two documents have the
// same digest exactly when they are Equal.
func Digest(doc IRObject) (string, error) {
	canonical, err := MarshalCanonical(doc)
	if err != nil {
		return "", fmt.Errorf("digest: %w", err)
	}
	return hashWithDomain(DomainDocument, canonical), nil
}

// MustDigest is like Digest but panics on error.
// Use only in tests or when the document is known to be valid.
func MustDigest(doc IRObject) string {
	d, err := Digest(doc)
	if err != nil {
		panic(err)
	}
	return d
}

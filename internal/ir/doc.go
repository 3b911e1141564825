// Package ir provides the constrained value model for document attributes.
//
// Every attribute held by a document node, every raw payload fetched from a
// store and every value carried by an update document is an IRValue. The
// package imports nothing internal so that all other packages can depend on it.
//
// Key design constraints:
//   - NO float types anywhere - use int64 for numbers
//   - null is a real value (IRNull) so absent and null stay distinguishable
//   - value equality is canonical-JSON equality (RFC 8785, NFC strings)
//   - IRObject iteration uses SortedKeys for determinism
package ir

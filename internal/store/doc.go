// Package store defines the document store protocol and provides the
// SQLite-backed default implementation.
//
// A document store holds root documents by (collection, id). Embedded
// children live inside their root's body and are reached through field
// paths such as "addresses.0.locations.0". Partial updates are expressed as
// an Update with one operator:
//   - $push: append every value ($each), duplicates allowed
//   - $addToSet: append values not already present ($each)
//   - $set: assign one value
//   - $unset: remove the field
//
// Apply interprets an Update against a decoded body. Backends without a
// native update language (SQLite, badger) read, Apply and write back in one
// transaction, so a partial write is never observable.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Bodies are stored as RFC 8785 canonical JSON with a content digest
// (ir.Digest), and every query orders by id COLLATE BINARY.
package store

// Package harness runs YAML document scenarios against a real session and
// records a deterministic trace of every step and every update it sent.
//
// # Scenario Format
//
//	name: push_embedded_tags
//	description: "Push onto an embedded address"
//	schema: people.cue          # file or directory, relative to the scenario
//	driver: sqlite              # sqlite (default) or badger, both in memory
//	identity_map: true
//	setup:
//	  - type: Person
//	    doc: { _id: p1, title: Sir, addresses: [{ _id: a1, tags: [] }] }
//	steps:
//	  - op: push
//	    target: p1#addresses.0
//	    values: { tags: [home, work] }
//	    expect: { ack: true }
//	assertions:
//	  - type: stored
//	    target: p1#addresses.0
//	    expect: { tags: [home, work] }
//
// A target is a handle, optionally followed by '#' and an embedded path.
// Setup roots are handles under their _id; create and embed steps add a
// handle under their "as" name.
//
// # Step Operations
//
//   - create, embed, set, save, becomes, delete: document lifecycle
//   - push, add_to_set: atomic array operations
//   - reload: refresh a node from the store
//   - resolve: compute a node's storage address
//   - overwrite, external_delete: change the store behind the session's back
//
// # Assertion Types
//
//   - stored: subset match against the stored document at a target
//   - not_stored: the target's root document is gone
//   - node: subset match against the live node's serialised form
//   - clean: the live node has no dirty fields
//   - embedded_count: number of children in an embedded collection
//   - store_calls: how many times a store method ran after setup
//
// # Deterministic Testing
//
// Each run uses a fresh in-memory store and a sequence id generator, so
// traces compare byte for byte against golden files (see RunWithGolden).
package harness

/*
Package snapshot implements the immutable, version-pinned read handle
(spec component D) returned by the backend and by every commit.

A Snapshot never blocks or conflicts with a concurrent writer: every read
it serves resolves through the storage Backend's floor(version) lookups
against the version the Snapshot was opened at, so a reader and an
in-flight commit never observe each other.

GetWithProof assembles a two-level proof for a substore key: an inner
ICS-23 proof from the leaf up to that substore's own root, and an outer
ICS-23 proof from the main store's reserved `prefix -> root` entry up to
the main root. A main-store key (one that does not route to any
registered substore) only ever needs the outer level, so its Outer field
carries the proof and Inner is left nil.
*/
package snapshot

/*
Package jmt implements the JMT Engine: a versioned, radix-16 sparse Merkle
tree over 256-bit key hashes, with ICS-23 compatible existence and
non-existence proofs.

Each substore owns one tree. A leaf sits at nibble depth 64 (a blake2b-256
key hash is 64 nibbles); every depth from the root down to a leaf's position
holds an internal node with up to 16 children, one per nibble value. Nodes
are immutable once written: PutValueSet only ever writes nodes along the
root-to-leaf path of a changed key, so any subtree untouched by a batch is
implicitly shared with the previous version through the Backend's
floor(version) node lookup — no node is ever copied forward.

A child slot with no subtree hashes to the all-zero value; a tombstone node
(written when a path's entire subtree becomes empty) also hashes to zero,
so a deleted branch reads back as absent rather than resurrecting a stale
node from an earlier version.

Proofs are assembled as github.com/bnb-chain/ics23 CommitmentProof values
for wire compatibility, but verified with this package's own routine rather
than ics23's built-in hash dispatch, since upstream ICS-23 has no BLAKE2B
HashOp (see DESIGN.md).
*/
package jmt

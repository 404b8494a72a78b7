/*
Package overlay implements Delta, the mutable forkable change set layered
over a Snapshot or another Delta (spec component E).

A Delta never touches the backend directly: every write accumulates in an
in-memory, key-ordered map (backed by github.com/google/btree, already an
indirect dependency of this module's storage engine and here promoted to
direct use) and every read first checks that map before falling through
to the parent. PrefixRaw merge-joins the overlay's sorted entries against
the parent's own ordered stream so a caller sees one continuously ordered
view regardless of how many writes are pending.

Delta intentionally does not implement GetWithProof: a proof is only
meaningful against a root the backend has actually committed, and a
Delta's writes are by definition not yet part of any root. Proof reads
belong to Snapshot; callers needing a proof for a pending write must
commit first.
*/
package overlay

/*
Package commit implements the Commit Pipeline (spec component F): the only
path by which a Delta's pending writes become durable state.

Pipeline reads a Delta rooted at the backend's current head Snapshot,
groups its verifiable writes by substore, drives each affected substore's
JMT to a new root, synthesizes the main store's prefix(s) -> root_s
entries (invariant 3), drives the main substore's JMT, and persists every
resulting node, value, key-preimage, and non-verifiable write in one
atomic backend write batch before advancing the head version and handing
the commit's key/value changes to the Watch Service.

Any failure at any step aborts the whole commit: Pipeline never calls
Backend.WriteBatch until every substore's new root has been computed
successfully, so a partial commit is never observable.
*/
package commit

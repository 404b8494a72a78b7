/*
Package storage implements the Backend: a durable, bbolt-backed column-family
key-value store with atomic write batches and point-in-time reads by version.

Every family is logically partitioned per substore into a nested bbolt
bucket:

  jmt/<substore>            nibble-path, version -> encoded JMT node
  jmt_keys/<substore>       key hash -> full key preimage
  values/<substore>         substore-key, version -> value (or tombstone)
  nonverifiable/<substore>  raw key, version -> value (or tombstone)
  meta                      latest_version, earliest_version, substores

Versioned families (jmt, values, nonverifiable) key each entry by the
component bytes followed by a big-endian encoding of the bitwise complement
of the version, so that a forward bbolt cursor scan visits a given key's
versions from newest to oldest. A floor(version) lookup — "the value as of
the most recent write at or before v" — is then a single Seek. One bbolt
database file backs the whole store, opened once at startup with nested
buckets created on demand.

WriteBatch is the only mutation path: Backend.WriteBatch applies an ordered
set of puts and deletes across any subset of families in one bbolt Update
transaction and advances the latest version, matching the durability
guarantee that a batch is all-or-nothing.
*/
package storage

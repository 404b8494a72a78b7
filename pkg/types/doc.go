/*
Package types defines the core data structures shared across strata's
storage engine: versions, keys, hashes, events, and the sentinel errors
other packages wrap with context before returning.

# Core Types

  - Version: a monotonically increasing commit counter
  - Hash: a 32-byte blake2b-256 digest
  - NodeKey: the (substore, nibble path, version) address of a JMT node
  - Event: an opaque, typed record appended to a Delta and surfaced after commit

# Errors

Errors returned by strata packages that fall into one of the failure
classes defined here (ErrConfigInvalid, ErrNotFound, ErrProof, ErrConflict,
ErrBackend, ErrDecode) wrap the matching sentinel, so callers can
distinguish those classes with errors.Is. Not every returned error wraps a
sentinel.
*/
package types

package types

import (
	"errors"
	"fmt"
)

// HashSize is the length in bytes of a blake2b-256 digest, used throughout
// the JMT as the key hash, value hash, and node hash size.
const HashSize = 32

// Hash is a 32-byte blake2b-256 digest.
type Hash [HashSize]byte

// IsZero reports whether h is the all-zero hash, used as the "absent child"
// marker in internal JMT nodes.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

func (h Hash) String() string {
	return fmt.Sprintf("%x", h[:])
}

// Bytes returns a copy of h as a byte slice.
func (h Hash) Bytes() []byte {
	b := make([]byte, HashSize)
	copy(b, h[:])
	return b
}

// HashFromBytes copies b into a Hash, returning ErrDecode if the length is
// wrong.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, fmt.Errorf("hash: want %d bytes, got %d: %w", HashSize, len(b), ErrDecode)
	}
	copy(h[:], b)
	return h, nil
}

// Version is a monotonically increasing commit counter. Version 0 is the
// empty, pregenesis state.
type Version uint64

// SubstoreID identifies a registered substore, or MainStore for keys outside
// every registered prefix.
type SubstoreID string

// MainStore is the substore ID for keys that match no registered prefix.
const MainStore SubstoreID = ""

// NodeKey addresses a single JMT tree node: the substore it belongs to, its
// nibble path from the root (0-64 nibbles for a 256-bit key hash), and the
// version at which it was written.
type NodeKey struct {
	Substore SubstoreID
	Path     []byte // one nibble (0-15) per byte, MSB-first
	Version  Version
}

// Event is an opaque, typed record appended to a Delta during execution and
// surfaced, in order, after a successful commit. strata does not interpret
// the payload; it is a tagged blob for external collaborators.
type Event struct {
	Type    string
	Payload []byte
}

// Sentinel error classes. An error returned by a strata package that falls
// into one of these classes wraps it via fmt.Errorf("...: %w", ...).
var (
	// ErrConfigInvalid covers empty/duplicate substore prefixes and writes
	// to a key reserved for a substore's root hash.
	ErrConfigInvalid = errors.New("config invalid")

	// ErrNotFound covers lookups of a pruned or nonexistent version.
	ErrNotFound = errors.New("not found")

	// ErrProof covers proof generation failures against otherwise
	// consistent state; surfacing this to a caller indicates a bug.
	ErrProof = errors.New("proof error")

	// ErrConflict covers committing a Delta whose parent is not the
	// current head.
	ErrConflict = errors.New("conflict")

	// ErrBackend covers I/O failures from the durable store.
	ErrBackend = errors.New("backend error")

	// ErrDecode covers a typed accessor encountering malformed bytes.
	ErrDecode = errors.New("decode error")
)

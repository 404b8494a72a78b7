package jmt

import (
	"golang.org/x/crypto/blake2b"

	"github.com/duskbridge/strata/pkg/types"
)

// Domain tags separate leaf hashes, internal-node hashes, and the two
// named constants below so that no two structurally different inputs ever
// collide on the same blake2b-256 digest.
const (
	tagLeaf     byte = 0x00
	tagInternal byte = 0x01
)

// nullValueHash is the domain-separated digest standing in for a missing
// value; a leaf's hash is always H(tag || key_hash || value_hash), and a
// tombstoned key hashes its "value" to this constant rather than omitting
// the field.
var nullValueHash = sum256(append([]byte(nil), "strata/jmt/null"...))

// emptyRootHash is returned as the root of a substore that has never held
// a live leaf. It is distinct from the literal all-zero "absent child"
// sentinel used inside internalHash, so an empty tree's root never aliases
// an ordinary internal hash.
var emptyRootHash = sum256(append([]byte(nil), "strata/jmt/empty-root"...))

func sum256(b []byte) types.Hash {
	return blake2b.Sum256(b)
}

// hashKey returns the blake2b-256 digest of a full key, used as the JMT's
// 256-bit address space.
func hashKey(fullKey []byte) types.Hash {
	return sum256(fullKey)
}

// HashKey exposes hashKey for callers (the commit pipeline) that must
// build a LeafUpdate's KeyHash themselves before calling PutValueSet.
func HashKey(key []byte) types.Hash {
	return hashKey(key)
}

// hashValue returns the blake2b-256 digest of a value, or nullValueHash if
// the value is absent (a tombstone).
func hashValue(value []byte) types.Hash {
	if value == nil {
		return nullValueHash
	}
	return sum256(value)
}

// leafHash computes a leaf node's hash: H(0x00 || key_hash || value_hash).
func leafHash(keyHash, valueHash types.Hash) types.Hash {
	buf := make([]byte, 0, 1+2*types.HashSize)
	buf = append(buf, tagLeaf)
	buf = append(buf, keyHash.Bytes()...)
	buf = append(buf, valueHash.Bytes()...)
	return sum256(buf)
}

// internalHash computes an internal node's hash: H(0x01 || child_0 || ...
// || child_15), where an absent child contributes the all-zero hash.
func internalHash(children [16]types.Hash) types.Hash {
	buf := make([]byte, 0, 1+16*types.HashSize)
	buf = append(buf, tagInternal)
	for _, c := range children {
		buf = append(buf, c.Bytes()...)
	}
	return sum256(buf)
}

// nibbleAt returns the nibble of h at the given nibble index (0-63, MSB
// first).
func nibbleAt(h types.Hash, nibbleIndex int) byte {
	b := h[nibbleIndex/2]
	if nibbleIndex%2 == 0 {
		return b >> 4
	}
	return b & 0x0F
}

// maxNibbleDepth is the number of nibbles in a 256-bit key hash.
const maxNibbleDepth = types.HashSize * 2

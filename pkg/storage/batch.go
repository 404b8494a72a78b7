package storage

import "github.com/duskbridge/strata/pkg/types"

type opKind int

const (
	opPutNode opKind = iota
	opPutValue
	opDeleteValue
	opPutKeyPreimage
	opPutNonverifiable
	opDeleteNonverifiable
)

type writeOp struct {
	kind     opKind
	substore types.SubstoreID
	key      []byte
	value    []byte
}

// WriteBatch accumulates puts and deletes across any subset of families and
// substores for a single atomic Backend.WriteBatch call. The zero value is
// ready to use.
type WriteBatch struct {
	ops []writeOp
}

// NewWriteBatch returns an empty batch.
func NewWriteBatch() *WriteBatch {
	return &WriteBatch{}
}

// PutNode stages a JMT node write at the given nibble path.
func (b *WriteBatch) PutNode(substore types.SubstoreID, path []byte, node []byte) {
	b.ops = append(b.ops, writeOp{kind: opPutNode, substore: substore, key: path, value: node})
}

// PutValue stages a live (non-tombstone) value write under a substore key.
func (b *WriteBatch) PutValue(substore types.SubstoreID, key []byte, value []byte) {
	b.ops = append(b.ops, writeOp{kind: opPutValue, substore: substore, key: key, value: value})
}

// DeleteValue stages a tombstone write under a substore key.
func (b *WriteBatch) DeleteValue(substore types.SubstoreID, key []byte) {
	b.ops = append(b.ops, writeOp{kind: opDeleteValue, substore: substore, key: key})
}

// PutKeyPreimage records the full key that hashes to keyHash, readable back
// through Backend.GetKeyPreimage. Proof construction does not read it:
// non-existence proofs embed neighboring leaves' key hashes only.
func (b *WriteBatch) PutKeyPreimage(substore types.SubstoreID, keyHash types.Hash, fullKey []byte) {
	b.ops = append(b.ops, writeOp{kind: opPutKeyPreimage, substore: substore, key: keyHash.Bytes(), value: fullKey})
}

// PutNonverifiable stages a live non-verifiable write.
func (b *WriteBatch) PutNonverifiable(substore types.SubstoreID, key, value []byte) {
	b.ops = append(b.ops, writeOp{kind: opPutNonverifiable, substore: substore, key: key, value: value})
}

// DeleteNonverifiable stages a non-verifiable tombstone.
func (b *WriteBatch) DeleteNonverifiable(substore types.SubstoreID, key []byte) {
	b.ops = append(b.ops, writeOp{kind: opDeleteNonverifiable, substore: substore, key: key})
}

// Len returns the number of staged operations.
func (b *WriteBatch) Len() int {
	return len(b.ops)
}

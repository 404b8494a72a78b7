package jmt

import (
	"context"
	"fmt"

	"github.com/duskbridge/strata/pkg/metrics"
	"github.com/duskbridge/strata/pkg/storage"
	"github.com/duskbridge/strata/pkg/types"
)

// Engine is the JMT Engine (spec component C): a versioned, radix-16
// sparse Merkle tree keyed by 256-bit key hashes, backed by a storage
// Backend. One Engine serves every substore; the substore is a parameter
// of each call.
type Engine struct {
	backend *storage.Backend
}

// New returns an Engine reading and writing through backend.
func New(backend *storage.Backend) *Engine {
	return &Engine{backend: backend}
}

// LeafUpdate is one key's change within a PutValueSet batch. Value == nil
// means the key is being deleted.
type LeafUpdate struct {
	KeyHash types.Hash
	FullKey []byte
	Value   []byte
}

// PutValueSet installs leaves at version into substore's tree, staging
// every new or changed node (and the corresponding value/preimage writes)
// into batch, and returns the tree's new root hash. version must be
// exactly one past the tree's current head; prior-version nodes are read
// with a floor lookup against version-1, so any subtree untouched by
// leaves is never re-read or rewritten.
func (e *Engine) PutValueSet(ctx context.Context, batch *storage.WriteBatch, substore types.SubstoreID, leaves []LeafUpdate, version types.Version) (types.Hash, error) {
	if len(leaves) == 0 {
		return e.RootHash(ctx, substore, version-1)
	}

	pending := map[string]node{}
	root, err := e.apply(ctx, substore, nil, leaves, version, pending)
	if err != nil {
		return types.Hash{}, err
	}

	for path, n := range pending {
		batch.PutNode(substore, []byte(path), encodeNode(n))
	}
	for _, lu := range leaves {
		if lu.Value == nil {
			batch.DeleteValue(substore, lu.FullKey)
			continue
		}
		batch.PutValue(substore, lu.FullKey, lu.Value)
		batch.PutKeyPreimage(substore, lu.KeyHash, lu.FullKey)
	}

	metrics.JMTNodesWritten.WithLabelValues(string(substore)).Add(float64(len(pending)))

	if root.IsZero() {
		return emptyRootHash, nil
	}
	return root, nil
}

// apply recursively resolves the hash rooted at path given the leaves that
// fall under it, staging any node it creates or tombstones into pending.
// leaves sharing a key hash are resolved last-write-wins, per batch order.
func (e *Engine) apply(ctx context.Context, substore types.SubstoreID, path []byte, leaves []LeafUpdate, version types.Version, pending map[string]node) (types.Hash, error) {
	if err := ctx.Err(); err != nil {
		return types.Hash{}, err
	}

	if len(leaves) == 0 {
		return e.hashAt(ctx, substore, path, version-1)
	}

	if len(path) == maxNibbleDepth {
		lu := leaves[len(leaves)-1]
		if lu.Value == nil {
			pending[string(path)] = node{kind: kindTombstone}
			return types.Hash{}, nil
		}
		n := node{kind: kindLeaf, keyHash: lu.KeyHash, valueHash: hashValue(lu.Value)}
		pending[string(path)] = n
		return n.hash(), nil
	}

	var buckets [16][]LeafUpdate
	for _, lu := range leaves {
		nib := nibbleAt(lu.KeyHash, len(path))
		buckets[nib] = append(buckets[nib], lu)
	}

	var n node
	n.kind = kindInternal
	anyChild := false
	for i := 0; i < 16; i++ {
		if len(buckets[i]) == 0 {
			h, err := e.hashAt(ctx, substore, appendNibble(path, byte(i)), version-1)
			if err != nil {
				return types.Hash{}, err
			}
			n.children[i] = h
		} else {
			h, err := e.apply(ctx, substore, appendNibble(path, byte(i)), buckets[i], version, pending)
			if err != nil {
				return types.Hash{}, err
			}
			n.children[i] = h
		}
		if !n.children[i].IsZero() {
			anyChild = true
		}
	}

	if !anyChild {
		pending[string(path)] = node{kind: kindTombstone}
		return types.Hash{}, nil
	}
	pending[string(path)] = n
	return n.hash(), nil
}

func appendNibble(path []byte, nib byte) []byte {
	out := make([]byte, len(path)+1)
	copy(out, path)
	out[len(path)] = nib
	return out
}

// hashAt returns the hash of whatever node (if any) sits at path as of the
// most recent version <= v, without staging anything: it is how an
// unmodified sibling subtree's hash flows into its parent's hash without
// ever being re-read in full or rewritten.
func (e *Engine) hashAt(ctx context.Context, substore types.SubstoreID, path []byte, v types.Version) (types.Hash, error) {
	raw, found, err := e.backend.GetNode(substore, path, v)
	if err != nil {
		return types.Hash{}, fmt.Errorf("jmt: read node: %w", err)
	}
	if !found {
		return types.Hash{}, nil
	}
	n, err := decodeNode(raw)
	if err != nil {
		return types.Hash{}, err
	}
	return n.hash(), nil
}

// RootHash returns substore's root hash as of version v, or emptyRootHash
// if the substore has never held a live leaf at or before v.
func (e *Engine) RootHash(ctx context.Context, substore types.SubstoreID, v types.Version) (types.Hash, error) {
	h, err := e.hashAt(ctx, substore, nil, v)
	if err != nil {
		return types.Hash{}, err
	}
	if h.IsZero() {
		return emptyRootHash, nil
	}
	return h, nil
}

package jmt

import (
	"bytes"
	"context"
	"fmt"
	"time"

	ics23 "github.com/bnb-chain/ics23/go"

	"github.com/duskbridge/strata/pkg/metrics"
	"github.com/duskbridge/strata/pkg/types"
)

// ProofSpec is the 16-ary ICS-23 spec for strata's JMT: every inner node
// has 16 children of fixed 32-byte size. It is exposed so pkg/snapshot can
// reuse it when assembling the outer (main-root) proof level.
//
// The Hash field names SHA256 only because the upstream ics23 HashOp enum
// has no BLAKE2B entry; this package never calls into ics23's own hash
// dispatch to verify a proof; see Verify in verify.go and DESIGN.md.
var ProofSpec = &ics23.ProofSpec{
	LeafSpec: &ics23.LeafOp{
		Hash:         ics23.HashOp_SHA256,
		PrehashKey:   ics23.HashOp_NO_HASH,
		PrehashValue: ics23.HashOp_NO_HASH,
		Length:       ics23.LengthOp_NO_PREFIX,
		Prefix:       []byte{tagLeaf},
	},
	InnerSpec: &ics23.InnerSpec{
		ChildOrder:      []int32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15},
		ChildSize:       types.HashSize,
		MinPrefixLength: 1,
		MaxPrefixLength: 1 + 15*types.HashSize,
		EmptyChild:      make([]byte, types.HashSize),
		Hash:            ics23.HashOp_SHA256,
	},
	MaxDepth: maxNibbleDepth,
	MinDepth: 0,
}

type level struct {
	children [16]types.Hash
	nibble   byte
}

// innerOpsFromLevels turns a root-to-leaf sequence of levels into ICS-23
// InnerOps in leaf-to-root order.
func innerOpsFromLevels(levels []level) []*ics23.InnerOp {
	ops := make([]*ics23.InnerOp, len(levels))
	for i := len(levels) - 1; i >= 0; i-- {
		lv := levels[i]
		prefix := make([]byte, 0, 1+int(lv.nibble)*types.HashSize)
		prefix = append(prefix, tagInternal)
		for c := 0; c < int(lv.nibble); c++ {
			prefix = append(prefix, lv.children[c].Bytes()...)
		}
		suffix := make([]byte, 0, (15-int(lv.nibble))*types.HashSize)
		for c := int(lv.nibble) + 1; c < 16; c++ {
			suffix = append(suffix, lv.children[c].Bytes()...)
		}
		ops[len(levels)-1-i] = &ics23.InnerOp{
			Hash:   ics23.HashOp_SHA256,
			Prefix: prefix,
			Suffix: suffix,
		}
	}
	return ops
}

// GetWithProof returns key's value (nil if absent) as of version v, along
// with an ICS-23 existence or non-existence proof against substore's root
// at v.
func (e *Engine) GetWithProof(ctx context.Context, substore types.SubstoreID, key []byte, v types.Version) ([]byte, *ics23.CommitmentProof, error) {
	start := time.Now()
	defer func() {
		metrics.JMTProofDuration.WithLabelValues(string(substore)).Observe(time.Since(start).Seconds())
	}()

	keyHash := hashKey(key)

	var levels []level
	path := []byte{}
	for d := 0; d < maxNibbleDepth; d++ {
		raw, found, err := e.backend.GetNode(substore, path, v)
		if err != nil {
			return nil, nil, fmt.Errorf("jmt: read node: %w", err)
		}
		if !found {
			return nil, e.nonExistenceProof(ctx, substore, levels, path, keyHash, v)
		}
		n, err := decodeNode(raw)
		if err != nil {
			return nil, nil, err
		}
		if n.kind != kindInternal {
			return nil, nil, fmt.Errorf("jmt: expected internal node at depth %d: %w", d, types.ErrProof)
		}

		nib := nibbleAt(keyHash, d)
		levels = append(levels, level{children: n.children, nibble: nib})

		if n.children[nib].IsZero() {
			return nil, e.nonExistenceProof(ctx, substore, levels, appendNibble(path, nib), keyHash, v)
		}
		path = appendNibble(path, nib)
	}

	raw, found, err := e.backend.GetNode(substore, path, v)
	if err != nil {
		return nil, nil, err
	}
	if !found {
		return nil, e.nonExistenceProof(ctx, substore, levels, path, keyHash, v)
	}
	leaf, err := decodeNode(raw)
	if err != nil {
		return nil, nil, err
	}
	if leaf.kind != kindLeaf || leaf.keyHash != keyHash {
		return nil, nil, fmt.Errorf("jmt: expected leaf %x at full depth: %w", keyHash.Bytes(), types.ErrProof)
	}

	value, found, err := e.backend.GetValue(substore, key, v)
	if err != nil {
		return nil, nil, err
	}
	if !found {
		return nil, nil, fmt.Errorf("jmt: leaf present but value missing for key %q: %w", key, types.ErrProof)
	}

	proof := &ics23.CommitmentProof{
		Proof: &ics23.CommitmentProof_Exist{
			Exist: &ics23.ExistenceProof{
				Key:   keyHash.Bytes(),
				Value: leaf.valueHash.Bytes(),
				Leaf:  ProofSpec.LeafSpec,
				Path:  innerOpsFromLevels(levels),
			},
		},
	}
	return value, proof, nil
}

// nonExistenceProof builds a non-membership proof for keyHash, whose path
// diverges from every stored leaf at divergePath (where the parent's
// relevant child is empty). The nearest populated sibling child at the
// divergence level is descended to a leaf, and that leaf's existence proof
// is attached as Left or Right depending on its ordering relative to
// keyHash. At most one neighbor is attached; when the parent has no other
// populated child (or there is no parent), the proof carries no witness.
// Because every depth down to a leaf is materialized, divergence always
// lands on an empty child rather than on a foreign leaf.
func (e *Engine) nonExistenceProof(ctx context.Context, substore types.SubstoreID, levels []level, divergePath []byte, keyHash types.Hash, v types.Version) (*ics23.CommitmentProof, error) {
	np := &ics23.NonExistenceProof{Key: keyHash.Bytes()}

	if len(levels) > 0 {
		parent := levels[len(levels)-1]
		for _, nib := range neighborOrder(parent.nibble) {
			if parent.children[nib].IsZero() {
				continue
			}
			neighborPath := appendNibble(divergePath[:len(divergePath)-1], nib)
			leafPath, kh, vh, err := e.descendToLeaf(ctx, substore, neighborPath, v)
			if err != nil {
				return nil, err
			}
			exist, err := e.existenceProofForPath(ctx, substore, leafPath, kh, vh, v)
			if err != nil {
				return nil, err
			}
			if bytes.Compare(kh.Bytes(), keyHash.Bytes()) < 0 {
				np.Left = exist
			} else {
				np.Right = exist
			}
			break
		}
	}

	return &ics23.CommitmentProof{
		Proof: &ics23.CommitmentProof_Nonexist{Nonexist: np},
	}, nil
}

// neighborOrder returns sibling nibble indices ordered by distance from
// nib, so the nearest populated sibling is preferred as a neighbor.
func neighborOrder(nib byte) []byte {
	order := make([]byte, 0, 15)
	for d := 1; d < 16; d++ {
		if int(nib)-d >= 0 {
			order = append(order, nib-byte(d))
		}
		if int(nib)+d < 16 {
			order = append(order, nib+byte(d))
		}
	}
	return order
}

// descendToLeaf follows the first populated child at each level starting
// from path until it reaches a leaf, returning that leaf's full path and
// hashes.
func (e *Engine) descendToLeaf(ctx context.Context, substore types.SubstoreID, path []byte, v types.Version) ([]byte, types.Hash, types.Hash, error) {
	for {
		raw, found, err := e.backend.GetNode(substore, path, v)
		if err != nil || !found {
			return nil, types.Hash{}, types.Hash{}, fmt.Errorf("jmt: neighbor lookup: %w", types.ErrProof)
		}
		n, err := decodeNode(raw)
		if err != nil {
			return nil, types.Hash{}, types.Hash{}, err
		}
		if n.kind == kindLeaf {
			return path, n.keyHash, n.valueHash, nil
		}
		if n.kind != kindInternal {
			return nil, types.Hash{}, types.Hash{}, fmt.Errorf("jmt: neighbor lookup hit tombstone: %w", types.ErrProof)
		}
		found = false
		for i := 0; i < 16; i++ {
			if !n.children[i].IsZero() {
				path = appendNibble(path, byte(i))
				found = true
				break
			}
		}
		if !found {
			return nil, types.Hash{}, types.Hash{}, fmt.Errorf("jmt: neighbor lookup hit empty internal node: %w", types.ErrProof)
		}
	}
}

// existenceProofForPath rebuilds the InnerOp chain for an already-located
// leaf path, used to furnish the neighbor witness in a non-existence proof.
func (e *Engine) existenceProofForPath(ctx context.Context, substore types.SubstoreID, leafPath []byte, keyHash, valueHash types.Hash, v types.Version) (*ics23.ExistenceProof, error) {
	var levels []level
	path := []byte{}
	for d := 0; d < len(leafPath); d++ {
		raw, found, err := e.backend.GetNode(substore, path, v)
		if err != nil || !found {
			return nil, fmt.Errorf("jmt: rebuild neighbor proof: %w", types.ErrProof)
		}
		n, err := decodeNode(raw)
		if err != nil {
			return nil, err
		}
		levels = append(levels, level{children: n.children, nibble: leafPath[d]})
		path = appendNibble(path, leafPath[d])
	}
	return &ics23.ExistenceProof{
		Key:   keyHash.Bytes(),
		Value: valueHash.Bytes(),
		Leaf:  ProofSpec.LeafSpec,
		Path:  innerOpsFromLevels(levels),
	}, nil
}

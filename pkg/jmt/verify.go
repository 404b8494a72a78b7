package jmt

import (
	"bytes"
	"fmt"

	ics23 "github.com/bnb-chain/ics23/go"

	"github.com/duskbridge/strata/pkg/types"
)

// Verify checks proof against root, returning the proven value for an
// existence proof (nil for a non-existence proof) and an error if the proof
// does not chain to root.
//
// This does not call into ics23's own VerifyMembership/VerifyNonMembership:
// those dispatch hashing through the HashOp enum in LeafOp/InnerOp, which
// has no BLAKE2B entry, so they cannot reproduce strata's leaf and internal
// hash formulas (see hash.go). Instead the InnerOp.Prefix/Suffix byte layout
// (itself chosen to match ics23's generic inner-node shape, see proof.go)
// is walked directly with the real tagInternal/tagLeaf hashing.
func Verify(root types.Hash, keyHash types.Hash, proof *ics23.CommitmentProof) ([]byte, error) {
	switch p := proof.Proof.(type) {
	case *ics23.CommitmentProof_Exist:
		return verifyExistence(root, keyHash, p.Exist)
	case *ics23.CommitmentProof_Nonexist:
		return nil, verifyNonExistence(root, keyHash, p.Nonexist)
	default:
		return nil, fmt.Errorf("jmt: unsupported proof shape: %w", types.ErrProof)
	}
}

func verifyExistence(root, keyHash types.Hash, ep *ics23.ExistenceProof) ([]byte, error) {
	if !bytes.Equal(ep.Key, keyHash.Bytes()) {
		return nil, fmt.Errorf("jmt: proof key mismatch: %w", types.ErrProof)
	}
	if len(ep.Path) != maxNibbleDepth {
		return nil, fmt.Errorf("jmt: proof path has %d levels, want %d: %w", len(ep.Path), maxNibbleDepth, types.ErrProof)
	}

	valueHash, err := types.HashFromBytes(ep.Value)
	if err != nil {
		return nil, fmt.Errorf("jmt: malformed proof value: %w", types.ErrProof)
	}
	cur := leafHash(keyHash, valueHash)

	for _, op := range ep.Path {
		cur, err = applyInner(op, cur)
		if err != nil {
			return nil, err
		}
	}

	if cur != root {
		return nil, fmt.Errorf("jmt: proof does not chain to root: %w", types.ErrProof)
	}
	return valueHash.Bytes(), nil
}

func verifyNonExistence(root, keyHash types.Hash, np *ics23.NonExistenceProof) error {
	if !bytes.Equal(np.Key, keyHash.Bytes()) {
		return fmt.Errorf("jmt: proof key mismatch: %w", types.ErrProof)
	}
	if np.Left == nil && np.Right == nil {
		return fmt.Errorf("jmt: non-existence proof has no witness: %w", types.ErrProof)
	}
	if np.Left != nil {
		if _, err := verifyExistence(root, hashFromProofKey(np.Left.Key), np.Left); err != nil {
			return fmt.Errorf("jmt: left neighbor: %w", err)
		}
		if bytes.Compare(np.Left.Key, np.Key) >= 0 {
			return fmt.Errorf("jmt: left neighbor is not less than key: %w", types.ErrProof)
		}
	}
	if np.Right != nil {
		if _, err := verifyExistence(root, hashFromProofKey(np.Right.Key), np.Right); err != nil {
			return fmt.Errorf("jmt: right neighbor: %w", err)
		}
		if bytes.Compare(np.Right.Key, np.Key) <= 0 {
			return fmt.Errorf("jmt: right neighbor is not greater than key: %w", types.ErrProof)
		}
	}
	return nil
}

func hashFromProofKey(b []byte) types.Hash {
	h, _ := types.HashFromBytes(b)
	return h
}

// applyInner recomputes a parent hash from a child hash using the
// prefix/child/suffix layout an InnerOp carries, then re-derives the tag
// byte and sibling count to confirm the shape matches an internal node
// before hashing.
func applyInner(op *ics23.InnerOp, child types.Hash) (types.Hash, error) {
	if len(op.Prefix) == 0 || op.Prefix[0] != tagInternal {
		return types.Hash{}, fmt.Errorf("jmt: inner op missing internal tag: %w", types.ErrProof)
	}
	if (len(op.Prefix)-1)%types.HashSize != 0 || len(op.Suffix)%types.HashSize != 0 {
		return types.Hash{}, fmt.Errorf("jmt: inner op has misaligned sibling bytes: %w", types.ErrProof)
	}
	before := (len(op.Prefix) - 1) / types.HashSize
	after := len(op.Suffix) / types.HashSize
	if before+1+after != 16 {
		return types.Hash{}, fmt.Errorf("jmt: inner op has %d siblings, want 15: %w", before+after, types.ErrProof)
	}

	var children [16]types.Hash
	for i := 0; i < before; i++ {
		h, err := types.HashFromBytes(op.Prefix[1+i*types.HashSize : 1+(i+1)*types.HashSize])
		if err != nil {
			return types.Hash{}, err
		}
		children[i] = h
	}
	children[before] = child
	for i := 0; i < after; i++ {
		h, err := types.HashFromBytes(op.Suffix[i*types.HashSize : (i+1)*types.HashSize])
		if err != nil {
			return types.Hash{}, err
		}
		children[before+1+i] = h
	}
	return internalHash(children), nil
}

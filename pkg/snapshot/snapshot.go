package snapshot

import (
	"bytes"
	"context"
	"fmt"

	ics23 "github.com/bnb-chain/ics23/go"

	"github.com/duskbridge/strata/pkg/jmt"
	"github.com/duskbridge/strata/pkg/metrics"
	"github.com/duskbridge/strata/pkg/registry"
	"github.com/duskbridge/strata/pkg/storage"
	"github.com/duskbridge/strata/pkg/types"
)

// Snapshot is an immutable read view pinned to a specific version.
type Snapshot struct {
	backend  *storage.Backend
	registry *registry.Registry
	engine   *jmt.Engine
	version  types.Version
}

// New returns a Snapshot reading substore state as of version v through
// backend. v is not checked against the backend's pruning horizon
// (Backend.EarliestVersion): a Snapshot at a pruned version still reads
// whatever entries remain on disk for it.
func New(backend *storage.Backend, reg *registry.Registry, engine *jmt.Engine, v types.Version) *Snapshot {
	metrics.OpenSnapshots.Inc()
	return &Snapshot{backend: backend, registry: reg, engine: engine, version: v}
}

// Release drops this Snapshot's contribution to the open-snapshot gauge.
// Calling it more than once double-decrements the gauge; callers own
// calling it exactly once.
func (s *Snapshot) Release() {
	metrics.OpenSnapshots.Dec()
}

// Version returns the version this Snapshot is pinned to.
func (s *Snapshot) Version() types.Version {
	return s.version
}

// GetRaw routes key through the registry and returns its value as of this
// Snapshot's version, or (nil, nil) if absent.
func (s *Snapshot) GetRaw(ctx context.Context, key []byte) ([]byte, error) {
	substore, subKey := s.registry.Route(string(key))
	value, _, err := s.backend.GetValue(substore, []byte(subKey), s.version)
	return value, err
}

// MerkleProof is the two-level proof returned by GetWithProof: Inner binds
// the value to its own substore's root, Outer binds that substore's root
// (via the main store's reserved prefix entry) to the main root. A
// main-store key carries only Outer.
type MerkleProof struct {
	Substore types.SubstoreID
	Inner    *ics23.CommitmentProof
	Outer    *ics23.CommitmentProof
}

// GetWithProof returns key's value (nil if absent) together with a proof
// against this Snapshot's main root.
func (s *Snapshot) GetWithProof(ctx context.Context, key []byte) ([]byte, *MerkleProof, error) {
	substore, subKey := s.registry.Route(string(key))

	if substore == types.MainStore {
		value, proof, err := s.engine.GetWithProof(ctx, types.MainStore, []byte(subKey), s.version)
		if err != nil {
			return nil, nil, err
		}
		return value, &MerkleProof{Substore: types.MainStore, Outer: proof}, nil
	}

	value, inner, err := s.engine.GetWithProof(ctx, substore, []byte(subKey), s.version)
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot: inner proof: %w", err)
	}
	_, outer, err := s.engine.GetWithProof(ctx, types.MainStore, []byte(substore), s.version)
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot: outer proof: %w", err)
	}
	return value, &MerkleProof{Substore: substore, Inner: inner, Outer: outer}, nil
}

// RootHash returns the main root at this Snapshot's version.
func (s *Snapshot) RootHash(ctx context.Context) (types.Hash, error) {
	return s.engine.RootHash(ctx, types.MainStore, s.version)
}

// PrefixRootHash returns the root of the substore registered under prefix,
// or the emptyRootHash equivalent if the substore has never held a leaf.
func (s *Snapshot) PrefixRootHash(ctx context.Context, prefix string) (types.Hash, error) {
	return s.engine.RootHash(ctx, types.SubstoreID(prefix), s.version)
}

// PrefixRaw streams every full key and value under prefix, in full-key
// byte order, as of this Snapshot's version. fn is called once per entry;
// returning an error from fn stops iteration and is propagated.
func (s *Snapshot) PrefixRaw(ctx context.Context, prefix []byte, fn func(fullKey, value []byte) error) error {
	substore, subPrefix := s.registry.Route(string(prefix))
	return s.backend.IterateValues(ctx, substore, []byte(subPrefix), s.version, func(subKey, value []byte) error {
		full := registry.FullKey(substore, string(subKey))
		return fn([]byte(full), value)
	})
}

// PrefixKeys streams every full key under prefix, as of this Snapshot's
// version, omitting values.
func (s *Snapshot) PrefixKeys(ctx context.Context, prefix []byte, fn func(fullKey []byte) error) error {
	return s.PrefixRaw(ctx, prefix, func(fullKey, _ []byte) error {
		return fn(fullKey)
	})
}

// NonverifiableGetRaw reads key from the non-verifiable family of substore,
// as of this Snapshot's version.
func (s *Snapshot) NonverifiableGetRaw(ctx context.Context, substore types.SubstoreID, key []byte) ([]byte, error) {
	value, _, err := s.backend.GetNonverifiable(substore, key, s.version)
	return value, err
}

// NonverifiablePrefixRaw streams every key/value pair in substore's
// non-verifiable family whose key starts with prefix, in byte-lex order.
func (s *Snapshot) NonverifiablePrefixRaw(ctx context.Context, substore types.SubstoreID, prefix []byte, fn func(key, value []byte) error) error {
	return s.backend.IterateNonverifiable(ctx, substore, prefix, s.version, fn)
}

// NonverifiableRangeRaw streams every key/value pair in substore's
// non-verifiable family with start <= key < end (a half-open byte-lex
// range), as of this Snapshot's version. An empty end means no upper
// bound.
func (s *Snapshot) NonverifiableRangeRaw(ctx context.Context, substore types.SubstoreID, start, end []byte, fn func(key, value []byte) error) error {
	return s.backend.IterateNonverifiable(ctx, substore, nil, s.version, func(key, value []byte) error {
		if bytes.Compare(key, start) < 0 {
			return nil
		}
		if len(end) > 0 && bytes.Compare(key, end) >= 0 {
			return nil
		}
		return fn(key, value)
	})
}

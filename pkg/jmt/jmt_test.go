package jmt

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/duskbridge/strata/pkg/registry"
	"github.com/duskbridge/strata/pkg/storage"
	"github.com/duskbridge/strata/pkg/types"
)

func newTestEngine(t *testing.T) (*Engine, *storage.Backend) {
	t.Helper()

	reg, err := registry.New(nil)
	require.NoError(t, err)

	backend, err := storage.Open(filepath.Join(t.TempDir(), "jmt.db"), reg)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	return New(backend), backend
}

func putLeaves(t *testing.T, e *Engine, substore types.SubstoreID, version types.Version, kvs map[string]string) types.Hash {
	t.Helper()

	leaves := make([]LeafUpdate, 0, len(kvs))
	for k, v := range kvs {
		leaves = append(leaves, LeafUpdate{
			KeyHash: HashKey([]byte(k)),
			FullKey: []byte(k),
			Value:   []byte(v),
		})
	}

	batch := storage.NewWriteBatch()
	root, err := e.PutValueSet(context.Background(), batch, substore, leaves, version)
	require.NoError(t, err)
	require.NoError(t, e.backend.WriteBatch(context.Background(), batch, version))
	return root
}

func TestPutValueSetRootChangesWithContent(t *testing.T) {
	e, _ := newTestEngine(t)

	root1 := putLeaves(t, e, types.MainStore, 1, map[string]string{"key_1": "v1"})
	root2Leaves := []LeafUpdate{
		{KeyHash: HashKey([]byte("key_1")), FullKey: []byte("key_1"), Value: []byte("v1")},
		{KeyHash: HashKey([]byte("key_2")), FullKey: []byte("key_2"), Value: []byte("v2")},
	}
	batch := storage.NewWriteBatch()
	root2, err := e.PutValueSet(context.Background(), batch, types.MainStore, root2Leaves, 2)
	require.NoError(t, err)
	require.NoError(t, e.backend.WriteBatch(context.Background(), batch, 2))

	require.NotEqual(t, root1, root2)
}

func TestGetWithProofExistence(t *testing.T) {
	e, _ := newTestEngine(t)
	putLeaves(t, e, types.MainStore, 1, map[string]string{
		"key_1": "v1",
		"key_2": "v2",
		"key_3": "v3",
	})

	root, err := e.RootHash(context.Background(), types.MainStore, 1)
	require.NoError(t, err)

	value, proof, err := e.GetWithProof(context.Background(), types.MainStore, []byte("key_2"), 1)
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), value)
	require.NotNil(t, proof.GetExist())

	out, err := Verify(root, HashKey([]byte("key_2")), proof)
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), out)
}

func TestGetWithProofNonExistence(t *testing.T) {
	e, _ := newTestEngine(t)
	putLeaves(t, e, types.MainStore, 1, map[string]string{
		"key_1": "v1",
		"key_2": "v2",
	})

	root, err := e.RootHash(context.Background(), types.MainStore, 1)
	require.NoError(t, err)

	value, proof, err := e.GetWithProof(context.Background(), types.MainStore, []byte("nope"), 1)
	require.NoError(t, err)
	require.Nil(t, value)
	require.NotNil(t, proof.GetNonexist())

	out, err := Verify(root, HashKey([]byte("nope")), proof)
	require.NoError(t, err)
	require.Nil(t, out)
}

func TestSubstoreRootsAreIndependent(t *testing.T) {
	e, _ := newTestEngine(t)

	rootA := putLeaves(t, e, types.SubstoreID("ibc"), 1, map[string]string{"key_1": "a"})
	rootB := putLeaves(t, e, types.SubstoreID("other"), 1, map[string]string{"key_1": "b"})

	require.NotEqual(t, rootA, rootB)

	valueA, _, err := e.GetWithProof(context.Background(), types.SubstoreID("ibc"), []byte("key_1"), 1)
	require.NoError(t, err)
	require.Equal(t, []byte("a"), valueA)

	valueB, _, err := e.GetWithProof(context.Background(), types.SubstoreID("other"), []byte("key_1"), 1)
	require.NoError(t, err)
	require.Equal(t, []byte("b"), valueB)
}

func TestPutValueSetStructuralSharingAcrossVersions(t *testing.T) {
	e, _ := newTestEngine(t)

	putLeaves(t, e, types.MainStore, 1, map[string]string{"key_1": "v1", "key_2": "v2"})
	root1, err := e.RootHash(context.Background(), types.MainStore, 1)
	require.NoError(t, err)

	batch := storage.NewWriteBatch()
	_, err = e.PutValueSet(context.Background(), batch, types.MainStore, []LeafUpdate{
		{KeyHash: HashKey([]byte("key_2")), FullKey: []byte("key_2"), Value: []byte("v2-updated")},
	}, 2)
	require.NoError(t, err)
	require.NoError(t, e.backend.WriteBatch(context.Background(), batch, 2))

	// key_1, untouched by the version-2 write, must still read at its
	// original value from version 1 and remain unchanged at version 2.
	v1, _, err := e.GetWithProof(context.Background(), types.MainStore, []byte("key_1"), 1)
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), v1)

	v1Again, _, err := e.GetWithProof(context.Background(), types.MainStore, []byte("key_1"), 2)
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), v1Again)

	root1Again, err := e.RootHash(context.Background(), types.MainStore, 1)
	require.NoError(t, err)
	require.Equal(t, root1, root1Again)
}

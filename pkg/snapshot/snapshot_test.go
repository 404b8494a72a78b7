package snapshot

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/duskbridge/strata/pkg/jmt"
	"github.com/duskbridge/strata/pkg/registry"
	"github.com/duskbridge/strata/pkg/storage"
	"github.com/duskbridge/strata/pkg/types"
)

func newTestFixture(t *testing.T, prefixes []string) (*storage.Backend, *registry.Registry, *jmt.Engine) {
	t.Helper()

	reg, err := registry.New(prefixes)
	require.NoError(t, err)

	backend, err := storage.Open(filepath.Join(t.TempDir(), "snap.db"), reg)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	return backend, reg, jmt.New(backend)
}

func writeVersion(t *testing.T, backend *storage.Backend, reg *registry.Registry, engine *jmt.Engine, version types.Version, writes map[string]string) {
	t.Helper()
	ctx := context.Background()

	bySubstore := map[types.SubstoreID][]jmt.LeafUpdate{}
	for k, v := range writes {
		substore, subKey := reg.Route(k)
		bySubstore[substore] = append(bySubstore[substore], jmt.LeafUpdate{
			KeyHash: jmt.HashKey([]byte(subKey)),
			FullKey: []byte(subKey),
			Value:   []byte(v),
		})
	}

	batch := storage.NewWriteBatch()
	var mainLeaves []jmt.LeafUpdate
	for s, leaves := range bySubstore {
		if s == types.MainStore {
			mainLeaves = append(mainLeaves, leaves...)
			continue
		}
		root, err := engine.PutValueSet(ctx, batch, s, leaves, version)
		require.NoError(t, err)
		mainLeaves = append(mainLeaves, jmt.LeafUpdate{
			KeyHash: jmt.HashKey([]byte(string(s))),
			FullKey: []byte(string(s)),
			Value:   root.Bytes(),
		})
	}
	_, err := engine.PutValueSet(ctx, batch, types.MainStore, mainLeaves, version)
	require.NoError(t, err)
	require.NoError(t, backend.WriteBatch(ctx, batch, version))
}

func TestSnapshotGetRawRoutesThroughRegistry(t *testing.T) {
	backend, reg, engine := newTestFixture(t, []string{"ibc"})
	writeVersion(t, backend, reg, engine, 1, map[string]string{"ibc/key_1": "v1"})

	snap := New(backend, reg, engine, 1)
	defer snap.Release()

	value, err := snap.GetRaw(context.Background(), []byte("ibc/key_1"))
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), value)
}

func TestSnapshotGetWithProofTwoLevel(t *testing.T) {
	backend, reg, engine := newTestFixture(t, []string{"ibc"})
	writeVersion(t, backend, reg, engine, 1, map[string]string{"ibc/key_1": "v1"})

	snap := New(backend, reg, engine, 1)
	defer snap.Release()

	root, err := snap.RootHash(context.Background())
	require.NoError(t, err)

	value, proof, err := snap.GetWithProof(context.Background(), []byte("ibc/key_1"))
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), value)
	require.Equal(t, types.SubstoreID("ibc"), proof.Substore)
	require.NotNil(t, proof.Inner)
	require.NotNil(t, proof.Outer)

	subRoot, err := snap.PrefixRootHash(context.Background(), "ibc")
	require.NoError(t, err)

	_, err = jmt.Verify(subRoot, jmt.HashKey([]byte("key_1")), proof.Inner)
	require.NoError(t, err)
	_, err = jmt.Verify(root, jmt.HashKey([]byte("ibc")), proof.Outer)
	require.NoError(t, err)
}

func TestSnapshotGetWithProofMainStoreIsSingleLevel(t *testing.T) {
	backend, reg, engine := newTestFixture(t, nil)
	writeVersion(t, backend, reg, engine, 1, map[string]string{"key_1": "v1"})

	snap := New(backend, reg, engine, 1)
	defer snap.Release()

	_, proof, err := snap.GetWithProof(context.Background(), []byte("key_1"))
	require.NoError(t, err)
	require.Nil(t, proof.Inner)
	require.NotNil(t, proof.Outer)
}

func TestSnapshotPrefixRawOverMainStoreIsOrdered(t *testing.T) {
	backend, reg, engine := newTestFixture(t, nil)
	keyed := map[string]string{}
	for i := 0; i < 10; i++ {
		keyed["key_"+string(rune('0'+i))] = "v"
	}
	writeVersion(t, backend, reg, engine, 1, keyed)

	snap := New(backend, reg, engine, 1)
	defer snap.Release()

	var got []string
	err := snap.PrefixRaw(context.Background(), []byte("key"), func(fullKey, _ []byte) error {
		got = append(got, string(fullKey))
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 10)
	for i := 0; i < 10; i++ {
		require.Equal(t, "key_"+string(rune('0'+i)), got[i])
	}
}

func TestSnapshotRouteDisambiguation(t *testing.T) {
	backend, reg, engine := newTestFixture(t, []string{"prefix_a", "prefix_b"})
	writeVersion(t, backend, reg, engine, 1, map[string]string{
		"prefix_a/key_1": "a-slash",
		"prefix_akey_1":  "a-noslash",
		"prefix_a/":      "a-empty",
		"prefix_b/key_1": "b-slash",
	})

	snap := New(backend, reg, engine, 1)
	defer snap.Release()

	for key, want := range map[string]string{
		"prefix_a/key_1": "a-slash",
		"prefix_akey_1":  "a-noslash",
		"prefix_a/":      "a-empty",
		"prefix_b/key_1": "b-slash",
	} {
		value, err := snap.GetRaw(context.Background(), []byte(key))
		require.NoError(t, err)
		require.Equal(t, []byte(want), value, "key %q", key)
	}
}

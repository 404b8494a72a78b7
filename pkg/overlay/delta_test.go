package overlay

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/duskbridge/strata/pkg/types"
)

// fakeStore is a minimal in-memory Reader, standing in for a Snapshot so
// these tests exercise Delta's merge logic in isolation.
type fakeStore struct {
	version types.Version
	kv      map[string][]byte
	nv      map[types.SubstoreID]map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{kv: map[string][]byte{}, nv: map[types.SubstoreID]map[string][]byte{}}
}

func (f *fakeStore) Version() types.Version { return f.version }

func (f *fakeStore) GetRaw(ctx context.Context, key []byte) ([]byte, error) {
	return f.kv[string(key)], nil
}

func (f *fakeStore) PrefixRaw(ctx context.Context, prefix []byte, fn func(fullKey, value []byte) error) error {
	keys := make([]string, 0, len(f.kv))
	for k := range f.kv {
		if strings.HasPrefix(k, string(prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := fn([]byte(k), f.kv[k]); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeStore) NonverifiableGetRaw(ctx context.Context, substore types.SubstoreID, key []byte) ([]byte, error) {
	return f.nv[substore][string(key)], nil
}

func (f *fakeStore) NonverifiablePrefixRaw(ctx context.Context, substore types.SubstoreID, prefix []byte, fn func(key, value []byte) error) error {
	bucket := f.nv[substore]
	keys := make([]string, 0, len(bucket))
	for k := range bucket {
		if strings.HasPrefix(k, string(prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := fn([]byte(k), bucket[k]); err != nil {
			return err
		}
	}
	return nil
}

func TestDeltaGetRawOverridesParent(t *testing.T) {
	parent := newFakeStore()
	parent.kv["key_1"] = []byte("parent_value")

	d := New(parent)
	value, err := d.GetRaw(context.Background(), []byte("key_1"))
	require.NoError(t, err)
	require.Equal(t, []byte("parent_value"), value)

	d.PutRaw([]byte("key_1"), []byte("delta_value"))
	value, err = d.GetRaw(context.Background(), []byte("key_1"))
	require.NoError(t, err)
	require.Equal(t, []byte("delta_value"), value)
}

func TestDeltaDeleteShadowsParent(t *testing.T) {
	parent := newFakeStore()
	parent.kv["key_1"] = []byte("v1")

	d := New(parent)
	d.Delete([]byte("key_1"))

	value, err := d.GetRaw(context.Background(), []byte("key_1"))
	require.NoError(t, err)
	require.Nil(t, value)
}

// TestDirtyDeltaPrefixMerge mirrors spec.md's "dirty-delta merge" scenario:
// a substore pre-populated with zest/key_000..zest/key_099, a fresh Delta
// forked from it, one additional key written to the Delta, and a
// prefix_raw over "zest/" on the Delta yielding all 101 entries in full-key
// order, ending in the Delta-only key.
func TestDirtyDeltaPrefixMerge(t *testing.T) {
	parent := newFakeStore()
	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("zest/key_%03d", i)
		parent.kv[key] = []byte("preexisting")
	}

	d := New(parent)
	d.PutRaw([]byte("zest/normal_key"), []byte("normal_value"))

	var got []string
	err := d.PrefixRaw(context.Background(), []byte("zest/"), func(fullKey, _ []byte) error {
		got = append(got, string(fullKey))
		return nil
	})
	require.NoError(t, err)

	require.Len(t, got, 101)
	require.Equal(t, "zest/normal_key", got[len(got)-1])
	require.True(t, sort.StringsAreSorted(got))
}

func TestDeltaPrefixRawSkipsDeletedParentKeys(t *testing.T) {
	parent := newFakeStore()
	parent.kv["key_1"] = []byte("v1")
	parent.kv["key_2"] = []byte("v2")

	d := New(parent)
	d.Delete([]byte("key_1"))

	var got []string
	err := d.PrefixRaw(context.Background(), []byte("key_"), func(fullKey, _ []byte) error {
		got = append(got, string(fullKey))
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"key_2"}, got)
}

func TestDeltaForkAndApplyCollapsesIntoParentDelta(t *testing.T) {
	parent := newFakeStore()
	root := New(parent)
	root.PutRaw([]byte("key_1"), []byte("root_value"))

	nested := root.Fork()
	nested.PutRaw([]byte("key_2"), []byte("nested_value"))
	nested.Delete([]byte("key_1"))

	require.NoError(t, nested.Apply())

	value, err := root.GetRaw(context.Background(), []byte("key_1"))
	require.NoError(t, err)
	require.Nil(t, value)

	value, err = root.GetRaw(context.Background(), []byte("key_2"))
	require.NoError(t, err)
	require.Equal(t, []byte("nested_value"), value)
}

func TestDeltaApplyRejectsNonDeltaParent(t *testing.T) {
	parent := newFakeStore()
	d := New(parent)
	d.PutRaw([]byte("key_1"), []byte("v1"))

	require.Error(t, d.Apply())
}

func TestDeltaDiscardClearsWrites(t *testing.T) {
	parent := newFakeStore()
	d := New(parent)
	d.PutRaw([]byte("key_1"), []byte("v1"))
	d.Discard()

	require.Empty(t, d.Writes())
}

func TestDeltaStashIsTypedAndEphemeral(t *testing.T) {
	parent := newFakeStore()
	d := New(parent)

	d.SetStash("count", 42)
	v, ok := d.Stash("count")
	require.True(t, ok)
	require.Equal(t, 42, v)

	_, ok = d.Stash("missing")
	require.False(t, ok)
}

func TestDeltaNonverifiableWritesRouting(t *testing.T) {
	parent := newFakeStore()
	d := New(parent)

	d.NonverifiablePutRaw(types.SubstoreID("ibc"), []byte("a"), []byte("1"))
	d.NonverifiablePutRaw(types.SubstoreID("other"), []byte("b"), []byte("2"))

	writes := d.NonverifiableWrites()
	require.Len(t, writes, 2)
	require.Equal(t, []byte("1"), writes[types.SubstoreID("ibc")][0].Value)
	require.Equal(t, []byte("2"), writes[types.SubstoreID("other")][0].Value)
}

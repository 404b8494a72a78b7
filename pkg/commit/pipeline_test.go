package commit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/duskbridge/strata/pkg/config"
	"github.com/duskbridge/strata/pkg/jmt"
	"github.com/duskbridge/strata/pkg/overlay"
	"github.com/duskbridge/strata/pkg/registry"
	"github.com/duskbridge/strata/pkg/snapshot"
	"github.com/duskbridge/strata/pkg/storage"
	"github.com/duskbridge/strata/pkg/types"
	"github.com/duskbridge/strata/pkg/watch"
)

func newTestPipeline(t *testing.T, prefixes []string, retention config.Retention) (*Pipeline, *storage.Backend, *snapshot.Snapshot) {
	t.Helper()

	reg, err := registry.New(prefixes)
	require.NoError(t, err)

	backend, err := storage.Open(filepath.Join(t.TempDir(), "strata.db"), reg)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	engine := jmt.New(backend)
	w := watch.NewService()
	w.Start()
	t.Cleanup(w.Stop)

	p := New(backend, reg, engine, w, retention)
	head := snapshot.New(backend, reg, engine, backend.LatestVersion())
	return p, backend, head
}

func TestCommitAdvancesVersionAndRoot(t *testing.T) {
	p, _, head := newTestPipeline(t, []string{"ibc"}, config.Retention{Mode: config.RetentionAll})
	ctx := context.Background()

	d := overlay.New(head)
	d.PutRaw([]byte("ibc/key_1"), []byte("v1"))

	newHead, events, err := p.Commit(ctx, d)
	require.NoError(t, err)
	require.Empty(t, events)
	require.Equal(t, types.Version(1), newHead.Version())

	value, err := newHead.GetRaw(ctx, []byte("ibc/key_1"))
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), value)
}

func TestCommitRejectsStaleParent(t *testing.T) {
	p, _, head := newTestPipeline(t, nil, config.Retention{Mode: config.RetentionAll})
	ctx := context.Background()

	d1 := overlay.New(head)
	d1.PutRaw([]byte("key_1"), []byte("v1"))
	_, _, err := p.Commit(ctx, d1)
	require.NoError(t, err)

	// head is now stale: the pipeline already advanced past it.
	d2 := overlay.New(head)
	d2.PutRaw([]byte("key_2"), []byte("v2"))
	_, _, err = p.Commit(ctx, d2)
	require.ErrorIs(t, err, types.ErrConflict)
}

func TestCommitRejectsNestedDelta(t *testing.T) {
	p, _, head := newTestPipeline(t, nil, config.Retention{Mode: config.RetentionAll})
	ctx := context.Background()

	d := overlay.New(head)
	nested := d.Fork()
	nested.PutRaw([]byte("key_1"), []byte("v1"))

	_, _, err := p.Commit(ctx, nested)
	require.ErrorIs(t, err, types.ErrConflict)
}

func TestCommitRejectsReservedKeyWrite(t *testing.T) {
	p, _, head := newTestPipeline(t, []string{"ibc"}, config.Retention{Mode: config.RetentionAll})
	ctx := context.Background()

	d := overlay.New(head)
	d.PutRaw([]byte("ibc"), []byte("not allowed"))

	_, _, err := p.Commit(ctx, d)
	require.Error(t, err)
}

func TestCommitAdvancesSubRootOnSecondWrite(t *testing.T) {
	p, backend, head := newTestPipeline(t, []string{"ibc"}, config.Retention{Mode: config.RetentionAll})
	ctx := context.Background()

	d1 := overlay.New(head)
	d1.PutRaw([]byte("ibc/key_1"), []byte("v1"))
	head2, _, err := p.Commit(ctx, d1)
	require.NoError(t, err)

	root1, err := head2.PrefixRootHash(ctx, "ibc")
	require.NoError(t, err)

	d2 := overlay.New(head2)
	d2.PutRaw([]byte("ibc/key_2"), []byte("v2"))
	head3, _, err := p.Commit(ctx, d2)
	require.NoError(t, err)

	root2, err := head3.PrefixRootHash(ctx, "ibc")
	require.NoError(t, err)

	require.NotEqual(t, root1, root2)
	require.Equal(t, types.Version(2), backend.LatestVersion())
}

func TestCommitPrunesUnderRetentionLastN(t *testing.T) {
	p, backend, head := newTestPipeline(t, nil, config.Retention{Mode: config.RetentionLastN, KeepLast: 1})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d := overlay.New(head)
		d.PutRaw([]byte("key_1"), []byte("v"))
		var err error
		head, _, err = p.Commit(ctx, d)
		require.NoError(t, err)
	}

	require.Equal(t, types.Version(3), backend.LatestVersion())
	require.Greater(t, backend.EarliestVersion(), types.Version(0))
}

func TestCommitPublishesWatchUpdate(t *testing.T) {
	reg, err := registry.New(nil)
	require.NoError(t, err)
	backend, err := storage.Open(filepath.Join(t.TempDir(), "strata.db"), reg)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	engine := jmt.New(backend)
	w := watch.NewService()
	w.Start()
	t.Cleanup(w.Stop)

	entries, cancel, err := w.Subscribe("key_.*", "")
	require.NoError(t, err)
	defer cancel()

	p := New(backend, reg, engine, w, config.Retention{Mode: config.RetentionAll})
	head := snapshot.New(backend, reg, engine, backend.LatestVersion())

	ctx := context.Background()
	d := overlay.New(head)
	d.PutRaw([]byte("key_1"), []byte("v1"))
	_, _, err = p.Commit(ctx, d)
	require.NoError(t, err)

	select {
	case e := <-entries:
		require.NotNil(t, e.KV)
		require.Equal(t, "key_1", e.KV.Key)
		require.Equal(t, types.Version(1), e.Version)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a watch entry to be published")
	}
}

package api

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/duskbridge/strata/pkg/commit"
	"github.com/duskbridge/strata/pkg/config"
	"github.com/duskbridge/strata/pkg/jmt"
	"github.com/duskbridge/strata/pkg/overlay"
	"github.com/duskbridge/strata/pkg/registry"
	"github.com/duskbridge/strata/pkg/snapshot"
	"github.com/duskbridge/strata/pkg/storage"
	"github.com/duskbridge/strata/pkg/watch"
)

// newTestStack wires a full backend/registry/engine/watch/pipeline stack and
// a Server on top of it, the same way cmd/stratad does at startup.
func newTestStack(t *testing.T) (*Server, *commit.Pipeline) {
	t.Helper()

	reg, err := registry.New([]string{"ibc"})
	require.NoError(t, err)

	backend, err := storage.Open(filepath.Join(t.TempDir(), "api.db"), reg)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	engine := jmt.New(backend)
	w := watch.NewService()
	w.Start()
	t.Cleanup(w.Stop)

	p := commit.New(backend, reg, engine, w, config.Retention{Mode: config.RetentionAll})
	s := NewServer(backend, reg, engine, w)
	return s, p
}

func commitKV(t *testing.T, s *Server, p *commit.Pipeline, kvs map[string]string) {
	t.Helper()
	ctx := context.Background()

	head := snapshot.New(s.backend, s.registry, s.engine, s.backend.LatestVersion())
	defer head.Release()

	d := overlay.New(head)
	for k, v := range kvs {
		d.PutRaw([]byte(k), []byte(v))
	}
	_, _, err := p.Commit(ctx, d)
	require.NoError(t, err)
}

func TestServerKeyValueWithoutProof(t *testing.T) {
	s, p := newTestStack(t)
	commitKV(t, s, p, map[string]string{"ibc/key_1": "v1"})

	resp, err := s.KeyValue(context.Background(), "", "ibc/key_1", false)
	require.NoError(t, err)
	require.True(t, resp.Found)
	require.Equal(t, []byte("v1"), resp.Value)
	require.Nil(t, resp.Inner)
	require.Nil(t, resp.Outer)
}

func TestServerKeyValueWithProof(t *testing.T) {
	s, p := newTestStack(t)
	commitKV(t, s, p, map[string]string{"ibc/key_1": "v1"})

	resp, err := s.KeyValue(context.Background(), "", "ibc/key_1", true)
	require.NoError(t, err)
	require.True(t, resp.Found)
	require.NotNil(t, resp.Inner)
	require.NotNil(t, resp.Outer)
}

func TestServerKeyValueNotFound(t *testing.T) {
	s, p := newTestStack(t)
	commitKV(t, s, p, map[string]string{"ibc/key_1": "v1"})

	resp, err := s.KeyValue(context.Background(), "", "ibc/missing", false)
	require.NoError(t, err)
	require.False(t, resp.Found)
	require.Nil(t, resp.Value)
}

func TestServerPrefixValueStreamsOrderedEntries(t *testing.T) {
	s, p := newTestStack(t)
	commitKV(t, s, p, map[string]string{
		"ibc/key_1": "v1",
		"ibc/key_2": "v2",
		"ibc/key_3": "v3",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	entries, err := s.PrefixValue(ctx, "", "ibc/key_")
	require.NoError(t, err)

	var got []string
	for e := range entries {
		got = append(got, e.Key)
	}
	require.Equal(t, []string{"ibc/key_1", "ibc/key_2", "ibc/key_3"}, got)
}

func TestServerWatchDeliversMatchingCommits(t *testing.T) {
	s, p := newTestStack(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	entries, err := s.Watch(ctx, "ibc/.*", "")
	require.NoError(t, err)

	commitKV(t, s, p, map[string]string{"ibc/key_1": "v1"})

	select {
	case e := <-entries:
		require.Equal(t, "ibc/key_1", e.Key)
		require.Equal(t, []byte("v1"), e.Value)
		require.False(t, e.Deleted)
	case <-time.After(3 * time.Second):
		t.Fatal("expected a watch entry for ibc/key_1")
	}
}

func TestServerWatchIgnoresNonMatchingKeys(t *testing.T) {
	s, p := newTestStack(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	entries, err := s.Watch(ctx, "other/.*", "")
	require.NoError(t, err)

	commitKV(t, s, p, map[string]string{"ibc/key_1": "v1"})

	select {
	case e := <-entries:
		t.Fatalf("unexpected watch entry for non-matching key: %+v", e)
	case <-time.After(200 * time.Millisecond):
	}
}

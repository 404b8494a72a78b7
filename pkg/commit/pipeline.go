package commit

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/duskbridge/strata/pkg/config"
	"github.com/duskbridge/strata/pkg/jmt"
	"github.com/duskbridge/strata/pkg/log"
	"github.com/duskbridge/strata/pkg/metrics"
	"github.com/duskbridge/strata/pkg/overlay"
	"github.com/duskbridge/strata/pkg/registry"
	"github.com/duskbridge/strata/pkg/snapshot"
	"github.com/duskbridge/strata/pkg/storage"
	"github.com/duskbridge/strata/pkg/types"
	"github.com/duskbridge/strata/pkg/watch"
)

// Pipeline is the Commit Pipeline: it owns the only code path that turns a
// Delta into a new backend version and a new Snapshot.
type Pipeline struct {
	backend   *storage.Backend
	registry  *registry.Registry
	engine    *jmt.Engine
	watch     *watch.Service
	retention config.Retention
}

// New returns a Pipeline wiring the given backend, registry, JMT engine,
// and watch service together. retention governs the pruning pass run after
// every successful commit.
func New(backend *storage.Backend, reg *registry.Registry, engine *jmt.Engine, w *watch.Service, retention config.Retention) *Pipeline {
	return &Pipeline{backend: backend, registry: reg, engine: engine, watch: w, retention: retention}
}

// Commit applies delta atomically, advancing the backend's version by one,
// and returns the new head Snapshot together with the events delta
// recorded. delta must be rooted directly at a Snapshot of the backend's
// current head; anything else is rejected with types.ErrConflict.
func (p *Pipeline) Commit(ctx context.Context, delta *overlay.Delta) (newHead *snapshot.Snapshot, events []types.Event, err error) {
	start := time.Now()
	defer func() {
		metrics.CommitDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.UpdateComponent("commit", false, err.Error())
		} else {
			metrics.UpdateComponent("commit", true, "")
		}
	}()

	parent, ok := delta.Parent().(*snapshot.Snapshot)
	if !ok {
		metrics.CommitsFailedTotal.WithLabelValues("not_root").Inc()
		return nil, nil, fmt.Errorf("commit: delta must be rooted at the head snapshot, not a nested delta: %w", types.ErrConflict)
	}
	head := p.backend.LatestVersion()
	if parent.Version() != head {
		metrics.CommitsFailedTotal.WithLabelValues("stale_parent").Inc()
		return nil, nil, fmt.Errorf("commit: delta's parent is at version %d but head is %d: %w", parent.Version(), head, types.ErrConflict)
	}
	newVersion := head + 1

	writes := delta.Writes()
	bySubstore := map[types.SubstoreID][]jmt.LeafUpdate{}
	for _, w := range writes {
		if err := p.registry.ValidateWrite(string(w.Key)); err != nil {
			metrics.CommitsFailedTotal.WithLabelValues("reserved_key").Inc()
			return nil, nil, err
		}
		substore, subKey := p.registry.Route(string(w.Key))
		var value []byte
		if w.Present {
			value = w.Value
		}
		bySubstore[substore] = append(bySubstore[substore], jmt.LeafUpdate{
			KeyHash: jmt.HashKey([]byte(subKey)),
			FullKey: []byte(subKey),
			Value:   value,
		})
	}

	batch := storage.NewWriteBatch()

	var affected []types.SubstoreID
	for s := range bySubstore {
		if s != types.MainStore {
			affected = append(affected, s)
		}
	}
	sort.Slice(affected, func(i, j int) bool { return affected[i] < affected[j] })

	leafCount := 0
	mainLeaves := append([]jmt.LeafUpdate(nil), bySubstore[types.MainStore]...)
	for _, s := range affected {
		leaves := bySubstore[s]
		root, err := p.engine.PutValueSet(ctx, batch, s, leaves, newVersion)
		if err != nil {
			metrics.CommitsFailedTotal.WithLabelValues("jmt_substore").Inc()
			return nil, nil, fmt.Errorf("commit: put_value_set for substore %q: %w", s, err)
		}
		leafCount += len(leaves)

		rootKey := []byte(string(s))
		mainLeaves = append(mainLeaves, jmt.LeafUpdate{
			KeyHash: jmt.HashKey(rootKey),
			FullKey: rootKey,
			Value:   root.Bytes(),
		})
	}
	sort.Slice(mainLeaves, func(i, j int) bool { return bytes.Compare(mainLeaves[i].FullKey, mainLeaves[j].FullKey) < 0 })

	if _, err := p.engine.PutValueSet(ctx, batch, types.MainStore, mainLeaves, newVersion); err != nil {
		metrics.CommitsFailedTotal.WithLabelValues("jmt_main").Inc()
		return nil, nil, fmt.Errorf("commit: put_value_set for main store: %w", err)
	}
	leafCount += len(mainLeaves)

	nvWrites := delta.NonverifiableWrites()
	for substore, entries := range nvWrites {
		for _, e := range entries {
			if e.Present {
				batch.PutNonverifiable(substore, e.Key, e.Value)
			} else {
				batch.DeleteNonverifiable(substore, e.Key)
			}
		}
	}

	if err := p.backend.WriteBatch(ctx, batch, newVersion); err != nil {
		metrics.CommitsFailedTotal.WithLabelValues("backend").Inc()
		return nil, nil, fmt.Errorf("commit: write batch: %w", err)
	}

	metrics.CommitsTotal.Inc()
	metrics.CommitLeavesTotal.Observe(float64(leafCount))
	metrics.LatestVersion.Set(float64(newVersion))

	events = delta.Events()
	p.watch.Publish(buildUpdate(newVersion, writes, nvWrites))

	if p.retention.Mode == config.RetentionLastN {
		if err := p.backend.Prune(p.retention.KeepLast); err != nil {
			log.Logger.Warn().Err(err).Msg("commit: retention pruning failed")
		}
	}

	newHead = snapshot.New(p.backend, p.registry, p.engine, newVersion)
	return newHead, events, nil
}

func buildUpdate(version types.Version, writes []overlay.WriteEntry, nvWrites map[types.SubstoreID][]overlay.WriteEntry) *watch.Update {
	kv := make([]watch.KVEntry, 0, len(writes))
	for _, w := range writes {
		kv = append(kv, watch.KVEntry{Key: string(w.Key), Value: w.Value, Deleted: !w.Present})
	}

	substores := make([]types.SubstoreID, 0, len(nvWrites))
	for s := range nvWrites {
		substores = append(substores, s)
	}
	sort.Slice(substores, func(i, j int) bool { return substores[i] < substores[j] })

	var nv []watch.NvKVEntry
	for _, s := range substores {
		for _, e := range nvWrites[s] {
			nv = append(nv, watch.NvKVEntry{Key: e.Key, Value: e.Value, Deleted: !e.Present})
		}
	}

	return &watch.Update{Version: version, KV: kv, NvKV: nv}
}

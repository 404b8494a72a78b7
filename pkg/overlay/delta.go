package overlay

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/btree"

	"github.com/duskbridge/strata/pkg/metrics"
	"github.com/duskbridge/strata/pkg/types"
)

// Reader is the read contract shared by Snapshot and Delta (spec §4.D),
// letting a Delta layer transparently over either one.
type Reader interface {
	GetRaw(ctx context.Context, key []byte) ([]byte, error)
	PrefixRaw(ctx context.Context, prefix []byte, fn func(fullKey, value []byte) error) error
	NonverifiableGetRaw(ctx context.Context, substore types.SubstoreID, key []byte) ([]byte, error)
	NonverifiablePrefixRaw(ctx context.Context, substore types.SubstoreID, prefix []byte, fn func(key, value []byte) error) error
	Version() types.Version
}

const btreeDegree = 32

type writeEntry struct {
	key     string
	present bool
	value   []byte
}

func lessWriteEntry(a, b writeEntry) bool {
	return a.key < b.key
}

// WriteEntry is an exported, ordered write record, used by the commit
// pipeline to read out a Delta's pending changes.
type WriteEntry struct {
	Key     []byte
	Value   []byte
	Present bool
}

// Delta is a mutable in-memory diff layered over a parent Reader.
type Delta struct {
	parent   Reader
	writes   *btree.BTreeG[writeEntry]
	nvWrites map[types.SubstoreID]*btree.BTreeG[writeEntry]
	events   []types.Event
	stash    map[string]any
	consumed bool
}

// New returns an empty Delta layered over parent.
func New(parent Reader) *Delta {
	metrics.DeltaForksTotal.Inc()
	return &Delta{
		parent:   parent,
		writes:   btree.NewG(btreeDegree, lessWriteEntry),
		nvWrites: make(map[types.SubstoreID]*btree.BTreeG[writeEntry]),
		stash:    make(map[string]any),
	}
}

func (d *Delta) mustBeLive() {
	if d.consumed {
		panic("overlay: use of a Delta after Apply or Discard")
	}
}

// Version returns the version of the Snapshot this Delta (transitively)
// descends from.
func (d *Delta) Version() types.Version {
	return d.parent.Version()
}

// PutRaw stages a write of value at key, shadowing the parent until this
// Delta is applied.
func (d *Delta) PutRaw(key, value []byte) {
	d.mustBeLive()
	d.writes.ReplaceOrInsert(writeEntry{key: string(key), present: true, value: append([]byte(nil), value...)})
	metrics.DeltaWritesTotal.WithLabelValues("verifiable").Inc()
}

// Delete stages key's removal, shadowing any parent value.
func (d *Delta) Delete(key []byte) {
	d.mustBeLive()
	d.writes.ReplaceOrInsert(writeEntry{key: string(key), present: false})
	metrics.DeltaWritesTotal.WithLabelValues("verifiable").Inc()
}

// NonverifiablePutRaw stages a non-verifiable-family write.
func (d *Delta) NonverifiablePutRaw(substore types.SubstoreID, key, value []byte) {
	d.mustBeLive()
	d.nvTree(substore).ReplaceOrInsert(writeEntry{key: string(key), present: true, value: append([]byte(nil), value...)})
	metrics.DeltaWritesTotal.WithLabelValues("nonverifiable").Inc()
}

// NonverifiableDelete stages a non-verifiable-family deletion.
func (d *Delta) NonverifiableDelete(substore types.SubstoreID, key []byte) {
	d.mustBeLive()
	d.nvTree(substore).ReplaceOrInsert(writeEntry{key: string(key), present: false})
	metrics.DeltaWritesTotal.WithLabelValues("nonverifiable").Inc()
}

func (d *Delta) nvTree(substore types.SubstoreID) *btree.BTreeG[writeEntry] {
	t, ok := d.nvWrites[substore]
	if !ok {
		t = btree.NewG(btreeDegree, lessWriteEntry)
		d.nvWrites[substore] = t
	}
	return t
}

// Record appends e to this Delta's event log, consumed at apply time.
func (d *Delta) Record(e types.Event) {
	d.mustBeLive()
	d.events = append(d.events, e)
}

// Stash returns an ephemeral, non-persisted value previously stored under
// key, for passing computed values between phases of a single Delta's
// execution.
func (d *Delta) Stash(key string) (any, bool) {
	v, ok := d.stash[key]
	return v, ok
}

// SetStash stores an ephemeral value under key, overwriting any prior one.
func (d *Delta) SetStash(key string, v any) {
	d.mustBeLive()
	d.stash[key] = v
}

// GetRaw checks this Delta's own writes first, falling through to the
// parent when key has no pending write.
func (d *Delta) GetRaw(ctx context.Context, key []byte) ([]byte, error) {
	if e, ok := d.writes.Get(writeEntry{key: string(key)}); ok {
		if !e.present {
			return nil, nil
		}
		return e.value, nil
	}
	return d.parent.GetRaw(ctx, key)
}

// NonverifiableGetRaw is GetRaw's non-verifiable-family counterpart.
func (d *Delta) NonverifiableGetRaw(ctx context.Context, substore types.SubstoreID, key []byte) ([]byte, error) {
	if t, ok := d.nvWrites[substore]; ok {
		if e, ok := t.Get(writeEntry{key: string(key)}); ok {
			if !e.present {
				return nil, nil
			}
			return e.value, nil
		}
	}
	return d.parent.NonverifiableGetRaw(ctx, substore, key)
}

// PrefixRaw merge-joins this Delta's own sorted writes under prefix against
// the parent's PrefixRaw stream: on a tie the overlay wins, and an overlay
// deletion suppresses the parent's entry entirely.
func (d *Delta) PrefixRaw(ctx context.Context, prefix []byte, fn func(fullKey, value []byte) error) error {
	return mergeJoin(d.writes, d.parent.PrefixRaw, ctx, prefix, fn)
}

// PrefixKeys is PrefixRaw with values omitted.
func (d *Delta) PrefixKeys(ctx context.Context, prefix []byte, fn func(fullKey []byte) error) error {
	return d.PrefixRaw(ctx, prefix, func(fullKey, _ []byte) error {
		return fn(fullKey)
	})
}

// NonverifiablePrefixRaw is PrefixRaw's non-verifiable-family counterpart.
func (d *Delta) NonverifiablePrefixRaw(ctx context.Context, substore types.SubstoreID, prefix []byte, fn func(key, value []byte) error) error {
	t, ok := d.nvWrites[substore]
	if !ok {
		t = btree.NewG(btreeDegree, lessWriteEntry)
	}
	parentPrefixRaw := func(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error {
		return d.parent.NonverifiablePrefixRaw(ctx, substore, prefix, fn)
	}
	return mergeJoin(t, parentPrefixRaw, ctx, prefix, fn)
}

// mergeJoin streams overlay's entries under prefix merge-joined against
// parentStream, which must itself emit keys under prefix in ascending
// byte order.
func mergeJoin(
	overlayTree *btree.BTreeG[writeEntry],
	parentStream func(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error,
	ctx context.Context,
	prefix []byte,
	fn func(key, value []byte) error,
) error {
	pfx := string(prefix)
	var overlay []writeEntry
	overlayTree.AscendGreaterOrEqual(writeEntry{key: pfx}, func(e writeEntry) bool {
		if !strings.HasPrefix(e.key, pfx) {
			return false
		}
		overlay = append(overlay, e)
		return true
	})

	i := 0
	err := parentStream(ctx, prefix, func(key, value []byte) error {
		k := string(key)
		for i < len(overlay) && overlay[i].key < k {
			o := overlay[i]
			i++
			if o.present {
				if err := fn([]byte(o.key), o.value); err != nil {
					return err
				}
			}
		}
		if i < len(overlay) && overlay[i].key == k {
			o := overlay[i]
			i++
			if !o.present {
				return nil
			}
			return fn([]byte(o.key), o.value)
		}
		return fn(key, value)
	})
	if err != nil {
		return err
	}
	for ; i < len(overlay); i++ {
		o := overlay[i]
		if o.present {
			if err := fn([]byte(o.key), o.value); err != nil {
				return err
			}
		}
	}
	return nil
}

// Fork returns a new Delta whose parent is d. Writes into the child never
// affect d until the child is applied.
func (d *Delta) Fork() *Delta {
	return New(d)
}

// Apply collapses this Delta into its parent Delta, moving writes and
// events. It is an error to call Apply on a Delta rooted directly at a
// Snapshot; that handoff belongs to the commit pipeline, which reads this
// Delta's write sets directly instead.
func (d *Delta) Apply() error {
	d.mustBeLive()
	parent, ok := d.parent.(*Delta)
	if !ok {
		return fmt.Errorf("overlay: Apply called on a Delta rooted at a Snapshot; use the commit pipeline instead")
	}
	d.writes.Ascend(func(e writeEntry) bool {
		parent.writes.ReplaceOrInsert(e)
		return true
	})
	for substore, t := range d.nvWrites {
		pt := parent.nvTree(substore)
		t.Ascend(func(e writeEntry) bool {
			pt.ReplaceOrInsert(e)
			return true
		})
	}
	parent.events = append(parent.events, d.events...)
	d.clear()
	return nil
}

// Discard drops this Delta's writes and events without affecting its
// parent.
func (d *Delta) Discard() {
	d.mustBeLive()
	d.clear()
}

func (d *Delta) clear() {
	d.writes = btree.NewG[writeEntry](btreeDegree, lessWriteEntry)
	d.nvWrites = make(map[types.SubstoreID]*btree.BTreeG[writeEntry])
	d.events = nil
	d.stash = make(map[string]any)
	d.consumed = true
}

// Writes returns this Delta's own pending verifiable writes, ordered by
// key. It does not include anything from the parent.
func (d *Delta) Writes() []WriteEntry {
	out := make([]WriteEntry, 0, d.writes.Len())
	d.writes.Ascend(func(e writeEntry) bool {
		out = append(out, WriteEntry{Key: []byte(e.key), Value: e.value, Present: e.present})
		return true
	})
	return out
}

// NonverifiableWrites returns this Delta's own pending non-verifiable
// writes, grouped by substore and ordered by key within each.
func (d *Delta) NonverifiableWrites() map[types.SubstoreID][]WriteEntry {
	out := make(map[types.SubstoreID][]WriteEntry, len(d.nvWrites))
	for substore, t := range d.nvWrites {
		entries := make([]WriteEntry, 0, t.Len())
		t.Ascend(func(e writeEntry) bool {
			entries = append(entries, WriteEntry{Key: []byte(e.key), Value: e.value, Present: e.present})
			return true
		})
		out[substore] = entries
	}
	return out
}

// Events returns this Delta's own recorded events, in record order.
func (d *Delta) Events() []types.Event {
	return append([]types.Event(nil), d.events...)
}

// Parent returns the Reader this Delta is layered over.
func (d *Delta) Parent() Reader {
	return d.parent
}

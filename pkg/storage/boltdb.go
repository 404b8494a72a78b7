package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/duskbridge/strata/pkg/metrics"
	"github.com/duskbridge/strata/pkg/registry"
	"github.com/duskbridge/strata/pkg/types"
)

// Backend is the durable column-family KV store: one bbolt database file,
// opened once, with nested buckets per family and substore. It is the only
// component that touches disk directly.
type Backend struct {
	db       *bolt.DB
	registry *registry.Registry

	mu       sync.Mutex // serializes WriteBatch; reads need no lock (bbolt handles that)
	latest   atomic.Uint64
	earliest atomic.Uint64
}

// Open opens (creating if necessary) a Backend at path, validating that the
// registered substore prefixes match whatever was recorded on a previous
// open. A mismatch is a fatal configuration error, per invariant: registered
// substore prefixes must be supplied identically on reopen.
func Open(path string, reg *registry.Registry) (*Backend, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w: %v", path, types.ErrBackend, err)
	}

	b := &Backend{db: db, registry: reg}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range topLevelFamilies {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("storage: create bucket %q: %w", name, err)
			}
		}
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return fmt.Errorf("storage: create meta bucket: %w", err)
		}
		return validateOrInitSubstores(meta, reg)
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	err = db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		if v := meta.Get(keyLatestVersion); v != nil {
			b.latest.Store(binary.BigEndian.Uint64(v))
		}
		if v := meta.Get(keyEarliestVersion); v != nil {
			b.earliest.Store(binary.BigEndian.Uint64(v))
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return b, nil
}

// validateOrInitSubstores writes the registered prefixes on first open, or
// checks them against what was previously written.
func validateOrInitSubstores(meta *bolt.Bucket, reg *registry.Registry) error {
	want := append([]string(nil), reg.Prefixes()...)
	sort.Strings(want)

	existing := meta.Get(keySubstores)
	if existing == nil {
		return meta.Put(keySubstores, []byte(strings.Join(want, "\n")))
	}

	got := strings.Split(string(existing), "\n")
	if len(got) == 1 && got[0] == "" {
		got = nil
	}
	sort.Strings(got)

	if !stringSlicesEqual(want, got) {
		return fmt.Errorf("storage: registered substores %v do not match previously opened substores %v: %w", want, got, types.ErrConfigInvalid)
	}
	return nil
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Close closes the underlying database file.
func (b *Backend) Close() error {
	return b.db.Close()
}

// Registry returns the substore registry this Backend was opened with.
func (b *Backend) Registry() *registry.Registry {
	return b.registry
}

// LatestVersion returns the head version, or 0 if the store is empty.
func (b *Backend) LatestVersion() types.Version {
	return types.Version(b.latest.Load())
}

// EarliestVersion returns the oldest version still guaranteed available;
// snapshots below it may have been pruned.
func (b *Backend) EarliestVersion() types.Version {
	return types.Version(b.earliest.Load())
}

// HasVersion reports whether v is within [EarliestVersion, LatestVersion].
func (b *Backend) HasVersion(v types.Version) bool {
	return v <= b.LatestVersion() && v >= b.EarliestVersion()
}

// WriteBatch applies batch atomically and advances the head to newVersion,
// which must be exactly one past the current head. Either every staged
// operation lands, or none do.
func (b *Backend) WriteBatch(ctx context.Context, batch *WriteBatch, newVersion types.Version) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if want := b.LatestVersion() + 1; newVersion != want {
		return fmt.Errorf("storage: write batch targets version %d, head requires %d: %w", newVersion, want, types.ErrConflict)
	}

	timer := metrics.NewTimer()
	err := b.db.Update(func(tx *bolt.Tx) error {
		for _, op := range batch.ops {
			if err := applyOp(tx, op, newVersion); err != nil {
				return err
			}
		}
		var vbuf [8]byte
		binary.BigEndian.PutUint64(vbuf[:], uint64(newVersion))
		return tx.Bucket(bucketMeta).Put(keyLatestVersion, vbuf[:])
	})
	timer.ObserveDuration(metrics.WriteBatchDuration)

	if err != nil {
		return fmt.Errorf("storage: write batch: %w: %v", types.ErrBackend, err)
	}

	b.latest.Store(uint64(newVersion))
	return nil
}

func applyOp(tx *bolt.Tx, op writeOp, version types.Version) error {
	switch op.kind {
	case opPutNode:
		bucket, err := nestedBucketCreate(tx, bucketJMT, op.substore)
		if err != nil {
			return err
		}
		return bucket.Put(versionedKey(op.key, version), op.value)

	case opPutValue:
		bucket, err := nestedBucketCreate(tx, bucketValues, op.substore)
		if err != nil {
			return err
		}
		return bucket.Put(versionedKey(op.key, version), encodeValue(true, op.value))

	case opDeleteValue:
		bucket, err := nestedBucketCreate(tx, bucketValues, op.substore)
		if err != nil {
			return err
		}
		return bucket.Put(versionedKey(op.key, version), encodeValue(false, nil))

	case opPutKeyPreimage:
		bucket, err := nestedBucketCreate(tx, bucketJMTKeys, op.substore)
		if err != nil {
			return err
		}
		return bucket.Put(op.key, op.value)

	case opPutNonverifiable:
		bucket, err := nestedBucketCreate(tx, bucketNonverifiable, op.substore)
		if err != nil {
			return err
		}
		return bucket.Put(versionedKey(op.key, version), encodeValue(true, op.value))

	case opDeleteNonverifiable:
		bucket, err := nestedBucketCreate(tx, bucketNonverifiable, op.substore)
		if err != nil {
			return err
		}
		return bucket.Put(versionedKey(op.key, version), encodeValue(false, nil))

	default:
		return fmt.Errorf("storage: unknown write op kind %d", op.kind)
	}
}

// GetNode returns the JMT node at path, as of the most recent version <= v.
func (b *Backend) GetNode(substore types.SubstoreID, path []byte, v types.Version) ([]byte, bool, error) {
	return b.getFloor(bucketJMT, substore, path, v)
}

// GetKeyPreimage returns the full key that hashes to keyHash, if one has
// ever been recorded for this substore.
func (b *Backend) GetKeyPreimage(substore types.SubstoreID, keyHash types.Hash) ([]byte, bool, error) {
	var out []byte
	found := false
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := nestedBucket(tx, bucketJMTKeys, substore)
		if bucket == nil {
			return nil
		}
		v := bucket.Get(keyHash.Bytes())
		if v == nil {
			return nil
		}
		out = append([]byte(nil), v...)
		found = true
		return nil
	})
	return out, found, err
}

// GetValue returns the value for key, as of the most recent version <= v,
// or found=false if the key has never been written or is tombstoned there.
func (b *Backend) GetValue(substore types.SubstoreID, key []byte, v types.Version) ([]byte, bool, error) {
	return b.getFloorTombstoned(bucketValues, substore, key, v)
}

// GetNonverifiable is the non-verifiable-family analogue of GetValue.
func (b *Backend) GetNonverifiable(substore types.SubstoreID, key []byte, v types.Version) ([]byte, bool, error) {
	return b.getFloorTombstoned(bucketNonverifiable, substore, key, v)
}

// getFloor reads a raw (untombstoned) versioned family: JMT nodes are
// written once and never deleted, only superseded by a newer version.
func (b *Backend) getFloor(family []byte, substore types.SubstoreID, base []byte, v types.Version) ([]byte, bool, error) {
	var out []byte
	found := false
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := nestedBucket(tx, family, substore)
		if bucket == nil {
			return nil
		}
		c := bucket.Cursor()
		k, val := c.Seek(versionedKey(base, v))
		if k == nil {
			return nil
		}
		gotBase, _, ok := splitVersionedKey(k)
		if !ok || !bytes.Equal(gotBase, base) {
			return nil
		}
		out = append([]byte(nil), val...)
		found = true
		return nil
	})
	return out, found, err
}

func (b *Backend) getFloorTombstoned(family []byte, substore types.SubstoreID, base []byte, v types.Version) ([]byte, bool, error) {
	raw, found, err := b.getFloor(family, substore, base, v)
	if err != nil || !found {
		return nil, false, err
	}
	present, value := decodeValue(raw)
	if !present {
		return nil, false, nil
	}
	return value, true, nil
}

// IterateValues calls fn, in ascending key order, for every live key under
// prefix as of version v. fn is not called for tombstoned keys.
func (b *Backend) IterateValues(ctx context.Context, substore types.SubstoreID, prefix []byte, v types.Version, fn func(key, value []byte) error) error {
	return b.iterateFloor(ctx, bucketValues, substore, prefix, v, fn)
}

// IterateNonverifiable is the non-verifiable-family analogue of IterateValues.
func (b *Backend) IterateNonverifiable(ctx context.Context, substore types.SubstoreID, prefix []byte, v types.Version, fn func(key, value []byte) error) error {
	return b.iterateFloor(ctx, bucketNonverifiable, substore, prefix, v, fn)
}

func (b *Backend) iterateFloor(ctx context.Context, family []byte, substore types.SubstoreID, prefix []byte, v types.Version, fn func(key, value []byte) error) error {
	return b.db.View(func(tx *bolt.Tx) error {
		bucket := nestedBucket(tx, family, substore)
		if bucket == nil {
			return nil
		}
		c := bucket.Cursor()
		escPrefix := versionedPrefix(prefix)

		var curBase []byte
		resolved := false
		for k, val := c.Seek(escPrefix); k != nil && bytes.HasPrefix(k, escPrefix); k, val = c.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			base, ver, ok := splitVersionedKey(k)
			if !ok {
				continue
			}
			if curBase == nil || !bytes.Equal(base, curBase) {
				curBase = append([]byte(nil), base...)
				resolved = false
			}
			if resolved || ver > v {
				continue
			}
			resolved = true

			present, raw := decodeValue(val)
			if !present {
				continue
			}
			if err := fn(base, append([]byte(nil), raw...)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Prune advances the earliest retained version so that at most keepLast
// versions remain addressable, counting the head. It does not physically
// reclaim bbolt pages (see DESIGN.md); it only moves the horizon reported
// by EarliestVersion and HasVersion. Reads at a version below the horizon
// are not rejected and still return the entries on disk.
func (b *Backend) Prune(keepLast uint64) error {
	if keepLast == 0 {
		return fmt.Errorf("storage: keepLast must be positive: %w", types.ErrConfigInvalid)
	}

	latest := b.LatestVersion()
	var newEarliest types.Version
	if uint64(latest) >= keepLast {
		newEarliest = types.Version(uint64(latest) - keepLast + 1)
	}
	if newEarliest <= b.EarliestVersion() {
		return nil
	}

	err := b.db.Update(func(tx *bolt.Tx) error {
		var vbuf [8]byte
		binary.BigEndian.PutUint64(vbuf[:], uint64(newEarliest))
		return tx.Bucket(bucketMeta).Put(keyEarliestVersion, vbuf[:])
	})
	if err != nil {
		return fmt.Errorf("storage: prune: %w: %v", types.ErrBackend, err)
	}

	pruned := uint64(newEarliest - b.EarliestVersion())
	b.earliest.Store(uint64(newEarliest))
	metrics.JMTPrunedVersions.Add(float64(pruned))
	return nil
}

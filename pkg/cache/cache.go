package cache

import (
	"context"
	"fmt"

	"google.golang.org/protobuf/proto"

	"github.com/duskbridge/strata/pkg/overlay"
	"github.com/duskbridge/strata/pkg/types"
)

// Reader is the minimal read capability Get needs; both *snapshot.Snapshot
// and *overlay.Delta satisfy it.
type Reader interface {
	GetRaw(ctx context.Context, key []byte) ([]byte, error)
}

// Writer is the minimal write capability Put needs; *overlay.Delta
// satisfies it.
type Writer interface {
	PutRaw(key, value []byte)
}

// Get reads key from r and decodes it as out, a non-nil protobuf message
// pointer. It reports found=false (leaving out untouched) if key has no
// value.
func Get(ctx context.Context, r Reader, key []byte, out proto.Message) (bool, error) {
	raw, err := r.GetRaw(ctx, key)
	if err != nil {
		return false, err
	}
	if raw == nil {
		return false, nil
	}
	if err := proto.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("cache: decode %T at key %q: %w", out, key, types.ErrDecode)
	}
	return true, nil
}

// Put encodes v and stages it as a write to key via w.
func Put(w Writer, key []byte, v proto.Message) error {
	raw, err := proto.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: encode %T: %w", v, types.ErrDecode)
	}
	w.PutRaw(key, raw)
	return nil
}

// StashGet returns the typed ephemeral value previously stored under key on
// delta, or the zero value and false if absent or stored as a different
// type.
func StashGet[T any](delta *overlay.Delta, key string) (T, bool) {
	var zero T
	v, ok := delta.Stash(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}

// StashSet stores a typed ephemeral value under key on delta, cleared when
// delta is applied or discarded.
func StashSet[T any](delta *overlay.Delta, key string, v T) {
	delta.SetStash(key, v)
}

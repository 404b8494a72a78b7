package rpc

import (
	"context"

	ics23 "github.com/bnb-chain/ics23/go"
)

// KeyValueRequest is the wire request for KeyValue.
type KeyValueRequest struct {
	ChainID   string
	Key       string
	WithProof bool
}

// PrefixValueRequest is the wire request for PrefixValue.
type PrefixValueRequest struct {
	ChainID string
	Prefix  string
}

// WatchRequest is the wire request for Watch.
type WatchRequest struct {
	KeyRegex   string
	NvKeyRegex string
}

// KeyValueResponse answers a single KeyValue query. Found is false and
// Value is nil when the key does not exist at the queried version. Inner
// and Outer are nil unless the caller asked WithProof; Inner is nil for a
// main-store key, since a main-store key's proof is single-level.
type KeyValueResponse struct {
	Value []byte
	Found bool
	Inner *ics23.CommitmentProof
	Outer *ics23.CommitmentProof
}

// KeyValueEntry is one entry of a PrefixValue stream, keyed by its full
// (substore-prefixed) key.
type KeyValueEntry struct {
	Key   string
	Value []byte
}

// WatchEntry is one entry of a Watch stream: a single verifiable or
// non-verifiable key update from a commit, together with the version that
// produced it. Exactly one of Key or NvKey is set, mirroring watch.Entry.
type WatchEntry struct {
	Version uint64
	Key     string
	NvKey   []byte
	Value   []byte
	Deleted bool
}

// QueryService is the RPC surface strata exposes over gRPC: read-only
// access to the authenticated store and a live feed of committed changes.
// pkg/api implements it atop a snapshot.Snapshot/watch.Service pair;
// pkg/client consumes it from the other side of a grpc.ClientConn.
type QueryService interface {
	// KeyValue looks up key at the current head version, optionally
	// assembling a two-level Merkle proof against the published root.
	KeyValue(ctx context.Context, chainID, key string, withProof bool) (*KeyValueResponse, error)

	// PrefixValue streams every key/value pair under prefix, in key order.
	// The returned channel is closed when the scan completes or ctx is
	// done; a scan error is not deliverable on the channel and is instead
	// returned directly to the caller before streaming starts for
	// synchronous errors, or logged and the channel closed early otherwise.
	PrefixValue(ctx context.Context, chainID, prefix string) (<-chan *KeyValueEntry, error)

	// Watch subscribes to committed updates matching keyRegex (verifiable)
	// or nvKeyRegex (non-verifiable). The returned channel is closed when
	// ctx is done or the subscription is dropped.
	Watch(ctx context.Context, keyRegex, nvKeyRegex string) (<-chan *WatchEntry, error)
}

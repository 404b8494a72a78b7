package storage

import (
	"fmt"

	"github.com/duskbridge/strata/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketJMT           = []byte("jmt")
	bucketJMTKeys       = []byte("jmt_keys")
	bucketValues        = []byte("values")
	bucketNonverifiable = []byte("nonverifiable")
	bucketMeta          = []byte("meta")

	keyLatestVersion   = []byte("latest_version")
	keyEarliestVersion = []byte("earliest_version")
	keySubstores       = []byte("substores")
)

var topLevelFamilies = [][]byte{bucketJMT, bucketJMTKeys, bucketValues, bucketNonverifiable}

// mainBucketName is the nested-bucket name reserved for the main substore,
// whose types.SubstoreID is the empty string.
var mainBucketName = []byte("__main__")

func substoreBucketName(s types.SubstoreID) []byte {
	if s == types.MainStore {
		return mainBucketName
	}
	return []byte(s)
}

// nestedBucket returns the per-substore bucket for a read, or nil if either
// the family or the substore has never been written to.
func nestedBucket(tx *bolt.Tx, family []byte, substore types.SubstoreID) *bolt.Bucket {
	top := tx.Bucket(family)
	if top == nil {
		return nil
	}
	return top.Bucket(substoreBucketName(substore))
}

// nestedBucketCreate returns the per-substore bucket for a write, creating
// it on first use.
func nestedBucketCreate(tx *bolt.Tx, family []byte, substore types.SubstoreID) (*bolt.Bucket, error) {
	top := tx.Bucket(family)
	if top == nil {
		return nil, fmt.Errorf("storage: missing top-level bucket %q: %w", family, types.ErrBackend)
	}
	b, err := top.CreateBucketIfNotExists(substoreBucketName(substore))
	if err != nil {
		return nil, fmt.Errorf("storage: create substore bucket: %w: %v", types.ErrBackend, err)
	}
	return b, nil
}

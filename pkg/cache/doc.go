/*
Package cache implements the Cache Extensions (spec component H): a thin
typed layer over the raw byte interface every read/write surface already
exposes, plus typed helpers around a Delta's ephemeral object stash.

Get and Put decode/encode protobuf messages directly against anything
satisfying the small Reader/Writer interfaces below — Snapshot and Delta
both qualify without any change on their part. The stash helpers add
compile-time type safety on top of Delta's untyped any-map, for callers
passing a computed value between phases of a single commit's execution
without persisting it.
*/
package cache

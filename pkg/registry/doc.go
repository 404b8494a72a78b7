/*
Package registry implements the Substore Registry: a fixed-after-construction
map of string prefixes that routes a full key to its substore and the
substore-local key within it.

A full key matches at most one substore: the longest registered prefix p for
which the key equals p or starts with p + "/". Anything else belongs to the
main substore. Registering an empty prefix, a duplicate prefix, or writing
directly to the literal key equal to a registered prefix are all rejected,
since that key is reserved for the substore's root hash (written by
pkg/commit).
*/
package registry

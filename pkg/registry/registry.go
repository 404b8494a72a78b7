package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/duskbridge/strata/pkg/types"
)

// Registry is a fixed, read-only routing table from full keys to substores.
// It is immutable after construction: there is no Register call once a
// Registry exists, so the set of substores is fixed at open time.
type Registry struct {
	order     []string // registration order, for stable substore iteration
	byLength  []string // longest-prefix-first, for routing
	prefixSet map[string]struct{}
}

// New builds a Registry from a set of substore prefixes. An empty prefix or
// a duplicate prefix is a fatal configuration error; callers should treat a
// non-nil error as fatal at startup rather than retrying with the same
// prefixes.
func New(prefixes []string) (*Registry, error) {
	prefixSet := make(map[string]struct{}, len(prefixes))
	order := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		if p == "" {
			return nil, fmt.Errorf("registry: empty substore prefix: %w", types.ErrConfigInvalid)
		}
		if _, dup := prefixSet[p]; dup {
			return nil, fmt.Errorf("registry: duplicate substore prefix %q: %w", p, types.ErrConfigInvalid)
		}
		prefixSet[p] = struct{}{}
		order = append(order, p)
	}

	byLength := append([]string(nil), order...)
	sort.SliceStable(byLength, func(i, j int) bool {
		return len(byLength[i]) > len(byLength[j])
	})

	return &Registry{order: order, byLength: byLength, prefixSet: prefixSet}, nil
}

// Route resolves a full key to its substore and the key within that
// substore. A key equal to a registered prefix routes to the main substore
// (that literal key is reserved for the substore's root hash); a key of the
// form "<prefix>/<rest>" routes to that substore with substore-key "<rest>";
// anything else routes to the main substore unchanged.
func (r *Registry) Route(key string) (types.SubstoreID, string) {
	for _, p := range r.byLength {
		if key == p {
			return types.MainStore, key
		}
		if strings.HasPrefix(key, p+"/") {
			return types.SubstoreID(p), key[len(p)+1:]
		}
	}
	return types.MainStore, key
}

// IsReservedKey reports whether key is the literal prefix of a registered
// substore, and therefore off-limits for direct writes into the main store
// (invariant 3).
func (r *Registry) IsReservedKey(key string) bool {
	_, ok := r.prefixSet[key]
	return ok
}

// ValidateWrite rejects a write that would clobber a substore's reserved
// root-hash slot. It is a no-op for any key that isn't exactly a registered
// prefix string.
func (r *Registry) ValidateWrite(key string) error {
	if r.IsReservedKey(key) {
		return fmt.Errorf("registry: %q is reserved for a substore root hash: %w", key, types.ErrConfigInvalid)
	}
	return nil
}

// Prefixes returns the registered substore prefixes in registration order.
func (r *Registry) Prefixes() []string {
	return append([]string(nil), r.order...)
}

// FullKey reconstructs the full key for a (substore, substore-key) pair, the
// inverse of Route for non-main substores.
func FullKey(substore types.SubstoreID, substoreKey string) string {
	if substore == types.MainStore {
		return substoreKey
	}
	return string(substore) + "/" + substoreKey
}

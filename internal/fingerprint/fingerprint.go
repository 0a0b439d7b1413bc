// Package fingerprint reduces a visit's signals to a stable hash.
package fingerprint

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spaolacci/murmur3"

	"nojsfp/internal/signal"
)

// Func computes the fingerprint of a resolved signal set.
type Func func(all signal.Collection) string

// For binds the canonicalization to a registry.
func For(registry *signal.Registry) Func {
	return func(all signal.Collection) string {
		return Compute(registry, all)
	}
}

func Compute(registry *signal.Registry, all signal.Collection) string {
	return Hash(Canonicalize(registry, all))
}

// Canonicalize keeps the values of registered, non-discarded sources. Unknown keys are dropped.
// Screen width and height are sorted so rotating the device keeps the result.
func Canonicalize(registry *signal.Registry, all signal.Collection) map[string]string {
	canonical := make(map[string]string, registry.Len())
	for source := range registry.All() {
		meta := source.Info()
		if meta.Discarded(all) {
			continue
		}
		if value, ok := all[meta.Key]; ok {
			canonical[meta.Key] = value
		}
	}

	width, hasWidth := canonical[signal.KeyScreenWidth]
	height, hasHeight := canonical[signal.KeyScreenHeight]
	if hasWidth && hasHeight {
		sides := []string{width, height}
		sort.Strings(sides)
		canonical[signal.KeyScreenWidth], canonical[signal.KeyScreenHeight] = sides[0], sides[1]
	}
	return canonical
}

// Hash serializes the canonical map with sorted keys and returns its MurmurHash3 x64 128-bit
// digest as 32 hex digits.
func Hash(canonical map[string]string) string {
	// encoding/json writes map keys in sorted order.
	raw, err := json.Marshal(canonical)
	if err != nil {
		// A map of strings always marshals.
		panic(err)
	}
	h1, h2 := murmur3.Sum128(raw)
	return fmt.Sprintf("%016x%016x", h1, h2)
}

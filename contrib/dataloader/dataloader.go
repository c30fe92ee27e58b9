// Package dataloader provides generic helpers for batch loading entities
// by key: reordering a batch result to match the requested keys, and
// grouping values by a shared key.
//
// The strata EntityManager uses these helpers to answer LoadMany with a
// single IN query and to partition a flush into per-type batches:
//
//	rows, _ := fetch(ctx, missing)
//	ordered, errs := dataloader.OrderByKeys(ids, entities, func(e *strata.Entity) int64 { return e.ID() })
package dataloader

import (
	"errors"
)

// ErrNotFound is returned when an entity is not found in a batch result.
var ErrNotFound = errors.New("dataloader: entity not found")

// KeyFunc extracts a key from an entity.
type KeyFunc[K comparable, V any] func(V) K

// OrderByKeys reorders entities to match the order of requested keys.
// Missing entities are represented as zero values with corresponding errors.
// The result always has the same length as keys.
func OrderByKeys[K comparable, V any](keys []K, values []V, keyFn KeyFunc[K, V]) ([]V, []error) {
	lookup := make(map[K]V, len(values))
	for _, v := range values {
		lookup[keyFn(v)] = v
	}
	result := make([]V, len(keys))
	errs := make([]error, len(keys))
	for i, key := range keys {
		if v, ok := lookup[key]; ok {
			result[i] = v
		} else {
			errs[i] = ErrNotFound
		}
	}
	return result, errs
}

// FirstError returns the index and value of the first non-nil error, or
// -1 and nil.
func FirstError(errs []error) (int, error) {
	for i, err := range errs {
		if err != nil {
			return i, err
		}
	}
	return -1, nil
}

// GroupByKey groups values by a key function. It also returns the keys
// in the order they were first seen, so callers can walk the groups
// deterministically.
//
//	books := ...
//	groups, order := GroupByKey(books, func(b *Book) int { return b.AuthorID })
//	for _, authorID := range order {
//	    process(authorID, groups[authorID])
//	}
func GroupByKey[K comparable, V any](values []V, keyFn KeyFunc[K, V]) (map[K][]V, []K) {
	groups := make(map[K][]V)
	var order []K
	for _, v := range values {
		key := keyFn(v)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], v)
	}
	return groups, order
}

// Unique returns keys without duplicates, preserving first occurrence order.
func Unique[K comparable](keys []K) []K {
	seen := make(map[K]struct{}, len(keys))
	out := make([]K, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

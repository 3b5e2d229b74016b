// util/generic.go
// Copyright(c) 2022-2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package util

import (
	"maps"
	"slices"

	"golang.org/x/exp/constraints"
)

// Select returns a if sel is true and b otherwise.
func Select[T any](sel bool, a, b T) T {
	if sel {
		return a
	}
	return b
}

// SortedMapKeys returns the keys of the given map, sorted from low to high.
func SortedMapKeys[K constraints.Ordered, V any](m map[K]V) []K {
	return slices.Sorted(maps.Keys(m))
}

// WithMapEntry returns a copy of m with k set to v; m itself is not
// modified. Used to update maps held in immutable state values.
func WithMapEntry[K comparable, V any](m map[K]V, k K, v V) map[K]V {
	mnew := make(map[K]V, len(m)+1)
	for mk, mv := range m {
		mnew[mk] = mv
	}
	mnew[k] = v
	return mnew
}

// WithoutMapEntry returns a copy of m without k.
func WithoutMapEntry[K comparable, V any](m map[K]V, k K) map[K]V {
	if _, ok := m[k]; !ok {
		return m
	}
	mnew := make(map[K]V, len(m))
	for mk, mv := range m {
		if mk != k {
			mnew[mk] = mv
		}
	}
	return mnew
}

// MapSlice returns the slice that is the result of applying the provided
// xform function to all the elements of the given slice.
func MapSlice[F, T any](from []F, xform func(F) T) []T {
	if from == nil {
		return nil
	}
	var to []T
	for _, item := range from {
		to = append(to, xform(item))
	}
	return to
}

// FilterSlice applies the given filter function pred to the given slice,
// returning a new slice that only contains elements where pred returned
// true.
func FilterSlice[V any](s []V, pred func(V) bool) []V {
	var filtered []V
	for _, item := range s {
		if pred(item) {
			filtered = append(filtered, item)
		}
	}
	return filtered
}

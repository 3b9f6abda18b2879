// Package labels holds the integer label plane helpers shared by stitching
// and relabeling. A plane is a row-major []int64 where 0 is background.
package labels

import (
	"slices"

	"golang.org/x/exp/maps"
)

// Unique returns the sorted non-zero labels of a plane.
func Unique(plane []int64) []int64 {
	seen := make(map[int64]struct{})
	for _, v := range plane {
		if v != 0 {
			seen[v] = struct{}{}
		}
	}
	ids := maps.Keys(seen)
	slices.Sort(ids)
	return ids
}

// Max returns the largest label of a plane, 0 for an empty plane.
func Max(plane []int64) int64 {
	var m int64
	for _, v := range plane {
		if v > m {
			m = v
		}
	}
	return m
}

// RelabelSequential maps the non-zero labels of a plane onto 1..n keeping
// their relative order. Background stays 0. The returned map goes from old
// to new label.
func RelabelSequential(plane []int64) ([]int64, map[int64]int64) {
	ids := Unique(plane)
	forward := make(map[int64]int64, len(ids))
	for i, id := range ids {
		forward[id] = int64(i + 1)
	}
	return Apply(plane, forward), forward
}

// Apply returns a copy of plane with every label found in mapping replaced.
// Labels absent from mapping are kept.
func Apply(plane []int64, mapping map[int64]int64) []int64 {
	out := make([]int64, len(plane))
	for i, v := range plane {
		if nv, ok := mapping[v]; ok {
			out[i] = nv
		} else {
			out[i] = v
		}
	}
	return out
}

// Overlaps counts, for every non-zero label of a, the pixels it shares with
// each non-zero label of b. a and b must have the same length.
func Overlaps(a, b []int64) map[int64]map[int64]int {
	counts := make(map[int64]map[int64]int)
	for i, va := range a {
		vb := b[i]
		if va == 0 || vb == 0 {
			continue
		}
		m, ok := counts[va]
		if !ok {
			m = make(map[int64]int)
			counts[va] = m
		}
		m[vb]++
	}
	return counts
}

// Areas returns the pixel count of every non-zero label.
func Areas(plane []int64) map[int64]int {
	areas := make(map[int64]int)
	for _, v := range plane {
		if v != 0 {
			areas[v]++
		}
	}
	return areas
}

// IsSequential reports whether the non-zero labels are exactly 1..n.
func IsSequential(plane []int64) bool {
	ids := Unique(plane)
	return len(ids) == 0 || ids[len(ids)-1] == int64(len(ids))
}

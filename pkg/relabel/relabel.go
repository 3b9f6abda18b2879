// Package relabel makes label ids consistent along the frame axis of a
// stitched label stack.
//
// Two policies are offered. AllFrames renumbers every frame on its own.
// PreserveRelationships links each frame to the previous one by pixel
// overlap, so an object that stays in place keeps its id. The linking is a
// greedy nearest-overlap tracker: it does not model objects that split,
// merge or swap places between frames, and ids it hands out are a best
// effort rather than ground truth.
package relabel

import (
	"sort"

	"labelstitch/internal/models"
	"labelstitch/pkg/labels"
)

// Mode selects a relabeling policy.
type Mode string

const (
	// ModePreserve links ids across frames by overlap.
	ModePreserve Mode = "preserve"

	// ModeAllFrames relabels every frame independently.
	ModeAllFrames Mode = "all_frames"
)

// Relabel applies the policy named by mode.
func Relabel(t *models.ImageTensor, mode Mode) (*models.ImageTensor, error) {
	switch mode {
	case ModePreserve:
		return PreserveRelationships(t)
	case ModeAllFrames:
		return AllFrames(t)
	default:
		return nil, models.NewConfigurationError("unknown relabel mode %q, expected %q or %q", mode, ModePreserve, ModeAllFrames)
	}
}

// AllFrames relabels every plane to 1..n independently.
func AllFrames(t *models.ImageTensor) (*models.ImageTensor, error) {
	if err := t.ValidateLabels(); err != nil {
		return nil, err
	}
	out := t.Clone()
	forEachSeries(t, func(fov, crop, slice int) {
		for frame := 0; frame < t.Shape[models.AxisFrame]; frame++ {
			plane, _ := labels.RelabelSequential(t.LabelPlane(fov, frame, crop, slice))
			out.SetLabelPlane(fov, frame, crop, slice, plane)
		}
	})
	return out, nil
}

// PreserveRelationships relabels frame 0 to 1..n, then gives every label of
// frame t the id of the frame t-1 label it overlaps most (ties to the smaller
// id). Labels without overlap get max+1. If two labels of one frame pick the
// same previous id, the one with more overlap keeps it (ties to the smaller
// current label) and the other is treated as new.
func PreserveRelationships(t *models.ImageTensor) (*models.ImageTensor, error) {
	if err := t.ValidateLabels(); err != nil {
		return nil, err
	}
	out := t.Clone()
	forEachSeries(t, func(fov, crop, slice int) {
		first, _ := labels.RelabelSequential(t.LabelPlane(fov, 0, crop, slice))
		out.SetLabelPlane(fov, 0, crop, slice, first)
		maxID := labels.Max(first)

		prev := first
		for frame := 1; frame < t.Shape[models.AxisFrame]; frame++ {
			cur := t.LabelPlane(fov, frame, crop, slice)
			var mapping map[int64]int64
			mapping, maxID = linkFrame(prev, cur, maxID)
			next := labels.Apply(cur, mapping)
			out.SetLabelPlane(fov, frame, crop, slice, next)
			prev = next
		}
	})
	return out, nil
}

type candidate struct {
	cur, prev int64
	count     int
}

// linkFrame maps every label of cur to an id, given the already resolved
// previous frame. It returns the mapping and the new maximum id.
func linkFrame(prev, cur []int64, maxID int64) (map[int64]int64, int64) {
	overlaps := labels.Overlaps(cur, prev)

	var cands []candidate
	for id, counts := range overlaps {
		best := candidate{cur: id, count: -1}
		for p, n := range counts {
			if n > best.count || (n == best.count && p < best.prev) {
				best.prev, best.count = p, n
			}
		}
		cands = append(cands, best)
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].count != cands[j].count {
			return cands[i].count > cands[j].count
		}
		return cands[i].cur < cands[j].cur
	})

	mapping := make(map[int64]int64)
	claimed := make(map[int64]bool)
	for _, c := range cands {
		if claimed[c.prev] {
			continue
		}
		claimed[c.prev] = true
		mapping[c.cur] = c.prev
	}

	// appearing objects, in ascending order of their current label
	for _, id := range labels.Unique(cur) {
		if _, ok := mapping[id]; !ok {
			maxID++
			mapping[id] = maxID
		}
	}
	return mapping, maxID
}

func forEachSeries(t *models.ImageTensor, fn func(fov, crop, slice int)) {
	for fov := 0; fov < t.Shape[models.AxisFOV]; fov++ {
		for crop := 0; crop < t.Shape[models.AxisCrop]; crop++ {
			for slice := 0; slice < t.Shape[models.AxisSlice]; slice++ {
				fn(fov, crop, slice)
			}
		}
	}
}

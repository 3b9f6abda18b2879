// Package planner computes overlapping tile windows along one axis.
//
// A plan is requested either by tile size or by tile count, together with
// the fraction of a tile shared with its neighbour. Windows are generated
// left to right, all with the same size, and the axis is padded at its
// trailing edge so that the last window is full sized.
package planner

import (
	"math"

	"labelstitch/internal/models"
)

// eps absorbs floating point noise in stride arithmetic, e.g. 10*(1-0.1).
const eps = 1e-9

// Options selects a plan. Exactly one of Size and Count must be set.
type Options struct {
	// Size is the target tile length.
	Size int

	// Count is the target number of tiles.
	Count int

	// Overlap is the fraction of a tile shared with its neighbour, in [0, 1).
	Overlap float64
}

// Compute plans an axis of the given length.
//
// With a Size S the stride is S*(1-Overlap) and the tile count is
// ceil((length-S)/stride)+1, at least 1. With a Count N the size is the
// smallest S for which N tiles cover the axis:
// S = ceil(length / (N - Overlap*(N-1))).
func Compute(length int, opts Options) (models.TilePlan, error) {
	if length <= 0 {
		return models.TilePlan{}, models.NewConfigurationError("axis length must be positive, got %d", length)
	}
	if opts.Overlap < 0 || opts.Overlap >= 1 || math.IsNaN(opts.Overlap) {
		return models.TilePlan{}, models.NewConfigurationError("overlap fraction must be in [0, 1), got %v", opts.Overlap)
	}
	sizeSet, countSet := opts.Size != 0, opts.Count != 0
	switch {
	case sizeSet && countSet:
		return models.TilePlan{}, models.NewConfigurationError("only one of tile size and tile count may be given")
	case !sizeSet && !countSet:
		return models.TilePlan{}, models.NewConfigurationError("either tile size or tile count must be given")
	case sizeSet && opts.Size < 0:
		return models.TilePlan{}, models.NewConfigurationError("tile size must be positive, got %d", opts.Size)
	case countSet && opts.Count < 0:
		return models.TilePlan{}, models.NewConfigurationError("tile count must be positive, got %d", opts.Count)
	}

	if sizeSet {
		size := opts.Size
		stride := float64(size) * (1 - opts.Overlap)
		if stride < 1-eps {
			return models.TilePlan{}, models.NewConfigurationError("tile size %d with overlap %v gives stride %.3f < 1", size, opts.Overlap, stride)
		}
		count := 1
		if length > size {
			count = int(math.Ceil(float64(length-size)/stride-eps)) + 1
		}
		return build(length, size, stride, count), nil
	}

	count := opts.Count
	span := float64(count) - opts.Overlap*float64(count-1)
	size := int(math.Ceil(float64(length)/span - eps))
	if size <= 0 {
		return models.TilePlan{}, models.NewConfigurationError("tile count %d gives non-positive tile size", count)
	}
	stride := float64(size) * (1 - opts.Overlap)
	if count > 1 && stride < 1-eps {
		return models.TilePlan{}, models.NewConfigurationError("tile count %d with overlap %v gives stride %.3f < 1", count, opts.Overlap, stride)
	}
	return build(length, size, stride, count), nil
}

// ComputeFrames plans the frame axis with a whole number of overlapping
// frames between consecutive slices.
func ComputeFrames(length, sliceLen, overlap int) (models.TilePlan, error) {
	if length <= 0 {
		return models.TilePlan{}, models.NewConfigurationError("stack length must be positive, got %d", length)
	}
	if sliceLen <= 0 {
		return models.TilePlan{}, models.NewConfigurationError("slice length must be positive, got %d", sliceLen)
	}
	if overlap < 0 || overlap >= sliceLen {
		return models.TilePlan{}, models.NewConfigurationError("slice overlap must be in [0, %d), got %d", sliceLen, overlap)
	}
	stride := sliceLen - overlap
	count := 1
	if length > sliceLen {
		count = (length-sliceLen+stride-1)/stride + 1
	}
	return build(length, sliceLen, float64(stride), count), nil
}

func build(length, size int, stride float64, count int) models.TilePlan {
	p := models.TilePlan{
		Starts: make([]int, count),
		Ends:   make([]int, count),
		Size:   size,
		Length: length,
	}
	for i := 0; i < count; i++ {
		p.Starts[i] = int(math.Round(float64(i) * stride))
		p.Ends[i] = p.Starts[i] + size
	}
	if pad := p.Ends[count-1] - length; pad > 0 {
		p.Padding = pad
	}
	return p
}

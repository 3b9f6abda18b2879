// Package stitching reassembles crops and slices produced by package tiling.
//
// Crops of a label stack are annotated independently, so the same object can
// carry unrelated ids on both sides of a seam. StitchCrops places crops one at
// a time into an accumulator plane and folds every crop label that lands on an
// already placed object into that object's id.
package stitching

import (
	"labelstitch/internal/models"
	"labelstitch/pkg/labels"
)

// Report summarizes a StitchCrops run.
type Report struct {
	// Planes is the number of (fov, frame, slice) planes stitched.
	Planes int

	// Merges counts crop labels folded into an object placed by an earlier crop.
	Merges int
}

// VotePolicy picks the accumulator label a crop label is merged into, given
// the accumulator labels under its footprint and their pixel counts. counts
// is never empty.
type VotePolicy func(counts map[int64]int) int64

// GreatestID picks the largest overlapping id regardless of pixel count.
// It is an arbitrary but deterministic tie-break for fragments touching
// several placed objects.
func GreatestID(counts map[int64]int) int64 {
	var best int64
	for id := range counts {
		if id > best {
			best = id
		}
	}
	return best
}

// MajorityOverlap picks the id sharing the most pixels, ties going to the
// smaller id.
func MajorityOverlap(counts map[int64]int) int64 {
	var best int64
	bestCount := -1
	for id, n := range counts {
		if n > bestCount || (n == bestCount && id < best) {
			best, bestCount = id, n
		}
	}
	return best
}

// StitchCrops inverts tiling.Crop for a label stack using the GreatestID vote.
func StitchCrops(stack *models.ImageTensor, log *models.ReconstructionLog) (*models.ImageTensor, *Report, error) {
	return StitchCropsWith(stack, log, GreatestID)
}

// StitchCropsWith inverts tiling.Crop for a label stack. The result has a
// single crop, the original row and column extents, and every plane is
// relabeled to 1..n.
func StitchCropsWith(stack *models.ImageTensor, log *models.ReconstructionLog, vote VotePolicy) (*models.ImageTensor, *Report, error) {
	if err := stack.ValidateLabels(); err != nil {
		return nil, nil, err
	}
	rows, cols, err := checkCropLog(stack, log)
	if err != nil {
		return nil, nil, err
	}

	outRows, outCols := log.OriginalShape[models.AxisRow], log.OriginalShape[models.AxisCol]
	shape := stack.Shape
	shape[models.AxisCrop] = 1
	shape[models.AxisRow] = outRows
	shape[models.AxisCol] = outCols
	out, err := models.NewImageTensor(shape, stack.FOVNames, stack.ChanNames)
	if err != nil {
		return nil, nil, err
	}

	report := &Report{}
	crops := make([][]int64, stack.Shape[models.AxisCrop])
	for fov := 0; fov < shape[models.AxisFOV]; fov++ {
		for frame := 0; frame < shape[models.AxisFrame]; frame++ {
			for slice := 0; slice < shape[models.AxisSlice]; slice++ {
				for k := range crops {
					crops[k] = stack.LabelPlane(fov, frame, k, slice)
				}
				padded, merges := stitchPlane(crops, rows, cols, vote)
				plane := trim(padded, cols.PaddedLength(), outRows, outCols)
				plane, _ = labels.RelabelSequential(plane)
				out.SetLabelPlane(fov, frame, 0, slice, plane)
				report.Planes++
				report.Merges += merges
			}
		}
	}
	return out, report, nil
}

// StitchImage inverts tiling.Crop for a raw multi-channel stack. Pixels
// covered by several crops take the value of the first crop placed.
func StitchImage(stack *models.ImageTensor, log *models.ReconstructionLog) (*models.ImageTensor, error) {
	return StitchImageCovered(stack, log, nil)
}

// StitchImageCovered is StitchImage for a stack with unloaded planes. A crop
// plane that was not loaded claims no pixels, so the overlap it shares with
// a loaded crop takes that crop's values. Pixels no loaded crop covers stay
// zero.
func StitchImageCovered(stack *models.ImageTensor, log *models.ReconstructionLog, cov *Coverage) (*models.ImageTensor, error) {
	if err := stack.Validate(); err != nil {
		return nil, err
	}
	rows, cols, err := checkCropLog(stack, log)
	if err != nil {
		return nil, err
	}
	if err := cov.check(stack.Shape); err != nil {
		return nil, err
	}

	outRows, outCols := log.OriginalShape[models.AxisRow], log.OriginalShape[models.AxisCol]
	shape := stack.Shape
	shape[models.AxisCrop] = 1
	shape[models.AxisRow] = outRows
	shape[models.AxisCol] = outCols
	out, err := models.NewImageTensor(shape, stack.FOVNames, stack.ChanNames)
	if err != nil {
		return nil, err
	}

	channels := shape[models.AxisChannel]
	covered := make([]bool, outRows*outCols)
	for fov := 0; fov < shape[models.AxisFOV]; fov++ {
		for frame := 0; frame < shape[models.AxisFrame]; frame++ {
			for slice := 0; slice < shape[models.AxisSlice]; slice++ {
				for i := range covered {
					covered[i] = false
				}
				k := -1
				for _, r0 := range rows.Starts {
					for _, c0 := range cols.Starts {
						k++
						if !cov.Loaded(fov, frame, k, slice) {
							continue
						}
						for r := 0; r < rows.Size && r0+r < outRows; r++ {
							for c := 0; c < cols.Size && c0+c < outCols; c++ {
								p := (r0+r)*outCols + c0 + c
								if covered[p] {
									continue
								}
								covered[p] = true
								src := stack.Index(fov, frame, k, slice, r, c, 0)
								dst := out.Index(fov, frame, 0, slice, r0+r, c0+c, 0)
								copy(out.Data[dst:dst+channels], stack.Data[src:src+channels])
							}
						}
					}
				}
			}
		}
	}
	return out, nil
}

func checkCropLog(stack *models.ImageTensor, log *models.ReconstructionLog) (models.TilePlan, models.TilePlan, error) {
	if err := log.Validate(); err != nil {
		return models.TilePlan{}, models.TilePlan{}, err
	}
	if !log.Cropped() {
		return models.TilePlan{}, models.TilePlan{}, models.NewReconstructionError("log does not describe a cropped stack")
	}
	rows, cols := log.RowPlan(), log.ColPlan()
	if n := stack.Shape[models.AxisCrop]; n != log.NumCrops {
		return rows, cols, models.NewReconstructionError("log has %d crops, stack has %d", log.NumCrops, n)
	}
	if stack.Shape[models.AxisRow] != rows.Size || stack.Shape[models.AxisCol] != cols.Size {
		return rows, cols, models.NewReconstructionError("crops are %dx%d, log expects %dx%d",
			stack.Shape[models.AxisRow], stack.Shape[models.AxisCol], rows.Size, cols.Size)
	}
	return rows, cols, nil
}

// stitchPlane places crops in row-major order into a new padded accumulator
// and returns it with the number of merged crop labels.
func stitchPlane(crops [][]int64, rows, cols models.TilePlan, vote VotePolicy) ([]int64, int) {
	width := cols.PaddedLength()
	acc := make([]int64, rows.PaddedLength()*width)
	merges := 0
	k := 0
	for _, r0 := range rows.Starts {
		for _, c0 := range cols.Starts {
			var m int
			acc, m = placeCrop(acc, width, crops[k], r0, c0, rows.Size, cols.Size, vote)
			merges += m
			k++
		}
	}
	return acc, merges
}

// placeCrop returns a copy of acc with crop merged in at (r0, c0).
func placeCrop(acc []int64, width int, crop []int64, r0, c0, h, w int, vote VotePolicy) ([]int64, int) {
	// shift crop ids past everything placed so far
	offset := labels.Max(acc)
	shifted := make([]int64, len(crop))
	for i, v := range crop {
		if v != 0 {
			shifted[i] = v + offset
		}
	}

	window := make([]int64, h*w)
	for r := 0; r < h; r++ {
		copy(window[r*w:(r+1)*w], acc[(r0+r)*width+c0:(r0+r)*width+c0+w])
	}

	mapping := make(map[int64]int64)
	for id, counts := range labels.Overlaps(shifted, window) {
		mapping[id] = vote(counts)
	}
	shifted = labels.Apply(shifted, mapping)

	next := append([]int64(nil), acc...)
	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			if window[r*w+c] == 0 {
				next[(r0+r)*width+c0+c] = shifted[r*w+c]
			}
		}
	}
	return next, len(mapping)
}

// trim drops the trailing padding of a plane with the given padded width.
func trim(plane []int64, width, rows, cols int) []int64 {
	out := make([]int64, rows*cols)
	for r := 0; r < rows; r++ {
		copy(out[r*cols:(r+1)*cols], plane[r*width:r*width+cols])
	}
	return out
}

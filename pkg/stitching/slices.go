package stitching

import (
	"labelstitch/internal/models"
)

// StitchSlices inverts tiling.Slice. Slices are written in order, so a frame
// covered by two slices takes the content of the later one. The result has
// a single slice and the original number of frames.
func StitchSlices(stack *models.ImageTensor, log *models.ReconstructionLog) (*models.ImageTensor, error) {
	out, _, err := StitchSlicesCovered(stack, log, nil)
	return out, err
}

// StitchSlicesCovered is StitchSlices for a stack with unloaded planes: a
// slice that was not loaded writes nothing, so frames it shares with a
// loaded slice keep that slice's content. It also returns the coverage of
// the result, where a frame counts as loaded if any slice supplied it.
func StitchSlicesCovered(stack *models.ImageTensor, log *models.ReconstructionLog, cov *Coverage) (*models.ImageTensor, *Coverage, error) {
	if err := stack.Validate(); err != nil {
		return nil, nil, err
	}
	if err := log.Validate(); err != nil {
		return nil, nil, err
	}
	if !log.Sliced() {
		return nil, nil, models.NewReconstructionError("log does not describe a sliced stack")
	}
	if err := cov.check(stack.Shape); err != nil {
		return nil, nil, err
	}
	plan := log.SlicePlan()
	if n := stack.Shape[models.AxisSlice]; n != log.NumSlices {
		return nil, nil, models.NewReconstructionError("log has %d slices, stack has %d", log.NumSlices, n)
	}
	if n := stack.Shape[models.AxisFrame]; n != plan.Size {
		return nil, nil, models.NewReconstructionError("slices hold %d frames, log expects %d", n, plan.Size)
	}
	frames := log.OriginalShape[models.AxisFrame]

	shape := stack.Shape
	shape[models.AxisFrame] = frames
	shape[models.AxisSlice] = 1
	out, err := models.NewImageTensor(shape, stack.FOVNames, stack.ChanNames)
	if err != nil {
		return nil, nil, err
	}
	outCov := newCoverage(shape, false)

	block := shape[models.AxisRow] * shape[models.AxisCol] * shape[models.AxisChannel]
	for fov := 0; fov < shape[models.AxisFOV]; fov++ {
		for s, start := range plan.Starts {
			for f := 0; f < plan.Size && start+f < frames; f++ {
				for crop := 0; crop < shape[models.AxisCrop]; crop++ {
					if !cov.Loaded(fov, f, crop, s) {
						continue
					}
					si := stack.Index(fov, f, crop, s, 0, 0, 0)
					di := out.Index(fov, start+f, crop, 0, 0, 0, 0)
					copy(out.Data[di:di+block], stack.Data[si:si+block])
					outCov.set(fov, start+f, crop, 0, true)
				}
			}
		}
	}
	return out, outCov, nil
}

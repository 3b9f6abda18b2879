package tiling

import (
	"labelstitch/internal/models"
	"labelstitch/pkg/planner"
)

// SliceOptions configures CreateSlices.
type SliceOptions struct {
	// StackLen is the number of frames in each slice.
	StackLen int

	// Overlap is the number of frames shared by consecutive slices.
	Overlap int
}

// Slice copies the frame windows of plan out of t into the slice axis. The
// slice axis of t must have length 1; the frame axis of the result has
// length plan.Size and frames past the end of t are zero.
func Slice(t *models.ImageTensor, plan models.TilePlan) (*models.ImageTensor, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if t.Shape[models.AxisSlice] != 1 {
		return nil, models.NewValidationError("tensor is already sliced (%d slices)", t.Shape[models.AxisSlice])
	}
	if plan.Length != t.Shape[models.AxisFrame] {
		return nil, models.NewConfigurationError("plan covers %d frames, tensor has %d", plan.Length, t.Shape[models.AxisFrame])
	}
	if err := plan.Validate(); err != nil {
		return nil, models.NewConfigurationError("slice plan: %v", err)
	}

	shape := t.Shape
	shape[models.AxisFrame] = plan.Size
	shape[models.AxisSlice] = plan.Count()
	out, err := models.NewImageTensor(shape, t.FOVNames, t.ChanNames)
	if err != nil {
		return nil, err
	}

	// a (row, col, channel) block is contiguous in both tensors
	block := shape[models.AxisRow] * shape[models.AxisCol] * shape[models.AxisChannel]
	for fov := 0; fov < shape[models.AxisFOV]; fov++ {
		for s, start := range plan.Starts {
			for f := 0; f < plan.Size; f++ {
				src := start + f
				if src >= t.Shape[models.AxisFrame] {
					break
				}
				for crop := 0; crop < shape[models.AxisCrop]; crop++ {
					si := t.Index(fov, src, crop, 0, 0, 0, 0)
					di := out.Index(fov, f, crop, s, 0, 0, 0)
					copy(out.Data[di:di+block], t.Data[si:si+block])
				}
			}
		}
	}
	return out, nil
}

// CreateSlices splits X and y along the frame axis. The slice fields are
// added to log, which may come from an earlier CropMultichannel call; when
// log is nil a new one is created.
func CreateSlices(X, y *models.ImageTensor, opts SliceOptions, log *models.ReconstructionLog) (*models.ImageTensor, *models.ImageTensor, *models.ReconstructionLog, error) {
	if err := checkPair(X, y); err != nil {
		return nil, nil, nil, err
	}
	plan, err := planner.ComputeFrames(X.Shape[models.AxisFrame], opts.StackLen, opts.Overlap)
	if err != nil {
		return nil, nil, nil, err
	}
	xs, err := Slice(X, plan)
	if err != nil {
		return nil, nil, nil, err
	}
	ys, err := Slice(y, plan)
	if err != nil {
		return nil, nil, nil, err
	}
	if log == nil {
		log = newLog(X, y)
	}
	log.SetSlicePlan(plan)
	return xs, ys, log, nil
}

// Package tiling cuts 7-axis image stacks into overlapping spatial crops and
// temporal slices. Both operations are pure windowed copies of a zero-padded
// source; they never touch label values.
package tiling

import (
	"labelstitch/internal/models"
	"labelstitch/pkg/planner"
)

// CropOptions configures CropMultichannel. Exactly one of Size and Num is
// used; both are (rows, cols) pairs.
type CropOptions struct {
	Size    [2]int
	Num     [2]int
	Overlap float64

	// FirstFOVOnly crops only the first fov, for trying out parameters.
	FirstFOVOnly bool
}

// Crop copies the windows of the row and column plans out of t. The crop
// axis of t must have length 1; the result has rows.Count()*cols.Count()
// crops ordered row-major, so crop index = row_index*num_col_tiles + col_index.
func Crop(t *models.ImageTensor, rows, cols models.TilePlan) (*models.ImageTensor, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if t.Shape[models.AxisCrop] != 1 {
		return nil, models.NewValidationError("tensor is already cropped (%d crops)", t.Shape[models.AxisCrop])
	}
	if rows.Length != t.Shape[models.AxisRow] || cols.Length != t.Shape[models.AxisCol] {
		return nil, models.NewConfigurationError("plans cover %dx%d, tensor is %dx%d",
			rows.Length, cols.Length, t.Shape[models.AxisRow], t.Shape[models.AxisCol])
	}
	if err := rows.Validate(); err != nil {
		return nil, models.NewConfigurationError("row plan: %v", err)
	}
	if err := cols.Validate(); err != nil {
		return nil, models.NewConfigurationError("col plan: %v", err)
	}

	shape := t.Shape
	shape[models.AxisCrop] = rows.Count() * cols.Count()
	shape[models.AxisRow] = rows.Size
	shape[models.AxisCol] = cols.Size
	out, err := models.NewImageTensor(shape, t.FOVNames, t.ChanNames)
	if err != nil {
		return nil, err
	}

	srcRows, srcCols := t.Shape[models.AxisRow], t.Shape[models.AxisCol]
	channels := t.Shape[models.AxisChannel]
	for fov := 0; fov < shape[models.AxisFOV]; fov++ {
		for frame := 0; frame < shape[models.AxisFrame]; frame++ {
			for slice := 0; slice < shape[models.AxisSlice]; slice++ {
				crop := 0
				for ri := range rows.Starts {
					for ci := range cols.Starts {
						for r := 0; r < rows.Size; r++ {
							sr := rows.Starts[ri] + r
							if sr >= srcRows {
								break // zero padding
							}
							for c := 0; c < cols.Size; c++ {
								sc := cols.Starts[ci] + c
								if sc >= srcCols {
									break
								}
								src := t.Index(fov, frame, 0, slice, sr, sc, 0)
								dst := out.Index(fov, frame, crop, slice, r, c, 0)
								copy(out.Data[dst:dst+channels], t.Data[src:src+channels])
							}
						}
						crop++
					}
				}
			}
		}
	}
	return out, nil
}

// CropMultichannel crops a raw stack X and its label stack y with the same
// plans and returns the log needed to stitch the crops back together.
func CropMultichannel(X, y *models.ImageTensor, opts CropOptions) (*models.ImageTensor, *models.ImageTensor, *models.ReconstructionLog, error) {
	sizeSet := opts.Size != [2]int{}
	numSet := opts.Num != [2]int{}
	if !sizeSet && !numSet {
		return nil, nil, nil, models.NewConfigurationError("either crop size or crop num must be specified")
	}
	if sizeSet && numSet {
		return nil, nil, nil, models.NewConfigurationError("only one of crop size and crop num should be provided")
	}
	if sizeSet && (opts.Size[0] <= 0 || opts.Size[1] <= 0) {
		return nil, nil, nil, models.NewConfigurationError("crop size entries must be positive, got %v", opts.Size)
	}
	if numSet && (opts.Num[0] <= 0 || opts.Num[1] <= 0) {
		return nil, nil, nil, models.NewConfigurationError("crop num entries must be positive, got %v", opts.Num)
	}
	if err := checkPair(X, y); err != nil {
		return nil, nil, nil, err
	}

	if opts.FirstFOVOnly {
		X, y = X.FOV(0), y.FOV(0)
	}

	rowOpts := planner.Options{Size: opts.Size[0], Count: opts.Num[0], Overlap: opts.Overlap}
	colOpts := planner.Options{Size: opts.Size[1], Count: opts.Num[1], Overlap: opts.Overlap}
	rows, err := planner.Compute(X.Shape[models.AxisRow], rowOpts)
	if err != nil {
		return nil, nil, nil, err
	}
	cols, err := planner.Compute(X.Shape[models.AxisCol], colOpts)
	if err != nil {
		return nil, nil, nil, err
	}

	xc, err := Crop(X, rows, cols)
	if err != nil {
		return nil, nil, nil, err
	}
	yc, err := Crop(y, rows, cols)
	if err != nil {
		return nil, nil, nil, err
	}

	log := newLog(X, y)
	log.SetCropPlans(rows, cols)
	return xc, yc, log, nil
}

// checkPair validates a raw/label pair: expected axis order, a single label
// channel and matching extents on every other axis.
func checkPair(X, y *models.ImageTensor) error {
	if err := X.Validate(); err != nil {
		return err
	}
	if err := y.ValidateLabels(); err != nil {
		return err
	}
	for a := models.AxisFOV; a < models.AxisChannel; a++ {
		if X.Shape[a] != y.Shape[a] {
			return models.NewValidationError("X and y disagree on %s: %d vs %d", a, X.Shape[a], y.Shape[a])
		}
	}
	return nil
}

func newLog(X, y *models.ImageTensor) *models.ReconstructionLog {
	return &models.ReconstructionLog{
		LabelName:     y.ChanNames[0],
		OriginalShape: y.Shape,
		FOVNames:      append([]string(nil), X.FOVNames...),
		ChanNames:     append([]string(nil), X.ChanNames...),
	}
}

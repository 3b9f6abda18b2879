package models

const (
	// CropOrderRowMajor orders crops by row window, then column window.
	CropOrderRowMajor = "row-major"

	// SliceOrderSequential orders slices by their start frame.
	SliceOrderSequential = "sequential"
)

// ReconstructionLog records everything needed to invert cropping and
// slicing. It is written once next to the tile files and read back verbatim.
type ReconstructionLog struct {
	RunID     string `json:"run_id,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`

	RowStarts   []int  `json:"row_starts,omitempty"`
	RowEnds     []int  `json:"row_ends,omitempty"`
	RowCropSize int    `json:"row_crop_size,omitempty"`
	ColStarts   []int  `json:"col_starts,omitempty"`
	ColEnds     []int  `json:"col_ends,omitempty"`
	ColCropSize int    `json:"col_crop_size,omitempty"`
	RowPadding  int    `json:"row_padding"`
	ColPadding  int    `json:"col_padding"`
	NumCrops    int    `json:"num_crops,omitempty"`
	CropOrder   string `json:"crop_order,omitempty"`

	SliceStartIndices []int  `json:"slice_start_indices,omitempty"`
	SliceEndIndices   []int  `json:"slice_end_indices,omitempty"`
	SliceStackLen     int    `json:"slice_stack_len,omitempty"`
	SlicePadding      int    `json:"slice_padding,omitempty"`
	NumSlices         int    `json:"num_slices,omitempty"`
	SliceOrder        string `json:"slice_order,omitempty"`

	LabelName     string       `json:"label_name"`
	OriginalShape [NumAxes]int `json:"original_shape"`
	FOVNames      []string     `json:"fov_names"`
	ChanNames     []string     `json:"chan_names"`
}

// Cropped reports whether the run cropped rows and columns.
func (l *ReconstructionLog) Cropped() bool { return l.NumCrops > 0 }

// Sliced reports whether the run sliced the frame axis.
func (l *ReconstructionLog) Sliced() bool { return l.NumSlices > 0 }

// SetCropPlans records the row and column plans.
func (l *ReconstructionLog) SetCropPlans(rows, cols TilePlan) {
	l.RowStarts, l.RowEnds = rows.Starts, rows.Ends
	l.RowCropSize, l.RowPadding = rows.Size, rows.Padding
	l.ColStarts, l.ColEnds = cols.Starts, cols.Ends
	l.ColCropSize, l.ColPadding = cols.Size, cols.Padding
	l.NumCrops = rows.Count() * cols.Count()
	l.CropOrder = CropOrderRowMajor
}

// SetSlicePlan records the frame plan.
func (l *ReconstructionLog) SetSlicePlan(frames TilePlan) {
	l.SliceStartIndices, l.SliceEndIndices = frames.Starts, frames.Ends
	l.SliceStackLen, l.SlicePadding = frames.Size, frames.Padding
	l.NumSlices = frames.Count()
	l.SliceOrder = SliceOrderSequential
}

// RowPlan rebuilds the row plan.
func (l *ReconstructionLog) RowPlan() TilePlan {
	return TilePlan{Starts: l.RowStarts, Ends: l.RowEnds, Size: l.RowCropSize, Padding: l.RowPadding, Length: l.OriginalShape[AxisRow]}
}

// ColPlan rebuilds the column plan.
func (l *ReconstructionLog) ColPlan() TilePlan {
	return TilePlan{Starts: l.ColStarts, Ends: l.ColEnds, Size: l.ColCropSize, Padding: l.ColPadding, Length: l.OriginalShape[AxisCol]}
}

// SlicePlan rebuilds the frame plan.
func (l *ReconstructionLog) SlicePlan() TilePlan {
	size := l.SliceStackLen
	if size == 0 && len(l.SliceStartIndices) > 0 {
		size = l.SliceEndIndices[0] - l.SliceStartIndices[0]
	}
	return TilePlan{Starts: l.SliceStartIndices, Ends: l.SliceEndIndices, Size: size, Padding: l.SlicePadding, Length: l.OriginalShape[AxisFrame]}
}

// Validate checks the log for internal consistency.
func (l *ReconstructionLog) Validate() error {
	if l == nil {
		return NewReconstructionError("log is nil")
	}
	for i, s := range l.OriginalShape {
		if s <= 0 {
			return NewReconstructionError("original_shape axis %s is %d", Axis(i), s)
		}
	}
	if len(l.FOVNames) != l.OriginalShape[AxisFOV] {
		return NewReconstructionError("log has %d fov names for %d fovs", len(l.FOVNames), l.OriginalShape[AxisFOV])
	}
	if l.Cropped() {
		if l.CropOrder != "" && l.CropOrder != CropOrderRowMajor {
			return NewReconstructionError("unsupported crop order %q", l.CropOrder)
		}
		rows, cols := l.RowPlan(), l.ColPlan()
		if err := rows.Validate(); err != nil {
			return err
		}
		if err := cols.Validate(); err != nil {
			return err
		}
		if n := rows.Count() * cols.Count(); n != l.NumCrops {
			return NewReconstructionError("num_crops is %d but plans describe %d crops", l.NumCrops, n)
		}
	}
	if l.Sliced() {
		if l.SliceOrder != "" && l.SliceOrder != SliceOrderSequential {
			return NewReconstructionError("unsupported slice order %q", l.SliceOrder)
		}
		frames := l.SlicePlan()
		if err := frames.Validate(); err != nil {
			return err
		}
		if frames.Count() != l.NumSlices {
			return NewReconstructionError("num_slices is %d but plan describes %d slices", l.NumSlices, frames.Count())
		}
	}
	return nil
}

package tiling

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labelstitch/internal/models"
)

// newPair builds a raw stack whose value encodes (fov, frame, row, col,
// channel) and a label stack with value row*cols+col+1.
func newPair(t *testing.T, fovs, frames, rows, cols, channels int) (*models.ImageTensor, *models.ImageTensor) {
	t.Helper()
	X, err := models.NewImageTensor([models.NumAxes]int{fovs, frames, 1, 1, rows, cols, channels}, nil, nil)
	require.NoError(t, err)
	y, err := models.NewImageTensor([models.NumAxes]int{fovs, frames, 1, 1, rows, cols, 1}, nil, []string{"segmentation"})
	require.NoError(t, err)
	for f := 0; f < fovs; f++ {
		for fr := 0; fr < frames; fr++ {
			for r := 0; r < rows; r++ {
				for c := 0; c < cols; c++ {
					for ch := 0; ch < channels; ch++ {
						X.Set(f, fr, 0, 0, r, c, ch, rawValue(f, fr, r, c, ch))
					}
					y.Set(f, fr, 0, 0, r, c, 0, float64(r*cols+c+1))
				}
			}
		}
	}
	return X, y
}

func rawValue(fov, frame, row, col, ch int) float64 {
	return float64(fov*100000 + frame*10000 + row*100 + col + ch*1000)
}

func TestCropRowMajorOrder(t *testing.T) {
	X, y := newPair(t, 2, 2, 6, 6, 2)
	xc, yc, log, err := CropMultichannel(X, y, CropOptions{Num: [2]int{2, 3}})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 3}, log.RowStarts)
	assert.Equal(t, []int{0, 2, 4}, log.ColStarts)
	assert.Equal(t, 6, log.NumCrops)
	assert.Equal(t, models.CropOrderRowMajor, log.CropOrder)
	assert.Equal(t, [models.NumAxes]int{2, 2, 6, 1, 3, 2, 2}, xc.Shape)
	assert.Equal(t, [models.NumAxes]int{2, 2, 6, 1, 3, 2, 1}, yc.Shape)
	assert.Equal(t, y.Shape, log.OriginalShape)
	assert.Equal(t, "segmentation", log.LabelName)
	assert.Equal(t, X.ChanNames, log.ChanNames)

	for fov := 0; fov < 2; fov++ {
		for frame := 0; frame < 2; frame++ {
			for ri, r0 := range log.RowStarts {
				for ci, c0 := range log.ColStarts {
					crop := ri*len(log.ColStarts) + ci
					for r := 0; r < 3; r++ {
						for c := 0; c < 2; c++ {
							for ch := 0; ch < 2; ch++ {
								require.Equal(t, rawValue(fov, frame, r0+r, c0+c, ch), xc.At(fov, frame, crop, 0, r, c, ch))
							}
							require.Equal(t, y.At(fov, frame, 0, 0, r0+r, c0+c, 0), yc.At(fov, frame, crop, 0, r, c, 0))
						}
					}
				}
			}
		}
	}
}

func TestCropPadsTrailingEdge(t *testing.T) {
	X, y := newPair(t, 1, 1, 5, 5, 1)
	_, yc, log, err := CropMultichannel(X, y, CropOptions{Size: [2]int{3, 3}})
	require.NoError(t, err)

	assert.Equal(t, 1, log.RowPadding)
	assert.Equal(t, 1, log.ColPadding)
	require.Equal(t, 4, yc.Shape[models.AxisCrop])

	// last crop covers rows and cols 3..5, the sixth is padding
	last := yc.LabelPlane(0, 0, 3, 0)
	assert.Equal(t, []int64{
		19, 20, 0,
		24, 25, 0,
		0, 0, 0,
	}, last)
}

func TestCropOverlap(t *testing.T) {
	X, y := newPair(t, 1, 1, 6, 6, 1)
	_, yc, log, err := CropMultichannel(X, y, CropOptions{Size: [2]int{4, 4}, Overlap: 0.5})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, log.RowStarts)
	assert.Equal(t, 0, log.RowPadding)

	// columns 2..3 are shared by the first two crops
	a, b := yc.LabelPlane(0, 0, 0, 0), yc.LabelPlane(0, 0, 1, 0)
	for r := 0; r < 4; r++ {
		assert.Equal(t, a[r*4+2], b[r*4+0])
		assert.Equal(t, a[r*4+3], b[r*4+1])
	}
}

func TestCropFirstFOVOnly(t *testing.T) {
	X, y := newPair(t, 3, 1, 4, 4, 1)
	xc, _, log, err := CropMultichannel(X, y, CropOptions{Num: [2]int{2, 2}, FirstFOVOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 1, xc.Shape[models.AxisFOV])
	assert.Equal(t, []string{"fov_0"}, log.FOVNames)
	assert.Equal(t, 1, log.OriginalShape[models.AxisFOV])
	require.NoError(t, log.Validate())
}

func TestCropErrors(t *testing.T) {
	X, y := newPair(t, 1, 1, 6, 6, 1)
	var cfgErr *models.ConfigurationError
	var vErr *models.ValidationError

	_, _, _, err := CropMultichannel(X, y, CropOptions{})
	assert.True(t, errors.As(err, &cfgErr))

	_, _, _, err = CropMultichannel(X, y, CropOptions{Size: [2]int{3, 3}, Num: [2]int{2, 2}})
	assert.True(t, errors.As(err, &cfgErr))

	_, _, _, err = CropMultichannel(X, y, CropOptions{Size: [2]int{3, 0}})
	assert.True(t, errors.As(err, &cfgErr))

	_, _, _, err = CropMultichannel(X, y, CropOptions{Size: [2]int{3, 3}, Overlap: 1.2})
	assert.True(t, errors.As(err, &cfgErr))

	small, _ := newPair(t, 1, 1, 5, 6, 1)
	_, _, _, err = CropMultichannel(small, y, CropOptions{Size: [2]int{3, 3}})
	assert.True(t, errors.As(err, &vErr))

	twoChan, _ := newPair(t, 1, 1, 6, 6, 2)
	_, _, _, err = CropMultichannel(X, twoChan, CropOptions{Size: [2]int{3, 3}})
	assert.True(t, errors.As(err, &vErr))

	xc, _, _, err := CropMultichannel(X, y, CropOptions{Size: [2]int{3, 3}})
	require.NoError(t, err)
	_, err = Crop(xc, models.TilePlan{}, models.TilePlan{})
	assert.True(t, errors.As(err, &vErr), "cropping twice")
}

func TestCreateSlices(t *testing.T) {
	X, y := newPair(t, 1, 10, 2, 2, 1)
	xs, ys, log, err := CreateSlices(X, y, SliceOptions{StackLen: 4, Overlap: 1}, nil)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 3, 6}, log.SliceStartIndices)
	assert.Equal(t, []int{4, 7, 10}, log.SliceEndIndices)
	assert.Equal(t, 3, log.NumSlices)
	assert.Equal(t, models.SliceOrderSequential, log.SliceOrder)
	assert.False(t, log.Cropped())
	assert.Equal(t, [models.NumAxes]int{1, 4, 1, 3, 2, 2, 1}, xs.Shape)
	assert.Equal(t, [models.NumAxes]int{1, 4, 1, 3, 2, 2, 1}, ys.Shape)

	for s, start := range log.SliceStartIndices {
		for f := 0; f < 4; f++ {
			assert.Equal(t, rawValue(0, start+f, 1, 1, 0), xs.At(0, f, 0, s, 1, 1, 0))
		}
	}
}

func TestCreateSlicesPads(t *testing.T) {
	X, y := newPair(t, 1, 10, 2, 2, 1)
	xs, _, log, err := CreateSlices(X, y, SliceOptions{StackLen: 4}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, log.SlicePadding)
	assert.Equal(t, rawValue(0, 9, 0, 1, 0), xs.At(0, 1, 0, 2, 0, 1, 0))
	assert.Zero(t, xs.At(0, 2, 0, 2, 0, 1, 0))
	assert.Zero(t, xs.At(0, 3, 0, 2, 0, 1, 0))
}

func TestCropThenSlice(t *testing.T) {
	X, y := newPair(t, 2, 6, 6, 6, 1)
	xc, yc, log, err := CropMultichannel(X, y, CropOptions{Num: [2]int{2, 2}})
	require.NoError(t, err)
	xs, ys, log, err := CreateSlices(xc, yc, SliceOptions{StackLen: 3, Overlap: 1}, log)
	require.NoError(t, err)

	assert.True(t, log.Cropped())
	assert.True(t, log.Sliced())
	assert.Equal(t, y.Shape, log.OriginalShape)
	assert.Equal(t, [models.NumAxes]int{2, 3, 4, 3, 3, 3, 1}, ys.Shape)
	require.NoError(t, log.Validate())

	// crop 3 starts at (3, 3), slice 1 starts at frame 2
	assert.Equal(t, rawValue(1, 3, 4, 5, 0), xs.At(1, 1, 3, 1, 1, 2, 0))
}

func TestSliceRejectsBadLayout(t *testing.T) {
	X, y := newPair(t, 1, 6, 2, 2, 1)
	plan := models.TilePlan{Starts: []int{0, 3}, Ends: []int{3, 6}, Size: 3, Length: 6}
	var vErr *models.ValidationError

	swapped := X.Clone()
	swapped.Dims[models.AxisRow], swapped.Dims[models.AxisCol] = swapped.Dims[models.AxisCol], swapped.Dims[models.AxisRow]
	_, err := Slice(swapped, plan)
	assert.True(t, errors.As(err, &vErr), "swapped dims: got %v", err)
	_, _, _, err = CreateSlices(swapped, y, SliceOptions{StackLen: 3}, nil)
	assert.True(t, errors.As(err, &vErr), "swapped dims: got %v", err)

	short := X.Clone()
	short.Data = short.Data[:len(short.Data)-1]
	_, err = Slice(short, plan)
	assert.True(t, errors.As(err, &vErr), "short data: got %v", err)

	_, err = Slice(X, plan)
	assert.NoError(t, err)
}

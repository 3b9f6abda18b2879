package stitching

import (
	"labelstitch/internal/models"
)

// Coverage marks which (fov, frame, crop, slice) planes of a tiled stack were
// loaded from a tile file. Planes that were not loaded never claim pixels
// when raw data is stitched. A nil *Coverage means every plane was loaded.
type Coverage struct {
	// dims are the fov, frame, crop and slice lengths
	dims   [4]int
	loaded []bool
}

// NewCoverage returns a coverage for a stack of the given shape with every
// plane loaded.
func NewCoverage(shape [models.NumAxes]int) *Coverage {
	return newCoverage(shape, true)
}

func newCoverage(shape [models.NumAxes]int, loaded bool) *Coverage {
	c := &Coverage{dims: coverageDims(shape)}
	c.loaded = make([]bool, c.dims[0]*c.dims[1]*c.dims[2]*c.dims[3])
	if loaded {
		for i := range c.loaded {
			c.loaded[i] = true
		}
	}
	return c
}

// CoverageFromMissing builds the coverage of a stack read by
// tilestore.LoadTiles, which leaves the planes of every missing tile blank.
func CoverageFromMissing(shape [models.NumAxes]int, log *models.ReconstructionLog, missing []models.MissingTile) (*Coverage, error) {
	c := NewCoverage(shape)
	fovs := make(map[string]int, len(log.FOVNames))
	for i, name := range log.FOVNames {
		fovs[name] = i
	}
	ncols := 1
	if log.Cropped() {
		ncols = len(log.ColStarts)
	}
	for _, m := range missing {
		fov, ok := fovs[m.FOV]
		if !ok || fov >= c.dims[0] {
			return nil, models.NewReconstructionError("%s names an unknown fov", m)
		}
		crop := m.Row*ncols + m.Col
		if m.Row < 0 || m.Col < 0 || m.Col >= ncols || crop >= c.dims[2] || m.Slice < 0 || m.Slice >= c.dims[3] {
			return nil, models.NewReconstructionError("%s lies outside a stack of shape %v", m, shape)
		}
		for frame := 0; frame < c.dims[1]; frame++ {
			c.set(fov, frame, crop, m.Slice, false)
		}
	}
	return c, nil
}

// Loaded reports whether a plane holds data read from disk.
func (c *Coverage) Loaded(fov, frame, crop, slice int) bool {
	if c == nil {
		return true
	}
	return c.loaded[c.index(fov, frame, crop, slice)]
}

// FOV returns the coverage of fov i alone, matching ImageTensor.FOV.
func (c *Coverage) FOV(i int) *Coverage {
	if c == nil {
		return nil
	}
	n := c.dims[1] * c.dims[2] * c.dims[3]
	out := &Coverage{dims: c.dims}
	out.dims[0] = 1
	out.loaded = append([]bool(nil), c.loaded[i*n:(i+1)*n]...)
	return out
}

func (c *Coverage) check(shape [models.NumAxes]int) error {
	if c != nil && c.dims != coverageDims(shape) {
		return models.NewReconstructionError("coverage of %v planes does not match stack shape %v", c.dims, shape)
	}
	return nil
}

func (c *Coverage) set(fov, frame, crop, slice int, v bool) {
	c.loaded[c.index(fov, frame, crop, slice)] = v
}

func (c *Coverage) index(fov, frame, crop, slice int) int {
	return ((fov*c.dims[1]+frame)*c.dims[2]+crop)*c.dims[3] + slice
}

func coverageDims(shape [models.NumAxes]int) [4]int {
	return [4]int{shape[models.AxisFOV], shape[models.AxisFrame], shape[models.AxisCrop], shape[models.AxisSlice]}
}

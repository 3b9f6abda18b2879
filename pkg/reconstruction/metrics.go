package reconstruction

import (
	"gonum.org/v1/gonum/stat"

	"labelstitch/internal/models"
	"labelstitch/pkg/labels"
)

// Metrics summarizes a stitched label stack.
type Metrics struct {
	// Planes is the number of (fov, frame, crop, slice) planes.
	Planes int

	// Objects is the number of labeled objects summed over planes.
	Objects int

	// MeanObjectArea and StdObjectArea describe object sizes in pixels.
	MeanObjectArea float64
	StdObjectArea  float64

	// MergedFragments counts crop labels merged into an object across a seam.
	MergedFragments int

	// MissingTiles counts tiles that were absent and left as background.
	MissingTiles int
}

func computeMetrics(t *models.ImageTensor) Metrics {
	var m Metrics
	var areas []float64
	s := t.Shape
	for fov := 0; fov < s[models.AxisFOV]; fov++ {
		for frame := 0; frame < s[models.AxisFrame]; frame++ {
			for crop := 0; crop < s[models.AxisCrop]; crop++ {
				for slice := 0; slice < s[models.AxisSlice]; slice++ {
					m.Planes++
					for _, a := range labels.Areas(t.LabelPlane(fov, frame, crop, slice)) {
						areas = append(areas, float64(a))
					}
				}
			}
		}
	}
	m.Objects = len(areas)
	switch len(areas) {
	case 0:
	case 1:
		m.MeanObjectArea = areas[0]
	default:
		m.MeanObjectArea, m.StdObjectArea = stat.MeanStdDev(areas, nil)
	}
	return m
}

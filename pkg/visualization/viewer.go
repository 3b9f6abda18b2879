package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/floats"

	"labelstitch/internal/models"
)

// Viewer renders planes of a stitched stack for visual inspection. Label
// planes get one color per id, raw planes are shown as contrast-stretched
// grayscale.
type Viewer struct {
	// stack holds the tensor to render
	stack *models.ImageTensor

	// labels selects label coloring instead of grayscale
	labels bool
}

// NewViewer creates a viewer for a label stack.
func NewViewer(stack *models.ImageTensor) *Viewer {
	return &Viewer{stack: stack, labels: true}
}

// NewRawViewer creates a viewer for a raw intensity stack.
func NewRawViewer(stack *models.ImageTensor) *Viewer {
	return &Viewer{stack: stack}
}

// LabelColor returns the display color of a label id. Background is black
// and every other id maps to a fixed, saturated color.
func LabelColor(id int64) color.RGBA {
	if id == 0 {
		return color.RGBA{A: 255}
	}
	// golden-ratio hue walk, so consecutive ids get distant hues
	h := float64(uint64(id)*0x9E3779B9%360) / 60
	x := uint8(255 * (1 - abs(mod2(h)-1)))
	switch int(h) {
	case 0:
		return color.RGBA{255, x, 0, 255}
	case 1:
		return color.RGBA{x, 255, 0, 255}
	case 2:
		return color.RGBA{0, 255, x, 255}
	case 3:
		return color.RGBA{0, x, 255, 255}
	case 4:
		return color.RGBA{x, 0, 255, 255}
	default:
		return color.RGBA{255, 0, x, 255}
	}
}

func mod2(v float64) float64 {
	for v >= 2 {
		v -= 2
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// ExtractPlane renders one plane of the given fov, frame, crop, slice and
// channel.
func (v *Viewer) ExtractPlane(fov, frame, crop, slice, ch int) (image.Image, error) {
	s := v.stack.Shape
	idx := [...]int{fov, frame, crop, slice, ch}
	axes := [...]models.Axis{models.AxisFOV, models.AxisFrame, models.AxisCrop, models.AxisSlice, models.AxisChannel}
	for i, a := range axes {
		if idx[i] < 0 || idx[i] >= s[a] {
			return nil, fmt.Errorf("%s index %d out of range [0, %d)", a, idx[i], s[a])
		}
	}

	rows, cols := s[models.AxisRow], s[models.AxisCol]
	plane := v.stack.Plane(fov, frame, crop, slice, ch)

	if v.labels {
		img := image.NewRGBA(image.Rect(0, 0, cols, rows))
		for y := 0; y < rows; y++ {
			for x := 0; x < cols; x++ {
				img.SetRGBA(x, y, LabelColor(int64(plane[y*cols+x])))
			}
		}
		return img, nil
	}

	lo, hi := floats.Min(plane), floats.Max(plane)
	scale := 0.0
	if hi > lo {
		scale = 65535 / (hi - lo)
	}
	img := image.NewGray16(image.Rect(0, 0, cols, rows))
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			img.SetGray16(x, y, color.Gray16{Y: uint16((plane[y*cols+x] - lo) * scale)})
		}
	}
	return img, nil
}

// SavePlane saves a rendered plane as a PNG image.
func (v *Viewer) SavePlane(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return png.Encode(file, img)
}

// SavePlaneSequence renders every (fov, frame, crop, slice) plane of channel
// ch into outputDir, named by fov name and indices. It returns the number of
// files written.
func (v *Viewer) SavePlaneSequence(ch int, outputDir string) (int, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return 0, err
	}

	s := v.stack.Shape
	n := 0
	for fov := 0; fov < s[models.AxisFOV]; fov++ {
		for frame := 0; frame < s[models.AxisFrame]; frame++ {
			for crop := 0; crop < s[models.AxisCrop]; crop++ {
				for slice := 0; slice < s[models.AxisSlice]; slice++ {
					img, err := v.ExtractPlane(fov, frame, crop, slice, ch)
					if err != nil {
						return n, err
					}
					name := fmt.Sprintf("%s_frame_%03d_crop_%d_slice_%d.png", v.stack.FOVNames[fov], frame, crop, slice)
					if err := v.SavePlane(img, filepath.Join(outputDir, name)); err != nil {
						return n, err
					}
					n++
				}
			}
		}
	}
	return n, nil
}

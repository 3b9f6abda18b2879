package tilestore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"labelstitch/internal/logging"
	"labelstitch/internal/models"
)

// TileExt is the extension of tile and stack files.
const TileExt = ".tile"

// Array selects the raw or the label half of a Bundle.
type Array int

const (
	ArrayX Array = iota
	ArrayY
)

func (a Array) String() string {
	if a == ArrayX {
		return "X"
	}
	return "y"
}

// SaveOptions configures SaveTiles.
type SaveOptions struct {
	// SkipBlank omits tiles whose labels are all background. Such tiles are
	// not sent for annotation and are reported as missing on load.
	SkipBlank bool
}

// TileName returns the file name of one tile. The slice index is only part
// of the name when the stack was sliced.
func TileName(fov string, row, col, slice int, sliced bool) string {
	if sliced {
		return fmt.Sprintf("%s_row_%d_col_%d_slice_%d%s", fov, row, col, slice, TileExt)
	}
	return fmt.Sprintf("%s_row_%d_col_%d%s", fov, row, col, TileExt)
}

// grid describes the tile layout encoded by a log.
type grid struct {
	rows, cols, slices int
	rowSize, colSize   int
	frames             int
}

func gridOf(log *models.ReconstructionLog) grid {
	g := grid{
		rows:    1,
		cols:    1,
		slices:  1,
		rowSize: log.OriginalShape[models.AxisRow],
		colSize: log.OriginalShape[models.AxisCol],
		frames:  log.OriginalShape[models.AxisFrame],
	}
	if log.Cropped() {
		g.rows, g.cols = len(log.RowStarts), len(log.ColStarts)
		g.rowSize, g.colSize = log.RowCropSize, log.ColCropSize
	}
	if log.Sliced() {
		g.slices = log.NumSlices
		g.frames = log.SlicePlan().Size
	}
	return g
}

// SaveTiles writes one file per (fov, crop, slice) of the tiled pair X, y
// into dir. X may be nil. It returns the number of files written.
func SaveTiles(dir string, X, y *models.ImageTensor, log *models.ReconstructionLog, opts SaveOptions) (int, error) {
	if err := log.Validate(); err != nil {
		return 0, err
	}
	if err := y.ValidateLabels(); err != nil {
		return 0, err
	}
	g := gridOf(log)
	if y.Shape[models.AxisCrop] != g.rows*g.cols || y.Shape[models.AxisSlice] != g.slices {
		return 0, models.NewReconstructionError("label stack has %d crops and %d slices, log expects %d and %d",
			y.Shape[models.AxisCrop], y.Shape[models.AxisSlice], g.rows*g.cols, g.slices)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, errors.Wrapf(err, "creating %s", dir)
	}

	written := 0
	var total uint64
	for fov, name := range y.FOVNames {
		for crop := 0; crop < g.rows*g.cols; crop++ {
			row, col := crop/g.cols, crop%g.cols
			for slice := 0; slice < g.slices; slice++ {
				b := &Bundle{Y: extractTile(y, fov, crop, slice)}
				if opts.SkipBlank && isBlank(b.Y) {
					logging.Debugf("skipping blank tile fov=%s row=%d col=%d slice=%d", name, row, col, slice)
					continue
				}
				if X != nil {
					b.X = extractTile(X, fov, crop, slice)
				}
				path := filepath.Join(dir, TileName(name, row, col, slice, log.Sliced()))
				n, err := writeBundle(path, b)
				if err != nil {
					return written, err
				}
				total += n
				written++
			}
		}
	}
	logging.Infof("wrote %d tiles (%s) to %s", written, humanize.Bytes(total), dir)
	return written, nil
}

// LoadTiles assembles the tiled stack described by log from the files in
// dir, in the crop and slice order the log encodes. Missing files leave
// their region zero and are returned rather than failing the load.
func LoadTiles(dir string, log *models.ReconstructionLog, which Array) (*models.ImageTensor, []models.MissingTile, error) {
	if err := log.Validate(); err != nil {
		return nil, nil, err
	}
	g := gridOf(log)
	chans := []string{log.LabelName}
	if which == ArrayX {
		chans = log.ChanNames
	}
	shape := [models.NumAxes]int{len(log.FOVNames), g.frames, g.rows * g.cols, g.slices, g.rowSize, g.colSize, len(chans)}
	stack, err := models.NewImageTensor(shape, log.FOVNames, chans)
	if err != nil {
		return nil, nil, err
	}
	logging.Debugf("allocated %s tile stack %v (%s)", which, shape, humanize.Bytes(stack.Bytes()))

	want := shape
	want[models.AxisFOV], want[models.AxisCrop], want[models.AxisSlice] = 1, 1, 1

	var missing []models.MissingTile
	for fov, name := range log.FOVNames {
		for crop := 0; crop < g.rows*g.cols; crop++ {
			row, col := crop/g.cols, crop%g.cols
			for slice := 0; slice < g.slices; slice++ {
				path := filepath.Join(dir, TileName(name, row, col, slice, log.Sliced()))
				if _, err := os.Stat(path); os.IsNotExist(err) {
					m := models.MissingTile{FOV: name, Row: row, Col: col, Slice: slice, Path: path}
					logging.Warningf("%s, leaving it blank", m)
					missing = append(missing, m)
					continue
				}
				b, err := readBundle(path)
				if err != nil {
					return nil, missing, err
				}
				tile := b.Y
				if which == ArrayX {
					tile = b.X
				}
				if tile == nil {
					return nil, missing, models.NewReconstructionError("%s holds no %s array", path, which)
				}
				if tile.Shape != want {
					return nil, missing, models.NewReconstructionError("%s has shape %v, expected %v", path, tile.Shape, want)
				}
				insertTile(stack, tile, fov, crop, slice)
			}
		}
	}
	return stack, missing, nil
}

// SaveStack writes a whole stack bundle to path.
func SaveStack(path string, b *Bundle) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrapf(err, "creating directory for %s", path)
	}
	n, err := writeBundle(path, b)
	if err != nil {
		return err
	}
	logging.Infof("saved stack to %s (%s)", path, humanize.Bytes(n))
	return nil
}

// LoadStack reads a stack bundle written by SaveStack.
func LoadStack(path string) (*Bundle, error) {
	return readBundle(path)
}

func writeBundle(path string, b *Bundle) (uint64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, errors.Wrapf(err, "creating %s", path)
	}
	w := bufio.NewWriter(f)
	if err := Encode(w, b, DefaultFormat); err != nil {
		f.Close()
		return 0, errors.Wrapf(err, "encoding %s", path)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return 0, errors.Wrapf(err, "writing %s", path)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return 0, errors.Wrapf(err, "stat %s", path)
	}
	if err := f.Close(); err != nil {
		return 0, errors.Wrapf(err, "closing %s", path)
	}
	return uint64(info.Size()), nil
}

func readBundle(path string) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()
	b, err := Decode(bufio.NewReader(f))
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}
	return b, nil
}

// extractTile copies one (fov, crop, slice) of t into its own tensor.
func extractTile(t *models.ImageTensor, fov, crop, slice int) *models.ImageTensor {
	shape := t.Shape
	shape[models.AxisFOV], shape[models.AxisCrop], shape[models.AxisSlice] = 1, 1, 1
	out := &models.ImageTensor{
		Dims:      models.AxisNames,
		Shape:     shape,
		FOVNames:  []string{t.FOVNames[fov]},
		ChanNames: append([]string(nil), t.ChanNames...),
	}
	block := shape[models.AxisRow] * shape[models.AxisCol] * shape[models.AxisChannel]
	out.Data = make([]float64, shape[models.AxisFrame]*block)
	for f := 0; f < shape[models.AxisFrame]; f++ {
		src := t.Index(fov, f, crop, slice, 0, 0, 0)
		copy(out.Data[f*block:(f+1)*block], t.Data[src:src+block])
	}
	return out
}

func insertTile(stack, tile *models.ImageTensor, fov, crop, slice int) {
	block := stack.Shape[models.AxisRow] * stack.Shape[models.AxisCol] * stack.Shape[models.AxisChannel]
	for f := 0; f < stack.Shape[models.AxisFrame]; f++ {
		dst := stack.Index(fov, f, crop, slice, 0, 0, 0)
		copy(stack.Data[dst:dst+block], tile.Data[f*block:(f+1)*block])
	}
}

func isBlank(t *models.ImageTensor) bool {
	for _, v := range t.Data {
		if v != 0 {
			return false
		}
	}
	return true
}

package reconstruction

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labelstitch/internal/logging"
	"labelstitch/internal/models"
	"labelstitch/pkg/labels"
	"labelstitch/pkg/relabel"
	"labelstitch/pkg/tilestore"
	"labelstitch/pkg/tiling"
)

func TestMain(m *testing.M) {
	logging.SetOutput(io.Discard)
	os.Exit(m.Run())
}

const (
	testFrames = 4
	testSide   = 40
)

type box struct {
	id             int64
	r0, r1, c0, c1 int
	drift          int // columns moved per frame
}

var testObjects = [][]box{
	{
		{5, 15, 30, 5, 12, 1},
		{9, 2, 8, 15, 28, 1},
		{2, 25, 35, 25, 35, 0},
	},
	{
		{3, 0, 40, 18, 24, 0},
		{8, 30, 38, 2, 10, 1},
	},
}

// writeTestStack saves a two-fov, two-channel stack with drifting boxes and
// returns it.
func writeTestStack(t *testing.T, path string) (*models.ImageTensor, *models.ImageTensor) {
	t.Helper()
	X, err := models.NewImageTensor([models.NumAxes]int{2, testFrames, 1, 1, testSide, testSide, 2}, []string{"A1", "B2"}, []string{"dapi", "cyto"})
	require.NoError(t, err)
	for i := range X.Data {
		X.Data[i] = float64(i % 251)
	}
	y, err := models.NewImageTensor([models.NumAxes]int{2, testFrames, 1, 1, testSide, testSide, 1}, []string{"A1", "B2"}, []string{"segmentation"})
	require.NoError(t, err)
	for fov, boxes := range testObjects {
		for f := 0; f < testFrames; f++ {
			for _, b := range boxes {
				for r := b.r0; r < b.r1; r++ {
					for c := b.c0 + f*b.drift; c < b.c1+f*b.drift; c++ {
						y.Set(fov, f, 0, 0, r, c, 0, float64(b.id))
					}
				}
			}
		}
	}
	require.NoError(t, tilestore.SaveStack(path, &tilestore.Bundle{X: X, Y: y}))
	return X, y
}

// annotateTiles renumbers every tile file on its own, as independent
// annotators would.
func annotateTiles(t *testing.T, dir string) int {
	t.Helper()
	paths, err := filepath.Glob(filepath.Join(dir, "*"+tilestore.TileExt))
	require.NoError(t, err)
	sort.Strings(paths)
	for i, path := range paths {
		b, err := tilestore.LoadStack(path)
		require.NoError(t, err)
		salt := int64(i * 10)
		for f := 0; f < b.Y.Shape[models.AxisFrame]; f++ {
			plane, _ := labels.RelabelSequential(b.Y.LabelPlane(0, f, 0, 0))
			for j, v := range plane {
				if v != 0 {
					plane[j] = v + salt
				}
			}
			b.Y.SetLabelPlane(0, f, 0, 0, plane)
		}
		require.NoError(t, tilestore.SaveStack(path, b))
	}
	return len(paths)
}

func assertSameObjects(t *testing.T, want, got []int64) {
	t.Helper()
	require.Len(t, got, len(want))
	fwd := make(map[int64]int64)
	back := make(map[int64]int64)
	for i := range want {
		w, g := want[i], got[i]
		require.Equal(t, w == 0, g == 0, "pixel %d", i)
		if w == 0 {
			continue
		}
		if prev, ok := fwd[w]; ok {
			require.Equal(t, prev, g, "object %d split", w)
		}
		if prev, ok := back[g]; ok {
			require.Equal(t, prev, w, "label %d merges objects", g)
		}
		fwd[w], back[g] = g, w
	}
}

func prepare(t *testing.T, params *PrepareParams) (*models.ImageTensor, *models.ImageTensor) {
	t.Helper()
	X, y := writeTestStack(t, params.InputFile)
	p := NewPreparer(params)
	require.NoError(t, p.Process())
	require.NotNil(t, p.Log())
	assert.NotEmpty(t, p.Log().RunID)
	assert.NotEmpty(t, p.Log().CreatedAt)
	return X, y
}

func TestRoundTripCropAndSlice(t *testing.T) {
	tmp := t.TempDir()
	tiles := filepath.Join(tmp, "tiles")
	X, y := prepare(t, &PrepareParams{
		InputFile: filepath.Join(tmp, "input.tile"),
		OutputDir: tiles,
		Crop:      tiling.CropOptions{Num: [2]int{2, 2}, Overlap: 0.1},
		Slice:     tiling.SliceOptions{StackLen: 3, Overlap: 1},
	})
	// 2 fovs x 4 crops x 2 slices
	require.Equal(t, 16, annotateTiles(t, tiles))

	output := filepath.Join(tmp, "out", "stitched.tile")
	previews := filepath.Join(tmp, "previews")
	r := NewReconstructor(&Params{
		CropDir:     tiles,
		OutputFile:  output,
		NumCores:    2,
		RelabelMode: relabel.ModePreserve,
		IncludeRaw:  true,
		PreviewDir:  previews,
	})
	require.NoError(t, r.Process())

	result := r.Result()
	assert.Equal(t, y.Shape, result.Shape)
	assert.Equal(t, y.FOVNames, result.FOVNames)
	assert.Empty(t, r.Missing())

	for fov := range testObjects {
		first := result.LabelPlane(fov, 0, 0, 0)
		assert.True(t, labels.IsSequential(first))
		for f := 0; f < testFrames; f++ {
			got := result.LabelPlane(fov, f, 0, 0)
			assertSameObjects(t, y.LabelPlane(fov, f, 0, 0), got)
			// drifting objects keep their id
			assert.Equal(t, labels.Unique(first), labels.Unique(got), "fov %d frame %d", fov, f)
		}
	}

	require.NotNil(t, r.Raw())
	assert.Equal(t, X.Data, r.Raw().Data)
	assert.Equal(t, X.ChanNames, r.Raw().ChanNames)

	m := r.GetMetrics()
	assert.Equal(t, 2*testFrames, m.Planes)
	assert.Equal(t, 5*testFrames, m.Objects)
	assert.Greater(t, m.MergedFragments, 0)
	assert.Greater(t, m.MeanObjectArea, 0.0)
	assert.Zero(t, m.MissingTiles)

	saved, err := tilestore.LoadStack(output)
	require.NoError(t, err)
	assert.Equal(t, result.Data, saved.Y.Data)
	assert.Equal(t, X.Data, saved.X.Data)

	pngs, err := filepath.Glob(filepath.Join(previews, "labels", "*.png"))
	require.NoError(t, err)
	assert.Len(t, pngs, 2*testFrames)
}

func TestRoundTripSliceOnly(t *testing.T) {
	tmp := t.TempDir()
	tiles := filepath.Join(tmp, "tiles")
	_, y := prepare(t, &PrepareParams{
		InputFile: filepath.Join(tmp, "input.tile"),
		OutputDir: tiles,
		Slice:     tiling.SliceOptions{StackLen: 2},
	})
	assert.FileExists(t, filepath.Join(tiles, tilestore.TileName("B2", 0, 0, 1, true)))
	annotateTiles(t, tiles)

	r := NewReconstructor(&Params{CropDir: tiles, RelabelMode: relabel.ModeAllFrames})
	require.NoError(t, r.Process())
	assert.Equal(t, y.Shape, r.Result().Shape)
	assert.Nil(t, r.Raw())
	for fov := range testObjects {
		for f := 0; f < testFrames; f++ {
			got := r.Result().LabelPlane(fov, f, 0, 0)
			assertSameObjects(t, y.LabelPlane(fov, f, 0, 0), got)
			assert.True(t, labels.IsSequential(got))
		}
	}
}

func TestReconstructMissingTile(t *testing.T) {
	tmp := t.TempDir()
	tiles := filepath.Join(tmp, "tiles")
	_, y := prepare(t, &PrepareParams{
		InputFile: filepath.Join(tmp, "input.tile"),
		OutputDir: tiles,
		Crop:      tiling.CropOptions{Size: [2]int{24, 24}, Overlap: 0.25},
	})
	annotateTiles(t, tiles)
	require.NoError(t, os.Remove(filepath.Join(tiles, tilestore.TileName("A1", 1, 1, 0, false))))

	r := NewReconstructor(&Params{CropDir: tiles, Vote: "majority"})
	require.NoError(t, r.Process())
	require.Len(t, r.Missing(), 1)
	assert.Equal(t, "A1", r.Missing()[0].FOV)
	assert.Equal(t, 1, r.GetMetrics().MissingTiles)

	// the untouched fov is still complete
	for f := 0; f < testFrames; f++ {
		assertSameObjects(t, y.LabelPlane(1, f, 0, 0), r.Result().LabelPlane(1, f, 0, 0))
	}
	// the box at (25, 25) of A1 lies in that tile only
	assert.Equal(t, 2.0, y.At(0, 0, 0, 0, 30, 30, 0))
	assert.Zero(t, r.Result().At(0, 0, 0, 0, 30, 30, 0))
}

func TestReconstructErrors(t *testing.T) {
	r := NewReconstructor(&Params{CropDir: t.TempDir()})
	assert.Error(t, r.Process())

	tmp := t.TempDir()
	tiles := filepath.Join(tmp, "tiles")
	prepare(t, &PrepareParams{
		InputFile: filepath.Join(tmp, "input.tile"),
		OutputDir: tiles,
		Crop:      tiling.CropOptions{Num: [2]int{2, 2}},
	})

	var cfgErr *models.ConfigurationError
	err := NewReconstructor(&Params{CropDir: tiles, Vote: "loudest"}).Process()
	assert.True(t, errors.As(err, &cfgErr), "got %v", err)

	err = NewReconstructor(&Params{CropDir: tiles, RelabelMode: "sideways"}).Process()
	assert.True(t, errors.As(err, &cfgErr), "got %v", err)
}

func TestPrepareErrors(t *testing.T) {
	tmp := t.TempDir()
	input := filepath.Join(tmp, "input.tile")
	writeTestStack(t, input)

	var cfgErr *models.ConfigurationError
	err := NewPreparer(&PrepareParams{InputFile: input, OutputDir: tmp}).Process()
	assert.True(t, errors.As(err, &cfgErr), "got %v", err)

	err = NewPreparer(&PrepareParams{
		InputFile: input,
		OutputDir: tmp,
		Crop:      tiling.CropOptions{Size: [2]int{10, 10}, Num: [2]int{2, 2}},
	}).Process()
	assert.True(t, errors.As(err, &cfgErr), "got %v", err)

	labelsOnly := filepath.Join(tmp, "labels.tile")
	b, err := tilestore.LoadStack(input)
	require.NoError(t, err)
	require.NoError(t, tilestore.SaveStack(labelsOnly, &tilestore.Bundle{Y: b.Y}))
	var vErr *models.ValidationError
	err = NewPreparer(&PrepareParams{InputFile: labelsOnly, OutputDir: tmp, Slice: tiling.SliceOptions{StackLen: 2}}).Process()
	assert.True(t, errors.As(err, &vErr), "got %v", err)
}

func TestPrepareFirstFOVOnly(t *testing.T) {
	tmp := t.TempDir()
	tiles := filepath.Join(tmp, "tiles")
	writeTestStack(t, filepath.Join(tmp, "input.tile"))
	p := NewPreparer(&PrepareParams{
		InputFile: filepath.Join(tmp, "input.tile"),
		OutputDir: tiles,
		Crop:      tiling.CropOptions{Num: [2]int{2, 2}, FirstFOVOnly: true},
		SkipBlank: true,
	})
	require.NoError(t, p.Process())
	assert.Equal(t, []string{"A1"}, p.Log().FOVNames)
	assert.LessOrEqual(t, p.TilesWritten(), 4)
	_, yc := p.Tiles()
	assert.Equal(t, 1, yc.Shape[models.AxisFOV])

	log, err := tilestore.ReadLog(tiles)
	require.NoError(t, err)
	assert.Equal(t, p.Log().RunID, log.RunID)
}

func TestReconstructRawWithSkippedTiles(t *testing.T) {
	tmp := t.TempDir()
	input := filepath.Join(tmp, "input.tile")
	tiles := filepath.Join(tmp, "tiles")

	X, err := models.NewImageTensor([models.NumAxes]int{1, 1, 1, 1, 20, 20, 1}, []string{"A1"}, []string{"dapi"})
	require.NoError(t, err)
	for i := range X.Data {
		X.Data[i] = 7
	}
	y, err := models.NewImageTensor([models.NumAxes]int{1, 1, 1, 1, 20, 20, 1}, []string{"A1"}, []string{"segmentation"})
	require.NoError(t, err)
	for r := 14; r < 19; r++ {
		for c := 14; c < 19; c++ {
			y.Set(0, 0, 0, 0, r, c, 0, 1)
		}
	}
	require.NoError(t, tilestore.SaveStack(input, &tilestore.Bundle{X: X, Y: y}))

	p := NewPreparer(&PrepareParams{
		InputFile: input,
		OutputDir: tiles,
		Crop:      tiling.CropOptions{Num: [2]int{2, 2}, Overlap: 0.2},
		SkipBlank: true,
	})
	require.NoError(t, p.Process())
	require.Equal(t, 1, p.TilesWritten())

	r := NewReconstructor(&Params{CropDir: tiles, IncludeRaw: true})
	require.NoError(t, r.Process())
	require.Len(t, r.Missing(), 3)

	// only the bottom-right crop is on disk; the overlap it shares with the
	// skipped crops keeps its intensities
	r0, c0 := r.Log().RowStarts[1], r.Log().ColStarts[1]
	require.Less(t, r0, r.Log().RowEnds[0])
	raw := r.Raw()
	for row := 0; row < 20; row++ {
		for col := 0; col < 20; col++ {
			want := 0.0
			if row >= r0 && col >= c0 {
				want = 7
			}
			assert.Equal(t, want, raw.At(0, 0, 0, 0, row, col, 0), "raw (%d, %d)", row, col)
		}
	}
	assert.Equal(t, y.LabelPlane(0, 0, 0, 0), r.Result().LabelPlane(0, 0, 0, 0))
}

// Package reconstruction drives the two halves of the annotation round trip:
// Preparer cuts a stack into tiles for annotation, Reconstructor stitches the
// annotated tiles back into one stack.
package reconstruction

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"labelstitch/internal/logging"
	"labelstitch/internal/models"
	"labelstitch/pkg/tilestore"
	"labelstitch/pkg/tiling"
)

// PrepareParams holds the tiling parameters.
type PrepareParams struct {
	// InputFile is a stack file holding both the raw X and label y arrays.
	InputFile string

	// OutputDir receives the tiles and log_data.json.
	OutputDir string

	// Crop selects crop size or count. The zero value disables cropping.
	Crop tiling.CropOptions

	// Slice selects slice length and overlap. StackLen 0 disables slicing.
	Slice tiling.SliceOptions

	// SkipBlank omits tiles without labels.
	SkipBlank bool
}

// Preparer cuts a raw/label stack into crops and slices and saves them with
// their reconstruction log.
type Preparer struct {
	params *PrepareParams
	log    *models.ReconstructionLog
	x, y   *models.ImageTensor
	tiles  int
}

// NewPreparer creates a new preparer with the provided parameters.
func NewPreparer(params *PrepareParams) *Preparer {
	return &Preparer{params: params}
}

func (p *Preparer) cropping() bool {
	c := p.params.Crop
	return c.Size != [2]int{} || c.Num != [2]int{}
}

// Process loads InputFile, tiles it and writes the tiles and log.
func (p *Preparer) Process() error {
	logging.Infof("Step 1: Loading stack from %s", p.params.InputFile)
	b, err := tilestore.LoadStack(p.params.InputFile)
	if err != nil {
		return fmt.Errorf("failed to load stack: %w", err)
	}
	if b.X == nil || b.Y == nil {
		return models.NewValidationError("stack file %s must hold both X and y", p.params.InputFile)
	}
	return p.ProcessStack(b.X, b.Y)
}

// ProcessStack tiles an in-memory stack and writes the tiles and log.
func (p *Preparer) ProcessStack(X, y *models.ImageTensor) error {
	if !p.cropping() && p.params.Slice.StackLen == 0 {
		return models.NewConfigurationError("neither cropping nor slicing requested")
	}
	var log *models.ReconstructionLog
	var err error

	if p.cropping() {
		logging.Infof("Step 2: Cropping %v stack...", X.Shape)
		if X, y, log, err = tiling.CropMultichannel(X, y, p.params.Crop); err != nil {
			return fmt.Errorf("failed to crop: %w", err)
		}
		logging.Infof("Created %d crops of %dx%d", log.NumCrops, log.RowCropSize, log.ColCropSize)
	}

	if p.params.Slice.StackLen > 0 {
		logging.Infof("Step 3: Slicing %d frames...", X.Shape[models.AxisFrame])
		if X, y, log, err = tiling.CreateSlices(X, y, p.params.Slice, log); err != nil {
			return fmt.Errorf("failed to slice: %w", err)
		}
		logging.Infof("Created %d slices of %d frames", log.NumSlices, log.SliceStackLen)
	}

	log.RunID = uuid.NewString()
	log.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	p.log, p.x, p.y = log, X, y

	logging.Infof("Step 4: Saving tiles to %s", p.params.OutputDir)
	n, err := tilestore.SaveTiles(p.params.OutputDir, X, y, log, tilestore.SaveOptions{SkipBlank: p.params.SkipBlank})
	if err != nil {
		return fmt.Errorf("failed to save tiles: %w", err)
	}
	p.tiles = n
	if err := tilestore.WriteLog(p.params.OutputDir, log); err != nil {
		return fmt.Errorf("failed to write log: %w", err)
	}
	return nil
}

// Log returns the reconstruction log of the last run.
func (p *Preparer) Log() *models.ReconstructionLog { return p.log }

// Tiles returns the tiled raw and label stacks of the last run.
func (p *Preparer) Tiles() (*models.ImageTensor, *models.ImageTensor) { return p.x, p.y }

// TilesWritten returns the number of tile files written by the last run.
func (p *Preparer) TilesWritten() int { return p.tiles }

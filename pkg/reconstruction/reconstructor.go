package reconstruction

import (
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"labelstitch/internal/logging"
	"labelstitch/internal/models"
	"labelstitch/pkg/relabel"
	"labelstitch/pkg/stitching"
	"labelstitch/pkg/tilestore"
	"labelstitch/pkg/visualization"
)

// Params holds the reconstruction parameters.
type Params struct {
	// CropDir is the directory holding log_data.json and the annotated tiles.
	CropDir string

	// OutputFile is where the stitched stack is saved. Empty skips saving.
	OutputFile string

	// NumCores bounds how many fovs are stitched concurrently.
	NumCores int

	// RelabelMode is applied after stitching. Empty leaves ids as stitched.
	RelabelMode relabel.Mode

	// Vote names the seam merge policy: "greatest_id" (default) or "majority".
	Vote string

	// IncludeRaw also stitches the raw X arrays of the tiles.
	IncludeRaw bool

	// PreviewDir receives PNG renderings of the stitched labels when set.
	PreviewDir string
}

// Reconstructor turns a directory of independently annotated tiles back into
// one consistently labeled stack.
//
// The reconstruction process consists of several steps:
// 1. Reading the reconstruction log
// 2. Loading the tiles, tolerating missing files
// 3. Stitching temporal slices, if the stack was sliced
// 4. Stitching spatial crops, if the stack was cropped, one fov per worker
// 5. Relabeling across frames, if requested
// 6. Calculating summary metrics
// 7. Saving the stitched stack and previews
type Reconstructor struct {
	params *Params

	// log is the reconstruction log read from CropDir
	log *models.ReconstructionLog

	// labels and raw hold the stack as it moves through the steps
	labels *models.ImageTensor
	raw    *models.ImageTensor

	// missing lists the tiles that were expected but not found
	missing []models.MissingTile

	// coverage and rawCoverage mark the planes of labels and raw that were
	// read from disk
	coverage    *stitching.Coverage
	rawCoverage *stitching.Coverage

	// merges counts seam fragments folded into existing objects
	merges int

	metrics Metrics
}

// NewReconstructor creates a new reconstructor instance with the provided parameters.
func NewReconstructor(params *Params) *Reconstructor {
	return &Reconstructor{params: params}
}

// Process runs the complete reconstruction pipeline
func (r *Reconstructor) Process() error {
	logging.Infof("Step 1: Reading reconstruction log from %s", r.params.CropDir)
	log, err := tilestore.ReadLog(r.params.CropDir)
	if err != nil {
		return fmt.Errorf("failed to read log: %w", err)
	}
	r.log = log

	logging.Infof("Step 2: Loading tiles...")
	if err := r.loadTiles(); err != nil {
		return fmt.Errorf("failed to load tiles: %w", err)
	}

	if log.Sliced() {
		logging.Infof("Step 3: Stitching %d slices...", log.NumSlices)
		if err := r.stitchSlices(); err != nil {
			return fmt.Errorf("failed to stitch slices: %w", err)
		}
	}

	if log.Cropped() {
		logging.Infof("Step 4: Stitching %d crops per plane...", log.NumCrops)
		if err := r.stitchCrops(); err != nil {
			return fmt.Errorf("failed to stitch crops: %w", err)
		}
	}

	if r.params.RelabelMode != "" {
		logging.Infof("Step 5: Relabeling frames (%s)...", r.params.RelabelMode)
		relabeled, err := relabel.Relabel(r.labels, r.params.RelabelMode)
		if err != nil {
			return fmt.Errorf("failed to relabel: %w", err)
		}
		r.labels = relabeled
	}

	logging.Infof("Step 6: Calculating metrics...")
	r.metrics = computeMetrics(r.labels)
	r.metrics.MergedFragments = r.merges
	r.metrics.MissingTiles = len(r.missing)

	if r.params.OutputFile != "" {
		logging.Infof("Step 7: Saving stitched stack...")
		if err := tilestore.SaveStack(r.params.OutputFile, &tilestore.Bundle{X: r.raw, Y: r.labels}); err != nil {
			return fmt.Errorf("failed to save output: %w", err)
		}
	}
	if r.params.PreviewDir != "" {
		n, err := visualization.NewViewer(r.labels).SavePlaneSequence(0, filepath.Join(r.params.PreviewDir, "labels"))
		if err != nil {
			logging.Warningf("Failed to save previews: %v", err)
		} else {
			logging.Infof("Saved %d previews to %s", n, r.params.PreviewDir)
		}
	}
	return nil
}

func (r *Reconstructor) loadTiles() error {
	labels, missing, err := tilestore.LoadTiles(r.params.CropDir, r.log, tilestore.ArrayY)
	if err != nil {
		return err
	}
	if r.coverage, err = stitching.CoverageFromMissing(labels.Shape, r.log, missing); err != nil {
		return err
	}
	r.labels, r.missing = labels, missing
	if len(missing) > 0 {
		logging.Warningf("%d tiles missing, their regions are left as background", len(missing))
	}
	logging.Infof("Loaded label tiles %v (%s)", labels.Shape, humanize.Bytes(labels.Bytes()))

	if r.params.IncludeRaw {
		raw, rawMissing, err := tilestore.LoadTiles(r.params.CropDir, r.log, tilestore.ArrayX)
		if err != nil {
			return err
		}
		if r.rawCoverage, err = stitching.CoverageFromMissing(raw.Shape, r.log, rawMissing); err != nil {
			return err
		}
		r.raw = raw
	}
	return nil
}

func (r *Reconstructor) stitchSlices() error {
	labels, coverage, err := stitching.StitchSlicesCovered(r.labels, r.log, r.coverage)
	if err != nil {
		return err
	}
	r.labels, r.coverage = labels, coverage
	if r.raw != nil {
		if r.raw, r.rawCoverage, err = stitching.StitchSlicesCovered(r.raw, r.log, r.rawCoverage); err != nil {
			return err
		}
	}
	return nil
}

// stitchCrops stitches every fov on its own worker; planes of different fovs
// share no state.
func (r *Reconstructor) stitchCrops() error {
	vote, err := votePolicy(r.params.Vote)
	if err != nil {
		return err
	}

	nfov := r.labels.Shape[models.AxisFOV]
	parts := make([]*models.ImageTensor, nfov)
	rawParts := make([]*models.ImageTensor, nfov)
	merges := make([]int, nfov)

	var g errgroup.Group
	g.SetLimit(max(1, r.params.NumCores))
	for i := 0; i < nfov; i++ {
		i := i
		g.Go(func() error {
			out, report, err := stitching.StitchCropsWith(r.labels.FOV(i), r.log, vote)
			if err != nil {
				return fmt.Errorf("fov %s: %w", r.labels.FOVNames[i], err)
			}
			parts[i], merges[i] = out, report.Merges
			if r.raw != nil {
				if rawParts[i], err = stitching.StitchImageCovered(r.raw.FOV(i), r.log, r.rawCoverage.FOV(i)); err != nil {
					return fmt.Errorf("fov %s raw: %w", r.raw.FOVNames[i], err)
				}
			}
			logging.Debugf("stitched fov %s: %d planes, %d merges", r.labels.FOVNames[i], report.Planes, report.Merges)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	labels, err := models.ConcatFOVs(parts)
	if err != nil {
		return err
	}
	r.labels = labels
	for _, m := range merges {
		r.merges += m
	}
	if r.raw != nil {
		if r.raw, err = models.ConcatFOVs(rawParts); err != nil {
			return err
		}
	}
	return nil
}

func votePolicy(name string) (stitching.VotePolicy, error) {
	switch name {
	case "", "greatest_id":
		return stitching.GreatestID, nil
	case "majority":
		return stitching.MajorityOverlap, nil
	default:
		return nil, models.NewConfigurationError("unknown vote policy %q", name)
	}
}

// Result returns the stitched label stack.
func (r *Reconstructor) Result() *models.ImageTensor {
	return r.labels
}

// Raw returns the stitched raw stack, nil unless IncludeRaw was set.
func (r *Reconstructor) Raw() *models.ImageTensor {
	return r.raw
}

// Missing returns the tiles that were expected but absent.
func (r *Reconstructor) Missing() []models.MissingTile {
	return r.missing
}

// Log returns the reconstruction log that was read.
func (r *Reconstructor) Log() *models.ReconstructionLog {
	return r.log
}

// GetMetrics returns the metrics of the last run.
func (r *Reconstructor) GetMetrics() Metrics {
	return r.metrics
}

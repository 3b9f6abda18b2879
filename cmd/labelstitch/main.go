package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"time"

	"labelstitch/internal/logging"
	"labelstitch/pkg/config"
	"labelstitch/pkg/reconstruction"
	"labelstitch/pkg/relabel"
	"labelstitch/pkg/tiling"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: labelstitch <command> [flags]

commands:
  prepare      crop and/or slice a stack into tiles for annotation
  reconstruct  stitch annotated tiles back into one labeled stack
  config       write a default configuration file
`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "prepare":
		err = runPrepare(os.Args[2:])
	case "reconstruct":
		err = runReconstruct(os.Args[2:])
	case "config":
		err = runConfig(os.Args[2:])
	case "-h", "-help", "--help", "help":
		usage()
		return
	default:
		usage()
		os.Exit(1)
	}
	logging.Shutdown()
	if err != nil {
		fmt.Fprintf(os.Stderr, "labelstitch %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	logging.Setup(&cfg.Log)
	return cfg, nil
}

func runPrepare(args []string) error {
	fs := flag.NewFlagSet("prepare", flag.ExitOnError)
	configPath := fs.String("config", "labelstitch.yaml", "Configuration file (YAML or TOML)")
	input := fs.String("input", "", "Stack file holding X and y arrays")
	output := fs.String("output", "", "Directory to write tiles and log_data.json")
	firstFOV := fs.Bool("test-parameters", false, "Only crop the first fov")
	fs.Parse(args)

	if *input == "" || *output == "" {
		fs.Usage()
		return fmt.Errorf("-input and -output are required")
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	params := &reconstruction.PrepareParams{
		InputFile: *input,
		OutputDir: *output,
		Crop: tiling.CropOptions{
			Size:         cfg.Tiling.CropSize,
			Num:          cfg.Tiling.CropNum,
			Overlap:      cfg.Tiling.OverlapFrac,
			FirstFOVOnly: *firstFOV,
		},
		Slice: tiling.SliceOptions{
			StackLen: cfg.Tiling.SliceStackLen,
			Overlap:  cfg.Tiling.SliceOverlap,
		},
		SkipBlank: cfg.Tiling.SkipBlank,
	}

	start := time.Now()
	p := reconstruction.NewPreparer(params)
	if err := p.Process(); err != nil {
		return err
	}
	fmt.Printf("Wrote %d tiles to %s in %.2f seconds\n", p.TilesWritten(), *output, time.Since(start).Seconds())
	return nil
}

func runReconstruct(args []string) error {
	fs := flag.NewFlagSet("reconstruct", flag.ExitOnError)
	configPath := fs.String("config", "labelstitch.yaml", "Configuration file (YAML or TOML)")
	cropDir := fs.String("crops", "", "Directory holding log_data.json and annotated tiles")
	output := fs.String("output", "stitched.tile", "Output stack file")
	relabelMode := fs.String("relabel", "", "Override relabel mode: preserve or all_frames")
	numCores := fs.Int("cores", 0, "Override number of CPU cores to use (default: config value, or all available)")
	includeRaw := fs.Bool("raw", false, "Also stitch the raw X arrays")
	fs.Parse(args)

	if *cropDir == "" {
		fs.Usage()
		return fmt.Errorf("-crops is required")
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	params := reconstructParams(cfg, *relabelMode, *numCores)
	params.CropDir = *cropDir
	params.OutputFile = *output
	params.IncludeRaw = *includeRaw

	start := time.Now()
	r := reconstruction.NewReconstructor(params)
	if err := r.Process(); err != nil {
		return err
	}

	m := r.GetMetrics()
	fmt.Printf("\nReconstruction completed in %.2f seconds\n", time.Since(start).Seconds())
	fmt.Printf("Output saved to: %s\n\n", *output)
	fmt.Printf("Planes:            %d\n", m.Planes)
	fmt.Printf("Objects:           %d\n", m.Objects)
	fmt.Printf("Object area:       %.1f +/- %.1f px\n", m.MeanObjectArea, m.StdObjectArea)
	fmt.Printf("Merged fragments:  %d\n", m.MergedFragments)
	fmt.Printf("Missing tiles:     %d\n", m.MissingTiles)
	fmt.Printf("Cores used:        %d\n", params.NumCores)
	for _, t := range r.Missing() {
		fmt.Printf("  %s\n", t)
	}
	return nil
}

// reconstructParams fills the reconstruction parameters from cfg, applying
// the command line overrides that are set.
func reconstructParams(cfg *config.Config, relabelMode string, numCores int) *reconstruction.Params {
	params := &reconstruction.Params{
		NumCores:    cfg.Reconstruction.NumCores,
		RelabelMode: relabel.Mode(cfg.Reconstruction.RelabelMode),
		Vote:        cfg.Reconstruction.Vote,
		PreviewDir:  cfg.Output.PreviewDir,
	}
	if relabelMode != "" {
		params.RelabelMode = relabel.Mode(relabelMode)
	}
	if numCores > 0 {
		params.NumCores = numCores
	}
	if params.NumCores < 1 {
		params.NumCores = runtime.NumCPU()
	}
	return params
}

func runConfig(args []string) error {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	path := fs.String("output", "labelstitch.yaml", "Where to write the default configuration")
	fs.Parse(args)
	if err := config.CreateDefaultConfigFile(*path); err != nil {
		return err
	}
	fmt.Printf("Default configuration written to %s\n", *path)
	return nil
}

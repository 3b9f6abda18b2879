// Package config provides configuration loading and management for labelstitch.
// It handles loading configuration from YAML or TOML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"labelstitch/internal/logging"
)

// Config represents the application configuration
type Config struct {
	// Tiling parameters used when preparing a stack for annotation
	Tiling struct {
		// CropSize is the (rows, cols) size of each crop, overlap included.
		// Leave at zero to use CropNum instead; both zero disables cropping.
		CropSize [2]int `yaml:"cropSize" toml:"crop_size"`

		// CropNum is the (rows, cols) number of crops.
		CropNum [2]int `yaml:"cropNum" toml:"crop_num"`

		// OverlapFrac is the fraction of a crop shared with each neighbour
		OverlapFrac float64 `yaml:"overlapFrac" toml:"overlap_frac"`

		// SliceStackLen is the number of frames per slice, 0 disables slicing
		SliceStackLen int `yaml:"sliceStackLen" toml:"slice_stack_len"`

		// SliceOverlap is the number of frames shared by consecutive slices
		SliceOverlap int `yaml:"sliceOverlap" toml:"slice_overlap"`

		// SkipBlank omits crops without any labels when saving
		SkipBlank bool `yaml:"skipBlank" toml:"skip_blank"`
	} `yaml:"tiling" toml:"tiling"`

	// Reconstruction parameters
	Reconstruction struct {
		// NumCores bounds how many fovs are stitched in parallel
		NumCores int `yaml:"numCores" toml:"num_cores"`

		// RelabelMode is "preserve", "all_frames" or empty for no relabeling
		RelabelMode string `yaml:"relabelMode" toml:"relabel_mode"`

		// Vote is the seam merge policy: "greatest_id" or "majority"
		Vote string `yaml:"vote" toml:"vote"`
	} `yaml:"reconstruction" toml:"reconstruction"`

	// Output parameters
	Output struct {
		// PreviewDir receives PNG previews of stitched planes when set
		PreviewDir string `yaml:"previewDir" toml:"preview_dir"`
	} `yaml:"output" toml:"output"`

	// Log controls where log messages go
	Log logging.Config `yaml:"log" toml:"log"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// no cropping or slicing unless asked for
	cfg.Tiling.OverlapFrac = 0.1
	cfg.Tiling.SkipBlank = false

	cfg.Reconstruction.NumCores = runtime.NumCPU() // Use all available cores by default
	cfg.Reconstruction.RelabelMode = ""
	cfg.Reconstruction.Vote = "greatest_id"

	cfg.Log.MaxSize = 100
	cfg.Log.MaxAge = 30
	cfg.Log.Verbose = false

	return cfg
}

// Validate checks values that do not depend on the data
func (cfg *Config) Validate() error {
	t := cfg.Tiling
	if t.CropSize != [2]int{} && t.CropNum != [2]int{} {
		return fmt.Errorf("only one of cropSize and cropNum may be set")
	}
	if t.OverlapFrac < 0 || t.OverlapFrac >= 1 {
		return fmt.Errorf("overlapFrac must be in [0, 1), got %v", t.OverlapFrac)
	}
	if t.SliceStackLen < 0 || t.SliceOverlap < 0 {
		return fmt.Errorf("slice parameters must not be negative")
	}
	if t.SliceStackLen > 0 && t.SliceOverlap >= t.SliceStackLen {
		return fmt.Errorf("sliceOverlap %d must be smaller than sliceStackLen %d", t.SliceOverlap, t.SliceStackLen)
	}
	switch cfg.Reconstruction.RelabelMode {
	case "", "preserve", "all_frames":
	default:
		return fmt.Errorf("unknown relabelMode %q", cfg.Reconstruction.RelabelMode)
	}
	switch cfg.Reconstruction.Vote {
	case "", "greatest_id", "majority":
	default:
		return fmt.Errorf("unknown vote %q", cfg.Reconstruction.Vote)
	}
	if cfg.Reconstruction.NumCores < 0 {
		return fmt.Errorf("numCores must not be negative")
	}
	return nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// LoadConfig loads configuration from a YAML or TOML file, chosen by extension.
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if isTOML(configPath) {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to a YAML or TOML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	f, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	defer f.Close()

	if isTOML(configPath) {
		if err := toml.NewEncoder(f).Encode(cfg); err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		return nil
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

package main

import (
	"runtime"
	"testing"

	"labelstitch/pkg/config"
	"labelstitch/pkg/relabel"
)

func TestReconstructParamsOverrides(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Reconstruction.NumCores = 3
	cfg.Reconstruction.RelabelMode = "all_frames"
	cfg.Reconstruction.Vote = "majority"

	params := reconstructParams(cfg, "", 0)
	if params.NumCores != 3 || params.RelabelMode != relabel.ModeAllFrames || params.Vote != "majority" {
		t.Errorf("Expected config values, got %+v", *params)
	}

	params = reconstructParams(cfg, "preserve", 5)
	if params.NumCores != 5 {
		t.Errorf("Expected -cores to override config, got %d", params.NumCores)
	}
	if params.RelabelMode != relabel.ModePreserve {
		t.Errorf("Expected -relabel to override config, got %q", params.RelabelMode)
	}

	cfg.Reconstruction.NumCores = 0
	if params = reconstructParams(cfg, "", 0); params.NumCores != runtime.NumCPU() {
		t.Errorf("Expected %d cores when unset, got %d", runtime.NumCPU(), params.NumCores)
	}
}

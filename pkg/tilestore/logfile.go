package tilestore

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"labelstitch/internal/models"
)

// LogFileName is the name of the reconstruction log inside a tile directory.
const LogFileName = "log_data.json"

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func logValidator() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = jsonschema.CompileString("log_data.schema.json", logSchema)
	})
	return compiledSchema, schemaErr
}

// WriteLog stores log as indented JSON in dir.
func WriteLog(dir string, log *models.ReconstructionLog) error {
	if err := log.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(log, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling reconstruction log")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "creating %s", dir)
	}
	path := filepath.Join(dir, LogFileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	return nil
}

// ReadLog loads and validates the reconstruction log in dir. A log that does
// not match the schema or is internally inconsistent yields a
// ReconstructionError.
func ReadLog(dir string) (*models.ReconstructionLog, error) {
	path := filepath.Join(dir, LogFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return ParseLog(data)
}

// ParseLog decodes and validates a reconstruction log.
func ParseLog(data []byte) (*models.ReconstructionLog, error) {
	sch, err := logValidator()
	if err != nil {
		return nil, errors.Wrap(err, "compiling log schema")
	}
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, models.NewReconstructionError("log is not valid JSON: %v", err)
	}
	if err := sch.Validate(doc); err != nil {
		return nil, models.NewReconstructionError("log does not match schema: %v", err)
	}
	var log models.ReconstructionLog
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&log); err != nil {
		return nil, models.NewReconstructionError("decoding log: %v", err)
	}
	if err := log.Validate(); err != nil {
		return nil, err
	}
	return &log, nil
}

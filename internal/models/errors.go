package models

import "fmt"

// ConfigurationError reports invalid or contradictory tiling parameters.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string { return "configuration error: " + e.Msg }

// NewConfigurationError formats a ConfigurationError.
func NewConfigurationError(format string, args ...interface{}) error {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

// ValidationError reports a tensor with the wrong rank, axis order or
// label channel count.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return "validation error: " + e.Msg }

// NewValidationError formats a ValidationError.
func NewValidationError(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ReconstructionError reports a log that disagrees with the tensor it is
// supposed to invert.
type ReconstructionError struct {
	Msg string
}

func (e *ReconstructionError) Error() string { return "reconstruction error: " + e.Msg }

// NewReconstructionError formats a ReconstructionError.
func NewReconstructionError(format string, args ...interface{}) error {
	return &ReconstructionError{Msg: fmt.Sprintf(format, args...)}
}

// MissingTile identifies an expected tile file that was not found. It is a
// warning, not an error: the region stays background.
type MissingTile struct {
	FOV   string
	Row   int
	Col   int
	Slice int
	Path  string
}

func (m MissingTile) String() string {
	return fmt.Sprintf("missing tile fov=%s row=%d col=%d slice=%d (%s)", m.FOV, m.Row, m.Col, m.Slice, m.Path)
}

// Package logging provides the leveled logger shared by the labelstitch
// packages. Messages go to stderr unless a log file is configured, in which
// case they go to a size-rotated file.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/natefinch/lumberjack"
)

// Config selects where log output goes.
type Config struct {
	// Logfile is the path of the rotating log file. Empty means stderr.
	Logfile string `yaml:"logfile" toml:"logfile"`

	// MaxSize is the size in megabytes at which the log file is rotated.
	MaxSize int `yaml:"maxLogSize" toml:"max_log_size"`

	// MaxAge is the number of days rotated files are kept.
	MaxAge int `yaml:"maxLogAge" toml:"max_log_age"`

	// Verbose enables Debug messages.
	Verbose bool `yaml:"verbose" toml:"verbose"`
}

var (
	mu      sync.Mutex
	logger  = log.New(os.Stderr, "", log.LstdFlags)
	rotator *lumberjack.Logger
	verbose bool
)

// Setup applies a Config. It may be called more than once; a previously
// opened log file is closed.
func Setup(c *Config) {
	mu.Lock()
	defer mu.Unlock()
	if rotator != nil {
		rotator.Close()
		rotator = nil
	}
	if c == nil {
		logger.SetOutput(os.Stderr)
		verbose = false
		return
	}
	verbose = c.Verbose
	if c.Logfile == "" {
		logger.SetOutput(os.Stderr)
		return
	}
	rotator = &lumberjack.Logger{
		Filename: c.Logfile,
		MaxSize:  c.MaxSize, // megabytes
		MaxAge:   c.MaxAge,  // days
	}
	logger.SetOutput(rotator)
}

// SetOutput redirects log output, mostly for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger.SetOutput(w)
}

// SetVerbose toggles Debug output.
func SetVerbose(v bool) {
	mu.Lock()
	verbose = v
	mu.Unlock()
}

// Shutdown closes the log file if there is one.
func Shutdown() {
	mu.Lock()
	defer mu.Unlock()
	if rotator != nil {
		rotator.Close()
		rotator = nil
		logger.SetOutput(os.Stderr)
	}
}

func output(level, format string, args ...interface{}) {
	logger.Output(3, " "+level+" "+fmt.Sprintf(format, args...))
}

// Debugf logs at DEBUG level when verbose output is enabled.
func Debugf(format string, args ...interface{}) {
	mu.Lock()
	v := verbose
	mu.Unlock()
	if v {
		output("DEBUG", format, args...)
	}
}

// Infof logs at INFO level.
func Infof(format string, args ...interface{}) {
	output("INFO", format, args...)
}

// Warningf logs at WARNING level.
func Warningf(format string, args ...interface{}) {
	output("WARNING", format, args...)
}

// Errorf logs at ERROR level.
func Errorf(format string, args ...interface{}) {
	output("ERROR", format, args...)
}

// Package config holds the settings of a single backup run. Values come from
// built-in defaults, an optional YAML file and finally the command line flags
// the user explicitly set, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"pixelgardenlabs.io/wbck/pkg/buildinfo"
	"pixelgardenlabs.io/wbck/pkg/plog"
	"pixelgardenlabs.io/wbck/pkg/util"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

var validLogLevels = []string{"debug", "notice", "info", "warn", "error"}

type PerformanceConfig struct {
	// Workers is the size of the item worker pool; 1 runs sequentially.
	Workers      int `yaml:"workers"`
	BufferSizeKB int `yaml:"bufferSizeKB"`
}

type Config struct {
	Version   string `yaml:"version"`
	Source    string `yaml:"source"`
	Target    string `yaml:"target"`
	Reference string `yaml:"reference,omitempty"`
	// IgnoreFile is the pattern file; empty means the default file in the
	// source root, if there is one.
	IgnoreFile    string            `yaml:"ignoreFile,omitempty"`
	LogLevel      string            `yaml:"logLevel"`
	DryRun        bool              `yaml:"dryRun"`
	VerifyContent bool              `yaml:"verifyContent"`
	Metrics       bool              `yaml:"metrics"`
	Performance   PerformanceConfig `yaml:"performance"`
}

// NewDefault returns a Config with every optional setting at its default.
func NewDefault() Config {
	return Config{
		Version:  buildinfo.Version,
		LogLevel: "notice", // Action lines are shown by default.
		Performance: PerformanceConfig{
			Workers:      1,
			BufferSizeKB: 256,
		},
	}
}

// Load reads a YAML configuration file on top of the defaults. Fields missing
// from the file keep their default values.
func Load(path string) (Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("error opening config file %s: %w", path, err)
	}
	defer file.Close()

	plog.Debug("Loading configuration", "path", path)
	config := NewDefault()
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&config); err != nil {
		return Config{}, fmt.Errorf("error parsing config file %s: %w", path, err)
	}

	// The file's version field is informational only.
	config.Version = buildinfo.Version
	return config, nil
}

// MergeConfigWithFlags overlays the values of the flags the user explicitly
// set on top of base.
func MergeConfigWithFlags(base Config, setFlags map[string]any) Config {
	merged := base

	for name, value := range setFlags {
		switch name {
		case "source":
			merged.Source = value.(string)
		case "target":
			merged.Target = value.(string)
		case "ref":
			merged.Reference = value.(string)
		case "ignore-file":
			merged.IgnoreFile = value.(string)
		case "log-level":
			merged.LogLevel = value.(string)
		case "dry-run":
			merged.DryRun = value.(bool)
		case "verify-content":
			merged.VerifyContent = value.(bool)
		case "metrics":
			merged.Metrics = value.(bool)
		case "workers":
			merged.Performance.Workers = value.(int)
		case "buffer-size-kb":
			merged.Performance.BufferSizeKB = value.(int)
		default:
			plog.Debug("unhandled flag in MergeConfigWithFlags", "flag", name)
		}
	}
	return merged
}

// Validate checks the configuration for logical errors and normalizes the
// paths. It does not touch the filesystem; existence checks belong to
// preflight.
func (c *Config) Validate() error {
	if c.Source == "" {
		return fmt.Errorf("%w: source path cannot be empty", ErrInvalidConfig)
	}
	if c.Target == "" {
		return fmt.Errorf("%w: target path cannot be empty", ErrInvalidConfig)
	}

	var err error
	if c.Source, err = cleanPath(c.Source); err != nil {
		return fmt.Errorf("could not expand source path: %w", err)
	}
	if c.Target, err = cleanPath(c.Target); err != nil {
		return fmt.Errorf("could not expand target path: %w", err)
	}
	if c.Reference != "" {
		if c.Reference, err = cleanPath(c.Reference); err != nil {
			return fmt.Errorf("could not expand reference path: %w", err)
		}
	}
	if c.IgnoreFile != "" {
		if c.IgnoreFile, err = cleanPath(c.IgnoreFile); err != nil {
			return fmt.Errorf("could not expand ignore file path: %w", err)
		}
	}

	if c.Source == c.Target {
		return fmt.Errorf("%w: source and target cannot be the same path", ErrInvalidConfig)
	}
	if c.Reference != "" && c.Reference == c.Target {
		return fmt.Errorf("%w: reference and target cannot be the same path", ErrInvalidConfig)
	}
	if c.Performance.Workers < 1 {
		return fmt.Errorf("%w: performance.workers must be at least 1", ErrInvalidConfig)
	}
	if c.Performance.BufferSizeKB < 1 {
		return fmt.Errorf("%w: performance.bufferSizeKB must be at least 1", ErrInvalidConfig)
	}

	level := strings.ToLower(c.LogLevel)
	valid := false
	for _, l := range validLogLevels {
		if level == l {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("%w: log level %q must be one of %s", ErrInvalidConfig, c.LogLevel, strings.Join(validLogLevels, ", "))
	}
	c.LogLevel = level
	return nil
}

// BufferSize returns the I/O buffer size in bytes.
func (c *Config) BufferSize() int {
	return c.Performance.BufferSizeKB * 1024
}

// LogSummary prints a summary of the effective configuration.
func (c *Config) LogSummary() {
	logArgs := []any{
		"version", c.Version,
		"log_level", c.LogLevel,
		"source", c.Source,
		"target", c.Target,
		"dry_run", c.DryRun,
		"verify_content", c.VerifyContent,
		"workers", c.Performance.Workers,
		"buffer_size_kb", c.Performance.BufferSizeKB,
		"metrics", c.Metrics,
	}
	if c.Reference != "" {
		logArgs = append(logArgs, "reference", c.Reference)
	}
	if c.IgnoreFile != "" {
		logArgs = append(logArgs, "ignore_file", c.IgnoreFile)
	}
	plog.Info("Configuration loaded", logArgs...)
}

func cleanPath(p string) (string, error) {
	expanded, err := util.ExpandPath(p)
	if err != nil {
		return "", err
	}
	return filepath.Clean(expanded), nil
}

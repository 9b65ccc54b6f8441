package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/memristive.report/internal/ivsweep"
)

// DefaultConfigPath is the path to the shipped classification table.
// It mirrors the built-in v1.4 weights and thresholds.
const DefaultConfigPath = "config/classification.defaults.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Format names a configuration encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatForPath picks the encoding from a file extension.
func FormatForPath(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}
}

// ClassificationConfig is the on-disk form of a weights table. Rules and
// thresholds omitted from the file keep their built-in defaults, so partial
// files are safe.
type ClassificationConfig struct {
	Version    string             `json:"version" yaml:"version"`
	Weights    map[string]float64 `json:"weights,omitempty" yaml:"weights,omitempty"`
	Thresholds ivsweep.Thresholds `json:"thresholds" yaml:"thresholds"`
}

// DefaultClassificationConfig returns a config carrying the built-in version
// and thresholds and no weight overrides.
func DefaultClassificationConfig() *ClassificationConfig {
	return &ClassificationConfig{
		Version:    ivsweep.DefaultWeightsVersion,
		Thresholds: ivsweep.DefaultThresholds(),
	}
}

// LoadClassificationConfig loads a config from a JSON or YAML file.
// The file is validated to ensure it has a known extension and is under the
// max file size.
func LoadClassificationConfig(path string) (*ClassificationConfig, error) {
	cleanPath := filepath.Clean(path)
	format, err := FormatForPath(cleanPath)
	if err != nil {
		return nil, err
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseClassificationConfig(data, format)
}

// ParseClassificationConfig decodes and validates a config. Unknown keys are
// rejected in both encodings.
func ParseClassificationConfig(data []byte, format Format) (*ClassificationConfig, error) {
	if len(data) > maxFileSize {
		return nil, fmt.Errorf("config too large: %d bytes (max %d)", len(data), maxFileSize)
	}

	cfg := DefaultClassificationConfig()
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the shipped table from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *ClassificationConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadClassificationConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that every weight names a known rule and that the
// thresholds are usable.
func (c *ClassificationConfig) Validate() error {
	if strings.TrimSpace(c.Version) == "" {
		return fmt.Errorf("version must not be empty")
	}
	if _, err := ivsweep.NewWeights(c.Version, c.Weights); err != nil {
		return err
	}
	return c.Thresholds.Validate()
}

// ClassifierConfig converts the file form into the classifier's explicit
// configuration.
func (c *ClassificationConfig) ClassifierConfig() (ivsweep.Config, error) {
	w, err := ivsweep.NewWeights(c.Version, c.Weights)
	if err != nil {
		return ivsweep.Config{}, err
	}
	return ivsweep.Config{Weights: w, Thresholds: c.Thresholds}, nil
}

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Default values applied when a field is absent from the config file.
const (
	DefaultVisibleThreshold = 0.5
	DefaultClickRadiusPx    = 20.0
	DefaultMaxPoints        = 256
	DefaultOutputDir        = "./outputs"
	DefaultAutosaveInterval = "60s"
)

// EditorConfig holds tuning parameters for the trajectory editor. Fields are
// pointers so that a partial JSON file only overrides what it names; the Get*
// accessors supply defaults for everything else.
type EditorConfig struct {
	// VisibleThreshold is the confidence at or above which an ingested
	// model observation is treated as visible.
	VisibleThreshold *float64 `json:"visible_threshold,omitempty"`

	// ClickRadiusPx is the maximum pixel distance for matching a UI click
	// to an existing point.
	ClickRadiusPx *float64 `json:"click_radius_px,omitempty"`

	// MaxPoints caps the number of points a single session may hold.
	MaxPoints *int `json:"max_points,omitempty"`

	// OutputDir is where exported artifacts are written by default.
	OutputDir *string `json:"output_dir,omitempty"`

	// AutosaveInterval is a duration string like "60s"; empty disables autosave.
	AutosaveInterval *string `json:"autosave_interval,omitempty"`
}

// EmptyEditorConfig returns an EditorConfig with all fields unset.
func EmptyEditorConfig() *EditorConfig {
	return &EditorConfig{}
}

// LoadEditorConfig loads an EditorConfig from a JSON file. The file must have
// a .json extension and be under the size cap. Fields omitted from the JSON
// retain their defaults, so partial configs are safe.
func LoadEditorConfig(path string) (*EditorConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyEditorConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *EditorConfig) Validate() error {
	if c.VisibleThreshold != nil {
		if *c.VisibleThreshold < 0 || *c.VisibleThreshold > 1 {
			return fmt.Errorf("visible_threshold must be between 0 and 1, got %f", *c.VisibleThreshold)
		}
	}

	if c.ClickRadiusPx != nil && *c.ClickRadiusPx <= 0 {
		return fmt.Errorf("click_radius_px must be positive, got %f", *c.ClickRadiusPx)
	}

	if c.MaxPoints != nil && *c.MaxPoints <= 0 {
		return fmt.Errorf("max_points must be positive, got %d", *c.MaxPoints)
	}

	if c.AutosaveInterval != nil && *c.AutosaveInterval != "" {
		if _, err := time.ParseDuration(*c.AutosaveInterval); err != nil {
			return fmt.Errorf("invalid autosave_interval '%s': %w", *c.AutosaveInterval, err)
		}
	}

	return nil
}

// GetVisibleThreshold returns the visible threshold or its default.
func (c *EditorConfig) GetVisibleThreshold() float64 {
	if c != nil && c.VisibleThreshold != nil {
		return *c.VisibleThreshold
	}
	return DefaultVisibleThreshold
}

// GetClickRadiusPx returns the click match radius or its default.
func (c *EditorConfig) GetClickRadiusPx() float64 {
	if c != nil && c.ClickRadiusPx != nil {
		return *c.ClickRadiusPx
	}
	return DefaultClickRadiusPx
}

// GetMaxPoints returns the per-session point cap or its default.
func (c *EditorConfig) GetMaxPoints() int {
	if c != nil && c.MaxPoints != nil {
		return *c.MaxPoints
	}
	return DefaultMaxPoints
}

// GetOutputDir returns the artifact output directory or its default.
func (c *EditorConfig) GetOutputDir() string {
	if c != nil && c.OutputDir != nil && *c.OutputDir != "" {
		return *c.OutputDir
	}
	return DefaultOutputDir
}

// GetAutosaveInterval returns the parsed autosave interval, or zero when
// autosave is disabled.
func (c *EditorConfig) GetAutosaveInterval() time.Duration {
	raw := DefaultAutosaveInterval
	if c != nil && c.AutosaveInterval != nil {
		raw = *c.AutosaveInterval
	}
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0
	}
	return d
}

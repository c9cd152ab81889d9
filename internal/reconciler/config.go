package reconciler

import (
	"fmt"

	"deduction-matching-service/internal/matcher"
	"deduction-matching-service/internal/models"
)

// Config holds configuration options for the matching service
type Config struct {
	// Thresholds seeds the service's threshold store
	Thresholds models.Thresholds `mapstructure:"thresholds"`

	// MaxConcurrency bounds the goroutines matching deductions of one batch
	MaxConcurrency int `mapstructure:"max_concurrency"`

	// ProgressReporting logs batch progress through a ProgressTracker
	ProgressReporting bool `mapstructure:"progress_reporting"`

	// Matching tunes the scoring engine
	Matching *matcher.MatchingConfig `mapstructure:"matching"`

	// Preprocessing controls candidate cleaning before each call
	Preprocessing *PreprocessingConfig `mapstructure:"preprocessing"`
}

// DefaultConfig returns a default configuration for the matching service
func DefaultConfig() *Config {
	return &Config{
		Thresholds:        models.DefaultThresholds(),
		MaxConcurrency:    4,
		ProgressReporting: false,
		Matching:          matcher.DefaultMatchingConfig(),
		Preprocessing:     DefaultPreprocessingConfig(),
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("max concurrency must be positive, got %d", c.MaxConcurrency)
	}

	if err := c.Thresholds.Validate(); err != nil {
		return fmt.Errorf("invalid thresholds: %w", err)
	}

	if c.Matching != nil {
		if err := c.Matching.Validate(); err != nil {
			return fmt.Errorf("invalid matching config: %w", err)
		}
	}

	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}

	clone := *c
	clone.Matching = c.Matching.Clone()
	if c.Preprocessing != nil {
		p := *c.Preprocessing
		clone.Preprocessing = &p
	}
	return &clone
}

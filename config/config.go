// Package config holds runtime configuration and distributor profiles.
package config

import (
	"fmt"
	"time"
)

// Config holds process-wide settings for the extractor binary.
type Config struct {
	OutputDir      string
	MetricsAddr    string
	ProfilesFile   string
	JobTimeout     time.Duration
	Verbose        bool
	PartialExports bool
}

// DefaultConfig returns conservative defaults.
func DefaultConfig() *Config {
	return &Config{
		OutputDir:      "output",
		MetricsAddr:    "",
		ProfilesFile:   "distributors.yaml",
		JobTimeout:     30 * time.Minute,
		Verbose:        false,
		PartialExports: true,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.OutputDir == "" {
		return fmt.Errorf("output directory cannot be empty")
	}
	if c.ProfilesFile == "" {
		return fmt.Errorf("profiles file cannot be empty")
	}
	if c.JobTimeout <= 0 {
		return fmt.Errorf("job timeout must be positive")
	}
	return nil
}

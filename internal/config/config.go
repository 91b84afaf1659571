package config

import (
	"fmt"
	"time"
)

// Target labels the filter policy can be pointed at.
const (
	TargetAdult = "adult"
	TargetChild = "child"
)

// Processing resolution presets. The capture source downscales the grabbed
// screen to one of these widths before detection runs; height follows the
// screen aspect ratio.
const (
	ResolutionLow    = "low"
	ResolutionMedium = "medium"
	ResolutionHigh   = "high"
)

var resolutionWidths = map[string]int{
	ResolutionLow:    360,
	ResolutionMedium: 480,
	ResolutionHigh:   640,
}

// Config holds runtime configuration for the capture/obscure pipeline.
// Fields may be loaded from a TOML file and overridden by command-line flags.
type Config struct {
	TargetLabel               string
	BlurStrength              int
	ProcessingResolutionWidth string
	AdaptiveCadence           bool
	PreferHardwareAccel       bool

	BaseCadenceHz       float64
	BoostCadenceHz      float64
	BoostWindow         time.Duration
	ConfidenceThreshold float64

	CascadeModelPath string
	ClassifierPath   string

	LogLevel  string
	DebugMode bool
}

// DefaultConfig returns a Config populated with standard defaults.
func DefaultConfig() Config {
	return Config{
		TargetLabel:               TargetChild,
		BlurStrength:              6,
		ProcessingResolutionWidth: ResolutionMedium,
		AdaptiveCadence:           true,
		PreferHardwareAccel:       true,
		BaseCadenceHz:             1.0,
		BoostCadenceHz:            2.0,
		BoostWindow:               2 * time.Second,
		ConfidenceThreshold:       0.6,
		LogLevel:                  "info",
	}
}

// Validate checks the configuration for errors and normalizes values to
// safe ranges.
func (c *Config) Validate() error {
	if c.TargetLabel != TargetAdult && c.TargetLabel != TargetChild {
		return fmt.Errorf("target label must be %q or %q, got %q",
			TargetAdult, TargetChild, c.TargetLabel)
	}

	if c.BlurStrength < 1 {
		c.BlurStrength = 1
	}
	if c.BlurStrength > 10 {
		c.BlurStrength = 10
	}

	if _, ok := resolutionWidths[c.ProcessingResolutionWidth]; !ok {
		return fmt.Errorf("unknown processing resolution %q", c.ProcessingResolutionWidth)
	}

	if c.BaseCadenceHz <= 0 {
		return fmt.Errorf("base cadence must be positive")
	}
	if c.BoostCadenceHz < c.BaseCadenceHz {
		c.BoostCadenceHz = c.BaseCadenceHz
	}
	if c.BoostWindow <= 0 {
		c.BoostWindow = 2 * time.Second
	}

	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold must be in [0,1], got %v", c.ConfidenceThreshold)
	}

	return nil
}

// ProcessingWidth resolves the configured resolution preset to pixels.
func (c *Config) ProcessingWidth() int {
	return resolutionWidths[c.ProcessingResolutionWidth]
}

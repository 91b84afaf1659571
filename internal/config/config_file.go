package config

import (
	"os"
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to keep the
// TOML surface friendly.
type FileConfig struct {
	TargetLabel               string  `toml:"target_label"`
	BlurStrength              int     `toml:"blur_strength"`
	ProcessingResolutionWidth string  `toml:"processing_resolution_width"`
	AdaptiveCadence           *bool   `toml:"adaptive_cadence"`
	PreferHardwareAccel       *bool   `toml:"prefer_hardware_acceleration"`
	BaseCadenceHz             float64 `toml:"base_cadence_hz"`
	BoostCadenceHz            float64 `toml:"boost_cadence_hz"`
	BoostWindow               string  `toml:"boost_window"`
	ConfidenceThreshold       float64 `toml:"confidence_threshold"`
	CascadeModelPath          string  `toml:"cascade_model_path"`
	ClassifierPath            string  `toml:"classifier_path"`
	LogLevel                  string  `toml:"log_level"`
	DebugMode                 *bool   `toml:"debug_mode"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.screenveil/config.toml if the user home
// directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".screenveil", "config.toml")
	}
	return ""
}

// FileExists reports whether path names an existing regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// Flags the user set explicitly (the changed map) win over file values.
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	setString := func(flag, v string, dst *string) {
		if v != "" && !changed[flag] {
			*dst = v
		}
	}
	setInt := func(flag string, v int, dst *int) {
		if v != 0 && !changed[flag] {
			*dst = v
		}
	}
	setFloat := func(flag string, v float64, dst *float64) {
		if v != 0 && !changed[flag] {
			*dst = v
		}
	}
	setBool := func(flag string, v *bool, dst *bool) {
		if v != nil && !changed[flag] {
			*dst = *v
		}
	}

	setString("target-label", fc.TargetLabel, &cfg.TargetLabel)
	setInt("blur-strength", fc.BlurStrength, &cfg.BlurStrength)
	setString("resolution", fc.ProcessingResolutionWidth, &cfg.ProcessingResolutionWidth)
	setBool("adaptive-cadence", fc.AdaptiveCadence, &cfg.AdaptiveCadence)
	setBool("prefer-hw-accel", fc.PreferHardwareAccel, &cfg.PreferHardwareAccel)
	setFloat("base-cadence", fc.BaseCadenceHz, &cfg.BaseCadenceHz)
	setFloat("boost-cadence", fc.BoostCadenceHz, &cfg.BoostCadenceHz)
	setFloat("confidence-threshold", fc.ConfidenceThreshold, &cfg.ConfidenceThreshold)
	setString("cascade-model", fc.CascadeModelPath, &cfg.CascadeModelPath)
	setString("classifier-model", fc.ClassifierPath, &cfg.ClassifierPath)
	setString("log-level", fc.LogLevel, &cfg.LogLevel)
	setBool("debug", fc.DebugMode, &cfg.DebugMode)

	if fc.BoostWindow != "" && !changed["boost-window"] {
		d, err := time.ParseDuration(fc.BoostWindow)
		if err != nil {
			return err
		}
		cfg.BoostWindow = d
	}

	return nil
}

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/spachava753/trialkit/internal/models"
)

// DefaultSessionConfig returns a SessionConfig with default values.
func DefaultSessionConfig() models.SessionConfig {
	return models.SessionConfig{
		OutputDir: "sessions",
		LogLevel:  "info",
		InputMode: models.InputRaw,
	}
}

// LoadSessionConfig loads and parses a session.yaml file.
func LoadSessionConfig(path string) (models.SessionConfig, error) {
	cfg := DefaultSessionConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading session config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing session config: %w", err)
	}

	if len(cfg.Timeline) == 0 {
		return cfg, fmt.Errorf("timeline: at least one trial is required")
	}
	for i, entry := range cfg.Timeline {
		if (entry.Trial == "") == (entry.Block == "") {
			return cfg, fmt.Errorf("timeline[%d]: exactly one of 'trial' or 'block' is required", i)
		}
		if entry.Repetitions < 0 {
			return cfg, fmt.Errorf("timeline[%d]: repetitions must not be negative", i)
		}
	}

	switch cfg.InputMode {
	case "", models.InputRaw, models.InputLine:
	default:
		return cfg, fmt.Errorf("input_mode: unknown mode %q", cfg.InputMode)
	}

	if cfg.Trigger != nil && cfg.Trigger.Device == "" {
		return cfg, fmt.Errorf("trigger: 'device' is required")
	}

	// Apply defaults for missing values
	if cfg.OutputDir == "" {
		cfg.OutputDir = "sessions"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.InputMode == "" {
		cfg.InputMode = models.InputRaw
	}
	for i := range cfg.Timeline {
		if cfg.Timeline[i].Repetitions == 0 {
			cfg.Timeline[i].Repetitions = 1
		}
	}

	return cfg, nil
}

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Load reads and merges configuration from global and project paths.
// Precedence, highest first: project config, global config, defaults.
// Missing files are not errors; malformed JSON is.
func Load(globalPath, projectPath string) (*Config, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	return cfg, nil
}

// LoadDefault loads configuration from the conventional paths.
// Global: ~/.planrun/config.json
// Project: .planrun/config.json (relative to cwd)
func LoadDefault() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}

	globalPath := filepath.Join(homeDir, ".planrun", "config.json")
	projectPath := filepath.Join(".planrun", "config.json")

	return Load(globalPath, projectPath)
}

// mergeConfigFile overlays the settings found in a JSON file onto base.
// Only fields present in the file take effect; absent fields keep the
// values already merged.
func mergeConfigFile(base *Config, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	// Unmarshal over a copy of the current state so absent fields keep
	// their merged values, then copy back.
	merged := *base
	if err := json.Unmarshal(data, &merged); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	*base = merged

	return nil
}

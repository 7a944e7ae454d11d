package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/coral-mesh/paramcapture/internal/constants"
)

// DefaultPath returns the config file looked up when none is given:
// $PARAMCAPTURE_CONFIG if set, otherwise ~/.paramcapture/paramcapture.yaml.
func DefaultPath() string {
	if path := os.Getenv(constants.EnvPrefix + "CONFIG"); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, constants.DefaultDir, constants.ConfigFile)
}

// Load reads the configuration. An explicit path must exist; when path is
// empty the default location is tried and silently skipped if absent.
// Environment variables override file values, and the result is validated.
func Load(path string) (*CaptureConfig, error) {
	cfg := DefaultCaptureConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- operator supplied config path
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !explicit:
		default:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	if err := LoadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if cfg.CatalogPath == "" && path != "" {
		cfg.CatalogPath = filepath.Join(filepath.Dir(path), constants.DefaultCatalogFile)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path as YAML, creating parent directories.
func Save(path string, cfg *CaptureConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}

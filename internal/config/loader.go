package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileName is the config file looked up in each candidate directory
const FileName = "painter-bridge.jsonc"

// ErrConfigNotFound is returned by FindConfigPath when no candidate exists
var ErrConfigNotFound = errors.New("config file not found")

// FindConfigPath returns the path to painter-bridge.jsonc using precedence:
// 1. explicit path (if specified)
// 2. ./config/painter-bridge.jsonc (project-local)
// 3. ~/.painter-bridge/config/painter-bridge.jsonc (user global)
func FindConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("%w: %s", ErrConfigNotFound, explicit)
		}
		return absOrSelf(explicit), nil
	}

	candidates := []string{
		filepath.Join("config", FileName),
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(homeDir, ".painter-bridge", "config", FileName))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return absOrSelf(path), nil
		}
	}

	return "", fmt.Errorf("%w; tried: %v", ErrConfigNotFound, candidates)
}

func absOrSelf(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

// Load finds and loads the config file. A missing file yields the defaults
// unless an explicit path was given.
func Load(explicit string) (*UnifiedConfig, string, error) {
	path, err := FindConfigPath(explicit)
	if err != nil {
		if explicit == "" && errors.Is(err, ErrConfigNotFound) {
			return Default(), "", nil
		}
		return nil, "", err
	}

	cfg, err := LoadUnifiedConfig(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

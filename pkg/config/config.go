// Package config provides YAML-based configuration loading with environment variable expansion.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

// Validator is an interface for configuration validation.
type Validator interface {
	Validate() error
}

// Load loads configuration from a YAML file with environment variable expansion.
// A leading "~" in filename is expanded to the home directory.
func Load[T any](filename string, target *T) error {
	path, err := homedir.Expand(filename)
	if err != nil {
		return fmt.Errorf("failed to resolve config path %s: %w", filename, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expandedData := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expandedData), target); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return validate(target)
}

// LoadOptional is Load for a file that may be absent: a missing file
// leaves target as it is (typically pre-filled with defaults) and only
// validates it.
func LoadOptional[T any](filename string, target *T) error {
	path, err := homedir.Expand(filename)
	if err != nil {
		return fmt.Errorf("failed to resolve config path %s: %w", filename, err)
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return validate(target)
	}
	return Load(path, target)
}

func validate[T any](target *T) error {
	if validator, ok := any(target).(Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("config validation failed: %w", err)
		}
	}
	return nil
}

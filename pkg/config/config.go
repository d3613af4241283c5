// Package config provides YAML-based configuration loading with environment
// variable expansion.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Validator is an interface for configuration validation.
type Validator interface {
	Validate() error
}

// Load loads configuration from a YAML file with environment variable
// expansion. Validation is deliberately separate: callers that layer CLI
// flags or env overrides on top call Validate after the last override.
func Load[T any](filename string, target *T) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), target); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}

	return nil
}

// Validate runs the target's Validate method when it implements Validator.
func Validate[T any](target *T) error {
	if v, ok := any(target).(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("config validation failed: %w", err)
		}
	}
	return nil
}

// LoadValidated loads and immediately validates a configuration file.
func LoadValidated[T any](filename string, target *T) error {
	if err := Load(filename, target); err != nil {
		return err
	}
	return Validate(target)
}

// LoadWithDefaults loads configuration with fallback to a default file.
func LoadWithDefaults[T any](filename, defaultFile string, target *T) error {
	if _, err := os.Stat(filename); errors.Is(err, os.ErrNotExist) {
		if defaultFile != "" {
			return LoadValidated(defaultFile, target)
		}
		return fmt.Errorf("config file not found: %s", filename)
	}
	return LoadValidated(filename, target)
}

// MustLoad loads and validates configuration, panicking on failure.
func MustLoad[T any](filename string, target *T) {
	if err := LoadValidated(filename, target); err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

var (
	// ErrNoAPIKey is returned when no API key is configured.
	ErrNoAPIKey = errors.New("no Anthropic API key configured")
	// ErrInvalidAPIKey is returned when a key is not shaped like an Anthropic key.
	ErrInvalidAPIKey = errors.New("invalid API key format")
)

const (
	apiKeyPrefix    = "sk-ant-"
	minAPIKeyLength = 20
)

// GetAPIKey returns the Anthropic API key from the configuration.
// It checks in order: environment variable, config file.
func GetAPIKey(cfg *Config) (string, error) {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		return key, nil
	}
	if key, ok := configuredKey(cfg); ok {
		return key, nil
	}
	return "", ErrNoAPIKey
}

// configuredKey expands the config file key, ignoring unresolved references.
func configuredKey(cfg *Config) (string, bool) {
	if cfg == nil || cfg.Anthropic.APIKey == "" {
		return "", false
	}
	key := os.ExpandEnv(cfg.Anthropic.APIKey)
	if key == "" || strings.HasPrefix(key, "${") {
		return "", false
	}
	return key, true
}

// ValidateAPIKey checks the shape of key without contacting the API, so a
// mistyped key fails before any agent is started.
func ValidateAPIKey(key string) error {
	switch {
	case key == "":
		return ErrNoAPIKey
	case !strings.HasPrefix(key, apiKeyPrefix):
		return fmt.Errorf("%w: expected %q prefix", ErrInvalidAPIKey, apiKeyPrefix)
	case len(key) < minAPIKeyLength:
		return fmt.Errorf("%w: key too short", ErrInvalidAPIKey)
	}
	return nil
}

// MaskAPIKey returns a masked version of the API key for display.
// Shows the first 7 characters (sk-ant-) and last 4 characters.
func MaskAPIKey(key string) string {
	if key == "" {
		return "(not set)"
	}

	if len(key) <= 15 {
		return "***"
	}
	return key[:7] + "..." + key[len(key)-4:]
}

// KeySource represents where an API key was loaded from.
type KeySource string

const (
	KeySourceEnv     KeySource = "environment"
	KeySourceBedrock KeySource = "aws_bedrock"
	KeySourceConfig  KeySource = "config_file"
	KeySourceNone    KeySource = "none"
)

// GetAPIKeySource returns where the API key was sourced from.
func GetAPIKeySource(cfg *Config) KeySource {
	if cfg != nil && cfg.Anthropic.Bedrock {
		return KeySourceBedrock
	}
	if os.Getenv("ANTHROPIC_API_KEY") != "" {
		return KeySourceEnv
	}

	if _, ok := configuredKey(cfg); ok {
		return KeySourceConfig
	}

	return KeySourceNone
}

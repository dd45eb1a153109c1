package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// LoadGatewayConfig loads, defaults and validates a gateway configuration
// file.
func LoadGatewayConfig(path string) (*GatewayConfig, error) {
	var cfg GatewayConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid gateway config %s: %w", path, err)
	}

	return &cfg, nil
}

// LoadServiceConfig loads, defaults and validates a service configuration
// file.
func LoadServiceConfig(path string) (*ServiceConfig, error) {
	var cfg ServiceConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid service config %s: %w", path, err)
	}

	return &cfg, nil
}

// LoadGatewayConfigFromReader parses a gateway configuration from a
// reader, applying the same defaulting and validation as the file loader.
func LoadGatewayConfigFromReader(r io.Reader) (*GatewayConfig, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg GatewayConfig
	if err := parseYAML(data, &cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid gateway config: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads a file and parses it into out.
func loadYAML(path string, out interface{}) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path %s: %w", path, err)
	}

	data, err := os.ReadFile(absPath) //nolint:gosec // path is operator-supplied configuration
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return parseYAML(data, out)
}

// parseYAML substitutes environment variables and unmarshals.
func parseYAML(data []byte, out interface{}) error {
	content := substituteEnvVars(string(data))

	if err := yaml.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// substituteEnvVars replaces ${VAR} and ${VAR:-default} patterns with
// environment variable values. "$$" escapes a literal dollar sign.
func substituteEnvVars(content string) string {
	content = strings.ReplaceAll(content, "$$", "\x00ESCAPED_DOLLAR\x00")

	result := envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		defaultValue := ""
		if len(submatches) >= 3 {
			defaultValue = submatches[2]
		}

		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return defaultValue
	})

	return strings.ReplaceAll(result, "\x00ESCAPED_DOLLAR\x00", "$")
}

// ResolveConfigPath resolves a configuration file path, checking common
// locations when the path is relative.
func ResolveConfigPath(path string) (string, error) {
	if filepath.IsAbs(path) {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		return "", fmt.Errorf("config file not found: %s", path)
	}

	if _, err := os.Stat(path); err == nil {
		return filepath.Abs(path)
	}

	commonPaths := []string{
		filepath.Join("configs", path),
		filepath.Join(string(filepath.Separator), "etc", "shopgw", path),
	}

	for _, p := range commonPaths {
		if _, err := os.Stat(p); err == nil {
			return filepath.Abs(p)
		}
	}

	return "", fmt.Errorf("config file not found: %s", path)
}

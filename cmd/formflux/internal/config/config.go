package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the formflux.json / formflux.yaml configuration
type Config struct {
	// Server configuration
	Server *ServerConfig `json:"server,omitempty" yaml:"server,omitempty"`

	// Whether to enable verbose protocol logging
	Verbose bool `json:"verbose,omitempty" yaml:"verbose,omitempty"`

	// Forms declared up front and seeded into the store
	Forms []FormConfig `json:"forms,omitempty" yaml:"forms,omitempty"`
}

// ServerConfig contains live server configuration
type ServerConfig struct {
	// Listen address, e.g. "localhost:8090"
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`

	// WebSocket endpoint prefix
	LivePath string `json:"livePath,omitempty" yaml:"livePath,omitempty"`
}

// FormConfig declares a form with its type and initial data
type FormConfig struct {
	ID      string         `json:"id" yaml:"id"`
	Type    string         `json:"type,omitempty" yaml:"type,omitempty"`
	Initial map[string]any `json:"initial,omitempty" yaml:"initial,omitempty"`
}

// candidate config filenames, in resolution order
var candidates = []string{"formflux.json", "formflux.yaml", "formflux.yml"}

// Load finds and loads the configuration from the given directory,
// returning the resolved path (empty when falling back to defaults).
func Load(projectPath string) (*Config, string, error) {
	for _, name := range candidates {
		configPath := filepath.Join(projectPath, name)
		if _, err := os.Stat(configPath); err != nil {
			continue
		}
		cfg, err := LoadFromFile(configPath)
		if err != nil {
			return nil, configPath, err
		}
		return cfg, configPath, nil
	}
	return DefaultConfig(), "", nil
}

// LoadFromFile loads configuration from a specific file, choosing the
// parser by extension.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", path)
	}

	applyDefaults(&config)
	return &config, nil
}

// Save saves configuration to formflux.json
func Save(config *Config, projectPath string) error {
	configPath := filepath.Join(projectPath, "formflux.json")

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0644)
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: &ServerConfig{
			Addr:     "localhost:8090",
			LivePath: "/formflux/live/",
		},
	}
}

// applyDefaults applies default values to missing configuration
func applyDefaults(config *Config) {
	defaults := DefaultConfig()

	if config.Server == nil {
		config.Server = defaults.Server
		return
	}
	if config.Server.Addr == "" {
		config.Server.Addr = defaults.Server.Addr
	}
	if config.Server.LivePath == "" {
		config.Server.LivePath = defaults.Server.LivePath
	}
}

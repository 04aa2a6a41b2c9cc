package strategy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is a single strategy instance entry in the manifest.
type Config struct {
	ID         string         `yaml:"id"`
	Type       string         `yaml:"type"`
	Symbol     string         `yaml:"symbol"`
	Enabled    bool           `yaml:"enabled"`
	Parameters map[string]any `yaml:"parameters"`
}

// Manifest is the top-level YAML structure a Manager loads.
type Manifest struct {
	Strategies []Config `yaml:"strategies"`
}

// LoadManifest reads and parses a strategy manifest from path.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("strategy: read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("strategy: parse manifest: %w", err)
	}
	return m, nil
}

package cli

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config carries operator defaults loaded from a YAML file. Command
// line flags always win; config values fill in flags left unset.
type Config struct {
	// Database is the default SQLite database path.
	Database string `yaml:"db"`

	// DupsFile is the default duplicate sidecar path.
	DupsFile string `yaml:"dups_file"`

	// Exclude lists basenames skipped during add runs.
	Exclude []string `yaml:"exclude"`

	// FullDupPath keys sidecar entries by absolute path.
	FullDupPath bool `yaml:"full_dup_path"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return &cfg, nil
}

// database resolves the effective database path from a flag value and
// the loaded config.
func (o *RootOptions) database(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if o.Config != nil {
		return o.Config.Database
	}
	return ""
}

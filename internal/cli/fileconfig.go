package cli

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileConfig is the optional client config file at
// ~/.config/parley/config.yaml. Flags and environment override it.
type FileConfig struct {
	ServerURL    string `yaml:"server_url"`
	Token        string `yaml:"token"`
	DefaultMode  string `yaml:"default_mode"`
	DefaultModel string `yaml:"default_model"`
}

// LoadFileConfig reads the config file. A missing or unreadable file is
// not an error, it just yields the zero config.
func LoadFileConfig() FileConfig {
	var cfg FileConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg
	}
	data, err := os.ReadFile(filepath.Join(home, ".config", "parley", "config.yaml"))
	if err != nil {
		return cfg
	}
	_ = yaml.Unmarshal(data, &cfg)
	return cfg
}

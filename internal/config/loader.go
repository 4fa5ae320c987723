package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

const defaultPath = "./config.yaml"

// Load reads configuration from the YAML file named by CONFIG_PATH
// (fallback ./config.yaml) and environment variables.
// Priority: ENV > YAML > defaults (via env-default tags).
func Load() (*Config, error) {
	return LoadFile(os.Getenv("CONFIG_PATH"))
}

// LoadFile is Load with an explicit path. An empty path falls back to
// ./config.yaml, and a missing fallback file means ENV + defaults only.
// A missing explicit path is an error.
func LoadFile(path string) (*Config, error) {
	var cfg Config

	explicitPath := path != ""
	if !explicitPath {
		path = defaultPath
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if explicitPath {
		return nil, fmt.Errorf("config: file %s: %w", path, err)
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	return &cfg, nil
}

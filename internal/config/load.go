package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFilename is the file FindConfigFile looks for.
const DefaultConfigFilename = "webui-gke.yaml"

// ErrConfigNotFound is returned by FindConfigFile when no file exists up the tree.
var ErrConfigNotFound = errors.New("config file not found")

// Load resolves the configuration from defaults, the file at path and the
// environment, then validates it. An empty path skips the file layer.
func Load(path string) (*Config, error) {
	cfg, err := LoadWithoutValidation(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadWithoutValidation is Load minus Validate. The CLI uses it so flags can
// fill required fields before validation runs.
func LoadWithoutValidation(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// FindConfigFile looks for webui-gke.yaml in the current directory and then
// walks up towards the filesystem root.
func FindConfigFile() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}
	return findConfigFrom(cwd)
}

func findConfigFrom(dir string) (string, error) {
	for {
		path := filepath.Join(dir, DefaultConfigFilename)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("%w: %s", ErrConfigNotFound, DefaultConfigFilename)
}

// Save writes cfg as YAML. Secret material is stripped before writing.
func Save(cfg *Config, path string) error {
	out := *cfg
	out.App.APIKey = ""
	out.Storage.SecretKey = ""

	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

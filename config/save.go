package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// SaveConfig writes configuration values back to the global or local file.
type SaveConfig struct {
	// GlobalConfigDir is the directory under ~/.config/ for global config.
	GlobalConfigDir string

	// GlobalConfigFile is the filename. Defaults to "config.yaml".
	GlobalConfigFile string

	// LocalConfigName is the filename for local config in the git root.
	LocalConfigName string

	// ValidKeys lists keys that may be saved. If nil, all keys are accepted.
	ValidKeys []string
}

// EngineSaveConfig returns a SaveConfig matching NewEngineResolver.
func EngineSaveConfig() SaveConfig {
	rc := engineResolverConfig()
	return SaveConfig{
		GlobalConfigDir: rc.GlobalConfigDir,
		LocalConfigName: rc.LocalConfigName,
		ValidKeys:       rc.ValidKeys,
	}
}

func (c SaveConfig) globalPath() (string, error) {
	if c.GlobalConfigDir == "" {
		return "", errors.New("global config directory not configured")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	file := c.GlobalConfigFile
	if file == "" {
		file = "config.yaml"
	}
	return filepath.Join(home, ".config", c.GlobalConfigDir, file), nil
}

// SaveGlobal saves a key-value pair to the global config file.
func (c SaveConfig) SaveGlobal(key, value string) error {
	path, err := c.globalPath()
	if err != nil {
		return err
	}
	return c.save(path, key, value, 0o600)
}

// SaveLocal saves a key-value pair to the local config file in gitRoot.
func (c SaveConfig) SaveLocal(gitRoot, key, value string) error {
	if gitRoot == "" {
		return errors.New("git root not found")
	}
	if c.LocalConfigName == "" {
		return errors.New("local config name not configured")
	}
	// Local config is shared with the repository and should be readable.
	return c.save(filepath.Join(gitRoot, c.LocalConfigName), key, value, 0o644)
}

// SaveFile saves a key-value pair to an explicit file.
func (c SaveConfig) SaveFile(path, key, value string) error {
	return c.save(path, key, value, 0o644)
}

// DeleteGlobalKey removes a key from the global config.
func (c SaveConfig) DeleteGlobalKey(key string) error {
	path, err := c.globalPath()
	if err != nil {
		return err
	}
	existing, err := readYAML(path)
	if err != nil || existing == nil {
		return nil // nothing to delete
	}
	delete(existing, key)
	return writeYAML(path, existing, 0o600)
}

func (c SaveConfig) save(path, key, value string, perm os.FileMode) error {
	if len(c.ValidKeys) > 0 && !slices.Contains(c.ValidKeys, key) {
		return fmt.Errorf("unknown config key: %s\n\nValid keys: %s", key, strings.Join(c.ValidKeys, ", "))
	}
	existing, _ := readYAML(path)
	if existing == nil {
		existing = make(map[string]any)
	}
	existing[key] = parseValue(value)

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return writeYAML(path, existing, perm)
}

func readYAML(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func writeYAML(path string, values map[string]any, perm os.FileMode) error {
	data, err := yaml.Marshal(values)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, perm)
}

// parseValue converts booleans so they round-trip as YAML booleans.
func parseValue(value string) any {
	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	}
	return value
}

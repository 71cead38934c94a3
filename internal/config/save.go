package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Encode renders cfg in the format named by ext (".toml", ".json",
// ".yaml" or ".yml"). Anything else is rendered as TOML.
func Encode(cfg *Config, ext string) ([]byte, error) {
	clone := cfg.Clone()
	switch ext {
	case ".json":
		data, err := json.MarshalIndent(clone, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case ".yaml", ".yml":
		return yaml.Marshal(clone)
	default:
		var buf bytes.Buffer
		buf.WriteString("# gazeinput configuration\n")
		buf.WriteString("# Delays are in microseconds.\n\n")
		if err := toml.NewEncoder(&buf).Encode(clone); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
}

// SaveConfig writes cfg to path in the format implied by its extension.
func SaveConfig(cfg *Config, path string) error {
	data, err := Encode(cfg, filepath.Ext(path))
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

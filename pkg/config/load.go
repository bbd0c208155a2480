package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type codec struct {
	name      string
	marshal   func(v interface{}) ([]byte, error)
	unmarshal func(data []byte, v interface{}) error
}

var (
	yamlCodec = codec{name: "YAML", marshal: yaml.Marshal, unmarshal: yaml.Unmarshal}
	jsonCodec = codec{
		name: "JSON",
		marshal: func(v interface{}) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		},
		unmarshal: json.Unmarshal,
	}
)

func codecFor(path string) (codec, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return yamlCodec, nil
	case ".json":
		return jsonCodec, nil
	default:
		return codec{}, fmt.Errorf("unsupported config file extension %q", ext)
	}
}

// Load reads path over Default(), picking YAML or JSON by extension, and
// validates the result.
func Load(path string) (*Config, error) {
	c, err := codecFor(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := c.read(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path in the format its extension names.
func Save(path string, cfg *Config) error {
	c, err := codecFor(path)
	if err != nil {
		return err
	}
	return c.write(path, cfg)
}

func (c codec) read(path string, target interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s file %s: %w", c.name, path, err)
	}
	if err := c.unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to unmarshal %s %s: %w", c.name, path, err)
	}
	return nil
}

func (c codec) write(path string, v interface{}) error {
	data, err := c.marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", c.name, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s file %s: %w", c.name, path, err)
	}
	return nil
}

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// rawSections are passed verbatim to the runtime or its environment. viper
// folds keys to lower case, so these are decoded a second time with the
// file's own parser.
type rawSections struct {
	RuntimeConfig      map[string]any   `toml:"runtime_config" yaml:"runtime_config" json:"runtime_config"`
	AppContainerConfig map[string]any   `toml:"appcontainer_config" yaml:"appcontainer_config" json:"appcontainer_config"`
	Logging            []map[string]any `toml:"logging" yaml:"logging" json:"logging"`
	Environment        struct {
		Custom map[string]string `toml:"custom" yaml:"custom" json:"custom"`
	} `toml:"environment" yaml:"environment" json:"environment"`
}

func configType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".json":
		return "json"
	default:
		return "toml"
	}
}

func readRawSections(path string) (rawSections, error) {
	var raw rawSections
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return raw, err
	}
	switch configType(path) {
	case "yaml":
		err = yaml.Unmarshal(b, &raw)
	case "json":
		err = json.Unmarshal(b, &raw)
	default:
		err = toml.Unmarshal(b, &raw)
	}
	if err != nil {
		return raw, fmt.Errorf("decode %s: %w", path, err)
	}
	return raw, nil
}

func (c *Config) applyRaw(raw rawSections) {
	if raw.RuntimeConfig != nil {
		c.RuntimeConfig = raw.RuntimeConfig
	}
	if raw.AppContainerConfig != nil {
		c.AppContainerConfig = raw.AppContainerConfig
	}
	if raw.Logging != nil {
		c.Logging = raw.Logging
	}
	if raw.Environment.Custom != nil {
		c.Environment.Custom = raw.Environment.Custom
	}
}

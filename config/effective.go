package config

import (
	"gopkg.in/yaml.v3"

	"github.com/hounfour/gateway/redaction"
)

// Effective renders the merged config (defaults + file + env, CLI flags
// already applied by the caller via ApplyFlagOverrides) as a generic
// document with every secret-shaped value redacted, for `hounfour config
// print-effective` (spec §6).
func (c *Config) Effective() (map[string]any, error) {
	data, err := yaml.Marshal(Document{Hounfour: *c})
	if err != nil {
		return nil, err
	}

	var generic map[string]any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, err
	}

	redacted, _ := redaction.ConfigValue("", generic).(map[string]any)
	return redacted, nil
}

// EffectiveYAML renders Effective as YAML text.
func (c *Config) EffectiveYAML() ([]byte, error) {
	m, err := c.Effective()
	if err != nil {
		return nil, err
	}
	return yaml.Marshal(m)
}

package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// RegistryConfig is the serialized form of the model registry, found under
// the "model" key of the service config or in a standalone file.
type RegistryConfig struct {
	Capabilities map[string]*CapabilityConfig `json:"capabilities" yaml:"capabilities"`
	Endpoints    map[string]*EndpointConfig   `json:"endpoints" yaml:"endpoints"`
	Defaults     *DefaultsConfig              `json:"defaults,omitempty" yaml:"defaults,omitempty"`
	Health       *HealthConfig                `json:"-" yaml:"health,omitempty"`
}

// LoadFromFile loads a registry from a JSON or YAML file, chosen by extension.
func LoadFromFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadFromYAML(data)
	default:
		return LoadFromJSON(data)
	}
}

// LoadFromJSON loads a registry from JSON data.
func LoadFromJSON(data []byte) (*Registry, error) {
	var cfg RegistryConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse registry config: %w", err)
	}
	return FromConfig(&cfg), nil
}

// LoadFromYAML loads a registry from YAML data.
func LoadFromYAML(data []byte) (*Registry, error) {
	var cfg RegistryConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse registry config: %w", err)
	}
	return FromConfig(&cfg), nil
}

// FromConfig builds a Registry from its serialized form.
func FromConfig(cfg *RegistryConfig) *Registry {
	caps := make(map[Capability]*CapabilityConfig, len(cfg.Capabilities))
	for k, v := range cfg.Capabilities {
		caps[Capability(k)] = v
	}

	r := NewRegistry(caps, cfg.Endpoints)
	if cfg.Defaults != nil && cfg.Defaults.Model != "" {
		r.defaults = cfg.Defaults
	}
	if cfg.Health != nil {
		r.SetHealthConfig(*cfg.Health)
	}
	return r
}

// ToConfig converts a Registry to a RegistryConfig for serialization.
func (r *Registry) ToConfig() *RegistryConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	caps := make(map[string]*CapabilityConfig, len(r.capabilities))
	for k, v := range r.capabilities {
		caps[string(k)] = v
	}

	return &RegistryConfig{
		Capabilities: caps,
		Endpoints:    r.endpoints,
		Defaults:     r.defaults,
	}
}

// MergeFromConfig merges configuration into an existing registry.
// Existing entries are overwritten by the new config.
func (r *Registry) MergeFromConfig(cfg *RegistryConfig) {
	if cfg == nil {
		return
	}
	r.mu.Lock()
	for k, v := range cfg.Capabilities {
		r.capabilities[Capability(k)] = v
	}
	for k, v := range cfg.Endpoints {
		r.endpoints[k] = v
	}
	if cfg.Defaults != nil && cfg.Defaults.Model != "" {
		r.defaults = cfg.Defaults
	}
	r.mu.Unlock()

	if cfg.Health != nil {
		r.SetHealthConfig(*cfg.Health)
	}
}

// Package config provides configuration loading and management for the task
// journal service.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/taskjournal/api"
	"github.com/c360studio/taskjournal/classify"
	"github.com/c360studio/taskjournal/feed"
	"github.com/c360studio/taskjournal/model"
	"github.com/c360studio/taskjournal/storage"
)

// Config represents the complete service configuration.
type Config struct {
	Server         api.Config            `yaml:"server"`
	Database       storage.Config        `yaml:"database"`
	Feed           FeedConfig            `yaml:"feed"`
	Classification classify.Config       `yaml:"classification"`
	Model          *model.RegistryConfig `yaml:"model,omitempty"`
	Log            LogConfig             `yaml:"log"`
	// Client is the base URL the command-line tools talk to.
	Client ClientConfig `yaml:"client"`
}

// Feed modes.
const (
	FeedMemory   = "memory"
	FeedNATS     = "nats"
	FeedEmbedded = "embedded"
)

// FeedConfig selects the change feed transport.
type FeedConfig struct {
	// Mode is memory (in-process only), nats (external server at URL) or
	// embedded (in-process NATS server other processes can connect to).
	Mode string `yaml:"mode" env:"MODE"`
	// URL of an external NATS server for mode nats.
	URL string `yaml:"url" env:"URL"`
	// Prefix for change event subjects.
	Prefix string `yaml:"prefix" env:"PREFIX"`
	// Port of the embedded server; -1 picks a free port.
	Port int `yaml:"port" env:"PORT"`
	// ResyncInterval reloads the in-memory task set from the database, to
	// recover from dropped events. Zero disables it.
	ResyncInterval time.Duration `yaml:"resync_interval" env:"RESYNC_INTERVAL"`
}

// ClientConfig configures the command-line API client.
type ClientConfig struct {
	URL string `yaml:"url" env:"URL"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server:         api.DefaultConfig(),
		Database:       storage.DefaultConfig(),
		Feed:           FeedConfig{Mode: FeedMemory, Prefix: feed.DefaultSubjectPrefix, Port: -1, ResyncInterval: 5 * time.Minute},
		Classification: classify.DefaultConfig(),
		Log:            DefaultLogConfig(),
		Client:         ClientConfig{URL: "http://127.0.0.1:8080"},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("server: %w", err))
	}
	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	}
	if err := c.Feed.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("feed: %w", err))
	}
	if err := c.Classification.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("classification: %w", err))
	}
	if err := c.Log.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("log: %w", err))
	}
	if err := c.validateModel(); err != nil {
		errs = append(errs, fmt.Errorf("model: %w", err))
	}
	if c.Client.URL == "" {
		errs = append(errs, errors.New("client: url is required"))
	}
	return errors.Join(errs...)
}

func (c *Config) validateModel() error {
	r := c.Registry()
	capability := model.Capability(c.Classification.Capability)
	chain := r.GetFallbackChain(capability)
	if len(chain) == 0 {
		return fmt.Errorf("no models configured for capability %q", capability)
	}
	for _, name := range chain {
		if r.GetEndpoint(name) == nil {
			return fmt.Errorf("capability %q references unknown endpoint %q", capability, name)
		}
	}
	return nil
}

// Validate checks the feed settings.
func (f FeedConfig) Validate() error {
	switch f.Mode {
	case FeedMemory, FeedEmbedded:
	case FeedNATS:
		if f.URL == "" {
			return errors.New("url is required for mode nats")
		}
	default:
		return fmt.Errorf("unknown mode %q (want %s, %s or %s)", f.Mode, FeedMemory, FeedNATS, FeedEmbedded)
	}
	if f.ResyncInterval < 0 {
		return fmt.Errorf("resync_interval must not be negative")
	}
	if strings.ContainsAny(f.Prefix, " *>") {
		return fmt.Errorf("invalid subject prefix %q", f.Prefix)
	}
	return nil
}

// Registry builds the model registry: the built-in defaults overlaid with
// any configured capabilities and endpoints.
func (c *Config) Registry() *model.Registry {
	r := model.NewDefaultRegistry()
	r.MergeFromConfig(c.Model)
	return r
}

// LoadFromFile loads configuration from a YAML file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := mergeFile(cfg, path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeFile overlays the keys present in path onto cfg.
func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	data = []byte(os.ExpandEnv(string(data)))
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// SaveToFile saves configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

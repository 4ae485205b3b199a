package model

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const yamlRegistry = `
capabilities:
  classification:
    description: task extraction
    preferred: [local]
    fallback: [hosted]
endpoints:
  local:
    provider: ollama
    url: http://localhost:11434/v1
    model: llama3.2
  hosted:
    provider: openai
    model: gpt-4o-mini
defaults:
  model: hosted
health:
  failure_threshold: 5
  recovery_timeout: 1m
`

func TestLoadFromYAML(t *testing.T) {
	r, err := LoadFromYAML([]byte(yamlRegistry))
	if err != nil {
		t.Fatalf("LoadFromYAML: %v", err)
	}

	if got := r.Resolve(CapabilityClassification); got != "local" {
		t.Errorf("Resolve = %q, want local", got)
	}
	chain := r.GetFallbackChain(CapabilityClassification)
	if len(chain) != 2 || chain[1] != "hosted" {
		t.Errorf("chain = %v", chain)
	}
	ep := r.GetEndpoint("local")
	if ep == nil || ep.Provider != "ollama" || ep.Model != "llama3.2" {
		t.Errorf("endpoint = %+v", ep)
	}
	if got := r.Resolve(Capability("unknown")); got != "hosted" {
		t.Errorf("default = %q, want hosted", got)
	}
	if r.health.config.FailureThreshold != 5 || r.health.config.RecoveryTimeout != time.Minute {
		t.Errorf("health config = %+v", r.health.config)
	}
}

func TestLoadFromJSON(t *testing.T) {
	data := []byte(`{
		"capabilities": {"classification": {"preferred": ["m"]}},
		"endpoints": {"m": {"provider": "openai", "model": "gpt-4o"}}
	}`)

	r, err := LoadFromJSON(data)
	if err != nil {
		t.Fatalf("LoadFromJSON: %v", err)
	}
	if got := r.Resolve(CapabilityClassification); got != "m" {
		t.Errorf("Resolve = %q, want m", got)
	}
	if got := r.Resolve(CapabilityFast); got != "default" {
		t.Errorf("unset default = %q, want default", got)
	}
}

func TestLoadFromJSONInvalid(t *testing.T) {
	if _, err := LoadFromJSON([]byte("{not json")); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestLoadFromFileByExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "models.yaml")
	if err := os.WriteFile(path, []byte(yamlRegistry), 0o600); err != nil {
		t.Fatal(err)
	}

	r, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if len(r.ListEndpoints()) != 2 {
		t.Errorf("endpoints = %v", r.ListEndpoints())
	}

	if _, err := LoadFromFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestMergeFromConfig(t *testing.T) {
	r := NewDefaultRegistry()

	r.MergeFromConfig(&RegistryConfig{
		Capabilities: map[string]*CapabilityConfig{
			"classification": {Preferred: []string{"claude"}},
		},
		Endpoints: map[string]*EndpointConfig{
			"claude": {Provider: "anthropic", Model: "claude-haiku"},
		},
	})

	if got := r.Resolve(CapabilityClassification); got != "claude" {
		t.Errorf("Resolve after merge = %q, want claude", got)
	}
	if r.GetEndpoint("gpt-4o-mini") == nil {
		t.Error("existing endpoint should survive merge")
	}

	r.MergeFromConfig(nil)
}

func TestToConfigRoundTrip(t *testing.T) {
	r := NewDefaultRegistry()
	cfg := r.ToConfig()

	if _, ok := cfg.Capabilities["classification"]; !ok {
		t.Error("expected classification in serialized config")
	}
	if cfg.Defaults.Model != "gpt-4o-mini" {
		t.Errorf("defaults = %q", cfg.Defaults.Model)
	}

	again := FromConfig(cfg)
	if again.Resolve(CapabilityClassification) != r.Resolve(CapabilityClassification) {
		t.Error("round trip changed resolution")
	}
}

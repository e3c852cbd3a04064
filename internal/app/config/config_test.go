package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
agent:
  manager_ip: "10.0.0.5"
  agent_comms_api_port: "55000"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Agent.MaxBatchingSize != defaultMaxBatchingSize {
		t.Fatalf("expected default max batching size, got %d", cfg.Agent.MaxBatchingSize)
	}
	if cfg.Agent.BatchIntervalMs != defaultBatchIntervalMs {
		t.Fatalf("expected default batch interval, got %d", cfg.Agent.BatchIntervalMs)
	}
	if cfg.Agent.ConnectionRetrySecs != defaultConnectionRetry {
		t.Fatalf("expected default connection retry, got %d", cfg.Agent.ConnectionRetrySecs)
	}
	if cfg.Agent.UserAgent != defaultUserAgent {
		t.Fatalf("expected default user agent, got %q", cfg.Agent.UserAgent)
	}
}

func TestLoadBelowMinimumBatchingSizeFallsBackToDefault(t *testing.T) {
	path := writeConfig(t, `
agent:
  manager_ip: "10.0.0.5"
  agent_comms_api_port: "55000"
  max_batching_size: 10
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Agent.MaxBatchingSize != defaultMaxBatchingSize {
		t.Fatalf("expected fallback to default when below minimum, got %d", cfg.Agent.MaxBatchingSize)
	}
}

func TestLoadMissingManagerIPFailsValidation(t *testing.T) {
	path := writeConfig(t, `
agent:
  agent_comms_api_port: "55000"
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error for missing manager_ip")
	}
}

func TestConfigDefaultsConnectionRetryDuration(t *testing.T) {
	path := writeConfig(t, `
agent:
  manager_ip: "10.0.0.5"
  agent_comms_api_port: "55000"
  connection_retry_secs: 7
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if got := cfg.ConnectionRetry(); got != 7*time.Second {
		t.Fatalf("expected 7s, got %s", got)
	}
	if got := cfg.BatchInterval(); got != defaultBatchIntervalMs*time.Millisecond {
		t.Fatalf("expected default batch interval as duration, got %s", got)
	}
}

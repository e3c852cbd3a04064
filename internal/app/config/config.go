// Package config loads the read-only configuration snapshot the core
// consumes, following the teacher's Load/applyDefaults/validate
// three-step shape (internal/app/config/config.go).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AgentConfig holds the recognized agent.* keys the core consumes.
// Durations are accepted in the units the manager's own config file
// uses (milliseconds for batch_interval_ms, seconds for
// connection_retry_secs) and converted once here so nothing
// downstream re-multiplies or divides.
type AgentConfig struct {
	ManagerIP           string `yaml:"manager_ip"`
	AgentCommsAPIPort   string `yaml:"agent_comms_api_port"`
	MaxBatchingSize     int    `yaml:"max_batching_size"`
	BatchIntervalMs     int    `yaml:"batch_interval_ms"`
	ConnectionRetrySecs int    `yaml:"connection_retry_secs"`
	UseTLS              bool   `yaml:"use_tls"`
	UserAgent           string `yaml:"user_agent"`
	MetricsAddr         string `yaml:"metrics_addr"`
}

// Config is the top-level configuration document. Group is an overlay
// stub: the real YAML-merge-with-shared-group-overlays parser lives
// outside this repo's scope, but the merged result lands here.
type Config struct {
	Agent AgentConfig    `yaml:"agent"`
	Group map[string]any `yaml:"group"`
}

const (
	minBatchingSize        = 1000
	defaultMaxBatchingSize = 1 << 20 // 1 MiB
	defaultBatchIntervalMs = 1000
	defaultConnectionRetry = 5
	defaultUserAgent       = "wazuh-agent"
	defaultMetricsAddr     = ":9101"
)

// Load reads and validates a configuration document from path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Agent.MaxBatchingSize < minBatchingSize {
		c.Agent.MaxBatchingSize = defaultMaxBatchingSize
	}
	if c.Agent.BatchIntervalMs <= 0 {
		c.Agent.BatchIntervalMs = defaultBatchIntervalMs
	}
	if c.Agent.ConnectionRetrySecs <= 0 {
		c.Agent.ConnectionRetrySecs = defaultConnectionRetry
	}
	if c.Agent.UserAgent == "" {
		c.Agent.UserAgent = defaultUserAgent
	}
	if c.Agent.MetricsAddr == "" {
		c.Agent.MetricsAddr = defaultMetricsAddr
	}
}

func (c *Config) validate() error {
	if c.Agent.ManagerIP == "" {
		return fmt.Errorf("config: agent.manager_ip is required")
	}
	if c.Agent.AgentCommsAPIPort == "" {
		return fmt.Errorf("config: agent.agent_comms_api_port is required")
	}
	return nil
}

// BatchInterval returns agent.batch_interval_ms as a time.Duration.
func (c *Config) BatchInterval() time.Duration {
	return time.Duration(c.Agent.BatchIntervalMs) * time.Millisecond
}

// ConnectionRetry returns agent.connection_retry_secs as a
// time.Duration, converted exactly once at this boundary.
func (c *Config) ConnectionRetry() time.Duration {
	return time.Duration(c.Agent.ConnectionRetrySecs) * time.Second
}

// Package wazuhagent re-exports pkg/agentcore so embedders can import
// github.com/JakeHuneau/wazuh-agent directly, following the teacher's
// root-package aliasing shape (api.go).
package wazuhagent

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/JakeHuneau/wazuh-agent/internal/adapters/agentinfo"
	"github.com/JakeHuneau/wazuh-agent/internal/adapters/eventstore"
	"github.com/JakeHuneau/wazuh-agent/internal/adapters/observability"
	"github.com/JakeHuneau/wazuh-agent/internal/adapters/transport"
	"github.com/JakeHuneau/wazuh-agent/internal/app/commanddispatch"
	"github.com/JakeHuneau/wazuh-agent/internal/app/config"
	"github.com/JakeHuneau/wazuh-agent/internal/domain"
	"github.com/JakeHuneau/wazuh-agent/internal/ports"
	base "github.com/JakeHuneau/wazuh-agent/pkg/agentcore"
)

// Type aliases so consumers never need to import the internal
// packages directly.
type (
	Agent            = base.Agent
	Credentials      = base.Credentials
	EventStoreConfig = base.EventStoreConfig
	Option           = base.Option

	Config      = config.Config
	AgentConfig = config.AgentConfig

	Module       = ports.Module
	ModuleConfig = ports.ModuleConfig
	PushFunc     = ports.PushFunc
	Command      = domain.Command
	Message      = domain.Message
	MessageKind  = domain.MessageKind

	Observability = ports.Observability
	Field         = ports.Field
	AgentInfo     = ports.AgentInfoProvider

	CommandRegistry = commanddispatch.Registry
	ModuleRegistry  = commanddispatch.MapRegistry
)

const (
	KindStateful  = domain.KindStateful
	KindStateless = domain.KindStateless
	KindCommand   = domain.KindCommand
)

// New builds a fully wired Agent.
func New(cfg *Config, creds Credentials, esCfg EventStoreConfig, registry CommandRegistry, opts ...Option) (*Agent, error) {
	return base.New(cfg, creds, esCfg, registry, opts...)
}

// LoadConfig reads and validates a configuration document.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// Option constructors.
func WithObservability(obs Observability) Option  { return base.WithObservability(obs) }
func WithEventStore(store ports.EventStore) Option { return base.WithEventStore(store) }
func WithAgentInfo(info AgentInfo) Option          { return base.WithAgentInfo(info) }
func WithModules(modules ...Module) Option         { return base.WithModules(modules...) }
func WithDispatchSink(sink func(payload []byte) bool) Option {
	return base.WithDispatchSink(sink)
}

// NewObservabilitySink builds the default logrus+Prometheus
// Observability implementation.
func NewObservabilitySink(log *logrus.Logger, reg prometheus.Registerer) *observability.Sink {
	return observability.New(log, reg)
}

// NewPlatformAgentInfo builds the default OS/hostname-derived
// AgentInfoProvider.
func NewPlatformAgentInfo(agentID string) AgentInfo {
	return agentinfo.Platform{AgentID: agentID}
}

// NewHTTPTransport builds the default resolve/connect/write/read
// Transport implementation.
func NewHTTPTransport() *transport.HttpTransport {
	return transport.New()
}

// NewPostgresEventStore and NewSQLiteEventStore expose the two
// PersistentEventQueue backends for callers that want to build their
// own *sql.DB rather than go through EventStoreConfig.
var (
	NewPostgresEventStore = eventstore.NewPostgresEventStore
	NewSQLiteEventStore   = eventstore.NewSQLiteEventStore
)

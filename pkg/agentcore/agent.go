// Package agentcore is the public API: it wires SessionManager, the
// three RequestLoops, the EventDispatcher, and configured modules into
// one runnable Agent, following the teacher's EdgeRuntime
// constructor-with-functional-options shape (pkg/aegisflow/edge.go),
// generalized from a single collector+sink pair to the agent's request
// pipelines.
package agentcore

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/JakeHuneau/wazuh-agent/internal/adapters/agentinfo"
	"github.com/JakeHuneau/wazuh-agent/internal/adapters/eventstore"
	"github.com/JakeHuneau/wazuh-agent/internal/adapters/msgqueue"
	"github.com/JakeHuneau/wazuh-agent/internal/adapters/observability"
	"github.com/JakeHuneau/wazuh-agent/internal/adapters/transport"
	"github.com/JakeHuneau/wazuh-agent/internal/app/batching"
	"github.com/JakeHuneau/wazuh-agent/internal/app/commanddispatch"
	"github.com/JakeHuneau/wazuh-agent/internal/app/config"
	"github.com/JakeHuneau/wazuh-agent/internal/app/dispatcher"
	"github.com/JakeHuneau/wazuh-agent/internal/app/orchestrator"
	"github.com/JakeHuneau/wazuh-agent/internal/app/requestloop"
	"github.com/JakeHuneau/wazuh-agent/internal/app/session"
	"github.com/JakeHuneau/wazuh-agent/internal/domain"
	"github.com/JakeHuneau/wazuh-agent/internal/ports"
)

// Credentials are the fixed UUID+key pair used for every
// authentication attempt.
type Credentials struct {
	UUID string
	Key  string
}

// EventStoreConfig picks and configures the PersistentEventQueue
// backend.
type EventStoreConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver    string
	DSN       string
	TableName string
}

// Option customizes the dependencies used by Agent, mirroring the
// teacher's EdgeRuntimeOption pattern.
type Option func(*overrides)

type overrides struct {
	observability ports.Observability
	eventStore    ports.EventStore
	transport     *transport.HttpTransport
	agentInfo     ports.AgentInfoProvider
	modules       []ports.Module
	sink          dispatcher.Sink
}

// WithObservability overrides the default logrus+Prometheus sink.
func WithObservability(obs ports.Observability) Option {
	return func(o *overrides) { o.observability = obs }
}

// WithEventStore overrides the default store built from EventStoreConfig.
func WithEventStore(store ports.EventStore) Option {
	return func(o *overrides) { o.eventStore = store }
}

// WithAgentInfo overrides the default platform agent-info provider.
func WithAgentInfo(info ports.AgentInfoProvider) Option {
	return func(o *overrides) { o.agentInfo = info }
}

// WithModules registers modules to start alongside the request loops.
func WithModules(modules ...ports.Module) Option {
	return func(o *overrides) { o.modules = append(o.modules, modules...) }
}

// WithDispatchSink overrides the default no-op dispatcher sink (tests
// and embedders typically want to forward dispatched batches
// somewhere concrete).
func WithDispatchSink(sink dispatcher.Sink) Option {
	return func(o *overrides) { o.sink = sink }
}

// Agent is the fully wired runtime: SessionManager, the three
// RequestLoops, the EventDispatcher, command dispatch, and the
// registered modules.
type Agent struct {
	cfg           *config.Config
	obs           ports.Observability
	session       *session.Manager
	transport     *transport.HttpTransport
	eventStore    ports.EventStore
	msgQueue      *msgqueue.MemQueue
	dispatcher    *dispatcher.Dispatcher
	agentInfo     ports.AgentInfoProvider
	modules       []ports.Module
	commandLoop   *requestloop.Loop
	statefulLoop  *requestloop.Loop
	statelessLoop *requestloop.Loop
	commandDisp   *commanddispatch.Dispatcher
	orchestrator  *orchestrator.Orchestrator
	db            *sql.DB
}

// New builds an Agent from a loaded configuration, credentials, and an
// event-store configuration, applying any Options.
func New(cfg *config.Config, creds Credentials, esCfg EventStoreConfig, registry commanddispatch.Registry, opts ...Option) (*Agent, error) {
	if cfg == nil {
		return nil, fmt.Errorf("agentcore: config is required")
	}

	var ov overrides
	for _, opt := range opts {
		if opt != nil {
			opt(&ov)
		}
	}

	obs := ov.observability
	if obs == nil {
		obs = observability.New(logrus.New(), prometheus.DefaultRegisterer)
	}

	tr := ov.transport
	if tr == nil {
		tr = transport.New()
		tr.Obs = obs
	}

	var db *sql.DB
	store := ov.eventStore
	if store == nil {
		built, openedDB, err := buildEventStore(esCfg)
		if err != nil {
			return nil, err
		}
		store = built
		db = openedDB
	}
	if err := store.Create(context.Background()); err != nil {
		return nil, fmt.Errorf("agentcore: event store schema/recovery: %w", err)
	}

	info := ov.agentInfo
	if info == nil {
		info = agentinfo.Platform{AgentID: creds.UUID}
	}

	sessMgr := session.NewManager(tr, obs, cfg.Agent.ManagerIP, cfg.Agent.UserAgent, creds.UUID, creds.Key)
	mq := msgqueue.NewMemQueue()

	sink := ov.sink
	if sink == nil {
		sink = func(payload []byte) bool { return true }
	}
	disp := dispatcher.New(store, sink, obs)

	if registry == nil {
		registry = commanddispatch.MapRegistry{}
	}
	cmdDisp := commanddispatch.New(mq, registry, obs)

	return &Agent{
		cfg:         cfg,
		obs:         obs,
		session:     sessMgr,
		transport:   tr,
		eventStore:  store,
		msgQueue:    mq,
		dispatcher:  disp,
		agentInfo:   info,
		modules:     ov.modules,
		commandDisp: cmdDisp,
		db:          db,
	}, nil
}

func buildEventStore(cfg EventStoreConfig) (ports.EventStore, *sql.DB, error) {
	switch cfg.Driver {
	case "postgres", "":
		db, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("agentcore: open postgres: %w", err)
		}
		return eventstore.NewPostgresEventStore(db, cfg.TableName), db, nil
	case "sqlite":
		db, err := sql.Open("sqlite", cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("agentcore: open sqlite: %w", err)
		}
		return eventstore.NewSQLiteEventStore(db, cfg.TableName), db, nil
	default:
		return nil, nil, fmt.Errorf("agentcore: unknown event store driver %q", cfg.Driver)
	}
}

// Run wires the three RequestLoops around the already-built
// SessionManager/transport/queues, builds the Orchestrator, and blocks
// until ctx is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	connectionRetry := a.cfg.ConnectionRetry()
	batchInterval := a.cfg.BatchInterval()

	a.commandLoop = requestloop.RunCommandPoll(ctx, a.transport, a.session.Token(), a.session, a.cfg.Agent.ManagerIP, a.cfg.Agent.AgentCommsAPIPort, a.cfg.Agent.UserAgent, a.cfg.Agent.UseTLS, connectionRetry, batchInterval, func(msgs []domain.Message) {
		a.msgQueue.Push(msgs...)
	})

	statefulProducer := batching.NewProducer(a.msgQueue, domain.KindStateful, a.agentInfo, a.cfg.Agent.MaxBatchingSize)
	statelessProducer := batching.NewProducer(a.msgQueue, domain.KindStateless, a.agentInfo, a.cfg.Agent.MaxBatchingSize)

	a.statefulLoop = requestloop.RunPush(ctx, a.transport, a.session.Token(), a.session, a.cfg.Agent.ManagerIP, a.cfg.Agent.AgentCommsAPIPort, a.cfg.Agent.UserAgent, "/stateful", a.cfg.Agent.UseTLS, connectionRetry, batchInterval, statefulProducer)
	a.statelessLoop = requestloop.RunPush(ctx, a.transport, a.session.Token(), a.session, a.cfg.Agent.ManagerIP, a.cfg.Agent.AgentCommsAPIPort, a.cfg.Agent.UserAgent, "/stateless", a.cfg.Agent.UseTLS, connectionRetry, batchInterval, statelessProducer)

	go a.commandDisp.Run(ctx)

	a.orchestrator = orchestrator.New(a.session, a.commandLoop, a.statefulLoop, a.statelessLoop, a.dispatcher, a.modules, a.obs)
	return a.orchestrator.Run(ctx)
}

// Close releases the event store's underlying *sql.DB, if any.
func (a *Agent) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// EventStore exposes the underlying store so callers (tests,
// embedders) can insert events or read pending counts directly.
func (a *Agent) EventStore() ports.EventStore { return a.eventStore }

// MessageQueue exposes the in-memory queue so modules can push
// messages without the Agent needing to expose push wiring per
// module.
func (a *Agent) MessageQueue() *msgqueue.MemQueue { return a.msgQueue }

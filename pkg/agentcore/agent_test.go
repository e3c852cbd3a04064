package agentcore

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/JakeHuneau/wazuh-agent/internal/adapters/observability"
	"github.com/JakeHuneau/wazuh-agent/internal/app/commanddispatch"
	"github.com/JakeHuneau/wazuh-agent/internal/app/config"
	"github.com/JakeHuneau/wazuh-agent/internal/domain"
	"github.com/JakeHuneau/wazuh-agent/internal/ports"
)

// fakeStore is a no-DB ports.EventStore double, used so New can be
// exercised without opening a real Postgres/SQLite connection.
type fakeStore struct {
	created atomic.Bool
}

func (f *fakeStore) Create(ctx context.Context) error {
	f.created.Store(true)
	return nil
}
func (f *fakeStore) Insert(ctx context.Context, id uint64, payload []byte, typ string) error {
	return nil
}
func (f *fakeStore) PendingCount(ctx context.Context) (int, error) { return 0, nil }
func (f *fakeStore) FetchAndMarkPending(ctx context.Context, limit int) ([]domain.Event, error) {
	return nil, nil
}
func (f *fakeStore) UpdateStatus(ctx context.Context, ids []uint64, newStatus domain.Status) error {
	return nil
}
func (f *fakeStore) DeleteByStatus(ctx context.Context, status domain.Status) error { return nil }

type fakeAgentInfo struct{}

func (fakeAgentInfo) Snapshot() map[string]any { return map[string]any{"agent_id": "test"} }

type fakeModule struct {
	started atomic.Bool
	stopped atomic.Bool
}

func (m *fakeModule) Name() string                        { return "fake" }
func (m *fakeModule) Setup(cfg ports.ModuleConfig) error   { return nil }
func (m *fakeModule) Start(ctx context.Context) error      { m.started.Store(true); <-ctx.Done(); return nil }
func (m *fakeModule) Stop() error                          { m.stopped.Store(true); return nil }
func (m *fakeModule) SetPushMessageFunction(fn ports.PushFunc) {}
func (m *fakeModule) ExecuteCommand(ctx context.Context, cmd domain.Command) (string, error) {
	return "", nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Agent.ManagerIP = "127.0.0.1"
	cfg.Agent.AgentCommsAPIPort = "55000"
	cfg.Agent.MaxBatchingSize = 1 << 16
	cfg.Agent.BatchIntervalMs = 50
	cfg.Agent.ConnectionRetrySecs = 1
	cfg.Agent.UserAgent = "wazuh-agent-test"
	return cfg
}

func newTestObs(t *testing.T) *observability.Sink {
	t.Helper()
	return observability.New(logrus.New(), prometheus.NewRegistry())
}

func TestNewWithOverridesWiresDependencies(t *testing.T) {
	store := &fakeStore{}
	obs := newTestObs(t)
	info := fakeAgentInfo{}
	mod := &fakeModule{}

	a, err := New(testConfig(), Credentials{UUID: "u", Key: "k"}, EventStoreConfig{}, nil,
		WithObservability(obs),
		WithEventStore(store),
		WithAgentInfo(info),
		WithModules(mod),
	)
	require.NoError(t, err)
	require.True(t, store.created.Load(), "expected Create to run schema/crash-recovery against the overridden store")
	require.Equal(t, store, a.EventStore())
	require.Equal(t, ports.AgentInfoProvider(info), a.agentInfo)
	require.Len(t, a.modules, 1)
	require.Equal(t, mod, a.modules[0])
	require.Nil(t, a.db, "expected db to be nil when an event store override is supplied")
}

func TestNewRejectsNilConfig(t *testing.T) {
	_, err := New(nil, Credentials{}, EventStoreConfig{}, nil)
	require.Error(t, err)
}

func TestNewDefaultsRegistryToEmptyMap(t *testing.T) {
	a, err := New(testConfig(), Credentials{UUID: "u", Key: "k"}, EventStoreConfig{}, nil,
		WithObservability(newTestObs(t)),
		WithEventStore(&fakeStore{}),
	)
	require.NoError(t, err)
	require.NotNil(t, a.commandDisp, "expected command dispatcher to be built even with a nil registry")
}

func TestRunShutsDownOnContextCancel(t *testing.T) {
	mod := &fakeModule{}
	a, err := New(testConfig(), Credentials{UUID: "u", Key: "k"}, EventStoreConfig{}, commanddispatch.MapRegistry{},
		WithObservability(newTestObs(t)),
		WithEventStore(&fakeStore{}),
		WithAgentInfo(fakeAgentInfo{}),
		WithModules(mod),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("agent did not shut down in time")
	}

	require.True(t, mod.started.Load())
	require.True(t, mod.stopped.Load())
}

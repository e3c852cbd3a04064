package commanddispatch

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/JakeHuneau/wazuh-agent/internal/adapters/msgqueue"
	"github.com/JakeHuneau/wazuh-agent/internal/adapters/observability"
	"github.com/JakeHuneau/wazuh-agent/internal/domain"
	"github.com/JakeHuneau/wazuh-agent/internal/ports"
)

type fakeModule struct {
	name       string
	executed   chan domain.Command
	executeErr error
}

func newFakeModule(name string) *fakeModule {
	return &fakeModule{name: name, executed: make(chan domain.Command, 10)}
}

func (m *fakeModule) Name() string                             { return m.name }
func (m *fakeModule) Setup(cfg ports.ModuleConfig) error        { return nil }
func (m *fakeModule) Start(ctx context.Context) error           { return nil }
func (m *fakeModule) Stop() error                               { return nil }
func (m *fakeModule) SetPushMessageFunction(fn ports.PushFunc)  {}
func (m *fakeModule) ExecuteCommand(ctx context.Context, cmd domain.Command) (string, error) {
	m.executed <- cmd
	return "ok", m.executeErr
}

func newTestObs(t *testing.T) *observability.Sink {
	t.Helper()
	return observability.New(logrus.New(), prometheus.NewRegistry())
}

func TestDispatcherRoutesCommandToNamedModule(t *testing.T) {
	q := msgqueue.NewMemQueue()
	mod := newFakeModule("logcollector")
	reg := MapRegistry{"logcollector": mod}

	d := New(q, reg, newTestObs(t))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go d.Run(ctx)

	q.Push(domain.Message{Kind: domain.MessageKind("COMMAND"), Data: []string{`{"module":"logcollector","action":"restart"}`}})

	select {
	case cmd := <-mod.executed:
		if cmd.Module != "logcollector" || cmd.Action != "restart" {
			t.Fatalf("unexpected command: %+v", cmd)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("expected module to receive the command")
	}
}

func TestDispatcherIgnoresUnknownModule(t *testing.T) {
	q := msgqueue.NewMemQueue()
	reg := MapRegistry{}
	d := New(q, reg, newTestObs(t))

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	q.Push(domain.Message{Kind: domain.MessageKind("COMMAND"), Data: []string{`{"module":"missing","action":"x"}`}})
	d.Run(ctx) // should return on ctx deadline without panicking

	if !q.IsEmpty(domain.MessageKind("COMMAND")) {
		t.Fatalf("expected command to be popped even when module is unknown")
	}
}

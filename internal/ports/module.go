package ports

import (
	"context"

	"github.com/JakeHuneau/wazuh-agent/internal/domain"
)

// PushFunc is handed to a Module so it can enqueue messages onto the
// MessageQueue without holding a reference to the queue itself.
type PushFunc func(msgs ...domain.Message) int

// ModuleConfig is the subset of a module's configuration the core
// passes through unopened; module-specific keys are the module's own
// concern.
type ModuleConfig map[string]any

// Module is the small capability set the orchestrator and command
// dispatcher need from a module, replacing the teacher's
// inheritance-based mock hierarchy with composition, per spec's
// redesign note on module mocks.
type Module interface {
	Name() string
	Setup(cfg ModuleConfig) error
	Start(ctx context.Context) error
	Stop() error
	ExecuteCommand(ctx context.Context, cmd domain.Command) (string, error)
	SetPushMessageFunction(fn PushFunc)
}

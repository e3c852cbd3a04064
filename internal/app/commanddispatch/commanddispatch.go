// Package commanddispatch drains the COMMAND lane and routes each
// decoded command to the module named in its payload. Anything
// module-specific stays external — this is strictly a registry lookup
// plus an ExecuteCommand call, per spec.md §1's "command handler's
// per-module dispatch logic" being out of core scope.
package commanddispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/JakeHuneau/wazuh-agent/internal/domain"
	"github.com/JakeHuneau/wazuh-agent/internal/ports"
)

// Queue is the subset of msgqueue.MemQueue the dispatcher needs.
type Queue interface {
	GetNextN(ctx context.Context, kind domain.MessageKind, n int) ([]domain.Message, error)
	PopN(kind domain.MessageKind, n int) int
}

// Registry looks up a registered module by name.
type Registry interface {
	Lookup(name string) (ports.Module, bool)
}

// MapRegistry is the simplest Registry: a name -> Module map.
type MapRegistry map[string]ports.Module

func (r MapRegistry) Lookup(name string) (ports.Module, bool) {
	m, ok := r[name]
	return m, ok
}

// Dispatcher drains the COMMAND lane in a loop, decoding each
// message's JSON payload and routing it to the named module.
type Dispatcher struct {
	queue    Queue
	registry Registry
	obs      ports.Observability
}

// New constructs a command Dispatcher.
func New(queue Queue, registry Registry, obs ports.Observability) *Dispatcher {
	return &Dispatcher{queue: queue, registry: registry, obs: obs}
}

// Run drains one command at a time until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	for ctx.Err() == nil {
		msgs, err := d.queue.GetNextN(ctx, domain.MessageKind("COMMAND"), 1)
		if err != nil {
			return
		}
		if len(msgs) == 0 {
			continue
		}
		d.dispatchOne(ctx, msgs[0])
		d.queue.PopN(domain.MessageKind("COMMAND"), 1)
	}
}

func (d *Dispatcher) dispatchOne(ctx context.Context, msg domain.Message) {
	if len(msg.Data) == 0 {
		return
	}

	var cmd domain.Command
	if err := json.Unmarshal([]byte(msg.Data[0]), &cmd); err != nil {
		d.obs.LogError("commanddispatch: malformed command payload", err)
		return
	}

	mod, ok := d.registry.Lookup(cmd.Module)
	if !ok {
		d.obs.LogError("commanddispatch: no module registered", errNoModule(cmd.Module))
		return
	}

	cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := mod.ExecuteCommand(cctx, cmd); err != nil {
		d.obs.LogError("commanddispatch: module execution failed", err, ports.Field{Key: "module", Value: cmd.Module})
		return
	}
	d.obs.IncCounter("wazuh_agent_commands_dispatched_total", 1)
}

type errNoModule string

func (e errNoModule) Error() string { return "commanddispatch: no module registered: " + string(e) }

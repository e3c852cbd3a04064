// Package orchestrator wires SessionManager, the three RequestLoops,
// the EventDispatcher, and the configured modules into one
// lifecycle, following the teacher's EdgeRuntime Start/Run/Shutdown
// shape (pkg/aegisflow/edge.go) generalized from a single
// collector+sink pair to N request loops + the dispatcher + N
// modules, per spec.md §4.G.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JakeHuneau/wazuh-agent/internal/app/dispatcher"
	"github.com/JakeHuneau/wazuh-agent/internal/app/requestloop"
	"github.com/JakeHuneau/wazuh-agent/internal/ports"
)

// SessionRunner is satisfied by *session.Manager.
type SessionRunner interface {
	WaitAndReauthenticate(ctx context.Context)
}

// Orchestrator owns startup order and shutdown fan-out: on start it
// launches, in order, SessionManager.WaitAndReauthenticate, the
// EventDispatcher, and every registered module's Start; the three
// RequestLoops are already running when it is built. On Shutdown it
// flips every loop's stop flag and joins.
type Orchestrator struct {
	session    SessionRunner
	commands   *requestloop.Loop
	stateful   *requestloop.Loop
	stateless  *requestloop.Loop
	dispatcher *dispatcher.Dispatcher
	modules    []ports.Module
	obs        ports.Observability

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New constructs an Orchestrator. The loops are started by the caller's
// constructors (requestloop.RunCommandPoll/RunPush already launch their
// own goroutine); Orchestrator runs the session manager, the dispatcher
// and the modules, and is responsible for ordered shutdown.
func New(session SessionRunner, commands, stateful, stateless *requestloop.Loop, disp *dispatcher.Dispatcher, modules []ports.Module, obs ports.Observability) *Orchestrator {
	return &Orchestrator{
		session:    session,
		commands:   commands,
		stateful:   stateful,
		stateless:  stateless,
		dispatcher: disp,
		modules:    modules,
		obs:        obs,
	}
}

// Run blocks until ctx is cancelled, then performs an ordered
// shutdown: stop flags flip first, then the dispatcher and modules are
// joined.
func (o *Orchestrator) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.session.WaitAndReauthenticate(runCtx)
	}()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.dispatcher.Run(runCtx)
	}()

	for _, m := range o.modules {
		mod := m
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			if err := mod.Start(runCtx); err != nil {
				o.obs.LogError("orchestrator: module start failed", err, ports.Field{Key: "module", Value: mod.Name()})
			}
		}()
	}

	<-ctx.Done()
	return o.Shutdown()
}

// Shutdown flips every loop's stop flag, stops every module, and joins
// all outstanding work.
func (o *Orchestrator) Shutdown() error {
	if o.commands != nil {
		o.commands.Stop()
	}
	if o.stateful != nil {
		o.stateful.Stop()
	}
	if o.stateless != nil {
		o.stateless.Stop()
	}
	if o.cancel != nil {
		o.cancel()
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		o.obs.LogError("orchestrator: shutdown timed out waiting for goroutines", errShutdownTimeout)
	}

	var errs []error
	for _, m := range o.modules {
		if err := m.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var errShutdownTimeout = errors.New("orchestrator: shutdown timeout")

// Package requestloop builds the three RequestLoop instances
// (command-poll, stateful, stateless) as transport.CoRequest
// invocations, per communicator.cpp's GetCommandsFromManager /
// StatefulMessageProcessingTask / StatelessMessageProcessingTask.
package requestloop

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/JakeHuneau/wazuh-agent/internal/domain"
	"github.com/JakeHuneau/wazuh-agent/internal/ports"
)

// Runner is satisfied by transport.HttpTransport.
type Runner interface {
	CoRequest(
		ctx context.Context,
		token ports.TokenSource,
		params domain.HTTPRequestParams,
		bodyProducer ports.BodyProducerFunc,
		onUnauthorized func(),
		onSuccess func(body []byte),
		loopWhile func() bool,
		connectionRetry time.Duration,
		batchInterval time.Duration,
	)
}

// Reauthenticator is satisfied by *session.Manager.
type Reauthenticator interface {
	TryReAuthenticate()
}

// Loop owns the running flag mirroring the C++ original's
// m_keepRunning.load() check inside loopWhile.
type Loop struct {
	running atomic.Bool
}

// NewLoop returns a Loop already flagged as running.
func NewLoop() *Loop {
	l := &Loop{}
	l.running.Store(true)
	return l
}

// Stop flips the loop's keep-running flag; CoRequest observes it on
// its next iteration boundary.
func (l *Loop) Stop() { l.running.Store(false) }

func (l *Loop) keepRunning() bool { return l.running.Load() }

// CommandPush receives the messages decoded from one successful
// /commands response and pushes them onto the COMMAND lane: one
// KindCommand Message per element of the commands array, holding that
// element's raw JSON. It is not called when the array is empty or the
// body is not valid JSON.
type CommandPush func(msgs []domain.Message)

// RunCommandPoll is the GET /commands pipeline.
func RunCommandPoll(ctx context.Context, rt Runner, token ports.TokenSource, reauth Reauthenticator, host, port, userAgent string, useTLS bool, connectionRetry, batchInterval time.Duration, push CommandPush) *Loop {
	l := NewLoop()
	params := domain.HTTPRequestParams{
		Method:    "GET",
		Host:      host,
		Port:      port,
		Path:      "/commands",
		UserAgent: userAgent,
		UseTLS:    useTLS,
	}

	go rt.CoRequest(ctx, token, params, nil, reauth.TryReAuthenticate, func(body []byte) {
		var resp domain.CommandsResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return
		}
		msgs := make([]domain.Message, 0, len(resp.Commands))
		for _, raw := range resp.Commands {
			msgs = append(msgs, domain.Message{
				Kind: domain.KindCommand,
				Data: []string{string(raw)},
			})
		}
		if len(msgs) > 0 {
			push(msgs)
		}
	}, l.keepRunning, connectionRetry, batchInterval)

	return l
}

// BatchProducer is the bridge to internal/app/batching.Producer:
// Produce implements ports.BodyProducerFunc, and PopDrained removes
// exactly the messages that went into the most recently produced body
// (spec's "popN(kind, countDrained) — nothing fewer, nothing more").
type BatchProducer interface {
	Produce(ctx context.Context) ([]byte, error)
	PopDrained()
}

// RunPush is the shared shape of the stateful and stateless pipelines:
// POST to path with a batching bodyProducer, popping exactly the
// drained count on success.
func RunPush(ctx context.Context, rt Runner, token ports.TokenSource, reauth Reauthenticator, host, port, userAgent, path string, useTLS bool, connectionRetry, batchInterval time.Duration, producer BatchProducer) *Loop {
	l := NewLoop()
	params := domain.HTTPRequestParams{
		Method:    "POST",
		Host:      host,
		Port:      port,
		Path:      path,
		UserAgent: userAgent,
		UseTLS:    useTLS,
	}

	go rt.CoRequest(ctx, token, params, producer.Produce, reauth.TryReAuthenticate, func(body []byte) {
		producer.PopDrained()
	}, l.keepRunning, connectionRetry, batchInterval)

	return l
}

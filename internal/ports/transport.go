package ports

import (
	"context"
	"time"

	"github.com/JakeHuneau/wazuh-agent/internal/domain"
)

// Response is the result of a single HTTP exchange. Transport never
// returns a Go error for network-level failures; it instead reports a
// synthetic 500 with the failure text in Body, so every caller (in
// particular the RequestLoop) has one total code path to branch on.
type Response struct {
	StatusCode int
	Body       []byte
}

// BodyProducerFunc builds the body of an outbound request, typically
// by draining a MessageQueue lane. It may block (cooperatively) until
// data is available or ctx is cancelled.
type BodyProducerFunc func(ctx context.Context) ([]byte, error)

// Transport performs the resolve -> connect -> write -> read sequence
// for a single request, and drives the cooperative, re-entrant request
// loop shared by the command/stateful/stateless pipelines.
type Transport interface {
	Request(ctx context.Context, params domain.HTTPRequestParams) Response
	RequestDownload(ctx context.Context, params domain.HTTPRequestParams, dstPath string) Response

	// CoRequest runs params against host:port in a loop, reading the
	// shared token snapshot on each iteration. onSuccess fires on 200,
	// onUnauthorized on 401/403. The loop continues while loopWhile
	// returns true, sleeping connectionRetry after connect failures and
	// after 401/403, and batchInterval after any other non-200 status;
	// write and read failures retry at once. connectionRetry and batchInterval come from
	// agent.connection_retry_secs/agent.batch_interval_ms — callers
	// must not hardcode them.
	CoRequest(
		ctx context.Context,
		token TokenSource,
		params domain.HTTPRequestParams,
		bodyProducer BodyProducerFunc,
		onUnauthorized func(),
		onSuccess func(body []byte),
		loopWhile func() bool,
		connectionRetry time.Duration,
		batchInterval time.Duration,
	)
}

// TokenSource exposes a read-only snapshot of the current bearer
// token. SessionManager is the sole writer; RequestLoops are readers
// that take a fresh snapshot every iteration.
type TokenSource interface {
	Snapshot() string
}

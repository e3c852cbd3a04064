// Package dispatcher implements the EventDispatcher: a single
// long-lived worker that ticks every second against an
// ports.EventStore, draining batches to a bounded pool of sink
// workers, per spec.md §4.F.
package dispatcher

import (
	"context"
	"sync"
	"time"

	"github.com/JakeHuneau/wazuh-agent/internal/domain"
	"github.com/JakeHuneau/wazuh-agent/internal/ports"
)

// Metric names match the constants registered in
// internal/adapters/observability.Sink; duplicated here (rather than
// imported) to keep internal/app independent of internal/adapters, the
// same layering commanddispatch.go already follows.
const (
	metricEventQueueDepth   = "wazuh_agent_event_queue_depth"
	metricDispatchLatency   = "wazuh_agent_dispatch_latency_seconds"
	metricSinkWorkersActive = "wazuh_agent_sink_workers_active"
)

const (
	// DefaultBatchSize is N in spec.md §4.F.
	DefaultBatchSize = 10
	// DefaultBatchWindow is T in spec.md §4.F.
	DefaultBatchWindow = 5 * time.Second
	// TickPeriod is the dispatcher's fixed polling cadence.
	TickPeriod = 1 * time.Second
	// DefaultMaxInFlight bounds concurrent sink workers.
	DefaultMaxInFlight = 10
)

// Sink processes one batch's concatenated payload and reports success.
// Per spec.md §4.F step 5, payloads are newline-joined before this is
// called.
type Sink func(payload []byte) bool

// Dispatcher owns the tick loop and the sink worker pool.
type Dispatcher struct {
	store       ports.EventStore
	sink        Sink
	obs         ports.Observability
	batchSize   int
	batchWindow time.Duration
	maxInFlight int

	lastDispatch time.Time

	wg    sync.WaitGroup
	slots chan struct{}
}

// New constructs a Dispatcher with the spec's defaults; override via
// the With* options before calling Run.
func New(store ports.EventStore, sink Sink, obs ports.Observability) *Dispatcher {
	return &Dispatcher{
		store:       store,
		sink:        sink,
		obs:         obs,
		batchSize:   DefaultBatchSize,
		batchWindow: DefaultBatchWindow,
		maxInFlight: DefaultMaxInFlight,
		slots:       make(chan struct{}, DefaultMaxInFlight),
	}
}

// WithBatchSize overrides N.
func (d *Dispatcher) WithBatchSize(n int) *Dispatcher { d.batchSize = n; return d }

// WithBatchWindow overrides T.
func (d *Dispatcher) WithBatchWindow(t time.Duration) *Dispatcher { d.batchWindow = t; return d }

// WithMaxInFlight overrides the sink worker pool bound.
func (d *Dispatcher) WithMaxInFlight(n int) *Dispatcher {
	d.maxInFlight = n
	d.slots = make(chan struct{}, n)
	return d
}

// Run ticks until ctx is done, then joins all outstanding sink
// workers before returning (spec.md §5 shutdown semantics).
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(TickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.wg.Wait()
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

func (d *Dispatcher) tick(ctx context.Context) {
	if err := d.store.DeleteByStatus(ctx, domain.StatusDispatched); err != nil {
		d.obs.LogError("dispatcher: gc dispatched events failed", err)
	}

	pending, err := d.store.PendingCount(ctx)
	if err != nil {
		d.obs.LogError("dispatcher: pending count failed", err)
		return
	}
	d.obs.SetGauge(metricEventQueueDepth, float64(pending))

	sinceLast := time.Since(d.lastDispatch)
	if pending < d.batchSize && sinceLast < d.batchWindow {
		return
	}

	fetchStart := time.Now()
	batch, err := d.store.FetchAndMarkPending(ctx, d.batchSize)
	if err != nil {
		d.obs.LogError("dispatcher: fetch and mark pending failed", err)
		return
	}
	if len(batch) == 0 {
		return
	}

	d.lastDispatch = time.Now()
	d.spawnSinkWorker(ctx, batch, fetchStart)
}

func (d *Dispatcher) spawnSinkWorker(ctx context.Context, batch []domain.Event, fetchStart time.Time) {
	select {
	case d.slots <- struct{}{}:
	case <-ctx.Done():
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() { <-d.slots }()

		payload := concatPayloads(batch)
		ids := eventIDs(batch)

		ok := d.sink(payload)
		d.obs.ObserveLatency(metricDispatchLatency, time.Since(fetchStart).Seconds())

		var newStatus domain.Status
		if ok {
			newStatus = domain.StatusDispatched
		} else {
			newStatus = domain.StatusPending
		}

		if err := d.store.UpdateStatus(ctx, ids, newStatus); err != nil {
			d.obs.LogError("dispatcher: update status failed", err)
		}
		// This worker still holds its slot until the deferred release
		// runs, so it is excluded from the count.
		d.obs.SetGauge(metricSinkWorkersActive, float64(len(d.slots)-1))
	}()
}

func concatPayloads(batch []domain.Event) []byte {
	out := make([]byte, 0)
	for i, e := range batch {
		if i > 0 {
			out = append(out, '\n')
		}
		out = append(out, e.Payload...)
	}
	return out
}

func eventIDs(batch []domain.Event) []uint64 {
	ids := make([]uint64, len(batch))
	for i, e := range batch {
		ids[i] = e.ID
	}
	return ids
}

// Package observability combines structured logging (logrus) and
// metrics (Prometheus) behind the single ports.Observability contract,
// following the teacher's counter/gauge/histogram-map shape
// (internal/adapters/observability/prom_metrics.go) composed with the
// field-logger abstraction used across the retrieval pack.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/JakeHuneau/wazuh-agent/internal/ports"
)

// Metric names, as constants for call sites that import this package.
// The internal/app packages (dispatcher, commanddispatch) do not import
// it and repeat the name strings they use.
const (
	MetricEventQueueDepth      = "wazuh_agent_event_queue_depth"
	MetricDispatchLatency      = "wazuh_agent_dispatch_latency_seconds"
	MetricRequestLoopSuccess   = "wazuh_agent_request_loop_success_total"
	MetricRequestLoopFailure   = "wazuh_agent_request_loop_failure_total"
	MetricTokenRemainingSecs   = "wazuh_agent_token_remaining_seconds"
	MetricSinkWorkersActive    = "wazuh_agent_sink_workers_active"
	MetricCommandsDispatched   = "wazuh_agent_commands_dispatched_total"
)

// Sink is the default Observability implementation: a logrus logger
// paired with a fixed set of pre-registered Prometheus collectors
// looked up by name, exactly as the teacher's PromObs does.
type Sink struct {
	log      *logrus.Logger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

// New constructs a Sink and registers its collectors against reg. Pass
// prometheus.DefaultRegisterer in production, or a fresh
// prometheus.NewRegistry() in tests that want isolation.
func New(log *logrus.Logger, reg prometheus.Registerer) *Sink {
	if log == nil {
		log = logrus.New()
	}

	queueDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: MetricEventQueueDepth,
		Help: "Pending events currently sitting in the PersistentEventQueue.",
	})
	dispatchLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    MetricDispatchLatency,
		Help:    "Latency from FetchAndMarkPending to sink completion.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	})
	loopSuccess := prometheus.NewCounter(prometheus.CounterOpts{
		Name: MetricRequestLoopSuccess,
		Help: "Request loop iterations that completed with a 200 response.",
	})
	loopFailure := prometheus.NewCounter(prometheus.CounterOpts{
		Name: MetricRequestLoopFailure,
		Help: "Request loop iterations that ended in a non-200 outcome.",
	})
	tokenRemaining := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: MetricTokenRemainingSecs,
		Help: "Seconds remaining before the current bearer token expires.",
	})
	sinkWorkers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: MetricSinkWorkersActive,
		Help: "Sink workers currently processing a dispatched batch.",
	})
	commandsDispatched := prometheus.NewCounter(prometheus.CounterOpts{
		Name: MetricCommandsDispatched,
		Help: "Commands routed to a module's ExecuteCommand.",
	})

	reg.MustRegister(queueDepth, dispatchLatency, loopSuccess, loopFailure, tokenRemaining, sinkWorkers, commandsDispatched)

	return &Sink{
		log: log,
		counters: map[string]prometheus.Counter{
			MetricRequestLoopSuccess: loopSuccess,
			MetricRequestLoopFailure: loopFailure,
			MetricCommandsDispatched: commandsDispatched,
		},
		gauges: map[string]prometheus.Gauge{
			MetricEventQueueDepth:   queueDepth,
			MetricTokenRemainingSecs: tokenRemaining,
			MetricSinkWorkersActive: sinkWorkers,
		},
		histos: map[string]prometheus.Observer{
			MetricDispatchLatency: dispatchLatency,
		},
	}
}

func fieldsToLogrus(fields []ports.Field) logrus.Fields {
	if len(fields) == 0 {
		return nil
	}
	f := make(logrus.Fields, len(fields))
	for _, field := range fields {
		f[field.Key] = field.Value
	}
	return f
}

func (s *Sink) LogInfo(msg string, fields ...ports.Field) {
	s.log.WithFields(fieldsToLogrus(fields)).Info(msg)
}

func (s *Sink) LogDebug(msg string, fields ...ports.Field) {
	s.log.WithFields(fieldsToLogrus(fields)).Debug(msg)
}

func (s *Sink) LogError(msg string, err error, fields ...ports.Field) {
	s.log.WithFields(fieldsToLogrus(fields)).WithError(err).Error(msg)
}

func (s *Sink) LogCritical(msg string, err error, fields ...ports.Field) {
	s.log.WithFields(fieldsToLogrus(fields)).WithError(err).WithField("severity", "critical").Error(msg)
}

func (s *Sink) IncCounter(name string, v float64) {
	if c, ok := s.counters[name]; ok {
		c.Add(v)
	}
}

func (s *Sink) ObserveLatency(name string, seconds float64) {
	if h, ok := s.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (s *Sink) SetGauge(name string, v float64) {
	if g, ok := s.gauges[name]; ok {
		g.Set(v)
	}
}

var _ ports.Observability = (*Sink)(nil)

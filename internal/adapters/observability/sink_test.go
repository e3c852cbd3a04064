package observability

import (
	"bytes"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/JakeHuneau/wazuh-agent/internal/ports"
)

func newTestSink(t *testing.T) (*Sink, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)
	log.SetFormatter(&logrus.JSONFormatter{})

	reg := prometheus.NewRegistry()
	return New(log, reg), &buf
}

func TestSinkLogInfoIncludesFields(t *testing.T) {
	sink, buf := newTestSink(t)
	sink.LogInfo("authenticated", ports.Field{Key: "uuid", Value: "abc"})

	if !bytes.Contains(buf.Bytes(), []byte("authenticated")) {
		t.Fatalf("expected message in log output, got %s", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte("abc")) {
		t.Fatalf("expected field value in log output, got %s", buf.String())
	}
}

func TestSinkLogErrorIncludesErrorText(t *testing.T) {
	sink, buf := newTestSink(t)
	sink.LogError("dispatch failed", errors.New("boom"))

	if !bytes.Contains(buf.Bytes(), []byte("boom")) {
		t.Fatalf("expected error text in log output, got %s", buf.String())
	}
}

func TestSinkCountersAndGaugesAreIsolatedFromUnknownNames(t *testing.T) {
	sink, _ := newTestSink(t)

	// Unknown metric names must be silently ignored, not panic.
	sink.IncCounter("does_not_exist", 1)
	sink.SetGauge("does_not_exist", 1)
	sink.ObserveLatency("does_not_exist", 1)

	sink.IncCounter(MetricRequestLoopSuccess, 1)
	sink.SetGauge(MetricEventQueueDepth, 4)
	sink.ObserveLatency(MetricDispatchLatency, 0.2)
}

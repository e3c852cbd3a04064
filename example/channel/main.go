package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	wazuhagent "github.com/JakeHuneau/wazuh-agent"
)

func main() {
	cfg, err := wazuhagent.LoadConfig("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	batches := make(chan []byte, 32)
	sink := func(payload []byte) bool {
		batches <- payload
		return true
	}

	go fanoutWorker("ingest", batches)

	agent, err := wazuhagent.New(
		cfg,
		wazuhagent.Credentials{UUID: "demo-uuid", Key: "demo-key"},
		wazuhagent.EventStoreConfig{Driver: "sqlite", DSN: "file::memory:?cache=shared", TableName: "events"},
		wazuhagent.ModuleRegistry{},
		wazuhagent.WithDispatchSink(sink),
	)
	if err != nil {
		log.Fatalf("build agent: %v", err)
	}
	defer agent.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := agent.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("agent exited: %v", err)
	}
	close(batches)
}

func fanoutWorker(name string, batches <-chan []byte) {
	for payload := range batches {
		fmt.Printf("[%s] forwarding %d bytes at %s\n", name, len(payload), time.Now().Format(time.RFC3339))
		// TODO: forward to downstream ingest API.
	}
}

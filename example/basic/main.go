package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	wazuhagent "github.com/JakeHuneau/wazuh-agent"
)

func main() {
	cfg, err := wazuhagent.LoadConfig("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	agent, err := wazuhagent.New(
		cfg,
		wazuhagent.Credentials{UUID: "demo-uuid", Key: "demo-key"},
		wazuhagent.EventStoreConfig{Driver: "sqlite", DSN: "file::memory:?cache=shared", TableName: "events"},
		wazuhagent.ModuleRegistry{},
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
}

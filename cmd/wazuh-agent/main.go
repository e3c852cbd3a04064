package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	wazuhagent "github.com/JakeHuneau/wazuh-agent"
)

const banner = `
 _    _  ____  ________  __   _______       ___   ____________   ________
| |  | ||  _ \|___  /| | | | | / _ \ \     / / \ | |____  ___|  / ____|  |
| |  | || |_) |  / / | |_| | | | | \ \   / /  | \| |   | |    | |  __|  |
| |/\| ||  __/  / /  |  _  | | | | |\ \ / /   | .   |   | |    | | |_| |
\  /\  /| |    / /__ | | | | | |_| | \ V /    | |\  |   | |    | |__| |  |
 \/  \/ |_|   /_____||_| |_|  \___/   \_/     |_| \_|   |_|     \_____|__/

wazuh-agent  -  endpoint agent core`

func main() {
	fmt.Println(banner)
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "stats":
		err = statsCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Fatalf("wazuh-agent %s: %v", cmd, err)
	}
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "/etc/wazuh-agent/agent.yaml", "Path to agent configuration file")
	uuid := fs.String("uuid", os.Getenv("WAZUH_AGENT_UUID"), "Agent UUID (defaults to $WAZUH_AGENT_UUID)")
	key := fs.String("key", os.Getenv("WAZUH_AGENT_KEY"), "Enrollment key (defaults to $WAZUH_AGENT_KEY)")
	dbDriver := fs.String("event-store-driver", "sqlite", "PersistentEventQueue backend: postgres or sqlite")
	dbDSN := fs.String("event-store-dsn", "/var/lib/wazuh-agent/queue.db", "Event store data source name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *uuid == "" || *key == "" {
		return errors.New("uuid and key are required (flags or WAZUH_AGENT_UUID/WAZUH_AGENT_KEY)")
	}

	cfg, err := wazuhagent.LoadConfig(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logrus.New()
	obs := wazuhagent.NewObservabilitySink(log, prometheus.DefaultRegisterer)

	agent, err := wazuhagent.New(
		cfg,
		wazuhagent.Credentials{UUID: *uuid, Key: *key},
		wazuhagent.EventStoreConfig{Driver: *dbDriver, DSN: *dbDSN, TableName: "events"},
		wazuhagent.ModuleRegistry{},
		wazuhagent.WithObservability(obs),
	)
	if err != nil {
		return fmt.Errorf("build agent: %w", err)
	}
	defer agent.Close()

	stopMetrics := startMetricsServer(cfg.Agent.MetricsAddr)
	defer stopMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return agent.Run(ctx)
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "/etc/wazuh-agent/agent.yaml", "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := wazuhagent.LoadConfig(*cfgPath); err != nil {
		return err
	}
	fmt.Printf("config %s looks good\n", *cfgPath)
	return nil
}

func statsCommand(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	url := fs.String("url", "http://localhost:9101/metrics", "Prometheus metrics endpoint")
	interval := fs.Duration("interval", 2*time.Second, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	fmt.Printf("Streaming metrics from %s (Ctrl+C to stop)\n", *url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printMetricsSnapshot(*url); err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
			}
		}
	}
}

func printMetricsSnapshot(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	targets := map[string]float64{
		"wazuh_agent_event_queue_depth":        0,
		"wazuh_agent_sink_workers_active":      0,
		"wazuh_agent_token_remaining_seconds":   0,
		"wazuh_agent_commands_dispatched_total": 0,
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		for key := range targets {
			if strings.HasPrefix(line, key+" ") {
				var value float64
				if _, err := fmt.Sscanf(line, key+" %f", &value); err == nil {
					targets[key] = value
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	fmt.Printf("[%s] queue_depth=%f sink_workers=%f token_remaining=%f commands=%f\n",
		time.Now().Format(time.RFC3339),
		targets["wazuh_agent_event_queue_depth"],
		targets["wazuh_agent_sink_workers_active"],
		targets["wazuh_agent_token_remaining_seconds"],
		targets["wazuh_agent_commands_dispatched_total"],
	)
	return nil
}

func startMetricsServer(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server exited: %v", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func printUsage() {
	fmt.Print(`wazuh-agent CLI

Usage:
  wazuh-agent <command> [flags]

Commands:
  run        Authenticate and start the agent's request loops and event dispatcher
  validate   Load and validate a config file without starting the agent
  stats      Poll the Prometheus metrics endpoint and print live counters

Examples:
  wazuh-agent run -config /etc/wazuh-agent/agent.yaml -uuid 0001 -key secret
  wazuh-agent validate -config /etc/wazuh-agent/agent.yaml
  wazuh-agent stats -url http://localhost:9101/metrics -interval 1s
`)
}

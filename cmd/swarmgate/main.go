// Package main provides the entry point for the swarmgate orchestrator.
//
// Swarmgate tracks a set of OpenAI-compatible inference backends, probes
// their liveness on a schedule, and routes incoming tasks to the backend
// best suited to each task type, with deterministic fallback.
//
// Usage:
//
//	swarmgate --config swarmgate.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/swarmhub/swarmgate/internal/config"
	"github.com/swarmhub/swarmgate/internal/events"
	"github.com/swarmhub/swarmgate/internal/executor"
	"github.com/swarmhub/swarmgate/internal/health"
	"github.com/swarmhub/swarmgate/internal/logging"
	"github.com/swarmhub/swarmgate/internal/orchestrator"
	"github.com/swarmhub/swarmgate/internal/registry"
	"github.com/swarmhub/swarmgate/internal/report"
	"github.com/swarmhub/swarmgate/internal/routing"
	"github.com/swarmhub/swarmgate/internal/scheduler"
	"github.com/swarmhub/swarmgate/internal/server"
)

var (
	configPath  = flag.String("config", "swarmgate.yaml", "Path to YAML configuration file")
	showVersion = flag.Bool("version", false, "Show version information")
)

const appVersion = "1.0.0"

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("swarmgate v%s\n", appVersion)
		os.Exit(0)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logging.Setup(cfg.Logging.Level)
	logger := logging.WithComponent("main")

	reg, err := registry.FromConfig(cfg.Backends)
	if err != nil {
		return fmt.Errorf("build registry: %w", err)
	}

	policy, err := routing.NewPolicy(cfg.Routing, reg)
	if err != nil {
		return fmt.Errorf("build routing policy: %w", err)
	}

	prober := health.NewProber(reg, health.Options{
		Interval:         cfg.Probe.Interval.Std(),
		Timeout:          cfg.Probe.Timeout.Std(),
		FailureThreshold: cfg.Probe.FailureThreshold,
	}, logging.WithComponent("health"))

	var publisher orchestrator.Publisher
	var stream *events.Stream
	if cfg.Events.Enabled {
		stream, err = events.NewStream(cfg.Events, logging.WithComponent("events"))
		if err != nil {
			return fmt.Errorf("connect events stream: %w", err)
		}
		defer stream.Close()
		publisher = stream

		prober.OnTransition(func(backend string, from, to health.State) {
			stream.PublishAsync(events.HealthTransition(backend, from.String(), to.String()))
		})
	}

	router := routing.NewRouter(reg, policy, prober, logging.WithComponent("routing"))
	history := report.NewHistory(cfg.History.Capacity)
	exec := executor.New(router, history, executor.Options{
		MaxAttempts:    cfg.Executor.MaxAttempts,
		RequestTimeout: cfg.Executor.RequestTimeout.Std(),
		Temperature:    cfg.Executor.Temperature,
	}, logging.WithComponent("executor"))
	reporter := report.NewReporter(reg, prober, history)
	orch := orchestrator.New(exec, reporter, publisher, logging.WithComponent("orchestrator"))

	prober.Start()
	defer prober.Stop()

	if cfg.Digest.Enabled {
		digest, err := scheduler.New(cfg.Digest.Schedule, orch, logging.WithComponent("scheduler"))
		if err != nil {
			return err
		}
		digest.Start()
		defer digest.Stop()
	}

	srv := server.New(cfg, orch, logging.WithComponent("server"))
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	logger.Info("Swarmgate started",
		"backends", len(reg.List()), "addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Shutting down", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

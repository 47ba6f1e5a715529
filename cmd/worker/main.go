package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	temporalclient "go.temporal.io/sdk/client"

	"github.com/efebarandurmaz/flowlens/internal/app"
	"github.com/efebarandurmaz/flowlens/internal/config"
	"github.com/efebarandurmaz/flowlens/internal/observability"
	"github.com/efebarandurmaz/flowlens/internal/server"
	temporalmod "github.com/efebarandurmaz/flowlens/internal/temporal"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func main() {
	configPath := ""
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := observability.NewLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracingCfg := observability.DefaultTracingConfig()
	tracingCfg.ServiceName = "flowlens-worker"
	tracingCfg.OTLPEndpoint = cfg.Tracing.Endpoint
	tracingCfg.SampleRate = cfg.Tracing.SampleRate
	tracingCfg.Environment = cfg.Tracing.Environment
	tp, err := observability.InitTracing(ctx, tracingCfg)
	if err != nil {
		log.Fatalf("tracing: %v", err)
	}
	defer tp.Shutdown(context.Background())

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("setup: %v", err)
	}
	defer a.Close(context.Background())

	temporalmod.SetDependencies(&temporalmod.Dependencies{
		Engine:     a.Engine,
		Repository: a.Repository,
	})

	c, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
		Logger:    logger,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	health := server.NewHealth()
	health.Require("temporal", func(ctx context.Context) error {
		_, err := c.CheckHealth(ctx, &temporalclient.CheckHealthRequest{})
		return err
	})
	if p, ok := a.Repository.(pinger); ok {
		health.Optional("neo4j", p.Ping)
	}
	if p, ok := a.VectorStore.(pinger); ok {
		health.Optional("qdrant", p.Ping)
	}

	w, err := temporalmod.StartWorker(c, cfg.Temporal.TaskQueue)
	if err != nil {
		log.Fatalf("worker: %v", err)
	}
	defer w.Stop()
	health.SetReady(true)

	logger.Info("worker started", "task_queue", cfg.Temporal.TaskQueue, "ops", cfg.Metrics.Listen)
	if err := server.Serve(ctx, cfg.Metrics.Listen, health.Handler(), logger); err != nil {
		logger.Error("ops server", "error", err)
	}
	health.SetReady(false)
	logger.Info("worker stopped")
}

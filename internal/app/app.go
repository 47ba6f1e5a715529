// Package app wires configuration into a ready engine and its backing
// stores. Both binaries build their dependencies through it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/efebarandurmaz/flowlens/internal/advisor"
	"github.com/efebarandurmaz/flowlens/internal/config"
	"github.com/efebarandurmaz/flowlens/internal/engine"
	"github.com/efebarandurmaz/flowlens/internal/graph"
	"github.com/efebarandurmaz/flowlens/internal/graph/neo4j"
	"github.com/efebarandurmaz/flowlens/internal/history"
	"github.com/efebarandurmaz/flowlens/internal/llm"
	"github.com/efebarandurmaz/flowlens/internal/llm/openai"
	"github.com/efebarandurmaz/flowlens/internal/modelcache"
	"github.com/efebarandurmaz/flowlens/internal/observability"
	"github.com/efebarandurmaz/flowlens/internal/vector"
	"github.com/efebarandurmaz/flowlens/internal/vector/qdrant"
)

// App holds the engine and every resource that must be closed with it.
type App struct {
	Engine *engine.Engine
	Cache  *modelcache.Cache
	Index  *vector.Index
	// VectorStore backs Index; in memory unless vector.host is configured.
	VectorStore vector.Repository
	// Repository is nil unless graph.uri is configured.
	Repository graph.Repository
	Provider   llm.Provider

	closers []func(context.Context) error
	logger  *slog.Logger
}

// Providers returns a factory with every supported oracle backend.
func Providers() *llm.ProviderFactory {
	f := llm.NewFactory()
	openai.Register(f)
	f.Register("custom", func(cfg llm.ProviderConfig) (llm.Provider, error) {
		if cfg.BaseURL == "" {
			return nil, errors.New("custom provider needs base_url")
		}
		return openai.New("custom", cfg.APIKey, cfg.Model, cfg.BaseURL), nil
	})
	return f
}

// New connects the configured backends and builds the engine. Backends
// left unconfigured are skipped; the cache then lives in memory and the
// similarity index is process local. On error every resource opened so
// far is closed.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{logger: logger}
	if err := a.build(ctx, cfg); err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, cfg *config.Config) error {
	provider, err := Providers().Create(llm.ProviderConfig{
		Provider:          cfg.LLM.Provider,
		APIKey:            cfg.LLM.APIKey,
		Model:             cfg.LLM.Model,
		BaseURL:           cfg.LLM.BaseURL,
		Timeout:           cfg.LLM.Timeout,
		MaxRetries:        cfg.LLM.MaxRetries,
		RetryDelay:        time.Second,
		RequestsPerMinute: cfg.LLM.RequestsPerMinute,
	})
	if err != nil {
		return err
	}
	a.Provider = provider

	advOpts := []advisor.Option{
		advisor.WithTimeout(cfg.Engine.OracleTimeout),
		advisor.WithAcceptAbove(cfg.Engine.AcceptAbove),
		advisor.WithLogger(a.logger),
	}
	if provider != nil {
		advOpts = append(advOpts, advisor.WithOracle(advisor.NewLLMOracle(provider)))
		a.logger.Info("oracle enabled", "provider", provider.Name())
	}

	cacheOpts := []modelcache.Option{
		modelcache.WithCapacity(cfg.Cache.Capacity),
		modelcache.WithMaxAge(cfg.Cache.MaxAge),
		modelcache.WithAccuracyFloor(cfg.Cache.AccuracyFloor),
		modelcache.WithLogger(a.logger),
	}
	if cfg.Cache.Path != "" {
		store, err := modelcache.OpenBadger(modelcache.BadgerConfig{Path: cfg.Cache.Path, Logger: a.logger})
		if err != nil {
			return err
		}
		a.onClose(func(context.Context) error { return store.Close() })
		cacheOpts = append(cacheOpts, modelcache.WithStore(store))
	}
	a.Cache = modelcache.New(cacheOpts...)
	if cfg.Cache.Path != "" {
		n, err := a.Cache.Load(ctx)
		if err != nil {
			return fmt.Errorf("load model cache: %w", err)
		}
		a.logger.Debug("model cache loaded", "models", n, "path", cfg.Cache.Path)
	}

	hist, err := history.Open(ctx, cfg.History)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	if hist != nil {
		a.onClose(func(context.Context) error { return hist.Close() })
	}

	var repo vector.Repository
	if cfg.Vector.Host != "" {
		q, err := qdrant.New(cfg.Vector.Host, cfg.Vector.Port, cfg.Vector.Collection)
		if err != nil {
			return err
		}
		repo = q
	} else {
		repo = vector.NewMemoryRepository()
	}
	a.VectorStore = repo
	idx, err := vector.NewIndex(ctx, repo)
	if err != nil {
		_ = repo.Close()
		return err
	}
	a.Index = idx
	a.onClose(func(context.Context) error { return idx.Close() })

	if cfg.Graph.URI != "" {
		g, err := neo4j.New(ctx, cfg.Graph.URI, cfg.Graph.Username, cfg.Graph.Password, cfg.Graph.Database)
		if err != nil {
			return err
		}
		a.Repository = g
		a.onClose(g.Close)
	}

	var audit *observability.AuditLogger
	if cfg.Audit.Enabled {
		audit, err = observability.NewAuditLogger(observability.AuditConfig{Enabled: true, OutputPath: cfg.Audit.Output})
		if err != nil {
			return err
		}
		a.onClose(func(context.Context) error { return audit.Close() })
	}

	engOpts := []engine.Option{
		engine.WithAdvisor(advisor.New(advOpts...)),
		engine.WithCache(a.Cache),
		engine.WithIndex(idx),
		engine.WithAudit(audit),
		engine.WithLogger(a.logger),
	}
	if hist != nil {
		engOpts = append(engOpts, engine.WithHistory(hist))
	}
	a.Engine = engine.New(engOpts...)
	return nil
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of opening.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Package engine is the entry point for flow analysis and optimization. It
// wires the extractor, pattern analyzer, advisor, applier and model cache,
// plus the optional history, similarity and audit collaborators.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/efebarandurmaz/flowlens/internal/advisor"
	"github.com/efebarandurmaz/flowlens/internal/analysis"
	"github.com/efebarandurmaz/flowlens/internal/flow"
	"github.com/efebarandurmaz/flowlens/internal/history"
	"github.com/efebarandurmaz/flowlens/internal/modelcache"
	"github.com/efebarandurmaz/flowlens/internal/observability"
	"github.com/efebarandurmaz/flowlens/internal/patterns"
	"github.com/efebarandurmaz/flowlens/internal/vector"
)

var (
	// ErrNilFlow is returned when a nil flow is passed.
	ErrNilFlow = errors.New("flow is nil")
	// ErrNoIndex is returned by similarity operations without an index.
	ErrNoIndex = errors.New("similarity index is not configured")
)

// Defaults for history lookups.
const (
	DefaultHistoryWindow  = 7 * 24 * time.Hour
	DefaultHistoryTimeout = 2 * time.Second
)

// Engine is safe for concurrent use.
type Engine struct {
	advisor        *advisor.Advisor
	cache          *modelcache.Cache
	history        history.Reader
	index          *vector.Index
	audit          *observability.AuditLogger
	logger         *slog.Logger
	historyWindow  time.Duration
	historyTimeout time.Duration
	now            func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithAdvisor replaces the default heuristics-only advisor.
func WithAdvisor(a *advisor.Advisor) Option {
	return func(e *Engine) {
		if a != nil {
			e.advisor = a
		}
	}
}

// WithCache replaces the default in-memory cache.
func WithCache(c *modelcache.Cache) Option {
	return func(e *Engine) {
		if c != nil {
			e.cache = c
		}
	}
}

// WithHistory enables historical comparison in predictions.
func WithHistory(r history.Reader) Option {
	return func(e *Engine) { e.history = r }
}

// WithHistoryWindow sets how far back history is read.
func WithHistoryWindow(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.historyWindow = d
		}
	}
}

// WithIndex enables SimilarFlows and IndexFlow.
func WithIndex(x *vector.Index) Option {
	return func(e *Engine) { e.index = x }
}

// WithAudit records optimization events.
func WithAudit(a *observability.AuditLogger) Option {
	return func(e *Engine) { e.audit = a }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock replaces time.Now for history windows.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates an Engine. Without options it runs heuristics only with an
// in-memory cache.
func New(opts ...Option) *Engine {
	e := &Engine{
		logger:         slog.Default(),
		historyWindow:  DefaultHistoryWindow,
		historyTimeout: DefaultHistoryTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.advisor == nil {
		e.advisor = advisor.New(advisor.WithLogger(e.logger))
	}
	if e.cache == nil {
		e.cache = modelcache.New(modelcache.WithLogger(e.logger))
	}
	return e
}

// Analyze extracts structural features.
func (e *Engine) Analyze(f *flow.Flow) analysis.Features {
	return analysis.Extract(f)
}

// ResolveExecutionOrder returns every block exactly once, dependencies
// first where the flow is acyclic.
func (e *Engine) ResolveExecutionOrder(f *flow.Flow) []string {
	return analysis.ExecutionOrder(f)
}

// ParallelGroups returns sibling blocks that can run concurrently.
func (e *Engine) ParallelGroups(f *flow.Flow) [][]string {
	return analysis.ParallelGroups(f)
}

// DetectPatterns runs the pattern analyzer and counts findings.
func (e *Engine) DetectPatterns(f *flow.Flow, feat analysis.Features) *patterns.Report {
	report := patterns.Detect(f, feat)
	for _, fd := range report.All() {
		observability.FindingDetected(string(fd.Category), string(fd.Severity))
	}
	return report
}

// Analysis bundles the read-only results for one flow.
type Analysis struct {
	FlowID    string            `json:"flow_id"`
	Features  analysis.Features `json:"features"`
	Patterns  *patterns.Report  `json:"patterns"`
	Order     []string          `json:"order"`
	Groups    [][]string        `json:"parallel_groups"`
	Signature string            `json:"signature"`
}

// Inspect runs every read-only analysis on f.
func (e *Engine) Inspect(ctx context.Context, f *flow.Flow) (*Analysis, error) {
	if f == nil {
		return nil, ErrNilFlow
	}
	_, span := observability.StartAnalysisSpan(ctx, "inspect", f.ID, len(f.Blocks))
	defer span.End()

	feat := e.Analyze(f)
	return &Analysis{
		FlowID:    f.ID,
		Features:  feat,
		Patterns:  e.DetectPatterns(f, feat),
		Order:     e.ResolveExecutionOrder(f),
		Groups:    e.ParallelGroups(f),
		Signature: modelcache.Signature(feat),
	}, nil
}

// CacheStats summarises the model cache.
func (e *Engine) CacheStats() modelcache.Stats { return e.cache.Stats() }

// ClearCache drops every cached model.
func (e *Engine) ClearCache(ctx context.Context) error { return e.cache.Clear(ctx) }

// RecordOutcome feeds an observed improvement back into the cached model
// for sig and returns its new accuracy.
func (e *Engine) RecordOutcome(sig string, observed float64) (float64, error) {
	acc, err := e.cache.RecordOutcome(sig, observed)
	if err != nil {
		return 0, fmt.Errorf("record outcome: %w", err)
	}
	e.audit.LogOutcome(sig, observed, acc)
	return acc, nil
}

// IndexFlow adds f to the similarity index.
func (e *Engine) IndexFlow(ctx context.Context, f *flow.Flow) error {
	if f == nil {
		return ErrNilFlow
	}
	if e.index == nil {
		return ErrNoIndex
	}
	feat := e.Analyze(f)
	return e.index.Add(ctx, f, feat, modelcache.Signature(feat))
}

// SimilarFlows returns up to k indexed flows structurally closest to f,
// excluding f itself.
func (e *Engine) SimilarFlows(ctx context.Context, f *flow.Flow, k int) ([]vector.Match, error) {
	if f == nil {
		return nil, ErrNilFlow
	}
	if e.index == nil {
		return nil, ErrNoIndex
	}
	return e.index.Similar(ctx, e.Analyze(f), k, f.ID)
}

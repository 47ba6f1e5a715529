package engine

import (
	"context"
	"time"

	"github.com/efebarandurmaz/flowlens/internal/advisor"
	"github.com/efebarandurmaz/flowlens/internal/analysis"
	"github.com/efebarandurmaz/flowlens/internal/flow"
	"github.com/efebarandurmaz/flowlens/internal/modelcache"
	"github.com/efebarandurmaz/flowlens/internal/observability"
	"github.com/efebarandurmaz/flowlens/internal/optimizer"
	"github.com/efebarandurmaz/flowlens/internal/patterns"
)

// Result is the outcome of Optimize.
type Result struct {
	Original            *flow.Flow                    `json:"original"`
	Optimized           *flow.Flow                    `json:"optimized"`
	Predictions         []advisor.Opportunity         `json:"predictions"`
	Applied             []advisor.AppliedOptimization `json:"applied"`
	ExpectedImprovement float64                       `json:"expected_improvement"`
	Confidence          float64                       `json:"confidence"`
	Features            analysis.Features             `json:"features"`
	Patterns            *patterns.Report              `json:"patterns"`
	Signature           string                        `json:"signature"`
	CacheHit            bool                          `json:"cache_hit"`
	OracleUsed          bool                          `json:"oracle_used"`
	FallbackReason      string                        `json:"fallback_reason,omitempty"`
	// Performance is predicted for the optimized flow; BaselineLatency is
	// the estimate for the original.
	Performance     *Prediction   `json:"performance"`
	BaselineLatency time.Duration `json:"baseline_latency"`
}

// Optimize analyzes f, obtains advice (from the cache when the signature
// is known), and applies the accepted opportunities to a copy of f. The
// input flow is never mutated. It fails only on a nil flow.
func (e *Engine) Optimize(ctx context.Context, f *flow.Flow) (*Result, error) {
	if f == nil {
		return nil, ErrNilFlow
	}
	start := time.Now()
	ctx, span := observability.StartOptimizeSpan(ctx, f.ID)
	defer span.End()

	feat := e.Analyze(f)
	report := e.DetectPatterns(f, feat)
	sig := modelcache.Signature(feat)

	var fresh *advisor.Advice
	model, hit, err := e.cache.GetOrCompute(ctx, sig, func(ctx context.Context) (*modelcache.Model, []string, error) {
		fresh = e.advisor.Advise(ctx, f, feat, report)
		return modelFromAdvice(f, feat, fresh), changesOf(fresh), nil
	})
	if err != nil {
		observability.RecordError(span, err)
		e.logger.Warn("model cache", "flow", f.ID, "error", err)
		hit = false
	}

	res := &Result{
		Original:  f,
		Features:  feat,
		Patterns:  report,
		Signature: sig,
		CacheHit:  hit,
	}

	var (
		predictions, accepted []advisor.Opportunity
		oracleUsed            bool
		oracleConfidence      int
	)
	switch {
	case fresh != nil:
		predictions, accepted = fresh.Opportunities, fresh.Accepted
		oracleUsed, oracleConfidence = fresh.OracleUsed, fresh.OracleConfidence
		res.FallbackReason = fresh.FallbackReason
	case model != nil && sameFlow(model, f):
		predictions, accepted = model.Predictions, model.Applied
		oracleUsed, oracleConfidence = model.OracleUsed, model.OracleConfidence
	default:
		// The cached model was advised for another flow of the same shape;
		// its targets say nothing about this one.
		local := e.advisor.AdviseLocal(f, feat, report)
		predictions, accepted = local.Opportunities, local.Accepted
	}
	if res.FallbackReason != "" {
		e.audit.LogOracleFallback(f.ID, res.FallbackReason)
	}

	optimized, applied := optimizer.Apply(f, accepted)
	gains := make([]int, len(applied))
	confs := make([]int, len(applied))
	for i, a := range applied {
		gains[i], confs[i] = a.ExpectedGain, a.Confidence
		observability.OptimizationApplied(string(a.Type))
		e.audit.LogApplied(f.ID, string(a.Type), a.Targets, a.Description)
	}

	res.Optimized = optimized
	res.Predictions = predictions
	res.Applied = applied
	res.OracleUsed = oracleUsed
	res.ExpectedImprovement = advisor.DiminishingReturns(gains)
	res.Confidence = advisor.CompositeConfidence(confs, oracleUsed, oracleConfidence)
	res.BaselineLatency = analysis.EstimateLatency(f, analysis.ExecutionGroups(f), nil)
	res.Performance = e.PredictPerformance(ctx, optimized)

	observability.RecordOptimizeResult(span, sig, hit, len(applied), res.ExpectedImprovement)
	observability.ObserveOptimize(time.Since(start), hit)
	e.audit.LogOptimize(f.ID, sig, hit, len(applied), res.ExpectedImprovement)
	e.logger.Debug("optimized flow",
		"flow", f.ID, "signature", sig, "cache_hit", hit,
		"applied", len(applied), "expected_improvement", res.ExpectedImprovement)
	return res, nil
}

func modelFromAdvice(f *flow.Flow, feat analysis.Features, a *advisor.Advice) *modelcache.Model {
	return &modelcache.Model{
		FlowID:              f.ID,
		Fingerprint:         modelcache.Fingerprint(f),
		Features:            feat,
		Predictions:         a.Opportunities,
		Applied:             a.Accepted,
		ExpectedImprovement: a.ExpectedImprovement,
		OracleUsed:          a.OracleUsed,
		OracleConfidence:    a.OracleConfidence,
		Metadata:            modelcache.Metadata{Confidence: a.Confidence},
	}
}

func changesOf(a *advisor.Advice) []string {
	out := make([]string, 0, len(a.Accepted))
	for _, o := range a.Accepted {
		out = append(out, string(o.Type))
	}
	return out
}

// sameFlow reports whether m was advised for f as it is now.
func sameFlow(m *modelcache.Model, f *flow.Flow) bool {
	return m.FlowID == f.ID && m.Fingerprint != "" && m.Fingerprint == modelcache.Fingerprint(f)
}

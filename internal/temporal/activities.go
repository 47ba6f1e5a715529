package temporal

import (
	"context"
	"errors"

	sdktemporal "go.temporal.io/sdk/temporal"

	"github.com/efebarandurmaz/flowlens/internal/advisor"
	"github.com/efebarandurmaz/flowlens/internal/engine"
	"github.com/efebarandurmaz/flowlens/internal/flow"
	"github.com/efebarandurmaz/flowlens/internal/graph"
)

// AnalyzeResult is the serializable result of AnalyzeActivity.
type AnalyzeResult struct {
	FlowID        string
	Signature     string
	SafeToExecute bool
	Findings      int
	Order         []string
}

// OptimizeResult is the serializable result of OptimizeActivity.
type OptimizeResult struct {
	Optimized           *flow.Flow
	Applied             []advisor.AppliedOptimization
	ExpectedImprovement float64
	Confidence          float64
	CacheHit            bool
	OracleUsed          bool
}

// Dependencies holds shared resources injected into activities.
type Dependencies struct {
	Engine     *engine.Engine
	Repository graph.Repository // optional
}

var deps *Dependencies

// SetDependencies injects shared resources (called during worker setup).
func SetDependencies(d *Dependencies) {
	deps = d
}

func currentEngine() (*engine.Engine, error) {
	if deps == nil || deps.Engine == nil {
		return nil, sdktemporal.NewNonRetryableApplicationError("worker has no engine", "Configuration", nil)
	}
	return deps.Engine, nil
}

func nilFlow(err error) error {
	if errors.Is(err, engine.ErrNilFlow) {
		return sdktemporal.NewNonRetryableApplicationError(err.Error(), "InvalidInput", err)
	}
	return err
}

func AnalyzeActivity(ctx context.Context, f *flow.Flow) (AnalyzeResult, error) {
	e, err := currentEngine()
	if err != nil {
		return AnalyzeResult{}, err
	}
	a, err := e.Inspect(ctx, f)
	if err != nil {
		return AnalyzeResult{}, nilFlow(err)
	}
	return AnalyzeResult{
		FlowID:        a.FlowID,
		Signature:     a.Signature,
		SafeToExecute: a.Patterns.SafeToExecute(),
		Findings:      len(a.Patterns.All()),
		Order:         a.Order,
	}, nil
}

func OptimizeActivity(ctx context.Context, f *flow.Flow) (OptimizeResult, error) {
	e, err := currentEngine()
	if err != nil {
		return OptimizeResult{}, err
	}
	res, err := e.Optimize(ctx, f)
	if err != nil {
		return OptimizeResult{}, nilFlow(err)
	}
	return OptimizeResult{
		Optimized:           res.Optimized,
		Applied:             res.Applied,
		ExpectedImprovement: res.ExpectedImprovement,
		Confidence:          res.Confidence,
		CacheHit:            res.CacheHit,
		OracleUsed:          res.OracleUsed,
	}, nil
}

func StoreFlowActivity(ctx context.Context, f *flow.Flow) error {
	if deps == nil || deps.Repository == nil {
		return sdktemporal.NewNonRetryableApplicationError("worker has no flow repository", "Configuration", nil)
	}
	if f == nil {
		return sdktemporal.NewNonRetryableApplicationError("flow is nil", "InvalidInput", nil)
	}
	return deps.Repository.StoreFlow(ctx, f)
}

func IndexFlowActivity(ctx context.Context, f *flow.Flow) error {
	e, err := currentEngine()
	if err != nil {
		return err
	}
	if err := e.IndexFlow(ctx, f); err != nil {
		if errors.Is(err, engine.ErrNoIndex) {
			return sdktemporal.NewNonRetryableApplicationError(err.Error(), "Configuration", err)
		}
		return nilFlow(err)
	}
	return nil
}

package temporal

import (
	"time"

	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/efebarandurmaz/flowlens/internal/advisor"
	"github.com/efebarandurmaz/flowlens/internal/flow"
)

// WorkflowName is the registered name of OptimizeWorkflow.
const WorkflowName = "OptimizeWorkflow"

// OptimizeInput holds the workflow parameters.
type OptimizeInput struct {
	Flow *flow.Flow
	// Force optimizes even when a circular dependency was found.
	Force bool
	// Store persists the optimized flow in the flow repository.
	Store bool
	// Index adds the original flow to the similarity index.
	Index bool
}

// OptimizeOutput holds the workflow result.
type OptimizeOutput struct {
	FlowID              string
	Signature           string
	SafeToExecute       bool
	Findings            int
	Optimized           *flow.Flow
	Applied             []advisor.AppliedOptimization
	ExpectedImprovement float64
	Confidence          float64
	CacheHit            bool
	OracleUsed          bool
	Stored              bool
	Indexed             bool
	Warnings            []string
}

// OptimizeWorkflow analyzes a flow, optimizes it unless it is unsafe, and
// optionally persists and indexes the result. Persistence failures after
// optimization are reported as warnings.
func OptimizeWorkflow(ctx workflow.Context, input OptimizeInput) (*OptimizeOutput, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &sdktemporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2,
			MaximumAttempts:    3,
		},
	})
	logger := workflow.GetLogger(ctx)

	var analyzed AnalyzeResult
	if err := workflow.ExecuteActivity(ctx, AnalyzeActivity, input.Flow).Get(ctx, &analyzed); err != nil {
		return nil, err
	}
	out := &OptimizeOutput{
		FlowID:        analyzed.FlowID,
		Signature:     analyzed.Signature,
		SafeToExecute: analyzed.SafeToExecute,
		Findings:      analyzed.Findings,
	}

	if !analyzed.SafeToExecute && !input.Force {
		out.Warnings = append(out.Warnings, "circular dependency found; optimization skipped")
		return out, nil
	}

	var optimized OptimizeResult
	if err := workflow.ExecuteActivity(ctx, OptimizeActivity, input.Flow).Get(ctx, &optimized); err != nil {
		return nil, err
	}
	out.Optimized = optimized.Optimized
	out.Applied = optimized.Applied
	out.ExpectedImprovement = optimized.ExpectedImprovement
	out.Confidence = optimized.Confidence
	out.CacheHit = optimized.CacheHit
	out.OracleUsed = optimized.OracleUsed

	if input.Store {
		if err := workflow.ExecuteActivity(ctx, StoreFlowActivity, optimized.Optimized).Get(ctx, nil); err != nil {
			logger.Warn("store optimized flow", "flow", out.FlowID, "error", err)
			out.Warnings = append(out.Warnings, "store: "+err.Error())
		} else {
			out.Stored = true
		}
	}
	if input.Index {
		if err := workflow.ExecuteActivity(ctx, IndexFlowActivity, input.Flow).Get(ctx, nil); err != nil {
			logger.Warn("index flow", "flow", out.FlowID, "error", err)
			out.Warnings = append(out.Warnings, "index: "+err.Error())
		} else {
			out.Indexed = true
		}
	}
	return out, nil
}

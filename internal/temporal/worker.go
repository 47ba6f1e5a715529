package temporal

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
)

// StartWorker creates and starts a Temporal worker.
func StartWorker(c client.Client, taskQueue string) (worker.Worker, error) {
	w := worker.New(c, taskQueue, worker.Options{})

	w.RegisterWorkflowWithOptions(OptimizeWorkflow, workflow.RegisterOptions{Name: WorkflowName})
	w.RegisterActivity(AnalyzeActivity)
	w.RegisterActivity(OptimizeActivity)
	w.RegisterActivity(StoreFlowActivity)
	w.RegisterActivity(IndexFlowActivity)

	if err := w.Start(); err != nil {
		return nil, fmt.Errorf("starting worker: %w", err)
	}
	return w, nil
}

// WorkflowID returns a unique id for an optimization run of flowID.
func WorkflowID(flowID string) string {
	return "optimize-" + flowID + "-" + uuid.NewString()
}

// Submit starts OptimizeWorkflow on taskQueue.
func Submit(ctx context.Context, c client.Client, taskQueue string, input OptimizeInput) (client.WorkflowRun, error) {
	if input.Flow == nil {
		return nil, fmt.Errorf("submit: flow is nil")
	}
	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        WorkflowID(input.Flow.ID),
		TaskQueue: taskQueue,
	}, WorkflowName, input)
	if err != nil {
		return nil, fmt.Errorf("start workflow: %w", err)
	}
	return run, nil
}

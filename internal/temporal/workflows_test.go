package temporal

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/efebarandurmaz/flowlens/internal/engine"
	"github.com/efebarandurmaz/flowlens/internal/flow"
	"github.com/efebarandurmaz/flowlens/internal/flow/flowtest"
	"github.com/efebarandurmaz/flowlens/internal/graph"
	"github.com/efebarandurmaz/flowlens/internal/vector"
)

type memoryRepo struct {
	mu    sync.Mutex
	flows map[string]*flow.Flow
	err   error
}

func (r *memoryRepo) StoreFlow(_ context.Context, f *flow.Flow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if r.flows == nil {
		r.flows = map[string]*flow.Flow{}
	}
	r.flows[f.ID] = f
	return nil
}

func (r *memoryRepo) LoadFlow(_ context.Context, id string) (*flow.Flow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.flows[id]; ok {
		return f, nil
	}
	return nil, &flow.NotFoundError{Entity: "flow", ID: id}
}

func (r *memoryRepo) ListFlows(context.Context) ([]graph.FlowSummary, error) { return nil, nil }

func (r *memoryRepo) Downstream(context.Context, string, string) ([]string, error) { return nil, nil }

func (r *memoryRepo) Close(context.Context) error { return nil }

func cyclicFlow() *flow.Flow {
	f := flowtest.Reference()
	if _, err := f.Connect(flow.Endpoint{BlockID: "aggregate"}, flow.Endpoint{BlockID: "transform"}, ""); err != nil {
		panic(err)
	}
	return f
}

func newEnv(t *testing.T) *testsuite.TestWorkflowEnvironment {
	t.Helper()
	var s testsuite.WorkflowTestSuite
	env := s.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(OptimizeWorkflow)
	env.RegisterActivity(AnalyzeActivity)
	env.RegisterActivity(OptimizeActivity)
	env.RegisterActivity(StoreFlowActivity)
	env.RegisterActivity(IndexFlowActivity)
	return env
}

func TestOptimizeWorkflow_Reference(t *testing.T) {
	repo := &memoryRepo{}
	idx, err := vector.NewIndex(context.Background(), vector.NewMemoryRepository())
	require.NoError(t, err)
	SetDependencies(&Dependencies{Engine: engine.New(engine.WithIndex(idx)), Repository: repo})

	env := newEnv(t)
	env.ExecuteWorkflow(OptimizeWorkflow, OptimizeInput{Flow: flowtest.Reference(), Store: true, Index: true})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out OptimizeOutput
	require.NoError(t, env.GetWorkflowResult(&out))
	assert.Equal(t, "reference", out.FlowID)
	assert.True(t, out.SafeToExecute)
	require.Len(t, out.Applied, 1)
	assert.InDelta(t, 20.0, out.ExpectedImprovement, 1e-9)
	assert.True(t, out.Stored)
	assert.True(t, out.Indexed)
	assert.Empty(t, out.Warnings)

	require.NotNil(t, out.Optimized)
	b, err := out.Optimized.Block("filter2")
	require.NoError(t, err)
	assert.True(t, b.Flag(flow.ParamParallelExecution))

	stored, err := repo.LoadFlow(context.Background(), "reference")
	require.NoError(t, err)
	assert.Len(t, stored.Blocks, 6)
}

func TestOptimizeWorkflow_CycleSkipsOptimization(t *testing.T) {
	SetDependencies(&Dependencies{Engine: engine.New()})

	env := newEnv(t)
	env.ExecuteWorkflow(OptimizeWorkflow, OptimizeInput{Flow: cyclicFlow()})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out OptimizeOutput
	require.NoError(t, env.GetWorkflowResult(&out))
	assert.False(t, out.SafeToExecute)
	assert.Nil(t, out.Optimized)
	assert.Empty(t, out.Applied)
	require.Len(t, out.Warnings, 1)
	assert.Contains(t, out.Warnings[0], "circular dependency")
}

func TestOptimizeWorkflow_DeepAcyclicFlowIsOptimized(t *testing.T) {
	SetDependencies(&Dependencies{Engine: engine.New()})

	kinds := []flow.BlockKind{flow.KindInput}
	for len(kinds) < 13 {
		kinds = append(kinds, flow.KindCustom)
	}
	deep := flowtest.Chain("deep", kinds...)

	env := newEnv(t)
	env.ExecuteWorkflow(OptimizeWorkflow, OptimizeInput{Flow: deep})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out OptimizeOutput
	require.NoError(t, env.GetWorkflowResult(&out))
	assert.True(t, out.SafeToExecute)
	require.NotNil(t, out.Optimized)
	assert.Empty(t, out.Warnings)
	assert.Positive(t, out.Findings, "nesting is still reported")
}

func TestOptimizeWorkflow_PersistenceFailuresAreWarnings(t *testing.T) {
	SetDependencies(&Dependencies{Engine: engine.New(), Repository: &memoryRepo{err: errors.New("neo4j down")}})

	env := newEnv(t)
	env.ExecuteWorkflow(OptimizeWorkflow, OptimizeInput{Flow: flowtest.Reference(), Store: true, Index: true})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out OptimizeOutput
	require.NoError(t, env.GetWorkflowResult(&out))
	assert.False(t, out.Stored)
	assert.False(t, out.Indexed)
	require.Len(t, out.Warnings, 2)
	assert.True(t, strings.HasPrefix(out.Warnings[0], "store: "))
	assert.Contains(t, out.Warnings[1], "similarity index is not configured")
	assert.Len(t, out.Applied, 1)
}

func TestOptimizeWorkflow_NilFlowFails(t *testing.T) {
	SetDependencies(&Dependencies{Engine: engine.New()})

	env := newEnv(t)
	env.ExecuteWorkflow(OptimizeWorkflow, OptimizeInput{})
	require.True(t, env.IsWorkflowCompleted())
	assert.Error(t, env.GetWorkflowError())
}

func TestAnalyzeActivity(t *testing.T) {
	SetDependencies(&Dependencies{Engine: engine.New()})

	var s testsuite.WorkflowTestSuite
	env := s.NewTestActivityEnvironment()
	env.RegisterActivity(AnalyzeActivity)

	val, err := env.ExecuteActivity(AnalyzeActivity, flowtest.Reference())
	require.NoError(t, err)
	var res AnalyzeResult
	require.NoError(t, val.Get(&res))
	assert.Equal(t, "reference", res.FlowID)
	assert.Len(t, res.Signature, 64)
	assert.Equal(t, []string{"input", "transform", "filter1", "filter2", "aggregate", "output"}, res.Order)
}

func TestActivities_WithoutDependencies(t *testing.T) {
	SetDependencies(nil)
	_, err := OptimizeActivity(context.Background(), flowtest.Reference())
	assert.ErrorContains(t, err, "no engine")
	assert.ErrorContains(t, StoreFlowActivity(context.Background(), flowtest.Reference()), "no flow repository")
}

func TestWorkflowID(t *testing.T) {
	a, b := WorkflowID("f1"), WorkflowID("f1")
	assert.True(t, strings.HasPrefix(a, "optimize-f1-"))
	assert.NotEqual(t, a, b)
}

package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/flowlens/internal/advisor"
	"github.com/efebarandurmaz/flowlens/internal/flow"
	"github.com/efebarandurmaz/flowlens/internal/flow/flowtest"
	"github.com/efebarandurmaz/flowlens/internal/history"
	"github.com/efebarandurmaz/flowlens/internal/observability"
	"github.com/efebarandurmaz/flowlens/internal/vector"
)

type failingOracle struct{ err error }

func (o failingOracle) Suggest(context.Context, advisor.Request) (*advisor.Suggestion, error) {
	return nil, o.err
}

type fakeHistory struct {
	stats []history.BlockStat
	err   error
	since time.Time
}

func (h *fakeHistory) BlockStats(_ context.Context, _ string, since time.Time) ([]history.BlockStat, error) {
	h.since = since
	return h.stats, h.err
}

func renamedReference() *flow.Flow {
	return flowtest.Build("renamed",
		[]flowtest.Node{
			{ID: "src", Kind: flow.KindInput},
			{ID: "map", Kind: flow.KindTransform},
			{ID: "f1", Kind: flow.KindFilter},
			{ID: "f2", Kind: flow.KindFilter},
			{ID: "agg", Kind: flow.KindAggregate},
			{ID: "sink", Kind: flow.KindOutput},
		},
		flowtest.Edge{"src", "map"}, flowtest.Edge{"map", "f1"}, flowtest.Edge{"map", "f2"},
		flowtest.Edge{"f1", "agg"}, flowtest.Edge{"f2", "agg"}, flowtest.Edge{"agg", "sink"},
	)
}

// branchFlow is in -> {x, y} -> out with two transforms. y duplicates x
// unless yExpr differs from x's expression.
func branchFlow(id, yExpr string) *flow.Flow {
	return flowtest.Build(id,
		[]flowtest.Node{
			{ID: "in", Kind: flow.KindInput},
			{ID: "x", Kind: flow.KindTransform, Params: map[string]any{"expression": "price * 1.1"}},
			{ID: "y", Kind: flow.KindTransform, Params: map[string]any{"expression": yExpr}},
			{ID: "out", Kind: flow.KindOutput},
		},
		flowtest.Edge{"in", "x"}, flowtest.Edge{"in", "y"},
		flowtest.Edge{"x", "out"}, flowtest.Edge{"y", "out"},
	)
}

func auditEvents(t *testing.T, buf *bytes.Buffer) []observability.AuditEvent {
	t.Helper()
	var out []observability.AuditEvent
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var ev observability.AuditEvent
		require.NoError(t, json.Unmarshal([]byte(line), &ev))
		out = append(out, ev)
	}
	return out
}

func TestOptimize_NilFlow(t *testing.T) {
	_, err := New().Optimize(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNilFlow)
}

func TestOptimize_ReferenceFlow(t *testing.T) {
	e := New()
	f := flowtest.Reference()

	res, err := e.Optimize(context.Background(), f)
	require.NoError(t, err)

	assert.False(t, res.CacheHit)
	assert.False(t, res.OracleUsed)
	assert.Len(t, res.Signature, 64)
	require.Len(t, res.Applied, 1)
	assert.Equal(t, advisor.Parallelization, res.Applied[0].Type)
	assert.Equal(t, []string{"filter1", "filter2"}, res.Applied[0].Targets)
	assert.InDelta(t, 20.0, res.ExpectedImprovement, 1e-9)
	assert.InDelta(t, 75.0, res.Confidence, 1e-9)
	assert.True(t, res.Patterns.SafeToExecute())

	// Input untouched, output rewritten.
	in, err := f.Block("filter1")
	require.NoError(t, err)
	assert.False(t, in.Flag(flow.ParamParallelExecution))
	out, err := res.Optimized.Block("filter1")
	require.NoError(t, err)
	assert.True(t, out.Flag(flow.ParamParallelExecution))

	assert.Equal(t, 75*time.Millisecond, res.BaselineLatency)
	require.NotNil(t, res.Performance)
	assert.Equal(t, 75*time.Millisecond, res.Performance.EstimatedLatency)
}

func TestOptimize_CacheHit(t *testing.T) {
	e := New()
	first, err := e.Optimize(context.Background(), flowtest.Reference())
	require.NoError(t, err)

	second, err := e.Optimize(context.Background(), flowtest.Reference())
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Signature, second.Signature)
	assert.Equal(t, first.Applied, second.Applied)
	assert.Equal(t, first.ExpectedImprovement, second.ExpectedImprovement)

	stats := e.CacheStats()
	assert.Equal(t, 1, stats.TotalModels)
	assert.Equal(t, 1, stats.TotalUsage)

	require.NoError(t, e.ClearCache(context.Background()))
	assert.Zero(t, e.CacheStats().TotalModels)
}

func TestOptimize_SameShapeDifferentIDs(t *testing.T) {
	e := New()
	_, err := e.Optimize(context.Background(), flowtest.Reference())
	require.NoError(t, err)

	res, err := e.Optimize(context.Background(), renamedReference())
	require.NoError(t, err)
	assert.True(t, res.CacheHit)
	require.Len(t, res.Applied, 1)
	assert.Equal(t, []string{"f1", "f2"}, res.Applied[0].Targets)
}

func TestOptimize_SameShapeSameIDsDifferentMeaning(t *testing.T) {
	e := New()
	dup, err := e.Optimize(context.Background(), branchFlow("a", "price * 1.1"))
	require.NoError(t, err)
	require.Len(t, dup.Applied, 1)
	assert.Equal(t, advisor.Elimination, dup.Applied[0].Type)
	assert.False(t, dup.Optimized.HasBlock("y"))

	res, err := e.Optimize(context.Background(), branchFlow("b", "price * 2"))
	require.NoError(t, err)
	assert.True(t, res.CacheHit)
	assert.Equal(t, dup.Signature, res.Signature)
	assert.True(t, res.Optimized.HasBlock("y"), "y is not redundant in flow b")
	for _, a := range res.Applied {
		assert.NotEqual(t, advisor.Elimination, a.Type)
	}
	require.Len(t, res.Applied, 1)
	assert.Equal(t, advisor.Parallelization, res.Applied[0].Type)
	assert.Equal(t, []string{"x", "y"}, res.Applied[0].Targets)
}

func TestOptimize_EditedFlowIsReadvised(t *testing.T) {
	e := New()
	_, err := e.Optimize(context.Background(), branchFlow("a", "price * 1.1"))
	require.NoError(t, err)

	// Same flow id after y was edited.
	res, err := e.Optimize(context.Background(), branchFlow("a", "price * 2"))
	require.NoError(t, err)
	assert.True(t, res.CacheHit)
	assert.True(t, res.Optimized.HasBlock("y"))
	require.Len(t, res.Applied, 1)
	assert.Equal(t, advisor.Parallelization, res.Applied[0].Type)
}

func TestOptimize_OracleFallbackIsAudited(t *testing.T) {
	var buf bytes.Buffer
	adv := advisor.New(advisor.WithOracle(failingOracle{err: errors.New("upstream 503")}))
	e := New(WithAdvisor(adv), WithAudit(observability.NewAuditWriter(&buf, "test-session")))

	res, err := e.Optimize(context.Background(), flowtest.Reference())
	require.NoError(t, err)
	assert.False(t, res.OracleUsed)
	assert.Contains(t, res.FallbackReason, "upstream 503")
	require.Len(t, res.Applied, 1)

	var types []observability.AuditEventType
	for _, ev := range auditEvents(t, &buf) {
		types = append(types, ev.EventType)
		assert.Equal(t, "test-session", ev.SessionID)
	}
	assert.Equal(t, []observability.AuditEventType{
		observability.AuditEventOracleFallback,
		observability.AuditEventApplied,
		observability.AuditEventOptimize,
	}, types)
}

func TestPredictPerformance(t *testing.T) {
	p := New().PredictPerformance(context.Background(), flowtest.Reference())

	assert.Equal(t, 75*time.Millisecond, p.EstimatedLatency)
	assert.Len(t, p.Groups, 5)
	require.Len(t, p.Bottlenecks, 1)
	assert.Equal(t, "aggregate", p.Bottlenecks[0].BlockID)
	assert.InDelta(t, 50.0/75.0, p.Bottlenecks[0].Share, 1e-9)
	assert.Nil(t, p.Historical)
}

func TestPredictPerformance_RemoteBottlenecks(t *testing.T) {
	f := flowtest.Chain("remote", flow.KindInput, flow.KindExternalCall, flow.KindDatabase, flow.KindOutput)
	p := New().PredictPerformance(context.Background(), f)

	assert.Equal(t, 310*time.Millisecond, p.EstimatedLatency)
	require.Len(t, p.Bottlenecks, 2)
	assert.Equal(t, "b1", p.Bottlenecks[0].BlockID)
	assert.Equal(t, "remote I/O", p.Bottlenecks[0].Reason)
	assert.Equal(t, "b2", p.Bottlenecks[1].BlockID)
}

func TestPredictPerformance_History(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	h := &fakeHistory{stats: []history.BlockStat{
		{BlockID: "aggregate", Runs: 4, MeanLatency: 100 * time.Millisecond, MaxLatency: 150 * time.Millisecond},
	}}
	e := New(WithHistory(h), WithClock(func() time.Time { return now }), WithHistoryWindow(time.Hour))

	p := e.PredictPerformance(context.Background(), flowtest.Reference())
	require.NotNil(t, p.Historical)
	assert.Equal(t, 125*time.Millisecond, p.Historical.ObservedLatency)
	assert.InDelta(t, 50.0/75.0*100, p.Historical.Deviation, 1e-9)
	assert.Equal(t, now.Add(-time.Hour), h.since)

	h.err = errors.New("connection refused")
	p = e.PredictPerformance(context.Background(), flowtest.Reference())
	assert.Nil(t, p.Historical)
	assert.Equal(t, 75*time.Millisecond, p.EstimatedLatency)
}

func TestRecordOutcome(t *testing.T) {
	var buf bytes.Buffer
	e := New(WithAudit(observability.NewAuditWriter(&buf, "s")))

	_, err := e.RecordOutcome("unknown", 10)
	assert.ErrorIs(t, err, flow.ErrNotFound)

	res, err := e.Optimize(context.Background(), flowtest.Reference())
	require.NoError(t, err)
	acc, err := e.RecordOutcome(res.Signature, 20)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, acc, 1e-9)

	events := auditEvents(t, &buf)
	last := events[len(events)-1]
	assert.Equal(t, observability.AuditEventOutcome, last.EventType)
	assert.Equal(t, res.Signature, last.Signature)
}

func TestSimilarFlows(t *testing.T) {
	ctx := context.Background()
	_, err := New().SimilarFlows(ctx, flowtest.Reference(), 3)
	assert.ErrorIs(t, err, ErrNoIndex)
	assert.ErrorIs(t, New().IndexFlow(ctx, flowtest.Reference()), ErrNoIndex)

	idx, err := vector.NewIndex(ctx, vector.NewMemoryRepository())
	require.NoError(t, err)
	e := New(WithIndex(idx))
	require.NoError(t, e.IndexFlow(ctx, flowtest.Reference()))
	require.NoError(t, e.IndexFlow(ctx, renamedReference()))

	matches, err := e.SimilarFlows(ctx, flowtest.Reference(), 3)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "renamed", matches[0].FlowID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-5)
}

func TestAnalyzeBatch(t *testing.T) {
	e := New()
	flows := []*flow.Flow{
		flowtest.Reference(),
		flowtest.Chain("chain", flow.KindInput, flow.KindOutput),
		renamedReference(),
	}
	got, err := e.AnalyzeBatch(context.Background(), flows)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "reference", got[0].FlowID)
	assert.Equal(t, "chain", got[1].FlowID)
	assert.Equal(t, []string{"b0", "b1"}, got[1].Order)
	assert.Equal(t, got[0].Signature, got[2].Signature)
	assert.Equal(t, [][]string{{"filter1", "filter2"}}, got[0].Groups)

	_, err = e.AnalyzeBatch(context.Background(), []*flow.Flow{flowtest.Reference(), nil})
	assert.ErrorIs(t, err, ErrNilFlow)
}

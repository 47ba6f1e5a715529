package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/flowlens/internal/flow"
	"github.com/efebarandurmaz/flowlens/internal/flow/flowtest"
	"github.com/efebarandurmaz/flowlens/internal/flowfile"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(&out)
	root.SetArgs(args)
	root.SetErr(io.Discard)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func referenceFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reference.yaml")
	require.NoError(t, flowfile.Save(path, flowtest.Reference()))
	return path
}

func TestValidate(t *testing.T) {
	out, err := run(t, "validate", referenceFile(t))
	require.NoError(t, err)
	assert.Equal(t, "reference: 6 blocks, 6 connections, no issues\n", out)
}

func TestAnalyze_JSON(t *testing.T) {
	out, err := run(t, "analyze", "--json", referenceFile(t))
	require.NoError(t, err)

	var got struct {
		FlowID string     `json:"flow_id"`
		Order  []string   `json:"order"`
		Groups [][]string `json:"parallel_groups"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "reference", got.FlowID)
	assert.Len(t, got.Order, 6)
	assert.Equal(t, [][]string{{"filter1", "filter2"}}, got.Groups)
}

func TestOrder(t *testing.T) {
	out, err := run(t, "order", referenceFile(t))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "  1  input\n  2  transform\n"))
	assert.Contains(t, out, "parallel: filter1, filter2\n")
}

func TestExport(t *testing.T) {
	path := referenceFile(t)

	out, err := run(t, "export", "--format", "mermaid", path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "graph LR\n"))

	out, err = run(t, "export", path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, `digraph "reference"`))

	_, err = run(t, "export", "--format", "svg", path)
	assert.ErrorContains(t, err, "unknown format")
}

func TestOptimize_WritesOptimizedFlow(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out", "optimized.hcl")
	out, err := run(t, "optimize", "--json", "--out", dest, referenceFile(t))
	require.NoError(t, err)

	var res struct {
		Applied             []json.RawMessage `json:"applied"`
		ExpectedImprovement float64           `json:"expected_improvement"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Len(t, res.Applied, 1)
	assert.InDelta(t, 20.0, res.ExpectedImprovement, 1e-9)

	f, _, err := flowfile.Load(dest)
	require.NoError(t, err)
	b, err := f.Block("filter1")
	require.NoError(t, err)
	assert.True(t, b.Flag(flow.ParamParallelExecution))
}

func TestOptimize_StoreNeedsRepository(t *testing.T) {
	_, err := run(t, "optimize", "--store", referenceFile(t))
	assert.ErrorIs(t, err, errNoRepository)
}

func TestCacheOutcome_UnknownSignature(t *testing.T) {
	_, err := run(t, "cache", "outcome", "deadbeef", "12.5")
	assert.ErrorIs(t, err, flow.ErrNotFound)

	_, err = run(t, "cache", "outcome", "deadbeef", "lots")
	assert.ErrorContains(t, err, "observed improvement")
}

func TestSimilar_IndexesDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, flowfile.Save(filepath.Join(dir, "reference.json"), flowtest.Reference()))
	require.NoError(t, flowfile.Save(filepath.Join(dir, "chain.yaml"),
		flowtest.Chain("chain", flow.KindInput, flow.KindTransform, flow.KindOutput)))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o644))

	out, err := run(t, "similar", "--json", referenceFile(t), dir)
	require.NoError(t, err)
	var matches []struct {
		FlowID string `json:"flow_id"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &matches))
	require.Len(t, matches, 1, "the query flow itself is excluded")
	assert.Equal(t, "chain", matches[0].FlowID)
}

func TestProviders(t *testing.T) {
	out, err := run(t, "providers")
	require.NoError(t, err)
	assert.Contains(t, out, "openai")
	assert.Contains(t, out, "custom")
	assert.Contains(t, out, "FLOWLENS_LLM_PROVIDER")
}

func TestOptimizedPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "etl.optimized.yaml"), optimizedPath("out", "/flows/etl.yaml"))
}

package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/flowlens/internal/config"
	"github.com/efebarandurmaz/flowlens/internal/flow/flowtest"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func defaults(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestNew_Defaults(t *testing.T) {
	a, err := New(context.Background(), defaults(t), quietLogger())
	require.NoError(t, err)
	defer a.Close(context.Background())

	assert.Nil(t, a.Provider)
	assert.Nil(t, a.Repository)
	require.NotNil(t, a.Index)

	res, err := a.Engine.Optimize(context.Background(), flowtest.Reference())
	require.NoError(t, err)
	assert.Len(t, res.Applied, 1)
	assert.False(t, res.OracleUsed)

	require.NoError(t, a.Engine.IndexFlow(context.Background(), flowtest.Reference()))
}

func TestNew_PersistentCacheSurvivesRestart(t *testing.T) {
	cfg := defaults(t)
	cfg.Cache.Path = filepath.Join(t.TempDir(), "cache")
	ctx := context.Background()

	a, err := New(ctx, cfg, quietLogger())
	require.NoError(t, err)
	first, err := a.Engine.Optimize(ctx, flowtest.Reference())
	require.NoError(t, err)
	assert.False(t, first.CacheHit)
	require.NoError(t, a.Close(ctx))

	b, err := New(ctx, cfg, quietLogger())
	require.NoError(t, err)
	defer b.Close(ctx)
	assert.Equal(t, 1, b.Cache.Len())
	second, err := b.Engine.Optimize(ctx, flowtest.Reference())
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Signature, second.Signature)
}

func TestNew_SQLiteHistory(t *testing.T) {
	cfg := defaults(t)
	cfg.History.Driver = "sqlite"
	cfg.History.SQLitePath = filepath.Join(t.TempDir(), "history.db")

	a, err := New(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	p := a.Engine.PredictPerformance(context.Background(), flowtest.Reference())
	assert.Nil(t, p.Historical, "an empty history yields no comparison")
	require.NoError(t, a.Close(context.Background()))
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"unknown provider", func(c *config.Config) { c.LLM.Provider = "carrier-pigeon" }},
		{"custom without base url", func(c *config.Config) { c.LLM.Provider = "custom" }},
		{"unknown history driver", func(c *config.Config) { c.History.Driver = "csv" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults(t)
			tt.mutate(cfg)
			_, err := New(context.Background(), cfg, quietLogger())
			assert.Error(t, err)
		})
	}
}

func TestNew_OracleProvider(t *testing.T) {
	cfg := defaults(t)
	cfg.LLM.Provider = "ollama"
	cfg.LLM.Model = "llama3"

	a, err := New(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	defer a.Close(context.Background())
	require.NotNil(t, a.Provider)
	assert.Equal(t, "ollama", a.Provider.Name())
}

func TestProviders(t *testing.T) {
	names := Providers().Names()
	assert.Contains(t, names, "openai")
	assert.Contains(t, names, "ollama")
	assert.Contains(t, names, "custom")
}

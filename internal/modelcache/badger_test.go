package modelcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := OpenBadger(BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenBadger_RequiresPath(t *testing.T) {
	_, err := OpenBadger(BadgerConfig{})
	assert.Error(t, err)
}

func TestBadgerStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	c := New(WithStore(s))
	c.Put("sig-a", sampleModel(), []string{"first"})
	c.Put("sig-b", sampleModel(), nil)

	recs, err := s.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	restored := New(WithStore(s))
	n, err := restored.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	m, ok := restored.Get("sig-a")
	require.True(t, ok)
	assert.Equal(t, 1, m.Version)
	assert.Equal(t, 6, m.Features.NodeCount)
	require.Len(t, restored.Versions("sig-a"), 1)
	assert.Equal(t, []string{"first"}, restored.Versions("sig-a")[0].Changes)

	// Next Put continues the persisted version sequence.
	assert.Equal(t, 2, restored.Put("sig-a", sampleModel(), nil).Version)
}

func TestBadgerStore_LoadSkipsStale(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	clk := newFakeClock()
	c := New(WithStore(s), WithClock(clk.Now))
	c.Put("old", sampleModel(), nil)
	clk.Advance(20 * time.Hour)
	c.Put("fresh", sampleModel(), nil)
	clk.Advance(5 * time.Hour)

	restored := New(WithStore(s), WithClock(clk.Now))
	n, err := restored.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	recs, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "fresh", recs[0].Model.Signature)
}

func TestBadgerStore_Clear(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	c := New(WithStore(s))
	c.Put("sig", sampleModel(), nil)

	require.NoError(t, c.Clear(ctx))
	recs, err := s.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

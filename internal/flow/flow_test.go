package flow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Empty(t *testing.T) {
	f := New("orders", WithDescription("daily orders"), WithLanguage("python"))

	assert.NotEmpty(t, f.ID)
	assert.Equal(t, "orders", f.Name)
	assert.Equal(t, "python", f.Metadata.Language)
	assert.Empty(t, f.Blocks)
	assert.Empty(t, f.Connections)
	assert.Equal(t, 1, f.Metadata.Version)
}

func TestAddBlock_TemplateDefaults(t *testing.T) {
	f := New("f")
	b, err := f.AddBlock(BlockSpec{ID: "in", Kind: KindInput})
	require.NoError(t, err)

	assert.Equal(t, "Input", b.Label)
	require.NotNil(t, b.Param("source"))
	assert.Equal(t, "stdin", b.Param("source").Value)
	assert.True(t, b.Param("source").Required)
	assert.Equal(t, 2, f.Metadata.Version)
}

func TestAddBlock_Errors(t *testing.T) {
	tests := []struct {
		name string
		spec BlockSpec
	}{
		{"unknown kind", BlockSpec{Kind: "teleport"}},
		{"missing required", BlockSpec{Kind: KindDatabase}},
		{"wrong type", BlockSpec{Kind: KindLoop, Parameters: map[string]any{"max_iterations": "ten"}}},
		{"unknown parameter", BlockSpec{Kind: KindFilter, Parameters: map[string]any{"colour": "red"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New("f")
			_, err := f.AddBlock(tt.spec)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation), "got %v", err)
			assert.Empty(t, f.Blocks)
		})
	}
}

func TestAddBlock_DuplicateID(t *testing.T) {
	f := New("f")
	_, err := f.AddBlock(BlockSpec{ID: "x", Kind: KindTransform})
	require.NoError(t, err)
	_, err = f.AddBlock(BlockSpec{ID: "x", Kind: KindFilter})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAddBlock_NumberNormalization(t *testing.T) {
	f := New("f")
	b, err := f.AddBlock(BlockSpec{ID: "l", Kind: KindLoop, Parameters: map[string]any{"max_iterations": 10}})
	require.NoError(t, err)
	assert.Equal(t, float64(10), b.Param("max_iterations").Value)
}

func TestConnect(t *testing.T) {
	f := New("f")
	_, _ = f.AddBlock(BlockSpec{ID: "a", Kind: KindInput})
	_, _ = f.AddBlock(BlockSpec{ID: "b", Kind: KindOutput})
	before := f.Metadata.Version

	c, err := f.Connect(Endpoint{BlockID: "a"}, Endpoint{BlockID: "b", Port: "data"}, "json")
	require.NoError(t, err)
	assert.Equal(t, "out", c.Source.Port)
	assert.Equal(t, "data", c.Target.Port)
	assert.Equal(t, before+1, f.Metadata.Version)

	a, _ := f.Block("a")
	b, _ := f.Block("b")
	assert.Equal(t, []string{c.ID}, a.Connections.Outputs)
	assert.Equal(t, []string{c.ID}, b.Connections.Inputs)
}

func TestConnect_NotFound(t *testing.T) {
	f := New("f")
	_, _ = f.AddBlock(BlockSpec{ID: "a", Kind: KindInput})

	_, err := f.Connect(Endpoint{BlockID: "a"}, Endpoint{BlockID: "ghost"}, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)

	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "ghost", nf.ID)
	assert.Empty(t, f.Connections)
}

func TestUpdateParameter(t *testing.T) {
	f := New("f")
	_, _ = f.AddBlock(BlockSpec{ID: "t", Kind: KindTransform})
	before := f.Metadata.Version

	require.NoError(t, f.UpdateParameter("t", "expression", "x * 2"))
	b, _ := f.Block("t")
	assert.Equal(t, "x * 2", b.Param("expression").Value)
	assert.Equal(t, before+1, f.Metadata.Version)

	assert.ErrorIs(t, f.UpdateParameter("t", "nope", 1), ErrNotFound)
	assert.ErrorIs(t, f.UpdateParameter("ghost", "expression", "y"), ErrNotFound)
	assert.ErrorIs(t, f.UpdateParameter("t", "expression", 42), ErrValidation)
	assert.ErrorIs(t, f.UpdateParameter("t", "expression", nil), ErrValidation)
}

func TestRemoveBlock_DropsConnections(t *testing.T) {
	f := New("f")
	for _, id := range []string{"a", "b", "c"} {
		_, err := f.AddBlock(BlockSpec{ID: id, Kind: KindTransform})
		require.NoError(t, err)
	}
	_, _ = f.Connect(Endpoint{BlockID: "a"}, Endpoint{BlockID: "b"}, "")
	_, _ = f.Connect(Endpoint{BlockID: "b"}, Endpoint{BlockID: "c"}, "")

	require.NoError(t, f.RemoveBlock("b"))
	assert.Len(t, f.Blocks, 2)
	assert.Empty(t, f.Connections)
	a, _ := f.Block("a")
	assert.Empty(t, a.Connections.Outputs)
	assert.ErrorIs(t, f.RemoveBlock("b"), ErrNotFound)
}

func TestRemoveConnection(t *testing.T) {
	f := New("f")
	_, _ = f.AddBlock(BlockSpec{ID: "a", Kind: KindInput})
	_, _ = f.AddBlock(BlockSpec{ID: "b", Kind: KindOutput})
	c, _ := f.Connect(Endpoint{BlockID: "a"}, Endpoint{BlockID: "b"}, "")
	id := c.ID

	require.NoError(t, f.RemoveConnection(id))
	assert.Empty(t, f.Connections)
	assert.ErrorIs(t, f.RemoveConnection(id), ErrNotFound)
}

func TestClone_IsDeep(t *testing.T) {
	f := New("f")
	_, _ = f.AddBlock(BlockSpec{ID: "c", Kind: KindCustom, Parameters: map[string]any{
		"config": map[string]any{"retries": 3},
	}})
	_, _ = f.AddBlock(BlockSpec{ID: "o", Kind: KindOutput})
	_, _ = f.Connect(Endpoint{BlockID: "c"}, Endpoint{BlockID: "o"}, "")

	cp := f.Clone()
	require.NoError(t, cp.UpdateParameter("o", "destination", "s3://bucket"))
	require.NoError(t, cp.RemoveBlock("c"))
	assert.Len(t, cp.Blocks, 1)

	assert.Len(t, f.Blocks, 2)
	assert.Len(t, f.Connections, 1)
	o, _ := f.Block("o")
	assert.Equal(t, "stdout", o.Param("destination").Value)

	cp2 := f.Clone()
	cp2.Blocks[0].Param("config").Value.(map[string]any)["retries"] = 9
	assert.Equal(t, 3, f.Blocks[0].Param("config").Value.(map[string]any)["retries"])
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds() {
		got, err := ParseKind(string(k))
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseKind("widget")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRelink(t *testing.T) {
	f := New("f")
	_, err := f.AddBlock(BlockSpec{ID: "a", Kind: KindInput})
	require.NoError(t, err)
	_, err = f.AddBlock(BlockSpec{ID: "b", Kind: KindOutput})
	require.NoError(t, err)
	c, err := f.Connect(Endpoint{BlockID: "a"}, Endpoint{BlockID: "b"}, "")
	require.NoError(t, err)

	f.Blocks[0].Connections = BlockConnections{Inputs: []string{"stale"}}
	f.Blocks[1].Connections = BlockConnections{}
	f.Connections = append(f.Connections, Connection{ID: "dangling", Source: Endpoint{BlockID: "a"}, Target: Endpoint{BlockID: "ghost"}})
	f.Relink()

	assert.Empty(t, f.Blocks[0].Connections.Inputs)
	assert.Equal(t, []string{c.ID, "dangling"}, f.Blocks[0].Connections.Outputs)
	assert.Equal(t, []string{c.ID}, f.Blocks[1].Connections.Inputs)
}

// Package flowtest builds small flows for tests.
package flowtest

import (
	"fmt"

	"github.com/efebarandurmaz/flowlens/internal/flow"
)

// Node is a block shorthand. Required parameters without a template
// default are filled with placeholders.
type Node struct {
	ID     string
	Kind   flow.BlockKind
	Params map[string]any
}

// Edge is a source/target id pair.
type Edge [2]string

// Build creates a flow with the given blocks and edges. It panics on any
// builder error since fixtures are static.
func Build(name string, nodes []Node, edges ...Edge) *flow.Flow {
	f := flow.New(name, flow.WithID(name))
	for _, n := range nodes {
		params := n.Params
		if params == nil {
			params = map[string]any{}
		}
		switch n.Kind {
		case flow.KindExternalCall:
			if _, ok := params["url"]; !ok {
				params["url"] = "https://api.example.test/" + n.ID
			}
		case flow.KindDatabase:
			if _, ok := params["query"]; !ok {
				params["query"] = "SELECT * FROM " + n.ID
			}
		case flow.KindInput, flow.KindTransform, flow.KindFilter, flow.KindAggregate,
			flow.KindCondition, flow.KindLoop, flow.KindCustom, flow.KindOutput:
		}
		if _, err := f.AddBlock(flow.BlockSpec{ID: n.ID, Kind: n.Kind, Parameters: params}); err != nil {
			panic(fmt.Sprintf("flowtest: add %s: %v", n.ID, err))
		}
	}
	for _, e := range edges {
		if _, err := f.Connect(flow.Endpoint{BlockID: e[0]}, flow.Endpoint{BlockID: e[1]}, ""); err != nil {
			panic(fmt.Sprintf("flowtest: connect %s->%s: %v", e[0], e[1], err))
		}
	}
	return f
}

// Reference returns input -> transform -> {filter1, filter2} -> aggregate -> output.
func Reference() *flow.Flow {
	return Build("reference",
		[]Node{
			{ID: "input", Kind: flow.KindInput},
			{ID: "transform", Kind: flow.KindTransform},
			{ID: "filter1", Kind: flow.KindFilter},
			{ID: "filter2", Kind: flow.KindFilter, Params: map[string]any{"predicate": "x > 2"}},
			{ID: "aggregate", Kind: flow.KindAggregate},
			{ID: "output", Kind: flow.KindOutput},
		},
		Edge{"input", "transform"},
		Edge{"transform", "filter1"},
		Edge{"transform", "filter2"},
		Edge{"filter1", "aggregate"},
		Edge{"filter2", "aggregate"},
		Edge{"aggregate", "output"},
	)
}

// Chain builds a linear flow of the given kinds with ids b0, b1, ...
func Chain(name string, kinds ...flow.BlockKind) *flow.Flow {
	nodes := make([]Node, len(kinds))
	var edges []Edge
	for i, k := range kinds {
		nodes[i] = Node{ID: fmt.Sprintf("b%d", i), Kind: k}
		if i > 0 {
			edges = append(edges, Edge{nodes[i-1].ID, nodes[i].ID})
		}
	}
	return Build(name, nodes, edges...)
}

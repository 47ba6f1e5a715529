// Package graph persists flows in a graph database so they can be listed,
// reloaded and queried by topology.
package graph

import (
	"context"
	"time"

	"github.com/efebarandurmaz/flowlens/internal/flow"
)

// FlowSummary is a listing entry.
type FlowSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Blocks    int       `json:"blocks"`
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Repository stores flows.
type Repository interface {
	// StoreFlow replaces any stored copy of f.
	StoreFlow(ctx context.Context, f *flow.Flow) error
	// LoadFlow returns the stored flow or a flow.ErrNotFound error.
	LoadFlow(ctx context.Context, id string) (*flow.Flow, error)
	// ListFlows returns every stored flow ordered by name.
	ListFlows(ctx context.Context) ([]FlowSummary, error)
	// Downstream returns the ids of blocks reachable from blockID.
	Downstream(ctx context.Context, flowID, blockID string) ([]string, error)
	// Close releases resources.
	Close(ctx context.Context) error
}

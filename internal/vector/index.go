package vector

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/efebarandurmaz/flowlens/internal/analysis"
	"github.com/efebarandurmaz/flowlens/internal/flow"
)

// pointNamespace scopes the deterministic point ids derived from flow ids.
var pointNamespace = uuid.MustParse("6f1b7c2e-3d4a-5b6c-8d9e-0f1a2b3c4d5e")

// PointID maps a flow id to a stable UUID so re-indexing a flow replaces
// its point.
func PointID(flowID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(flowID)).String()
}

// Match is a flow found by similarity search.
type Match struct {
	FlowID    string  `json:"flow_id"`
	Name      string  `json:"name"`
	Signature string  `json:"signature,omitempty"`
	Nodes     int     `json:"nodes"`
	Score     float32 `json:"score"`
}

// Index stores flows by feature vector.
type Index struct {
	repo Repository
}

// NewIndex creates the collection if needed and returns an Index over it.
func NewIndex(ctx context.Context, repo Repository) (*Index, error) {
	if err := repo.EnsureCollection(ctx, Dimensions); err != nil {
		return nil, fmt.Errorf("ensure collection: %w", err)
	}
	return &Index{repo: repo}, nil
}

// Add indexes f under its id. signature is stored for display.
func (x *Index) Add(ctx context.Context, f *flow.Flow, feat analysis.Features, signature string) error {
	return x.repo.Upsert(ctx, []Document{{
		ID:     PointID(f.ID),
		Vector: FeatureVector(feat),
		Metadata: map[string]string{
			"flow_id":   f.ID,
			"name":      f.Name,
			"signature": signature,
			"nodes":     strconv.Itoa(feat.NodeCount),
		},
	}})
}

// Similar returns up to k flows closest to feat, excluding excludeID.
func (x *Index) Similar(ctx context.Context, feat analysis.Features, k int, excludeID string) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}
	// One extra so excluding the query flow still leaves k.
	res, err := x.repo.Search(ctx, FeatureVector(feat), k+1)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	out := make([]Match, 0, k)
	for _, r := range res {
		id := r.Metadata["flow_id"]
		if id == excludeID && excludeID != "" {
			continue
		}
		nodes, _ := strconv.Atoi(r.Metadata["nodes"])
		out = append(out, Match{
			FlowID:    id,
			Name:      r.Metadata["name"],
			Signature: r.Metadata["signature"],
			Nodes:     nodes,
			Score:     r.Score,
		})
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// Close closes the repository.
func (x *Index) Close() error { return x.repo.Close() }

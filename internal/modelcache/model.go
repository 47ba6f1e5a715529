// Package modelcache memoizes optimization results by structural
// signature. Entries expire by age or by measured accuracy, and the set is
// bounded with LRU eviction.
package modelcache

import (
	"maps"
	"time"

	"github.com/efebarandurmaz/flowlens/internal/advisor"
	"github.com/efebarandurmaz/flowlens/internal/analysis"
)

// InitialAccuracy is the accuracy assigned to a newly cached model.
const InitialAccuracy = 0.8

// Metadata tracks how well a cached model has performed.
type Metadata struct {
	Accuracy   float64 `json:"accuracy"`
	Confidence float64 `json:"confidence"`
	UsageCount int     `json:"usage_count"`
	// Outcomes counts observations folded into Accuracy.
	Outcomes int `json:"outcomes"`
}

// Model is a cached optimization result for one signature. FlowID and
// Fingerprint identify the flow the advice was derived from.
type Model struct {
	Signature           string                `json:"signature"`
	FlowID              string                `json:"flow_id"`
	Fingerprint         string                `json:"fingerprint"`
	Version             int                   `json:"version"`
	CreatedAt           time.Time             `json:"created_at"`
	LastUsed            time.Time             `json:"last_used"`
	Features            analysis.Features     `json:"features"`
	Predictions         []advisor.Opportunity `json:"predictions"`
	Applied             []advisor.Opportunity `json:"applied"`
	ExpectedImprovement float64               `json:"expected_improvement"`
	OracleUsed          bool                  `json:"oracle_used"`
	OracleConfidence    int                   `json:"oracle_confidence,omitempty"`
	Metadata            Metadata              `json:"metadata"`
}

// ModelVersion is one entry of a signature's history.
type ModelVersion struct {
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Accuracy  float64   `json:"accuracy"`
	Changes   []string  `json:"changes,omitempty"`
}

// Stats summarises the cache.
type Stats struct {
	TotalModels     int     `json:"total_models"`
	TotalUsage      int     `json:"total_usage"`
	AverageAccuracy float64 `json:"average_accuracy"`
}

func (m *Model) clone() *Model {
	if m == nil {
		return nil
	}
	out := *m
	out.Features.BlockTypeDistribution = maps.Clone(m.Features.BlockTypeDistribution)
	out.Features.DataFlowPatterns = append([]analysis.DataFlowPattern(nil), m.Features.DataFlowPatterns...)
	out.Predictions = cloneOpportunities(m.Predictions)
	out.Applied = cloneOpportunities(m.Applied)
	return &out
}

func cloneOpportunities(in []advisor.Opportunity) []advisor.Opportunity {
	if in == nil {
		return nil
	}
	out := make([]advisor.Opportunity, len(in))
	for i, o := range in {
		o.Targets = append([]string(nil), o.Targets...)
		out[i] = o
	}
	return out
}

// Package advisor turns analysis results into ranked optimization
// opportunities, blending deterministic heuristics with an optional
// opinion oracle.
package advisor

import (
	"sort"
	"strings"
)

// OptimizationType names a kind of rewrite.
type OptimizationType string

const (
	Parallelization OptimizationType = "parallelization"
	Caching         OptimizationType = "caching"
	Elimination     OptimizationType = "elimination"
	Merging         OptimizationType = "merging"
	Reordering      OptimizationType = "reordering"
)

// Valid reports whether t is a known optimization type.
func (t OptimizationType) Valid() bool {
	switch t {
	case Parallelization, Caching, Elimination, Merging, Reordering:
		return true
	}
	return false
}

// Structural reports whether applying t changes the flow. Merging and
// reordering are recorded only.
func (t OptimizationType) Structural() bool {
	switch t {
	case Parallelization, Caching, Elimination:
		return true
	case Merging, Reordering:
		return false
	}
	return false
}

// Difficulty estimates the effort of a rewrite.
type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
)

// Valid reports whether d is a known difficulty.
func (d Difficulty) Valid() bool {
	switch d {
	case Easy, Medium, Hard:
		return true
	}
	return false
}

// Source records where an opportunity came from.
type Source string

const (
	SourceHeuristic Source = "heuristic"
	SourceOracle    Source = "oracle"
)

// Opportunity is a candidate optimization. ExpectedGain and Confidence are
// percentages in [0, 100].
type Opportunity struct {
	Type         OptimizationType `json:"type" validate:"required"`
	Targets      []string         `json:"targets" validate:"required,min=1,dive,required"`
	ExpectedGain int              `json:"expected_gain" validate:"gte=0,lte=100"`
	Difficulty   Difficulty       `json:"difficulty" validate:"required"`
	Confidence   int              `json:"confidence" validate:"gte=0,lte=100"`
	Description  string           `json:"description"`
	Source       Source           `json:"source"`
}

// Key identifies an opportunity by type and sorted targets.
func (o Opportunity) Key() string {
	t := append([]string{}, o.Targets...)
	sort.Strings(t)
	return string(o.Type) + ":" + strings.Join(t, ",")
}

// AppliedOptimization is an opportunity that the optimizer carried out.
type AppliedOptimization struct {
	Type         OptimizationType `json:"type"`
	Targets      []string         `json:"targets"`
	Description  string           `json:"description"`
	ExpectedGain int              `json:"expected_gain"`
	Confidence   int              `json:"confidence"`
	Structural   bool             `json:"structural"`
}

// Advice is the advisor's output for one flow.
type Advice struct {
	// Opportunities holds every merged candidate, ranked by
	// gain x confidence.
	Opportunities []Opportunity `json:"opportunities"`
	// Accepted is the ranked subset above the acceptance threshold.
	Accepted            []Opportunity `json:"accepted"`
	ExpectedImprovement float64       `json:"expected_improvement"`
	Confidence          float64       `json:"confidence"`
	OracleUsed          bool          `json:"oracle_used"`
	OracleConfidence    int           `json:"oracle_confidence,omitempty"`
	FallbackReason      string        `json:"fallback_reason,omitempty"`
}

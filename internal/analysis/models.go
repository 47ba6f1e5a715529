package analysis

import "github.com/efebarandurmaz/flowlens/internal/flow"

// PatternKind names a data-flow shape counted by the extractor.
type PatternKind string

const (
	PatternLinear    PatternKind = "linear"    // in-degree 1, out-degree 1
	PatternBranching PatternKind = "branching" // out-degree > 1
	PatternMerging   PatternKind = "merging"   // in-degree > 1
	PatternLooping   PatternKind = "looping"   // loop blocks
	PatternParallel  PatternKind = "parallel"  // parallel groups
)

// DataFlowPattern is one entry of the pattern histogram.
type DataFlowPattern struct {
	Pattern           PatternKind `json:"pattern"`
	Frequency         int         `json:"frequency"`
	AverageComplexity float64     `json:"average_complexity"` // mean local degree of involved blocks
}

// Features is an immutable structural snapshot of a flow.
type Features struct {
	NodeCount              int                    `json:"node_count"`
	ConnectionCount        int                    `json:"connection_count"`
	Complexity             int                    `json:"complexity"`
	CyclomaticComplexity   int                    `json:"cyclomatic_complexity"`
	MaxDepth               int                    `json:"max_depth"`
	BranchingFactor        float64                `json:"branching_factor"`
	AverageBlockParameters float64                `json:"average_block_parameters"`
	ParallelizableBlocks   int                    `json:"parallelizable_blocks"`
	ConnectedComponents    int                    `json:"connected_components"`
	BlockTypeDistribution  map[flow.BlockKind]int `json:"block_type_distribution"`
	DataFlowPatterns       []DataFlowPattern      `json:"data_flow_patterns"`
}

// Pattern returns the histogram entry for kind, if present.
func (f Features) Pattern(kind PatternKind) (DataFlowPattern, bool) {
	for _, p := range f.DataFlowPatterns {
		if p.Pattern == kind {
			return p, true
		}
	}
	return DataFlowPattern{}, false
}

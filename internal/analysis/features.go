package analysis

import "github.com/efebarandurmaz/flowlens/internal/flow"

// Extract computes the structural features of f. It is pure and safe to
// call concurrently on distinct flows. Counts cover the indexed graph:
// dangling connections and repeated block ids are left to Validate.
func Extract(f *flow.Flow) Features {
	idx := flow.BuildIndex(f)

	feat := Features{
		NodeCount:             len(idx.Order),
		ConnectionCount:       idx.Edges,
		BlockTypeDistribution: make(map[flow.BlockKind]int),
	}

	totalParams := 0
	conditions, loops := 0, 0
	seen := make(map[string]bool, len(f.Blocks))
	for _, b := range f.Blocks {
		if seen[b.ID] {
			continue
		}
		seen[b.ID] = true
		feat.BlockTypeDistribution[b.Kind]++
		totalParams += len(b.Parameters)
		switch b.Kind {
		case flow.KindCondition:
			conditions++
		case flow.KindLoop:
			loops++
		case flow.KindInput, flow.KindTransform, flow.KindFilter, flow.KindAggregate,
			flow.KindExternalCall, flow.KindDatabase, flow.KindCustom, flow.KindOutput:
		}
	}

	branching := 0
	for _, id := range idx.Order {
		if idx.OutDegree(id) > 1 {
			branching++
		}
	}

	feat.ConnectedComponents = countComponents(idx)
	feat.Complexity = max(1, feat.ConnectionCount-feat.NodeCount+2*feat.ConnectedComponents)
	feat.CyclomaticComplexity = 1 + conditions + 2*loops + branching
	feat.MaxDepth = maxDepth(idx)

	if feat.NodeCount > 0 {
		feat.BranchingFactor = float64(idx.Edges) / float64(feat.NodeCount)
		feat.AverageBlockParameters = float64(totalParams) / float64(feat.NodeCount)
	}

	groups := parallelGroups(idx)
	inGroup := make(map[string]bool)
	for _, g := range groups {
		for _, id := range g {
			inGroup[id] = true
		}
	}
	feat.ParallelizableBlocks = len(inGroup)
	feat.DataFlowPatterns = dataFlowPatterns(idx, groups)

	return feat
}

func dataFlowPatterns(idx *flow.Index, groups [][]string) []DataFlowPattern {
	type acc struct {
		freq   int
		degree int
		blocks int
	}
	counts := map[PatternKind]*acc{}
	add := func(kind PatternKind, ids ...string) {
		a := counts[kind]
		if a == nil {
			a = &acc{}
			counts[kind] = a
		}
		a.freq++
		for _, id := range ids {
			a.degree += idx.InDegree(id) + idx.OutDegree(id)
			a.blocks++
		}
	}

	for _, id := range idx.Order {
		in, out := idx.InDegree(id), idx.OutDegree(id)
		if in == 1 && out == 1 {
			add(PatternLinear, id)
		}
		if out > 1 {
			add(PatternBranching, id)
		}
		if in > 1 {
			add(PatternMerging, id)
		}
		if idx.Kinds[id] == flow.KindLoop {
			add(PatternLooping, id)
		}
	}
	for _, g := range groups {
		add(PatternParallel, g...)
	}

	var out []DataFlowPattern
	for _, kind := range []PatternKind{PatternLinear, PatternBranching, PatternMerging, PatternLooping, PatternParallel} {
		a := counts[kind]
		if a == nil || a.freq == 0 {
			continue
		}
		p := DataFlowPattern{Pattern: kind, Frequency: a.freq}
		if a.blocks > 0 {
			p.AverageComplexity = float64(a.degree) / float64(a.blocks)
		}
		out = append(out, p)
	}
	return out
}

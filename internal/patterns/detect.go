package patterns

import (
	"fmt"
	"strings"

	"github.com/efebarandurmaz/flowlens/internal/analysis"
	"github.com/efebarandurmaz/flowlens/internal/flow"
)

// Detect runs every pass over f. It holds no state and never fails; a
// structurally broken flow still yields a report with its issues attached.
func Detect(f *flow.Flow, feat analysis.Features) *Report {
	idx := flow.BuildIndex(f)
	blocks := make(map[string]*flow.Block, len(f.Blocks))
	for i := range f.Blocks {
		if _, dup := blocks[f.Blocks[i].ID]; !dup {
			blocks[f.Blocks[i].ID] = &f.Blocks[i]
		}
	}

	r := &Report{Issues: f.Validate()}
	r.AntiPatterns = append(r.AntiPatterns, detectCycles(idx)...)
	r.AntiPatterns = append(r.AntiPatterns, detectNPlusOne(idx)...)
	r.AntiPatterns = append(r.AntiPatterns, detectSyncAsyncMismatch(idx, blocks)...)
	r.AntiPatterns = append(r.AntiPatterns, detectExcessiveNesting(feat)...)
	r.AntiPatterns = append(r.AntiPatterns, detectResourceLeaks(idx)...)

	r.OptimizationPatterns = detectOptimizations(idx, blocks)
	r.ScalabilityPatterns = detectScalability(idx)
	r.SecurityPatterns = detectSecurity(idx)
	return r
}

// detectCycles walks the graph with a 0/1/2 colour map. Every back edge to
// a block on the stack yields one finding carrying the full cycle path.
func detectCycles(idx *flow.Index) []Finding {
	var findings []Finding
	state := make(map[string]int, len(idx.Order)) // 0=unvisited, 1=on stack, 2=done
	path := make([]string, 0, len(idx.Order))

	var dfs func(id string)
	dfs = func(id string) {
		state[id] = 1
		path = append(path, id)
		for _, next := range idx.Children[id] {
			switch state[next] {
			case 0:
				dfs(next)
			case 1:
				start := len(path) - 1
				for start > 0 && path[start] != next {
					start--
				}
				cycle := append([]string{}, path[start:]...)
				findings = append(findings, Finding{
					Type:        TypeCircularDependency,
					Category:    CategoryAnti,
					Severity:    SeverityCritical,
					BlockIDs:    cycle,
					Description: fmt.Sprintf("circular dependency: %s -> %s", strings.Join(cycle, " -> "), next),
					Remediation: "Break the cycle by removing a back edge or introducing an explicit loop block.",
					Impact:      90,
				})
			}
		}
		path = path[:len(path)-1]
		state[id] = 2
	}

	for _, id := range idx.Order {
		if state[id] == 0 {
			dfs(id)
		}
	}
	return findings
}

func detectNPlusOne(idx *flow.Index) []Finding {
	var findings []Finding
	for _, loop := range idx.OfKind(flow.KindLoop) {
		for _, child := range idx.Children[loop] {
			if !idx.Kinds[child].RemoteIO() {
				continue
			}
			findings = append(findings, Finding{
				Type:        TypeNPlusOne,
				Category:    CategoryAnti,
				Severity:    SeverityHigh,
				BlockIDs:    []string{loop, child},
				Description: fmt.Sprintf("loop %q issues one %s call per iteration via %q", loop, idx.Kinds[child], child),
				Remediation: "Batch the calls outside the loop or fetch all rows in a single query.",
				Impact:      70,
			})
		}
	}
	return findings
}

func detectSyncAsyncMismatch(idx *flow.Index, blocks map[string]*flow.Block) []Finding {
	var findings []Finding
	for _, id := range idx.Order {
		if !idx.Kinds[id].RemoteIO() || idx.OutDegree(id) <= 1 {
			continue
		}
		children := idx.Children[id]
		sequential := false
		for _, c := range children {
			if b := blocks[c]; b == nil || !b.Flag(flow.ParamParallelExecution) {
				sequential = true
				break
			}
		}
		if !sequential {
			continue
		}
		findings = append(findings, Finding{
			Type:        TypeSyncAsyncMismatch,
			Category:    CategoryAnti,
			Severity:    SeverityMedium,
			BlockIDs:    append([]string{id}, children...),
			Description: fmt.Sprintf("%s block %q fans out to %d consumers that run sequentially", idx.Kinds[id], id, len(children)),
			Remediation: "Run the downstream consumers in parallel.",
			Impact:      40,
		})
	}
	return findings
}

func detectExcessiveNesting(feat analysis.Features) []Finding {
	excess := feat.MaxDepth - NestingThreshold
	if excess <= 0 {
		return nil
	}
	var sev Severity
	switch {
	case excess == 1:
		sev = SeverityLow
	case excess <= 3:
		sev = SeverityMedium
	case excess <= 6:
		sev = SeverityHigh
	default:
		sev = SeverityCritical
	}
	return []Finding{{
		Type:        TypeExcessiveNesting,
		Category:    CategoryAnti,
		Severity:    sev,
		Description: fmt.Sprintf("longest path is %d blocks deep (threshold %d)", feat.MaxDepth, NestingThreshold),
		Remediation: "Split the flow into sub-flows or flatten sequential stages.",
		Impact:      clampImpact(15 * excess),
	}}
}

func detectResourceLeaks(idx *flow.Index) []Finding {
	var findings []Finding
	for _, id := range idx.Order {
		if !idx.Kinds[id].RemoteIO() || idx.OutDegree(id) > 0 {
			continue
		}
		findings = append(findings, Finding{
			Type:        TypeResourceLeak,
			Category:    CategoryAnti,
			Severity:    SeverityMedium,
			BlockIDs:    []string{id},
			Description: fmt.Sprintf("%s block %q opens a resource whose result is never consumed", idx.Kinds[id], id),
			Remediation: "Route the result to a consumer or release the resource explicitly.",
			Impact:      30,
		})
	}
	return findings
}

package advisor

import (
	"fmt"
	"strings"

	"github.com/efebarandurmaz/flowlens/internal/analysis"
	"github.com/efebarandurmaz/flowlens/internal/flow"
	"github.com/efebarandurmaz/flowlens/internal/patterns"
)

// Fixed heuristic confidences.
const (
	parallelConfidence    = 75
	cachingConfidence     = 80
	eliminationConfidence = 70
	mergingConfidence     = 65
	reorderingConfidence  = 62
)

// Heuristics derives deterministic opportunities from the analysis. Blocks
// that already carry the relevant directive are not targeted again, so
// re-optimizing an optimized flow is a no-op.
func Heuristics(f *flow.Flow, feat analysis.Features, report *patterns.Report) []Opportunity {
	var out []Opportunity

	if feat.ParallelizableBlocks > 0 {
		var targets []string
		for _, g := range analysis.ParallelGroups(f) {
			for _, id := range g {
				if b, err := f.Block(id); err == nil && !b.Flag(flow.ParamParallelExecution) {
					targets = append(targets, id)
				}
			}
		}
		if n := len(targets); n > 0 {
			out = append(out, Opportunity{
				Type:         Parallelization,
				Targets:      targets,
				ExpectedGain: min(50, 10*n),
				Difficulty:   Medium,
				Confidence:   parallelConfidence,
				Description:  fmt.Sprintf("run %d independent blocks concurrently: %s", n, strings.Join(targets, ", ")),
				Source:       SourceHeuristic,
			})
		}
	}

	var remote []string
	for _, b := range f.Blocks {
		if b.Kind.RemoteIO() && !b.Flag(flow.ParamCacheEnabled) {
			remote = append(remote, b.ID)
		}
	}
	if n := len(remote); n > 0 {
		out = append(out, Opportunity{
			Type:         Caching,
			Targets:      remote,
			ExpectedGain: min(40, 15*n),
			Difficulty:   Easy,
			Confidence:   cachingConfidence,
			Description:  fmt.Sprintf("cache results of %d remote calls: %s", n, strings.Join(remote, ", ")),
			Source:       SourceHeuristic,
		})
	}

	if report == nil {
		return out
	}
	for _, fd := range report.OfType(patterns.TypeRedundantComputation) {
		out = append(out, fromFinding(fd, Elimination, Easy, eliminationConfidence))
	}
	for _, fd := range report.OfType(patterns.TypeMergeableChain) {
		out = append(out, fromFinding(fd, Merging, Medium, mergingConfidence))
	}
	for _, fd := range report.OfType(patterns.TypeLateFilter) {
		out = append(out, fromFinding(fd, Reordering, Medium, reorderingConfidence))
	}
	return out
}

func fromFinding(fd patterns.Finding, t OptimizationType, d Difficulty, confidence int) Opportunity {
	return Opportunity{
		Type:         t,
		Targets:      append([]string{}, fd.BlockIDs...),
		ExpectedGain: clampPercent(fd.Impact),
		Difficulty:   d,
		Confidence:   confidence,
		Description:  fd.Remediation + " (" + fd.Description + ")",
		Source:       SourceHeuristic,
	}
}

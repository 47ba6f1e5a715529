package patterns

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/efebarandurmaz/flowlens/internal/analysis"
	"github.com/efebarandurmaz/flowlens/internal/flow"
)

func detectOptimizations(idx *flow.Index, blocks map[string]*flow.Block) []Finding {
	var findings []Finding
	findings = append(findings, detectRedundant(idx, blocks)...)
	findings = append(findings, detectMergeableChains(idx)...)
	findings = append(findings, detectLateFilters(idx)...)
	findings = append(findings, detectParallelBranches(idx)...)
	findings = append(findings, detectCacheableCalls(idx, blocks)...)
	return findings
}

// detectRedundant groups blocks by kind, parameter values and source set.
// The first block of each group in insertion order is kept; the rest are
// reported as redundant.
func detectRedundant(idx *flow.Index, blocks map[string]*flow.Block) []Finding {
	groups := make(map[string][]string)
	var keys []string
	for _, id := range idx.Order {
		parents := idx.Parents[id]
		if len(parents) == 0 {
			continue
		}
		key := string(idx.Kinds[id]) + "|" + paramKey(blocks[id]) + "|" + sourceKey(parents)
		if _, seen := groups[key]; !seen {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], id)
	}

	var findings []Finding
	for _, key := range keys {
		members := groups[key]
		if len(members) < 2 {
			continue
		}
		dups := members[1:]
		findings = append(findings, Finding{
			Type:        TypeRedundantComputation,
			Category:    CategoryOptimization,
			Severity:    SeverityMedium,
			BlockIDs:    append([]string{}, dups...),
			Description: fmt.Sprintf("%s duplicates %q on the same inputs", strings.Join(dups, ", "), members[0]),
			Remediation: "Remove the duplicate blocks and reuse the first result.",
			Impact:      clampImpact(20 * len(dups)),
		})
	}
	return findings
}

func detectMergeableChains(idx *flow.Index) []Finding {
	var findings []Finding
	for _, id := range idx.Order {
		kind := idx.Kinds[id]
		if kind != flow.KindTransform && kind != flow.KindFilter {
			continue
		}
		if idx.OutDegree(id) != 1 {
			continue
		}
		next := idx.Children[id][0]
		if idx.Kinds[next] != kind || idx.InDegree(next) != 1 {
			continue
		}
		findings = append(findings, Finding{
			Type:        TypeMergeableChain,
			Category:    CategoryOptimization,
			Severity:    SeverityLow,
			BlockIDs:    []string{id, next},
			Description: fmt.Sprintf("adjacent %s blocks %q and %q can be fused", kind, id, next),
			Remediation: fmt.Sprintf("Combine the two %s steps into one.", kind),
			Impact:      15,
		})
	}
	return findings
}

func detectLateFilters(idx *flow.Index) []Finding {
	var findings []Finding
	for _, id := range idx.OfKind(flow.KindFilter) {
		parents := idx.Parents[id]
		if len(parents) != 1 {
			continue
		}
		pred := parents[0]
		switch idx.Kinds[pred] {
		case flow.KindAggregate, flow.KindDatabase, flow.KindExternalCall:
		default:
			continue
		}
		findings = append(findings, Finding{
			Type:        TypeLateFilter,
			Category:    CategoryOptimization,
			Severity:    SeverityMedium,
			BlockIDs:    []string{id},
			Description: fmt.Sprintf("filter %q runs after %s block %q", id, idx.Kinds[pred], pred),
			Remediation: "Push the filter upstream so less data reaches the expensive step.",
			Impact:      25,
		})
	}
	return findings
}

func detectParallelBranches(idx *flow.Index) []Finding {
	var findings []Finding
	for _, g := range analysis.ParallelGroupsOf(idx) {
		findings = append(findings, Finding{
			Type:        TypeParallelBranches,
			Category:    CategoryOptimization,
			Severity:    SeverityLow,
			BlockIDs:    append([]string{}, g...),
			Description: fmt.Sprintf("%d independent branches share the same inputs: %s", len(g), strings.Join(g, ", ")),
			Remediation: "Execute the branches concurrently.",
			Impact:      clampImpact(10 * len(g)),
		})
	}
	return findings
}

func detectCacheableCalls(idx *flow.Index, blocks map[string]*flow.Block) []Finding {
	var findings []Finding
	for _, id := range idx.Order {
		if !idx.Kinds[id].RemoteIO() {
			continue
		}
		if b := blocks[id]; b != nil && b.Flag(flow.ParamCacheEnabled) {
			continue
		}
		findings = append(findings, Finding{
			Type:        TypeCacheableCall,
			Category:    CategoryOptimization,
			Severity:    SeverityLow,
			BlockIDs:    []string{id},
			Description: fmt.Sprintf("%s block %q has no result cache", idx.Kinds[id], id),
			Remediation: "Cache results for repeated inputs.",
			Impact:      35,
		})
	}
	return findings
}

func detectScalability(idx *flow.Index) []Finding {
	var findings []Finding

	var stateless, expensive []string
	for _, id := range idx.Order {
		if idx.Kinds[id].Stateless() {
			stateless = append(stateless, id)
		}
		if idx.Kinds[id].Expensive() {
			expensive = append(expensive, id)
		}
	}
	if len(idx.Order) > 0 && 2*len(stateless) > len(idx.Order) {
		findings = append(findings, Finding{
			Type:        TypeHorizontalScaling,
			Category:    CategoryScalability,
			Severity:    SeverityLow,
			BlockIDs:    stateless,
			Description: fmt.Sprintf("%d of %d blocks are stateless", len(stateless), len(idx.Order)),
			Remediation: "Run stateless stages on multiple replicas behind a partitioned input.",
			Impact:      20,
		})
	}
	if len(expensive) > 0 {
		findings = append(findings, Finding{
			Type:        TypeCachingLayer,
			Category:    CategoryScalability,
			Severity:    SeverityLow,
			BlockIDs:    expensive,
			Description: fmt.Sprintf("%d expensive blocks would benefit from a shared cache", len(expensive)),
			Remediation: "Introduce a caching layer in front of expensive stages.",
			Impact:      clampImpact(10 * len(expensive)),
		})
	}
	return findings
}

func detectSecurity(idx *flow.Index) []Finding {
	var findings []Finding
	if inputs := idx.OfKind(flow.KindInput); len(inputs) > 0 {
		findings = append(findings, Finding{
			Type:        TypeInputValidation,
			Category:    CategorySecurity,
			Severity:    SeverityMedium,
			BlockIDs:    inputs,
			Description: "external input enters the flow",
			Remediation: "Validate and bound every input before processing.",
			Impact:      10,
		})
	}
	if outputs := idx.OfKind(flow.KindOutput); len(outputs) > 0 {
		findings = append(findings, Finding{
			Type:        TypeOutputSanitization,
			Category:    CategorySecurity,
			Severity:    SeverityLow,
			BlockIDs:    outputs,
			Description: "flow results leave the system",
			Remediation: "Sanitize or encode output for its destination.",
			Impact:      5,
		})
	}
	if dbs := idx.OfKind(flow.KindDatabase); len(dbs) > 0 {
		findings = append(findings, Finding{
			Type:        TypeParameterizedQueries,
			Category:    CategorySecurity,
			Severity:    SeverityHigh,
			BlockIDs:    dbs,
			Description: "database blocks execute queries",
			Remediation: "Use parameterized queries; never interpolate input into query text.",
			Impact:      10,
		})
	}
	return findings
}

func paramKey(b *flow.Block) string {
	if b == nil || len(b.Parameters) == 0 {
		return ""
	}
	vals := make(map[string]any, len(b.Parameters))
	for _, p := range b.Parameters {
		vals[p.Name] = p.Value
	}
	data, err := json.Marshal(vals)
	if err != nil {
		return fmt.Sprint(vals)
	}
	return string(data)
}

func sourceKey(ids []string) string {
	s := append([]string{}, ids...)
	sort.Strings(s)
	out := s[:0]
	for i, id := range s {
		if i > 0 && id == s[i-1] {
			continue
		}
		out = append(out, id)
	}
	return strings.Join(out, ",")
}

// Package optimizer applies accepted opportunities to a copy of a flow.
package optimizer

import (
	"fmt"

	"github.com/efebarandurmaz/flowlens/internal/advisor"
	"github.com/efebarandurmaz/flowlens/internal/analysis"
	"github.com/efebarandurmaz/flowlens/internal/flow"
)

// DefaultCacheTTL is the cache_ttl, in seconds, set by a caching rewrite.
const DefaultCacheTTL = 300

// Apply rewrites a deep copy of f; the input is never mutated.
// Eliminations run first, then the remaining candidates in ranked order.
// Each candidate's targets are trimmed to blocks that still exist in the
// copy, parallelization targets also to blocks that still have a parallel
// sibling, and a candidate with no remaining target is skipped. Merging
// and reordering are recorded without structural change.
func Apply(f *flow.Flow, accepted []advisor.Opportunity) (*flow.Flow, []advisor.AppliedOptimization) {
	out := f.Clone()
	var applied []advisor.AppliedOptimization

	for _, o := range eliminationsFirst(accepted) {
		var targets []string
		for _, id := range o.Targets {
			if out.HasBlock(id) {
				targets = append(targets, id)
			}
		}
		if o.Type == advisor.Parallelization {
			targets = withParallelSibling(out, targets)
		}
		if len(targets) == 0 {
			continue
		}

		if err := rewrite(out, o.Type, targets); err != nil {
			continue
		}
		applied = append(applied, advisor.AppliedOptimization{
			Type:         o.Type,
			Targets:      targets,
			Description:  o.Description,
			ExpectedGain: o.ExpectedGain,
			Confidence:   o.Confidence,
			Structural:   o.Type.Structural(),
		})
	}
	return out, applied
}

func eliminationsFirst(accepted []advisor.Opportunity) []advisor.Opportunity {
	out := make([]advisor.Opportunity, 0, len(accepted))
	for _, o := range accepted {
		if o.Type == advisor.Elimination {
			out = append(out, o)
		}
	}
	for _, o := range accepted {
		if o.Type != advisor.Elimination {
			out = append(out, o)
		}
	}
	return out
}

// withParallelSibling keeps the targets that belong to a parallel group of
// f as it is now.
func withParallelSibling(f *flow.Flow, targets []string) []string {
	grouped := make(map[string]bool)
	for _, g := range analysis.ParallelGroups(f) {
		for _, id := range g {
			grouped[id] = true
		}
	}
	var out []string
	for _, id := range targets {
		if grouped[id] {
			out = append(out, id)
		}
	}
	return out
}

func rewrite(f *flow.Flow, t advisor.OptimizationType, targets []string) error {
	switch t {
	case advisor.Parallelization:
		for _, id := range targets {
			if err := f.SetParameter(id, flow.Parameter{
				Name: flow.ParamParallelExecution, Type: flow.ParamBoolean, Value: true,
			}); err != nil {
				return err
			}
		}
	case advisor.Caching:
		for _, id := range targets {
			if err := f.SetParameter(id, flow.Parameter{
				Name: flow.ParamCacheEnabled, Type: flow.ParamBoolean, Value: true,
			}); err != nil {
				return err
			}
			if err := f.SetParameter(id, flow.Parameter{
				Name: flow.ParamCacheTTL, Type: flow.ParamNumber, Value: float64(DefaultCacheTTL),
			}); err != nil {
				return err
			}
		}
	case advisor.Elimination:
		for _, id := range targets {
			if err := f.RemoveBlock(id); err != nil {
				return err
			}
		}
	case advisor.Merging, advisor.Reordering:
	default:
		return fmt.Errorf("unknown optimization type %q", t)
	}
	return nil
}

// Package patterns detects structural anti-patterns and optimization,
// scalability and security opportunities in a flow.
package patterns

import "github.com/efebarandurmaz/flowlens/internal/flow"

// Severity grades a finding.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities from 1 (low) to 4 (critical).
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// Category groups findings in a report.
type Category string

const (
	CategoryAnti         Category = "anti_pattern"
	CategoryOptimization Category = "optimization"
	CategoryScalability  Category = "scalability"
	CategorySecurity     Category = "security"
)

// Type names a specific finding.
type Type string

// Anti-patterns.
const (
	TypeCircularDependency Type = "circular_dependency"
	TypeNPlusOne           Type = "n_plus_one"
	TypeSyncAsyncMismatch  Type = "sync_async_mismatch"
	TypeExcessiveNesting   Type = "excessive_nesting"
	TypeResourceLeak       Type = "resource_leak"
)

// Optimization patterns.
const (
	TypeRedundantComputation Type = "redundant_computation"
	TypeMergeableChain       Type = "mergeable_chain"
	TypeLateFilter           Type = "late_filter"
	TypeParallelBranches     Type = "parallel_branches"
	TypeCacheableCall        Type = "cacheable_call"
)

// Scalability patterns.
const (
	TypeHorizontalScaling Type = "horizontal_scaling"
	TypeCachingLayer      Type = "caching_layer"
)

// Security patterns.
const (
	TypeInputValidation      Type = "input_validation"
	TypeOutputSanitization   Type = "output_sanitization"
	TypeParameterizedQueries Type = "parameterized_queries"
)

// NestingThreshold is the deepest path tolerated before excessive_nesting
// is reported.
const NestingThreshold = 5

// Finding is a single detected pattern.
type Finding struct {
	Type        Type     `json:"type"`
	Category    Category `json:"category"`
	Severity    Severity `json:"severity"`
	BlockIDs    []string `json:"block_ids"`
	Description string   `json:"description"`
	Remediation string   `json:"remediation"`
	Impact      int      `json:"impact"` // estimated percentage, 0-100
}

// Report is the full output of Detect.
type Report struct {
	AntiPatterns         []Finding    `json:"anti_patterns"`
	OptimizationPatterns []Finding    `json:"optimization_patterns"`
	ScalabilityPatterns  []Finding    `json:"scalability_patterns"`
	SecurityPatterns     []Finding    `json:"security_patterns"`
	Issues               []flow.Issue `json:"issues,omitempty"`
}

// All returns every finding across categories.
func (r *Report) All() []Finding {
	out := make([]Finding, 0, len(r.AntiPatterns)+len(r.OptimizationPatterns)+len(r.ScalabilityPatterns)+len(r.SecurityPatterns))
	out = append(out, r.AntiPatterns...)
	out = append(out, r.OptimizationPatterns...)
	out = append(out, r.ScalabilityPatterns...)
	out = append(out, r.SecurityPatterns...)
	return out
}

// OfType returns findings of the given type.
func (r *Report) OfType(t Type) []Finding {
	var out []Finding
	for _, f := range r.All() {
		if f.Type == t {
			out = append(out, f)
		}
	}
	return out
}

// SafeToExecute is false when the flow has a circular dependency. Other
// findings, critical ones included, never block execution.
func (r *Report) SafeToExecute() bool {
	return len(r.OfType(TypeCircularDependency)) == 0
}

// Summary counts findings by type. It is the compact form sent to the
// opinion oracle.
func (r *Report) Summary() map[Type]int {
	out := make(map[Type]int)
	for _, f := range r.All() {
		out[f.Type]++
	}
	return out
}

func clampImpact(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

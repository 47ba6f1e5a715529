package analysis

import (
	"time"

	"github.com/efebarandurmaz/flowlens/internal/flow"
)

// ExecutionOrder returns every block id exactly once such that, on an
// acyclic flow, each connection's source precedes its target. It is a
// reverse post-order DFS from the roots, falling back to any block not yet
// visited. Cycles terminate the walk; they are reported by the pattern
// analyzer instead.
func ExecutionOrder(f *flow.Flow) []string {
	idx := flow.BuildIndex(f)

	visited := make(map[string]bool, len(idx.Order))
	post := make([]string, 0, len(idx.Order))

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		children := idx.Children[id]
		for i := len(children) - 1; i >= 0; i-- {
			visit(children[i])
		}
		post = append(post, id)
	}

	// Iterate in reverse so the reversed post-order keeps insertion order
	// among independent blocks.
	roots := idx.Roots()
	for i := len(roots) - 1; i >= 0; i-- {
		visit(roots[i])
	}
	for i := len(idx.Order) - 1; i >= 0; i-- {
		visit(idx.Order[i])
	}

	for i, j := 0, len(post)-1; i < j; i, j = i+1, j-1 {
		post[i], post[j] = post[j], post[i]
	}
	return post
}

// ParallelGroups returns the sets of blocks eligible for concurrent
// execution.
func ParallelGroups(f *flow.Flow) [][]string {
	return parallelGroups(flow.BuildIndex(f))
}

// ParallelGroupsOf is ParallelGroups over a prebuilt index.
func ParallelGroupsOf(idx *flow.Index) [][]string {
	return parallelGroups(idx)
}

// Group is a unit of scheduling: its members run concurrently.
type Group struct {
	Blocks []string `json:"blocks"`
}

// Parallel reports whether the group has more than one member.
func (g Group) Parallel() bool { return len(g.Blocks) > 1 }

// ExecutionGroups partitions the flow into parallel groups plus singleton
// groups, ordered by the position of their first member in the execution
// order.
func ExecutionGroups(f *flow.Flow) []Group {
	order := ExecutionOrder(f)
	groups := ParallelGroups(f)

	groupOf := make(map[string]int)
	for i, g := range groups {
		for _, id := range g {
			groupOf[id] = i
		}
	}

	emitted := make(map[int]bool)
	out := make([]Group, 0, len(order))
	for _, id := range order {
		gi, ok := groupOf[id]
		if !ok {
			out = append(out, Group{Blocks: []string{id}})
			continue
		}
		if emitted[gi] {
			continue
		}
		emitted[gi] = true
		out = append(out, Group{Blocks: append([]string{}, groups[gi]...)})
	}
	return out
}

// CostFunc returns the estimated wall-clock cost of a block.
type CostFunc func(b *flow.Block) time.Duration

// DefaultCosts holds the per-kind baseline latency.
var DefaultCosts = map[flow.BlockKind]time.Duration{
	flow.KindInput:        5 * time.Millisecond,
	flow.KindTransform:    10 * time.Millisecond,
	flow.KindFilter:       5 * time.Millisecond,
	flow.KindAggregate:    50 * time.Millisecond,
	flow.KindCondition:    2 * time.Millisecond,
	flow.KindLoop:         40 * time.Millisecond,
	flow.KindExternalCall: 200 * time.Millisecond,
	flow.KindDatabase:     100 * time.Millisecond,
	flow.KindCustom:       20 * time.Millisecond,
	flow.KindOutput:       5 * time.Millisecond,
}

// cachedCostPercent scales a block carrying an enabled cache directive.
const cachedCostPercent = 30

// KindCost is the default CostFunc: the per-kind baseline, reduced for
// blocks with caching enabled.
func KindCost(b *flow.Block) time.Duration {
	c := DefaultCosts[b.Kind]
	if b.Flag(flow.ParamCacheEnabled) {
		c = c * cachedCostPercent / 100
	}
	return c
}

// EstimateLatency sums, over sequential groups, the maximum member cost.
func EstimateLatency(f *flow.Flow, groups []Group, cost CostFunc) time.Duration {
	if cost == nil {
		cost = KindCost
	}
	var total time.Duration
	for _, g := range groups {
		var worst time.Duration
		for _, id := range g.Blocks {
			b, err := f.Block(id)
			if err != nil {
				continue
			}
			if c := cost(b); c > worst {
				worst = c
			}
		}
		total += worst
	}
	return total
}

package analysis

import (
	"sort"
	"strings"

	"github.com/efebarandurmaz/flowlens/internal/flow"
)

// countComponents counts undirected connected components via union-find.
func countComponents(idx *flow.Index) int {
	parent := make(map[string]string, len(idx.Order))
	var find func(string) string
	find = func(x string) string {
		if parent[x] == "" {
			parent[x] = x
		}
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b string) {
		fa, fb := find(a), find(b)
		if fa != fb {
			parent[fa] = fb
		}
	}

	for _, id := range idx.Order {
		find(id)
	}
	for _, from := range idx.Order {
		for _, to := range idx.Children[from] {
			union(from, to)
		}
	}

	roots := make(map[string]bool)
	for _, id := range idx.Order {
		roots[find(id)] = true
	}
	return len(roots)
}

// maxDepth returns the longest path, in edges, from any input block.
// One memo and one on-path set are shared by the whole walk; a node
// already on the current path contributes 0.
func maxDepth(idx *flow.Index) int {
	memo := make(map[string]int, len(idx.Order))
	onPath := make(map[string]bool)

	var depth func(id string) int
	depth = func(id string) int {
		if onPath[id] {
			return 0
		}
		if d, ok := memo[id]; ok {
			return d
		}
		onPath[id] = true
		best := 0
		for _, c := range idx.Children[id] {
			if d := depth(c); d > best {
				best = d
			}
		}
		onPath[id] = false
		memo[id] = 1 + best
		return memo[id]
	}

	deepest := 0
	for _, in := range idx.OfKind(flow.KindInput) {
		onPath[in] = true
		for _, c := range idx.Children[in] {
			if d := depth(c); d > deepest {
				deepest = d
			}
		}
		onPath[in] = false
	}
	return deepest
}

// parallelGroups groups sibling blocks whose non-empty sets of source
// blocks are identical. Members that reach one another are dropped so no
// pair in a group depends on another.
func parallelGroups(idx *flow.Index) [][]string {
	bySources := make(map[string][]string)
	var keys []string
	for _, id := range idx.Order {
		parents := idx.Parents[id]
		if len(parents) == 0 {
			continue
		}
		key := sourceKey(parents)
		if _, ok := bySources[key]; !ok {
			keys = append(keys, key)
		}
		bySources[key] = append(bySources[key], id)
	}

	var groups [][]string
	for _, key := range keys {
		members := bySources[key]
		if len(members) < 2 {
			continue
		}
		var kept []string
		for _, m := range members {
			independent := true
			for _, k := range kept {
				if idx.Reaches(k, m) || idx.Reaches(m, k) {
					independent = false
					break
				}
			}
			if independent {
				kept = append(kept, m)
			}
		}
		if len(kept) >= 2 {
			groups = append(groups, kept)
		}
	}
	return groups
}

func sourceKey(parents []string) string {
	uniq := make(map[string]bool, len(parents))
	var ids []string
	for _, p := range parents {
		if !uniq[p] {
			uniq[p] = true
			ids = append(ids, p)
		}
	}
	sort.Strings(ids)
	return strings.Join(ids, "\x00")
}

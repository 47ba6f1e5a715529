package flow

// Index is an adjacency view over a flow's valid connections. Connections
// with a missing endpoint are skipped here and reported by Validate.
type Index struct {
	Order    []string // block ids in insertion order
	Kinds    map[string]BlockKind
	Children map[string][]string // source -> targets, connection order
	Parents  map[string][]string // target -> sources, connection order
	Edges    int                 // number of valid connections
}

// BuildIndex computes the adjacency view of f.
func BuildIndex(f *Flow) *Index {
	idx := &Index{
		Order:    make([]string, 0, len(f.Blocks)),
		Kinds:    make(map[string]BlockKind, len(f.Blocks)),
		Children: make(map[string][]string, len(f.Blocks)),
		Parents:  make(map[string][]string, len(f.Blocks)),
	}
	for _, b := range f.Blocks {
		if _, dup := idx.Kinds[b.ID]; dup {
			continue
		}
		idx.Order = append(idx.Order, b.ID)
		idx.Kinds[b.ID] = b.Kind
	}
	for _, c := range f.Connections {
		_, okS := idx.Kinds[c.Source.BlockID]
		_, okT := idx.Kinds[c.Target.BlockID]
		if !okS || !okT {
			continue
		}
		idx.Children[c.Source.BlockID] = append(idx.Children[c.Source.BlockID], c.Target.BlockID)
		idx.Parents[c.Target.BlockID] = append(idx.Parents[c.Target.BlockID], c.Source.BlockID)
		idx.Edges++
	}
	return idx
}

// OutDegree counts valid outgoing connections.
func (idx *Index) OutDegree(id string) int { return len(idx.Children[id]) }

// InDegree counts valid incoming connections.
func (idx *Index) InDegree(id string) int { return len(idx.Parents[id]) }

// Roots returns blocks with no incoming connection, in insertion order.
func (idx *Index) Roots() []string {
	var roots []string
	for _, id := range idx.Order {
		if idx.InDegree(id) == 0 {
			roots = append(roots, id)
		}
	}
	return roots
}

// OfKind returns block ids of the given kind in insertion order.
func (idx *Index) OfKind(kind BlockKind) []string {
	var ids []string
	for _, id := range idx.Order {
		if idx.Kinds[id] == kind {
			ids = append(ids, id)
		}
	}
	return ids
}

// Reaches reports whether to is reachable from from along directed edges.
func (idx *Index) Reaches(from, to string) bool {
	if from == to {
		return false
	}
	seen := map[string]bool{from: true}
	stack := []string{from}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, c := range idx.Children[n] {
			if c == to {
				return true
			}
			if !seen[c] {
				seen[c] = true
				stack = append(stack, c)
			}
		}
	}
	return false
}

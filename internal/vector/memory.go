package vector

import (
	"context"
	"maps"
	"sort"
	"sync"
)

// MemoryRepository is an in-process Repository using brute-force cosine
// search. It backs the CLI when no qdrant host is configured.
type MemoryRepository struct {
	mu   sync.RWMutex
	docs map[string]Document
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{docs: make(map[string]Document)}
}

func (m *MemoryRepository) EnsureCollection(context.Context, int) error { return nil }

func (m *MemoryRepository) Upsert(_ context.Context, docs []Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range docs {
		d.Vector = append([]float32(nil), d.Vector...)
		d.Metadata = maps.Clone(d.Metadata)
		m.docs[d.ID] = d
	}
	return nil
}

func (m *MemoryRepository) Search(_ context.Context, vec []float32, topK int) ([]SearchResult, error) {
	m.mu.RLock()
	out := make([]SearchResult, 0, len(m.docs))
	for _, d := range m.docs {
		out = append(out, SearchResult{ID: d.ID, Score: Cosine(vec, d.Vector), Metadata: maps.Clone(d.Metadata)})
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if topK >= 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (m *MemoryRepository) Close() error { return nil }

var _ Repository = (*MemoryRepository)(nil)

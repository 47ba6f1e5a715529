// Package vector indexes flows by their structural feature vectors for
// similar-flow search.
package vector

import "context"

// Document is a stored vector with string metadata.
type Document struct {
	ID       string
	Vector   []float32
	Metadata map[string]string
}

// SearchResult is a single match from a similarity search.
type SearchResult struct {
	ID       string
	Score    float32
	Metadata map[string]string
}

// Repository provides vector storage and similarity search.
type Repository interface {
	// EnsureCollection creates the backing collection if it is missing.
	EnsureCollection(ctx context.Context, dim int) error
	// Upsert inserts or updates documents.
	Upsert(ctx context.Context, docs []Document) error
	// Search finds the top-k most similar documents.
	Search(ctx context.Context, vector []float32, topK int) ([]SearchResult, error)
	// Close releases resources.
	Close() error
}

// Package vector holds the per-request similarity index over chunk embeddings.
package vector

import "context"

// VectorIndex stores chunk embeddings and returns the closest ones to a query.
type VectorIndex interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	// Search returns at most k hits, best first.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Size() int
	Close() error
}

// VectorResult is one hit. ID is a chunk ID; Score is the cosine similarity in [-1, 1].
type VectorResult struct {
	ID    string
	Score float64
}

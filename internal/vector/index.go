// Package vector provides similarity search over chunk embeddings: a primary
// external engine plus a brute-force fallback over the durable store.
package vector

import (
	"context"

	"github.com/oshigiri/kensaku/internal/models"
)

// Index is a writable vector index. It is an optimization layer, never the
// source of truth: it can be fully rebuilt from storage at any time.
type Index interface {
	// Add publishes chunk vectors. Vectors are parallel to chunks.
	Add(ctx context.Context, chunks []*models.Chunk, vectors [][]float32) error
	// Remove unpublishes the given chunk IDs.
	Remove(ctx context.Context, chunkIDs []string) error
	// Search returns up to limit candidates with cosine-similarity scores in
	// [0,1], sorted descending, filtered by minScore, tagged SourceSemantic.
	Search(ctx context.Context, query []float32, limit int, minScore float64) ([]*models.ScoredCandidate, error)
	Close() error
}

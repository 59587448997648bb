// Package keyword provides lexical search over chunks: a primary Bleve index
// plus a term-frequency fallback over the durable store.
package keyword

import (
	"context"

	"github.com/oshigiri/kensaku/internal/models"
)

// Index is a writable keyword index over chunks. Like the vector index it is
// derived state, rebuildable from storage.
type Index interface {
	// Add indexes chunk text under the chunk ID.
	Add(ctx context.Context, chunks []*models.Chunk) error
	// Remove deletes the given chunk IDs from the index.
	Remove(ctx context.Context, chunkIDs []string) error
	// Search returns up to limit candidates with scores normalized to [0,1],
	// sorted descending, filtered by minScore, tagged SourceKeyword.
	Search(ctx context.Context, query string, limit int, minScore float64) ([]*models.ScoredCandidate, error)
	Close() error
}

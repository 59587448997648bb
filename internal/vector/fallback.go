package vector

import (
	"context"
	"sort"

	"github.com/oshigiri/kensaku/internal/embedding"
	"github.com/oshigiri/kensaku/internal/models"
	"github.com/oshigiri/kensaku/internal/storage"
)

// StoreSearcher is the brute-force fallback: it scans every stored embedding
// of live documents and scores it by cosine similarity against the query.
// Correct and always available, just slower than the external engine.
type StoreSearcher struct {
	storage storage.Storage
}

// NewStoreSearcher creates a fallback searcher over the durable store.
func NewStoreSearcher(st storage.Storage) *StoreSearcher {
	return &StoreSearcher{storage: st}
}

// Add is a no-op: the store is written by the ingestion pipeline, not the index.
func (s *StoreSearcher) Add(ctx context.Context, chunks []*models.Chunk, vectors [][]float32) error {
	return nil
}

// Remove is a no-op: soft deletion in the store already hides the chunks.
func (s *StoreSearcher) Remove(ctx context.Context, chunkIDs []string) error {
	return nil
}

// Search scans all stored embeddings and returns the top candidates by cosine similarity.
func (s *StoreSearcher) Search(ctx context.Context, query []float32, limit int, minScore float64) ([]*models.ScoredCandidate, error) {
	if limit <= 0 || len(query) == 0 {
		return nil, nil
	}
	var candidates []*models.ScoredCandidate
	err := s.storage.ForEachEmbedding(ctx, func(ch *models.Chunk, emb *models.Embedding) error {
		score := embedding.CosineSimilarity(query, emb.Vector)
		if score < minScore {
			return nil
		}
		candidates = append(candidates, &models.ScoredCandidate{
			ChunkID:    ch.ID,
			DocumentID: ch.DocumentID,
			Score:      score,
			Source:     models.SourceSemantic,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	for i, c := range candidates {
		c.Rank = i
	}
	return candidates, nil
}

// Close is a no-op; the storage handle is owned by the caller.
func (s *StoreSearcher) Close() error { return nil }

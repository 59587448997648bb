package keyword

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/oshigiri/kensaku/internal/models"
	"github.com/oshigiri/kensaku/internal/storage"
)

// StoreSearcher is the lexical fallback: term-frequency scoring over every
// chunk of every live document, normalized by chunk length. The score is
// monotonic in term overlap and capped at 1.0.
type StoreSearcher struct {
	storage storage.Storage
}

// NewStoreSearcher creates a fallback searcher over the durable store.
func NewStoreSearcher(st storage.Storage) *StoreSearcher {
	return &StoreSearcher{storage: st}
}

// Add is a no-op: the store is written by the ingestion pipeline.
func (s *StoreSearcher) Add(ctx context.Context, chunks []*models.Chunk) error { return nil }

// Remove is a no-op: soft deletion in the store already hides the chunks.
func (s *StoreSearcher) Remove(ctx context.Context, chunkIDs []string) error { return nil }

// Search scans all live chunks and scores them against the query terms.
func (s *StoreSearcher) Search(ctx context.Context, query string, limit int, minScore float64) ([]*models.ScoredCandidate, error) {
	terms := Tokenize(query)
	if limit <= 0 || len(terms) == 0 {
		return nil, nil
	}
	var candidates []*models.ScoredCandidate
	err := s.storage.ForEachChunk(ctx, func(ch *models.Chunk) error {
		score := ScoreChunk(terms, ch.Content)
		if score <= 0 || score < minScore {
			return nil
		}
		candidates = append(candidates, &models.ScoredCandidate{
			ChunkID:    ch.ID,
			DocumentID: ch.DocumentID,
			Score:      score,
			Source:     models.SourceKeyword,
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

// Tokenize lowercases text and splits it into alphanumeric terms.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// ScoreChunk scores content against query terms: total query-term occurrences
// divided by the chunk's token count, so short chunks with dense matches rank
// above long chunks with sparse ones. Capped at 1.0.
func ScoreChunk(terms []string, content string) float64 {
	tokens := Tokenize(content)
	if len(tokens) == 0 {
		return 0
	}
	counts := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		counts[tok]++
	}
	matches := 0
	for _, term := range terms {
		matches += counts[term]
	}
	if matches == 0 {
		return 0
	}
	score := float64(matches) / float64(len(tokens))
	if score > 1.0 {
		return 1.0
	}
	return score
}

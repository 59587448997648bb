// Package search provides the hybrid search engine: query embedding, parallel
// dispatch to vector and keyword retrieval, and reciprocal rank fusion.
package search

import (
	"sort"

	"github.com/oshigiri/kensaku/internal/models"
)

// DefaultRRFK is the reciprocal rank fusion smoothing constant. Larger values
// flatten the contribution curve so deep ranks still matter.
const DefaultRRFK = 60

// fusedEntry accumulates per-chunk contributions during fusion.
type fusedEntry struct {
	chunkID    string
	documentID string
	score      float64
	bestRank   int
	sources    int
	source     models.SourceType
}

// FuseRRF merges the semantic and keyword candidate lists with reciprocal
// rank fusion: each list contributes weight/(k+rank+1) to a running score
// keyed by chunk ID. Contributions accumulate additively, so a chunk found by
// both paths always outranks the same chunk found by one path at the same
// rank. Ties break on the best single-source rank. Items in both lists are
// retagged SourceHybrid. Raw reciprocal sums are tiny (at most roughly
// weight/(k+1) per source), so fused scores are normalized by the top score
// before the caller's minScore filter and the maxResults cut are applied.
func FuseRRF(semantic, keyword []*models.ScoredCandidate, semanticWeight, keywordWeight, minScore float64, maxResults, k int) []*models.SearchResult {
	if k <= 0 {
		k = DefaultRRFK
	}
	entries := make(map[string]*fusedEntry)

	accumulate := func(candidates []*models.ScoredCandidate, weight float64) {
		for _, c := range candidates {
			contribution := weight / float64(k+c.Rank+1)
			entry, ok := entries[c.ChunkID]
			if !ok {
				entry = &fusedEntry{
					chunkID:    c.ChunkID,
					documentID: c.DocumentID,
					bestRank:   c.Rank,
					source:     c.Source,
				}
				entries[c.ChunkID] = entry
			}
			entry.score += contribution
			entry.sources++
			if c.Rank < entry.bestRank {
				entry.bestRank = c.Rank
			}
			if entry.sources > 1 {
				entry.source = models.SourceHybrid
			}
		}
	}
	accumulate(semantic, semanticWeight)
	accumulate(keyword, keywordWeight)

	fused := make([]*fusedEntry, 0, len(entries))
	for _, entry := range entries {
		fused = append(fused, entry)
	}
	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].score != fused[j].score {
			return fused[i].score > fused[j].score
		}
		return fused[i].bestRank < fused[j].bestRank
	})

	var maxScore float64
	if len(fused) > 0 {
		maxScore = fused[0].score
	}
	results := make([]*models.SearchResult, 0, len(fused))
	for _, entry := range fused {
		if maxScore > 0 {
			entry.score /= maxScore
		}
		if entry.score < minScore {
			continue
		}
		if maxResults > 0 && len(results) >= maxResults {
			break
		}
		results = append(results, &models.SearchResult{
			ChunkID:    entry.chunkID,
			DocumentID: entry.documentID,
			Score:      entry.score,
			Source:     entry.source,
			Rank:       len(results),
		})
	}
	return results
}
